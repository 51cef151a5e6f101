// Package module defines the lifecycle contract every trading module
// implements and the registry that fans bus events out to them.
package module

import (
	"fmt"

	"github.com/Msaraldi/trade-app/internal/model"
	"github.com/Msaraldi/trade-app/internal/state"
)

// Module is the capability interface shared by all strategy/risk modules.
// Lifecycle: constructed → Initialize → toggled active/inactive any number of
// times → Shutdown at most once. New modules start inactive. The registry
// invokes every callback regardless of the active flag; an implementation
// must early-return when inactive so toggling stays cheap and side-effect
// free.
type Module interface {
	// ID is the stable identifier used by the registry and the
	// module-active map in shared state.
	ID() string
	// Name is the human-readable module name.
	Name() string
	// Description summarizes what the module does.
	Description() string

	// Initialize hands the module its shared state handle. A failure is
	// terminal: the module receives no further callbacks.
	Initialize(st *state.State) error
	// Shutdown releases module resources. Called at most once.
	Shutdown() error

	// OnPriceTick is invoked for every price update.
	OnPriceTick(tick model.Tick) error
	// OnBalanceChange is invoked when a wallet balance changes.
	OnBalanceChange(symbol string, balance float64) error
	// OnPositionOpened is invoked when a position starts being tracked.
	OnPositionOpened(position model.Position) error
	// OnPositionClosed is invoked with the realized pnl of a closed position.
	OnPositionClosed(position model.Position, pnl float64) error

	// CanExecuteOrders reports whether any order-placing path may trust this
	// module to emit orders. Modules must opt in explicitly.
	CanExecuteOrders() bool
	// IsActive reports the module's activity flag.
	IsActive() bool
	// SetActive flips the module's activity flag.
	SetActive(active bool)
}

// ErrorKind classifies module failures.
type ErrorKind int

const (
	// InitializationFailed marks a failed Initialize; the module is removed
	// from dispatch.
	InitializationFailed ErrorKind = iota
	// ExecutionFailed marks a callback that could not complete its work.
	ExecutionFailed
	// Unauthorized marks a callback rejected for missing permissions.
	Unauthorized
	// ConnectionError marks a callback that failed on an upstream connection.
	ConnectionError
	// Other marks any remaining failure.
	Other
)

func (k ErrorKind) String() string {
	switch k {
	case InitializationFailed:
		return "initialization failed"
	case ExecutionFailed:
		return "execution failed"
	case Unauthorized:
		return "unauthorized"
	case ConnectionError:
		return "connection error"
	default:
		return "error"
	}
}

// Error is the typed failure modules return from lifecycle and callback
// methods.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errorf builds a typed module error.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
