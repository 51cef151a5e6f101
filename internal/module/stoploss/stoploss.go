// Package stoploss implements the smart stop-loss module: automatic
// breakeven detection and stop trigger monitoring over open positions.
package stoploss

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/Msaraldi/trade-app/internal/model"
	"github.com/Msaraldi/trade-app/internal/module"
	"github.com/Msaraldi/trade-app/internal/state"
)

// ModuleID identifies the module in the registry and shared state.
const ModuleID = "stop_loss"

const defaultBreakevenThreshold = 1.0

// Config tunes the module behavior.
type Config struct {
	// AutoBreakeven enables breakeven detection.
	AutoBreakeven bool
	// BreakevenThreshold is the profit required before a breakeven signal,
	// expressed in R (the entry-to-stop distance). 1.0 means one full R.
	BreakevenThreshold float64
}

// Module watches price ticks and signals breakeven and stop-loss conditions
// on open positions. Signals are logical events only; order placement against
// the exchange lives outside this core.
type Module struct {
	log    zerolog.Logger
	cfg    Config
	state  *state.State
	active atomic.Bool
}

// New builds an inactive stop-loss module with defaults applied.
func New(log zerolog.Logger, cfg Config) *Module {
	if cfg.BreakevenThreshold <= 0 {
		cfg.BreakevenThreshold = defaultBreakevenThreshold
	}
	return &Module{log: log, cfg: cfg}
}

func (m *Module) ID() string   { return ModuleID }
func (m *Module) Name() string { return "Smart Stop-Loss" }
func (m *Module) Description() string {
	return "Smart stop-loss management with automatic breakeven detection"
}

// Initialize stores the shared state handle.
func (m *Module) Initialize(st *state.State) error {
	if st == nil {
		return module.Errorf(module.InitializationFailed, "nil state")
	}
	m.state = st
	m.log.Info().Str("module", ModuleID).Msg("module initialized")
	return nil
}

// Shutdown drops the state handle.
func (m *Module) Shutdown() error {
	m.state = nil
	m.log.Info().Str("module", ModuleID).Msg("module stopped")
	return nil
}

// OnPriceTick evaluates every open position on the tick's symbol. Each tick
// is checked stateless against current position fields; a breakeven that has
// fired keeps firing until the caller moves the position's stop.
func (m *Module) OnPriceTick(tick model.Tick) error {
	if !m.active.Load() {
		return nil
	}
	if m.state == nil {
		return module.Errorf(module.ExecutionFailed, "state not initialized")
	}

	for _, position := range m.state.Positions() {
		if position.Symbol != tick.Symbol {
			continue
		}

		if m.cfg.AutoBreakeven && breakevenReached(position, tick.Price, m.cfg.BreakevenThreshold) {
			m.log.Info().
				Str("symbol", position.Symbol).
				Str("position", position.ID).
				Float64("price", tick.Price).
				Msg("breakeven reached")
		}

		if position.StopLoss != nil && stopHit(position, tick.Price) {
			m.log.Warn().
				Str("symbol", position.Symbol).
				Str("position", position.ID).
				Float64("price", tick.Price).
				Float64("stop", *position.StopLoss).
				Msg("stop-loss hit")
		}
	}
	return nil
}

// OnBalanceChange is not monitored by this module.
func (m *Module) OnBalanceChange(string, float64) error { return nil }

// OnPositionOpened notes the new position under watch.
func (m *Module) OnPositionOpened(position model.Position) error {
	if !m.active.Load() {
		return nil
	}
	m.log.Info().Str("symbol", position.Symbol).Str("position", position.ID).Msg("tracking new position")
	return nil
}

// OnPositionClosed notes the realized result.
func (m *Module) OnPositionClosed(position model.Position, pnl float64) error {
	if !m.active.Load() {
		return nil
	}
	m.log.Info().Str("symbol", position.Symbol).Float64("pnl", pnl).Msg("position closed")
	return nil
}

// CanExecuteOrders opts this module into order placement once an execution
// path exists.
func (m *Module) CanExecuteOrders() bool { return true }

func (m *Module) IsActive() bool        { return m.active.Load() }
func (m *Module) SetActive(active bool) { m.active.Store(active) }

// breakevenReached reports whether the position moved threshold R into
// profit. With no stop set the risk distance is zero and any profitable tick
// qualifies.
func breakevenReached(p model.Position, price, threshold float64) bool {
	entry := p.EntryPrice
	stop := entry
	if p.StopLoss != nil {
		stop = *p.StopLoss
	}
	risk := entry - stop
	if risk < 0 {
		risk = -risk
	}

	switch p.Side {
	case model.SideLong:
		return price >= entry+risk*threshold
	case model.SideShort:
		return price <= entry-risk*threshold
	default:
		return false
	}
}

// stopHit reports whether the tick crossed the position's stop price.
func stopHit(p model.Position, price float64) bool {
	stop := *p.StopLoss
	switch p.Side {
	case model.SideLong:
		return price <= stop
	case model.SideShort:
		return price >= stop
	default:
		return false
	}
}
