package module

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Msaraldi/trade-app/internal/bus"
	"github.com/Msaraldi/trade-app/internal/metrics"
	"github.com/Msaraldi/trade-app/internal/state"
)

// Descriptor is a read-only summary of a registered module.
type Descriptor struct {
	ID          string
	Name        string
	Description string
	Active      bool
}

// Registry owns the module instances and forwards shared-state events to
// each of them. A module failure is logged and isolated: it never stops
// callbacks to other modules or future events to the failing module, except
// for a failed Initialize which removes the module from dispatch entirely.
type Registry struct {
	log   zerolog.Logger
	state *state.State

	mu      sync.Mutex
	modules map[string]Module
	order   []string
	failed  map[string]bool
}

// NewRegistry builds an empty registry bound to the shared state.
func NewRegistry(log zerolog.Logger, st *state.State) *Registry {
	return &Registry{
		log:     log,
		state:   st,
		modules: make(map[string]Module),
		failed:  make(map[string]bool),
	}
}

// Register adds a module and runs its Initialize with the shared state
// handle. An initialization failure keeps the module registered for listing
// but excluded from all callbacks.
func (r *Registry) Register(m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[m.ID()]; exists {
		return fmt.Errorf("module already registered: %s", m.ID())
	}
	r.modules[m.ID()] = m
	r.order = append(r.order, m.ID())

	if err := m.Initialize(r.state); err != nil {
		r.failed[m.ID()] = true
		r.log.Error().Err(err).Str("module", m.ID()).Msg("module initialization failed")
		return err
	}
	r.log.Info().Str("module", m.ID()).Str("name", m.Name()).Msg("module registered")
	return nil
}

// SetActive flips the module flag and mirrors it into shared state, which
// publishes ModuleStateChanged.
func (r *Registry) SetActive(id string, active bool) error {
	r.mu.Lock()
	m, ok := r.modules[id]
	failed := r.failed[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown module: %s", id)
	}
	if failed {
		return Errorf(InitializationFailed, "module %s failed to initialize", id)
	}
	m.SetActive(active)
	r.state.SetModuleActive(id, active)
	return nil
}

// Modules lists registered modules in registration order.
func (r *Registry) Modules() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		m := r.modules[id]
		out = append(out, Descriptor{
			ID:          m.ID(),
			Name:        m.Name(),
			Description: m.Description(),
			Active:      m.IsActive(),
		})
	}
	return out
}

// Shutdown stops every successfully initialized module.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		if r.failed[id] {
			continue
		}
		if err := r.modules[id].Shutdown(); err != nil {
			r.log.Error().Err(err).Str("module", id).Msg("module shutdown failed")
		}
	}
}

// Run subscribes to the state's bus and dispatches events until the context
// is done or the bus closes. Lag gaps are logged and counted, not fatal.
func (r *Registry) Run(ctx context.Context) error {
	sub := r.state.Events().Subscribe()
	defer sub.Close()

	for {
		e, err := sub.Receive(ctx)
		if err != nil {
			var lag *bus.Lagged
			if errors.As(err, &lag) {
				metrics.EventsMissedTotal.Add(float64(lag.Missed))
				r.log.Warn().Uint64("missed", lag.Missed).Msg("registry lagged behind event bus")
				continue
			}
			if errors.Is(err, bus.ErrClosed) {
				return nil
			}
			return err
		}
		r.Dispatch(e)
	}
}

// Dispatch forwards one event to every dispatchable module. The module's own
// active flag decides whether the callback does anything.
func (r *Registry) Dispatch(e bus.Event) {
	r.mu.Lock()
	targets := make([]Module, 0, len(r.order))
	for _, id := range r.order {
		if !r.failed[id] {
			targets = append(targets, r.modules[id])
		}
	}
	r.mu.Unlock()

	for _, m := range targets {
		var err error
		switch e.Type {
		case bus.PriceUpdated:
			err = m.OnPriceTick(e.Tick)
		case bus.BalanceChanged:
			err = m.OnBalanceChange(e.Symbol, e.Balance)
		case bus.PositionOpened:
			err = m.OnPositionOpened(e.Position)
		case bus.PositionClosed:
			err = m.OnPositionClosed(e.Position, e.PnL)
		default:
			// AlarmTriggered and ModuleStateChanged carry no module callback.
			continue
		}
		if err != nil {
			metrics.ModuleErrorsTotal.WithLabelValues(m.ID()).Inc()
			r.log.Error().Err(err).Str("module", m.ID()).Str("event", e.Type.String()).Msg("module callback failed")
		}
	}
}
