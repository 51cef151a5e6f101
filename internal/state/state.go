// Package state holds the live application state shared by every trading
// module: prices, positions, alarms, settings, and module activity flags.
// Each field is guarded by its own lock so operations on one field never
// block operations on another, and every mutation publishes a matching event
// on the bus only after the write is visible.
package state

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Msaraldi/trade-app/internal/bus"
	"github.com/Msaraldi/trade-app/internal/metrics"
	"github.com/Msaraldi/trade-app/internal/model"
)

// State is constructed once at process start and handed by reference to every
// component. It is the single source of truth; modules hold the handle, never
// private copies of its contents.
type State struct {
	events *bus.Bus

	pricesMu sync.RWMutex
	prices   map[string]model.Tick

	positionsMu sync.RWMutex
	positions   []model.Position

	alarmsMu sync.RWMutex
	alarms   []model.Alarm

	settingsMu sync.RWMutex
	settings   model.Settings

	modulesMu sync.RWMutex
	modules   map[string]bool
}

// New builds an empty state publishing through the given bus.
func New(events *bus.Bus) *State {
	return &State{
		events:   events,
		prices:   make(map[string]model.Tick),
		settings: model.DefaultSettings(),
		modules:  make(map[string]bool),
	}
}

// Events exposes the bus for subscribers such as the module registry.
func (s *State) Events() *bus.Bus {
	return s.events
}

func (s *State) publish(e bus.Event) {
	// A bus without subscribers is not an error for state mutations.
	if _, err := s.events.Publish(e); err == nil {
		metrics.EventsPublishedTotal.WithLabelValues(e.Type.String()).Inc()
	}
}

// UpdatePrice replaces the stored tick for the symbol and then publishes
// PriceUpdated, so any reader triggered by the event sees the new price.
func (s *State) UpdatePrice(tick model.Tick) {
	s.pricesMu.Lock()
	s.prices[tick.Symbol] = tick
	s.pricesMu.Unlock()

	s.publish(bus.Event{Type: bus.PriceUpdated, Tick: tick})
}

// Price returns a copy of the latest tick for the symbol.
func (s *State) Price(symbol string) (model.Tick, bool) {
	s.pricesMu.RLock()
	defer s.pricesMu.RUnlock()
	tick, ok := s.prices[symbol]
	return tick, ok
}

// SetModuleActive records the module activity flag and publishes
// ModuleStateChanged.
func (s *State) SetModuleActive(moduleID string, active bool) {
	s.modulesMu.Lock()
	s.modules[moduleID] = active
	s.modulesMu.Unlock()

	s.publish(bus.Event{Type: bus.ModuleStateChanged, ModuleID: moduleID, Active: active})
}

// ModuleActive reports whether the module is currently flagged active.
// Unknown modules are inactive.
func (s *State) ModuleActive(moduleID string) bool {
	s.modulesMu.RLock()
	defer s.modulesMu.RUnlock()
	return s.modules[moduleID]
}

// OpenPosition starts tracking a position and publishes PositionOpened. A
// missing ID or creation time is filled in. Returns the position ID.
func (s *State) OpenPosition(p model.Position) string {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	s.positionsMu.Lock()
	s.positions = append(s.positions, p)
	s.positionsMu.Unlock()

	s.publish(bus.Event{Type: bus.PositionOpened, Position: p})
	return p.ID
}

// ClosePosition stops tracking the position and publishes PositionClosed with
// the realized pnl. It reports whether the position was found.
func (s *State) ClosePosition(id string, pnl float64) bool {
	var closed model.Position
	found := false

	s.positionsMu.Lock()
	for i, p := range s.positions {
		if p.ID == id {
			closed = p
			s.positions = append(s.positions[:i], s.positions[i+1:]...)
			found = true
			break
		}
	}
	s.positionsMu.Unlock()

	if found {
		s.publish(bus.Event{Type: bus.PositionClosed, Position: closed, PnL: pnl})
	}
	return found
}

// Positions returns a snapshot copy of the open positions.
func (s *State) Positions() []model.Position {
	s.positionsMu.RLock()
	defer s.positionsMu.RUnlock()
	out := make([]model.Position, len(s.positions))
	copy(out, s.positions)
	return out
}

// AddAlarm stores an alarm, assigning an ID when absent, and returns the ID.
func (s *State) AddAlarm(a model.Alarm) string {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.alarmsMu.Lock()
	s.alarms = append(s.alarms, a)
	s.alarmsMu.Unlock()
	return a.ID
}

// TriggerAlarm deactivates the alarm and publishes AlarmTriggered. It reports
// whether an active alarm with the ID existed.
func (s *State) TriggerAlarm(id string) bool {
	fired := false
	s.alarmsMu.Lock()
	for i := range s.alarms {
		if s.alarms[i].ID == id && s.alarms[i].Active {
			s.alarms[i].Active = false
			fired = true
			break
		}
	}
	s.alarmsMu.Unlock()

	if fired {
		s.publish(bus.Event{Type: bus.AlarmTriggered, AlarmID: id})
	}
	return fired
}

// Alarms returns a snapshot copy of the configured alarms.
func (s *State) Alarms() []model.Alarm {
	s.alarmsMu.RLock()
	defer s.alarmsMu.RUnlock()
	out := make([]model.Alarm, len(s.alarms))
	copy(out, s.alarms)
	return out
}

// UpdateBalance publishes BalanceChanged for the symbol.
func (s *State) UpdateBalance(symbol string, balance float64) {
	s.publish(bus.Event{Type: bus.BalanceChanged, Symbol: symbol, Balance: balance})
}

// Settings returns a copy of the current user settings.
func (s *State) Settings() model.Settings {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.settings
}

// SetSettings replaces the user settings.
func (s *State) SetSettings(settings model.Settings) {
	s.settingsMu.Lock()
	s.settings = settings
	s.settingsMu.Unlock()
}
