// Package bus implements the in-memory broadcast channel that carries domain
// events from shared state to trading modules.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Msaraldi/trade-app/internal/model"
)

// DefaultCapacity bounds how many in-flight events the bus retains for slow
// subscribers.
const DefaultCapacity = 1024

var (
	// ErrNoSubscribers is returned by Publish when nobody is listening.
	ErrNoSubscribers = errors.New("event bus has no active subscribers")
	// ErrClosed is returned once the bus has been shut down.
	ErrClosed = errors.New("event bus closed")
)

// Lagged reports that a subscriber fell more than the bus capacity behind and
// lost the oldest unread events. The subscriber resumes from the oldest event
// still buffered.
type Lagged struct {
	Missed uint64
}

func (l *Lagged) Error() string {
	return fmt.Sprintf("subscriber lagged: missed %d events", l.Missed)
}

// EventType tags the payload carried by an Event.
type EventType int

const (
	// PriceUpdated carries the latest tick for a symbol.
	PriceUpdated EventType = iota
	// BalanceChanged carries a wallet balance update.
	BalanceChanged
	// PositionOpened announces a newly tracked position.
	PositionOpened
	// PositionClosed announces a closed position along with its realized pnl.
	PositionClosed
	// AlarmTriggered announces a fired price alarm.
	AlarmTriggered
	// ModuleStateChanged announces a module activity toggle.
	ModuleStateChanged
)

// String returns the metric-friendly name for the event type.
func (t EventType) String() string {
	switch t {
	case PriceUpdated:
		return "price_updated"
	case BalanceChanged:
		return "balance_changed"
	case PositionOpened:
		return "position_opened"
	case PositionClosed:
		return "position_closed"
	case AlarmTriggered:
		return "alarm_triggered"
	case ModuleStateChanged:
		return "module_state_changed"
	default:
		return "unknown"
	}
}

// Event is the tagged union broadcast through the bus. Only the fields
// relevant to Type are populated.
type Event struct {
	Type     EventType
	Tick     model.Tick     // PriceUpdated
	Symbol   string         // BalanceChanged
	Balance  float64        // BalanceChanged
	Position model.Position // PositionOpened, PositionClosed
	PnL      float64        // PositionClosed
	AlarmID  string         // AlarmTriggered
	ModuleID string         // ModuleStateChanged
	Active   bool           // ModuleStateChanged
}

// Bus is a bounded multi-producer, multi-consumer broadcast channel. Events
// live in a ring buffer stamped with monotonically increasing sequence
// numbers; every subscriber observes the same global order, and a subscriber
// that falls behind skips to the oldest retained event instead of blocking
// publishers.
type Bus struct {
	mu       sync.Mutex
	ring     []Event
	capacity uint64
	oldest   uint64 // sequence of the oldest retained event
	next     uint64 // sequence assigned to the next published event
	subs     map[uint64]*Subscriber
	nextID   uint64
	closed   bool
}

// New allocates a bus retaining up to capacity events.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		ring:     make([]Event, capacity),
		capacity: uint64(capacity),
		subs:     make(map[uint64]*Subscriber),
	}
}

// Publish appends the event for every current subscriber and returns how many
// subscribers will receive it. It never blocks; a full ring overwrites the
// oldest retained event.
func (b *Bus) Publish(e Event) (int, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, ErrClosed
	}
	if len(b.subs) == 0 {
		b.mu.Unlock()
		return 0, ErrNoSubscribers
	}

	b.ring[b.next%b.capacity] = e
	b.next++
	if b.next-b.oldest > b.capacity {
		b.oldest = b.next - b.capacity
	}

	n := len(b.subs)
	for _, sub := range b.subs {
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
	return n, nil
}

// Subscribe registers a new consumer. It always succeeds; the subscriber sees
// only events published after this call.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscriber{
		bus:    b,
		id:     b.nextID,
		cursor: b.next,
		notify: make(chan struct{}, 1),
	}
	b.nextID++
	b.subs[sub.id] = sub
	return sub
}

// Close shuts the bus down. Subscribers drain buffered events and then
// receive ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for _, sub := range b.subs {
			select {
			case sub.notify <- struct{}{}:
			default:
			}
		}
	}
	b.mu.Unlock()
}

// Subscriber is a single consumer's view of the bus, tracking the sequence of
// its next unread event.
type Subscriber struct {
	bus    *Bus
	id     uint64
	cursor uint64
	notify chan struct{}
}

// Receive blocks until the next event is available. When the subscriber has
// fallen more than the bus capacity behind it returns a *Lagged error
// reporting the gap, and the following call resumes from the oldest retained
// event.
func (s *Subscriber) Receive(ctx context.Context) (Event, error) {
	for {
		s.bus.mu.Lock()
		if s.cursor < s.bus.oldest {
			missed := s.bus.oldest - s.cursor
			s.cursor = s.bus.oldest
			s.bus.mu.Unlock()
			return Event{}, &Lagged{Missed: missed}
		}
		if s.cursor < s.bus.next {
			e := s.bus.ring[s.cursor%s.bus.capacity]
			s.cursor++
			s.bus.mu.Unlock()
			return e, nil
		}
		closed := s.bus.closed
		s.bus.mu.Unlock()

		if closed {
			return Event{}, ErrClosed
		}
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Close removes the subscriber from the bus.
func (s *Subscriber) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
}
