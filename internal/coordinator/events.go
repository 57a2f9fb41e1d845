package coordinator

import (
	"bytes"
	"sync"
	"time"

	"github.com/iliyamo/group-cart/internal/model"
)

// dedupWindow is how long an identical (event, payload) pair suppresses
// a re-dispatch. Protects listeners from transport duplicates and from
// two publishers racing on the same logical change.
const dedupWindow = 100 * time.Millisecond

// EventType discriminates the events a coordinator dispatches.
type EventType int

const (
	// EventProductChanged is the advisory diff: one member changed one
	// of their own selections.
	EventProductChanged EventType = iota
	// EventGroupChanged is the authoritative snapshot: the full group
	// record, already applied to the coordinator's cache by the time
	// listeners run.
	EventGroupChanged
)

// Event is the tagged union delivered to listeners.
type Event interface {
	Type() EventType
}

// ProductChangedEvent reports another participant's selection change.
type ProductChangedEvent struct {
	ActorUUID string
	Op        model.SelectionOp
	VariantID string
	Quantity  int
}

func (ProductChangedEvent) Type() EventType { return EventProductChanged }

// GroupChangedEvent carries the snapshot that replaced the cached group.
type GroupChangedEvent struct {
	Group *model.Group
}

func (GroupChangedEvent) Type() EventType { return EventGroupChanged }

// Propagation is a listener's verdict on whether later listeners run.
type Propagation int

const (
	// Continue lets dispatch proceed to the next listener.
	Continue Propagation = iota
	// Stop short-circuits the remaining listeners for this event.
	// Listener order beyond registration order is not guaranteed, so
	// Stop is a convenience, not an ordering primitive.
	Stop
)

// Handler consumes one event.
type Handler func(Event) Propagation

// Subscription identifies one registered handler and can cancel it.
type Subscription struct {
	d   *dispatcher
	typ EventType
	id  int
}

// Cancel removes the handler. Safe to call more than once.
func (s Subscription) Cancel() {
	if s.d != nil {
		s.d.cancel(s.typ, s.id)
	}
}

type handlerEntry struct {
	id int
	fn Handler
}

type lastDispatch struct {
	at      time.Time
	payload []byte
}

// dispatcher keeps the ordered listener lists and the recent-event
// cache used for deduplication. The clock is injectable so the dedup
// window is testable without sleeping.
type dispatcher struct {
	mu       sync.Mutex
	handlers map[EventType][]handlerEntry
	last     map[EventType]lastDispatch
	nextID   int
	now      func() time.Time
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		handlers: make(map[EventType][]handlerEntry),
		last:     make(map[EventType]lastDispatch),
		now:      time.Now,
	}
}

func (d *dispatcher) on(t EventType, fn Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.handlers[t] = append(d.handlers[t], handlerEntry{id: d.nextID, fn: fn})
	return Subscription{d: d, typ: t, id: d.nextID}
}

func (d *dispatcher) cancel(t EventType, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.handlers[t]
	for i, h := range list {
		if h.id == id {
			d.handlers[t] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// dispatch runs the listeners for t in registration order unless the
// same payload was dispatched for t within the dedup window. Returns
// whether the event was actually dispatched.
func (d *dispatcher) dispatch(t EventType, payload []byte, ev Event) bool {
	d.mu.Lock()
	now := d.now()
	if prev, ok := d.last[t]; ok && now.Sub(prev.at) < dedupWindow && bytes.Equal(prev.payload, payload) {
		d.mu.Unlock()
		return false
	}
	d.last[t] = lastDispatch{at: now, payload: append([]byte(nil), payload...)}
	list := append([]handlerEntry(nil), d.handlers[t]...)
	d.mu.Unlock()

	for _, h := range list {
		if h.fn(ev) == Stop {
			break
		}
	}
	return true
}
