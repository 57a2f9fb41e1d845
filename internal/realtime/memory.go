package realtime

import (
	"context"
	"sync"
)

// Hub is an in-process pub/sub transport. It backs single-process
// deployments that run without Redis and gives tests a transport whose
// deliveries they can observe synchronously. Channels handed out by
// NewChannel share the hub, so two coordinators on the same hub see
// each other's events.
type Hub struct {
	mu   sync.Mutex
	subs map[int]*hubSub
	next int
}

type hubSub struct {
	events map[string]bool
	out    chan Message
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]*hubSub)}
}

// NewChannel returns a Channel attached to the hub.
func (h *Hub) NewChannel() *HubChannel { return &HubChannel{hub: h} }

func (h *Hub) publish(event string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if !s.events[event] {
			continue
		}
		// Drop on a full buffer rather than block a publisher; the
		// protocol tolerates lost diffs and snapshots re-converge.
		select {
		case s.out <- Message{Event: event, Payload: append([]byte(nil), payload...)}:
		default:
		}
	}
}

func (h *Hub) subscribe(events []string) (int, *hubSub) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	s := &hubSub{events: make(map[string]bool, len(events)), out: make(chan Message, 64)}
	for _, e := range events {
		s.events[e] = true
	}
	h.subs[h.next] = s
	return h.next, s
}

func (h *Hub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.out)
	}
}

// HubChannel is one attachment to a Hub, satisfying Channel.
type HubChannel struct {
	hub *Hub
}

// Connect always succeeds; the hub is in-process.
func (c *HubChannel) Connect(context.Context) error { return nil }

// Publish fans the message out to every matching subscriber.
func (c *HubChannel) Publish(_ context.Context, event string, payload []byte) error {
	c.hub.publish(event, payload)
	return nil
}

// Subscribe registers for the named events until cancel is called.
func (c *HubChannel) Subscribe(_ context.Context, events ...string) (<-chan Message, func(), error) {
	id, s := c.hub.subscribe(events)
	var once sync.Once
	cancel := func() { once.Do(func() { c.hub.unsubscribe(id) }) }
	return s.out, cancel, nil
}
