package coordinator

import (
	"testing"
	"time"
)

func newTestDispatcher() (*dispatcher, *time.Time) {
	d := newDispatcher()
	now := time.Unix(1000, 0)
	d.now = func() time.Time { return now }
	return d, &now
}

func TestDispatchDedupWindow(t *testing.T) {
	d, now := newTestDispatcher()
	var got int
	d.on(EventProductChanged, func(Event) Propagation {
		got++
		return Continue
	})

	payload := []byte(`{"userId":"u1","type":"add","variantId":"v1"}`)
	ev := ProductChangedEvent{ActorUUID: "u1"}

	if !d.dispatch(EventProductChanged, payload, ev) {
		t.Fatal("first dispatch suppressed")
	}
	if d.dispatch(EventProductChanged, payload, ev) {
		t.Fatal("duplicate inside window dispatched")
	}
	if got != 1 {
		t.Fatalf("handler ran %d times, want 1", got)
	}

	// a different payload for the same event is not a duplicate
	other := []byte(`{"userId":"u2","type":"add","variantId":"v1"}`)
	if !d.dispatch(EventProductChanged, other, ProductChangedEvent{ActorUUID: "u2"}) {
		t.Fatal("distinct payload suppressed")
	}

	// past the window the original payload dispatches again
	*now = now.Add(dedupWindow)
	if !d.dispatch(EventProductChanged, payload, ev) {
		t.Fatal("dispatch after window suppressed")
	}
	if got != 3 {
		t.Fatalf("handler ran %d times, want 3", got)
	}
}

func TestDispatchDedupIsPerEventType(t *testing.T) {
	d, _ := newTestDispatcher()
	var products, groups int
	d.on(EventProductChanged, func(Event) Propagation { products++; return Continue })
	d.on(EventGroupChanged, func(Event) Propagation { groups++; return Continue })

	payload := []byte(`{}`)
	d.dispatch(EventProductChanged, payload, ProductChangedEvent{})
	d.dispatch(EventGroupChanged, payload, GroupChangedEvent{})
	if products != 1 || groups != 1 {
		t.Fatalf("products=%d groups=%d, same payload on another type must not dedup", products, groups)
	}
}

func TestDispatchStopShortCircuits(t *testing.T) {
	d, _ := newTestDispatcher()
	var order []string
	d.on(EventGroupChanged, func(Event) Propagation {
		order = append(order, "first")
		return Continue
	})
	d.on(EventGroupChanged, func(Event) Propagation {
		order = append(order, "second")
		return Stop
	})
	d.on(EventGroupChanged, func(Event) Propagation {
		order = append(order, "third")
		return Continue
	})

	d.dispatch(EventGroupChanged, []byte("a"), GroupChangedEvent{})
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v", order)
	}
}

func TestSubscriptionCancel(t *testing.T) {
	d, now := newTestDispatcher()
	var got int
	sub := d.on(EventProductChanged, func(Event) Propagation { got++; return Continue })

	d.dispatch(EventProductChanged, []byte("a"), ProductChangedEvent{})
	sub.Cancel()
	sub.Cancel() // repeat cancel is harmless
	*now = now.Add(dedupWindow)
	d.dispatch(EventProductChanged, []byte("a"), ProductChangedEvent{})
	if got != 1 {
		t.Fatalf("cancelled handler ran, got=%d", got)
	}
}
