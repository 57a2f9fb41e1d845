package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/group-cart/internal/identity"
)

// fakeCarts is a scriptable cart.Service: it fails the first errBudget
// calls, then reports the configured completion flag.
type fakeCarts struct {
	mu        sync.Mutex
	done      bool
	errBudget int
	calls     int
}

func (f *fakeCarts) Completed(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.errBudget > 0 {
		f.errBudget--
		return false, context.DeadlineExceeded
	}
	return f.done, nil
}

func (f *fakeCarts) finish() {
	f.mu.Lock()
	f.done = true
	f.mu.Unlock()
}

func (f *fakeCarts) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (h *harness) coordinatorWithCarts(t *testing.T, uuid string, carts *fakeCarts) *Coordinator {
	t.Helper()
	ident := identity.NewMemoryProviderWithID(uuid)
	c := New(h.groupID, ident, h.repo, h.hub.NewChannel(), carts)
	c.SetPollInterval(5 * time.Millisecond)
	t.Cleanup(c.Close)
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize %s: %v", uuid, err)
	}
	return c
}

func TestPollerPromotesCompletedCart(t *testing.T) {
	h := newHarness(t)
	carts := &fakeCarts{errBudget: 2}
	owner := h.coordinatorWithCarts(t, "owner-1", carts)

	if got := owner.PollerState(); got != "idle" {
		t.Fatalf("poller state before checkout = %q", got)
	}

	if err := owner.BeginCheckout(context.Background()); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if got := owner.PollerState(); got != "polling" {
		t.Fatalf("poller state in checkout = %q", got)
	}

	// fetch errors are absorbed as "not yet complete"
	waitFor(t, func() bool { return carts.callCount() > 2 }, "poller gave up on errors")
	if owner.IsComplete() {
		t.Fatal("group completed while cart was open")
	}

	carts.finish()
	waitFor(t, owner.IsComplete, "completed cart never promoted the group")
	waitFor(t, func() bool { return owner.PollerState() == "stopped" }, "poller kept running after completion")
}

func TestPollerStopsOnResetToCart(t *testing.T) {
	h := newHarness(t)
	carts := &fakeCarts{}
	owner := h.coordinatorWithCarts(t, "owner-1", carts)
	ctx := context.Background()

	if err := owner.BeginCheckout(ctx); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if err := owner.ResetToCart(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	waitFor(t, func() bool { return owner.PollerState() == "stopped" }, "poller survived the reset")
	if owner.IsComplete() {
		t.Fatal("reset completed the group")
	}
}

func TestPollerNonOwnerWaitsForSnapshot(t *testing.T) {
	h := newHarness(t)
	h.join(t, "member-1", "bob")
	carts := &fakeCarts{}
	owner := h.coordinator(t, "owner-1")
	member := h.coordinatorWithCarts(t, "member-1", carts)
	ctx := context.Background()

	if err := owner.BeginCheckout(ctx); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	waitFor(t, func() bool { return member.PollerState() == "polling" }, "member poller never started")

	// the member's poller sees completion but cannot promote the group
	carts.finish()
	waitFor(t, func() bool { return carts.callCount() >= 2 }, "member poller stalled")
	if member.IsComplete() {
		t.Fatal("non-owner completed the group")
	}

	// the owner's completion snapshot is what stops it
	if err := owner.Complete(ctx); err != nil {
		t.Fatalf("owner complete: %v", err)
	}
	waitFor(t, member.IsComplete, "member never saw the completion snapshot")
	waitFor(t, func() bool { return member.PollerState() == "stopped" }, "member poller kept running")
}

func TestCloseStopsPoller(t *testing.T) {
	h := newHarness(t)
	carts := &fakeCarts{}
	owner := h.coordinatorWithCarts(t, "owner-1", carts)

	if err := owner.BeginCheckout(context.Background()); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	owner.Close()
	if got := owner.PollerState(); got != "stopped" {
		t.Fatalf("poller state after close = %q", got)
	}
}
