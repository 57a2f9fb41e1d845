package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/group-cart/internal/model"
)

// pollState tracks the checkout-completion poll loop.
type pollState int

const (
	pollIdle pollState = iota
	pollPolling
	pollStopped
)

// maintainPoller reconciles the poll loop with the cached status:
// polling while the group sits in checkout, stopped otherwise. Called
// after every snapshot change.
func (c *Coordinator) maintainPoller() {
	if c.carts == nil {
		return
	}
	c.mu.RLock()
	checkout := c.group != nil && c.group.Status == model.StatusCheckout
	c.mu.RUnlock()
	if checkout {
		c.startPoller()
	} else {
		c.stopPoller()
	}
}

func (c *Coordinator) startPoller() {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	if c.pollCancel != nil {
		return // already polling
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.pollCancel = cancel
	c.pollState = pollPolling
	go c.pollLoop(ctx)
}

// stopPoller tears the loop down. The ticker lives inside pollLoop and
// dies with its context, so no timer ever outlives the coordinator.
func (c *Coordinator) stopPoller() {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	if c.pollCancel == nil {
		if c.pollState == pollPolling {
			c.pollState = pollStopped
		}
		return
	}
	c.pollCancel()
	c.pollCancel = nil
	c.pollState = pollStopped
}

// pollLoop re-checks the backing cart on a fixed interval while the
// group is in checkout. Fetch failures mean "not yet complete" and are
// retried on the next tick; a completed backing cart promotes the
// group and ends the loop.
func (c *Coordinator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			var cartID string
			if c.group != nil {
				cartID = c.group.CartID
			}
			c.mu.RUnlock()
			if cartID == "" {
				continue
			}
			done, err := c.carts.Completed(ctx, cartID)
			if err != nil {
				slog.Debug("checkout poll failed", "group_id", c.groupID, "error", err)
				continue
			}
			if !done {
				continue
			}
			// Non-Owner instances are rejected here and keep polling
			// until the Owner's completion snapshot arrives.
			if err := c.Complete(ctx); err != nil {
				slog.Debug("complete after checkout failed", "group_id", c.groupID, "error", err)
			}
		}
	}
}

// PollerState is exposed for observability: idle before checkout ever
// starts, polling during checkout, stopped after completion/teardown.
func (c *Coordinator) PollerState() string {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	switch c.pollState {
	case pollPolling:
		return "polling"
	case pollStopped:
		return "stopped"
	default:
		return "idle"
	}
}
