// Package realtime carries the per-group event protocol over a generic
// pub/sub transport. Two payload shapes exist: a terse product diff
// that is advisory only, and a full group snapshot that is always safe
// to apply by replacement. Delivery is at-least-once and unordered;
// duplicates are expected and consumers must deduplicate.
package realtime

import (
	"context"

	"github.com/iliyamo/group-cart/internal/model"
)

// Event names are namespaced by group id so one transport serves every
// active group.
func ProductChangedEvent(groupID string) string { return "change-product-" + groupID }
func GroupChangedEvent(groupID string) string   { return "change-group-" + groupID }
func ConnectedEvent(groupID string) string      { return "connected-" + groupID }

// Message is one delivery from the transport: the event name it was
// published under plus the raw payload bytes.
type Message struct {
	Event   string
	Payload []byte
}

// Channel is the pub/sub transport contract the coordinator speaks.
// The coordinator does not own the transport; Connect must resolve
// before any Publish or Subscribe, and implementations may deliver the
// same message more than once.
type Channel interface {
	// Connect blocks until the transport is reachable.
	Connect(ctx context.Context) error

	// Publish sends payload under the given event name.
	Publish(ctx context.Context, event string, payload []byte) error

	// Subscribe delivers messages for the named events on the returned
	// channel until cancel is called. The message channel is closed
	// after cancellation.
	Subscribe(ctx context.Context, events ...string) (<-chan Message, func(), error)
}

// ProductChanged is the diff payload: some member changed one of their
// own selections. Recipients use it only as a trigger for an
// optimistic local patch or a refresh, never as the source of truth.
// The snapshot payload carried under the change-group event is the
// JSON-serialized model.Group itself.
type ProductChanged struct {
	UserID    string            `json:"userId"`
	Op        model.SelectionOp `json:"type"`
	VariantID string            `json:"variantId"`
	Quantity  int               `json:"quantity,omitempty"`
}
