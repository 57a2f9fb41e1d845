// Package store persists one JSON-serializable group record per group
// id in a key-value backend. Every backend implements the same
// versioned contract: Update writes conditionally on the version the
// record was read at, so concurrent read-modify-write cycles surface as
// ErrVersionConflict instead of silently dropping one side's change.
package store

import (
	"context"
	"errors"

	"github.com/iliyamo/group-cart/internal/model"
)

// ErrNotFound is returned when no record exists for a group id.
// Callers should treat it as "gone or never existed" and not retry.
var ErrNotFound = errors.New("group record not found")

// ErrVersionConflict is returned by Update when the record changed
// since it was read. Callers re-read and reapply their mutation.
var ErrVersionConflict = errors.New("group record version conflict")

// GroupStore is the single-key persistence contract for group records.
// Ids are only ever looked up by exact key; no enumeration exists.
type GroupStore interface {
	// Get returns a copy of the record, or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Group, error)

	// Create writes a brand new record. Ids are generated from random
	// uuids so an unconditional write is safe; an existing record under
	// the same id would be a generator collision, not a race.
	Create(ctx context.Context, g *model.Group) error

	// Update persists g conditionally on g.Version matching the stored
	// version, bumping the version on success. Returns ErrNotFound when
	// the record vanished and ErrVersionConflict when it moved on.
	Update(ctx context.Context, g *model.Group) error
}
