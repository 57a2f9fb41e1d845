package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/group-cart/internal/model"
	"github.com/iliyamo/group-cart/internal/queue"
	"github.com/iliyamo/group-cart/internal/store"
)

// maxUpdateRetries bounds how often a read-modify-write cycle is
// re-run after losing a conditional write to a concurrent writer.
const maxUpdateRetries = 5

// CompletionPublisher receives a broker event when a group reaches
// completed status. Publishing is best effort; failures are logged and
// never fail the transition.
type CompletionPublisher interface {
	PublishGroupCompleted(ctx context.Context, ev queue.GroupCompletedEvent) error
}

// GroupRepo is the only writer of group records. Every operation is a
// read-modify-write cycle against the store, retried on version
// conflict, so concurrent mutations of the same group are serialized by
// the store's conditional write rather than silently last-write-wins.
type GroupRepo struct {
	store       store.GroupStore
	completions CompletionPublisher // optional
}

// NewGroupRepo returns a repository over the given store. completions
// may be nil when no broker is configured.
func NewGroupRepo(s store.GroupStore, completions CompletionPublisher) *GroupRepo {
	if s == nil {
		panic("nil store passed to NewGroupRepo")
	}
	return &GroupRepo{store: s, completions: completions}
}

// Create opens a new group wrapping the given backing cart. The caller
// becomes the Owner regardless of the role submitted; status starts at
// cart. The generated group id is the only handle to the record.
func (r *GroupRepo) Create(ctx context.Context, cartID string, owner model.Member) (*model.Group, error) {
	if cartID == "" {
		return nil, fmt.Errorf("%w: missing cartId", ErrValidation)
	}
	if owner.UUID == "" {
		return nil, fmt.Errorf("%w: missing member uuid", ErrValidation)
	}
	owner.Role = model.RoleOwner
	owner.Products.Prune()

	g := &model.Group{
		ID:      uuid.NewString(),
		CartID:  cartID,
		Status:  model.StatusCart,
		Members: []model.Member{owner},
	}
	if err := r.store.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

// Get returns the current record for a group id.
func (r *GroupRepo) Get(ctx context.Context, groupID string) (*model.Group, error) {
	g, err := r.store.Get(ctx, groupID)
	if err != nil {
		return nil, translate(err)
	}
	return g, nil
}

// Join adds the member to the group, or overwrites the existing entry's
// mutable fields when the same uuid rejoins. Roles never change after
// the first entry: a rejoining Owner stays Owner, and a new member can
// only claim Owner when the group somehow has none. Status is left
// untouched.
func (r *GroupRepo) Join(ctx context.Context, groupID string, member model.Member) (*model.Group, error) {
	if member.UUID == "" {
		return nil, fmt.Errorf("%w: missing member uuid", ErrValidation)
	}
	member.Products.Prune()

	return r.update(ctx, groupID, func(g *model.Group) error {
		if existing := g.Member(member.UUID); existing != nil {
			existing.Nickname = member.Nickname
			existing.Email = member.Email
			existing.Done = member.Done
			existing.Products = member.Products
			return nil
		}
		if member.Role == model.RoleOwner && g.HasOwner() {
			member.Role = model.RoleMember
		}
		if member.Role == "" {
			member.Role = model.RoleMember
		}
		g.Members = append(g.Members, member)
		return nil
	})
}

// UpdateSelection applies one add/remove to the selections of the
// member named in the payload. Adds increment, removes clamp at zero,
// and a selection that lands on zero is dropped from the list. The
// quantity defaults to 1 when the payload omits it; an explicit
// non-positive quantity is rejected rather than clamped so client bugs
// surface instead of disappearing.
func (r *GroupRepo) UpdateSelection(ctx context.Context, groupID string, upd model.SelectionUpdate) (*model.Group, error) {
	if upd.UUID == "" || upd.VariantID == "" {
		return nil, fmt.Errorf("%w: missing userId or variantId", ErrValidation)
	}
	if !upd.Op.Valid() {
		return nil, fmt.Errorf("%w: unknown op %q", ErrValidation, upd.Op)
	}
	if upd.Quantity < 0 {
		return nil, fmt.Errorf("%w: negative quantity", ErrValidation)
	}
	if upd.Quantity == 0 {
		upd.Quantity = 1
	}

	return r.update(ctx, groupID, func(g *model.Group) error {
		m := g.Member(upd.UUID)
		if m == nil {
			return ErrMemberNotFound
		}
		m.Products.Apply(upd.Op, upd.VariantID, upd.Quantity)
		return nil
	})
}

// UpdateMember merges the supplied member's mutable fields (notably the
// done flag) into the matching entry, appending when the uuid is new.
// An appended entry never becomes Owner as long as one exists.
func (r *GroupRepo) UpdateMember(ctx context.Context, groupID string, member model.Member) (*model.Group, error) {
	if member.UUID == "" {
		return nil, fmt.Errorf("%w: missing member uuid", ErrValidation)
	}
	member.Products.Prune()

	return r.update(ctx, groupID, func(g *model.Group) error {
		if existing := g.Member(member.UUID); existing != nil {
			existing.Nickname = member.Nickname
			existing.Email = member.Email
			existing.Done = member.Done
			existing.Products = member.Products
			return nil
		}
		if member.Role == model.RoleOwner && g.HasOwner() {
			member.Role = model.RoleMember
		}
		if member.Role == "" {
			member.Role = model.RoleMember
		}
		g.Members = append(g.Members, member)
		return nil
	})
}

// Transition moves the group to the target status on behalf of the
// acting member. Only the Owner may transition. The command set is
// idempotent: asking for the current status, or for any change once
// completed, returns the record unchanged instead of failing.
func (r *GroupRepo) Transition(ctx context.Context, groupID string, target model.GroupStatus, actorUUID string) (*model.Group, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, target)
	}
	if actorUUID == "" {
		return nil, fmt.Errorf("%w: missing userId", ErrValidation)
	}

	var completed bool
	g, err := r.update(ctx, groupID, func(g *model.Group) error {
		actor := g.Member(actorUUID)
		if actor == nil {
			return ErrMemberNotFound
		}
		if actor.Role != model.RoleOwner {
			return ErrUnauthorized
		}
		if g.Status == target || g.Status == model.StatusCompleted {
			return errNoChange
		}
		completed = target == model.StatusCompleted
		g.Status = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	if completed && r.completions != nil {
		r.publishCompleted(ctx, g)
	}
	return g, nil
}

// errNoChange short-circuits the update loop when a mutation decides
// the record should stay as it is. The caller still gets the current
// record back.
var errNoChange = errors.New("no change")

// update runs one read-modify-write cycle and retries while the
// conditional write keeps losing to concurrent writers.
func (r *GroupRepo) update(ctx context.Context, groupID string, mutate func(*model.Group) error) (*model.Group, error) {
	if groupID == "" {
		return nil, fmt.Errorf("%w: missing groupId", ErrValidation)
	}
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		g, err := r.store.Get(ctx, groupID)
		if err != nil {
			return nil, translate(err)
		}
		switch err := mutate(g); {
		case errors.Is(err, errNoChange):
			return g, nil
		case err != nil:
			return nil, err
		}
		switch err := r.store.Update(ctx, g); {
		case err == nil:
			return g, nil
		case errors.Is(err, store.ErrVersionConflict):
			continue
		default:
			return nil, translate(err)
		}
	}
	return nil, fmt.Errorf("%w: group %s kept changing", ErrConflict, groupID)
}

func (r *GroupRepo) publishCompleted(ctx context.Context, g *model.Group) {
	total := 0
	for _, m := range g.Members {
		for _, it := range m.Products.Items {
			total += it.Quantity
		}
	}
	ev := queue.GroupCompletedEvent{
		GroupID:       g.ID,
		CartID:        g.CartID,
		Members:       len(g.Members),
		TotalQuantity: total,
		CompletedAt:   time.Now().UTC(),
	}
	if err := r.completions.PublishGroupCompleted(ctx, ev); err != nil {
		slog.Warn("publish group.completed failed", "group_id", g.ID, "error", err)
	}
}

func translate(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
