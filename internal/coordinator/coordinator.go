// Package coordinator holds the client-side session state for one
// participant of one group: the cached snapshot, the realtime event
// subscription with deduplication, the mutation commands, and the
// checkout-completion poller. Every instance is scoped to a single
// group id; leaving the group tears the instance down.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iliyamo/group-cart/internal/cart"
	"github.com/iliyamo/group-cart/internal/identity"
	"github.com/iliyamo/group-cart/internal/model"
	"github.com/iliyamo/group-cart/internal/realtime"
	"github.com/iliyamo/group-cart/internal/repository"
)

// defaultPollInterval is how often the checkout poller re-checks the
// backing cart's completion flag.
const defaultPollInterval = 10 * time.Second

// ErrNoGroup is returned by commands that need a cached snapshot when
// the group was never fetched or has disappeared.
var ErrNoGroup = errors.New("no active group")

// ErrNotMember is returned when the local participant is not part of
// the cached group.
var ErrNotMember = errors.New("participant is not a member of the group")

// ErrCompleted is returned by member-state commands once the group is
// completed and no further mutation is expected.
var ErrCompleted = errors.New("group already completed")

// Repository is the thin RPC boundary the coordinator mutates the
// group through. The server-side repository satisfies it directly for
// in-process use; client.Client satisfies it over HTTP.
type Repository interface {
	Get(ctx context.Context, groupID string) (*model.Group, error)
	UpdateSelection(ctx context.Context, groupID string, upd model.SelectionUpdate) (*model.Group, error)
	UpdateMember(ctx context.Context, groupID string, member model.Member) (*model.Group, error)
	Transition(ctx context.Context, groupID string, target model.GroupStatus, actorUUID string) (*model.Group, error)
}

// Coordinator keeps one participant's view of a group convergent with
// the server record. Mutations go to the repository first; the cache
// only ever changes from a confirmed repository response or an
// accepted channel event, so a failed command cannot corrupt it.
type Coordinator struct {
	groupID  string
	uuid     string
	identity identity.Provider
	repo     Repository
	channel  realtime.Channel
	carts    cart.Service

	pollInterval time.Duration

	mu    sync.RWMutex
	group *model.Group

	disp *dispatcher

	ready    chan struct{}
	initOnce sync.Once
	initErr  error

	ctx         context.Context
	cancel      context.CancelFunc
	unsubOnce   sync.Once
	unsubscribe func()

	pollMu     sync.Mutex
	pollState  pollState
	pollCancel context.CancelFunc
}

// New builds a coordinator for the given group. The identity provider
// supplies the local participant's uuid; carts may be nil when no
// checkout polling is wanted (the poller then never leaves idle).
func New(groupID string, ident identity.Provider, repo Repository, ch realtime.Channel, carts cart.Service) *Coordinator {
	if groupID == "" {
		panic("empty group id passed to coordinator.New")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		groupID:      groupID,
		uuid:         ident.ParticipantID(),
		identity:     ident,
		repo:         repo,
		channel:      ch,
		carts:        carts,
		pollInterval: defaultPollInterval,
		disp:         newDispatcher(),
		ready:        make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
	// The coordinator's own merge handlers register before any caller
	// listener so the cache is current by the time listeners observe
	// an event.
	c.disp.on(EventGroupChanged, func(ev Event) Propagation {
		if g, ok := ev.(GroupChangedEvent); ok && g.Group != nil {
			c.setGroup(g.Group)
		}
		return Continue
	})
	c.disp.on(EventProductChanged, func(ev Event) Propagation {
		if p, ok := ev.(ProductChangedEvent); ok {
			c.applyDiff(p)
		}
		return Continue
	})
	return c
}

// SetPollInterval overrides the checkout poll interval. Call before
// Initialize.
func (c *Coordinator) SetPollInterval(d time.Duration) {
	if d > 0 {
		c.pollInterval = d
	}
}

// ParticipantID returns the local participant's uuid.
func (c *Coordinator) ParticipantID() string { return c.uuid }

// GroupID returns the group this coordinator is bound to.
func (c *Coordinator) GroupID() string { return c.groupID }

// Initialize fetches the initial snapshot, connects the channel,
// subscribes to the group's events and announces presence. It resolves
// exactly once; commands issued before it resolves block behind it.
// A missing group record is not an error: the coordinator comes up
// with no snapshot and HasGroup reports false.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.initialize(ctx)
		close(c.ready)
	})
	return c.initErr
}

func (c *Coordinator) initialize(ctx context.Context) error {
	g, err := c.repo.Get(ctx, c.groupID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		slog.Debug("group record absent at initialize", "group_id", c.groupID)
	case err != nil:
		return fmt.Errorf("fetch group %s: %w", c.groupID, err)
	default:
		c.mu.Lock()
		c.group = g.Clone()
		c.mu.Unlock()
	}

	if err := c.channel.Connect(ctx); err != nil {
		return err
	}
	msgs, unsub, err := c.channel.Subscribe(c.ctx,
		realtime.ProductChangedEvent(c.groupID),
		realtime.GroupChangedEvent(c.groupID),
	)
	if err != nil {
		return err
	}
	c.unsubscribe = unsub
	go c.recvLoop(msgs)

	presence, _ := json.Marshal(c.uuid)
	if err := c.channel.Publish(ctx, realtime.ConnectedEvent(c.groupID), presence); err != nil {
		slog.Debug("presence announce failed", "group_id", c.groupID, "error", err)
	}

	c.maintainPoller()
	return nil
}

// await gates commands behind Initialize, per the readiness contract.
func (c *Coordinator) await(ctx context.Context) error {
	select {
	case <-c.ready:
		return c.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// On registers a listener for one event type. Listeners run in
// registration order after the coordinator's own merge handlers.
func (c *Coordinator) On(t EventType, fn Handler) Subscription {
	return c.disp.on(t, fn)
}

// recvLoop drains the channel subscription until it is cancelled.
func (c *Coordinator) recvLoop(msgs <-chan realtime.Message) {
	for msg := range msgs {
		c.handleMessage(msg)
	}
}

func (c *Coordinator) handleMessage(msg realtime.Message) {
	switch msg.Event {
	case realtime.ProductChangedEvent(c.groupID):
		var p realtime.ProductChanged
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			slog.Debug("drop malformed product event", "group_id", c.groupID, "error", err)
			return
		}
		c.disp.dispatch(EventProductChanged, msg.Payload, ProductChangedEvent{
			ActorUUID: p.UserID,
			Op:        p.Op,
			VariantID: p.VariantID,
			Quantity:  p.Quantity,
		})
	case realtime.GroupChangedEvent(c.groupID):
		var g model.Group
		if err := json.Unmarshal(msg.Payload, &g); err != nil {
			slog.Debug("drop malformed group event", "group_id", c.groupID, "error", err)
			return
		}
		c.disp.dispatch(EventGroupChanged, msg.Payload, GroupChangedEvent{Group: &g})
	}
}

// setGroup replaces the cached snapshot wholesale. Snapshots are
// authoritative, so replacement is always safe regardless of what
// diffs were applied or dropped in between.
func (c *Coordinator) setGroup(g *model.Group) {
	c.mu.Lock()
	c.group = g.Clone()
	c.mu.Unlock()
	c.maintainPoller()
}

// applyDiff patches the cache optimistically from another member's
// diff event. Diffs are advisory: a wrong or dropped patch is repaired
// by the next snapshot. The local participant's own diffs are skipped
// because their confirmed response already updated the cache.
func (c *Coordinator) applyDiff(ev ProductChangedEvent) {
	if ev.ActorUUID == c.uuid || !ev.Op.Valid() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.group == nil {
		return
	}
	m := c.group.Member(ev.ActorUUID)
	if m == nil {
		return
	}
	qty := ev.Quantity
	if qty <= 0 {
		qty = 1
	}
	m.Products.Apply(ev.Op, ev.VariantID, qty)
}

// UpdateProduct adds or removes quantity of a variant in the local
// participant's own selection list, then broadcasts both the terse
// diff (for fast peers) and the fresh snapshot (so slow or just-joined
// peers converge). quantity 0 means 1.
func (c *Coordinator) UpdateProduct(ctx context.Context, op model.SelectionOp, variantID string, quantity int) error {
	if err := c.await(ctx); err != nil {
		return err
	}
	if quantity == 0 {
		quantity = 1
	}
	g, err := c.repo.UpdateSelection(ctx, c.groupID, model.SelectionUpdate{
		UUID:      c.uuid,
		Op:        op,
		VariantID: variantID,
		Quantity:  quantity,
	})
	if err != nil {
		return err
	}
	c.setGroup(g)

	diff, _ := json.Marshal(realtime.ProductChanged{
		UserID:    c.uuid,
		Op:        op,
		VariantID: variantID,
		Quantity:  quantity,
	})
	if err := c.channel.Publish(ctx, realtime.ProductChangedEvent(c.groupID), diff); err != nil {
		return err
	}
	return c.publishSnapshot(ctx, g)
}

// ToggleDone flips the local participant's finished-shopping flag.
// Rejected once the group is completed.
func (c *Coordinator) ToggleDone(ctx context.Context) error {
	if err := c.await(ctx); err != nil {
		return err
	}
	c.mu.RLock()
	var me *model.Member
	completed := false
	if c.group != nil {
		completed = c.group.Status == model.StatusCompleted
		me = c.group.Member(c.uuid)
	}
	var next model.Member
	if me != nil {
		next = me.Clone()
	}
	c.mu.RUnlock()

	if me == nil {
		if !c.HasGroup() {
			return ErrNoGroup
		}
		return ErrNotMember
	}
	if completed {
		return ErrCompleted
	}

	next.Done = !next.Done
	g, err := c.repo.UpdateMember(ctx, c.groupID, next)
	if err != nil {
		return err
	}
	c.setGroup(g)
	return c.publishSnapshot(ctx, g)
}

// BeginCheckout moves the group to checkout. Owner only; rejected
// locally before any RPC when the participant is not the Owner.
func (c *Coordinator) BeginCheckout(ctx context.Context) error {
	return c.transition(ctx, model.StatusCheckout, true)
}

// ResetToCart moves the group from checkout back to cart. A no-op once
// the group is completed.
func (c *Coordinator) ResetToCart(ctx context.Context) error {
	if c.IsComplete() {
		return nil
	}
	return c.transition(ctx, model.StatusCart, true)
}

// Complete marks the group completed. A no-op when already completed.
// The server enforces the Owner requirement; non-Owner pollers calling
// this simply wait for the Owner's snapshot instead.
func (c *Coordinator) Complete(ctx context.Context) error {
	if c.IsComplete() {
		return nil
	}
	return c.transition(ctx, model.StatusCompleted, false)
}

func (c *Coordinator) transition(ctx context.Context, target model.GroupStatus, requireOwnerLocally bool) error {
	if err := c.await(ctx); err != nil {
		return err
	}
	if !c.HasGroup() {
		return ErrNoGroup
	}
	if requireOwnerLocally && !c.IsOwner() {
		return repository.ErrUnauthorized
	}
	g, err := c.repo.Transition(ctx, c.groupID, target, c.uuid)
	if err != nil {
		return err
	}
	c.setGroup(g)
	return c.publishSnapshot(ctx, g)
}

func (c *Coordinator) publishSnapshot(ctx context.Context, g *model.Group) error {
	payload, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return c.channel.Publish(ctx, realtime.GroupChangedEvent(c.groupID), payload)
}

// Reset abandons the group locally: the persisted group pointer is
// cleared and the instance is torn down. The server record is left
// untouched so other participants can keep using it.
func (c *Coordinator) Reset() error {
	err := c.identity.ClearGroupID()
	c.Close()
	return err
}

// Close cancels the channel subscription and stops the poller. The
// transport itself is not closed; the coordinator does not own it.
// Safe to call more than once.
func (c *Coordinator) Close() {
	c.cancel()
	c.unsubOnce.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
	})
	c.stopPoller()
}

// --- queries over the cached snapshot ---

// Group returns a copy of the cached snapshot, nil before the first
// fetch or when the record is gone.
func (c *Coordinator) Group() *model.Group {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.group.Clone()
}

// HasGroup reports whether a snapshot is cached.
func (c *Coordinator) HasGroup() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.group != nil
}

func (c *Coordinator) status() model.GroupStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.group == nil {
		return ""
	}
	return c.group.Status
}

// IsInCart reports whether the group is in cart status.
func (c *Coordinator) IsInCart() bool { return c.status() == model.StatusCart }

// IsCheckout reports whether the group is in checkout status.
func (c *Coordinator) IsCheckout() bool { return c.status() == model.StatusCheckout }

// IsComplete reports whether the group is completed.
func (c *Coordinator) IsComplete() bool { return c.status() == model.StatusCompleted }

// CurrentMember returns a copy of the local participant's member
// entry, nil when absent.
func (c *Coordinator) CurrentMember() *model.Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.group == nil {
		return nil
	}
	m := c.group.Member(c.uuid)
	if m == nil {
		return nil
	}
	out := m.Clone()
	return &out
}

// Owner returns a copy of the group's Owner entry, nil when absent.
func (c *Coordinator) Owner() *model.Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.group == nil {
		return nil
	}
	m := c.group.Owner()
	if m == nil {
		return nil
	}
	out := m.Clone()
	return &out
}

// IsOwner reports whether the local participant holds the Owner role.
func (c *Coordinator) IsOwner() bool {
	m := c.CurrentMember()
	return m != nil && m.Role == model.RoleOwner
}

// IsDone reports the local participant's finished-shopping flag.
func (c *Coordinator) IsDone() bool {
	m := c.CurrentMember()
	return m != nil && m.Done
}

// Products flattens every member's selections into one list, in member
// then selection order. Entries are not merged across members.
func (c *Coordinator) Products() []model.ProductSelection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.group == nil {
		return nil
	}
	var out []model.ProductSelection
	for _, m := range c.group.Members {
		out = append(out, m.Products.Items...)
	}
	return out
}

// ItemCount sums every member's quantities, the number the cart badge
// shows for the merged multi-member cart.
func (c *Coordinator) ItemCount() int {
	total := 0
	for _, it := range c.Products() {
		total += it.Quantity
	}
	return total
}

// VariantQuantities aggregates quantity per variant across all
// members. Pricing the merged cart is the catalog collaborator's job;
// this is the quantity side of that lookup.
func (c *Coordinator) VariantQuantities() map[string]int {
	out := make(map[string]int)
	for _, it := range c.Products() {
		out[it.VariantID] += it.Quantity
	}
	return out
}
