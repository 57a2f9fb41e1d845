package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/group-cart/internal/model"
	"github.com/iliyamo/group-cart/internal/queue"
	"github.com/iliyamo/group-cart/internal/store"
)

func newTestRepo(t *testing.T) (*GroupRepo, *model.Group) {
	t.Helper()
	repo := NewGroupRepo(store.NewMemoryStore(), nil)
	g, err := repo.Create(context.Background(), "cart-1", model.Member{
		UUID: "owner-1", Nickname: "alice",
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return repo, g
}

func TestCreate(t *testing.T) {
	_, g := newTestRepo(t)
	if g.ID == "" {
		t.Fatal("no group id generated")
	}
	if g.CartID != "cart-1" || g.Status != model.StatusCart {
		t.Fatalf("group = %+v", g)
	}
	if len(g.Members) != 1 || g.Members[0].Role != model.RoleOwner {
		t.Fatalf("members = %+v", g.Members)
	}
}

func TestCreateValidation(t *testing.T) {
	repo := NewGroupRepo(store.NewMemoryStore(), nil)
	if _, err := repo.Create(context.Background(), "", model.Member{UUID: "u"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing cartId err = %v", err)
	}
	if _, err := repo.Create(context.Background(), "c", model.Member{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing uuid err = %v", err)
	}
}

func TestJoinIdempotent(t *testing.T) {
	repo, g := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.Join(ctx, g.ID, model.Member{UUID: "m1", Nickname: "bob"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(first.Members) != 2 {
		t.Fatalf("members after join = %d, want 2", len(first.Members))
	}

	second, err := repo.Join(ctx, g.ID, model.Member{UUID: "m1", Nickname: "bobby"})
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if len(second.Members) != 2 {
		t.Fatalf("rejoin duplicated member: %+v", second.Members)
	}
	if m := second.Member("m1"); m.Nickname != "bobby" {
		t.Fatalf("rejoin kept stale nickname %q", m.Nickname)
	}
}

func TestJoinMissingGroup(t *testing.T) {
	repo, _ := newTestRepo(t)
	if _, err := repo.Join(context.Background(), "ghost", model.Member{UUID: "m1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestJoinCannotClaimSecondOwner(t *testing.T) {
	repo, g := newTestRepo(t)
	out, err := repo.Join(context.Background(), g.ID, model.Member{UUID: "m1", Role: model.RoleOwner})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	owners := 0
	for _, m := range out.Members {
		if m.Role == model.RoleOwner {
			owners++
		}
	}
	if owners != 1 {
		t.Fatalf("owners = %d, want exactly 1", owners)
	}
	if out.Member("m1").Role != model.RoleMember {
		t.Fatal("joining member kept Owner role")
	}
	if out.Owner().UUID != "owner-1" {
		t.Fatal("ownership moved on join")
	}
}

func TestUpdateSelectionArithmetic(t *testing.T) {
	type step struct {
		op  model.SelectionOp
		qty int
	}
	tests := []struct {
		name  string
		steps []step
		want  int
	}{
		{"default quantity is one", []step{{model.OpAdd, 0}}, 1},
		{"signed sum", []step{{model.OpAdd, 2}, {model.OpAdd, 3}, {model.OpRemove, 1}}, 4},
		{"clamped at zero", []step{{model.OpAdd, 1}, {model.OpRemove, 5}}, 0},
		{"exact zero prunes", []step{{model.OpAdd, 2}, {model.OpRemove, 2}}, 0},
		{"remove before add", []step{{model.OpRemove, 3}, {model.OpAdd, 2}}, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo, g := newTestRepo(t)
			ctx := context.Background()
			var out *model.Group
			var err error
			for _, s := range tc.steps {
				out, err = repo.UpdateSelection(ctx, g.ID, model.SelectionUpdate{
					UUID: "owner-1", Op: s.op, VariantID: "v1", Quantity: s.qty,
				})
				if err != nil {
					t.Fatalf("update selection: %v", err)
				}
			}
			m := out.Member("owner-1")
			if got := m.Products.Quantity("v1"); got != tc.want {
				t.Fatalf("quantity = %d, want %d", got, tc.want)
			}
			if tc.want == 0 && len(m.Products.Items) != 0 {
				t.Fatalf("zero entry persisted: %+v", m.Products.Items)
			}
		})
	}
}

func TestUpdateSelectionValidation(t *testing.T) {
	repo, g := newTestRepo(t)
	ctx := context.Background()

	cases := []model.SelectionUpdate{
		{UUID: "owner-1", Op: model.OpAdd, VariantID: "v1", Quantity: -1},
		{UUID: "owner-1", Op: "steal", VariantID: "v1"},
		{UUID: "", Op: model.OpAdd, VariantID: "v1"},
		{UUID: "owner-1", Op: model.OpAdd, VariantID: ""},
	}
	for _, upd := range cases {
		if _, err := repo.UpdateSelection(ctx, g.ID, upd); !errors.Is(err, ErrValidation) {
			t.Fatalf("upd %+v err = %v, want ErrValidation", upd, err)
		}
	}

	if _, err := repo.UpdateSelection(ctx, g.ID, model.SelectionUpdate{
		UUID: "ghost", Op: model.OpAdd, VariantID: "v1",
	}); !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("unknown member err = %v, want ErrMemberNotFound", err)
	}
}

func TestSelectionIsolationAcrossMembers(t *testing.T) {
	repo, g := newTestRepo(t)
	ctx := context.Background()
	if _, err := repo.Join(ctx, g.ID, model.Member{UUID: "m1"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := repo.UpdateSelection(ctx, g.ID, model.SelectionUpdate{
		UUID: "m1", Op: model.OpAdd, VariantID: "v1", Quantity: 2,
	}); err != nil {
		t.Fatalf("member add: %v", err)
	}

	// the owner removing from their own empty list must not touch m1
	out, err := repo.UpdateSelection(ctx, g.ID, model.SelectionUpdate{
		UUID: "owner-1", Op: model.OpRemove, VariantID: "v1", Quantity: 2,
	})
	if err != nil {
		t.Fatalf("owner remove: %v", err)
	}
	if got := out.Member("m1").Products.Quantity("v1"); got != 2 {
		t.Fatalf("m1 quantity = %d, owner's remove leaked across members", got)
	}
	if len(out.Member("owner-1").Products.Items) != 0 {
		t.Fatalf("owner items = %+v, want none", out.Member("owner-1").Products.Items)
	}
}

func TestUpdateMemberTogglesDone(t *testing.T) {
	repo, g := newTestRepo(t)
	ctx := context.Background()
	out, err := repo.UpdateMember(ctx, g.ID, model.Member{UUID: "owner-1", Nickname: "alice", Done: true})
	if err != nil {
		t.Fatalf("update member: %v", err)
	}
	if !out.Member("owner-1").Done {
		t.Fatal("done flag not persisted")
	}
	if out.Member("owner-1").Role != model.RoleOwner {
		t.Fatal("role changed through UpdateMember")
	}
}

func TestTransitions(t *testing.T) {
	repo, g := newTestRepo(t)
	ctx := context.Background()

	out, err := repo.Transition(ctx, g.ID, model.StatusCheckout, "owner-1")
	if err != nil || out.Status != model.StatusCheckout {
		t.Fatalf("checkout: %v status=%s", err, out.Status)
	}

	// reset back to cart while not completed
	out, err = repo.Transition(ctx, g.ID, model.StatusCart, "owner-1")
	if err != nil || out.Status != model.StatusCart {
		t.Fatalf("reset: %v status=%s", err, out.Status)
	}

	// forward again and complete
	if _, err := repo.Transition(ctx, g.ID, model.StatusCheckout, "owner-1"); err != nil {
		t.Fatalf("re-checkout: %v", err)
	}
	out, err = repo.Transition(ctx, g.ID, model.StatusCompleted, "owner-1")
	if err != nil || out.Status != model.StatusCompleted {
		t.Fatalf("complete: %v status=%s", err, out.Status)
	}

	// completed is terminal: leaving it is a silent no-op
	out, err = repo.Transition(ctx, g.ID, model.StatusCart, "owner-1")
	if err != nil {
		t.Fatalf("reset after complete errored: %v", err)
	}
	if out.Status != model.StatusCompleted {
		t.Fatalf("status = %s, completed group moved", out.Status)
	}
}

func TestTransitionSameStateIsNoop(t *testing.T) {
	repo, g := newTestRepo(t)
	out, err := repo.Transition(context.Background(), g.ID, model.StatusCart, "owner-1")
	if err != nil || out.Status != model.StatusCart {
		t.Fatalf("same-state transition: %v status=%s", err, out.Status)
	}
}

func TestTransitionAuthorization(t *testing.T) {
	repo, g := newTestRepo(t)
	ctx := context.Background()
	if _, err := repo.Join(ctx, g.ID, model.Member{UUID: "m1"}); err != nil {
		t.Fatalf("join: %v", err)
	}

	for _, target := range []model.GroupStatus{model.StatusCheckout, model.StatusCompleted} {
		if _, err := repo.Transition(ctx, g.ID, target, "m1"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("non-owner %s err = %v, want ErrUnauthorized", target, err)
		}
	}
	if _, err := repo.Transition(ctx, g.ID, model.StatusCheckout, "ghost"); !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("unknown actor err = %v, want ErrMemberNotFound", err)
	}

	// a rejected transition must leave the record untouched
	cur, _ := repo.Get(ctx, g.ID)
	if cur.Status != model.StatusCart {
		t.Fatalf("status = %s after rejected transitions", cur.Status)
	}
}

// conflictStore fails the first n conditional writes so the retry loop
// is exercised for real.
type conflictStore struct {
	store.GroupStore
	remaining int
}

func (s *conflictStore) Update(ctx context.Context, g *model.Group) error {
	if s.remaining > 0 {
		s.remaining--
		return store.ErrVersionConflict
	}
	return s.GroupStore.Update(ctx, g)
}

func TestUpdateRetriesOnVersionConflict(t *testing.T) {
	mem := store.NewMemoryStore()
	cs := &conflictStore{GroupStore: mem, remaining: 2}
	repo := NewGroupRepo(cs, nil)
	g, err := repo.Create(context.Background(), "cart-1", model.Member{UUID: "owner-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := repo.UpdateSelection(context.Background(), g.ID, model.SelectionUpdate{
		UUID: "owner-1", Op: model.OpAdd, VariantID: "v1", Quantity: 1,
	})
	if err != nil {
		t.Fatalf("update after conflicts: %v", err)
	}
	if out.Member("owner-1").Products.Quantity("v1") != 1 {
		t.Fatal("retried update lost the mutation")
	}
}

func TestUpdateConflictBudgetExhausted(t *testing.T) {
	mem := store.NewMemoryStore()
	cs := &conflictStore{GroupStore: mem, remaining: 1000}
	repo := NewGroupRepo(cs, nil)
	g, err := repo.Create(context.Background(), "cart-1", model.Member{UUID: "owner-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = repo.UpdateSelection(context.Background(), g.ID, model.SelectionUpdate{
		UUID: "owner-1", Op: model.OpAdd, VariantID: "v1",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

type capturingPublisher struct {
	events []queue.GroupCompletedEvent
}

func (p *capturingPublisher) PublishGroupCompleted(_ context.Context, ev queue.GroupCompletedEvent) error {
	p.events = append(p.events, ev)
	return nil
}

func TestCompletionPublishesBrokerEvent(t *testing.T) {
	pub := &capturingPublisher{}
	repo := NewGroupRepo(store.NewMemoryStore(), pub)
	ctx := context.Background()
	g, err := repo.Create(ctx, "cart-1", model.Member{UUID: "owner-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.UpdateSelection(ctx, g.ID, model.SelectionUpdate{
		UUID: "owner-1", Op: model.OpAdd, VariantID: "v1", Quantity: 3,
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := repo.Transition(ctx, g.ID, model.StatusCheckout, "owner-1"); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatal("checkout published a completion event")
	}
	if _, err := repo.Transition(ctx, g.ID, model.StatusCompleted, "owner-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("events = %d, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.GroupID != g.ID || ev.CartID != "cart-1" || ev.Members != 1 || ev.TotalQuantity != 3 {
		t.Fatalf("event = %+v", ev)
	}

	// repeating complete is a no-op and must not publish again
	if _, err := repo.Transition(ctx, g.ID, model.StatusCompleted, "owner-1"); err != nil {
		t.Fatalf("re-complete: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("no-op complete republished, events = %d", len(pub.events))
	}
}
