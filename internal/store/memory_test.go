package store

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/group-cart/internal/model"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	g := &model.Group{ID: "g1", CartID: "c1", Status: model.StatusCart,
		Members: []model.Member{{UUID: "u1", Role: model.RoleOwner}}}
	if err := s.Create(ctx, g); err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.Version != 1 {
		t.Fatalf("version after create = %d, want 1", g.Version)
	}

	got, err := s.Get(ctx, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CartID != "c1" || len(got.Members) != 1 {
		t.Fatalf("got %+v", got)
	}

	// mutating the returned copy must not affect the stored record
	got.Status = model.StatusCompleted
	again, _ := s.Get(ctx, "g1")
	if again.Status != model.StatusCart {
		t.Fatal("Get returned an aliased record")
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	g := &model.Group{ID: "nope", Version: 1}
	if err := s.Update(context.Background(), g); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreVersionConflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Create(ctx, &model.Group{ID: "g1", Status: model.StatusCart}); err != nil {
		t.Fatalf("create: %v", err)
	}

	a, _ := s.Get(ctx, "g1")
	b, _ := s.Get(ctx, "g1")

	a.Status = model.StatusCheckout
	if err := s.Update(ctx, a); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if a.Version != 2 {
		t.Fatalf("version after update = %d, want 2", a.Version)
	}

	b.Status = model.StatusCompleted
	if err := s.Update(ctx, b); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale update err = %v, want ErrVersionConflict", err)
	}

	cur, _ := s.Get(ctx, "g1")
	if cur.Status != model.StatusCheckout {
		t.Fatalf("status = %s, stale writer clobbered the record", cur.Status)
	}
}
