package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/group-cart/internal/model"
)

// keyPrefix namespaces group records in Redis and matches the layout
// other tooling expects: one value per `group_<id>` key.
const keyPrefix = "group_"

func groupKey(id string) string { return keyPrefix + id }

// RedisStore persists group records as JSON strings in Redis, one key
// per group. Conditional updates run inside a WATCH/MULTI transaction
// so a record rewritten between read and write fails the whole update
// instead of clobbering the concurrent change.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore returns a store backed by the given client. The client
// must be non-nil and already reachable.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	if rdb == nil {
		panic("nil redis client passed to NewRedisStore")
	}
	return &RedisStore{rdb: rdb}
}

// Get fetches and decodes the record for id.
func (s *RedisStore) Get(ctx context.Context, id string) (*model.Group, error) {
	raw, err := s.rdb.Get(ctx, groupKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", id, err)
	}
	var g model.Group
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode group %s: %w", id, err)
	}
	return &g, nil
}

// Create writes the record unconditionally at version 1.
func (s *RedisStore) Create(ctx context.Context, g *model.Group) error {
	g.Version = 1
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode group %s: %w", g.ID, err)
	}
	if err := s.rdb.Set(ctx, groupKey(g.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("store group %s: %w", g.ID, err)
	}
	return nil
}

// Update rewrites the record only if its stored version still matches
// g.Version. The WATCH aborts the MULTI when any other writer touches
// the key mid-flight, which we surface as ErrVersionConflict so the
// repository can re-run its read-modify-write cycle.
func (s *RedisStore) Update(ctx context.Context, g *model.Group) error {
	key := groupKey(g.ID)
	expected := g.Version

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var cur model.Group
		if err := json.Unmarshal(raw, &cur); err != nil {
			return fmt.Errorf("decode group %s: %w", g.ID, err)
		}
		if cur.Version != expected {
			return ErrVersionConflict
		}
		g.Version = expected + 1
		next, err := json.Marshal(g)
		if err != nil {
			return fmt.Errorf("encode group %s: %w", g.ID, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		g.Version = expected // restore so the caller can retry from a fresh read
		return ErrVersionConflict
	}
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrVersionConflict) {
		return fmt.Errorf("update group %s: %w", g.ID, err)
	}
	return err
}
