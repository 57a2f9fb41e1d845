package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iliyamo/group-cart/internal/model"
)

// MySQLStore keeps group records in a single key-value table: id as the
// primary key, the JSON-serialized record as the value, and a mirrored
// version column backing the conditional write. Used when the record
// store must outlive the Redis deployment; the contract is identical.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore returns a store bound to db and creates the backing
// table when missing.
func NewMySQLStore(ctx context.Context, db *sql.DB) (*MySQLStore, error) {
	if db == nil {
		return nil, errors.New("nil db passed to NewMySQLStore")
	}
	const schema = `CREATE TABLE IF NOT EXISTS group_records (
		id         VARCHAR(64)  NOT NULL,
		version    BIGINT UNSIGNED NOT NULL,
		data       MEDIUMTEXT   NOT NULL,
		updated_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id)
	) CHARACTER SET utf8mb4`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure group_records table: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

// Get fetches and decodes the record for id.
func (s *MySQLStore) Get(ctx context.Context, id string) (*model.Group, error) {
	const q = `SELECT data FROM group_records WHERE id = ?`
	var raw []byte
	err := s.db.QueryRowContext(ctx, q, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
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

// Create inserts the record at version 1.
func (s *MySQLStore) Create(ctx context.Context, g *model.Group) error {
	g.Version = 1
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode group %s: %w", g.ID, err)
	}
	const q = `INSERT INTO group_records (id, version, data) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, g.ID, g.Version, raw); err != nil {
		return fmt.Errorf("store group %s: %w", g.ID, err)
	}
	return nil
}

// Update rewrites the record only when the version column still holds
// the version the record was read at.
func (s *MySQLStore) Update(ctx context.Context, g *model.Group) error {
	expected := g.Version
	g.Version = expected + 1
	raw, err := json.Marshal(g)
	if err != nil {
		g.Version = expected
		return fmt.Errorf("encode group %s: %w", g.ID, err)
	}
	const q = `UPDATE group_records SET data = ?, version = ? WHERE id = ? AND version = ?`
	res, err := s.db.ExecContext(ctx, q, raw, g.Version, g.ID, expected)
	if err != nil {
		g.Version = expected
		return fmt.Errorf("update group %s: %w", g.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		g.Version = expected
		return fmt.Errorf("update group %s: %w", g.ID, err)
	}
	if n == 1 {
		return nil
	}
	g.Version = expected
	// Zero rows: either the record is gone or another writer won.
	const probe = `SELECT 1 FROM group_records WHERE id = ?`
	var one int
	switch err := s.db.QueryRowContext(ctx, probe, g.ID).Scan(&one); {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("update group %s: %w", g.ID, err)
	default:
		return ErrVersionConflict
	}
}
