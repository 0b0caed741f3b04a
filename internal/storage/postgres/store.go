// Package postgres persists blobs in a single PostgreSQL table. The store is
// pure I/O; it knows nothing about what the blobs contain.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/lib/pq"

	"flock/internal/storage"
	"flock/pkg/platform/sentinel"
)

const defaultTable = "kv_blobs"

var _ storage.BatchStore = (*Store)(nil)

type Store struct {
	db    *sql.DB
	table string
}

type Option func(*Store)

// WithTable overrides the blob table name. The name is quoted, never
// interpolated raw.
func WithTable(name string) Option {
	return func(s *Store) {
		s.table = name
	}
}

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, table: defaultTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema creates the blob table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, pq.QuoteIdentifier(s.table))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure kv schema: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, pq.QuoteIdentifier(s.table))
	var value []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.upsertQuery(), key, value); err != nil {
		return fmt.Errorf("set blob %s: %w", key, err)
	}
	return nil
}

// SetBatch writes all values in one SQL transaction, in key order so
// concurrent writers lock rows in the same sequence.
func (s *Store) SetBatch(ctx context.Context, values map[string][]byte) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin blob batch: %w", err)
	}
	query := s.upsertQuery()
	for _, key := range slices.Sorted(maps.Keys(values)) {
		if _, err := dbTx.ExecContext(ctx, query, key, values[key]); err != nil {
			_ = dbTx.Rollback()
			return fmt.Errorf("set blob %s: %w", key, err)
		}
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit blob batch: %w", err)
	}
	return nil
}

func (s *Store) upsertQuery() string {
	return fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, pq.QuoteIdentifier(s.table))
}
