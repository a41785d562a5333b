package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLStore keeps simple key-value data in the kv_entries table of a relational backend.
type SQLStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps db.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Get reads one entry.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	query := s.db.Rebind(`SELECT entry_value FROM kv_entries WHERE entry_key = ?`)
	if err := s.db.GetContext(ctx, &value, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get kv entry %s: %w", key, err)
	}
	return value, nil
}

// Set upserts one entry.
func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	query := s.db.Rebind(`INSERT INTO kv_entries (entry_key, entry_value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT (entry_key) DO UPDATE SET entry_value = excluded.entry_value, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("set kv entry %s: %w", key, err)
	}
	return nil
}

// List returns keys under prefix in lexical order.
func (s *SQLStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	query := s.db.Rebind(`SELECT entry_key FROM kv_entries WHERE entry_key LIKE ? ESCAPE '\' ORDER BY entry_key`)
	if err := s.db.SelectContext(ctx, &keys, query, escapeLike(prefix)+"%"); err != nil {
		return nil, fmt.Errorf("list kv entries %s: %w", prefix, err)
	}
	return keys, nil
}

// Delete removes one entry; zero affected rows is fine.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	query := s.db.Rebind(`DELETE FROM kv_entries WHERE entry_key = ?`)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete kv entry %s: %w", key, err)
	}
	return nil
}

func escapeLike(raw string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(raw)
}
