// Package kv defines the key-value storage contract shared by every backend
// and its file, Redis and SQL implementations.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("kv: key not found")

// Store is the uniform get/set/list/delete contract.
//
// Operations may block on disk or network I/O and impose no timeout of their
// own. Multi-key sequences are not atomic.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// List returns the keys starting with prefix, sorted. Every call re-scans.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
