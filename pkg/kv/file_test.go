package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "activity_123", SanitizeKey("activity:123"))
	assert.Equal(t, "user_activities_jane.doe@example.com", SanitizeKey("user_activities:jane.doe@example.com"))
	assert.Equal(t, "a_b_c", SanitizeKey("a/b c"))
	assert.Equal(t, SanitizeKey("x:y/z"), SanitizeKey(SanitizeKey("x:y/z")))
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(ctx, "activity:1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "activity:1", []byte(`{"id":"1"}`)))
	require.NoError(t, store.Set(ctx, "activity:1", []byte(`{"id":"1","v":2}`)))

	value, err := store.Get(ctx, "activity:1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","v":2}`, string(value))
}

func TestFileStoreListByPrefix(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "activity:b", []byte("b")))
	require.NoError(t, store.Set(ctx, "activity:a", []byte("a")))
	require.NoError(t, store.Set(ctx, "feedback:a", []byte("f")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-leftover"), []byte("x"), 0o644))

	keys, err := store.List(ctx, "activity:")
	require.NoError(t, err)
	assert.Equal(t, []string{"activity_a", "activity_b"}, keys)

	// Listed keys are usable as-is.
	value, err := store.Get(ctx, keys[0])
	require.NoError(t, err)
	assert.Equal(t, "a", string(value))

	require.NoError(t, store.Set(ctx, "activity:c", []byte("c")))
	keys, err = store.List(ctx, "activity:")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestFileStoreDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "missing:key"))
	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "k"))

	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreRejectsReservedNames(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, store.Set(context.Background(), "..", []byte("x")))
	assert.Error(t, store.Set(context.Background(), "", []byte("x")))
}
