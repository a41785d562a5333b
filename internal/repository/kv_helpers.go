package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noah-isme/activity-report-api/pkg/kv"
)

// KV key namespaces. Prefixes stay distinct after file-name sanitising.
const (
	activityKeyPrefix          = "activity:"
	userActivitiesKeyPrefix    = "user_activities:"
	feedbackKeyPrefix          = "feedback:"
	notificationKeyPrefix      = "notification:"
	userNotificationsKeyPrefix = "user_notifications:"
	auditKeyPrefix             = "audit:"
)

func readJSON(ctx context.Context, store kv.Store, key string, dest interface{}) error {
	raw, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func writeJSON(ctx context.Context, store kv.Store, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return store.Set(ctx, key, raw)
}

// readIndex loads an id list; an absent index is empty.
func readIndex(ctx context.Context, store kv.Store, key string) ([]string, error) {
	var ids []string
	if err := readJSON(ctx, store, key, &ids); err != nil {
		if errors.Is(err, ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}
	return ids, nil
}

// appendIndex adds id unless already present. The read-modify-write is not
// guarded against concurrent writers of the same index.
func appendIndex(ctx context.Context, store kv.Store, key, id string) error {
	ids, err := readIndex(ctx, store, key)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return writeJSON(ctx, store, key, append(ids, id))
}

func removeIndex(ctx context.Context, store kv.Store, key, id string) error {
	ids, err := readIndex(ctx, store, key)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(ids) {
		return nil
	}
	return writeJSON(ctx, store, key, kept)
}
