package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-report-api/internal/models"
	"github.com/noah-isme/activity-report-api/internal/translator"
	"github.com/noah-isme/activity-report-api/pkg/kv"
)

// ActivityKVRepository stores each activity as one document plus a per-author
// id index. Deletes are physical: document, feedback and index entry go.
type ActivityKVRepository struct {
	store  kv.Store
	logger *zap.Logger
}

var _ ActivityRepository = (*ActivityKVRepository)(nil)

// NewActivityKVRepository constructs the repository.
func NewActivityKVRepository(store kv.Store, logger *zap.Logger) *ActivityKVRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityKVRepository{store: store, logger: logger}
}

func activityKey(id string) string          { return activityKeyPrefix + id }
func userActivitiesKey(email string) string { return userActivitiesKeyPrefix + email }
func feedbackKey(activityID string) string  { return feedbackKeyPrefix + activityID }

// Create writes the document, then appends the id to the author index.
func (r *ActivityKVRepository) Create(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if err := r.put(ctx, activity); err != nil {
		return err
	}
	if err := appendIndex(ctx, r.store, userActivitiesKey(activity.AuthorEmail), activity.ID); err != nil {
		return fmt.Errorf("index activity %s: %w", activity.ID, err)
	}
	return nil
}

// Get reads one document.
func (r *ActivityKVRepository) Get(ctx context.Context, id string) (*models.Activity, error) {
	raw, err := r.store.Get(ctx, activityKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get activity: %w", err)
	}
	activity, err := translator.DecodeDocument(raw)
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

// Update overwrites an existing document.
func (r *ActivityKVRepository) Update(ctx context.Context, activity *models.Activity) error {
	if _, err := r.Get(ctx, activity.ID); err != nil {
		return err
	}
	return r.put(ctx, activity)
}

// Delete removes the document, its feedback and its index entry.
func (r *ActivityKVRepository) Delete(ctx context.Context, id string) error {
	activity, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, activityKey(id)); err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	if err := r.store.Delete(ctx, feedbackKey(id)); err != nil {
		return fmt.Errorf("delete feedback: %w", err)
	}
	if err := removeIndex(ctx, r.store, userActivitiesKey(activity.AuthorEmail), id); err != nil {
		return fmt.Errorf("unindex activity %s: %w", id, err)
	}
	return nil
}

// List scans the author index when the filter names an author, every
// activity document otherwise, and filters in memory.
func (r *ActivityKVRepository) List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, error) {
	var keys []string
	if filter.AuthorEmail != "" {
		ids, err := readIndex(ctx, r.store, userActivitiesKey(filter.AuthorEmail))
		if err != nil {
			return nil, fmt.Errorf("list activities: %w", err)
		}
		for _, id := range ids {
			keys = append(keys, activityKey(id))
		}
	} else {
		listed, err := r.store.List(ctx, activityKeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("list activities: %w", err)
		}
		keys = listed
	}

	result := make([]models.Activity, 0, len(keys))
	for _, key := range keys {
		raw, err := r.store.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			r.logger.Warn("activity index points at missing document", zap.String("key", key))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list activities: %w", err)
		}
		activity, err := translator.DecodeDocument(raw)
		if err != nil {
			r.logger.Warn("skipping unreadable activity document", zap.String("key", key), zap.Error(err))
			continue
		}
		if filter.Matches(activity) {
			result = append(result, activity)
		}
	}
	sortActivities(result)
	return result, nil
}

// AddFeedback appends to the activity's feedback list.
func (r *ActivityKVRepository) AddFeedback(ctx context.Context, feedback *models.Feedback) error {
	if feedback.ID == "" {
		feedback.ID = uuid.NewString()
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now().UTC()
	}
	list, err := r.ListFeedback(ctx, feedback.ActivityID)
	if err != nil {
		return err
	}
	if err := writeJSON(ctx, r.store, feedbackKey(feedback.ActivityID), append(list, *feedback)); err != nil {
		return fmt.Errorf("create feedback: %w", err)
	}
	return nil
}

// ListFeedback returns the activity's feedback in insertion order.
func (r *ActivityKVRepository) ListFeedback(ctx context.Context, activityID string) ([]models.Feedback, error) {
	list := []models.Feedback{}
	if err := readJSON(ctx, r.store, feedbackKey(activityID), &list); err != nil {
		if errors.Is(err, ErrNotFound) {
			return []models.Feedback{}, nil
		}
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	return list, nil
}

func (r *ActivityKVRepository) put(ctx context.Context, activity *models.Activity) error {
	translator.ApplyWeek(activity)
	raw, err := translator.EncodeDocument(*activity)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, activityKey(activity.ID), raw); err != nil {
		return fmt.Errorf("store activity: %w", err)
	}
	return nil
}
