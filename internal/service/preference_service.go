package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-report-api/internal/dto"
	"github.com/noah-isme/activity-report-api/internal/models"
	appErrors "github.com/noah-isme/activity-report-api/pkg/errors"
	"github.com/noah-isme/activity-report-api/pkg/kv"
)

const preferencesKeyPrefix = "preferences:"

// PreferenceService reads and writes per-recipient delivery preferences as
// small KV documents.
type PreferenceService struct {
	store     kv.Store
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPreferenceService constructs the service.
func NewPreferenceService(store kv.Store, validate *validator.Validate, logger *zap.Logger) *PreferenceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferenceService{store: store, validator: validate, logger: logger}
}

// Get returns the stored preferences or the defaults when none are stored.
func (s *PreferenceService) Get(ctx context.Context, email string) (models.Preferences, error) {
	raw, err := s.store.Get(ctx, preferencesKeyPrefix+email)
	if errors.Is(err, kv.ErrNotFound) {
		return models.DefaultPreferences(), nil
	}
	if err != nil {
		return models.Preferences{}, appErrors.WrapAs(err, appErrors.ErrBackendUnavailable, "failed to load preferences")
	}
	prefs := models.DefaultPreferences()
	if err := json.Unmarshal(raw, &prefs); err != nil {
		s.logger.Warn("unreadable preferences, using defaults", zap.String("email", email), zap.Error(err))
		return models.DefaultPreferences(), nil
	}
	return prefs, nil
}

// Update applies req to the actor's preferences.
func (s *PreferenceService) Update(ctx context.Context, actor *models.Actor, req dto.UpdatePreferencesRequest) (models.Preferences, error) {
	if actor == nil {
		return models.Preferences{}, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return models.Preferences{}, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	prefs, err := s.Get(ctx, actor.Email)
	if err != nil {
		return models.Preferences{}, err
	}
	prefs.EmailNotifications = *req.EmailNotifications

	raw, err := json.Marshal(prefs)
	if err != nil {
		return models.Preferences{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode preferences")
	}
	if err := s.store.Set(ctx, preferencesKeyPrefix+actor.Email, raw); err != nil {
		return models.Preferences{}, appErrors.WrapAs(fmt.Errorf("store preferences: %w", err), appErrors.ErrBackendUnavailable, "failed to save preferences")
	}
	return prefs, nil
}
