package service

import (
	"errors"

	"github.com/noah-isme/activity-report-api/internal/repository"
	"github.com/noah-isme/activity-report-api/internal/translator"
	appErrors "github.com/noah-isme/activity-report-api/pkg/errors"
)

// storageError maps repository and translator sentinels into the error
// catalogue. Anything unrecognised is treated as an unavailable backend.
func storageError(err error, message string) error {
	if err == nil {
		return nil
	}
	var typed *appErrors.Error
	switch {
	case errors.As(err, &typed):
		return typed
	case errors.Is(err, repository.ErrNotFound):
		return appErrors.ErrNotFound
	case errors.Is(err, translator.ErrAuthorNotResolved):
		return appErrors.WrapAs(err, appErrors.ErrTranslationFailure, "activity author is not a known employee")
	case errors.Is(err, translator.ErrValueOutOfRange):
		return appErrors.WrapAs(err, appErrors.ErrValidation, "numeric field out of range")
	default:
		return appErrors.WrapAs(err, appErrors.ErrBackendUnavailable, message)
	}
}
