package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-report-api/internal/dto"
	"github.com/noah-isme/activity-report-api/internal/models"
	"github.com/noah-isme/activity-report-api/internal/service"
)

type fakeNotificationService struct {
	unreadOnly bool
	limit      int
}

func (f *fakeNotificationService) List(_ context.Context, _ *models.Actor, unreadOnly bool, limit int) ([]models.Notification, error) {
	f.unreadOnly, f.limit = unreadOnly, limit
	return []models.Notification{{ID: "n1"}}, nil
}

func (f *fakeNotificationService) UnreadCount(context.Context, *models.Actor) (int, error) {
	return 4, nil
}

func (f *fakeNotificationService) MarkRead(context.Context, *models.Actor, string) error {
	return nil
}

func (f *fakeNotificationService) MarkAllRead(context.Context, *models.Actor) (int, error) {
	return 2, nil
}

func TestNotificationHandlerList(t *testing.T) {
	svc := &fakeNotificationService{}
	h := NewNotificationHandler(svc)
	c, rec := newTestContext(http.MethodGet, "/notifications?unread=true&limit=20", nil, testActor)

	h.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.unreadOnly)
	assert.Equal(t, 20, svc.limit)
}

func TestNotificationHandlerRejectsBadLimit(t *testing.T) {
	h := NewNotificationHandler(&fakeNotificationService{})
	c, rec := newTestContext(http.MethodGet, "/notifications?limit=-3", nil, testActor)

	h.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationHandlerUnreadCount(t *testing.T) {
	h := NewNotificationHandler(&fakeNotificationService{})
	c, rec := newTestContext(http.MethodGet, "/notifications/unread-count", nil, testActor)

	h.UnreadCount(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var body dto.UnreadCountResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &body))
	assert.Equal(t, 4, body.Unread)
}

type fakeAuditService struct {
	filter models.AuditFilter
}

func (f *fakeAuditService) List(_ context.Context, _ *models.Actor, filter models.AuditFilter) ([]models.AuditEntry, error) {
	f.filter = filter
	return nil, nil
}

func TestAuditHandlerParsesFilter(t *testing.T) {
	svc := &fakeAuditService{}
	h := NewAuditHandler(svc)
	c, rec := newTestContext(http.MethodGet, "/audit?entityType=activity&entityId=act-1&actor=boss@example.com&from=2025-10-01T00:00:00Z&to=2025-10-31&limit=5", nil, testActor)

	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "activity", svc.filter.EntityType)
	assert.Equal(t, "act-1", svc.filter.EntityID)
	assert.Equal(t, "boss@example.com", svc.filter.ActorEmail)
	require.NotNil(t, svc.filter.From)
	assert.Equal(t, time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC), *svc.filter.From)
	require.NotNil(t, svc.filter.To)
	assert.Equal(t, 5, svc.filter.Limit)

	// A bare end date covers the whole day.
	lastEntry := time.Date(2025, time.October, 31, 23, 59, 59, 0, time.UTC)
	assert.False(t, lastEntry.After(*svc.filter.To))
	assert.True(t, svc.filter.To.Before(time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)))
}

func TestAuditHandlerDateOnlyFromStartsAtMidnight(t *testing.T) {
	svc := &fakeAuditService{}
	h := NewAuditHandler(svc)
	c, rec := newTestContext(http.MethodGet, "/audit?from=2025-10-01&to=2025-10-01T12:00:00Z", nil, testActor)

	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.filter.From)
	assert.Equal(t, time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC), *svc.filter.From)
	require.NotNil(t, svc.filter.To)
	assert.Equal(t, time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC), *svc.filter.To)
}

type fakePreferenceService struct {
	prefs models.Preferences
}

func (f *fakePreferenceService) Get(context.Context, string) (models.Preferences, error) {
	return f.prefs, nil
}

func (f *fakePreferenceService) Update(_ context.Context, _ *models.Actor, req dto.UpdatePreferencesRequest) (models.Preferences, error) {
	f.prefs.EmailNotifications = *req.EmailNotifications
	return f.prefs, nil
}

func TestPreferenceHandlerUpdate(t *testing.T) {
	svc := &fakePreferenceService{prefs: models.DefaultPreferences()}
	h := NewPreferenceHandler(svc)
	c, rec := newTestContext(http.MethodPut, "/me/preferences", []byte(`{"emailNotifications":false}`), testActor)

	h.Update(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, svc.prefs.EmailNotifications)
}

type pingerStub struct{ err error }

func (p pingerStub) Ping(context.Context) error { return p.err }

type failureSourceStub []service.FailureRecord

func (f failureSourceStub) Failures() []service.FailureRecord { return f }

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(nil, pingerStub{err: errors.New("dial tcp: refused")}, nil)
	c, rec := newTestContext(http.MethodGet, "/ready", nil, nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h = NewMetricsHandler(nil, pingerStub{}, nil)
	c, rec = newTestContext(http.MethodGet, "/ready", nil, nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsHandlerSideEffectFailures(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), nil, failureSourceStub{{JobID: "j1", Effect: service.EffectEmail}})
	c, rec := newTestContext(http.MethodGet, "/side-effects/failures", nil, testActor)

	h.SideEffectFailures(c)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, float64(1), envelope.Meta["count"])
	assert.Contains(t, string(envelope.Data), `"effect":"email"`)
}
