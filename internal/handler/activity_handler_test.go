package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-report-api/internal/dto"
	"github.com/noah-isme/activity-report-api/internal/middleware"
	"github.com/noah-isme/activity-report-api/internal/models"
	appErrors "github.com/noah-isme/activity-report-api/pkg/errors"
)

type responseEnvelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

type fakeActivityService struct {
	activity   *models.Activity
	list       []models.Activity
	err        error
	lastQuery  dto.ActivityQuery
	lastCreate dto.CreateActivityRequest
	lastID     string
	lastText   string
	weekResult *dto.SubmitWeekResult
}

func (f *fakeActivityService) Create(_ context.Context, _ *models.Actor, req dto.CreateActivityRequest) (*models.Activity, error) {
	f.lastCreate = req
	return f.activity, f.err
}

func (f *fakeActivityService) Get(_ context.Context, _ *models.Actor, id string) (*models.Activity, error) {
	f.lastID = id
	return f.activity, f.err
}

func (f *fakeActivityService) Update(_ context.Context, _ *models.Actor, id string, _ dto.UpdateActivityRequest) (*models.Activity, error) {
	f.lastID = id
	return f.activity, f.err
}

func (f *fakeActivityService) Delete(_ context.Context, _ *models.Actor, id string) error {
	f.lastID = id
	return f.err
}

func (f *fakeActivityService) List(_ context.Context, _ *models.Actor, query dto.ActivityQuery) ([]models.Activity, error) {
	f.lastQuery = query
	return f.list, f.err
}

func (f *fakeActivityService) Submit(_ context.Context, _ *models.Actor, id string) (*models.Activity, error) {
	f.lastID = id
	return f.activity, f.err
}

func (f *fakeActivityService) Resubmit(_ context.Context, _ *models.Actor, id, reply string) (*models.Activity, error) {
	f.lastID, f.lastText = id, reply
	return f.activity, f.err
}

func (f *fakeActivityService) Approve(_ context.Context, _ *models.Actor, id, comment string) (*models.Activity, error) {
	f.lastID, f.lastText = id, comment
	return f.activity, f.err
}

func (f *fakeActivityService) RequestClarification(_ context.Context, _ *models.Actor, id, comment string) (*models.Activity, error) {
	f.lastID, f.lastText = id, comment
	return f.activity, f.err
}

func (f *fakeActivityService) SubmitWeek(context.Context, *models.Actor, dto.SubmitWeekRequest) (*dto.SubmitWeekResult, error) {
	return f.weekResult, f.err
}

func (f *fakeActivityService) AddFeedback(_ context.Context, actor *models.Actor, id string, req dto.FeedbackRequest) (*models.Feedback, error) {
	f.lastID, f.lastText = id, req.Body
	if f.err != nil {
		return nil, f.err
	}
	return &models.Feedback{ActivityID: id, AuthorEmail: actor.Email, Body: req.Body}, nil
}

func (f *fakeActivityService) ListFeedback(context.Context, *models.Actor, string) ([]models.Feedback, error) {
	return nil, f.err
}

var testActor = &models.Actor{Email: "dana@example.com"}

func newTestContext(method, target string, body []byte, actor *models.Actor) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	c.Request = req
	if actor != nil {
		c.Set(middleware.ContextActorKey, actor)
	}
	return c, rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func TestActivityHandlerRequiresActor(t *testing.T) {
	h := NewActivityHandler(&fakeActivityService{})
	c, rec := newTestContext(http.MethodGet, "/activities", nil, nil)

	h.List(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActivityHandlerCreate(t *testing.T) {
	svc := &fakeActivityService{activity: &models.Activity{ID: "act-1", Status: models.ActivityStatusDraft}}
	h := NewActivityHandler(svc)
	c, rec := newTestContext(http.MethodPost, "/activities", []byte(`{"activityType":"Inspection","description":"pumps","reportDate":"2025-10-08","unitsCompleted":5.6}`), testActor)

	h.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Inspection", svc.lastCreate.ActivityType)
	assert.Equal(t, 5.6, svc.lastCreate.UnitsCompleted)
	envelope := decodeEnvelope(t, rec)
	assert.Contains(t, string(envelope.Data), `"id":"act-1"`)
}

func TestActivityHandlerCreateRejectsMalformedJSON(t *testing.T) {
	h := NewActivityHandler(&fakeActivityService{})
	c, rec := newTestContext(http.MethodPost, "/activities", []byte(`{"activityType":`), testActor)

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivityHandlerListParsesFilters(t *testing.T) {
	svc := &fakeActivityService{list: []models.Activity{{ID: "a"}, {ID: "b"}}}
	h := NewActivityHandler(svc)
	c, rec := newTestContext(http.MethodGet, "/activities?author=lee@example.com&status=Submitted,%20reviewed&from=2025-10-01&to=2025-10-31", nil, testActor)

	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lee@example.com", svc.lastQuery.Author)
	assert.Equal(t, []models.ActivityStatus{models.ActivityStatusSubmitted, models.ActivityStatusReviewed}, svc.lastQuery.Status)
	require.NotNil(t, svc.lastQuery.From)
	assert.Equal(t, "2025-10-01", svc.lastQuery.From.Format(dto.DateLayout))
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, float64(2), envelope.Meta["count"])
}

func TestActivityHandlerListRejectsBadDate(t *testing.T) {
	h := NewActivityHandler(&fakeActivityService{})
	c, rec := newTestContext(http.MethodGet, "/activities?from=yesterday", nil, testActor)

	h.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivityHandlerMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{appErrors.ErrNotFound, http.StatusNotFound},
		{appErrors.ErrForbidden, http.StatusForbidden},
		{appErrors.ErrInvalidTransition, http.StatusConflict},
		{appErrors.ErrTranslationFailure, http.StatusUnprocessableEntity},
		{appErrors.ErrBackendUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		h := NewActivityHandler(&fakeActivityService{err: tc.err})
		c, rec := newTestContext(http.MethodPost, "/activities/act-1/submit", nil, testActor)
		c.Params = gin.Params{{Key: "id", Value: "act-1"}}

		h.Submit(c)

		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		envelope := decodeEnvelope(t, rec)
		require.NotNil(t, envelope.Error)
		assert.Equal(t, appErrors.FromError(tc.err).Code, envelope.Error.Code)
	}
}

func TestActivityHandlerBackendUnavailableSetsRetryAfter(t *testing.T) {
	h := NewActivityHandler(&fakeActivityService{err: appErrors.ErrBackendUnavailable})
	c, rec := newTestContext(http.MethodGet, "/activities/act-1", nil, testActor)
	c.Params = gin.Params{{Key: "id", Value: "act-1"}}

	h.Get(c)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestActivityHandlerApproveWithoutBody(t *testing.T) {
	svc := &fakeActivityService{activity: &models.Activity{ID: "act-1", Status: models.ActivityStatusReviewed}}
	h := NewActivityHandler(svc)
	c, rec := newTestContext(http.MethodPost, "/activities/act-1/approve", nil, testActor)
	c.Params = gin.Params{{Key: "id", Value: "act-1"}}

	h.Approve(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "act-1", svc.lastID)
	assert.Empty(t, svc.lastText)
}

func TestActivityHandlerRequestClarificationPassesComment(t *testing.T) {
	svc := &fakeActivityService{activity: &models.Activity{ID: "act-1"}}
	h := NewActivityHandler(svc)
	c, rec := newTestContext(http.MethodPost, "/activities/act-1/request-clarification", []byte(`{"comment":"which pumps?"}`), testActor)
	c.Params = gin.Params{{Key: "id", Value: "act-1"}}

	h.RequestClarification(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "which pumps?", svc.lastText)
}

func TestActivityHandlerSubmitWeek(t *testing.T) {
	svc := &fakeActivityService{weekResult: &dto.SubmitWeekResult{From: "2025-10-04", To: "2025-10-10", Submitted: 3, Skipped: 1}}
	h := NewActivityHandler(svc)
	c, rec := newTestContext(http.MethodPost, "/activities/submit-week", []byte(`{"weekEnding":"2025-10-10"}`), testActor)

	h.SubmitWeek(c)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	var result dto.SubmitWeekResult
	require.NoError(t, json.Unmarshal(envelope.Data, &result))
	assert.Equal(t, 3, result.Submitted)
	assert.Equal(t, 1, result.Skipped)
}

func TestActivityHandlerDelete(t *testing.T) {
	svc := &fakeActivityService{}
	h := NewActivityHandler(svc)
	c, _ := newTestContext(http.MethodDelete, "/activities/act-1", nil, testActor)
	c.Params = gin.Params{{Key: "id", Value: "act-1"}}

	h.Delete(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "act-1", svc.lastID)
}

func TestActivityHandlerAddFeedback(t *testing.T) {
	svc := &fakeActivityService{}
	h := NewActivityHandler(svc)
	c, rec := newTestContext(http.MethodPost, "/activities/act-1/feedback", []byte(`{"body":"more detail"}`), testActor)
	c.Params = gin.Params{{Key: "id", Value: "act-1"}}

	h.AddFeedback(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "more detail", svc.lastText)
}
