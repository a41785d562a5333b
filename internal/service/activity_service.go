package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/activity-report-api/internal/dto"
	"github.com/noah-isme/activity-report-api/internal/models"
	"github.com/noah-isme/activity-report-api/internal/translator"
	appErrors "github.com/noah-isme/activity-report-api/pkg/errors"
	"github.com/noah-isme/activity-report-api/pkg/logger"
)

type activityStore interface {
	Create(ctx context.Context, activity *models.Activity) error
	Get(ctx context.Context, id string) (*models.Activity, error)
	Update(ctx context.Context, activity *models.Activity) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, error)
	AddFeedback(ctx context.Context, feedback *models.Feedback) error
	ListFeedback(ctx context.Context, activityID string) ([]models.Feedback, error)
}

type eventDispatcher interface {
	Dispatch(ctx context.Context, event Event)
}

type transitionRecorder interface {
	RecordTransition(from, to string)
}

type noopTransitions struct{}

func (noopTransitions) RecordTransition(string, string) {}

const defaultSubmitConcurrency = 4

// ActivityService is the lifecycle engine. It owns every status change and
// hands side effects to the dispatcher only after the primary write succeeded.
type ActivityService struct {
	repo        activityStore
	dispatcher  eventDispatcher
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     transitionRecorder
	now         func() time.Time
	concurrency int
}

// ActivityServiceOption configures the service.
type ActivityServiceOption func(*ActivityService)

// WithActivityMetrics counts status transitions.
func WithActivityMetrics(recorder transitionRecorder) ActivityServiceOption {
	return func(s *ActivityService) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithActivityClock overrides time.Now.
func WithActivityClock(now func() time.Time) ActivityServiceOption {
	return func(s *ActivityService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSubmitConcurrency bounds parallel writes during SubmitWeek.
func WithSubmitConcurrency(n int) ActivityServiceOption {
	return func(s *ActivityService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewActivityService constructs the engine with defaults.
func NewActivityService(repo activityStore, dispatcher eventDispatcher, validate *validator.Validate, logger *zap.Logger, opts ...ActivityServiceOption) *ActivityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ActivityService{
		repo:        repo,
		dispatcher:  dispatcher,
		validator:   validate,
		logger:      logger,
		metrics:     noopTransitions{},
		now:         func() time.Time { return time.Now().UTC() },
		concurrency: defaultSubmitConcurrency,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create stores a new draft authored by the actor.
func (s *ActivityService) Create(ctx context.Context, actor *models.Actor, req dto.CreateActivityRequest) (*models.Activity, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	reportDate, err := parseDate(req.ReportDate)
	if err != nil {
		return nil, err
	}

	now := s.now()
	activity := &models.Activity{
		AuthorEmail:        actor.Email,
		Department:         models.Ref{Name: strings.TrimSpace(req.Department)},
		ActivityType:       models.Ref{Name: strings.TrimSpace(req.ActivityType)},
		Description:        strings.TrimSpace(req.Description),
		UnitsCompleted:     req.UnitsCompleted,
		PercentageComplete: req.PercentageComplete,
		Category:           trimmedOrNil(req.Category),
		ReportDate:         reportDate,
		Status:             models.ActivityStatusDraft,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	translator.ApplyWeek(activity)

	if err := s.repo.Create(ctx, activity); err != nil {
		return nil, storageError(err, "failed to create activity")
	}
	s.dispatch(ctx, Event{Action: models.AuditActionCreate, Activity: *activity, Actor: *actor, To: models.ActivityStatusDraft})
	return activity, nil
}

// Get returns an activity visible to the actor.
func (s *ActivityService) Get(ctx context.Context, actor *models.Actor, id string) (*models.Activity, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	activity, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, activity) {
		return nil, appErrors.ErrForbidden
	}
	return activity, nil
}

// Update patches content fields. Only the author may edit, and only drafts.
func (s *ActivityService) Update(ctx context.Context, actor *models.Actor, id string, req dto.UpdateActivityRequest) (*models.Activity, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	activity, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if activity.AuthorEmail != actor.Email {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the author may edit an activity")
	}
	if activity.Status != models.ActivityStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot edit an activity in status %s", activity.Status))
	}

	changed, err := applyPatch(activity, req)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return activity, nil
	}
	activity.UpdatedAt = s.now()
	translator.ApplyWeek(activity)

	if err := s.repo.Update(ctx, activity); err != nil {
		return nil, storageError(err, "failed to update activity")
	}
	s.dispatch(ctx, Event{
		Action:   models.AuditActionUpdate,
		Activity: *activity,
		Actor:    *actor,
		Changes:  map[string]interface{}{"fields": changed},
	})
	return activity, nil
}

// Delete removes an activity. Authors may delete their drafts; administrators
// may delete any activity.
func (s *ActivityService) Delete(ctx context.Context, actor *models.Actor, id string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	activity, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin {
		if activity.AuthorEmail != actor.Email {
			return appErrors.ErrForbidden
		}
		if activity.Status != models.ActivityStatusDraft {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "only draft activities can be deleted by their author")
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return storageError(err, "failed to delete activity")
	}
	s.dispatch(ctx, Event{Action: models.AuditActionDelete, Activity: *activity, Actor: *actor, From: activity.Status})
	return nil
}

// Submit moves a draft to submitted. On an activity awaiting clarification it
// acts as a resubmission without a reply.
func (s *ActivityService) Submit(ctx context.Context, actor *models.Actor, id string) (*models.Activity, error) {
	activity, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	switch activity.Status {
	case models.ActivityStatusDraft:
		return s.submitDraft(ctx, actor, activity)
	case models.ActivityStatusNeedsClarification:
		return s.resubmit(ctx, actor, activity, "")
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot submit an activity in status %s", activity.Status))
	}
}

// Resubmit answers a clarification request with an optional reply and
// returns the activity to submitted.
func (s *ActivityService) Resubmit(ctx context.Context, actor *models.Actor, id, reply string) (*models.Activity, error) {
	activity, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if activity.Status != models.ActivityStatusNeedsClarification {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot resubmit an activity in status %s", activity.Status))
	}
	return s.resubmit(ctx, actor, activity, strings.TrimSpace(reply))
}

// Approve marks a submitted activity reviewed, with an optional comment.
func (s *ActivityService) Approve(ctx context.Context, actor *models.Actor, id, comment string) (*models.Activity, error) {
	activity, err := s.loadForReview(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	comment = strings.TrimSpace(comment)
	if err := s.commitReview(ctx, activity, models.ActivityStatusReviewed); err != nil {
		return nil, err
	}
	// The approval stands when its comment cannot be stored. The comment
	// still reaches the author through the review event.
	if comment != "" {
		if err := s.addFeedback(ctx, actor, activity.ID, comment); err != nil {
			logger.FromContext(ctx, s.logger).Warn("approval comment not stored",
				zap.String("activity_id", activity.ID), zap.Error(err))
		}
	}
	s.dispatchReview(ctx, actor, activity, comment)
	return activity, nil
}

// RequestClarification sends a submitted activity back to its author. The
// comment is mandatory and is stored before the status changes.
func (s *ActivityService) RequestClarification(ctx context.Context, actor *models.Actor, id, comment string) (*models.Activity, error) {
	activity, err := s.loadForReview(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "a feedback comment is required to request clarification")
	}
	if err := s.addFeedback(ctx, actor, activity.ID, comment); err != nil {
		return nil, err
	}
	if err := s.commitReview(ctx, activity, models.ActivityStatusNeedsClarification); err != nil {
		return nil, err
	}
	s.dispatchReview(ctx, actor, activity, comment)
	return activity, nil
}

// AddFeedback attaches a comment from the author or an administrator.
func (s *ActivityService) AddFeedback(ctx context.Context, actor *models.Actor, id string, req dto.FeedbackRequest) (*models.Feedback, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "feedback body is required")
	}
	activity, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, activity) {
		return nil, appErrors.ErrForbidden
	}
	feedback := &models.Feedback{
		ActivityID:     activity.ID,
		AuthorEmail:    actor.Email,
		Body:           body,
		IsAdminComment: actor.IsAdmin,
		CreatedAt:      s.now(),
	}
	if err := s.repo.AddFeedback(ctx, feedback); err != nil {
		return nil, storageError(err, "failed to store feedback")
	}
	s.dispatch(ctx, Event{Action: models.AuditActionFeedback, Activity: *activity, Actor: *actor, Comment: body})
	return feedback, nil
}

// ListFeedback returns an activity's feedback for the author or administrators.
func (s *ActivityService) ListFeedback(ctx context.Context, actor *models.Actor, id string) ([]models.Feedback, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	list, err := s.repo.ListFeedback(ctx, id)
	if err != nil {
		return nil, storageError(err, "failed to list feedback")
	}
	return list, nil
}

// List enumerates activities. Non-administrators only see their own.
func (s *ActivityService) List(ctx context.Context, actor *models.Actor, query dto.ActivityQuery) ([]models.Activity, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	for _, status := range query.Status {
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
		}
	}
	if query.From != nil && query.To != nil && query.To.Before(*query.From) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}

	filter := models.ActivityFilter{
		AuthorEmail: strings.TrimSpace(query.Author),
		Status:      query.Status,
		From:        query.From,
		To:          query.To,
	}
	if !actor.IsAdmin {
		if filter.AuthorEmail != "" && filter.AuthorEmail != actor.Email {
			return nil, appErrors.ErrForbidden
		}
		filter.AuthorEmail = actor.Email
	}

	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, storageError(err, "failed to list activities")
	}
	return list, nil
}

// ListByAuthor enumerates one author's activities.
func (s *ActivityService) ListByAuthor(ctx context.Context, actor *models.Actor, author string) ([]models.Activity, error) {
	return s.List(ctx, actor, dto.ActivityQuery{Author: author})
}

// ListByStatus enumerates activities in any of statuses.
func (s *ActivityService) ListByStatus(ctx context.Context, actor *models.Actor, statuses ...models.ActivityStatus) ([]models.Activity, error) {
	return s.List(ctx, actor, dto.ActivityQuery{Status: statuses})
}

// ListByDateRange enumerates activities reported within [from, to].
func (s *ActivityService) ListByDateRange(ctx context.Context, actor *models.Actor, from, to time.Time) ([]models.Activity, error) {
	return s.List(ctx, actor, dto.ActivityQuery{From: &from, To: &to})
}

// SubmitWeek submits every draft of the actor in the selected range. Each
// draft is written independently; one failure does not stop the others.
func (s *ActivityService) SubmitWeek(ctx context.Context, actor *models.Actor, req dto.SubmitWeekRequest) (*dto.SubmitWeekResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	from, to, err := submitRange(req)
	if err != nil {
		return nil, err
	}

	activities, err := s.repo.List(ctx, models.ActivityFilter{AuthorEmail: actor.Email, From: &from, To: &to})
	if err != nil {
		return nil, storageError(err, "failed to list activities for submission")
	}
	sort.SliceStable(activities, func(i, j int) bool {
		if !activities[i].ReportDate.Equal(activities[j].ReportDate) {
			return activities[i].ReportDate.Before(activities[j].ReportDate)
		}
		return activities[i].CreatedAt.Before(activities[j].CreatedAt)
	})

	outcomes := make([]dto.SubmitOutcome, len(activities))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range activities {
		i := i
		activity := activities[i]
		outcomes[i] = dto.SubmitOutcome{ActivityID: activity.ID, ReportDate: activity.ReportDate.Format(dto.DateLayout)}
		if activity.Status != models.ActivityStatusDraft {
			outcomes[i].Outcome = dto.SubmitOutcomeSkipped
			outcomes[i].Reason = fmt.Sprintf("status is %s", activity.Status)
			continue
		}
		g.Go(func() error {
			if _, err := s.submitDraft(ctx, actor, &activity); err != nil {
				appErr := appErrors.FromError(err)
				outcomes[i].Outcome = dto.SubmitOutcomeFailed
				outcomes[i].Reason = appErr.Message
				outcomes[i].Retryable = appErr.Retryable
				logger.FromContext(ctx, s.logger).Warn("bulk submit item failed",
					zap.String("activity_id", activity.ID), zap.Error(err))
				return nil
			}
			outcomes[i].Outcome = dto.SubmitOutcomeSubmitted
			return nil
		})
	}
	_ = g.Wait()

	result := &dto.SubmitWeekResult{
		From:     from.Format(dto.DateLayout),
		To:       to.Format(dto.DateLayout),
		Outcomes: outcomes,
	}
	for _, o := range outcomes {
		switch o.Outcome {
		case dto.SubmitOutcomeSubmitted:
			result.Submitted++
		case dto.SubmitOutcomeSkipped:
			result.Skipped++
		case dto.SubmitOutcomeFailed:
			result.Failed++
		}
	}
	return result, nil
}

func (s *ActivityService) submitDraft(ctx context.Context, actor *models.Actor, activity *models.Activity) (*models.Activity, error) {
	now := s.now()
	activity.Status = models.ActivityStatusSubmitted
	activity.SubmittedAt = &now
	activity.UpdatedAt = now
	if err := s.repo.Update(ctx, activity); err != nil {
		return nil, storageError(err, "failed to submit activity")
	}
	s.metrics.RecordTransition(string(models.ActivityStatusDraft), string(models.ActivityStatusSubmitted))
	s.dispatch(ctx, Event{
		Action:   models.AuditActionSubmit,
		Activity: *activity,
		Actor:    *actor,
		From:     models.ActivityStatusDraft,
		To:       models.ActivityStatusSubmitted,
		Notify:   models.NotificationActivitySubmitted,
	})
	return activity, nil
}

func (s *ActivityService) resubmit(ctx context.Context, actor *models.Actor, activity *models.Activity, reply string) (*models.Activity, error) {
	if reply != "" {
		if err := s.addFeedback(ctx, actor, activity.ID, reply); err != nil {
			return nil, err
		}
	}
	now := s.now()
	activity.Status = models.ActivityStatusSubmitted
	activity.SubmittedAt = &now
	activity.ReviewedAt = nil
	activity.UpdatedAt = now
	if err := s.repo.Update(ctx, activity); err != nil {
		return nil, storageError(err, "failed to resubmit activity")
	}
	s.metrics.RecordTransition(string(models.ActivityStatusNeedsClarification), string(models.ActivityStatusSubmitted))
	s.dispatch(ctx, Event{
		Action:   models.AuditActionResubmit,
		Activity: *activity,
		Actor:    *actor,
		From:     models.ActivityStatusNeedsClarification,
		To:       models.ActivityStatusSubmitted,
		Comment:  reply,
		Notify:   models.NotificationActivityResubmitted,
	})
	return activity, nil
}

func (s *ActivityService) commitReview(ctx context.Context, activity *models.Activity, to models.ActivityStatus) error {
	now := s.now()
	activity.Status = to
	activity.ReviewedAt = &now
	activity.UpdatedAt = now
	if err := s.repo.Update(ctx, activity); err != nil {
		return storageError(err, "failed to review activity")
	}
	s.metrics.RecordTransition(string(models.ActivityStatusSubmitted), string(to))
	return nil
}

func (s *ActivityService) dispatchReview(ctx context.Context, actor *models.Actor, activity *models.Activity, comment string) {
	event := Event{
		Activity: *activity,
		Actor:    *actor,
		From:     models.ActivityStatusSubmitted,
		To:       activity.Status,
		Comment:  comment,
	}
	if activity.Status == models.ActivityStatusReviewed {
		event.Action = models.AuditActionReview
		event.Notify = models.NotificationActivityReviewed
	} else {
		event.Action = models.AuditActionRequestClarification
		event.Notify = models.NotificationClarificationRequested
	}
	s.dispatch(ctx, event)
}

func (s *ActivityService) addFeedback(ctx context.Context, actor *models.Actor, activityID, body string) error {
	feedback := &models.Feedback{
		ActivityID:     activityID,
		AuthorEmail:    actor.Email,
		Body:           body,
		IsAdminComment: actor.IsAdmin,
		CreatedAt:      s.now(),
	}
	if err := s.repo.AddFeedback(ctx, feedback); err != nil {
		return storageError(err, "failed to store feedback")
	}
	return nil
}

func (s *ActivityService) load(ctx context.Context, id string) (*models.Activity, error) {
	activity, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, storageError(err, "failed to load activity")
	}
	return activity, nil
}

func (s *ActivityService) loadOwned(ctx context.Context, actor *models.Actor, id string) (*models.Activity, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	activity, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if activity.AuthorEmail != actor.Email {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the author may submit an activity")
	}
	return activity, nil
}

func (s *ActivityService) loadForReview(ctx context.Context, actor *models.Actor, id string) (*models.Activity, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may review activities")
	}
	activity, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if activity.Status != models.ActivityStatusSubmitted {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot review an activity in status %s", activity.Status))
	}
	return activity, nil
}

func (s *ActivityService) dispatch(ctx context.Context, event Event) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(ctx, event)
}

func canView(actor *models.Actor, activity *models.Activity) bool {
	return actor.IsAdmin || activity.AuthorEmail == actor.Email
}

func applyPatch(activity *models.Activity, req dto.UpdateActivityRequest) ([]string, error) {
	var changed []string
	if req.Department != nil {
		activity.Department = models.Ref{Name: strings.TrimSpace(*req.Department)}
		changed = append(changed, "department")
	}
	if req.ActivityType != nil {
		activity.ActivityType = models.Ref{Name: strings.TrimSpace(*req.ActivityType)}
		changed = append(changed, "activityType")
	}
	if req.Description != nil {
		activity.Description = strings.TrimSpace(*req.Description)
		changed = append(changed, "description")
	}
	if req.UnitsCompleted != nil {
		activity.UnitsCompleted = *req.UnitsCompleted
		changed = append(changed, "unitsCompleted")
	}
	if req.PercentageComplete != nil {
		activity.PercentageComplete = *req.PercentageComplete
		changed = append(changed, "percentageComplete")
	}
	if req.Category != nil {
		activity.Category = trimmedOrNil(req.Category)
		changed = append(changed, "category")
	}
	if req.ReportDate != nil {
		date, err := parseDate(*req.ReportDate)
		if err != nil {
			return nil, err
		}
		activity.ReportDate = date
		changed = append(changed, "reportDate")
	}
	return changed, nil
}

func submitRange(req dto.SubmitWeekRequest) (time.Time, time.Time, error) {
	if req.WeekEnding != "" {
		ending, err := parseDate(req.WeekEnding)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if ending.Weekday() != time.Friday {
			return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "weekEnding must be a Friday")
		}
		week := translator.WeekOf(ending)
		return week.Start(), week.Ending, nil
	}
	if req.From == "" || req.To == "" {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "weekEnding or both from and to are required")
	}
	from, err := parseDate(req.From)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDate(req.To)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}
	return from, to, nil
}

func parseDate(raw string) (time.Time, error) {
	date, err := time.Parse(dto.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", raw))
	}
	return date.UTC(), nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
