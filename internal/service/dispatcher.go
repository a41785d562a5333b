package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-report-api/internal/models"
	"github.com/noah-isme/activity-report-api/pkg/config"
	"github.com/noah-isme/activity-report-api/pkg/jobs"
	"github.com/noah-isme/activity-report-api/pkg/logger"
	"github.com/noah-isme/activity-report-api/pkg/mailer"
	"github.com/noah-isme/activity-report-api/pkg/middleware/requestid"
)

// Side-effect kinds handled by the dispatcher.
const (
	EffectAudit        = "audit"
	EffectRoute        = "route"
	EffectNotification = "notification"
	EffectEmail        = "email"
)

// Event describes a committed change to an activity.
type Event struct {
	Action   string
	Activity models.Activity
	Actor    models.Actor
	From     models.ActivityStatus
	To       models.ActivityStatus
	Comment  string
	// Notify selects the counterpart notification; empty means audit only.
	Notify  models.NotificationType
	Changes map[string]interface{}
}

// FailureRecord is one side effect that was dropped or exhausted its retries.
type FailureRecord struct {
	JobID      string    `json:"jobId"`
	Effect     string    `json:"effect"`
	ActivityID string    `json:"activityId,omitempty"`
	Recipient  string    `json:"recipient,omitempty"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error"`
	FailedAt   time.Time `json:"failedAt"`
}

type notificationWriter interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type auditAppender interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
}

type adminLister interface {
	AdminEmails(ctx context.Context) ([]string, error)
}

type mailSender interface {
	Send(ctx context.Context, msg mailer.Message) (mailer.Result, error)
}

type preferenceReader interface {
	Get(ctx context.Context, email string) (models.Preferences, error)
}

type sideEffectRecorder interface {
	RecordSideEffect(effect, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordSideEffect(string, string) {}

type routePayload struct {
	Event Event
}

type notificationPayload struct {
	Notification models.Notification
}

type emailPayload struct {
	Event     Event
	Recipient string
}

type auditPayload struct {
	Entry models.AuditEntry
}

// Dispatcher runs notification, audit and email effects after a transition has
// been written. Effects run on a worker queue; each retries on its own and a
// failure is logged, counted and recorded but never returned to the caller.
type Dispatcher struct {
	queue         *jobs.Queue
	notifications notificationWriter
	audit         auditAppender
	admins        adminLister
	mail          mailSender
	preferences   preferenceReader
	metrics       sideEffectRecorder
	templates     *emailTemplates
	baseURL       string
	logger        *zap.Logger
	now           func() time.Time

	failures *failureLog
}

// DispatcherOption configures the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherMetrics records side-effect outcomes.
func WithDispatcherMetrics(recorder sideEffectRecorder) DispatcherOption {
	return func(d *Dispatcher) {
		if recorder != nil {
			d.metrics = recorder
		}
	}
}

// WithDispatcherClock overrides time.Now.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher wires the dispatcher and its queue. Call Start before dispatching.
func NewDispatcher(notifications notificationWriter, audit auditAppender, admins adminLister, mail mailSender, preferences preferenceReader, cfg config.DispatchConfig, baseURL string, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		notifications: notifications,
		audit:         audit,
		admins:        admins,
		mail:          mail,
		preferences:   preferences,
		metrics:       noopRecorder{},
		templates:     mustEmailTemplates(),
		baseURL:       strings.TrimRight(baseURL, "/"),
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
		failures:      newFailureLog(cfg.FailureLogSize),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.queue = jobs.NewQueue("side-effects", d.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnFailure:  d.onExhausted,
	})
	return d
}

// Start launches the workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Drain waits for accepted effects to finish.
func (d *Dispatcher) Drain(ctx context.Context) error {
	return d.queue.Drain(ctx)
}

// Stop halts the workers; buffered effects are dropped.
func (d *Dispatcher) Stop() {
	d.queue.Stop()
}

// Failures returns the most recent failures, newest first.
func (d *Dispatcher) Failures() []FailureRecord {
	return d.failures.snapshot()
}

// Dispatch enqueues the effects of event. It never blocks and never fails.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	entry := d.auditEntry(ctx, event)
	d.enqueue(ctx, EffectAudit, event.Activity.ID, "", auditPayload{Entry: entry})
	if event.Notify != "" {
		d.enqueue(ctx, EffectRoute, event.Activity.ID, "", routePayload{Event: event})
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, effect, activityID, recipient string, payload interface{}) {
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    effect,
		Payload: payload,
		Ctx:     ctx,
	}
	if err := d.queue.TryEnqueue(job); err != nil {
		logger.FromContext(ctx, d.logger).Warn("side effect dropped",
			zap.String("effect", effect),
			zap.String("activity_id", activityID),
			zap.Error(err))
		d.metrics.RecordSideEffect(effect, SideEffectDropped)
		d.failures.add(FailureRecord{
			JobID:      job.ID,
			Effect:     effect,
			ActivityID: activityID,
			Recipient:  recipient,
			Error:      err.Error(),
			FailedAt:   d.now(),
		})
	}
}

func (d *Dispatcher) handle(ctx context.Context, job jobs.Job) error {
	var err error
	switch p := job.Payload.(type) {
	case auditPayload:
		err = d.appendAudit(ctx, p)
	case routePayload:
		err = d.route(ctx, p)
	case notificationPayload:
		err = d.notify(ctx, p)
	case emailPayload:
		err = d.email(ctx, p)
	default:
		logger.FromContext(ctx, d.logger).Error("unknown side effect payload", zap.String("type", job.Type))
		return nil
	}
	if err == nil && job.Type != EffectEmail {
		d.metrics.RecordSideEffect(job.Type, SideEffectSucceeded)
	}
	return err
}

func (d *Dispatcher) onExhausted(job jobs.Job, err error) {
	record := FailureRecord{
		JobID:    job.ID,
		Effect:   job.Type,
		Attempts: job.Attempt,
		Error:    err.Error(),
		FailedAt: d.now(),
	}
	switch p := job.Payload.(type) {
	case auditPayload:
		record.ActivityID = p.Entry.EntityID
	case routePayload:
		record.ActivityID = p.Event.Activity.ID
	case notificationPayload:
		if p.Notification.ActivityID != nil {
			record.ActivityID = *p.Notification.ActivityID
		}
		record.Recipient = p.Notification.RecipientEmail
	case emailPayload:
		record.ActivityID = p.Event.Activity.ID
		record.Recipient = p.Recipient
	}
	d.metrics.RecordSideEffect(job.Type, SideEffectFailed)
	d.failures.add(record)
}

func (d *Dispatcher) appendAudit(ctx context.Context, p auditPayload) error {
	entry := p.Entry
	if d.audit == nil {
		return nil
	}
	return d.audit.Append(ctx, &entry)
}

// route resolves the counterpart recipients and fans out one notification and
// one email job per recipient.
func (d *Dispatcher) route(ctx context.Context, p routePayload) error {
	recipients, err := d.recipients(ctx, p.Event)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		logger.FromContext(ctx, d.logger).Debug("no recipients for notification",
			zap.String("activity_id", p.Event.Activity.ID), zap.String("type", string(p.Event.Notify)))
	}
	for _, recipient := range recipients {
		d.enqueue(ctx, EffectNotification, p.Event.Activity.ID, recipient, notificationPayload{Notification: d.buildNotification(p.Event, recipient)})
		d.enqueue(ctx, EffectEmail, p.Event.Activity.ID, recipient, emailPayload{Event: p.Event, Recipient: recipient})
	}
	return nil
}

func (d *Dispatcher) recipients(ctx context.Context, event Event) ([]string, error) {
	var candidates []string
	switch event.Notify {
	case models.NotificationActivitySubmitted, models.NotificationActivityResubmitted:
		if d.admins == nil {
			return nil, nil
		}
		emails, err := d.admins.AdminEmails(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve administrators: %w", err)
		}
		candidates = emails
	default:
		candidates = []string{event.Activity.AuthorEmail}
	}

	result := make([]string, 0, len(candidates))
	for _, email := range candidates {
		if email == "" || email == event.Actor.Email || email == models.UnknownRefName {
			continue
		}
		result = append(result, email)
	}
	return result, nil
}

func (d *Dispatcher) notify(ctx context.Context, p notificationPayload) error {
	if d.notifications == nil {
		return nil
	}
	n := p.Notification
	return d.notifications.Create(ctx, &n)
}

func (d *Dispatcher) email(ctx context.Context, p emailPayload) error {
	log := logger.FromContext(ctx, d.logger)
	if d.mail == nil {
		d.metrics.RecordSideEffect(EffectEmail, SideEffectSkipped)
		return nil
	}

	prefs := models.DefaultPreferences()
	if d.preferences != nil {
		loaded, err := d.preferences.Get(ctx, p.Recipient)
		if err != nil {
			log.Warn("preference lookup failed, using defaults", zap.String("recipient", p.Recipient), zap.Error(err))
		} else {
			prefs = loaded
		}
	}
	if !prefs.EmailNotifications {
		d.metrics.RecordSideEffect(EffectEmail, SideEffectSkipped)
		return nil
	}

	msg, err := d.templates.render(p.Event, p.Recipient, d.activityLink(p.Event.Activity.ID))
	if err != nil {
		// Rendering is deterministic, a retry cannot help.
		log.Error("render email", zap.String("recipient", p.Recipient), zap.Error(err))
		d.metrics.RecordSideEffect(EffectEmail, SideEffectFailed)
		return nil
	}
	result, err := d.mail.Send(ctx, msg)
	if err != nil {
		return err
	}
	if result.Status == mailer.StatusNotConfigured {
		log.Debug("email transport not configured", zap.String("recipient", p.Recipient))
		d.metrics.RecordSideEffect(EffectEmail, SideEffectSkipped)
		return nil
	}
	d.metrics.RecordSideEffect(EffectEmail, SideEffectSucceeded)
	return nil
}

func (d *Dispatcher) buildNotification(event Event, recipient string) models.Notification {
	a := event.Activity
	date := a.ReportDate.Format("2006-01-02")
	actor := event.Actor.Email
	if event.Actor.Name != "" {
		actor = event.Actor.Name
	}

	var title, message string
	switch event.Notify {
	case models.NotificationActivitySubmitted:
		title = "Activity submitted"
		message = fmt.Sprintf("%s submitted an activity for %s.", actor, date)
	case models.NotificationActivityResubmitted:
		title = "Activity resubmitted"
		message = fmt.Sprintf("%s resubmitted an activity for %s after clarification.", actor, date)
	case models.NotificationActivityReviewed:
		title = "Activity reviewed"
		message = fmt.Sprintf("%s reviewed your activity for %s.", actor, date)
	case models.NotificationClarificationRequested:
		title = "Clarification requested"
		message = fmt.Sprintf("%s asked for clarification on your activity for %s: %s", actor, date, event.Comment)
	default:
		title = "Activity updated"
		message = fmt.Sprintf("Your activity for %s changed.", date)
	}

	activityID := a.ID
	n := models.Notification{
		ID:             uuid.NewString(),
		RecipientEmail: recipient,
		Type:           event.Notify,
		Title:          title,
		Message:        message,
		ActivityID:     &activityID,
		CreatedAt:      d.now(),
	}
	if link := d.activityLink(a.ID); link != "" {
		n.Link = &link
	}
	return n
}

func (d *Dispatcher) activityLink(id string) string {
	if d.baseURL == "" {
		return ""
	}
	return d.baseURL + "/activities/" + id
}

func (d *Dispatcher) auditEntry(ctx context.Context, event Event) models.AuditEntry {
	changes := map[string]interface{}{}
	for k, v := range event.Changes {
		changes[k] = v
	}
	if event.From != "" {
		changes["from"] = event.From
	}
	if event.To != "" {
		changes["to"] = event.To
	}
	if event.Comment != "" {
		changes["comment"] = event.Comment
	}
	raw, err := json.Marshal(changes)
	if err != nil {
		logger.FromContext(ctx, d.logger).Warn("encode audit changeset", zap.Error(err))
		raw = []byte("{}")
	}

	entry := models.AuditEntry{
		ID:         uuid.NewString(),
		Action:     event.Action,
		EntityType: models.AuditEntityActivity,
		EntityID:   event.Activity.ID,
		ActorEmail: event.Actor.Email,
		Changeset:  raw,
		CreatedAt:  d.now(),
	}
	if id := requestid.FromContext(ctx); id != "" {
		entry.RequestID = &id
	}
	return entry
}

// failureLog is a bounded ring of recent failures.
type failureLog struct {
	mu      sync.Mutex
	entries []FailureRecord
	next    int
	full    bool
}

func newFailureLog(size int) *failureLog {
	if size <= 0 {
		size = 100
	}
	return &failureLog{entries: make([]FailureRecord, size)}
}

func (l *failureLog) add(record FailureRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = record
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
}

func (l *failureLog) snapshot() []FailureRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := l.next
	if l.full {
		count = len(l.entries)
	}
	out := make([]FailureRecord, 0, count)
	for i := 1; i <= count; i++ {
		idx := (l.next - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}
