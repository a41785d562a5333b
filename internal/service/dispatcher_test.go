package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-report-api/internal/models"
	"github.com/noah-isme/activity-report-api/pkg/config"
	"github.com/noah-isme/activity-report-api/pkg/mailer"
	"github.com/noah-isme/activity-report-api/pkg/middleware/requestid"
)

type notificationSinkStub struct {
	mu    sync.Mutex
	items []models.Notification
	err   error
}

func (s *notificationSinkStub) Create(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.items = append(s.items, *n)
	return nil
}

type auditSinkStub struct {
	mu      sync.Mutex
	entries []models.AuditEntry
	err     error
}

func (s *auditSinkStub) Append(ctx context.Context, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, *entry)
	return nil
}

type adminListStub struct {
	emails []string
	err    error
}

func (s adminListStub) AdminEmails(context.Context) ([]string, error) {
	return s.emails, s.err
}

type mailStub struct {
	mu     sync.Mutex
	sent   []mailer.Message
	status string
	err    error
}

func (m *mailStub) Send(ctx context.Context, msg mailer.Message) (mailer.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return mailer.Result{}, m.err
	}
	m.sent = append(m.sent, msg)
	status := m.status
	if status == "" {
		status = mailer.StatusSent
	}
	return mailer.Result{Status: status}, nil
}

type preferenceStub map[string]models.Preferences

func (p preferenceStub) Get(ctx context.Context, email string) (models.Preferences, error) {
	if prefs, ok := p[email]; ok {
		return prefs, nil
	}
	return models.DefaultPreferences(), nil
}

type sideEffectCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *sideEffectCounter) RecordSideEffect(effect, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[effect+"/"+outcome]++
}

func (c *sideEffectCounter) get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

type dispatcherFixture struct {
	dispatcher    *Dispatcher
	notifications *notificationSinkStub
	audit         *auditSinkStub
	mail          *mailStub
	counter       *sideEffectCounter
}

func newDispatcherFixture(t *testing.T, admins adminListStub, prefs preferenceStub) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		notifications: &notificationSinkStub{},
		audit:         &auditSinkStub{},
		mail:          &mailStub{},
		counter:       &sideEffectCounter{},
	}
	cfg := config.DispatchConfig{Workers: 2, BufferSize: 32, MaxRetries: 1, RetryDelay: 5 * time.Millisecond, FailureLogSize: 10}
	f.dispatcher = NewDispatcher(f.notifications, f.audit, admins, f.mail, prefs, cfg, "https://reports.example.com/", nil,
		WithDispatcherMetrics(f.counter),
		WithDispatcherClock(func() time.Time { return fixedNow }))
	ctx, cancel := context.WithCancel(context.Background())
	f.dispatcher.Start(ctx)
	t.Cleanup(func() {
		f.dispatcher.Stop()
		cancel()
	})
	return f
}

func (f *dispatcherFixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.dispatcher.Drain(ctx))
}

func reviewedEvent() Event {
	return Event{
		Action: models.AuditActionReview,
		Activity: models.Activity{
			ID:           "act-1",
			AuthorEmail:  author.Email,
			ActivityType: models.Ref{Name: "Inspection"},
			Description:  "checked pumps",
			ReportDate:   time.Date(2025, time.October, 8, 0, 0, 0, 0, time.UTC),
			Status:       models.ActivityStatusReviewed,
		},
		Actor:   *admin,
		From:    models.ActivityStatusSubmitted,
		To:      models.ActivityStatusReviewed,
		Comment: "nice",
		Notify:  models.NotificationActivityReviewed,
	}
}

func TestDispatcherReviewNotifiesAuthor(t *testing.T) {
	f := newDispatcherFixture(t, adminListStub{}, preferenceStub{})

	ctx := requestid.WithValue(context.Background(), "req-42")
	f.dispatcher.Dispatch(ctx, reviewedEvent())
	f.drain(t)

	require.Len(t, f.notifications.items, 1)
	n := f.notifications.items[0]
	assert.Equal(t, author.Email, n.RecipientEmail)
	assert.Equal(t, models.NotificationActivityReviewed, n.Type)
	require.NotNil(t, n.Link)
	assert.Equal(t, "https://reports.example.com/activities/act-1", *n.Link)

	require.Len(t, f.audit.entries, 1)
	entry := f.audit.entries[0]
	assert.Equal(t, models.AuditActionReview, entry.Action)
	assert.Equal(t, "act-1", entry.EntityID)
	require.NotNil(t, entry.RequestID)
	assert.Equal(t, "req-42", *entry.RequestID)
	var changes map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Changeset, &changes))
	assert.Equal(t, "submitted", changes["from"])
	assert.Equal(t, "reviewed", changes["to"])
	assert.Equal(t, "nice", changes["comment"])

	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, TemplateActivityReviewed, f.mail.sent[0].TemplateTag)
	assert.Contains(t, f.mail.sent[0].HTMLBody, "nice")
	assert.Equal(t, 1, f.counter.get(EffectEmail+"/"+SideEffectSucceeded))
	assert.Empty(t, f.dispatcher.Failures())
}

func TestDispatcherSubmitNotifiesAdminsExceptActor(t *testing.T) {
	f := newDispatcherFixture(t, adminListStub{emails: []string{"boss@example.com", "ops@example.com", author.Email}}, preferenceStub{})

	event := reviewedEvent()
	event.Action = models.AuditActionSubmit
	event.Actor = *author
	event.Notify = models.NotificationActivitySubmitted
	f.dispatcher.Dispatch(context.Background(), event)
	f.drain(t)

	recipients := map[string]bool{}
	for _, n := range f.notifications.items {
		recipients[n.RecipientEmail] = true
	}
	assert.Equal(t, map[string]bool{"boss@example.com": true, "ops@example.com": true}, recipients)
	assert.Len(t, f.mail.sent, 2)
}

func TestDispatcherAuditOnlyEventSendsNothing(t *testing.T) {
	f := newDispatcherFixture(t, adminListStub{}, preferenceStub{})

	event := reviewedEvent()
	event.Action = models.AuditActionUpdate
	event.Notify = ""
	f.dispatcher.Dispatch(context.Background(), event)
	f.drain(t)

	assert.Len(t, f.audit.entries, 1)
	assert.Empty(t, f.notifications.items)
	assert.Empty(t, f.mail.sent)
}

func TestDispatcherFailuresAreRecordedNotReturned(t *testing.T) {
	f := newDispatcherFixture(t, adminListStub{}, preferenceStub{})
	f.notifications.err = errors.New("disk full")
	f.mail.err = errors.New("smtp down")

	f.dispatcher.Dispatch(context.Background(), reviewedEvent())
	f.drain(t)

	require.Len(t, f.audit.entries, 1)
	failures := f.dispatcher.Failures()
	require.Len(t, failures, 2)
	effects := map[string]FailureRecord{}
	for _, rec := range failures {
		effects[rec.Effect] = rec
	}
	require.Contains(t, effects, EffectNotification)
	require.Contains(t, effects, EffectEmail)
	assert.Equal(t, author.Email, effects[EffectNotification].Recipient)
	assert.Equal(t, "act-1", effects[EffectEmail].ActivityID)
	assert.Equal(t, 2, effects[EffectEmail].Attempts)
	assert.Equal(t, 1, f.counter.get(EffectNotification+"/"+SideEffectFailed))
}

func TestDispatcherEmailRespectsPreference(t *testing.T) {
	f := newDispatcherFixture(t, adminListStub{}, preferenceStub{author.Email: {EmailNotifications: false}})

	f.dispatcher.Dispatch(context.Background(), reviewedEvent())
	f.drain(t)

	assert.Len(t, f.notifications.items, 1)
	assert.Empty(t, f.mail.sent)
	assert.Equal(t, 1, f.counter.get(EffectEmail+"/"+SideEffectSkipped))
}

func TestDispatcherEmailNotConfiguredIsSkipped(t *testing.T) {
	f := newDispatcherFixture(t, adminListStub{}, preferenceStub{})
	f.mail.status = mailer.StatusNotConfigured

	f.dispatcher.Dispatch(context.Background(), reviewedEvent())
	f.drain(t)

	assert.Equal(t, 1, f.counter.get(EffectEmail+"/"+SideEffectSkipped))
	assert.Empty(t, f.dispatcher.Failures())
}

func TestDispatcherDropsWhenStopped(t *testing.T) {
	f := newDispatcherFixture(t, adminListStub{}, preferenceStub{})
	f.dispatcher.Stop()

	f.dispatcher.Dispatch(context.Background(), reviewedEvent())

	failures := f.dispatcher.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, EffectRoute, failures[0].Effect)
	assert.Equal(t, EffectAudit, failures[1].Effect)
	assert.Equal(t, 1, f.counter.get(EffectAudit+"/"+SideEffectDropped))
}

func TestEmailTemplatesRenderEveryTag(t *testing.T) {
	templates := mustEmailTemplates()
	for _, kind := range []models.NotificationType{
		models.NotificationActivitySubmitted,
		models.NotificationActivityResubmitted,
		models.NotificationActivityReviewed,
		models.NotificationClarificationRequested,
	} {
		event := reviewedEvent()
		event.Notify = kind
		event.Comment = "<b>why</b>"
		msg, err := templates.render(event, "dana@example.com", "https://x/activities/act-1")
		require.NoError(t, err, kind)
		assert.NotEmpty(t, msg.Subject, kind)
		assert.Contains(t, msg.HTMLBody, "2025-10-08", kind)
		assert.NotContains(t, msg.HTMLBody, "<b>why</b>", kind)
	}

	event := reviewedEvent()
	event.Notify = ""
	_, err := templates.render(event, "dana@example.com", "")
	require.ErrorIs(t, err, errNoTemplate)
}

func TestFailureLogKeepsNewestFirst(t *testing.T) {
	log := newFailureLog(3)
	for _, id := range []string{"a", "b", "c", "d"} {
		log.add(FailureRecord{JobID: id})
	}
	got := log.snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"d", "c", "b"}, []string{got[0].JobID, got[1].JobID, got[2].JobID})

	assert.Empty(t, newFailureLog(0).snapshot())
}
