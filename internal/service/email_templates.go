package service

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"

	"github.com/noah-isme/activity-report-api/internal/models"
	"github.com/noah-isme/activity-report-api/pkg/mailer"
)

// Email template tags understood by the mail service.
const (
	TemplateActivitySubmitted      = "activity_submitted"
	TemplateActivityReviewed       = "activity_reviewed"
	TemplateClarificationRequested = "clarification_requested"
)

var errNoTemplate = errors.New("no email template")

const emailLayout = `{{define "layout"}}<!DOCTYPE html>
<html><body style="font-family:sans-serif">
<p>Hello {{.Recipient}},</p>
{{template "content" .}}
{{if .Link}}<p><a href="{{.Link}}">Open the activity</a></p>{{end}}
</body></html>{{end}}`

var emailBodies = map[string]string{
	TemplateActivitySubmitted: `{{define "content"}}<p>{{.Actor}} {{if .Resubmitted}}resubmitted{{else}}submitted{{end}} an activity for {{.ReportDate}}.</p>
<p><strong>{{.ActivityType}}</strong>: {{.Description}}</p>{{end}}`,
	TemplateActivityReviewed: `{{define "content"}}<p>Your activity for {{.ReportDate}} was reviewed by {{.Actor}}.</p>
{{if .Comment}}<blockquote>{{.Comment}}</blockquote>{{end}}{{end}}`,
	TemplateClarificationRequested: `{{define "content"}}<p>{{.Actor}} needs more detail on your activity for {{.ReportDate}}.</p>
<blockquote>{{.Comment}}</blockquote>
<p>Reply and resubmit when ready.</p>{{end}}`,
}

var emailSubjects = map[string]string{
	TemplateActivitySubmitted:      "Activity submitted for review",
	TemplateActivityReviewed:       "Your activity was reviewed",
	TemplateClarificationRequested: "Clarification requested on your activity",
}

type emailData struct {
	Recipient    string
	Actor        string
	ReportDate   string
	ActivityType string
	Description  string
	Comment      string
	Link         string
	Resubmitted  bool
}

type emailTemplates struct {
	byTag map[string]*template.Template
}

func mustEmailTemplates() *emailTemplates {
	set := &emailTemplates{byTag: make(map[string]*template.Template, len(emailBodies))}
	for tag, body := range emailBodies {
		tpl := template.Must(template.New(tag).Parse(emailLayout))
		set.byTag[tag] = template.Must(tpl.Parse(body))
	}
	return set
}

func templateTag(kind models.NotificationType) string {
	switch kind {
	case models.NotificationActivitySubmitted, models.NotificationActivityResubmitted:
		return TemplateActivitySubmitted
	case models.NotificationActivityReviewed:
		return TemplateActivityReviewed
	case models.NotificationClarificationRequested:
		return TemplateClarificationRequested
	}
	return ""
}

func (t *emailTemplates) render(event Event, recipient, link string) (mailer.Message, error) {
	tag := templateTag(event.Notify)
	tpl, ok := t.byTag[tag]
	if !ok {
		return mailer.Message{}, fmt.Errorf("%w for %q", errNoTemplate, event.Notify)
	}
	actor := event.Actor.Email
	if event.Actor.Name != "" {
		actor = event.Actor.Name
	}
	data := emailData{
		Recipient:    recipient,
		Actor:        actor,
		ReportDate:   event.Activity.ReportDate.Format("2006-01-02"),
		ActivityType: event.Activity.ActivityType.Name,
		Description:  event.Activity.Description,
		Comment:      event.Comment,
		Link:         link,
		Resubmitted:  event.Notify == models.NotificationActivityResubmitted,
	}
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return mailer.Message{}, fmt.Errorf("render %s: %w", tag, err)
	}
	return mailer.Message{
		To:          recipient,
		Subject:     emailSubjects[tag],
		HTMLBody:    buf.String(),
		TemplateTag: tag,
	}, nil
}
