// Package mailer calls the external mail-sending service.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/noah-isme/activity-report-api/pkg/config"
)

// Delivery statuses reported in Result.
const (
	StatusSent          = "sent"
	StatusNotConfigured = "not_configured"
)

// Message is one outbound email.
type Message struct {
	To          string `json:"to"`
	Subject     string `json:"subject"`
	HTMLBody    string `json:"html"`
	TemplateTag string `json:"tag"`
}

// Result describes what the transport did with a message.
type Result struct {
	Status    string
	MessageID string
}

// Client posts messages as JSON to the configured mail API.
type Client struct {
	apiURL string
	apiKey string
	from   string
	http   *http.Client
}

// New builds a client. An empty APIURL yields a client whose Send is a no-op.
func New(cfg config.MailConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiURL: cfg.APIURL,
		apiKey: cfg.APIKey,
		from:   cfg.From,
		http:   &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an API endpoint is set.
func (c *Client) Configured() bool {
	return c != nil && c.apiURL != ""
}

type sendRequest struct {
	From string `json:"from"`
	Message
}

type sendResponse struct {
	ID string `json:"id"`
}

// Send delivers msg. Without configuration it returns StatusNotConfigured and no error.
func (c *Client) Send(ctx context.Context, msg Message) (Result, error) {
	if !c.Configured() {
		return Result{Status: StatusNotConfigured}, nil
	}
	if msg.To == "" {
		return Result{}, fmt.Errorf("mail recipient is required")
	}

	body, err := json.Marshal(sendRequest{From: c.from, Message: msg})
	if err != nil {
		return Result{}, fmt.Errorf("marshal mail request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("mail service returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var parsed sendResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&parsed)
	return Result{Status: StatusSent, MessageID: parsed.ID}, nil
}
