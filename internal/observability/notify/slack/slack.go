// Package slack posts job failure notifications to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/target/mmk-jobpipe/internal/observability/notify"
)

const maxErrorBody = 4 << 10

// Config holds the webhook target and delivery tuning.
type Config struct {
	WebhookURL   string
	Channel      string
	Username     string
	Timeout      time.Duration
	RetryLimit   int
	Client       *http.Client
	JobURLPrefix string
}

// Client sends failure messages to one Slack webhook.
type Client struct {
	webhookURL   string
	channel      string
	username     string
	retryLimit   int
	jobURLPrefix string
	client       *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "jobpipe"
	}

	return &Client{
		webhookURL:   webhookURL,
		channel:      strings.TrimSpace(cfg.Channel),
		username:     username,
		retryLimit:   max(cfg.RetryLimit, 0),
		jobURLPrefix: strings.TrimSpace(cfg.JobURLPrefix),
		client:       hc,
	}, nil
}

// SendJobFailure posts a formatted message, retrying with a linear backoff.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryLimit; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, time.Duration(attempt)*200*time.Millisecond); err != nil {
				return err
			}
		}
		if lastErr = c.post(ctx, body); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(msg)))
}

func (c *Client) formatMessage(p notify.JobFailurePayload) map[string]any {
	occurred := p.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	var text strings.Builder
	text.WriteString("*Job failed*")
	if p.JobID != "" {
		text.WriteString(" ")
		text.WriteString(c.jobReference(p.JobID))
	}
	text.WriteByte('\n')

	field := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		fmt.Fprintf(&text, "• %s: %s\n", label, value)
	}
	severity := p.Severity
	if severity == "" {
		severity = notify.SeverityCritical
	}
	field("Severity", severity)
	field("Doc ID", escape(p.DocID))
	field("Step", p.Step)
	if p.DeliveryAttempts > 0 {
		field("Delivery attempts", strconv.Itoa(p.DeliveryAttempts))
	}
	field("Webhook host", escape(p.WebhookHost))
	field("Error class", p.ErrorClass)
	field("Error", escape(p.Error))

	if len(p.Metadata) > 0 {
		text.WriteString("• Metadata:\n")
		for _, k := range slices.Sorted(maps.Keys(p.Metadata)) {
			fmt.Fprintf(&text, "    • %s: %s\n", k, escape(p.Metadata[k]))
		}
	}
	text.WriteString("• Timestamp: ")
	text.WriteString(occurred.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

// jobReference renders the id as a link when a job URL prefix is configured.
func (c *Client) jobReference(jobID string) string {
	code := "`" + jobID + "`"
	if c.jobURLPrefix == "" {
		return code
	}
	u, err := url.Parse(c.jobURLPrefix)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return code
	}
	link, err := url.JoinPath(u.String(), jobID)
	if err != nil {
		return code
	}
	return fmt.Sprintf("<%s|%s>", link, jobID)
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(value string) string {
	return slackEscaper.Replace(value)
}
