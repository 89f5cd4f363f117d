// Package notify publishes operator alerts to Slack (spec §2's Notifier
// adapter, spec §4.5: "post a message to Slack, optionally @-mentioning a
// configured user"). No Slack client library appears anywhere in the
// dependency pack, so this wraps a single incoming-webhook POST directly
// over net/http; see DESIGN.md for the standard-library justification.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier sends operator-facing alerts.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// SlackWebhook posts messages to a Slack incoming webhook URL. The zero
// value is not usable; build one with NewSlackWebhook.
type SlackWebhook struct {
	url        string
	userID     string // optional; prefixed as an @-mention when set
	httpClient *http.Client
}

// NewSlackWebhook builds a SlackWebhook. webhookURL may be empty, in which
// case Notify is a no-op (spec §6 treats the Slack URL as optional
// configuration); userID is the Slack member ID to @-mention, also
// optional.
func NewSlackWebhook(webhookURL, userID string) *SlackWebhook {
	return &SlackWebhook{
		url:    webhookURL,
		userID: userID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

// Notify posts message to the configured webhook. It is a no-op when no
// webhook URL is configured, so callers can construct a SlackWebhook
// unconditionally and call Notify from every alert site.
func (s *SlackWebhook) Notify(ctx context.Context, message string) error {
	if s.url == "" {
		return nil
	}

	text := message
	if s.userID != "" {
		text = fmt.Sprintf("<@%s> %s", s.userID, message)
	}

	body, err := json.Marshal(slackPayload{Text: text})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
