// Package notify delivers best-effort broker notifications to the
// platform's fan-out service. Delivery guarantees live on the other
// side of the webhook; this side only posts and forgets.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/joselopes-lab/brokerdesk/pkg/logger"
)

// ErrSendFailed is returned when the notification endpoint rejects the
// post.
var ErrSendFailed = errors.New("failed to send notification")

// notification is the JSON body posted to the fan-out webhook.
type notification struct {
	BrokerID string `json:"broker_id"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

// WebhookSink posts notifications to the fan-out service's webhook.
type WebhookSink struct {
	webhookURL string
	httpClient *http.Client
}

// NewWebhookSink creates a webhook-backed sink.
func NewWebhookSink(webhookURL string) *WebhookSink {
	return &WebhookSink{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify posts one notification. A non-2xx response is an error; the
// caller decides whether that matters.
func (s *WebhookSink) Notify(ctx context.Context, brokerID, subject, body string) error {
	payload, err := json.Marshal(notification{
		BrokerID: brokerID,
		Subject:  subject,
		Body:     body,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrSendFailed, resp.StatusCode)
	}
	return nil
}

// LogSink writes notifications to the log. Used when no webhook is
// configured.
type LogSink struct {
	logger logger.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

// Notify logs the notification and reports success.
func (s *LogSink) Notify(ctx context.Context, brokerID, subject, body string) error {
	s.logger.Info("broker notification",
		"broker_id", brokerID,
		"subject", subject,
		"body", body)
	return nil
}
