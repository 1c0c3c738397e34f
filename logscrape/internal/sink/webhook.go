package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hazyhaar/chatlogs/logscrape/record"
)

// Webhook POSTs the transcript as JSON to a URL with retry and exponential
// backoff.
type Webhook struct {
	url        string
	client     *resty.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the maximum number of retries. Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) { w.maxRetries = n }
}

// WithWebhookBackoff sets the first retry delay; it doubles on each retry.
// Default: 1s.
func WithWebhookBackoff(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.backoff = d }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWebhook creates a Webhook sink targeting the given URL.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        url,
		maxRetries: 3,
		backoff:    time.Second,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	w.client = resty.New().
		SetTimeout(10*time.Second).
		SetRetryCount(w.maxRetries).
		SetRetryWaitTime(w.backoff).
		SetRetryMaxWaitTime(w.backoff<<max(w.maxRetries, 0)).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		}).
		AddRetryHook(func(r *resty.Response, err error) {
			status := 0
			if r != nil {
				status = r.StatusCode()
			}
			w.logger.Warn("webhook: retrying", "status", status, "error", err)
		})
	return w
}

type webhookPayload struct {
	summary
	Messages []record.Message `json:"messages"`
}

func (w *Webhook) Write(ctx context.Context, t record.Transcript) error {
	msgs := t.Messages
	if msgs == nil {
		msgs = []record.Message{}
	}
	body := envelope{Type: "transcript", Data: webhookPayload{summary: summarize(t), Messages: msgs}}

	res, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook: all retries exhausted: %w", err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("webhook: status %d", res.StatusCode())
	}
	return nil
}

func (w *Webhook) Close() error { return nil }
