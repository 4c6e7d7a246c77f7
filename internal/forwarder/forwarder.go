// Package forwarder notifies a workflow webhook when an object lands in storage.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/loan-rate-crawler/internal/metrics"
)

const (
	defaultTimeout  = 15 * time.Second
	maxUpstreamBody = 512
)

// Config controls the webhook call.
type Config struct {
	WebhookURL string
	Timeout    time.Duration
}

// Result mirrors the status/body pair returned to the event source.
type Result struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// OK reports whether the webhook accepted the notification.
func (r Result) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Forwarder POSTs object references to the configured webhook, once, without retries.
type Forwarder struct {
	client     *resty.Client
	webhookURL string
	logger     *zap.Logger
}

// New builds a Forwarder with its own resty client.
func New(cfg Config, logger *zap.Logger) *Forwarder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")
	return NewWithClient(cfg.WebhookURL, client, logger)
}

// NewWithClient builds a Forwarder around an existing resty client.
func NewWithClient(webhookURL string, client *resty.Client, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{client: client, webhookURL: webhookURL, logger: logger}
}

// HandleEvent decodes a raw storage event and forwards it. Notifications other than object
// creation are acknowledged with a 200 Result and not forwarded. Decode failures map to the
// same error Result as webhook failures.
func (f *Forwarder) HandleEvent(ctx context.Context, raw []byte) Result {
	ref, err := DecodeEvent(raw)
	if errors.Is(err, ErrIgnoredEvent) {
		metrics.ObserveForward(metrics.ForwardSkipped)
		f.logger.Debug("skipping storage notification", zap.Error(err))
		return Result{
			StatusCode: http.StatusOK,
			Body:       "Skipped storage event: " + err.Error(),
		}
	}
	if err != nil {
		return f.fail(ObjectRef{}, err)
	}
	return f.Forward(ctx, ref)
}

// Forward sends {"bucket","key"} to the webhook.
func (f *Forwarder) Forward(ctx context.Context, ref ObjectRef) Result {
	if err := f.post(ctx, ref); err != nil {
		return f.fail(ref, err)
	}
	metrics.ObserveForward(metrics.ForwardSucceeded)
	f.logger.Info("notified webhook", zap.String("bucket", ref.Bucket), zap.String("key", ref.Key))
	return Result{
		StatusCode: http.StatusOK,
		Body:       "Successfully notified n8n: " + ref.Key,
	}
}

func (f *Forwarder) post(ctx context.Context, ref ObjectRef) error {
	if f.webhookURL == "" {
		return errors.New("webhook url is not configured")
	}
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(ref).
		Post(f.webhookURL)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("n8n responded with status %d: %s", resp.StatusCode(), truncate(strings.TrimSpace(resp.String()), maxUpstreamBody))
	}
	return nil
}

func (f *Forwarder) fail(ref ObjectRef, err error) Result {
	metrics.ObserveForward(metrics.ForwardFailed)
	f.logger.Error("failed to notify webhook",
		zap.String("bucket", ref.Bucket),
		zap.String("key", ref.Key),
		zap.Error(err),
	)
	return Result{
		StatusCode: http.StatusInternalServerError,
		Body:       "Error triggering n8n: " + err.Error(),
	}
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
