package alert

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const defaultWebhookTimeout = 10 * time.Second

// Notifier raises operator alerts. The no-op implementation is used when no
// webhook endpoint is configured, so callers never need a nil check.
type Notifier interface {
	RetryExhausted(ctx context.Context, emailID int64, recipient, lastError string)
	ReportFailed(ctx context.Context, jobName string, runDate time.Time, reason string)
}

type alertPayload struct {
	Event   string `json:"event"`
	Subject string `json:"subject"`
	Detail  string `json:"detail"`
	Time    string `json:"time"`
}

// WebhookNotifier posts alerts to a webhook.site-compatible endpoint.
// Delivery is best effort: failures are logged and dropped, never propagated
// into the delivery path.
type WebhookNotifier struct {
	client   *resty.Client
	endpoint string
	logger   *zap.Logger
	now      func() time.Time
}

func NewWebhookNotifier(endpoint string, logger *zap.Logger) (*WebhookNotifier, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookNotifierWithClient(endpoint, client, logger)
}

func NewWebhookNotifierWithClient(endpoint string, client *resty.Client, logger *zap.Logger) (*WebhookNotifier, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookNotifier{
		client:   client,
		endpoint: trimmedEndpoint,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (n *WebhookNotifier) RetryExhausted(ctx context.Context, emailID int64, recipient, lastError string) {
	n.post(ctx, alertPayload{
		Event:   "email.retry_exhausted",
		Subject: fmt.Sprintf("email %d to %s failed permanently", emailID, recipient),
		Detail:  lastError,
		Time:    n.now().UTC().Format(time.RFC3339),
	})
}

func (n *WebhookNotifier) ReportFailed(ctx context.Context, jobName string, runDate time.Time, reason string) {
	n.post(ctx, alertPayload{
		Event:   "report.failed",
		Subject: fmt.Sprintf("%s did not complete for %s", jobName, runDate.Format("2006-01-02")),
		Detail:  reason,
		Time:    n.now().UTC().Format(time.RFC3339),
	})
}

func (n *WebhookNotifier) post(ctx context.Context, payload alertPayload) {
	if n == nil || n.client == nil {
		return
	}

	response, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(n.endpoint)
	if err != nil {
		n.logger.Warn("alert webhook request failed",
			zap.String("event", payload.Event),
			zap.Error(err),
		)
		return
	}

	if code := response.StatusCode(); code < http.StatusOK || code >= http.StatusMultipleChoices {
		n.logger.Warn("alert webhook rejected payload",
			zap.String("event", payload.Event),
			zap.Int("statusCode", code),
		)
	}
}

// NopNotifier discards all alerts.
type NopNotifier struct{}

func (NopNotifier) RetryExhausted(context.Context, int64, string, string)   {}
func (NopNotifier) ReportFailed(context.Context, string, time.Time, string) {}
