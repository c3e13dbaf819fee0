package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/halopay/bridge/signature"
)

// WebhookEventType identifies the order lifecycle transition being delivered.
type WebhookEventType string

const (
	WebhookOrderCreated WebhookEventType = "order_created"
	WebhookOrderUpdated WebhookEventType = "order_updated"
)

// WebhookEvent is the envelope POSTed to the configured endpoint.
type WebhookEvent struct {
	Type      WebhookEventType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
	Order     *Order           `json:"order"`
}

type webhookConfig struct {
	endpoint string
	secret   []byte
	header   string
	client   *http.Client
	timeout  time.Duration
	clock    func() time.Time
	logger   zerolog.Logger
}

// WebhookOption customizes webhook delivery.
type WebhookOption func(*webhookConfig)

// WithWebhookClient overrides the HTTP client used for delivery.
func WithWebhookClient(client *http.Client) WebhookOption {
	return func(cfg *webhookConfig) { cfg.client = client }
}

// WithWebhookSignatureHeader changes the header carrying the payload signature.
func WithWebhookSignatureHeader(header string) WebhookOption {
	return func(cfg *webhookConfig) { cfg.header = header }
}

// WithWebhookTimeout bounds each delivery attempt.
func WithWebhookTimeout(timeout time.Duration) WebhookOption {
	return func(cfg *webhookConfig) { cfg.timeout = timeout }
}

// WithWebhookLogger attaches a logger for delivery failures.
func WithWebhookLogger(logger zerolog.Logger) WebhookOption {
	return func(cfg *webhookConfig) { cfg.logger = logger }
}

func webhookWithClock(fn func() time.Time) WebhookOption {
	return func(cfg *webhookConfig) { cfg.clock = fn }
}

// WebhookSender delivers HMAC-signed order events to a merchant endpoint. It
// implements [OrderEventSink]; failures are logged, never propagated, so a
// slow or broken endpoint cannot stall the order state machine.
type WebhookSender struct {
	endpoint string
	signer   signature.HMACSigner
	header   string
	client   *http.Client
	timeout  time.Duration
	clock    func() time.Time
	logger   zerolog.Logger
}

// NewWebhookSender builds a sender for the given endpoint and signing secret.
func NewWebhookSender(endpoint string, secret []byte, opts ...WebhookOption) *WebhookSender {
	cfg := &webhookConfig{
		endpoint: endpoint,
		secret:   secret,
		header:   "Webhook-Signature",
		client:   http.DefaultClient,
		timeout:  10 * time.Second,
		clock:    time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(cfg)
	}
	return newWebhookSender(cfg)
}

func newWebhookSender(cfg *webhookConfig) *WebhookSender {
	sender := &WebhookSender{
		endpoint: cfg.endpoint,
		signer:   signature.HMACSigner{Key: cfg.secret},
		header:   cfg.header,
		client:   cfg.client,
		timeout:  cfg.timeout,
		clock:    cfg.clock,
		logger:   cfg.logger,
	}
	if sender.header == "" {
		sender.header = "Webhook-Signature"
	}
	if sender.client == nil {
		sender.client = http.DefaultClient
	}
	if sender.timeout <= 0 {
		sender.timeout = 10 * time.Second
	}
	if sender.clock == nil {
		sender.clock = time.Now
	}
	return sender
}

// OrderCreated implements [OrderEventSink].
func (s *WebhookSender) OrderCreated(ctx context.Context, order *Order) {
	s.deliver(ctx, WebhookOrderCreated, order)
}

// OrderUpdated implements [OrderEventSink].
func (s *WebhookSender) OrderUpdated(ctx context.Context, order *Order) {
	s.deliver(ctx, WebhookOrderUpdated, order)
}

func (s *WebhookSender) deliver(ctx context.Context, eventType WebhookEventType, order *Order) {
	if err := s.send(ctx, eventType, order); err != nil {
		s.logger.Error().
			Err(err).
			Str("event_type", string(eventType)).
			Str("order_id", order.ID).
			Msg("webhook delivery failed")
	}
}

func (s *WebhookSender) send(ctx context.Context, eventType WebhookEventType, order *Order) error {
	now := s.clock().UTC()
	body, err := json.Marshal(WebhookEvent{
		Type:      eventType,
		CreatedAt: now,
		Order:     order,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook event: %w", err)
	}

	sig, err := s.signer.Sign(now, body)
	if err != nil {
		return fmt.Errorf("sign webhook event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Timestamp", now.Format(time.RFC3339))
	req.Header.Set(s.header, sig)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}
