package bridge

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// PaymentResult is the executor's outcome for one charge attempt.
type PaymentResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	FailureCode   string `json:"failure_code,omitempty"`
	Message       string `json:"message,omitempty"`
}

// PaymentExecutor settles a charge with the payment network. Implementations
// must be idempotent keyed by session id: a retry after a transient failure
// must not double-charge.
type PaymentExecutor interface {
	Execute(ctx context.Context, sessionID string, amountCents int, currency string, method PaymentMethod) (PaymentResult, error)
}

// PaymentExecutorFunc lifts bare functions into [PaymentExecutor].
type PaymentExecutorFunc func(ctx context.Context, sessionID string, amountCents int, currency string, method PaymentMethod) (PaymentResult, error)

// Execute delegates to the wrapped function.
func (f PaymentExecutorFunc) Execute(ctx context.Context, sessionID string, amountCents int, currency string, method PaymentMethod) (PaymentResult, error) {
	return f(ctx, sessionID, amountCents, currency, method)
}

// IdempotentExecutor makes any executor idempotent per session id. Concurrent
// calls for one session collapse into a single in-flight attempt, and the
// first success is cached so a later retry returns the original transaction
// id instead of charging again. Failures are not cached: legitimate retries
// pass through to the wrapped executor.
type IdempotentExecutor struct {
	inner PaymentExecutor

	group     singleflight.Group
	mu        sync.Mutex
	succeeded map[string]PaymentResult
}

// NewIdempotentExecutor wraps an executor with per-session idempotency.
func NewIdempotentExecutor(inner PaymentExecutor) *IdempotentExecutor {
	return &IdempotentExecutor{
		inner:     inner,
		succeeded: make(map[string]PaymentResult),
	}
}

// Execute implements [PaymentExecutor].
func (e *IdempotentExecutor) Execute(ctx context.Context, sessionID string, amountCents int, currency string, method PaymentMethod) (PaymentResult, error) {
	e.mu.Lock()
	if cached, ok := e.succeeded[sessionID]; ok {
		e.mu.Unlock()
		return cached, nil
	}
	e.mu.Unlock()

	v, err, _ := e.group.Do(sessionID, func() (any, error) {
		e.mu.Lock()
		if cached, ok := e.succeeded[sessionID]; ok {
			e.mu.Unlock()
			return cached, nil
		}
		e.mu.Unlock()

		result, err := e.inner.Execute(ctx, sessionID, amountCents, currency, method)
		if err != nil {
			return PaymentResult{}, err
		}
		if result.Success {
			e.mu.Lock()
			e.succeeded[sessionID] = result
			e.mu.Unlock()
		}
		return result, nil
	})
	if err != nil {
		return PaymentResult{}, err
	}
	return v.(PaymentResult), nil
}

// NotificationKind labels outbound notifications.
type NotificationKind string

const (
	// NotificationKindStepUp asks the buyer to complete a verification
	// method, e.g. an SMS or email OTP.
	NotificationKindStepUp NotificationKind = "step_up"
)

// Notification is an outbound SMS/email message.
type Notification struct {
	SessionID string           `json:"session_id"`
	Kind      NotificationKind `json:"kind"`
	Body      string           `json:"body"`
}

// NotificationSender delivers notifications. Callers treat it as
// fire-and-forget: a send failure never blocks a state transition.
type NotificationSender interface {
	Send(ctx context.Context, n Notification) error
}

// NotificationSenderFunc lifts bare functions into [NotificationSender].
type NotificationSenderFunc func(ctx context.Context, n Notification) error

// Send delegates to the wrapped function.
func (f NotificationSenderFunc) Send(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

// Send implements [NotificationSender].
func (NopNotifier) Send(context.Context, Notification) error { return nil }
