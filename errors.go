package bridge

import (
	"net/http"
	"time"
)

// ErrorType groups failures by who has to act on them.
type ErrorType string

const (
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"  // Wire payload failed its protocol's schema.
	ErrorTypeProtocolError   ErrorType = "protocol_error"   // Detection or adapter resolution failed.
	ErrorTypeProcessingError ErrorType = "processing_error" // Internal invariant violation or downstream failure.
	ErrorTypeRiskError       ErrorType = "risk_error"       // Risk adjudication refused the transaction.
	ErrorTypeStateError      ErrorType = "state_error"      // Session or order is not in a legal state.
)

// ErrorCode is a stable machine-readable identifier for the specific failure.
type ErrorCode string

const (
	CodeProtocolNotDetected     ErrorCode = "protocol_not_detected"    // No registered adapter recognized the payload.
	CodeProtocolNotSpecified    ErrorCode = "protocol_not_specified"   // Auto-detection disabled and no explicit protocol given.
	CodeAdapterNotFound         ErrorCode = "adapter_not_found"        // Named protocol has no registered adapter.
	CodeInvalidRequest          ErrorCode = "invalid_request"          // Schema-level validation failure.
	CodeInvalidResponse         ErrorCode = "invalid_response"         // Canonical data failed the target protocol's contract.
	CodeNegotiationIncompatible ErrorCode = "negotiation_incompatible" // Payment-method or intervention mismatch.
	CodeRiskBlocked             ErrorCode = "risk_blocked"             // Terminal, never retryable.
	CodeVerificationRequired    ErrorCode = "verification_required"    // Retryable once a step-up is verified.
	CodePaymentFailed           ErrorCode = "payment_failed"           // Retryable, session stays active.
	CodeSessionNotFound         ErrorCode = "session_not_found"        // Unknown or already evicted session id.
	CodeSessionExpired          ErrorCode = "session_expired"          // TTL elapsed before completion.
	CodeInvalidStateTransition  ErrorCode = "invalid_state_transition" // e.g. completing a canceled session.
	CodeOrderNotFound           ErrorCode = "order_not_found"          // Unknown order id.
	CodeMissingAuthorization    ErrorCode = "missing_authorization"    // Authorization header missing.
	CodeInvalidAuthorization    ErrorCode = "invalid_authorization"    // Authorization header malformed or key invalid.
	CodeInvalidSignature        ErrorCode = "invalid_signature"        // Signature missing or does not match the payload.
	CodeSignatureRequired       ErrorCode = "signature_required"       // Signed requests enforced but headers missing.
	CodeStaleTimestamp          ErrorCode = "stale_timestamp"          // Timestamp skew exceeded the allowed window.
)

// Error is the structured failure payload surfaced across the external
// interface. No stack traces or internal identifiers ever cross it.
type Error struct {
	Type    ErrorType `json:"type"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Param   *string   `json:"param,omitempty"`
	// Details lists sub-failures, e.g. per-field validation errors or the
	// unmet interventions behind a negotiation failure.
	Details []string `json:"details,omitempty"`

	status     int           `json:"-"`
	retryAfter time.Duration `json:"-"`
}

// Error makes *Error satisfy the stdlib error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// RetryAfter returns the duration clients should wait before retrying.
func (e *Error) RetryAfter() time.Duration {
	if e == nil {
		return 0
	}
	return e.retryAfter
}

// Retryable reports whether the caller may correct and retry. Risk blocks are
// the only terminal, non-recoverable condition.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Code != CodeRiskBlocked
}

type errorOption func(*Error)

// WithOffendingParam sets the JSON path for the field that triggered the error.
func WithOffendingParam(jsonPath string) errorOption {
	return func(er *Error) {
		er.Param = &jsonPath
	}
}

// WithDetails attaches sub-failure strings to the error payload.
func WithDetails(details ...string) errorOption {
	return func(er *Error) {
		er.Details = append(er.Details, details...)
	}
}

// WithStatusCode overrides the HTTP status code returned to the client.
func WithStatusCode(status int) errorOption {
	return func(er *Error) {
		er.status = status
	}
}

// WithRetryAfter specifies how long clients should wait before retrying.
func WithRetryAfter(d time.Duration) errorOption {
	return func(er *Error) {
		er.retryAfter = d
	}
}

// NewProtocolNotDetectedError reports that no adapter recognized the payload.
func NewProtocolNotDetectedError(message string, opts ...errorOption) *Error {
	return newError(ErrorTypeProtocolError, CodeProtocolNotDetected, message, append([]errorOption{WithStatusCode(http.StatusUnprocessableEntity)}, opts...)...)
}

// NewProtocolNotSpecifiedError reports that detection was disabled and no
// explicit protocol was supplied.
func NewProtocolNotSpecifiedError(message string, opts ...errorOption) *Error {
	return newError(ErrorTypeProtocolError, CodeProtocolNotSpecified, message, append([]errorOption{WithStatusCode(http.StatusBadRequest)}, opts...)...)
}

// NewAdapterNotFoundError names the protocol that has no registered adapter.
func NewAdapterNotFoundError(protocol string, opts ...errorOption) *Error {
	return newError(ErrorTypeProtocolError, CodeAdapterNotFound, "no adapter registered for protocol "+protocol, append([]errorOption{WithStatusCode(http.StatusNotImplemented)}, opts...)...)
}

// NewInvalidRequestError builds a Bad Request error payload.
func NewInvalidRequestError(message string, opts ...errorOption) *Error {
	return newError(ErrorTypeInvalidRequest, CodeInvalidRequest, message, append([]errorOption{WithStatusCode(http.StatusBadRequest)}, opts...)...)
}

// NewInvalidResponseError flags canonical data the system itself produced
// failing its own consistency contract. Always a programming-level bug.
func NewInvalidResponseError(message string, opts ...errorOption) *Error {
	return newError(ErrorTypeProcessingError, CodeInvalidResponse, message, append([]errorOption{WithStatusCode(http.StatusInternalServerError)}, opts...)...)
}

// NewNegotiationIncompatibleError reports a payment-method or intervention
// mismatch between agent and seller.
func NewNegotiationIncompatibleError(message string, opts ...errorOption) *Error {
	return newError(ErrorTypeStateError, CodeNegotiationIncompatible, message, append([]errorOption{WithStatusCode(http.StatusConflict)}, opts...)...)
}

// NewRiskBlockedError is terminal: completion is refused unconditionally.
func NewRiskBlockedError(message string, opts ...errorOption) *Error {
	return newError(ErrorTypeRiskError, CodeRiskBlocked, message, append([]errorOption{WithStatusCode(http.StatusForbidden)}, opts...)...)
}

// NewVerificationRequiredError lists the interventions that would satisfy
// verification in its details.
func NewVerificationRequiredError(message string, opts ...errorOption) *Error {
	return newError(ErrorTypeRiskError, CodeVerificationRequired, message, append([]errorOption{WithStatusCode(http.StatusForbidden)}, opts...)...)
}

// NewPaymentFailedError leaves the session active so the attempt can be retried.
func NewPaymentFailedError(message string, opts ...errorOption) *Error {
	return newError(ErrorTypeProcessingError, CodePaymentFailed, message, append([]errorOption{WithStatusCode(http.StatusBadGateway)}, opts...)...)
}

// NewSessionNotFoundError covers unknown and already evicted session ids.
func NewSessionNotFoundError(id string, opts ...errorOption) *Error {
	return newError(ErrorTypeStateError, CodeSessionNotFound, "checkout session "+id+" not found", append([]errorOption{WithStatusCode(http.StatusNotFound)}, opts...)...)
}

// NewSessionExpiredError reports a session whose TTL elapsed before the
// request reached it. Subsequent lookups see not-found, since expiry evicts.
func NewSessionExpiredError(id string, opts ...errorOption) *Error {
	return newError(ErrorTypeStateError, CodeSessionExpired, "checkout session "+id+" has expired", append([]errorOption{WithStatusCode(http.StatusGone)}, opts...)...)
}

// NewInvalidStateTransitionError reports an operation illegal in the current
// session or order state.
func NewInvalidStateTransitionError(message string, opts ...errorOption) *Error {
	return newError(ErrorTypeStateError, CodeInvalidStateTransition, message, append([]errorOption{WithStatusCode(http.StatusConflict)}, opts...)...)
}

// NewOrderNotFoundError reports an unknown order id.
func NewOrderNotFoundError(id string, opts ...errorOption) *Error {
	return newError(ErrorTypeStateError, CodeOrderNotFound, "order "+id+" not found", append([]errorOption{WithStatusCode(http.StatusNotFound)}, opts...)...)
}

// NewProcessingError builds an Internal Server Error payload.
func NewProcessingError(message string, opts ...errorOption) *Error {
	return newError(ErrorTypeProcessingError, ErrorCode("processing_error"), message, append([]errorOption{WithStatusCode(http.StatusInternalServerError)}, opts...)...)
}

// NewHTTPError allows callers to control the status code explicitly.
func NewHTTPError(status int, typ ErrorType, code ErrorCode, message string, opts ...errorOption) *Error {
	return newError(typ, code, message, append(opts, WithStatusCode(status))...)
}

// newError builds a typed error payload.
func newError(typ ErrorType, code ErrorCode, message string, opts ...errorOption) *Error {
	errPayload := &Error{
		Type:    typ,
		Code:    code,
		Message: message,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(errPayload)
	}
	return errPayload
}
