package bridge

import (
	"context"
	"net/http"
	"strings"
)

// RequestContext carries the HTTP metadata of the request being orchestrated.
type RequestContext struct {
	// API Key used to make requests
	//
	// Example: Bearer api_key_123
	Authorization string
	// The preferred locale for content like messages and errors
	//
	// Example: en-US
	AcceptLanguage string
	// Information about the client making this request
	//
	// Example: ShopAgent/1.4 (Linux; x86_64)
	UserAgent string
	// Key used to ensure requests are idempotent
	//
	// Example: idempotency_key_123
	IdempotencyKey string
	// Unique key for each request for tracing purposes
	//
	// Example: request_id_123
	RequestID string
	// Base64 encoded signature of the request body
	//
	// Example: eyJtZX...
	Signature string
	// Formatted as an RFC 3339 string.
	//
	// Example: 2026-02-01T10:30:00Z
	Timestamp string
	// API version
	//
	// Example: 2026-02-01
	APIVersion string
	// Explicit agent-side protocol, overriding detection when present.
	//
	// Example: acp
	AgentProtocol string
	// Explicit merchant-side protocol for the response rendering.
	//
	// Example: x402
	MerchantProtocol string
}

func requestContextFromRequest(r *http.Request) *RequestContext {
	return &RequestContext{
		Authorization:    strings.TrimSpace(r.Header.Get("Authorization")),
		AcceptLanguage:   strings.TrimSpace(r.Header.Get("Accept-Language")),
		UserAgent:        strings.TrimSpace(r.Header.Get("User-Agent")),
		IdempotencyKey:   strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		RequestID:        strings.TrimSpace(r.Header.Get("Request-Id")),
		Signature:        strings.TrimSpace(r.Header.Get("Signature")),
		Timestamp:        strings.TrimSpace(r.Header.Get("Timestamp")),
		APIVersion:       strings.TrimSpace(r.Header.Get("API-Version")),
		AgentProtocol:    strings.TrimSpace(r.Header.Get("Bridge-Agent-Protocol")),
		MerchantProtocol: strings.TrimSpace(r.Header.Get("Bridge-Merchant-Protocol")),
	}
}

type requestContextKey struct{}

func contextWithRequestContext(ctx context.Context, requestCtx *RequestContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if requestCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, requestContextKey{}, requestCtx)
}

// RequestContextFromContext extracts the HTTP request metadata previously stored in the context.
func RequestContextFromContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return nil
	}
	if requestCtx, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok {
		return requestCtx
	}
	return nil
}
