package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Orchestrator is implemented by the translation entry point the HTTP
// surface fronts. *Router satisfies it.
type Orchestrator interface {
	Orchestrate(ctx context.Context, raw json.RawMessage, opts OrchestrateOptions) (*OrchestrateResult, *Error)
	Detect(raw json.RawMessage) (string, bool)
	SupportedProtocols() []string
}

// BridgeHandler wires the orchestration routes to an [Orchestrator].
type BridgeHandler struct {
	router           Orchestrator
	merchantProtocol string
	merchant         MerchantContext
	mux              *http.ServeMux
	cfg              config
}

// NewBridgeHandler builds a [BridgeHandler] backed by net/http's ServeMux.
// merchantProtocol names the protocol responses are rendered in unless the
// request overrides it; the merchant context supplies the seller-side data
// every translated session is priced and negotiated against.
func NewBridgeHandler(router Orchestrator, merchantProtocol string, merchant MerchantContext, opts ...Option) *BridgeHandler {
	cfg := config{
		maxClockSkew: 5 * time.Minute,
		clock:        time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.requireSignedRequests && cfg.signatureVerifier == nil {
		panic("bridge: signature verifier required when signed requests are enforced")
	}
	h := &BridgeHandler{
		router:           router,
		merchantProtocol: merchantProtocol,
		merchant:         merchant,
		mux:              http.NewServeMux(),
		cfg:              cfg,
	}
	var middleware []Middleware
	if cfg.authenticator != nil {
		middleware = append(middleware, authenticationMiddleware(cfg.authenticator))
	}
	if mw := newSignatureMiddleware(signatureMiddlewareConfig{
		Verifier:      cfg.signatureVerifier,
		RequireSigned: cfg.requireSignedRequests,
		MaxClockSkew:  cfg.maxClockSkew,
		Clock:         cfg.clock,
	}); mw != nil {
		middleware = append(middleware, mw)
	}
	middleware = append(middleware, cfg.middleware...)
	h.registerRoutes(middleware...)
	return h
}

// WebhookSink returns an [OrderEventSink] for the configured webhook
// endpoint, or nil when webhooks were not configured.
func (h *BridgeHandler) WebhookSink() OrderEventSink {
	if h.cfg.webhook == nil {
		return nil
	}
	return newWebhookSender(h.cfg.webhook)
}

// ServeHTTP satisfies http.Handler.
func (h *BridgeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestCtx := requestContextFromRequest(r)
	ctx := contextWithRequestContext(r.Context(), requestCtx)
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

func (h *BridgeHandler) registerRoutes(middleware ...Middleware) {
	h.mux.HandleFunc("POST /bridge/orchestrate", applyMiddleware(h.handleOrchestrate, middleware...))
	h.mux.HandleFunc("POST /bridge/detect", applyMiddleware(h.handleDetect, middleware...))
	h.mux.HandleFunc("GET /bridge/protocols", applyMiddleware(h.handleProtocols, middleware...))
}

func (h *BridgeHandler) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeJSON(r.Body, &raw); err != nil {
		writeJSONError(w, NewInvalidRequestError(err.Error()))
		return
	}

	opts := OrchestrateOptions{
		MerchantProtocol: h.merchantProtocol,
		MerchantContext:  h.merchant,
	}
	if requestCtx := RequestContextFromContext(r.Context()); requestCtx != nil {
		if requestCtx.AgentProtocol != "" {
			opts.AgentProtocol = requestCtx.AgentProtocol
		}
		if requestCtx.MerchantProtocol != "" {
			opts.MerchantProtocol = requestCtx.MerchantProtocol
		}
	}

	result, orchErr := h.router.Orchestrate(r.Context(), raw, opts)
	if orchErr != nil {
		writeServiceError(w, orchErr)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// detectResponse names the protocol an opaque payload speaks.
type detectResponse struct {
	Protocol string `json:"protocol"`
	Detected bool   `json:"detected"`
}

func (h *BridgeHandler) handleDetect(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeJSON(r.Body, &raw); err != nil {
		writeJSONError(w, NewInvalidRequestError(err.Error()))
		return
	}
	protocol, ok := h.router.Detect(raw)
	writeJSON(w, http.StatusOK, detectResponse{Protocol: protocol, Detected: ok})
}

// protocolsResponse lists the protocols the deployment can translate.
type protocolsResponse struct {
	Protocols []string `json:"protocols"`
}

func (h *BridgeHandler) handleProtocols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocolsResponse{Protocols: h.router.SupportedProtocols()})
}
