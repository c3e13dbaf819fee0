package bridge

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// OrchestrateOptions name the two sides of a translation. MerchantProtocol
// is required; AgentProtocol is auto-detected unless detection is disabled.
type OrchestrateOptions struct {
	AgentProtocol     string
	MerchantProtocol  string
	MerchantContext   MerchantContext
	DisableAutoDetect bool
}

// OrchestrateResult is the merchant-facing payload tagged with the resolved
// protocol pair for observability.
type OrchestrateResult struct {
	Payload          json.RawMessage `json:"payload"`
	AgentProtocol    string          `json:"agent_protocol"`
	MerchantProtocol string          `json:"merchant_protocol"`
}

// Router is the single orchestration entry point. It holds no
// protocol-specific logic; all protocol knowledge is confined to adapters.
// Construct one at process start and pass it to call sites; there is no
// package-level instance.
type Router struct {
	registry *Registry
	sessions *SessionService
	logger   zerolog.Logger
}

// RouterOption customizes router construction.
type RouterOption func(*Router)

// WithRouterLogger attaches a logger.
func WithRouterLogger(logger zerolog.Logger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

// NewRouter wires the router to its injected collaborators.
func NewRouter(registry *Registry, sessions *SessionService, opts ...RouterOption) *Router {
	if registry == nil {
		panic("router: registry is required")
	}
	if sessions == nil {
		panic("router: session service is required")
	}
	r := &Router{
		registry: registry,
		sessions: sessions,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r
}

// Detect returns the protocol name of the first adapter recognizing the
// payload, or false when none does.
func (r *Router) Detect(raw json.RawMessage) (string, bool) {
	adapter, ok := r.registry.Detect(raw)
	if !ok {
		return "", false
	}
	return adapter.ProtocolName(), true
}

// SupportedProtocols lists the registered protocol names.
func (r *Router) SupportedProtocols() []string {
	return r.registry.Protocols()
}

// Orchestrate translates one agent payload into one merchant payload:
// resolve adapters, validate, parse to canonical form, run the business
// processing, then validate and build the merchant response.
func (r *Router) Orchestrate(ctx context.Context, raw json.RawMessage, opts OrchestrateOptions) (*OrchestrateResult, *Error) {
	agentAdapter, err := r.resolveAgentAdapter(raw, opts)
	if err != nil {
		return nil, err
	}
	if opts.MerchantProtocol == "" {
		return nil, NewProtocolNotSpecifiedError("merchant protocol is required")
	}
	merchantAdapter, ok := r.registry.Get(opts.MerchantProtocol)
	if !ok {
		return nil, NewAdapterNotFoundError(opts.MerchantProtocol)
	}

	if result := agentAdapter.ValidateRequest(raw); !result.Valid {
		// No partial processing: no session is created past this point.
		return nil, NewInvalidRequestError(
			"request failed "+agentAdapter.ProtocolName()+" schema validation",
			WithDetails(result.Errors...),
		)
	}

	canonical, parseErr := agentAdapter.ParseRequest(raw)
	if parseErr != nil {
		return nil, NewInvalidRequestError(parseErr.Error())
	}

	session, procErr := r.process(ctx, canonical, opts.MerchantContext)
	if procErr != nil {
		r.logger.Debug().
			Str("agent_protocol", agentAdapter.ProtocolName()).
			Str("merchant_protocol", merchantAdapter.ProtocolName()).
			Str("code", string(procErr.Code)).
			Msg("orchestration refused")
		return nil, procErr
	}

	view := session.View()
	if result := merchantAdapter.ValidateResponse(view); !result.Valid {
		// Canonical data we produced failed its own consistency contract.
		return nil, NewInvalidResponseError(
			"canonical session failed "+merchantAdapter.ProtocolName()+" response validation",
			WithDetails(result.Errors...),
		)
	}
	payload, buildErr := merchantAdapter.BuildResponse(view, opts.MerchantContext)
	if buildErr != nil {
		return nil, NewInvalidResponseError(buildErr.Error())
	}

	r.logger.Info().
		Str("agent_protocol", agentAdapter.ProtocolName()).
		Str("merchant_protocol", merchantAdapter.ProtocolName()).
		Str("session_id", session.ID).
		Str("status", string(view.Status)).
		Msg("orchestrated")
	return &OrchestrateResult{
		Payload:          payload,
		AgentProtocol:    agentAdapter.ProtocolName(),
		MerchantProtocol: merchantAdapter.ProtocolName(),
	}, nil
}

func (r *Router) resolveAgentAdapter(raw json.RawMessage, opts OrchestrateOptions) (Adapter, *Error) {
	if opts.AgentProtocol != "" {
		adapter, ok := r.registry.Get(opts.AgentProtocol)
		if !ok {
			return nil, NewAdapterNotFoundError(opts.AgentProtocol)
		}
		return adapter, nil
	}
	if opts.DisableAutoDetect {
		return nil, NewProtocolNotSpecifiedError("agent protocol not given and auto-detection is disabled")
	}
	adapter, ok := r.registry.Detect(raw)
	if !ok {
		return nil, NewProtocolNotDetectedError("no registered adapter recognizes the payload")
	}
	return adapter, nil
}

// process dispatches on the canonical request union produced at parse time.
func (r *Router) process(ctx context.Context, canonical CanonicalRequest, mctx MerchantContext) (*Session, *Error) {
	switch req := canonical.(type) {
	case PaymentRequest:
		return r.sessions.Complete(ctx, req.SessionID, req)
	case CheckoutRequest:
		if req.SessionID != "" {
			return r.sessions.Update(ctx, req.SessionID, req)
		}
		return r.sessions.Create(ctx, req, mctx)
	default:
		return nil, NewProcessingError("unknown canonical request kind")
	}
}
