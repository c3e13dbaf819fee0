package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionState is the internal lifecycle state. The merchant-facing display
// status is derived from it together with the risk decision and verification.
type SessionState string

const (
	SessionStateActive    SessionState = "active"
	SessionStateCompleted SessionState = "completed"
	SessionStateCanceled  SessionState = "canceled"
)

// Session is the stateful checkout transaction. Once completed or canceled it
// is immutable except for the order reference.
type Session struct {
	ID                  string
	State               SessionState
	Currency            string
	LineItems           []LineItem
	FulfillmentOptions  []FulfillmentOption
	FulfillmentOptionID string
	Totals              []Total

	Agent  AgentCapabilities
	Seller SellerCapabilities

	// Risk is computed once, at creation, from the request snapshot.
	Risk     RiskResult
	Verified bool

	NegotiationCompatible bool
	// negotiatedStatus is the display status negotiation produced while the
	// session is active and unblocked.
	negotiatedStatus      SessionStatus
	RequiredInterventions []string
	Messages              []Message

	Country       string
	ShippingSpeed string
	Metadata      map[string]string

	Order *OrderRef

	CreatedAt time.Time
	ExpiresAt time.Time
}

// DisplayStatus derives the merchant-facing status from (state, risk
// decision, verified) plus the negotiation outcome.
func (s *Session) DisplayStatus() SessionStatus {
	switch s.State {
	case SessionStateCompleted:
		return SessionStatusCompleted
	case SessionStateCanceled:
		return SessionStatusCanceled
	}
	if !s.NegotiationCompatible {
		return SessionStatusNotReadyForPayment
	}
	switch s.Risk.Decision {
	case RiskDecisionBlock:
		return SessionStatusNotReadyForPayment
	case RiskDecisionChallenge:
		if !s.Verified {
			return SessionStatusAuthenticationRequired
		}
	}
	if s.negotiatedStatus == SessionStatusAuthenticationRequired && !s.Verified {
		return SessionStatusAuthenticationRequired
	}
	return SessionStatusReadyForPayment
}

// View renders the canonical merchant-facing session.
func (s *Session) View() *CheckoutSession {
	view := &CheckoutSession{
		ID:                  s.ID,
		Status:              s.DisplayStatus(),
		Currency:            s.Currency,
		LineItems:           append([]LineItem{}, s.LineItems...),
		FulfillmentOptions:  append([]FulfillmentOption{}, s.FulfillmentOptions...),
		FulfillmentOptionID: s.FulfillmentOptionID,
		Totals:              append([]Total{}, s.Totals...),
		SellerCapabilities:  s.Seller,
		HaloRisk:            s.Risk,
		Messages:            append([]Message{}, s.Messages...),
	}
	if s.Order != nil {
		ref := *s.Order
		view.Order = &ref
	}
	return view
}

// TotalCents returns the amount of the session's single total entry.
func (s *Session) TotalCents() int {
	for _, t := range s.Totals {
		if t.Type == TotalTypeTotal {
			return t.Amount
		}
	}
	return 0
}

func (s *Session) clone() *Session {
	out := *s
	out.LineItems = append([]LineItem{}, s.LineItems...)
	out.FulfillmentOptions = append([]FulfillmentOption{}, s.FulfillmentOptions...)
	out.Totals = append([]Total{}, s.Totals...)
	out.Messages = append([]Message{}, s.Messages...)
	out.RequiredInterventions = append([]string{}, s.RequiredInterventions...)
	if s.Order != nil {
		ref := *s.Order
		out.Order = &ref
	}
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// SessionService owns the checkout-session state machine. All dependencies
// are constructor-injected so tests can substitute them.
type SessionService struct {
	store    *SessionStore
	orders   *OrderService
	executor PaymentExecutor
	catalog  CatalogLookup
	notifier NotificationSender
	clock    func() time.Time
	newID    func() string
	logger   zerolog.Logger
}

// SessionServiceOption customizes service construction.
type SessionServiceOption func(*SessionService)

// WithSessionClock provides deterministic time in tests.
func WithSessionClock(clock func() time.Time) SessionServiceOption {
	return func(s *SessionService) { s.clock = clock }
}

// WithSessionIDs overrides id generation in tests.
func WithSessionIDs(fn func() string) SessionServiceOption {
	return func(s *SessionService) { s.newID = fn }
}

// WithNotifier attaches the fire-and-forget step-up notification sender.
func WithNotifier(n NotificationSender) SessionServiceOption {
	return func(s *SessionService) { s.notifier = n }
}

// WithSessionLogger attaches a logger.
func WithSessionLogger(logger zerolog.Logger) SessionServiceOption {
	return func(s *SessionService) { s.logger = logger }
}

// NewSessionService wires the state machine to its collaborators.
func NewSessionService(store *SessionStore, orders *OrderService, executor PaymentExecutor, catalog CatalogLookup, opts ...SessionServiceOption) *SessionService {
	svc := &SessionService{
		store:    store,
		orders:   orders,
		executor: executor,
		catalog:  catalog,
		notifier: NopNotifier{},
		clock:    time.Now,
		newID:    func() string { return "cs_" + uuid.NewString() },
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(svc)
	}
	return svc
}

// Create builds a session from a canonical checkout request: negotiation and
// one risk evaluation, then the priced line items and totals.
func (svc *SessionService) Create(ctx context.Context, req CheckoutRequest, mctx MerchantContext) (*Session, *Error) {
	seller := mctx.Seller
	if req.Seller != nil {
		seller = *req.Seller
	}

	lineItems, currency, err := svc.priceItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	now := svc.clock()
	session := &Session{
		ID:                 svc.newID(),
		State:              SessionStateActive,
		Currency:           currency,
		LineItems:          lineItems,
		FulfillmentOptions: append([]FulfillmentOption{}, mctx.FulfillmentOptions...),
		Agent:              req.Agent,
		Seller:             seller,
		Country:            normalizedCountry(req.Country),
		ShippingSpeed:      req.ShippingSpeed,
		Metadata:           req.Metadata,
		CreatedAt:          now,
		ExpiresAt:          now.Add(svc.store.TTL()),
	}

	if req.FulfillmentOptionID != "" {
		if opt, ok := session.fulfillmentOption(req.FulfillmentOptionID); ok {
			session.FulfillmentOptionID = opt.ID
			if session.ShippingSpeed == "" {
				session.ShippingSpeed = opt.Speed
			}
		} else {
			return nil, NewInvalidRequestError(fmt.Sprintf("fulfillment option %q does not exist", req.FulfillmentOptionID), WithOffendingParam("$.fulfillment_option_id"))
		}
	}
	session.recalculateTotals()

	negotiation := Negotiate(req.Agent, seller)
	session.NegotiationCompatible = negotiation.Compatible
	session.negotiatedStatus = negotiation.Status
	session.RequiredInterventions = negotiation.RequiredInterventions
	session.Messages = negotiation.Messages

	session.Risk = ComputeRiskScore(RiskAttributes{
		TotalCents:    session.TotalCents(),
		Country:       session.Country,
		ShippingSpeed: session.ShippingSpeed,
	})

	svc.store.Put(session)
	svc.logger.Info().
		Str("session_id", session.ID).
		Str("status", string(session.DisplayStatus())).
		Int("risk_score", session.Risk.Score).
		Str("risk_decision", string(session.Risk.Decision)).
		Msg("checkout session created")
	return session.clone(), nil
}

// Get returns a snapshot, enforcing lazy TTL expiry.
func (svc *SessionService) Get(_ context.Context, id string) (*Session, *Error) {
	return svc.store.Get(id)
}

// Update applies item, fulfillment, and metadata changes. Permitted only
// while active. Risk is deliberately not recomputed; the selected fulfillment
// option is revalidated against the options that still exist.
func (svc *SessionService) Update(ctx context.Context, id string, req CheckoutRequest) (*Session, *Error) {
	var snapshot *Session
	err := svc.store.Mutate(id, func(s *Session) *Error {
		if s.State != SessionStateActive {
			return NewInvalidStateTransitionError(fmt.Sprintf("cannot update a %s session", s.State))
		}
		if len(req.Items) > 0 {
			lineItems, currency, err := svc.priceItems(ctx, req.Items)
			if err != nil {
				return err
			}
			s.LineItems = lineItems
			s.Currency = currency
		}
		if req.FulfillmentOptionID != "" {
			opt, ok := s.fulfillmentOption(req.FulfillmentOptionID)
			if !ok {
				return NewInvalidRequestError(fmt.Sprintf("fulfillment option %q does not exist", req.FulfillmentOptionID), WithOffendingParam("$.fulfillment_option_id"))
			}
			s.FulfillmentOptionID = opt.ID
			s.ShippingSpeed = opt.Speed
		} else if s.FulfillmentOptionID != "" {
			if _, ok := s.fulfillmentOption(s.FulfillmentOptionID); !ok {
				return NewInvalidRequestError(fmt.Sprintf("previously selected fulfillment option %q no longer exists", s.FulfillmentOptionID))
			}
		}
		for k, v := range req.Metadata {
			if s.Metadata == nil {
				s.Metadata = make(map[string]string)
			}
			s.Metadata[k] = v
		}
		s.recalculateTotals()
		snapshot = s.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Verify records a completed step-up intervention on a challenge session.
// After this, exactly one more completion attempt may pass the risk gate.
func (svc *SessionService) Verify(_ context.Context, id, method string) (*Session, *Error) {
	var snapshot *Session
	err := svc.store.Mutate(id, func(s *Session) *Error {
		if s.State != SessionStateActive {
			return NewInvalidStateTransitionError(fmt.Sprintf("cannot verify a %s session", s.State))
		}
		if s.Risk.Decision == RiskDecisionBlock {
			return NewRiskBlockedError("blocked sessions cannot be verified")
		}
		if len(s.RequiredInterventions) > 0 && !containsString(s.RequiredInterventions, method) {
			return NewInvalidRequestError(
				fmt.Sprintf("verification method %q does not satisfy the required interventions", method),
				WithDetails(s.RequiredInterventions...),
			)
		}
		s.Verified = true
		snapshot = s.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Complete runs the risk gate and executes payment. The per-id lock is held
// across the executor call so no other mutation of this session can
// interleave with the suspension point.
func (svc *SessionService) Complete(ctx context.Context, id string, req PaymentRequest) (*Session, *Error) {
	entry, lerr := svc.store.lookup(id)
	if lerr != nil {
		return nil, lerr
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	s := entry.session
	switch s.State {
	case SessionStateCompleted:
		return nil, NewInvalidStateTransitionError("session is already completed")
	case SessionStateCanceled:
		return nil, NewInvalidStateTransitionError("session is canceled")
	}
	if !s.NegotiationCompatible {
		return nil, NewNegotiationIncompatibleError("agent and seller capabilities are incompatible")
	}
	if req.Method.Type != "" && !s.Seller.AcceptsPaymentMethod(req.Method.Type) {
		return nil, NewNegotiationIncompatibleError(fmt.Sprintf("seller does not accept payment method %q", req.Method.Type))
	}

	switch s.Risk.Decision {
	case RiskDecisionBlock:
		// Terminal. No override, no matter how often retried.
		return nil, NewRiskBlockedError("transaction blocked by risk adjudication")
	case RiskDecisionChallenge:
		if !s.Verified {
			svc.notifyStepUp(s)
			return nil, NewVerificationRequiredError(
				"step-up verification required before completion",
				WithDetails(verificationMethods(s)...),
			)
		}
	}
	if s.negotiatedStatus == SessionStatusAuthenticationRequired && !s.Verified {
		svc.notifyStepUp(s)
		return nil, NewVerificationRequiredError(
			"seller requires step-up authentication before completion",
			WithDetails(verificationMethods(s)...),
		)
	}

	entry.beginPayment()
	result, execErr := svc.executor.Execute(ctx, s.ID, s.TotalCents(), s.Currency, req.Method)
	if entry.finishPayment() {
		// A cancel was accepted while the payment call was outstanding. The
		// payment result, success or failure, is discarded. No refund is
		// issued: nothing has settled yet.
		s.State = SessionStateCanceled
		svc.logger.Info().Str("session_id", s.ID).Msg("deferred cancellation applied after in-flight payment resolved")
		return nil, NewInvalidStateTransitionError("session was canceled while payment was in flight")
	}
	if execErr != nil {
		// Retryable: a failed attempt must not burn the session.
		return nil, NewPaymentFailedError(execErr.Error())
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "payment was declined"
		}
		return nil, NewPaymentFailedError(msg, WithDetails(result.FailureCode))
	}

	s.State = SessionStateCompleted
	order, oerr := svc.orders.CreateFromSession(ctx, s, result.TransactionID)
	if oerr != nil {
		return nil, oerr
	}
	s.Order = &OrderRef{ID: order.ID, PermalinkURL: order.PermalinkURL}
	svc.logger.Info().
		Str("session_id", s.ID).
		Str("order_id", order.ID).
		Str("transaction_id", result.TransactionID).
		Msg("checkout session completed")
	return s.clone(), nil
}

// Cancel is permitted from active only. A cancel racing an in-flight payment
// is accepted and deferred; the payment's resolution is then discarded.
func (svc *SessionService) Cancel(_ context.Context, id string) (*Session, *Error) {
	entry, lerr := svc.store.lookup(id)
	if lerr != nil {
		return nil, lerr
	}
	if snapshot, pending := entry.requestCancelIfPending(); pending {
		svc.logger.Info().Str("session_id", id).Msg("cancellation deferred behind in-flight payment")
		return snapshot, nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	s := entry.session
	if s.State != SessionStateActive {
		return nil, NewInvalidStateTransitionError(fmt.Sprintf("cannot cancel a %s session", s.State))
	}
	// No refund here: cancellation of a session is distinct from order
	// cancellation, and nothing has settled.
	s.State = SessionStateCanceled
	return s.clone(), nil
}

func (svc *SessionService) notifyStepUp(s *Session) {
	notifier := svc.notifier
	methods := verificationMethods(s)
	// Fire-and-forget: a notification failure never blocks a transition.
	go func() {
		_ = notifier.Send(context.Background(), Notification{
			SessionID: s.ID,
			Kind:      NotificationKindStepUp,
			Body:      "verification required: " + strings.Join(methods, ", "),
		})
	}()
}

// priceItems resolves each requested item through the catalog when the wire
// request lacked a name or price, then builds canonical line items.
func (svc *SessionService) priceItems(ctx context.Context, items []ItemRequest) ([]LineItem, string, *Error) {
	if len(items) == 0 {
		return nil, "", NewInvalidRequestError("items must contain at least one entry")
	}
	currency := ""
	lineItems := make([]LineItem, 0, len(items))
	for i, item := range items {
		if item.Quantity < 1 {
			return nil, "", NewInvalidRequestError(fmt.Sprintf("items[%d]: quantity must be at least 1", i))
		}
		if item.AmountCents < 0 {
			return nil, "", NewInvalidRequestError(fmt.Sprintf("items[%d]: amount must not be negative", i))
		}
		name := item.Name
		unit := item.AmountCents
		if (name == "" || unit == 0) && svc.catalog != nil {
			product, err := svc.catalog.Lookup(ctx, item.ID)
			if err != nil {
				return nil, "", NewInvalidRequestError(fmt.Sprintf("items[%d]: unknown item %q", i, item.ID))
			}
			if name == "" {
				name = product.Name
			}
			if unit == 0 {
				unit = product.UnitPriceCents
			}
		}
		if currency == "" {
			currency = item.Currency
		} else if item.Currency != currency {
			return nil, "", NewInvalidRequestError(fmt.Sprintf("items[%d]: currency %q does not match %q", i, item.Currency, currency))
		}
		base := unit * item.Quantity
		lineItems = append(lineItems, LineItem{
			ID:         item.ID,
			Name:       name,
			Quantity:   item.Quantity,
			BaseAmount: base,
			Discount:   0,
			Subtotal:   base,
			Tax:        0,
			Total:      base,
		})
	}
	return lineItems, currency, nil
}

func (s *Session) fulfillmentOption(id string) (FulfillmentOption, bool) {
	for _, opt := range s.FulfillmentOptions {
		if opt.ID == id {
			return opt, true
		}
	}
	return FulfillmentOption{}, false
}

// recalculateTotals rebuilds the totals array. The single "total" entry is
// the sum of line-item totals plus the selected fulfillment cost.
func (s *Session) recalculateTotals() {
	base, subtotal, tax, total := 0, 0, 0, 0
	for _, li := range s.LineItems {
		base += li.BaseAmount
		subtotal += li.Subtotal
		tax += li.Tax
		total += li.Total
	}
	totals := []Total{
		{Type: TotalTypeItemsBaseAmount, Amount: base, DisplayText: "Items"},
		{Type: TotalTypeSubtotal, Amount: subtotal, DisplayText: "Subtotal"},
		{Type: TotalTypeTax, Amount: tax, DisplayText: "Tax"},
	}
	if s.FulfillmentOptionID != "" {
		if opt, ok := s.fulfillmentOption(s.FulfillmentOptionID); ok {
			totals = append(totals, Total{Type: TotalTypeFulfillment, Amount: opt.Total, DisplayText: opt.Title})
			total += opt.Total
		}
	}
	totals = append(totals, Total{Type: TotalTypeTotal, Amount: total, DisplayText: "Total"})
	s.Totals = totals
}

func verificationMethods(s *Session) []string {
	if len(s.RequiredInterventions) > 0 {
		return append([]string{}, s.RequiredInterventions...)
	}
	if len(s.Agent.Interventions) > 0 {
		return append([]string{}, s.Agent.Interventions...)
	}
	return []string{InterventionThreeDS, InterventionOTP}
}

func normalizedCountry(country string) string {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return "US"
	}
	return country
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
