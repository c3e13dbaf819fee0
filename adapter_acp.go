package bridge

import (
	"encoding/json"
	"fmt"
	"math"
)

// ACPAdapter translates the capability-negotiated agent checkout protocol.
// Requests declare agent capabilities up front; amounts are already integer
// minor currency units on the wire.
type ACPAdapter struct{}

// NewACPAdapter returns the capability-negotiated protocol adapter.
func NewACPAdapter() *ACPAdapter { return &ACPAdapter{} }

// ProtocolName implements [Adapter].
func (a *ACPAdapter) ProtocolName() string { return "acp" }

// Version implements [Adapter].
func (a *ACPAdapter) Version() string { return "2025-09-12" }

// acpCheckoutRequest is the wire shape of a capability-negotiated checkout.
// Amounts decode as float64 so fractional and non-finite values can be
// rejected instead of silently truncated.
type acpCheckoutRequest struct {
	Capabilities acpCapabilities   `json:"capabilities" validate:"required"`
	Seller       *acpSellerCaps    `json:"seller_capabilities,omitempty"`
	Items        []acpItem         `json:"items" validate:"required,min=1,dive"`
	Fulfillment  *acpFulfillment   `json:"fulfillment,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type acpCapabilities struct {
	PaymentMethods []string      `json:"payment_methods" validate:"required,min=1"`
	Interventions  []string      `json:"interventions,omitempty"`
	Features       AgentFeatures `json:"features,omitempty"`
}

type acpSellerCaps struct {
	PaymentMethods        []string           `json:"payment_methods" validate:"required,min=1"`
	RequiredInterventions []string           `json:"required_interventions,omitempty"`
	InterventionPolicy    InterventionPolicy `json:"intervention_policy,omitempty" validate:"omitempty,oneof=always risk_based"`
	Features              SellerFeatures     `json:"features,omitempty"`
}

type acpItem struct {
	ID       string  `json:"id" validate:"required"`
	Name     string  `json:"name,omitempty"`
	Quantity int     `json:"quantity" validate:"required,gte=1"`
	Amount   float64 `json:"amount" validate:"gte=0"`
	Currency string  `json:"currency" validate:"required,currency"`
}

type acpFulfillment struct {
	Country  string `json:"country,omitempty"`
	Speed    string `json:"speed,omitempty" validate:"omitempty,oneof=standard express"`
	OptionID string `json:"option_id,omitempty"`
}

// acpPaymentRequest is the wire shape of a payment submission.
type acpPaymentRequest struct {
	CheckoutSessionID string         `json:"checkout_session_id" validate:"required"`
	PaymentData       acpPaymentData `json:"payment_data" validate:"required"`
}

type acpPaymentData struct {
	Type    string          `json:"type" validate:"required"`
	Token   string          `json:"token" validate:"required"`
	Details json.RawMessage `json:"details,omitempty"`
}

// CanHandle sniffs shallow fields only: a capabilities object marks a
// checkout, a checkout_session_id plus payment_data marks a payment.
func (a *ACPAdapter) CanHandle(raw json.RawMessage) bool {
	var probe struct {
		Capabilities      json.RawMessage `json:"capabilities"`
		CheckoutSessionID string          `json:"checkout_session_id"`
		PaymentData       json.RawMessage `json:"payment_data"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	if len(probe.Capabilities) > 0 && string(probe.Capabilities) != "null" {
		return true
	}
	return probe.CheckoutSessionID != "" && len(probe.PaymentData) > 0
}

// ValidateRequest implements [Adapter] using declarative struct rules.
func (a *ACPAdapter) ValidateRequest(raw json.RawMessage) ValidationResult {
	if a.isPayment(raw) {
		var req acpPaymentRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return invalidResult("payload is not a valid payment request: " + err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return invalidResult(validationErrors(err)...)
		}
		return validResult()
	}

	var req acpCheckoutRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return invalidResult("payload is not a valid checkout request: " + err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return invalidResult(validationErrors(err)...)
	}
	for i, item := range req.Items {
		if err := checkWireAmount(fmt.Sprintf("items[%d].amount", i), item.Amount); err != nil {
			return invalidResult(err.Error())
		}
		if item.Amount != math.Trunc(item.Amount) {
			return invalidResult(fmt.Sprintf("items[%d].amount must be an integer amount in minor units", i))
		}
	}
	return validResult()
}

// ParseRequest implements [Adapter].
func (a *ACPAdapter) ParseRequest(raw json.RawMessage) (CanonicalRequest, error) {
	if a.isPayment(raw) {
		var req acpPaymentRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("acp: parse payment request: %w", err)
		}
		details := req.PaymentData.Details
		if len(details) == 0 {
			details, _ = json.Marshal(map[string]string{"token": req.PaymentData.Token})
		}
		return PaymentRequest{
			SessionID: req.CheckoutSessionID,
			Method: PaymentMethod{
				Type:    req.PaymentData.Type,
				Details: details,
			},
		}, nil
	}

	var req acpCheckoutRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("acp: parse checkout request: %w", err)
	}

	items := make([]ItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ItemRequest{
			ID:          item.ID,
			Name:        item.Name,
			Quantity:    item.Quantity,
			AmountCents: int(item.Amount),
			Currency:    item.Currency,
		})
	}

	out := CheckoutRequest{
		Agent: AgentCapabilities{
			PaymentMethods: req.Capabilities.PaymentMethods,
			Interventions:  req.Capabilities.Interventions,
			Features:       req.Capabilities.Features,
		},
		Items:    items,
		Metadata: req.Metadata,
	}
	if req.Seller != nil {
		out.Seller = &SellerCapabilities{
			PaymentMethods:        req.Seller.PaymentMethods,
			RequiredInterventions: req.Seller.RequiredInterventions,
			InterventionPolicy:    req.Seller.InterventionPolicy,
			Features:              req.Seller.Features,
		}
	}
	if req.Fulfillment != nil {
		out.Country = req.Fulfillment.Country
		out.ShippingSpeed = req.Fulfillment.Speed
		out.FulfillmentOptionID = req.Fulfillment.OptionID
	}
	return out, nil
}

// ValidateResponse implements [Adapter].
func (a *ACPAdapter) ValidateResponse(session *CheckoutSession) ValidationResult {
	if errs := validateCanonicalSession(session); len(errs) > 0 {
		return invalidResult(errs...)
	}
	return validResult()
}

// acpSession is the merchant-facing wire shape.
type acpSession struct {
	ID                  string              `json:"id"`
	Status              string              `json:"status"`
	Currency            string              `json:"currency"`
	LineItems           []acpLineItem       `json:"line_items"`
	FulfillmentOptions  []FulfillmentOption `json:"fulfillment_options"`
	FulfillmentOptionID *string             `json:"fulfillment_option_id,omitempty"`
	Totals              []Total             `json:"totals"`
	Messages            []Message           `json:"messages"`
	PaymentProvider     acpPaymentProvider  `json:"payment_provider"`
	Order               *acpOrderRef        `json:"order,omitempty"`
}

type acpLineItem struct {
	ID         string  `json:"id"`
	Item       acpItem `json:"item"`
	BaseAmount int     `json:"base_amount"`
	Discount   int     `json:"discount"`
	Subtotal   int     `json:"subtotal"`
	Tax        int     `json:"tax"`
	Total      int     `json:"total"`
}

type acpPaymentProvider struct {
	Provider                string   `json:"provider"`
	SupportedPaymentMethods []string `json:"supported_payment_methods"`
}

type acpOrderRef struct {
	ID                string `json:"id"`
	CheckoutSessionID string `json:"checkout_session_id"`
	PermalinkURL      string `json:"permalink_url,omitempty"`
}

// BuildResponse implements [Adapter]. Authentication-required sessions render
// as not_ready_for_payment plus a requires_3ds style message; a risk block
// renders with an empty supported-payment-methods list.
func (a *ACPAdapter) BuildResponse(session *CheckoutSession, mctx MerchantContext) (json.RawMessage, error) {
	status := map[SessionStatus]string{
		SessionStatusReadyForPayment:        "ready_for_payment",
		SessionStatusNotReadyForPayment:     "not_ready_for_payment",
		SessionStatusAuthenticationRequired: "not_ready_for_payment",
		SessionStatusCompleted:              "completed",
		SessionStatusCanceled:               "canceled",
	}[session.Status]
	if status == "" {
		return nil, fmt.Errorf("acp: unmapped session status %q", session.Status)
	}

	lineItems := make([]acpLineItem, 0, len(session.LineItems))
	for _, li := range session.LineItems {
		lineItems = append(lineItems, acpLineItem{
			ID: li.ID,
			Item: acpItem{
				ID:       li.ID,
				Name:     li.Name,
				Quantity: li.Quantity,
				Amount:   float64(li.BaseAmount / max(li.Quantity, 1)),
				Currency: session.Currency,
			},
			BaseAmount: li.BaseAmount,
			Discount:   li.Discount,
			Subtotal:   li.Subtotal,
			Tax:        li.Tax,
			Total:      li.Total,
		})
	}

	messages := append([]Message{}, session.Messages...)
	provider := acpPaymentProvider{
		Provider:                mctx.MerchantID,
		SupportedPaymentMethods: mctx.Seller.PaymentMethods,
	}
	if session.HaloRisk.Decision == RiskDecisionBlock {
		provider.SupportedPaymentMethods = []string{}
		messages = append(messages, NewErrorMessage("payment_declined", "transaction blocked by risk adjudication"))
	} else if session.Status == SessionStatusAuthenticationRequired {
		messages = append(messages, NewErrorMessage("requires_3ds", "step-up authentication required before payment"))
	}
	if provider.SupportedPaymentMethods == nil {
		provider.SupportedPaymentMethods = []string{}
	}

	out := acpSession{
		ID:                 session.ID,
		Status:             status,
		Currency:           session.Currency,
		LineItems:          lineItems,
		FulfillmentOptions: session.FulfillmentOptions,
		Totals:             session.Totals,
		Messages:           messages,
		PaymentProvider:    provider,
	}
	if out.FulfillmentOptions == nil {
		out.FulfillmentOptions = []FulfillmentOption{}
	}
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	if session.FulfillmentOptionID != "" {
		out.FulfillmentOptionID = &session.FulfillmentOptionID
	}
	if session.Order != nil {
		out.Order = &acpOrderRef{
			ID:                session.Order.ID,
			CheckoutSessionID: session.ID,
			PermalinkURL:      session.Order.PermalinkURL,
		}
	}
	return json.Marshal(out)
}

func (a *ACPAdapter) isPayment(raw json.RawMessage) bool {
	var probe struct {
		CheckoutSessionID string `json:"checkout_session_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.CheckoutSessionID != ""
}
