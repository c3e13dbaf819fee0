package bridge

import (
	"encoding/json"
	"fmt"
	"math"
)

// UCPAdapter translates the intent-based universal checkout protocol.
// Amounts arrive as float major units (dollars) and are normalized to integer
// cents during parsing.
type UCPAdapter struct{}

// NewUCPAdapter returns the intent-based protocol adapter.
func NewUCPAdapter() *UCPAdapter { return &UCPAdapter{} }

// ProtocolName implements [Adapter].
func (a *UCPAdapter) ProtocolName() string { return "ucp" }

// Version implements [Adapter].
func (a *UCPAdapter) Version() string { return "2026-01-11" }

type ucpIntent struct {
	Action     string `json:"action"`
	CheckoutID string `json:"checkout_id,omitempty"`
}

type ucpRequest struct {
	Intent      ucpIntent         `json:"intent"`
	Cart        *ucpCart          `json:"cart,omitempty"`
	Agent       *ucpAgentProfile  `json:"agent,omitempty"`
	Seller      *ucpSellerCaps    `json:"seller,omitempty"`
	Buyer       *ucpBuyer         `json:"buyer,omitempty"`
	Fulfillment *ucpFulfillment   `json:"fulfillment,omitempty"`
	Payment     *ucpPayment       `json:"payment,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type ucpCart struct {
	Items []ucpCartItem `json:"items"`
}

type ucpCartItem struct {
	SKU       string   `json:"sku"`
	Title     string   `json:"title,omitempty"`
	Quantity  int      `json:"quantity"`
	UnitPrice *float64 `json:"unit_price"` // major units, e.g. 59.00
	Currency  string   `json:"currency"`
}

type ucpAgentProfile struct {
	PaymentMethods []string      `json:"payment_methods"`
	Interventions  []string      `json:"interventions,omitempty"`
	Features       AgentFeatures `json:"features,omitempty"`
}

type ucpSellerCaps struct {
	PaymentMethods        []string           `json:"payment_methods"`
	RequiredInterventions []string           `json:"required_interventions,omitempty"`
	InterventionPolicy    InterventionPolicy `json:"intervention_policy,omitempty"`
	Features              SellerFeatures     `json:"features,omitempty"`
}

type ucpBuyer struct {
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	AddressCountry string `json:"address_country,omitempty"`
}

type ucpFulfillment struct {
	Type     string `json:"type,omitempty"`
	Speed    string `json:"speed,omitempty"`
	OptionID string `json:"option_id,omitempty"`
}

type ucpPayment struct {
	Instruments []ucpInstrument `json:"instruments"`
}

type ucpInstrument struct {
	Type       string          `json:"type"`
	Selected   bool            `json:"selected,omitempty"`
	Credential json.RawMessage `json:"credential,omitempty"`
}

// Intent actions the adapter understands.
const (
	ucpActionCheckout = "checkout"
	ucpActionUpdate   = "update"
	ucpActionComplete = "complete"
)

// CanHandle sniffs for the intent.action field only.
func (a *UCPAdapter) CanHandle(raw json.RawMessage) bool {
	var probe struct {
		Intent struct {
			Action string `json:"action"`
		} `json:"intent"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Intent.Action != ""
}

// ValidateRequest implements [Adapter].
func (a *UCPAdapter) ValidateRequest(raw json.RawMessage) ValidationResult {
	var req ucpRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return invalidResult("payload is not a valid intent request: " + err.Error())
	}

	switch req.Intent.Action {
	case ucpActionCheckout, ucpActionUpdate:
		if req.Cart == nil || len(req.Cart.Items) == 0 {
			return invalidResult("cart.items must contain at least one entry")
		}
		var errs []string
		for i, item := range req.Cart.Items {
			if item.SKU == "" {
				errs = append(errs, fmt.Sprintf("cart.items[%d].sku is required", i))
			}
			if item.Quantity < 1 {
				errs = append(errs, fmt.Sprintf("cart.items[%d].quantity must be at least 1", i))
			}
			if item.UnitPrice == nil {
				errs = append(errs, fmt.Sprintf("cart.items[%d].unit_price is required", i))
				continue
			}
			if err := checkWireAmount(fmt.Sprintf("cart.items[%d].unit_price", i), *item.UnitPrice); err != nil {
				errs = append(errs, err.Error())
				continue
			}
			if *item.UnitPrice > maxUnitPriceMajor {
				errs = append(errs, fmt.Sprintf("cart.items[%d].unit_price exceeds the maximum supported amount", i))
				continue
			}
			if _, ok := majorToCents(*item.UnitPrice); !ok {
				errs = append(errs, fmt.Sprintf("cart.items[%d].unit_price does not land on an exact cent", i))
			}
			if !currencyPattern.MatchString(item.Currency) {
				errs = append(errs, fmt.Sprintf("cart.items[%d].currency must be a lowercase 3-letter ISO-4217 code", i))
			}
		}
		if req.Agent == nil || len(req.Agent.PaymentMethods) == 0 {
			errs = append(errs, "agent.payment_methods must contain at least one entry")
		}
		if req.Intent.Action == ucpActionUpdate && req.Intent.CheckoutID == "" {
			errs = append(errs, "intent.checkout_id is required for updates")
		}
		if len(errs) > 0 {
			return invalidResult(errs...)
		}
		return validResult()
	case ucpActionComplete:
		if req.Intent.CheckoutID == "" {
			return invalidResult("intent.checkout_id is required")
		}
		if req.Payment == nil || len(req.Payment.Instruments) == 0 {
			return invalidResult("payment.instruments must contain at least one entry")
		}
		return validResult()
	default:
		return invalidResult(fmt.Sprintf("intent.action %q is not supported", req.Intent.Action))
	}
}

// ParseRequest implements [Adapter].
func (a *UCPAdapter) ParseRequest(raw json.RawMessage) (CanonicalRequest, error) {
	var req ucpRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("ucp: parse intent request: %w", err)
	}

	if req.Intent.Action == ucpActionComplete {
		instrument := req.Payment.Instruments[0]
		for _, in := range req.Payment.Instruments {
			if in.Selected {
				instrument = in
				break
			}
		}
		return PaymentRequest{
			SessionID: req.Intent.CheckoutID,
			Method: PaymentMethod{
				Type:    instrument.Type,
				Details: instrument.Credential,
			},
		}, nil
	}

	items := make([]ItemRequest, 0, len(req.Cart.Items))
	for _, item := range req.Cart.Items {
		cents, ok := majorToCents(*item.UnitPrice)
		if !ok {
			return nil, fmt.Errorf("ucp: unit_price %v does not land on an exact cent", *item.UnitPrice)
		}
		items = append(items, ItemRequest{
			ID:          item.SKU,
			Name:        item.Title,
			Quantity:    item.Quantity,
			AmountCents: cents,
			Currency:    item.Currency,
		})
	}

	out := CheckoutRequest{
		SessionID: req.Intent.CheckoutID,
		Items:     items,
		Metadata:  req.Metadata,
	}
	if req.Agent != nil {
		out.Agent = AgentCapabilities{
			PaymentMethods: req.Agent.PaymentMethods,
			Interventions:  req.Agent.Interventions,
			Features:       req.Agent.Features,
		}
	}
	if req.Seller != nil {
		out.Seller = &SellerCapabilities{
			PaymentMethods:        req.Seller.PaymentMethods,
			RequiredInterventions: req.Seller.RequiredInterventions,
			InterventionPolicy:    req.Seller.InterventionPolicy,
			Features:              req.Seller.Features,
		}
	}
	if req.Buyer != nil {
		out.Country = req.Buyer.AddressCountry
	}
	if req.Fulfillment != nil {
		out.ShippingSpeed = req.Fulfillment.Speed
		out.FulfillmentOptionID = req.Fulfillment.OptionID
	}
	return out, nil
}

// ValidateResponse implements [Adapter].
func (a *UCPAdapter) ValidateResponse(session *CheckoutSession) ValidationResult {
	if errs := validateCanonicalSession(session); len(errs) > 0 {
		return invalidResult(errs...)
	}
	return validResult()
}

type ucpCheckout struct {
	UCP       ucpEnvelope   `json:"ucp"`
	ID        string        `json:"id"`
	Status    string        `json:"status"`
	Currency  string        `json:"currency"`
	LineItems []ucpLineItem `json:"line_items"`
	Totals    []Total       `json:"totals"`
	Messages  []ucpMessage  `json:"messages,omitempty"`
	OrderID   string        `json:"order_id,omitempty"`
}

type ucpEnvelope struct {
	Version string `json:"version"`
}

type ucpLineItem struct {
	ID         string      `json:"id"`
	Item       ucpRespItem `json:"item"`
	Quantity   int         `json:"quantity"`
	BaseAmount int         `json:"base_amount"`
	Discount   int         `json:"discount,omitempty"`
	Subtotal   int         `json:"subtotal"`
	Tax        int         `json:"tax,omitempty"`
	Total      int         `json:"total"`
}

type ucpRespItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Price int    `json:"price"`
}

type ucpMessage struct {
	Type     string `json:"type"`
	Code     string `json:"code,omitempty"`
	Content  string `json:"content"`
	Severity string `json:"severity,omitempty"`
}

// BuildResponse implements [Adapter]. A risk block renders as
// requires_escalation with an unrecoverable error message.
func (a *UCPAdapter) BuildResponse(session *CheckoutSession, mctx MerchantContext) (json.RawMessage, error) {
	status := map[SessionStatus]string{
		SessionStatusReadyForPayment:        "ready_for_complete",
		SessionStatusNotReadyForPayment:     "incomplete",
		SessionStatusAuthenticationRequired: "requires_escalation",
		SessionStatusCompleted:              "completed",
		SessionStatusCanceled:               "canceled",
	}[session.Status]
	if status == "" {
		return nil, fmt.Errorf("ucp: unmapped session status %q", session.Status)
	}

	lineItems := make([]ucpLineItem, 0, len(session.LineItems))
	for _, li := range session.LineItems {
		lineItems = append(lineItems, ucpLineItem{
			ID: li.ID,
			Item: ucpRespItem{
				ID:    li.ID,
				Title: li.Name,
				Price: li.BaseAmount / max(li.Quantity, 1),
			},
			Quantity:   li.Quantity,
			BaseAmount: li.BaseAmount,
			Discount:   li.Discount,
			Subtotal:   li.Subtotal,
			Tax:        li.Tax,
			Total:      li.Total,
		})
	}

	messages := make([]ucpMessage, 0, len(session.Messages)+1)
	for _, m := range session.Messages {
		if m.IsError() {
			body, err := m.AsMessageError()
			if err != nil {
				continue
			}
			messages = append(messages, ucpMessage{Type: "error", Code: body.Code, Content: body.Content, Severity: "recoverable"})
			continue
		}
		body, err := m.AsMessageInfo()
		if err != nil {
			continue
		}
		messages = append(messages, ucpMessage{Type: "info", Code: body.Code, Content: body.Content})
	}
	if session.HaloRisk.Decision == RiskDecisionBlock {
		status = "requires_escalation"
		messages = append(messages, ucpMessage{
			Type:     "error",
			Code:     "risk_blocked",
			Content:  "transaction blocked by risk adjudication",
			Severity: "unrecoverable",
		})
	}

	out := ucpCheckout{
		UCP:       ucpEnvelope{Version: a.Version()},
		ID:        session.ID,
		Status:    status,
		Currency:  session.Currency,
		LineItems: lineItems,
		Totals:    session.Totals,
		Messages:  messages,
	}
	if session.Order != nil {
		out.OrderID = session.Order.ID
	}
	return json.Marshal(out)
}

// maxUnitPriceMajor caps a single unit price in major units. Beyond this the
// float64 representation no longer resolves individual cents, so conversion
// would silently misprice.
const maxUnitPriceMajor = 1e12

// majorToCents converts a major-unit amount to integer cents, reporting
// whether the value lands on an exact cent within float tolerance.
func majorToCents(v float64) (int, bool) {
	if math.Abs(v) > maxUnitPriceMajor {
		return 0, false
	}
	scaled := v * 100
	rounded := math.Round(scaled)
	if math.Abs(scaled-rounded) > 1e-9*math.Max(1, math.Abs(scaled)) {
		return 0, false
	}
	return int(rounded), true
}
