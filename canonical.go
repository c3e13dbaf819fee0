package bridge

import (
	"encoding/json"

	"github.com/oapi-codegen/runtime"
)

// RequestKind discriminates the canonical request union.
type RequestKind string

const (
	RequestKindCheckout RequestKind = "checkout"
	RequestKindPayment  RequestKind = "payment"
)

// CanonicalRequest is the protocol-neutral result of [Adapter.ParseRequest].
// The concrete type is decided by the adapter at parse time; downstream code
// switches on it and never probes raw payload structure.
type CanonicalRequest interface {
	Kind() RequestKind
}

// CheckoutRequest is the canonical form of a checkout initiation or update.
type CheckoutRequest struct {
	// SessionID is set when the request targets an existing session.
	SessionID string              `json:"session_id,omitempty"`
	Agent     AgentCapabilities   `json:"agent_capabilities"`
	Seller    *SellerCapabilities `json:"seller_capabilities,omitempty"`
	Items     []ItemRequest       `json:"items"`
	// Country and ShippingSpeed are the normalized risk attributes taken
	// from the wire payload (buyer address country, fulfillment selection).
	Country             string            `json:"country,omitempty"`
	ShippingSpeed       string            `json:"shipping_speed,omitempty"`
	FulfillmentOptionID string            `json:"fulfillment_option_id,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// Kind marks CheckoutRequest as the checkout arm of the union.
func (CheckoutRequest) Kind() RequestKind { return RequestKindCheckout }

// ItemRequest is a single requested item in minor currency units.
type ItemRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Quantity    int    `json:"quantity"`
	AmountCents int    `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// PaymentRequest is the canonical form of a payment submission against an
// existing checkout session.
type PaymentRequest struct {
	SessionID string        `json:"session_id"`
	Method    PaymentMethod `json:"payment_method"`
}

// Kind marks PaymentRequest as the payment arm of the union.
func (PaymentRequest) Kind() RequestKind { return RequestKindPayment }

// PaymentMethod carries the method identifier plus an opaque details blob the
// core never interprets.
type PaymentMethod struct {
	Type    string          `json:"type"`
	Details json.RawMessage `json:"details,omitempty"`
}

// PaymentStatus defines model for PaymentResponse.Status.
type PaymentStatus string

const (
	PaymentStatusSucceeded      PaymentStatus = "succeeded"
	PaymentStatusPending        PaymentStatus = "pending"
	PaymentStatusFailed         PaymentStatus = "failed"
	PaymentStatusRequiresAction PaymentStatus = "requires_action"
)

// PaymentResponse is the canonical outcome of a payment attempt.
type PaymentResponse struct {
	SessionID     string        `json:"session_id"`
	Success       bool          `json:"success"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Status        PaymentStatus `json:"status"`
}

// SessionStatus is the display status derived from session state, risk
// decision, and verification.
type SessionStatus string

const (
	SessionStatusReadyForPayment        SessionStatus = "ready_for_payment"
	SessionStatusNotReadyForPayment     SessionStatus = "not_ready_for_payment"
	SessionStatusAuthenticationRequired SessionStatus = "authentication_required"
	SessionStatusCompleted              SessionStatus = "completed"
	SessionStatusCanceled               SessionStatus = "canceled"
)

// TotalType defines model for Total.Type.
type TotalType string

const (
	TotalTypeItemsBaseAmount TotalType = "items_base_amount"
	TotalTypeItemsDiscount   TotalType = "items_discount"
	TotalTypeSubtotal        TotalType = "subtotal"
	TotalTypeDiscount        TotalType = "discount"
	TotalTypeFulfillment     TotalType = "fulfillment"
	TotalTypeTax             TotalType = "tax"
	TotalTypeFee             TotalType = "fee"
	TotalTypeTotal           TotalType = "total"
)

// Total is a categorized price component in minor currency units.
type Total struct {
	Type        TotalType `json:"type"`
	Amount      int       `json:"amount"`
	DisplayText string    `json:"display_text,omitempty"`
}

// LineItem is a priced item on a session. Total must equal Subtotal + Tax.
type LineItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	BaseAmount int    `json:"base_amount"`
	Discount   int    `json:"discount"`
	Subtotal   int    `json:"subtotal"`
	Tax        int    `json:"tax"`
	Total      int    `json:"total"`
}

// FulfillmentOption is a selectable delivery method.
type FulfillmentOption struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Speed    string `json:"speed"` // "standard" or "express"
	Subtotal int    `json:"subtotal"`
	Tax      int    `json:"tax"`
	Total    int    `json:"total"`
}

// RiskDecision classifies whether payment may proceed.
type RiskDecision string

const (
	RiskDecisionApprove   RiskDecision = "approve"
	RiskDecisionChallenge RiskDecision = "challenge"
	RiskDecisionBlock     RiskDecision = "block"
)

// RiskResult is attached to a session at creation and never recomputed.
type RiskResult struct {
	Score    int          `json:"score"`
	Decision RiskDecision `json:"decision"`
	Factors  []string     `json:"factors"`
}

// OrderRef is the weak back-reference from a session to its order.
type OrderRef struct {
	ID           string `json:"id"`
	PermalinkURL string `json:"permalink_url,omitempty"`
}

// CheckoutSession is the canonical merchant-facing view of a session.
type CheckoutSession struct {
	ID                  string              `json:"id"`
	Status              SessionStatus       `json:"status"`
	Currency            string              `json:"currency"`
	LineItems           []LineItem          `json:"line_items"`
	FulfillmentOptions  []FulfillmentOption `json:"fulfillment_options"`
	FulfillmentOptionID string              `json:"fulfillment_option_id,omitempty"`
	Totals              []Total             `json:"totals"`
	SellerCapabilities  SellerCapabilities  `json:"seller_capabilities"`
	HaloRisk            RiskResult          `json:"halo_risk"`
	Messages            []Message           `json:"messages"`
	Order               *OrderRef           `json:"order,omitempty"`
}

// TotalAmount returns the amount of the single "total" entry, or 0 when the
// totals array is malformed (callers validate separately).
func (s CheckoutSession) TotalAmount() int {
	for _, t := range s.Totals {
		if t.Type == TotalTypeTotal {
			return t.Amount
		}
	}
	return 0
}

// MessageContentType defines model for message content types.
type MessageContentType string

const (
	MessageContentTypePlain    MessageContentType = "plain"
	MessageContentTypeMarkdown MessageContentType = "markdown"
)

// MessageInfo is an informational, non-blocking message for client display.
type MessageInfo struct {
	Type        string             `json:"type"`
	Code        string             `json:"code,omitempty"`
	Content     string             `json:"content"`
	ContentType MessageContentType `json:"content_type,omitempty"`
	// Param is an RFC 9535 JSONPath locating the field the message refers to.
	Param *string `json:"param,omitempty"`
}

// MessageError is a blocking message explaining why a session is not ready.
type MessageError struct {
	Type        string             `json:"type"`
	Code        string             `json:"code"`
	Content     string             `json:"content"`
	ContentType MessageContentType `json:"content_type,omitempty"`
	Param       *string            `json:"param,omitempty"`
}

// Message is the union of MessageInfo and MessageError.
type Message struct {
	union json.RawMessage
}

// NewInfoMessage builds an informational message.
func NewInfoMessage(code, content string) Message {
	var m Message
	_ = m.FromMessageInfo(MessageInfo{Type: "info", Code: code, Content: content, ContentType: MessageContentTypePlain})
	return m
}

// NewErrorMessage builds a blocking error message.
func NewErrorMessage(code, content string) Message {
	var m Message
	_ = m.FromMessageError(MessageError{Type: "error", Code: code, Content: content, ContentType: MessageContentTypePlain})
	return m
}

// IsError reports whether the union holds an error message.
func (t Message) IsError() bool {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(t.union, &probe); err != nil {
		return false
	}
	return probe.Type == "error"
}

// Code extracts the machine-readable code regardless of message arm.
func (t Message) Code() string {
	var probe struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(t.union, &probe); err != nil {
		return ""
	}
	return probe.Code
}

// AsMessageInfo returns the union data as a MessageInfo.
func (t Message) AsMessageInfo() (MessageInfo, error) {
	var body MessageInfo
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// FromMessageInfo overwrites the union data with the provided MessageInfo.
func (t *Message) FromMessageInfo(v MessageInfo) error {
	b, err := json.Marshal(v)
	t.union = b
	return err
}

// MergeMessageInfo merges the provided MessageInfo into the union data.
func (t *Message) MergeMessageInfo(v MessageInfo) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	merged, err := runtime.JSONMerge(t.union, b)
	t.union = merged
	return err
}

// AsMessageError returns the union data as a MessageError.
func (t Message) AsMessageError() (MessageError, error) {
	var body MessageError
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// FromMessageError overwrites the union data with the provided MessageError.
func (t *Message) FromMessageError(v MessageError) error {
	b, err := json.Marshal(v)
	t.union = b
	return err
}

// MergeMessageError merges the provided MessageError into the union data.
func (t *Message) MergeMessageError(v MessageError) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	merged, err := runtime.JSONMerge(t.union, b)
	t.union = merged
	return err
}

// MarshalJSON serializes the underlying union.
func (t Message) MarshalJSON() ([]byte, error) {
	return t.union.MarshalJSON()
}

// UnmarshalJSON loads union data.
func (t *Message) UnmarshalJSON(b []byte) error {
	return t.union.UnmarshalJSON(b)
}
