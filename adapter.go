package bridge

import (
	"encoding/json"
	"fmt"
	"math"
)

// ValidationResult reports schema-level validation of a wire payload or a
// canonical value. A request that fails validation never reaches ParseRequest.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func validResult() ValidationResult {
	return ValidationResult{Valid: true}
}

func invalidResult(errs ...string) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

// SettlementContext carries crypto settlement details for resource-payment
// protocols. Other adapters ignore it.
type SettlementContext struct {
	PayTo         string `json:"pay_to"`
	Network       string `json:"network"`
	Asset         string `json:"asset"`
	AssetDecimals int    `json:"asset_decimals"`
}

// MerchantContext describes the merchant side of a translation: who the
// seller is, what it accepts, and what it offers for fulfillment.
type MerchantContext struct {
	MerchantID         string              `json:"merchant_id"`
	MerchantName       string              `json:"merchant_name,omitempty"`
	Seller             SellerCapabilities  `json:"seller_capabilities"`
	FulfillmentOptions []FulfillmentOption `json:"fulfillment_options,omitempty"`
	Settlement         *SettlementContext  `json:"settlement,omitempty"`
}

// Adapter translates one protocol's raw wire payloads to and from the
// canonical model. All protocol knowledge lives behind this interface.
type Adapter interface {
	// ProtocolName returns the primary registry name, e.g. "acp".
	ProtocolName() string
	// Version returns the protocol revision the adapter implements.
	Version() string
	// CanHandle is a cheap structural sniff over shallow fields only. It
	// must be side-effect-free and never parse deeply.
	CanHandle(raw json.RawMessage) bool
	// ValidateRequest checks the payload against the protocol's declared
	// shape. Every numeric field is checked for NaN and negative values.
	ValidateRequest(raw json.RawMessage) ValidationResult
	// ParseRequest is a pure, deterministic mapping to the canonical model.
	// Amounts are normalized to integer minor currency units regardless of
	// the wire protocol's native unit.
	ParseRequest(raw json.RawMessage) (CanonicalRequest, error)
	// ValidateResponse checks a canonical session against the protocol's
	// response contract before serialization.
	ValidateResponse(session *CheckoutSession) ValidationResult
	// BuildResponse is a deterministic mapping back to the wire shape,
	// including protocol-specific rendering of a blocked transaction.
	BuildResponse(session *CheckoutSession, mctx MerchantContext) (json.RawMessage, error)
}

// checkWireAmount rejects the values no wire amount may carry.
func checkWireAmount(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be a finite number", field)
	}
	if v < 0 {
		return fmt.Errorf("%s must not be negative", field)
	}
	return nil
}

// validateCanonicalSession enforces the invariants every protocol's response
// contract shares: line-item arithmetic and a totals array with exactly one
// "total" entry equal to line-item totals plus fulfillment cost.
func validateCanonicalSession(session *CheckoutSession) []string {
	var errs []string
	if session == nil {
		return []string{"session is required"}
	}
	if session.ID == "" {
		errs = append(errs, "session id is required")
	}
	if session.Currency == "" {
		errs = append(errs, "currency is required")
	}

	lineTotal := 0
	for i, li := range session.LineItems {
		if li.Quantity < 1 {
			errs = append(errs, fmt.Sprintf("line_items[%d]: quantity must be at least 1", i))
		}
		if li.BaseAmount < 0 || li.Discount < 0 || li.Subtotal < 0 || li.Tax < 0 || li.Total < 0 {
			errs = append(errs, fmt.Sprintf("line_items[%d]: amounts must not be negative", i))
		}
		if li.Total != li.Subtotal+li.Tax {
			errs = append(errs, fmt.Sprintf("line_items[%d]: total must equal subtotal plus tax", i))
		}
		lineTotal += li.Total
	}

	fulfillment := 0
	totalEntries := 0
	declaredTotal := 0
	for i, t := range session.Totals {
		if t.Amount < 0 {
			errs = append(errs, fmt.Sprintf("totals[%d]: amount must not be negative", i))
		}
		switch t.Type {
		case TotalTypeTotal:
			totalEntries++
			declaredTotal = t.Amount
		case TotalTypeFulfillment:
			fulfillment += t.Amount
		}
	}
	if totalEntries != 1 {
		errs = append(errs, "totals must contain exactly one entry of type total")
	} else if declaredTotal != lineTotal+fulfillment {
		errs = append(errs, fmt.Sprintf("total %d does not equal line-item totals %d plus fulfillment %d", declaredTotal, lineTotal, fulfillment))
	}
	return errs
}
