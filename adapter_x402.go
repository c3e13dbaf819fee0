package bridge

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// X402Adapter translates the resource-payment protocol modeled on HTTP 402
// flows. Amounts arrive as atomic token units (strings) and are normalized to
// cents using the asset's declared decimals.
type X402Adapter struct{}

// maxAssetDecimals bounds the declared asset precision so atomic-unit
// conversion stays inside int64 arithmetic. 18 covers ETH-style wei.
const maxAssetDecimals = 18

// NewX402Adapter returns the resource-payment protocol adapter.
func NewX402Adapter() *X402Adapter { return &X402Adapter{} }

// ProtocolName implements [Adapter].
func (a *X402Adapter) ProtocolName() string { return "x402" }

// Version implements [Adapter].
func (a *X402Adapter) Version() string { return "1" }

type x402Request struct {
	X402Version int               `json:"x402Version"`
	Resource    string            `json:"resource"`
	Accepts     []x402Accept      `json:"accepts"`
	Agent       *x402Agent        `json:"agent,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type x402Accept struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	Asset             string `json:"asset"`
	Currency          string `json:"currency"`
	Decimals          int    `json:"decimals"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	PayTo             string `json:"payTo"`
	Description       string `json:"description,omitempty"`
}

type x402Agent struct {
	Interventions []string      `json:"interventions,omitempty"`
	Features      AgentFeatures `json:"features,omitempty"`
}

// CanHandle requires a resource plus a non-empty accepts array. An empty
// accepts list is treated as non-handleable, never as a parse target.
func (a *X402Adapter) CanHandle(raw json.RawMessage) bool {
	var probe struct {
		Resource string            `json:"resource"`
		Accepts  []json.RawMessage `json:"accepts"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Resource != "" && len(probe.Accepts) > 0
}

// ValidateRequest implements [Adapter].
func (a *X402Adapter) ValidateRequest(raw json.RawMessage) ValidationResult {
	var req x402Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return invalidResult("payload is not a valid resource-payment request: " + err.Error())
	}
	var errs []string
	if req.Resource == "" {
		errs = append(errs, "resource is required")
	}
	if len(req.Accepts) == 0 {
		errs = append(errs, "accepts must contain at least one entry")
	}
	for i, acc := range req.Accepts {
		prefix := fmt.Sprintf("accepts[%d]", i)
		if acc.Scheme == "" {
			errs = append(errs, prefix+".scheme is required")
		}
		if acc.Network == "" {
			errs = append(errs, prefix+".network is required")
		}
		if !currencyPattern.MatchString(acc.Currency) {
			errs = append(errs, prefix+".currency must be a lowercase 3-letter ISO-4217 code")
		}
		if acc.Decimals < 0 || acc.Decimals > maxAssetDecimals {
			errs = append(errs, fmt.Sprintf("%s.decimals must be between 0 and %d", prefix, maxAssetDecimals))
		} else if _, err := atomicToCents(acc.MaxAmountRequired, acc.Decimals); err != nil {
			errs = append(errs, fmt.Sprintf("%s.maxAmountRequired %v", prefix, err))
		}
	}
	if len(req.Payload) > 0 && req.SessionID == "" {
		errs = append(errs, "session_id is required when payload is present")
	}
	if len(errs) > 0 {
		return invalidResult(errs...)
	}
	return validResult()
}

// ParseRequest implements [Adapter].
func (a *X402Adapter) ParseRequest(raw json.RawMessage) (CanonicalRequest, error) {
	var req x402Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("x402: parse request: %w", err)
	}

	if len(req.Payload) > 0 {
		acc := req.Accepts[0]
		return PaymentRequest{
			SessionID: req.SessionID,
			Method: PaymentMethod{
				Type:    cryptoMethodName(acc.Asset),
				Details: req.Payload,
			},
		}, nil
	}

	// The accepted settlement rails double as the agent's payment methods.
	methods := make([]string, 0, len(req.Accepts))
	items := make([]ItemRequest, 0, len(req.Accepts))
	seen := make(map[string]bool, len(req.Accepts))
	for _, acc := range req.Accepts {
		method := cryptoMethodName(acc.Asset)
		if !seen[method] {
			seen[method] = true
			methods = append(methods, method)
		}
	}

	// A resource-payment request is a single-item purchase; the first accept
	// entry carries the canonical price.
	acc := req.Accepts[0]
	cents, err := atomicToCents(acc.MaxAmountRequired, acc.Decimals)
	if err != nil {
		return nil, fmt.Errorf("x402: maxAmountRequired: %w", err)
	}
	items = append(items, ItemRequest{
		ID:          req.Resource,
		Name:        acc.Description,
		Quantity:    1,
		AmountCents: cents,
		Currency:    acc.Currency,
	})

	out := CheckoutRequest{
		SessionID: req.SessionID,
		Agent: AgentCapabilities{
			PaymentMethods: methods,
		},
		Items:    items,
		Country:  "US",
		Metadata: req.Metadata,
	}
	if req.Agent != nil {
		out.Agent.Interventions = req.Agent.Interventions
		out.Agent.Features = req.Agent.Features
	}
	if country := req.Metadata["country"]; country != "" {
		out.Country = country
	}
	return out, nil
}

// ValidateResponse implements [Adapter]. The settlement context is checked at
// build time since it comes from the merchant, not the canonical session.
func (a *X402Adapter) ValidateResponse(session *CheckoutSession) ValidationResult {
	if errs := validateCanonicalSession(session); len(errs) > 0 {
		return invalidResult(errs...)
	}
	return validResult()
}

type x402Response struct {
	X402Version int             `json:"x402Version"`
	SessionID   string          `json:"session_id"`
	Status      string          `json:"status"`
	Accepts     []x402Accept    `json:"accepts"`
	Error       string          `json:"error,omitempty"`
	Settlement  *x402Settlement `json:"settlement,omitempty"`
}

type x402Settlement struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
}

// BuildResponse implements [Adapter]. A blocked transaction renders with a
// zero-length accepts list so no settlement rail is offered.
func (a *X402Adapter) BuildResponse(session *CheckoutSession, mctx MerchantContext) (json.RawMessage, error) {
	if mctx.Settlement == nil {
		return nil, fmt.Errorf("x402: merchant context is missing settlement details")
	}
	status := map[SessionStatus]string{
		SessionStatusReadyForPayment:        "payment_required",
		SessionStatusNotReadyForPayment:     "payment_unavailable",
		SessionStatusAuthenticationRequired: "verification_required",
		SessionStatusCompleted:              "settled",
		SessionStatusCanceled:               "canceled",
	}[session.Status]
	if status == "" {
		return nil, fmt.Errorf("x402: unmapped session status %q", session.Status)
	}

	out := x402Response{
		X402Version: 1,
		SessionID:   session.ID,
		Status:      status,
		Accepts:     []x402Accept{},
	}

	blocked := session.HaloRisk.Decision == RiskDecisionBlock
	if blocked {
		out.Status = "payment_unavailable"
		out.Error = "transaction blocked by risk adjudication"
	}
	for _, m := range session.Messages {
		if m.IsError() && out.Error == "" {
			if body, err := m.AsMessageError(); err == nil {
				out.Error = body.Content
			}
		}
	}

	if !blocked && session.Status != SessionStatusCanceled {
		st := mctx.Settlement
		amount, err := centsToAtomic(session.TotalAmount(), st.AssetDecimals)
		if err != nil {
			return nil, fmt.Errorf("x402: settlement amount: %w", err)
		}
		out.Accepts = append(out.Accepts, x402Accept{
			Scheme:            "exact",
			Network:           st.Network,
			Asset:             st.Asset,
			Currency:          session.Currency,
			Decimals:          st.AssetDecimals,
			MaxAmountRequired: amount,
			PayTo:             st.PayTo,
		})
	}
	if session.Status == SessionStatusCompleted && session.Order != nil {
		out.Settlement = &x402Settlement{
			Success:     true,
			Transaction: session.Order.ID,
			Network:     mctx.Settlement.Network,
		}
	}
	return json.Marshal(out)
}

// cryptoMethodName maps an asset symbol or address to the canonical
// "crypto.<asset>" payment-method namespace.
func cryptoMethodName(asset string) string {
	asset = strings.ToLower(strings.TrimSpace(asset))
	if asset == "" {
		return "crypto.unknown"
	}
	return "crypto." + asset
}

// atomicToCents converts an atomic token amount to integer cents. The value
// must divide exactly; leftover atomic dust is rejected rather than rounded.
func atomicToCents(atomic string, decimals int) (int, error) {
	if decimals < 0 || decimals > maxAssetDecimals {
		return 0, fmt.Errorf("requires decimals between 0 and %d", maxAssetDecimals)
	}
	if strings.TrimSpace(atomic) == "" {
		return 0, fmt.Errorf("is required")
	}
	v, err := strconv.ParseInt(atomic, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("must be a base-10 integer string")
	}
	if v < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	if decimals >= 2 {
		denom := int64(1)
		for i := 0; i < decimals-2; i++ {
			denom *= 10
		}
		if v%denom != 0 {
			return 0, fmt.Errorf("does not divide into whole cents at %d decimals", decimals)
		}
		return int(v / denom), nil
	}
	factor := int64(1)
	for i := 0; i < 2-decimals; i++ {
		factor *= 10
	}
	return int(v * factor), nil
}

// centsToAtomic is the exact inverse of atomicToCents. Amounts that are not
// representable at the asset's precision are an error, never truncated.
func centsToAtomic(cents, decimals int) (string, error) {
	if decimals < 0 || decimals > maxAssetDecimals {
		return "", fmt.Errorf("asset decimals must be between 0 and %d", maxAssetDecimals)
	}
	v := int64(cents)
	if decimals >= 2 {
		for i := 0; i < decimals-2; i++ {
			if v > math.MaxInt64/10 {
				return "", fmt.Errorf("amount %d cents overflows at %d asset decimals", cents, decimals)
			}
			v *= 10
		}
		return strconv.FormatInt(v, 10), nil
	}
	factor := int64(1)
	for i := 0; i < 2-decimals; i++ {
		factor *= 10
	}
	if v%factor != 0 {
		return "", fmt.Errorf("amount %d cents is not representable at %d asset decimals", cents, decimals)
	}
	return strconv.FormatInt(v/factor, 10), nil
}
