package bridge

import (
	"encoding/json"
	"testing"
)

func acpCheckoutPayload() json.RawMessage {
	return json.RawMessage(`{
		"capabilities": {"payment_methods": ["card"], "interventions": ["3ds"]},
		"items": [
			{"id": "sku_1", "name": "Widget", "quantity": 2, "amount": 1500, "currency": "usd"},
			{"id": "sku_2", "name": "Gadget", "quantity": 1, "amount": 900, "currency": "usd"}
		],
		"fulfillment": {"country": "US", "speed": "express"}
	}`)
}

func TestACPAdapterCanHandle(t *testing.T) {
	t.Parallel()

	adapter := NewACPAdapter()
	tests := map[string]struct {
		payload string
		want    bool
	}{
		"checkout with capabilities": {`{"capabilities":{"payment_methods":["card"]}}`, true},
		"payment submission":         {`{"checkout_session_id":"cs_1","payment_data":{"type":"card","token":"tok"}}`, true},
		"session id without payment": {`{"checkout_session_id":"cs_1"}`, false},
		"null capabilities":          {`{"capabilities":null}`, false},
		"intent payload":             {`{"intent":{"action":"checkout"}}`, false},
		"resource payload":           {`{"resource":"/a","accepts":[{}]}`, false},
		"not json":                   {`what`, false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := adapter.CanHandle(json.RawMessage(tc.payload)); got != tc.want {
				t.Fatalf("expected %v got %v", tc.want, got)
			}
		})
	}
}

func TestACPAdapterValidateRequest(t *testing.T) {
	t.Parallel()

	adapter := NewACPAdapter()
	tests := map[string]struct {
		payload   string
		wantValid bool
	}{
		"valid checkout": {string(acpCheckoutPayload()), true},
		"missing payment methods": {
			`{"capabilities":{"payment_methods":[]},"items":[{"id":"a","quantity":1,"amount":100,"currency":"usd"}]}`,
			false,
		},
		"empty items": {
			`{"capabilities":{"payment_methods":["card"]},"items":[]}`,
			false,
		},
		"uppercase currency": {
			`{"capabilities":{"payment_methods":["card"]},"items":[{"id":"a","quantity":1,"amount":100,"currency":"USD"}]}`,
			false,
		},
		"fractional minor units": {
			`{"capabilities":{"payment_methods":["card"]},"items":[{"id":"a","quantity":1,"amount":100.5,"currency":"usd"}]}`,
			false,
		},
		"negative amount": {
			`{"capabilities":{"payment_methods":["card"]},"items":[{"id":"a","quantity":1,"amount":-1,"currency":"usd"}]}`,
			false,
		},
		"zero quantity": {
			`{"capabilities":{"payment_methods":["card"]},"items":[{"id":"a","quantity":0,"amount":100,"currency":"usd"}]}`,
			false,
		},
		"valid payment": {
			`{"checkout_session_id":"cs_1","payment_data":{"type":"card","token":"tok_1"}}`,
			true,
		},
		"payment missing token": {
			`{"checkout_session_id":"cs_1","payment_data":{"type":"card"}}`,
			false,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := adapter.ValidateRequest(json.RawMessage(tc.payload))
			if got.Valid != tc.wantValid {
				t.Fatalf("expected valid=%v got %v (errors: %v)", tc.wantValid, got.Valid, got.Errors)
			}
			if !got.Valid && len(got.Errors) == 0 {
				t.Fatal("invalid result must carry at least one error")
			}
		})
	}
}

func TestACPAdapterParseCheckout(t *testing.T) {
	t.Parallel()

	adapter := NewACPAdapter()
	canonical, err := adapter.ParseRequest(acpCheckoutPayload())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	req, ok := canonical.(CheckoutRequest)
	if !ok {
		t.Fatalf("expected a CheckoutRequest, got %T", canonical)
	}
	if req.Kind() != RequestKindCheckout {
		t.Fatalf("expected checkout kind, got %s", req.Kind())
	}
	if len(req.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(req.Items))
	}
	// Minor units pass through unchanged.
	if req.Items[0].AmountCents != 1500 || req.Items[1].AmountCents != 900 {
		t.Fatalf("unexpected amounts: %+v", req.Items)
	}
	if req.Country != "US" || req.ShippingSpeed != "express" {
		t.Fatalf("fulfillment attributes lost: %+v", req)
	}
	if !req.Agent.SupportsIntervention(InterventionThreeDS) {
		t.Fatal("agent interventions lost in parsing")
	}
}

func TestACPAdapterParsePayment(t *testing.T) {
	t.Parallel()

	adapter := NewACPAdapter()
	canonical, err := adapter.ParseRequest(json.RawMessage(
		`{"checkout_session_id":"cs_9","payment_data":{"type":"card","token":"tok_1"}}`,
	))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	req, ok := canonical.(PaymentRequest)
	if !ok {
		t.Fatalf("expected a PaymentRequest, got %T", canonical)
	}
	if req.SessionID != "cs_9" || req.Method.Type != "card" {
		t.Fatalf("unexpected payment request: %+v", req)
	}
	if len(req.Method.Details) == 0 {
		t.Fatal("expected the token to be carried in the method details")
	}
}

func TestACPAdapterBuildResponseBlocked(t *testing.T) {
	t.Parallel()

	adapter := NewACPAdapter()
	session := canonicalSessionFixture()
	session.HaloRisk = RiskResult{Score: 80, Decision: RiskDecisionBlock, Factors: []string{"amount_very_high"}}
	session.Status = SessionStatusNotReadyForPayment

	raw, err := adapter.BuildResponse(session, cardMerchant())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var out struct {
		Status          string `json:"status"`
		PaymentProvider struct {
			SupportedPaymentMethods []string `json:"supported_payment_methods"`
		} `json:"payment_provider"`
		Messages []struct {
			Type string `json:"type"`
			Code string `json:"code"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != "not_ready_for_payment" {
		t.Fatalf("expected not_ready_for_payment, got %s", out.Status)
	}
	if len(out.PaymentProvider.SupportedPaymentMethods) != 0 {
		t.Fatalf("a blocked session must offer no payment methods, got %v", out.PaymentProvider.SupportedPaymentMethods)
	}
	found := false
	for _, m := range out.Messages {
		if m.Type == "error" && m.Code == "payment_declined" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a payment_declined error message, got %v", out.Messages)
	}
}

func TestACPAdapterRoundTripPreservesTotals(t *testing.T) {
	t.Parallel()

	currencies := []string{"usd", "eur", "jpy"}
	for _, currency := range currencies {
		t.Run(currency, func(t *testing.T) {
			t.Parallel()

			adapter := NewACPAdapter()
			payload := json.RawMessage(`{
				"capabilities": {"payment_methods": ["card"]},
				"items": [{"id": "sku_1", "name": "Widget", "quantity": 3, "amount": 730, "currency": "` + currency + `"}]
			}`)
			if res := adapter.ValidateRequest(payload); !res.Valid {
				t.Fatalf("validate: %v", res.Errors)
			}
			canonical, err := adapter.ParseRequest(payload)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			req := canonical.(CheckoutRequest)

			session := sessionFromCheckout(t, req)
			raw, err := adapter.BuildResponse(session, cardMerchant())
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			var out struct {
				Totals []Total `json:"totals"`
			}
			if err := json.Unmarshal(raw, &out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			assertSingleTotal(t, out.Totals, 3*730)
		})
	}
}
