package bridge

import (
	"encoding/json"
	"testing"
)

func ucpCheckoutPayload() json.RawMessage {
	return json.RawMessage(`{
		"intent": {"action": "checkout"},
		"cart": {"items": [
			{"sku": "sku_1", "title": "Widget", "quantity": 2, "unit_price": 15.00, "currency": "usd"},
			{"sku": "sku_2", "title": "Gadget", "quantity": 1, "unit_price": 9.00, "currency": "usd"}
		]},
		"agent": {"payment_methods": ["card"], "interventions": ["3ds"]},
		"buyer": {"address_country": "DE"},
		"fulfillment": {"speed": "express"}
	}`)
}

func TestUCPAdapterCanHandle(t *testing.T) {
	t.Parallel()

	adapter := NewUCPAdapter()
	tests := map[string]struct {
		payload string
		want    bool
	}{
		"checkout intent":      {`{"intent":{"action":"checkout"}}`, true},
		"complete intent":      {`{"intent":{"action":"complete","checkout_id":"cs_1"}}`, true},
		"empty action":         {`{"intent":{"action":""}}`, false},
		"no intent":            {`{"cart":{"items":[]}}`, false},
		"capabilities payload": {`{"capabilities":{"payment_methods":["card"]}}`, false},
		"resource payload":     {`{"resource":"/a","accepts":[{}]}`, false},
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

func TestUCPAdapterValidateRequest(t *testing.T) {
	t.Parallel()

	adapter := NewUCPAdapter()
	tests := map[string]struct {
		payload   string
		wantValid bool
	}{
		"valid checkout": {string(ucpCheckoutPayload()), true},
		"unknown action": {`{"intent":{"action":"refund"}}`, false},
		"empty cart": {
			`{"intent":{"action":"checkout"},"cart":{"items":[]},"agent":{"payment_methods":["card"]}}`,
			false,
		},
		"missing unit price": {
			`{"intent":{"action":"checkout"},"cart":{"items":[{"sku":"a","quantity":1,"currency":"usd"}]},"agent":{"payment_methods":["card"]}}`,
			false,
		},
		"sub-cent unit price": {
			`{"intent":{"action":"checkout"},"cart":{"items":[{"sku":"a","quantity":1,"unit_price":9.999,"currency":"usd"}]},"agent":{"payment_methods":["card"]}}`,
			false,
		},
		"unit price beyond float cent resolution": {
			`{"intent":{"action":"checkout"},"cart":{"items":[{"sku":"a","quantity":1,"unit_price":1e16,"currency":"usd"}]},"agent":{"payment_methods":["card"]}}`,
			false,
		},
		"uppercase currency": {
			`{"intent":{"action":"checkout"},"cart":{"items":[{"sku":"a","quantity":1,"unit_price":9.99,"currency":"USD"}]},"agent":{"payment_methods":["card"]}}`,
			false,
		},
		"missing agent methods": {
			`{"intent":{"action":"checkout"},"cart":{"items":[{"sku":"a","quantity":1,"unit_price":9.99,"currency":"usd"}]}}`,
			false,
		},
		"update without checkout id": {
			`{"intent":{"action":"update"},"cart":{"items":[{"sku":"a","quantity":1,"unit_price":9.99,"currency":"usd"}]},"agent":{"payment_methods":["card"]}}`,
			false,
		},
		"valid complete": {
			`{"intent":{"action":"complete","checkout_id":"cs_1"},"payment":{"instruments":[{"type":"card"}]}}`,
			true,
		},
		"complete without instruments": {
			`{"intent":{"action":"complete","checkout_id":"cs_1"},"payment":{"instruments":[]}}`,
			false,
		},
		"complete without checkout id": {
			`{"intent":{"action":"complete"},"payment":{"instruments":[{"type":"card"}]}}`,
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
		})
	}
}

func TestUCPAdapterParseCheckoutNormalizesMajorUnits(t *testing.T) {
	t.Parallel()

	adapter := NewUCPAdapter()
	canonical, err := adapter.ParseRequest(ucpCheckoutPayload())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	req, ok := canonical.(CheckoutRequest)
	if !ok {
		t.Fatalf("expected a CheckoutRequest, got %T", canonical)
	}
	if req.Items[0].AmountCents != 1500 || req.Items[1].AmountCents != 900 {
		t.Fatalf("major units were not normalized to cents: %+v", req.Items)
	}
	if req.Country != "DE" {
		t.Fatalf("buyer country lost: %q", req.Country)
	}
	if req.ShippingSpeed != "express" {
		t.Fatalf("fulfillment speed lost: %q", req.ShippingSpeed)
	}
}

func TestUCPAdapterParseCompleteSelectsInstrument(t *testing.T) {
	t.Parallel()

	adapter := NewUCPAdapter()
	canonical, err := adapter.ParseRequest(json.RawMessage(`{
		"intent": {"action": "complete", "checkout_id": "cs_7"},
		"payment": {"instruments": [
			{"type": "card", "credential": {"token": "tok_a"}},
			{"type": "apple_pay", "selected": true, "credential": {"token": "tok_b"}}
		]}
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	req, ok := canonical.(PaymentRequest)
	if !ok {
		t.Fatalf("expected a PaymentRequest, got %T", canonical)
	}
	if req.SessionID != "cs_7" {
		t.Fatalf("unexpected session id %q", req.SessionID)
	}
	if req.Method.Type != "apple_pay" {
		t.Fatalf("expected the selected instrument, got %q", req.Method.Type)
	}
}

func TestUCPAdapterBuildResponseBlocked(t *testing.T) {
	t.Parallel()

	adapter := NewUCPAdapter()
	session := canonicalSessionFixture()
	session.HaloRisk = RiskResult{Score: 80, Decision: RiskDecisionBlock, Factors: []string{"amount_very_high"}}
	session.Status = SessionStatusNotReadyForPayment

	raw, err := adapter.BuildResponse(session, cardMerchant())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var out struct {
		UCP      struct{ Version string } `json:"ucp"`
		Status   string                   `json:"status"`
		Messages []struct {
			Type     string `json:"type"`
			Code     string `json:"code"`
			Severity string `json:"severity"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.UCP.Version != adapter.Version() {
		t.Fatalf("missing protocol envelope: %+v", out.UCP)
	}
	if out.Status != "requires_escalation" {
		t.Fatalf("expected requires_escalation, got %s", out.Status)
	}
	found := false
	for _, m := range out.Messages {
		if m.Type == "error" && m.Code == "risk_blocked" && m.Severity == "unrecoverable" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an unrecoverable risk_blocked message, got %v", out.Messages)
	}
}

func TestUCPAdapterRoundTripPreservesTotals(t *testing.T) {
	t.Parallel()

	currencies := []string{"usd", "eur", "gbp"}
	for _, currency := range currencies {
		t.Run(currency, func(t *testing.T) {
			t.Parallel()

			adapter := NewUCPAdapter()
			payload := json.RawMessage(`{
				"intent": {"action": "checkout"},
				"cart": {"items": [{"sku": "sku_1", "title": "Widget", "quantity": 4, "unit_price": 7.30, "currency": "` + currency + `"}]},
				"agent": {"payment_methods": ["card"]}
			}`)
			if res := adapter.ValidateRequest(payload); !res.Valid {
				t.Fatalf("validate: %v", res.Errors)
			}
			canonical, err := adapter.ParseRequest(payload)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			session := sessionFromCheckout(t, canonical.(CheckoutRequest))
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
			assertSingleTotal(t, out.Totals, 4*730)
		})
	}
}
