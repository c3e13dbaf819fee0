package bridge

import "testing"

// canonicalSessionFixture is a minimal valid session for response-building
// tests: a single 4000-cent line item and matching totals.
func canonicalSessionFixture() *CheckoutSession {
	return &CheckoutSession{
		ID:       "cs_fixture",
		Status:   SessionStatusReadyForPayment,
		Currency: "usd",
		LineItems: []LineItem{
			{ID: "sku_1", Name: "Widget", Quantity: 2, BaseAmount: 4000, Subtotal: 4000, Total: 4000},
		},
		Totals: []Total{
			{Type: TotalTypeSubtotal, Amount: 4000},
			{Type: TotalTypeTotal, Amount: 4000},
		},
		Messages: []Message{},
	}
}

// sessionFromCheckout builds the canonical view a service would produce for
// the request, without running the full session lifecycle.
func sessionFromCheckout(t *testing.T, req CheckoutRequest) *CheckoutSession {
	t.Helper()
	if len(req.Items) == 0 {
		t.Fatal("checkout request has no items")
	}
	lineItems := make([]LineItem, 0, len(req.Items))
	total := 0
	for _, item := range req.Items {
		base := item.AmountCents * item.Quantity
		lineItems = append(lineItems, LineItem{
			ID:         item.ID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			BaseAmount: base,
			Subtotal:   base,
			Total:      base,
		})
		total += base
	}
	return &CheckoutSession{
		ID:        "cs_roundtrip",
		Status:    SessionStatusReadyForPayment,
		Currency:  req.Items[0].Currency,
		LineItems: lineItems,
		Totals: []Total{
			{Type: TotalTypeSubtotal, Amount: total},
			{Type: TotalTypeTotal, Amount: total},
		},
		Messages: []Message{},
	}
}

func assertSingleTotal(t *testing.T, totals []Total, want int) {
	t.Helper()
	count := 0
	got := 0
	for _, entry := range totals {
		if entry.Type == TotalTypeTotal {
			count++
			got = entry.Amount
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one total entry, got %d", count)
	}
	if got != want {
		t.Fatalf("expected total %d, got %d", want, got)
	}
}
