package bridge

import (
	"context"
	"sync"
	"testing"
	"time"
)

func testOrderSession() *Session {
	s := &Session{
		ID:       "cs_ord",
		State:    SessionStateCompleted,
		Currency: "USD",
		LineItems: []LineItem{
			{ID: "sku_1", Name: "Widget", Quantity: 2, BaseAmount: 4000, Subtotal: 4000, Total: 4000},
		},
	}
	s.recalculateTotals()
	return s
}

// recordingSink captures order events for assertions.
type recordingSink struct {
	mu      sync.Mutex
	created []string
	updated []string
	done    chan struct{}
}

func newRecordingSink(expected int) *recordingSink {
	return &recordingSink{done: make(chan struct{}, expected)}
}

func (r *recordingSink) OrderCreated(_ context.Context, order *Order) {
	r.mu.Lock()
	r.created = append(r.created, order.ID)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recordingSink) OrderUpdated(_ context.Context, order *Order) {
	r.mu.Lock()
	r.updated = append(r.updated, order.ID)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recordingSink) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for order event %d of %d", i+1, n)
		}
	}
}

func TestOrderCreateFromSessionSnapshots(t *testing.T) {
	t.Parallel()

	svc := NewOrderService(NewOrderStore(), WithOrderIDs(func() string { return "ord_1" }))
	session := testOrderSession()

	order, err := svc.CreateFromSession(context.Background(), session, "txn_1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.ID != "ord_1" || order.SessionID != "cs_ord" {
		t.Fatalf("unexpected identifiers: %+v", order)
	}
	if order.TotalCents != 4000 {
		t.Fatalf("expected total 4000, got %d", order.TotalCents)
	}
	if order.Fulfillment != FulfillmentStatusPending {
		t.Fatalf("expected pending fulfillment, got %s", order.Fulfillment)
	}
	if order.PermalinkURL != "/orders/ord_1" {
		t.Fatalf("unexpected permalink %q", order.PermalinkURL)
	}

	// The order is a snapshot: later session mutation must not show through.
	session.LineItems[0].Name = "Tampered"
	stored, gerr := svc.Get(context.Background(), "ord_1")
	if gerr != nil {
		t.Fatalf("get: %v", gerr)
	}
	if stored.LineItems[0].Name != "Widget" {
		t.Fatalf("order line items should be snapshotted, got %q", stored.LineItems[0].Name)
	}
}

func TestOrderAdvanceFollowsTransitionTable(t *testing.T) {
	t.Parallel()

	svc := NewOrderService(NewOrderStore())
	order, err := svc.CreateFromSession(context.Background(), testOrderSession(), "txn_1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, next := range []FulfillmentStatus{
		FulfillmentStatusProcessing,
		FulfillmentStatusShipped,
		FulfillmentStatusDelivered,
	} {
		advanced, aerr := svc.Advance(context.Background(), order.ID, next)
		if aerr != nil {
			t.Fatalf("advance to %s: %v", next, aerr)
		}
		if advanced.Fulfillment != next {
			t.Fatalf("expected %s, got %s", next, advanced.Fulfillment)
		}
	}

	// Delivered is terminal.
	if _, aerr := svc.Advance(context.Background(), order.ID, FulfillmentStatusPending); aerr == nil {
		t.Fatal("expected a delivered order to refuse further transitions")
	}
}

func TestOrderAdvanceRejectsSkippedStates(t *testing.T) {
	t.Parallel()

	svc := NewOrderService(NewOrderStore())
	order, err := svc.CreateFromSession(context.Background(), testOrderSession(), "txn_1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, aerr := svc.Advance(context.Background(), order.ID, FulfillmentStatusShipped)
	if aerr == nil {
		t.Fatal("expected pending -> shipped to be rejected")
	}
	if aerr.Code != CodeInvalidStateTransition {
		t.Fatalf("expected %s got %s", CodeInvalidStateTransition, aerr.Code)
	}
}

func TestOrderCancelRecordsCancellationAdjustment(t *testing.T) {
	t.Parallel()

	svc := NewOrderService(NewOrderStore())
	order, err := svc.CreateFromSession(context.Background(), testOrderSession(), "txn_1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	canceled, cerr := svc.Cancel(context.Background(), order.ID, "buyer changed their mind")
	if cerr != nil {
		t.Fatalf("cancel: %v", cerr)
	}
	if canceled.Fulfillment != FulfillmentStatusCanceled {
		t.Fatalf("expected canceled fulfillment, got %s", canceled.Fulfillment)
	}
	if len(canceled.Adjustments) != 1 {
		t.Fatalf("expected exactly one adjustment, got %d", len(canceled.Adjustments))
	}
	adj := canceled.Adjustments[0]
	if adj.Type != AdjustmentTypeCancellation || adj.AmountCents != canceled.TotalCents {
		t.Fatalf("expected a full-amount cancellation adjustment, got %+v", adj)
	}
	if canceled.PaymentStatus() != PaymentStateRefunded {
		t.Fatalf("expected refunded payment state, got %s", canceled.PaymentStatus())
	}

	if _, cerr := svc.Cancel(context.Background(), order.ID, "again"); cerr == nil {
		t.Fatal("expected a second cancel to be rejected")
	}
}

func TestOrderAdjustLedgerIsAppendOnly(t *testing.T) {
	t.Parallel()

	svc := NewOrderService(NewOrderStore())
	order, err := svc.CreateFromSession(context.Background(), testOrderSession(), "txn_1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, aerr := svc.Adjust(context.Background(), order.ID, AdjustmentTypeRefund, 1500, "damaged item"); aerr != nil {
		t.Fatalf("refund: %v", aerr)
	}
	adjusted, aerr := svc.Adjust(context.Background(), order.ID, AdjustmentTypeCredit, 500, "goodwill")
	if aerr != nil {
		t.Fatalf("credit: %v", aerr)
	}
	if len(adjusted.Adjustments) != 2 {
		t.Fatalf("expected two ledger entries, got %d", len(adjusted.Adjustments))
	}
	if adjusted.RefundedCents() != 2000 {
		t.Fatalf("expected 2000 refunded, got %d", adjusted.RefundedCents())
	}
	if adjusted.PaymentStatus() != PaymentStatePartialRefund {
		t.Fatalf("expected partial refund state, got %s", adjusted.PaymentStatus())
	}

	if _, aerr := svc.Adjust(context.Background(), order.ID, AdjustmentType("bogus"), 100, ""); aerr == nil {
		t.Fatal("expected an unknown adjustment type to be rejected")
	}
	if _, aerr := svc.Adjust(context.Background(), order.ID, AdjustmentTypeRefund, -1, ""); aerr == nil {
		t.Fatal("expected a negative amount to be rejected")
	}
}

func TestOrderEventsAreEmitted(t *testing.T) {
	t.Parallel()

	sink := newRecordingSink(2)
	svc := NewOrderService(NewOrderStore(), WithOrderEvents(sink))

	order, err := svc.CreateFromSession(context.Background(), testOrderSession(), "txn_1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, aerr := svc.Advance(context.Background(), order.ID, FulfillmentStatusProcessing); aerr != nil {
		t.Fatalf("advance: %v", aerr)
	}

	sink.wait(t, 2)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.created) != 1 || sink.created[0] != order.ID {
		t.Fatalf("expected one created event for %s, got %v", order.ID, sink.created)
	}
	if len(sink.updated) != 1 || sink.updated[0] != order.ID {
		t.Fatalf("expected one updated event for %s, got %v", order.ID, sink.updated)
	}
}
