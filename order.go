package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FulfillmentStatus is the order's fulfillment sub-state.
type FulfillmentStatus string

const (
	FulfillmentStatusPending    FulfillmentStatus = "pending"
	FulfillmentStatusProcessing FulfillmentStatus = "processing"
	FulfillmentStatusShipped    FulfillmentStatus = "shipped"
	FulfillmentStatusDelivered  FulfillmentStatus = "delivered"
	FulfillmentStatusCanceled   FulfillmentStatus = "canceled"
)

// fulfillmentNext is the forward transition table. Cancellation is handled
// separately because it pairs with an adjustment.
var fulfillmentNext = map[FulfillmentStatus]FulfillmentStatus{
	FulfillmentStatusPending:    FulfillmentStatusProcessing,
	FulfillmentStatusProcessing: FulfillmentStatusShipped,
	FulfillmentStatusShipped:    FulfillmentStatusDelivered,
}

// AdjustmentType categorizes financial adjustments.
type AdjustmentType string

const (
	AdjustmentTypeRefund          AdjustmentType = "refund"
	AdjustmentTypeReturn          AdjustmentType = "return"
	AdjustmentTypeCredit          AdjustmentType = "credit"
	AdjustmentTypePriceAdjustment AdjustmentType = "price_adjustment"
	AdjustmentTypeDispute         AdjustmentType = "dispute"
	AdjustmentTypeCancellation    AdjustmentType = "cancellation"
)

var validAdjustmentTypes = map[AdjustmentType]bool{
	AdjustmentTypeRefund:          true,
	AdjustmentTypeReturn:          true,
	AdjustmentTypeCredit:          true,
	AdjustmentTypePriceAdjustment: true,
	AdjustmentTypeDispute:         true,
	AdjustmentTypeCancellation:    true,
}

// AdjustmentStatus marks whether an adjustment's money has moved.
type AdjustmentStatus string

const (
	AdjustmentStatusPending   AdjustmentStatus = "pending"
	AdjustmentStatusCompleted AdjustmentStatus = "completed"
)

// Adjustment is one append-only financial event on an order.
type Adjustment struct {
	ID          string           `json:"id"`
	Type        AdjustmentType   `json:"type"`
	Status      AdjustmentStatus `json:"status"`
	AmountCents int              `json:"amount_cents"`
	Currency    string           `json:"currency"`
	Reason      string           `json:"reason,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// PaymentState is derived from the running refunded total.
type PaymentState string

const (
	PaymentStatePaid          PaymentState = "paid"
	PaymentStatePartialRefund PaymentState = "partial_refund"
	PaymentStateRefunded      PaymentState = "refunded"
)

// Order is created exactly once per completed session. Line items are
// snapshotted, not referenced: the originating session may be evicted later.
type Order struct {
	ID            string            `json:"id"`
	SessionID     string            `json:"checkout_session_id"`
	Currency      string            `json:"currency"`
	LineItems     []LineItem        `json:"line_items"`
	TotalCents    int               `json:"total_cents"`
	TransactionID string            `json:"transaction_id"`
	Fulfillment   FulfillmentStatus `json:"fulfillment_status"`
	Adjustments   []Adjustment      `json:"adjustments"`
	PermalinkURL  string            `json:"permalink_url,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// RefundedCents sums every completed monetary adjustment.
func (o *Order) RefundedCents() int {
	sum := 0
	for _, adj := range o.Adjustments {
		if adj.Status == AdjustmentStatusCompleted {
			sum += adj.AmountCents
		}
	}
	return sum
}

// PaymentStatus derives the payment state from the refunded total.
func (o *Order) PaymentStatus() PaymentState {
	refunded := o.RefundedCents()
	switch {
	case refunded >= o.TotalCents && o.TotalCents > 0:
		return PaymentStateRefunded
	case refunded > 0:
		return PaymentStatePartialRefund
	default:
		return PaymentStatePaid
	}
}

func (o *Order) clone() *Order {
	out := *o
	out.LineItems = append([]LineItem{}, o.LineItems...)
	out.Adjustments = append([]Adjustment{}, o.Adjustments...)
	return &out
}

// OrderEventSink receives order lifecycle events. Delivery is fire-and-forget
// from the state machine's perspective.
type OrderEventSink interface {
	OrderCreated(ctx context.Context, order *Order)
	OrderUpdated(ctx context.Context, order *Order)
}

// NopOrderEvents discards order events.
type NopOrderEvents struct{}

// OrderCreated implements [OrderEventSink].
func (NopOrderEvents) OrderCreated(context.Context, *Order) {}

// OrderUpdated implements [OrderEventSink].
func (NopOrderEvents) OrderUpdated(context.Context, *Order) {}

// OrderService owns the post-payment fulfillment state machine and the
// append-only adjustment ledger.
type OrderService struct {
	store  *OrderStore
	events OrderEventSink
	clock  func() time.Time
	newID  func() string
	logger zerolog.Logger
}

// OrderServiceOption customizes service construction.
type OrderServiceOption func(*OrderService)

// WithOrderEvents attaches the event sink (e.g. the webhook sender).
func WithOrderEvents(sink OrderEventSink) OrderServiceOption {
	return func(s *OrderService) { s.events = sink }
}

// WithOrderClock provides deterministic time in tests.
func WithOrderClock(clock func() time.Time) OrderServiceOption {
	return func(s *OrderService) { s.clock = clock }
}

// WithOrderIDs overrides id generation in tests.
func WithOrderIDs(fn func() string) OrderServiceOption {
	return func(s *OrderService) { s.newID = fn }
}

// WithOrderLogger attaches a logger.
func WithOrderLogger(logger zerolog.Logger) OrderServiceOption {
	return func(s *OrderService) { s.logger = logger }
}

// NewOrderService builds the order lifecycle component.
func NewOrderService(store *OrderStore, opts ...OrderServiceOption) *OrderService {
	svc := &OrderService{
		store:  store,
		events: NopOrderEvents{},
		clock:  time.Now,
		newID:  func() string { return "ord_" + uuid.NewString() },
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(svc)
	}
	return svc
}

// CreateFromSession snapshots a completed session into a new pending order.
func (svc *OrderService) CreateFromSession(ctx context.Context, s *Session, transactionID string) (*Order, *Error) {
	now := svc.clock()
	order := &Order{
		ID:            svc.newID(),
		SessionID:     s.ID,
		Currency:      s.Currency,
		LineItems:     append([]LineItem{}, s.LineItems...),
		TotalCents:    s.TotalCents(),
		TransactionID: transactionID,
		Fulfillment:   FulfillmentStatusPending,
		Adjustments:   []Adjustment{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	order.PermalinkURL = "/orders/" + order.ID
	svc.store.Put(order)
	svc.emit(ctx, order, true)
	return order.clone(), nil
}

// Get returns a point-in-time copy of the order.
func (svc *OrderService) Get(_ context.Context, id string) (*Order, *Error) {
	return svc.store.Get(id)
}

// Advance moves the fulfillment state one step forward. A delivered order
// cannot transition further.
func (svc *OrderService) Advance(ctx context.Context, id string, next FulfillmentStatus) (*Order, *Error) {
	var snapshot *Order
	err := svc.store.Mutate(id, func(o *Order) *Error {
		expected, ok := fulfillmentNext[o.Fulfillment]
		if !ok || expected != next {
			return NewInvalidStateTransitionError(fmt.Sprintf("cannot advance order from %s to %s", o.Fulfillment, next))
		}
		o.Fulfillment = next
		o.UpdatedAt = svc.clock()
		snapshot = o.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	svc.emit(ctx, snapshot, false)
	return snapshot, nil
}

// Cancel is legal only while pending or processing. The fulfillment event and
// the full-amount cancellation adjustment are recorded atomically: both land
// under the same per-order lock or neither does.
func (svc *OrderService) Cancel(ctx context.Context, id, reason string) (*Order, *Error) {
	var snapshot *Order
	err := svc.store.Mutate(id, func(o *Order) *Error {
		if o.Fulfillment != FulfillmentStatusPending && o.Fulfillment != FulfillmentStatusProcessing {
			return NewInvalidStateTransitionError(fmt.Sprintf("cannot cancel a %s order", o.Fulfillment))
		}
		now := svc.clock()
		adjustment := Adjustment{
			ID:          "adj_" + uuid.NewString(),
			Type:        AdjustmentTypeCancellation,
			Status:      AdjustmentStatusCompleted,
			AmountCents: o.TotalCents,
			Currency:    o.Currency,
			Reason:      reason,
			CreatedAt:   now,
		}
		o.Fulfillment = FulfillmentStatusCanceled
		o.Adjustments = append(o.Adjustments, adjustment)
		o.UpdatedAt = now
		snapshot = o.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	svc.emit(ctx, snapshot, false)
	return snapshot, nil
}

// Adjust appends a financial adjustment. The ledger is append-only; nothing
// is ever rewritten or removed.
func (svc *OrderService) Adjust(ctx context.Context, id string, typ AdjustmentType, amountCents int, reason string) (*Order, *Error) {
	if !validAdjustmentTypes[typ] {
		return nil, NewInvalidRequestError(fmt.Sprintf("unknown adjustment type %q", typ))
	}
	if amountCents < 0 {
		return nil, NewInvalidRequestError("adjustment amount must not be negative")
	}
	var snapshot *Order
	err := svc.store.Mutate(id, func(o *Order) *Error {
		o.Adjustments = append(o.Adjustments, Adjustment{
			ID:          "adj_" + uuid.NewString(),
			Type:        typ,
			Status:      AdjustmentStatusCompleted,
			AmountCents: amountCents,
			Currency:    o.Currency,
			Reason:      reason,
			CreatedAt:   svc.clock(),
		})
		o.UpdatedAt = svc.clock()
		snapshot = o.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	svc.emit(ctx, snapshot, false)
	return snapshot, nil
}

// emit delivers events without ever blocking a state transition.
func (svc *OrderService) emit(ctx context.Context, order *Order, created bool) {
	if svc.events == nil {
		return
	}
	copyForSink := order.clone()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				svc.logger.Warn().Interface("panic", r).Msg("order event sink panicked")
			}
		}()
		if created {
			svc.events.OrderCreated(context.WithoutCancel(ctx), copyForSink)
			return
		}
		svc.events.OrderUpdated(context.WithoutCancel(ctx), copyForSink)
	}()
}
