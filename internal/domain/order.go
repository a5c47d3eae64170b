package domain

import (
	"math"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// PaymentStatus describes the lifecycle of the payment attached to an order.
type PaymentStatus string

const (
	// PaymentStatusPending indicates no capture has been attempted yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusCompleted indicates the charge was captured successfully.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed indicates the gateway declined or errored.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates the captured amount was returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// OrderItem is a line item snapshot taken at order-creation time.
// Name and price are denormalised so later catalog changes never rewrite
// an existing order.
type OrderItem struct {
	ProductID   string
	ProductName string
	UnitPrice   float64
	Quantity    int
	Subtotal    float64
}

// Pricing is the monetary breakdown computed once when the order is created.
// All fields are rounded to cents at computation time.
type Pricing struct {
	Subtotal float64
	Tax      float64
	Shipping float64
	Discount float64
	Total    float64
}

// Address is the shipping destination snapshot. State is optional but drives
// tax and shipping rate lookups.
type Address struct {
	FullName string
	Street   string
	City     string
	State    string
	ZipCode  string
	Country  string
	Phone    string
}

// Payment records the payment method and capture outcome for an order.
type Payment struct {
	Method        string
	Status        PaymentStatus
	TransactionID string
	PaidAt        *time.Time
}

// StatusChange is a single append-only status history entry.
type StatusChange struct {
	Status    OrderStatus
	ChangedAt time.Time
	Reason    string
	ChangedBy string
}

// Order is the aggregate root. It is mutated only through ApplyTransition so
// status and history always stay in lockstep; terminal orders are retained,
// never deleted.
type Order struct {
	ID          string
	OrderNumber string

	UserID    string
	UserEmail string

	Items           []OrderItem
	Pricing         Pricing
	ShippingAddress Address

	Status  OrderStatus
	Payment Payment

	StatusHistory []StatusChange

	Notes        string
	CancelReason string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time

	// Version supports the repository's conditional updates; two concurrent
	// writers on the same document cannot both win.
	Version int64
}

// NewOrder builds a PENDING order with its initial history entry.
func NewOrder(id, orderNumber, userID, userEmail string, now time.Time) Order {
	now = now.UTC()
	return Order{
		ID:          id,
		OrderNumber: orderNumber,
		UserID:      userID,
		UserEmail:   userEmail,
		Status:      OrderStatusPending,
		Payment: Payment{
			Status: PaymentStatusPending,
		},
		StatusHistory: []StatusChange{
			{
				Status:    OrderStatusPending,
				ChangedAt: now,
				Reason:    "Order created",
				ChangedBy: "system",
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkPaymentCompleted records a successful capture on the aggregate.
func (o *Order) MarkPaymentCompleted(transactionID string, now time.Time) {
	now = now.UTC()
	o.Payment.Status = PaymentStatusCompleted
	o.Payment.TransactionID = transactionID
	o.Payment.PaidAt = &now
	o.UpdatedAt = now
}

// MarkPaymentRefunded records a completed refund on the aggregate.
func (o *Order) MarkPaymentRefunded(refundID string, now time.Time) {
	o.Payment.Status = PaymentStatusRefunded
	o.Payment.TransactionID = refundID
	o.UpdatedAt = now.UTC()
}

// RoundCents rounds a monetary amount to two decimals using
// round-half-away-from-zero on the cent boundary.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
