package services

import (
	"context"
	"time"

	domain "github.com/clearbay/orders/internal/domain"
	"github.com/clearbay/orders/internal/payments"
	"github.com/clearbay/orders/internal/repositories"
)

// Event types published on the order lifecycle topic.
const (
	// EventOrderCreated is emitted after a saga reaches CONFIRMED.
	EventOrderCreated = "order.created"
	// EventOrderStatusChanged is emitted on administrative transitions and cancellations.
	EventOrderStatusChanged = "order.status.changed"
	// EventOrderAbandoned is emitted for every order the reconciler abandons.
	EventOrderAbandoned = "order.abandoned"
	// EventOrderAbandonedReminder is additionally emitted for recently
	// abandoned orders still inside the reminder window.
	EventOrderAbandonedReminder = "order.abandoned.reminder"
)

// OrderEvent captures metadata for emitted order lifecycle events.
// Publication is fire-and-forget: failures are logged, never propagated.
type OrderEvent struct {
	Type           string             `json:"type"`
	OrderID        string             `json:"orderId"`
	OrderNumber    string             `json:"orderNumber"`
	UserID         string             `json:"userId"`
	UserEmail      string             `json:"userEmail"`
	PreviousStatus domain.OrderStatus `json:"previousStatus,omitempty"`
	CurrentStatus  domain.OrderStatus `json:"currentStatus"`
	Total          float64            `json:"total"`
	OccurredAt     time.Time          `json:"occurredAt"`
	Metadata       map[string]string  `json:"metadata,omitempty"`
}

// OrderEventPublisher publishes order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// InventoryGateway holds, releases, and commits stock per line item. Release
// must be an idempotent no-op when nothing is held for the reference.
type InventoryGateway interface {
	CheckAvailability(ctx context.Context, items []domain.OrderItem) (bool, error)
	Reserve(ctx context.Context, orderRef string, items []domain.OrderItem) error
	Release(ctx context.Context, orderRef string, items []domain.OrderItem) error
	Finalize(ctx context.Context, orderRef string, items []domain.OrderItem) error
}

// PaymentGateway is the slice of the payments package the saga consumes.
type PaymentGateway interface {
	Capture(ctx context.Context, req payments.CaptureRequest) (payments.CaptureResult, error)
	Refund(ctx context.Context, req payments.RefundRequest) (payments.RefundResult, error)
}

// OrderItemRequest is a raw line item as submitted by the client.
type OrderItemRequest struct {
	ProductID string
	Quantity  int
}

// CreateOrderCommand carries the validated request payload into the saga.
type CreateOrderCommand struct {
	Items           []OrderItemRequest
	ShippingAddress domain.Address
	PaymentMethod   string
	Notes           string
	// IdempotencyKey is optional; when present it is recorded and forwarded
	// to the payment gateway. The saga itself does not deduplicate.
	IdempotencyKey string
}

// ListOrdersOptions pages and filters a user's order history.
type ListOrdersOptions struct {
	Status *domain.OrderStatus
	Page   domain.Pagination
}

// Actor identifies who is driving an operation for history and authorisation.
type Actor struct {
	ID    string
	Admin bool
}

// SystemActor is used for transitions the platform performs on its own.
var SystemActor = Actor{ID: "system", Admin: true}

// OrderService exposes the order creation saga and the operations around it.
type OrderService interface {
	// CreateOrder runs the fixed-order creation saga and returns the
	// confirmed order or a typed failure. Every exit path that acquired
	// inventory releases it first.
	CreateOrder(ctx context.Context, cmd CreateOrderCommand, userID string) (domain.Order, error)

	GetOrder(ctx context.Context, orderID string, actor Actor) (domain.Order, error)
	ListUserOrders(ctx context.Context, userID string, opts ListOrdersOptions) (domain.CursorPage[domain.Order], error)

	// CancelOrder runs the legality check through the state machine, then the
	// cancellation side effects: inventory release and, when payment had
	// completed, a refund.
	CancelOrder(ctx context.Context, orderID, reason string, actor Actor) (domain.Order, error)

	// TransitionStatus applies an administrative status change.
	TransitionStatus(ctx context.Context, orderID string, target domain.OrderStatus, reason string, actor Actor) (domain.Order, error)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Users     repositories.UserDirectory
	Catalog   repositories.CatalogRepository
	Inventory InventoryGateway
	Payments  PaymentGateway
	Pricing   *PricingEngine
	Events    OrderEventPublisher

	// MaxItemsPerOrder caps the quantity of any single line item.
	MaxItemsPerOrder int
	Currency         string

	Clock       func() time.Time
	IDGenerator func() string
	OrderNumber func(now time.Time) string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}
