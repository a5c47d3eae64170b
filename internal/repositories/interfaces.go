package repositories

import (
	"context"
	"time"

	domain "github.com/clearbay/orders/internal/domain"
)

// RepositoryError wraps low-level persistence failures with the
// categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderListFilter narrows and pages ListByUser results.
type OrderListFilter struct {
	Status *domain.OrderStatus
	Page   domain.Pagination
}

// OrderRepository persists Order aggregates. Implementations must guarantee
// that UpdateStatus and UpdatePaymentStatus are atomic per document: two
// concurrent writers on the same order cannot interleave, and the loser
// surfaces a conflict.
type OrderRepository interface {
	// Insert stores a new order. A duplicate order number is a conflict.
	Insert(ctx context.Context, order domain.Order) error

	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, filter OrderListFilter) (domain.CursorPage[domain.Order], error)

	// UpdateStatus transitions the order through the status state machine,
	// rejecting illegal transitions with domain.ErrInvalidTransition. The
	// read-check-write runs in a single transaction.
	UpdateStatus(ctx context.Context, orderID string, target domain.OrderStatus, reason, actor string) (domain.Order, error)

	// UpdatePaymentStatus records the payment outcome. Moving to COMPLETED
	// also stamps paidAt.
	UpdatePaymentStatus(ctx context.Context, orderID string, status domain.PaymentStatus, transactionID string) (domain.Order, error)

	// FindPendingOlderThan returns PENDING orders created before the cutoff
	// whose payment has not completed. Consumed by the abandoned-order sweep.
	FindPendingOlderThan(ctx context.Context, cutoff time.Time) ([]domain.Order, error)
}

// UserRecord is the slice of the user document the order flow needs.
type UserRecord struct {
	ID     string
	Email  string
	Active bool
}

// UserDirectory resolves user records for validation and email snapshots.
type UserDirectory interface {
	FindUser(ctx context.Context, userID string) (UserRecord, error)
}

// ProductRecord is the catalog snapshot used to enrich order line items.
type ProductRecord struct {
	ID     string
	Name   string
	Price  float64
	Active bool
}

// CatalogRepository exposes current product data for item enrichment.
type CatalogRepository interface {
	FindProduct(ctx context.Context, productID string) (ProductRecord, error)
}
