package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/clearbay/orders/internal/domain"
	platformfs "github.com/clearbay/orders/internal/platform/firestore"
	"github.com/clearbay/orders/internal/platform/pagination"
	"github.com/clearbay/orders/internal/repositories"
)

const (
	ordersCollection       = "orders"
	orderNumbersCollection = "orderNumbers"

	defaultListPageSize = 20
	maxListPageSize     = 100
)

// OrderRepository persists orders in Firestore. Status and payment updates
// run inside transactions so the read-check-write cycle is atomic; losers of
// a concurrent update surface as conflicts.
type OrderRepository struct {
	provider *platformfs.Provider
	orders   *platformfs.BaseRepository[orderDoc]
	clock    func() time.Time
}

// NewOrderRepository binds the repository to the provider's client.
func NewOrderRepository(provider *platformfs.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("firestore: provider is required")
	}
	return &OrderRepository{
		provider: provider,
		orders:   platformfs.NewBaseRepository[orderDoc](provider, ordersCollection),
		clock:    time.Now,
	}, nil
}

// Insert writes the order and claims its order number in one transaction.
// A taken order number fails the claim with AlreadyExists, which maps to a
// conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return repositories.NewOrderError(repositories.OrderErrorUnknown, "order id is required", nil)
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.NewOrderError(repositories.OrderErrorUnavailable, "firestore client", err)
	}
	return platformfs.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		numberRef := client.Collection(orderNumbersCollection).Doc(order.OrderNumber)
		if err := tx.Create(numberRef, map[string]any{
			"orderId":   order.ID,
			"createdAt": order.CreatedAt,
		}); err != nil {
			return err
		}
		orderRef := client.Collection(ordersCollection).Doc(order.ID)
		return tx.Create(orderRef, encodeOrder(order))
	})
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

func (r *OrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", "==", orderNumber).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound,
			fmt.Sprintf("order number %s not found", orderNumber), nil)
	}
	return decodeOrder(docs[0].ID, docs[0].Data), nil
}

// ListByUser pages a user's orders newest first. The cursor encodes the last
// document's createdAt and ID so paging stays stable while new orders arrive.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	pageSize := filter.Page.PageSize
	if pageSize <= 0 {
		pageSize = defaultListPageSize
	}
	if pageSize > maxListPageSize {
		pageSize = maxListPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Page.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	startAfter, err := decodeOrderCursor(cursor)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", userID)
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		q = q.OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if startAfter != nil {
			q = q.StartAfter(startAfter.createdAt, startAfter.id)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}
	for _, doc := range docs {
		page.Items = append(page.Items, decodeOrder(doc.ID, doc.Data))
	}
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(encodeOrderCursor(last.Data.CreatedAt, last.ID))
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// UpdateStatus applies a state machine transition inside a transaction. The
// document version is bumped on every write; Firestore aborts the loser of a
// concurrent transaction, which WrapError reports as a conflict.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, target domain.OrderStatus, reason, actor string) (domain.Order, error) {
	var updated domain.Order
	err := r.mutate(ctx, orderID, func(order *domain.Order) error {
		if err := order.ApplyTransition(target, reason, actor, r.clock()); err != nil {
			return err
		}
		updated = *order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// UpdatePaymentStatus records a payment outcome. Moving to COMPLETED stamps
// paidAt with the repository clock.
func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, orderID string, status domain.PaymentStatus, transactionID string) (domain.Order, error) {
	var updated domain.Order
	err := r.mutate(ctx, orderID, func(order *domain.Order) error {
		now := r.clock().UTC()
		switch status {
		case domain.PaymentStatusCompleted:
			order.MarkPaymentCompleted(transactionID, now)
		case domain.PaymentStatusRefunded:
			order.MarkPaymentRefunded(transactionID, now)
		default:
			order.Payment.Status = status
			if transactionID != "" {
				order.Payment.TransactionID = transactionID
			}
			order.UpdatedAt = now
		}
		updated = *order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// FindPendingOlderThan returns stale pending orders for the abandonment
// sweep. Payment completeness is filtered in code so the query needs only a
// single-field inequality.
func (r *OrderRepository) FindPendingOlderThan(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(domain.OrderStatusPending)).
			Where("createdAt", "<", cutoff).
			OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	var stale []domain.Order
	for _, doc := range docs {
		if doc.Data.Payment.Status == string(domain.PaymentStatusCompleted) {
			continue
		}
		stale = append(stale, decodeOrder(doc.ID, doc.Data))
	}
	return stale, nil
}

// mutate runs a read-modify-write on one order document inside a transaction.
func (r *OrderRepository) mutate(ctx context.Context, orderID string, apply func(order *domain.Order) error) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.NewOrderError(repositories.OrderErrorUnavailable, "firestore client", err)
	}
	ref := client.Collection(ordersCollection).Doc(orderID)
	return platformfs.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		order := decodeOrder(orderID, doc)
		if err := apply(&order); err != nil {
			return err
		}
		order.Version++
		return tx.Set(ref, encodeOrder(order))
	})
}

type orderCursor struct {
	createdAt time.Time
	id        string
}

func encodeOrderCursor(createdAt time.Time, id string) pagination.Cursor {
	return pagination.Cursor{
		StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), id},
	}
}

func decodeOrderCursor(cursor pagination.Cursor) (*orderCursor, error) {
	if len(cursor.StartAfter) == 0 {
		return nil, nil
	}
	if len(cursor.StartAfter) != 2 {
		return nil, pagination.ErrInvalidPageToken
	}
	rawTime, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, pagination.ErrInvalidPageToken
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok {
		return nil, pagination.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	return &orderCursor{createdAt: createdAt, id: id}, nil
}
