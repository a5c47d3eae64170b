package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/clearbay/orders/internal/domain"
	"github.com/clearbay/orders/internal/payments"
	"github.com/clearbay/orders/internal/repositories"
)

type orderService struct {
	orders    repositories.OrderRepository
	users     repositories.UserDirectory
	catalog   repositories.CatalogRepository
	inventory InventoryGateway
	payments  PaymentGateway
	pricing   *PricingEngine
	events    OrderEventPublisher

	maxItems int
	currency string

	clock       func() time.Time
	idGenerator func() string
	orderNumber func(now time.Time) string
	logger      func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService wires a concrete order service from its dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("services: order repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("services: user directory is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("services: catalog repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("services: inventory gateway is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("services: payment gateway is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("services: pricing engine is required")
	}
	svc := &orderService{
		orders:      deps.Orders,
		users:       deps.Users,
		catalog:     deps.Catalog,
		inventory:   deps.Inventory,
		payments:    deps.Payments,
		pricing:     deps.Pricing,
		events:      deps.Events,
		maxItems:    deps.MaxItemsPerOrder,
		currency:    deps.Currency,
		clock:       deps.Clock,
		idGenerator: deps.IDGenerator,
		orderNumber: deps.OrderNumber,
		logger:      deps.Logger,
	}
	if svc.maxItems <= 0 {
		svc.maxItems = 10
	}
	if svc.currency == "" {
		svc.currency = "usd"
	}
	if svc.clock == nil {
		svc.clock = time.Now
	}
	if svc.idGenerator == nil {
		svc.idGenerator = func() string { return ulid.Make().String() }
	}
	if svc.orderNumber == nil {
		svc.orderNumber = defaultOrderNumber
	}
	if svc.logger == nil {
		svc.logger = func(context.Context, string, map[string]any) {}
	}
	return svc, nil
}

func defaultOrderNumber(now time.Time) string {
	id := ulid.Make().String()
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), id[len(id)-10:])
}

// CreateOrder drives the creation saga. The step order is fixed; once
// inventory is reserved every failure path releases it before returning,
// and a persisted order that cannot be confirmed is cancelled.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand, userID string) (domain.Order, error) {
	now := s.clock().UTC()

	user, err := s.validateUser(ctx, userID)
	if err != nil {
		return domain.Order{}, err
	}
	items, err := s.validateItems(ctx, cmd.Items)
	if err != nil {
		return domain.Order{}, err
	}
	ok, err := s.inventory.CheckAvailability(ctx, items)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: availability check: %v", ErrReservationFailed, err)
	}
	if !ok {
		return domain.Order{}, ErrInsufficientStock
	}

	pricing := s.pricing.Price(items, cmd.ShippingAddress, 0)

	order := domain.NewOrder(s.idGenerator(), s.orderNumber(now), user.ID, user.Email, now)
	order.Items = items
	order.Pricing = pricing
	order.ShippingAddress = cmd.ShippingAddress
	order.Notes = strings.TrimSpace(cmd.Notes)
	order.Payment = domain.Payment{
		Method: cmd.PaymentMethod,
		Status: domain.PaymentStatusPending,
	}

	if err := s.inventory.Reserve(ctx, order.ID, items); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrReservationFailed, err)
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		s.releaseInventory(ctx, order)
		return domain.Order{}, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	capture, err := s.payments.Capture(ctx, payments.CaptureRequest{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Amount:         order.Pricing.Total,
		Currency:       s.currency,
		Method:         cmd.PaymentMethod,
		IdempotencyKey: cmd.IdempotencyKey,
		Metadata:       map[string]string{"userId": user.ID},
	})
	if err != nil || !capture.Success {
		s.abortAfterPersist(ctx, order, capture.DeclineReason, err)
		if err != nil {
			return domain.Order{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
		return domain.Order{}, fmt.Errorf("%w: %s", ErrPaymentFailed, capture.DeclineReason)
	}

	confirmed, err := s.confirm(ctx, order, capture.TransactionID)
	if err != nil {
		s.refundCapture(ctx, order, capture.TransactionID)
		s.abortAfterPersist(ctx, order, "confirmation failed", err)
		return domain.Order{}, err
	}

	s.publish(ctx, OrderEvent{
		Type:           EventOrderCreated,
		OrderID:        confirmed.ID,
		OrderNumber:    confirmed.OrderNumber,
		UserID:         confirmed.UserID,
		UserEmail:      confirmed.UserEmail,
		PreviousStatus: domain.OrderStatusPending,
		CurrentStatus:  confirmed.Status,
		Total:          confirmed.Pricing.Total,
		OccurredAt:     s.clock().UTC(),
	})

	return confirmed, nil
}

func (s *orderService) validateUser(ctx context.Context, userID string) (repositories.UserRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return repositories.UserRecord{}, fmt.Errorf("%w: missing user id", ErrUserInvalid)
	}
	user, err := s.users.FindUser(ctx, userID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return repositories.UserRecord{}, fmt.Errorf("%w: user %s not found", ErrUserInvalid, userID)
		}
		return repositories.UserRecord{}, fmt.Errorf("%w: user lookup: %v", ErrPersistenceFailed, err)
	}
	if !user.Active {
		return repositories.UserRecord{}, fmt.Errorf("%w: user %s is inactive", ErrUserInvalid, userID)
	}
	return user, nil
}

func (s *orderService) validateItems(ctx context.Context, requested []OrderItemRequest) ([]domain.OrderItem, error) {
	if len(requested) == 0 {
		return nil, fmt.Errorf("%w: order has no items", ErrItemInvalid)
	}
	items := make([]domain.OrderItem, 0, len(requested))
	for _, req := range requested {
		if strings.TrimSpace(req.ProductID) == "" {
			return nil, fmt.Errorf("%w: missing product id", ErrItemInvalid)
		}
		if req.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s: quantity must be positive", ErrItemInvalid, req.ProductID)
		}
		if req.Quantity > s.maxItems {
			return nil, fmt.Errorf("%w: product %s: quantity %d exceeds limit %d", ErrItemInvalid, req.ProductID, req.Quantity, s.maxItems)
		}
		product, err := s.catalog.FindProduct(ctx, req.ProductID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return nil, fmt.Errorf("%w: product %s not found", ErrItemInvalid, req.ProductID)
			}
			return nil, fmt.Errorf("%w: product lookup: %v", ErrPersistenceFailed, err)
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: product %s is not purchasable", ErrItemInvalid, req.ProductID)
		}
		items = append(items, domain.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    req.Quantity,
			Subtotal:    domain.RoundCents(product.Price * float64(req.Quantity)),
		})
	}
	return items, nil
}

// confirm records the captured payment and moves the order PENDING -> CONFIRMED,
// then commits the inventory reservation.
func (s *orderService) confirm(ctx context.Context, order domain.Order, transactionID string) (domain.Order, error) {
	if _, err := s.orders.UpdatePaymentStatus(ctx, order.ID, domain.PaymentStatusCompleted, transactionID); err != nil {
		return domain.Order{}, fmt.Errorf("%w: record payment: %v", ErrPersistenceFailed, err)
	}

	updated, err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusConfirmed, "Payment captured", SystemActor.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: confirm order: %v", ErrPersistenceFailed, err)
	}

	if err := s.inventory.Finalize(ctx, order.ID, order.Items); err != nil {
		// Stock is already held; log and let reconciliation settle it.
		s.logger(ctx, "order.inventory.finalize_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
	return updated, nil
}

// abortAfterPersist cancels a persisted order and releases its reservation.
// Compensation failures are logged, never surfaced over the original error.
func (s *orderService) abortAfterPersist(ctx context.Context, order domain.Order, reason string, cause error) {
	if reason == "" {
		reason = "payment failed"
	}
	if cause != nil {
		s.logger(ctx, "order.saga.abort", map[string]any{
			"orderId": order.ID,
			"reason":  reason,
			"error":   cause.Error(),
		})
	}
	s.releaseInventory(ctx, order)
	if _, err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusCancelled, reason, SystemActor.ID); err != nil {
		s.logger(ctx, "order.saga.cancel_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

// refundCapture reverses a captured charge for an order that never reached
// CONFIRMED. The order record still shows the payment as pending, so no
// customer-facing cancellation path can find the transaction later; this is
// the only chance to return the money. Refund failures are logged for manual
// follow-up, never surfaced over the original error.
func (s *orderService) refundCapture(ctx context.Context, order domain.Order, transactionID string) {
	if transactionID == "" {
		return
	}
	result, err := s.payments.Refund(ctx, payments.RefundRequest{
		OrderID:       order.ID,
		TransactionID: transactionID,
		Amount:        order.Pricing.Total,
		Currency:      s.currency,
	})
	if err != nil || !result.Success {
		fields := map[string]any{
			"orderId":       order.ID,
			"transactionId": transactionID,
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		s.logger(ctx, "order.refund.failed", fields)
	}
}

func (s *orderService) releaseInventory(ctx context.Context, order domain.Order) {
	if err := s.inventory.Release(ctx, order.ID, order.Items); err != nil {
		s.logger(ctx, "order.inventory.release_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, actor Actor) (domain.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.Admin && order.UserID != actor.ID {
		return domain.Order{}, ErrUnauthorized
	}
	return order, nil
}

func (s *orderService) ListUserOrders(ctx context.Context, userID string, opts ListOrdersOptions) (domain.CursorPage[domain.Order], error) {
	page, err := s.orders.ListByUser(ctx, userID, repositories.OrderListFilter{
		Status: opts.Status,
		Page:   opts.Page,
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: list orders: %v", ErrPersistenceFailed, err)
	}
	return page, nil
}

func (s *orderService) CancelOrder(ctx context.Context, orderID, reason string, actor Actor) (domain.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.Admin && order.UserID != actor.ID {
		return domain.Order{}, ErrUnauthorized
	}
	if !domain.CanTransition(order.Status, domain.OrderStatusCancelled) {
		return domain.Order{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, domain.OrderStatusCancelled)
	}
	if reason == "" {
		reason = "Cancelled by customer"
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID, domain.OrderStatusCancelled, reason, actor.ID)
	if err != nil {
		return domain.Order{}, s.mapUpdateError(err)
	}

	s.releaseInventory(ctx, updated)

	if order.Payment.Status == domain.PaymentStatusCompleted && order.Payment.TransactionID != "" {
		result, err := s.payments.Refund(ctx, payments.RefundRequest{
			OrderID:       order.ID,
			TransactionID: order.Payment.TransactionID,
			Amount:        order.Pricing.Total,
			Currency:      s.currency,
			Reason:        "requested_by_customer",
		})
		if err != nil {
			s.logger(ctx, "order.refund.failed", map[string]any{
				"orderId": orderID,
				"error":   err.Error(),
			})
		} else if result.Success {
			refunded, err := s.orders.UpdatePaymentStatus(ctx, orderID, domain.PaymentStatusRefunded, order.Payment.TransactionID)
			if err != nil {
				s.logger(ctx, "order.refund.record_failed", map[string]any{
					"orderId": orderID,
					"error":   err.Error(),
				})
			} else {
				updated = refunded
			}
		}
	}

	s.publish(ctx, OrderEvent{
		Type:           EventOrderStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		UserID:         updated.UserID,
		UserEmail:      updated.UserEmail,
		PreviousStatus: order.Status,
		CurrentStatus:  domain.OrderStatusCancelled,
		Total:          updated.Pricing.Total,
		OccurredAt:     s.clock().UTC(),
		Metadata:       map[string]string{"reason": reason},
	})

	return updated, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, orderID string, target domain.OrderStatus, reason string, actor Actor) (domain.Order, error) {
	if !actor.Admin {
		return domain.Order{}, ErrUnauthorized
	}
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !domain.CanTransition(order.Status, target) {
		return domain.Order{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, target)
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID, target, reason, actor.ID)
	if err != nil {
		return domain.Order{}, s.mapUpdateError(err)
	}

	s.publish(ctx, OrderEvent{
		Type:           EventOrderStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		UserID:         updated.UserID,
		UserEmail:      updated.UserEmail,
		PreviousStatus: order.Status,
		CurrentStatus:  target,
		Total:          updated.Pricing.Total,
		OccurredAt:     s.clock().UTC(),
		Metadata:       map[string]string{"reason": reason},
	})

	return updated, nil
}

func (s *orderService) findOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) {
			if repoErr.IsNotFound() {
				return domain.Order{}, ErrOrderNotFound
			}
		}
		return domain.Order{}, fmt.Errorf("%w: load order: %v", ErrPersistenceFailed, err)
	}
	return order, nil
}

func (s *orderService) mapUpdateError(err error) error {
	if errors.Is(err, domain.ErrInvalidTransition) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrOrderNotFound
		}
		if repoErr.IsConflict() {
			return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
}

func (s *orderService) publish(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{
			"orderId": event.OrderID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}
}
