package domain

import (
	"errors"
	"fmt"
	"time"
)

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	// OrderStatusPending indicates the order exists but payment has not completed.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates payment succeeded and inventory is committed.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order left the warehouse.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled by a user or the system.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusAbandoned indicates a pending order timed out without payment. Terminal.
	OrderStatusAbandoned OrderStatus = "abandoned"
	// OrderStatusRefunded indicates the captured amount was returned. Terminal.
	OrderStatusRefunded OrderStatus = "refunded"
)

// ErrInvalidTransition is returned when a requested status change is not in
// the transition table. The order is left untouched in that case.
var ErrInvalidTransition = errors.New("order: invalid status transition")

// statusTransitions lists the legal successors for every status. Statuses
// missing from the map are terminal.
var statusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled, OrderStatusAbandoned},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCancelled:  {OrderStatusRefunded},
}

// CanTransition reports whether from → to is a legal status change.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Statuses returns every known order status. Useful for validation layers.
func Statuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusConfirmed,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
		OrderStatusAbandoned,
		OrderStatusRefunded,
	}
}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (OrderStatus, error) {
	for _, s := range Statuses() {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("order: unknown status %q", raw)
}

// ApplyTransition moves the order to target, appending exactly one history
// entry and stamping the matching side timestamp. The legality check happens
// before any field is written, so a rejected transition leaves the aggregate
// unchanged.
func (o *Order) ApplyTransition(target OrderStatus, reason, actor string, now time.Time) error {
	if !CanTransition(o.Status, target) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, o.Status, target)
	}

	now = now.UTC()
	if actor == "" {
		actor = "system"
	}

	o.Status = target
	o.UpdatedAt = now
	o.StatusHistory = append(o.StatusHistory, StatusChange{
		Status:    target,
		ChangedAt: now,
		Reason:    reason,
		ChangedBy: actor,
	})

	switch target {
	case OrderStatusDelivered:
		o.DeliveredAt = &now
	case OrderStatusCancelled:
		o.CancelledAt = &now
		o.CancelReason = reason
	}

	return nil
}
