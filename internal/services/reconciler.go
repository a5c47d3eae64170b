package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	domain "github.com/clearbay/orders/internal/domain"
	"github.com/clearbay/orders/internal/repositories"
)

// ReconcilerDeps bundles collaborators for the abandoned order reconciler.
type ReconcilerDeps struct {
	Orders    repositories.OrderRepository
	Inventory InventoryGateway
	Events    OrderEventPublisher

	// OrderTimeout is how long a pending, unpaid order may sit before it is
	// considered abandoned.
	OrderTimeout time.Duration
	// ReminderWindow bounds how recently an order must have been abandoned
	// for a reminder event to still be worth sending.
	ReminderWindow time.Duration

	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// Reconciler sweeps stale pending orders into the ABANDONED state, releasing
// whatever inventory they still hold. Sweeps never overlap; a tick that fires
// while a sweep is running is skipped.
type Reconciler struct {
	orders    repositories.OrderRepository
	inventory InventoryGateway
	events    OrderEventPublisher

	orderTimeout   time.Duration
	reminderWindow time.Duration

	clock  func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)

	running atomic.Bool
}

// NewReconciler validates the dependencies and builds a reconciler.
func NewReconciler(deps ReconcilerDeps) (*Reconciler, error) {
	if deps.Orders == nil {
		return nil, errors.New("services: order repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("services: inventory gateway is required")
	}
	r := &Reconciler{
		orders:         deps.Orders,
		inventory:      deps.Inventory,
		events:         deps.Events,
		orderTimeout:   deps.OrderTimeout,
		reminderWindow: deps.ReminderWindow,
		clock:          deps.Clock,
		logger:         deps.Logger,
	}
	if r.orderTimeout <= 0 {
		r.orderTimeout = 30 * time.Minute
	}
	if r.reminderWindow <= 0 {
		r.reminderWindow = 30 * time.Minute
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.logger == nil {
		r.logger = func(context.Context, string, map[string]any) {}
	}
	return r, nil
}

// SweepResult reports what a single sweep did.
type SweepResult struct {
	Scanned   int
	Abandoned int
	Skipped   int
}

// Sweep abandons every pending order older than the timeout whose payment is
// still incomplete. Orders that changed state since they were fetched lose
// the race and are skipped. Returns ErrSweepInProgress if a sweep is already
// running.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return SweepResult{}, ErrSweepInProgress
	}
	defer r.running.Store(false)

	now := r.clock().UTC()
	cutoff := now.Add(-r.orderTimeout)

	stale, err := r.orders.FindPendingOlderThan(ctx, cutoff)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Scanned: len(stale)}
	for _, order := range stale {
		if order.Payment.Status == domain.PaymentStatusCompleted {
			result.Skipped++
			continue
		}
		updated, err := r.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusAbandoned, "Abandoned after checkout timeout", SystemActor.ID)
		if err != nil {
			// A concurrent confirmation or cancellation got there first.
			if errors.Is(err, domain.ErrInvalidTransition) || isConflict(err) {
				result.Skipped++
				continue
			}
			r.logger(ctx, "reconciler.abandon_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
			result.Skipped++
			continue
		}
		result.Abandoned++

		if err := r.inventory.Release(ctx, updated.ID, updated.Items); err != nil {
			r.logger(ctx, "reconciler.release_failed", map[string]any{
				"orderId": updated.ID,
				"error":   err.Error(),
			})
		}

		if r.events != nil {
			event := OrderEvent{
				Type:           EventOrderAbandoned,
				OrderID:        updated.ID,
				OrderNumber:    updated.OrderNumber,
				UserID:         updated.UserID,
				UserEmail:      updated.UserEmail,
				PreviousStatus: domain.OrderStatusPending,
				CurrentStatus:  domain.OrderStatusAbandoned,
				Total:          updated.Pricing.Total,
				OccurredAt:     now,
			}
			if err := r.events.PublishOrderEvent(ctx, event); err != nil {
				r.logger(ctx, "reconciler.publish_failed", map[string]any{
					"orderId": updated.ID,
					"error":   err.Error(),
				})
			}

			// A reminder is only worth sending for freshly abandoned carts;
			// anything swept long after the timeout gets no nudge.
			if now.Sub(order.CreatedAt) <= r.orderTimeout+r.reminderWindow {
				reminder := event
				reminder.Type = EventOrderAbandonedReminder
				if err := r.events.PublishOrderEvent(ctx, reminder); err != nil {
					r.logger(ctx, "reconciler.reminder_failed", map[string]any{
						"orderId": updated.ID,
						"error":   err.Error(),
					})
				}
			}
		}
	}

	r.logger(ctx, "reconciler.sweep", map[string]any{
		"scanned":   result.Scanned,
		"abandoned": result.Abandoned,
		"skipped":   result.Skipped,
	})
	return result, nil
}

// Run sweeps on the given interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
				r.logger(ctx, "reconciler.sweep_failed", map[string]any{
					"error": err.Error(),
				})
			}
		}
	}
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
