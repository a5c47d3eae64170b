package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/clearbay/orders/internal/domain"
)

func staleOrder(id string, age time.Duration, at time.Time) domain.Order {
	return domain.Order{
		ID:          id,
		OrderNumber: "ORD-" + id,
		UserID:      "user-1",
		Status:      domain.OrderStatusPending,
		Payment:     domain.Payment{Status: domain.PaymentStatusPending},
		Items:       []domain.OrderItem{{ProductID: "p1", Quantity: 1}},
		CreatedAt:   at.Add(-age),
	}
}

func newReconcilerFixture(t *testing.T, now time.Time) (*Reconciler, *stubOrderRepository, *stubInventory, *stubPublisher) {
	t.Helper()
	orders := &stubOrderRepository{}
	inventory := &stubInventory{}
	publisher := &stubPublisher{}
	r, err := NewReconciler(ReconcilerDeps{
		Orders:         orders,
		Inventory:      inventory,
		Events:         publisher,
		OrderTimeout:   30 * time.Minute,
		ReminderWindow: 24 * time.Hour,
		Clock:          func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewReconciler returned error: %v", err)
	}
	return r, orders, inventory, publisher
}

func TestSweepAbandonsStalePendingOrders(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, orders, inventory, publisher := newReconcilerFixture(t, now)

	orders.findPendingOlderThanFn = func(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
		want := now.Add(-30 * time.Minute)
		if !cutoff.Equal(want) {
			t.Fatalf("cutoff = %v, want %v", cutoff, want)
		}
		return []domain.Order{staleOrder("o1", time.Hour, now)}, nil
	}
	orders.updateStatusFn = func(ctx context.Context, orderID string, target domain.OrderStatus, reason, actor string) (domain.Order, error) {
		if target != domain.OrderStatusAbandoned {
			t.Fatalf("target = %s, want abandoned", target)
		}
		o := staleOrder(orderID, time.Hour, now)
		o.Status = domain.OrderStatusAbandoned
		return o, nil
	}

	result, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if result.Abandoned != 1 || result.Skipped != 0 {
		t.Fatalf("result = %+v, want one abandoned", result)
	}
	if len(inventory.released) != 1 || inventory.released[0] != "o1" {
		t.Fatalf("released = %v, want [o1]", inventory.released)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("events = %+v, want abandoned followed by reminder", publisher.events)
	}
	if publisher.events[0].Type != EventOrderAbandoned {
		t.Fatalf("first event = %s, want %s", publisher.events[0].Type, EventOrderAbandoned)
	}
	if publisher.events[1].Type != EventOrderAbandonedReminder {
		t.Fatalf("second event = %s, want %s", publisher.events[1].Type, EventOrderAbandonedReminder)
	}
}

func TestSweepSkipsPaidOrders(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, orders, inventory, _ := newReconcilerFixture(t, now)

	orders.findPendingOlderThanFn = func(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
		o := staleOrder("paid", time.Hour, now)
		o.Payment.Status = domain.PaymentStatusCompleted
		return []domain.Order{o}, nil
	}

	result, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if result.Abandoned != 0 || result.Skipped != 1 {
		t.Fatalf("result = %+v, want one skipped", result)
	}
	if len(inventory.released) != 0 {
		t.Fatalf("released = %v, want none", inventory.released)
	}
}

func TestSweepLosingTheRaceIsANoOp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, orders, inventory, publisher := newReconcilerFixture(t, now)

	orders.findPendingOlderThanFn = func(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
		return []domain.Order{staleOrder("o1", time.Hour, now)}, nil
	}
	orders.updateStatusFn = func(ctx context.Context, orderID string, target domain.OrderStatus, reason, actor string) (domain.Order, error) {
		// A concurrent confirmation won; the transition is no longer legal.
		return domain.Order{}, fmt.Errorf("%w: confirmed to abandoned", domain.ErrInvalidTransition)
	}

	result, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if result.Abandoned != 0 || result.Skipped != 1 {
		t.Fatalf("result = %+v, want loser skipped", result)
	}
	if len(inventory.released) != 0 {
		t.Fatalf("released = %v, want none for skipped order", inventory.released)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("events = %+v, want none for skipped order", publisher.events)
	}
}

func TestSweepSuppressesStaleReminders(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, orders, _, publisher := newReconcilerFixture(t, now)

	orders.findPendingOlderThanFn = func(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
		return []domain.Order{staleOrder("ancient", 72*time.Hour, now)}, nil
	}
	orders.updateStatusFn = func(ctx context.Context, orderID string, target domain.OrderStatus, reason, actor string) (domain.Order, error) {
		o := staleOrder(orderID, 72*time.Hour, now)
		o.Status = domain.OrderStatusAbandoned
		return o, nil
	}

	result, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if result.Abandoned != 1 {
		t.Fatalf("result = %+v, want one abandoned", result)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != EventOrderAbandoned {
		t.Fatalf("events = %+v, want only the abandoned event outside the window", publisher.events)
	}
}

func TestSweepDefaultWindowOmitsLateReminder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orders := &stubOrderRepository{}
	publisher := &stubPublisher{}
	r, err := NewReconciler(ReconcilerDeps{
		Orders:    orders,
		Inventory: &stubInventory{},
		Events:    publisher,
		Clock:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewReconciler returned error: %v", err)
	}

	// Default timeout and reminder window are 30 minutes each, so an order
	// created 90 minutes ago is abandoned but gets no reminder.
	orders.findPendingOlderThanFn = func(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
		return []domain.Order{staleOrder("late", 90*time.Minute, now)}, nil
	}
	orders.updateStatusFn = func(ctx context.Context, orderID string, target domain.OrderStatus, reason, actor string) (domain.Order, error) {
		o := staleOrder(orderID, 90*time.Minute, now)
		o.Status = domain.OrderStatusAbandoned
		return o, nil
	}

	result, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if result.Abandoned != 1 {
		t.Fatalf("result = %+v, want one abandoned", result)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != EventOrderAbandoned {
		t.Fatalf("events = %+v, want only the abandoned event", publisher.events)
	}
}

func TestSweepDoesNotOverlap(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, orders, _, _ := newReconcilerFixture(t, now)

	release := make(chan struct{})
	started := make(chan struct{})
	orders.findPendingOlderThanFn = func(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
		close(started)
		<-release
		return nil, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := r.Sweep(context.Background()); err != nil {
			t.Errorf("first Sweep returned error: %v", err)
		}
	}()

	<-started
	if _, err := r.Sweep(context.Background()); !errors.Is(err, ErrSweepInProgress) {
		t.Fatalf("err = %v, want ErrSweepInProgress", err)
	}
	close(release)
	wg.Wait()

	// The guard resets once the first sweep finishes.
	orders.findPendingOlderThanFn = func(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
		return nil, nil
	}
	if _, err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("follow-up Sweep returned error: %v", err)
	}
}

func TestDoubleSweepAbandonsEachOrderOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, orders, _, _ := newReconcilerFixture(t, now)

	abandoned := map[string]int{}
	pending := []domain.Order{staleOrder("o1", time.Hour, now), staleOrder("o2", time.Hour, now)}
	orders.findPendingOlderThanFn = func(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
		return pending, nil
	}
	orders.updateStatusFn = func(ctx context.Context, orderID string, target domain.OrderStatus, reason, actor string) (domain.Order, error) {
		if abandoned[orderID] > 0 {
			return domain.Order{}, fmt.Errorf("%w: abandoned to abandoned", domain.ErrInvalidTransition)
		}
		abandoned[orderID]++
		o := staleOrder(orderID, time.Hour, now)
		o.Status = domain.OrderStatusAbandoned
		return o, nil
	}

	first, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("first Sweep returned error: %v", err)
	}
	// Simulate a stale read on the second pass: the repository still returns
	// both orders, but the state machine rejects the repeat transition.
	second, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second Sweep returned error: %v", err)
	}
	if first.Abandoned != 2 || second.Abandoned != 0 {
		t.Fatalf("abandoned = %d then %d, want 2 then 0", first.Abandoned, second.Abandoned)
	}
	for id, n := range abandoned {
		if n != 1 {
			t.Fatalf("order %s abandoned %d times, want once", id, n)
		}
	}
}
