package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/clearbay/orders/internal/domain"
	platformfs "github.com/clearbay/orders/internal/platform/firestore"
)

const (
	stockCollection        = "inventory"
	reservationsCollection = "reservations"
)

const (
	reservationStateHeld      = "held"
	reservationStateReleased  = "released"
	reservationStateCommitted = "committed"
)

// ErrStockExhausted is returned when a reservation cannot be satisfied.
var ErrStockExhausted = errors.New("inventory: insufficient stock")

type stockDoc struct {
	Available int       `firestore:"available"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type reservationItemDoc struct {
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"quantity"`
}

type reservationDoc struct {
	State     string               `firestore:"state"`
	Items     []reservationItemDoc `firestore:"items"`
	CreatedAt time.Time            `firestore:"createdAt"`
	UpdatedAt time.Time            `firestore:"updatedAt"`
}

// InventoryGateway manages stock holds in Firestore. Each hold is a
// reservation document keyed by the order reference; the document's state
// makes Release and Finalize idempotent.
type InventoryGateway struct {
	provider *platformfs.Provider
	clock    func() time.Time
}

// NewInventoryGateway binds the gateway to the provider's client.
func NewInventoryGateway(provider *platformfs.Provider) (*InventoryGateway, error) {
	if provider == nil {
		return nil, errors.New("firestore: provider is required")
	}
	return &InventoryGateway{provider: provider, clock: time.Now}, nil
}

// CheckAvailability reads current stock for every line item. This is a
// pre-flight hint only; the authoritative check happens inside Reserve.
func (g *InventoryGateway) CheckAvailability(ctx context.Context, items []domain.OrderItem) (bool, error) {
	client, err := g.provider.Client(ctx)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		snap, err := client.Collection(stockCollection).Doc(item.ProductID).Get(ctx)
		if err != nil {
			wrapped := platformfs.WrapError("inventory.get", err)
			var repoErr *platformfs.Error
			if errors.As(wrapped, &repoErr) && repoErr.IsNotFound() {
				return false, nil
			}
			return false, wrapped
		}
		var stock stockDoc
		if err := snap.DataTo(&stock); err != nil {
			return false, fmt.Errorf("inventory: decode stock %s: %w", item.ProductID, err)
		}
		if stock.Available < item.Quantity {
			return false, nil
		}
	}
	return true, nil
}

// Reserve decrements stock for every item and records a held reservation,
// all in one transaction. Either every line is held or none is.
func (g *InventoryGateway) Reserve(ctx context.Context, orderRef string, items []domain.OrderItem) error {
	client, err := g.provider.Client(ctx)
	if err != nil {
		return err
	}
	now := g.clock().UTC()
	return platformfs.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		stocks := make([]stockDoc, len(items))
		for i, item := range items {
			snap, err := tx.Get(client.Collection(stockCollection).Doc(item.ProductID))
			if err != nil {
				return err
			}
			if err := snap.DataTo(&stocks[i]); err != nil {
				return fmt.Errorf("inventory: decode stock %s: %w", item.ProductID, err)
			}
			if stocks[i].Available < item.Quantity {
				return fmt.Errorf("%w: product %s has %d, need %d",
					ErrStockExhausted, item.ProductID, stocks[i].Available, item.Quantity)
			}
		}
		for i, item := range items {
			ref := client.Collection(stockCollection).Doc(item.ProductID)
			if err := tx.Set(ref, stockDoc{
				Available: stocks[i].Available - item.Quantity,
				UpdatedAt: now,
			}); err != nil {
				return err
			}
		}
		reservation := reservationDoc{
			State:     reservationStateHeld,
			Items:     reservationItems(items),
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.Create(client.Collection(reservationsCollection).Doc(orderRef), reservation)
	})
}

// Release returns held stock to the pool. Calling it for an unknown or
// already settled reservation is a no-op, so compensation paths and the
// abandonment sweep can both call it safely.
func (g *InventoryGateway) Release(ctx context.Context, orderRef string, items []domain.OrderItem) error {
	return g.settle(ctx, orderRef, reservationStateReleased)
}

// Finalize commits a held reservation after payment. Stock stays decremented;
// only the reservation state flips.
func (g *InventoryGateway) Finalize(ctx context.Context, orderRef string, items []domain.OrderItem) error {
	return g.settle(ctx, orderRef, reservationStateCommitted)
}

// settlePlan is the outcome of planSettle: whether the reservation document
// changes state at all, and whether its quantities go back into stock.
type settlePlan struct {
	apply   bool
	restock bool
}

// planSettle decides what settling a reservation into targetState does given
// the state found in Firestore. Only a held reservation transitions; a
// missing or already settled one yields no writes, which is what makes a
// double release, or a release racing a finalize, safe to issue.
func planSettle(currentState string, found bool, targetState string) settlePlan {
	if !found || currentState != reservationStateHeld {
		return settlePlan{}
	}
	return settlePlan{
		apply:   true,
		restock: targetState == reservationStateReleased,
	}
}

func (g *InventoryGateway) settle(ctx context.Context, orderRef, targetState string) error {
	client, err := g.provider.Client(ctx)
	if err != nil {
		return err
	}
	now := g.clock().UTC()
	return platformfs.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := client.Collection(reservationsCollection).Doc(orderRef)
		found := true
		var reservation reservationDoc
		snap, err := tx.Get(ref)
		if err != nil {
			wrapped := platformfs.WrapError("reservations.get", err)
			var repoErr *platformfs.Error
			if !errors.As(wrapped, &repoErr) || !repoErr.IsNotFound() {
				return wrapped
			}
			found = false
		} else if err := snap.DataTo(&reservation); err != nil {
			return fmt.Errorf("inventory: decode reservation %s: %w", orderRef, err)
		}

		plan := planSettle(reservation.State, found, targetState)
		if !plan.apply {
			return nil
		}

		// All transaction reads must happen before the first write.
		if plan.restock {
			stocks := make([]stockDoc, len(reservation.Items))
			for i, item := range reservation.Items {
				stockSnap, err := tx.Get(client.Collection(stockCollection).Doc(item.ProductID))
				if err != nil {
					return err
				}
				if err := stockSnap.DataTo(&stocks[i]); err != nil {
					return fmt.Errorf("inventory: decode stock %s: %w", item.ProductID, err)
				}
			}
			for i, item := range reservation.Items {
				stockRef := client.Collection(stockCollection).Doc(item.ProductID)
				if err := tx.Set(stockRef, stockDoc{
					Available: stocks[i].Available + item.Quantity,
					UpdatedAt: now,
				}); err != nil {
					return err
				}
			}
		}

		reservation.State = targetState
		reservation.UpdatedAt = now
		return tx.Set(ref, reservation)
	})
}

func reservationItems(items []domain.OrderItem) []reservationItemDoc {
	out := make([]reservationItemDoc, 0, len(items))
	for _, item := range items {
		out = append(out, reservationItemDoc{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}
