package firestore

import (
	"errors"
	"testing"
	"time"

	domain "github.com/clearbay/orders/internal/domain"
	"github.com/clearbay/orders/internal/platform/pagination"
)

func TestOrderDocDecodePreservesAggregate(t *testing.T) {
	paid := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	original := domain.NewOrder("o1", "ORD-20260301-AB12CD34EF", "u1", "u1@example.com", paid)
	original.Items = []domain.OrderItem{
		{ProductID: "p1", ProductName: "Widget", UnitPrice: 75, Quantity: 2, Subtotal: 150},
	}
	original.Pricing = domain.Pricing{Subtotal: 150, Tax: 13.13, Total: 163.13}
	original.ShippingAddress = domain.Address{State: "CA", City: "Oakland"}
	original.MarkPaymentCompleted("txn_1", paid)
	if err := original.ApplyTransition(domain.OrderStatusConfirmed, "Payment captured", "system", paid); err != nil {
		t.Fatalf("ApplyTransition returned error: %v", err)
	}
	original.Version = 3

	decoded := decodeOrder("o1", encodeOrder(original))

	if decoded.Status != domain.OrderStatusConfirmed {
		t.Fatalf("status = %s, want confirmed", decoded.Status)
	}
	if decoded.Payment.TransactionID != "txn_1" || decoded.Payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("payment = %+v, want completed txn_1", decoded.Payment)
	}
	if len(decoded.StatusHistory) != 2 {
		t.Fatalf("history length = %d, want 2", len(decoded.StatusHistory))
	}
	if decoded.Pricing.Total != 163.13 {
		t.Fatalf("total = %v, want 163.13", decoded.Pricing.Total)
	}
	if decoded.Version != 3 {
		t.Fatalf("version = %d, want 3", decoded.Version)
	}
}

func TestOrderCursorRoundTrip(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	token, err := pagination.EncodeToken(encodeOrderCursor(createdAt, "o9"))
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	decoded, err := decodeOrderCursor(cursor)
	if err != nil {
		t.Fatalf("decodeOrderCursor returned error: %v", err)
	}
	if decoded == nil {
		t.Fatalf("decoded cursor is nil")
	}
	if !decoded.createdAt.Equal(createdAt) || decoded.id != "o9" {
		t.Fatalf("cursor = %+v, want createdAt %v id o9", decoded, createdAt)
	}
}

func TestDecodeOrderCursorRejectsMalformedPayload(t *testing.T) {
	_, err := decodeOrderCursor(pagination.Cursor{StartAfter: []any{42, "o1"}})
	if !errors.Is(err, pagination.ErrInvalidPageToken) {
		t.Fatalf("err = %v, want ErrInvalidPageToken", err)
	}
	if got, err := decodeOrderCursor(pagination.Cursor{}); err != nil || got != nil {
		t.Fatalf("empty cursor = (%v, %v), want (nil, nil)", got, err)
	}
}
