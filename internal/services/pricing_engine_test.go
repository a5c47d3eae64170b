package services

import (
	"testing"

	domain "github.com/clearbay/orders/internal/domain"
)

func mustPricingEngine(t *testing.T) *PricingEngine {
	t.Helper()
	engine, err := NewPricingEngine(PricingConfig{})
	if err != nil {
		t.Fatalf("NewPricingEngine returned error: %v", err)
	}
	return engine
}

func TestPricingEngineCaliforniaFreeShipping(t *testing.T) {
	engine := mustPricingEngine(t)

	items := []domain.OrderItem{
		{ProductID: "p1", UnitPrice: 75, Quantity: 2, Subtotal: 150},
	}
	pricing := engine.Price(items, domain.Address{State: "CA"}, 0)

	if pricing.Subtotal != 150 {
		t.Fatalf("subtotal = %v, want 150", pricing.Subtotal)
	}
	if pricing.Tax != 13.13 {
		t.Fatalf("tax = %v, want 13.13", pricing.Tax)
	}
	if pricing.Shipping != 0 {
		t.Fatalf("shipping = %v, want 0 at free-shipping threshold", pricing.Shipping)
	}
	if pricing.Total != 163.13 {
		t.Fatalf("total = %v, want 163.13", pricing.Total)
	}
}

func TestPricingEngineStandardShippingOutsideExpressZones(t *testing.T) {
	engine := mustPricingEngine(t)

	items := []domain.OrderItem{
		{ProductID: "p1", UnitPrice: 25, Quantity: 2, Subtotal: 50},
	}
	pricing := engine.Price(items, domain.Address{State: "FL"}, 0)

	if pricing.Tax != 3.00 {
		t.Fatalf("tax = %v, want 3.00", pricing.Tax)
	}
	if pricing.Shipping != 10.00 {
		t.Fatalf("shipping = %v, want 10.00", pricing.Shipping)
	}
	if pricing.Total != 63.00 {
		t.Fatalf("total = %v, want 63.00", pricing.Total)
	}
}

func TestPricingEngineExpressZoneBelowThreshold(t *testing.T) {
	engine := mustPricingEngine(t)

	items := []domain.OrderItem{
		{ProductID: "p1", UnitPrice: 40, Quantity: 1, Subtotal: 40},
	}
	pricing := engine.Price(items, domain.Address{State: "ny"}, 0)

	if pricing.Shipping != 5.99 {
		t.Fatalf("shipping = %v, want express rate 5.99", pricing.Shipping)
	}
	if pricing.Tax != 3.20 {
		t.Fatalf("tax = %v, want 3.20", pricing.Tax)
	}
}

func TestPricingEngineUnknownStateUsesDefaultRate(t *testing.T) {
	engine := mustPricingEngine(t)

	items := []domain.OrderItem{
		{ProductID: "p1", UnitPrice: 100, Quantity: 1, Subtotal: 100},
	}
	pricing := engine.Price(items, domain.Address{State: "WA"}, 0)

	if pricing.Tax != 8.00 {
		t.Fatalf("tax = %v, want default 8%%", pricing.Tax)
	}
	if pricing.Shipping != 0 {
		t.Fatalf("shipping = %v, want 0 at threshold", pricing.Shipping)
	}
}

func TestPricingEngineDiscountSubtracts(t *testing.T) {
	engine := mustPricingEngine(t)

	items := []domain.OrderItem{
		{ProductID: "p1", UnitPrice: 50, Quantity: 1, Subtotal: 50},
	}
	pricing := engine.Price(items, domain.Address{State: "TX"}, 5)

	// 50 + 3.13 tax + 5.99 express - 5 = 54.12
	if pricing.Tax != 3.13 {
		t.Fatalf("tax = %v, want 3.13", pricing.Tax)
	}
	if pricing.Total != 54.12 {
		t.Fatalf("total = %v, want 54.12", pricing.Total)
	}
}

func TestPricingEngineTotalIdentity(t *testing.T) {
	engine := mustPricingEngine(t)

	cases := []struct {
		state    string
		items    []domain.OrderItem
		discount float64
	}{
		{"CA", []domain.OrderItem{{UnitPrice: 19.99, Quantity: 3, Subtotal: 59.97}}, 0},
		{"NY", []domain.OrderItem{{UnitPrice: 7.49, Quantity: 2, Subtotal: 14.98}, {UnitPrice: 120, Quantity: 1, Subtotal: 120}}, 10},
		{"", []domain.OrderItem{{UnitPrice: 0.99, Quantity: 5, Subtotal: 4.95}}, 0},
	}
	for _, tc := range cases {
		p := engine.Price(tc.items, domain.Address{State: tc.state}, tc.discount)
		want := domain.RoundCents(p.Subtotal + p.Tax + p.Shipping - p.Discount)
		if p.Total != want {
			t.Fatalf("state %q: total = %v, want components sum %v", tc.state, p.Total, want)
		}
	}
}

func TestNewPricingEngineRejectsNegativeRates(t *testing.T) {
	if _, err := NewPricingEngine(PricingConfig{DefaultTaxRate: -0.01}); err == nil {
		t.Fatalf("expected error for negative default tax rate")
	}
}
