package services

import (
	"errors"
	"strings"

	domain "github.com/clearbay/orders/internal/domain"
)

// PricingConfig carries the rate tables the engine evaluates. Zero values are
// filled from DefaultPricingConfig by NewPricingEngine.
type PricingConfig struct {
	// TaxRates maps an upper-case state code to its tax rate.
	TaxRates map[string]float64
	// DefaultTaxRate applies when the state has no entry in TaxRates.
	DefaultTaxRate float64
	// FreeShippingThreshold is the subtotal at or above which shipping is free.
	FreeShippingThreshold float64
	// StandardShippingRate applies outside the express zones.
	StandardShippingRate float64
	// ExpressShippingRate applies inside ExpressZones.
	ExpressShippingRate float64
	// ExpressZones lists upper-case state codes eligible for the express rate.
	ExpressZones []string
}

// DefaultPricingConfig returns the built-in rate tables.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		TaxRates: map[string]float64{
			"CA": 0.0875,
			"NY": 0.08,
			"TX": 0.0625,
			"FL": 0.06,
		},
		DefaultTaxRate:        0.08,
		FreeShippingThreshold: 100,
		StandardShippingRate:  10.00,
		ExpressShippingRate:   5.99,
		ExpressZones:          []string{"CA", "NY", "TX"},
	}
}

// PricingEngine computes order totals from line items and a destination.
type PricingEngine struct {
	cfg          PricingConfig
	expressZones map[string]struct{}
}

// NewPricingEngine validates the configuration and builds an engine.
func NewPricingEngine(cfg PricingConfig) (*PricingEngine, error) {
	defaults := DefaultPricingConfig()
	if cfg.TaxRates == nil {
		cfg.TaxRates = defaults.TaxRates
	}
	if cfg.DefaultTaxRate == 0 {
		cfg.DefaultTaxRate = defaults.DefaultTaxRate
	}
	if cfg.FreeShippingThreshold == 0 {
		cfg.FreeShippingThreshold = defaults.FreeShippingThreshold
	}
	if cfg.StandardShippingRate == 0 {
		cfg.StandardShippingRate = defaults.StandardShippingRate
	}
	if cfg.ExpressShippingRate == 0 {
		cfg.ExpressShippingRate = defaults.ExpressShippingRate
	}
	if cfg.ExpressZones == nil {
		cfg.ExpressZones = defaults.ExpressZones
	}
	if cfg.DefaultTaxRate < 0 || cfg.StandardShippingRate < 0 || cfg.ExpressShippingRate < 0 {
		return nil, errors.New("services: pricing rates must not be negative")
	}
	zones := make(map[string]struct{}, len(cfg.ExpressZones))
	for _, zone := range cfg.ExpressZones {
		zones[strings.ToUpper(strings.TrimSpace(zone))] = struct{}{}
	}
	return &PricingEngine{cfg: cfg, expressZones: zones}, nil
}

// TaxRate returns the rate applied for the given state code.
func (e *PricingEngine) TaxRate(state string) float64 {
	if rate, ok := e.cfg.TaxRates[normaliseState(state)]; ok {
		return rate
	}
	return e.cfg.DefaultTaxRate
}

// Price computes the full pricing breakdown for the given items shipped to
// the given address. Each component is rounded to cents independently and the
// total is the rounded sum of the rounded components.
func (e *PricingEngine) Price(items []domain.OrderItem, destination domain.Address, discount float64) domain.Pricing {
	subtotal := 0.0
	for _, item := range items {
		subtotal += item.Subtotal
	}
	subtotal = domain.RoundCents(subtotal)

	tax := domain.RoundCents(subtotal * e.TaxRate(destination.State))
	shipping := e.shippingFor(subtotal, destination)
	if discount < 0 {
		discount = 0
	}
	discount = domain.RoundCents(discount)

	return domain.Pricing{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Discount: discount,
		Total:    domain.RoundCents(subtotal + tax + shipping - discount),
	}
}

func (e *PricingEngine) shippingFor(subtotal float64, destination domain.Address) float64 {
	if subtotal >= e.cfg.FreeShippingThreshold {
		return 0
	}
	if _, ok := e.expressZones[normaliseState(destination.State)]; ok {
		return domain.RoundCents(e.cfg.ExpressShippingRate)
	}
	return domain.RoundCents(e.cfg.StandardShippingRate)
}

func normaliseState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}
