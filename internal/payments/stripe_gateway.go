package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe gateway operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time
	// Clients overrides the real Stripe clients in tests.
	Clients *stripeClients
}

// StripeGateway implements Gateway using Stripe PaymentIntents and Refunds.
type StripeGateway struct {
	api    stripeClients
	clock  func() time.Time
	logger StripeLogger
}

// NewStripeGateway constructs a Stripe-backed payment gateway.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents: sc.PaymentIntents,
			refunds: sc.Refunds,
		}
	}
	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeGateway{
		api: clients,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Capture creates and confirms a PaymentIntent for the order total. Card
// declines are reported through the result, not the error.
func (g *StripeGateway) Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	if g == nil {
		return CaptureResult{}, errors.New("stripe: gateway is nil")
	}
	if req.Amount <= 0 {
		return CaptureResult{}, fmt.Errorf("stripe: capture amount must be positive, got %.2f", req.Amount)
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(MinorUnits(req.Amount)),
		Currency: stripe.String(currency),
		Confirm:  stripe.Bool(true),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if method := strings.TrimSpace(req.Method); method != "" {
		params.PaymentMethod = stripe.String(method)
	}
	if req.OrderNumber != "" {
		params.Description = stripe.String("Order " + req.OrderNumber)
	}

	params.Metadata = make(map[string]string, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}
	if req.OrderID != "" {
		params.Metadata["orderId"] = req.OrderID
	}
	if req.OrderNumber != "" {
		params.Metadata["orderNumber"] = req.OrderNumber
	}

	intent, err := g.api.intents.New(params)
	if err != nil {
		if declined, reason := stripeDecline(err); declined {
			g.logger(ctx, "payments.stripe.capture.declined", map[string]any{
				"orderId": req.OrderID,
				"reason":  reason,
			})
			return CaptureResult{Success: false, DeclineReason: reason}, nil
		}
		g.logger(ctx, "payments.stripe.capture.failed", map[string]any{
			"orderId": req.OrderID,
			"error":   err.Error(),
		})
		return CaptureResult{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return CaptureResult{
			Success:       false,
			TransactionID: intent.ID,
			DeclineReason: string(intent.Status),
		}, nil
	}

	g.logger(ctx, "payments.stripe.capture.succeeded", map[string]any{
		"orderId":       req.OrderID,
		"paymentIntent": intent.ID,
	})

	return CaptureResult{Success: true, TransactionID: intent.ID}, nil
}

// Refund returns the full captured amount for a prior capture.
func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if g == nil {
		return RefundResult{}, errors.New("stripe: gateway is nil")
	}
	if strings.TrimSpace(req.TransactionID) == "" {
		return RefundResult{}, errors.New("stripe: refund requires a transaction id")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.TransactionID),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.Amount > 0 {
		params.Amount = stripe.Int64(MinorUnits(req.Amount))
	}
	if reason := normaliseRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}

	refund, err := g.api.refunds.New(params)
	if err != nil {
		g.logger(ctx, "payments.stripe.refund.failed", map[string]any{
			"orderId":       req.OrderID,
			"paymentIntent": req.TransactionID,
			"error":         err.Error(),
		})
		return RefundResult{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	g.logger(ctx, "payments.stripe.refund.succeeded", map[string]any{
		"orderId": req.OrderID,
		"refund":  refund.ID,
	})

	return RefundResult{Success: true, RefundID: refund.ID}, nil
}

// stripeDecline distinguishes card declines from transport level failures.
func stripeDecline(err error) (bool, string) {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false, ""
	}
	if stripeErr.Type != stripe.ErrorTypeCard {
		return false, ""
	}
	reason := string(stripeErr.DeclineCode)
	if reason == "" {
		reason = string(stripeErr.Code)
	}
	if reason == "" {
		reason = "card_declined"
	}
	return true, reason
}

func normaliseRefundReason(reason string) string {
	switch strings.TrimSpace(strings.ToLower(reason)) {
	case "duplicate":
		return string(stripe.RefundReasonDuplicate)
	case "fraudulent":
		return string(stripe.RefundReasonFraudulent)
	case "":
		return ""
	default:
		return string(stripe.RefundReasonRequestedByCustomer)
	}
}
