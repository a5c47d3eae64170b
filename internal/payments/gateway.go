package payments

import (
	"context"
	"errors"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the charge is awaiting PSP confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the PSP reports the charge as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the PSP reports a failure or decline.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the captured amount has been returned.
	StatusRefunded Status = "refunded"
)

// ErrGatewayUnavailable is returned when the PSP could not be reached or
// returned a non-decline failure. Declines are not errors: they come back as
// an unsuccessful CaptureResult so callers can distinguish "the customer's
// card said no" from "the gateway is down".
var ErrGatewayUnavailable = errors.New("payments: gateway unavailable")

// CaptureRequest describes a charge for an order total.
type CaptureRequest struct {
	OrderID     string
	OrderNumber string
	// Amount is the order total in major units, already rounded to cents.
	Amount   float64
	Currency string
	// Method is the tokenised payment method reference supplied by the client.
	Method         string
	IdempotencyKey string
	Metadata       map[string]string
}

// CaptureResult is the normalised outcome of a capture attempt.
type CaptureResult struct {
	Success       bool
	TransactionID string
	DeclineReason string
}

// RefundRequest describes a full refund of a previously captured charge.
type RefundRequest struct {
	OrderID        string
	TransactionID  string
	Amount         float64
	Currency       string
	Reason         string
	IdempotencyKey string
}

// RefundResult is the normalised outcome of a refund attempt.
type RefundResult struct {
	Success  bool
	RefundID string
}

// Gateway is the payment provider contract consumed by the order saga.
type Gateway interface {
	Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// MinorUnits converts a major-unit amount to the PSP's integer minor units.
func MinorUnits(amount float64) int64 {
	if amount < 0 {
		return 0
	}
	return int64(amount*100 + 0.5)
}
