package services

import (
	"errors"

	domain "github.com/clearbay/orders/internal/domain"
)

// Typed failures surfaced by the order flow. Each maps to a stable code via
// FailureCode; callers receive the code and message, never retry hints.
var (
	// ErrUserInvalid indicates the ordering user does not exist or is inactive.
	ErrUserInvalid = errors.New("order: user invalid")
	// ErrItemInvalid indicates a line item failed catalog validation.
	ErrItemInvalid = errors.New("order: item invalid")
	// ErrInsufficientStock indicates requested quantities exceed availability.
	ErrInsufficientStock = errors.New("order: insufficient stock")
	// ErrReservationFailed indicates the inventory hold could not be taken.
	ErrReservationFailed = errors.New("order: reservation failed")
	// ErrPersistenceFailed indicates the order document could not be stored.
	ErrPersistenceFailed = errors.New("order: persistence failed")
	// ErrPaymentFailed indicates the gateway declined or errored during capture.
	ErrPaymentFailed = errors.New("order: payment failed")
	// ErrConcurrentModification indicates a conditional update lost a race.
	ErrConcurrentModification = errors.New("order: concurrent modification")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrSweepInProgress indicates a reconciliation sweep is already running.
	ErrSweepInProgress = errors.New("order: sweep already in progress")
	// ErrUnauthorized indicates the caller does not own the order.
	ErrUnauthorized = errors.New("order: unauthorized")
)

// Stable failure codes shared with transport layers and clients.
const (
	CodeUserInvalid            = "USER_INVALID"
	CodeItemInvalid            = "ITEM_INVALID"
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeReservationFailed      = "RESERVATION_FAILED"
	CodePersistenceFailed      = "PERSISTENCE_FAILED"
	CodePaymentFailed          = "PAYMENT_FAILED"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeOrderNotFound          = "ORDER_NOT_FOUND"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeInternal               = "INTERNAL"
)

// FailureCode maps any error chain produced by the order flow to its stable
// code. Unknown errors map to INTERNAL.
func FailureCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUserInvalid):
		return CodeUserInvalid
	case errors.Is(err, ErrItemInvalid):
		return CodeItemInvalid
	case errors.Is(err, ErrInsufficientStock):
		return CodeInsufficientStock
	case errors.Is(err, ErrReservationFailed):
		return CodeReservationFailed
	case errors.Is(err, ErrPersistenceFailed):
		return CodePersistenceFailed
	case errors.Is(err, ErrPaymentFailed):
		return CodePaymentFailed
	case errors.Is(err, domain.ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrConcurrentModification):
		return CodeConcurrentModification
	case errors.Is(err, ErrOrderNotFound):
		return CodeOrderNotFound
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	default:
		return CodeInternal
	}
}
