package repositories

import "fmt"

// OrderErrorCode enumerates repository error causes for order persistence.
type OrderErrorCode string

const (
	// OrderErrorUnknown represents an unspecified failure.
	OrderErrorUnknown OrderErrorCode = "order_unknown"
	// OrderErrorNotFound indicates the order document is missing.
	OrderErrorNotFound OrderErrorCode = "order_not_found"
	// OrderErrorDuplicateNumber indicates the order number is already taken.
	OrderErrorDuplicateNumber OrderErrorCode = "order_duplicate_number"
	// OrderErrorConflict indicates a concurrent modification lost the race.
	OrderErrorConflict OrderErrorCode = "order_conflict"
	// OrderErrorUnavailable indicates the backing store could not be reached.
	OrderErrorUnavailable OrderErrorCode = "order_unavailable"
)

// OrderError wraps order persistence failures with machine readable codes.
// It implements RepositoryError so services can categorise without knowing
// the storage technology.
type OrderError struct {
	Op      string
	Code    OrderErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *OrderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *OrderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the failure is a missing document.
func (e *OrderError) IsNotFound() bool {
	return e != nil && e.Code == OrderErrorNotFound
}

// IsConflict reports whether the failure is a duplicate or a lost race.
func (e *OrderError) IsConflict() bool {
	return e != nil && (e.Code == OrderErrorConflict || e.Code == OrderErrorDuplicateNumber)
}

// IsUnavailable reports whether the backing store was unreachable.
func (e *OrderError) IsUnavailable() bool {
	return e != nil && e.Code == OrderErrorUnavailable
}

// NewOrderError constructs a typed order persistence error.
func NewOrderError(code OrderErrorCode, message string, err error) *OrderError {
	if message == "" {
		message = string(code)
	}
	return &OrderError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
