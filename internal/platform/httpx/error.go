package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/clearbay/orders/internal/platform/requestctx"
)

// Error is the JSON error envelope every endpoint returns. Clients switch on
// the code (stable machine-readable identifier such as ORDER_NOT_FOUND or
// rate_limited); the message is for humans.
type Error struct {
	Code    string
	Message string
	Status  int
}

// NewError builds an envelope for the given code, message, and HTTP status.
// A zero status is treated as an internal error.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    flatten(code, 80),
		Message: flatten(message, 512),
		Status:  status,
	}
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// WriteError renders the envelope as JSON, filling request and trace
// identifiers from ctx so failures can be matched against the request log.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body := errorBody{
		Error:     err.Code,
		Message:   err.Message,
		Status:    status,
		RequestID: flatten(middleware.GetReqID(ctx), 80),
		TraceID:   flatten(requestctx.TraceID(ctx), 64),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// flatten folds newlines into spaces and caps length so a value echoed from
// the request cannot split a log line or bloat the response.
func flatten(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
