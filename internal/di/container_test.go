package di

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/clearbay/orders/internal/platform/requestctx"
)

func TestZapEventLoggerPrefersRequestLogger(t *testing.T) {
	requestCore, requestLogs := observer.New(zap.InfoLevel)
	fallbackCore, fallbackLogs := observer.New(zap.InfoLevel)

	eventLogger := zapEventLogger(zap.New(fallbackCore))
	ctx := requestctx.WithLogger(context.Background(), zap.New(requestCore).With(zap.String("request_id", "req-1")))

	eventLogger(ctx, "order.saga.abort", map[string]any{"orderId": "ord-1"})

	if fallbackLogs.Len() != 0 {
		t.Fatalf("fallback logger got %d entries, want none when ctx carries a logger", fallbackLogs.Len())
	}
	entries := requestLogs.All()
	if len(entries) != 1 {
		t.Fatalf("request logger got %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Message != "order.saga.abort" {
		t.Fatalf("message = %q, want order.saga.abort", entry.Message)
	}
	fields := entry.ContextMap()
	if fields["request_id"] != "req-1" {
		t.Fatalf("request_id = %v, want req-1", fields["request_id"])
	}
	if fields["orderId"] != "ord-1" {
		t.Fatalf("orderId = %v, want ord-1", fields["orderId"])
	}
}

func TestZapEventLoggerFallsBackOutsideRequests(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zap.InfoLevel)
	eventLogger := zapEventLogger(zap.New(fallbackCore))

	eventLogger(context.Background(), "reconciler.sweep", map[string]any{"abandoned": 2})

	entries := fallbackLogs.All()
	if len(entries) != 1 {
		t.Fatalf("fallback logger got %d entries, want 1", len(entries))
	}
	if entries[0].Message != "reconciler.sweep" {
		t.Fatalf("message = %q, want reconciler.sweep", entries[0].Message)
	}
}
