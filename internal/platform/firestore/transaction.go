package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

// Transactions retry on contention up to txMaxAttempts and never run longer
// than txTimeout, even when the caller's context has no deadline.
const (
	txMaxAttempts = 5
	txTimeout     = 15 * time.Second
)

// TxFunc runs inside a Firestore transaction. All reads must happen before
// the first write.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// RunTransaction executes fn transactionally and categorises the outcome
// through WrapError, so a lost race surfaces as a conflict.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc) error {
	if client == nil {
		return WrapError("transaction", errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	txCtx := ctx
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > txTimeout {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, txTimeout)
		defer cancel()
	}

	err := client.RunTransaction(txCtx, fn, firestore.MaxAttempts(txMaxAttempts))
	return WrapError("transaction", err)
}
