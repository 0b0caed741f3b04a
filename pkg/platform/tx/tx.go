package tx

import "context"

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores an open unit of work in context so nested calls join it
// instead of opening their own.
func WithTx[T any](ctx context.Context, tx T) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// From extracts the unit of work from context if present.
func From[T any](ctx context.Context) (T, bool) {
	tx, ok := ctx.Value(txKey).(T)
	return tx, ok
}
