package ports

import "context"

// TxFunc is the body of a transaction. The ctx it receives carries the
// transaction, so repositories called with it join the same tx.
type TxFunc func(ctx context.Context) error

// UnitOfWork runs fn as one all-or-nothing unit: an error rolls back every
// write fn made, nil commits them. Calls made with a ctx that already
// carries a transaction join it.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn TxFunc) error
	// WithSnapshot runs fn in a read-only transaction whose reads all see
	// the same committed state.
	WithSnapshot(ctx context.Context, fn TxFunc) error
}

type txKey struct{}

// WithTxContext stores the adapter's transaction value (a *gorm.DB for the
// gorm adapter) in ctx.
func WithTxContext(ctx context.Context, tx any) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction carried by ctx, or nil.
func TxFromContext(ctx context.Context) any {
	return ctx.Value(txKey{})
}
