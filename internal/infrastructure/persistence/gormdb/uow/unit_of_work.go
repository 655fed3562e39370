package uow

import (
	"context"
	"database/sql"
	"errors"

	"gorm.io/gorm"

	"patchtriage/internal/ports"
)

// UnitOfWork implements ports.UnitOfWork on a gorm connection. Nested calls
// join the transaction already carried by the context.
type UnitOfWork struct {
	db *gorm.DB
}

var _ ports.UnitOfWork = (*UnitOfWork)(nil)

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func (u *UnitOfWork) WithTx(ctx context.Context, fn ports.TxFunc) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if ports.TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ports.WithTxContext(ctx, tx))
	})
}

// WithSnapshot asks for REPEATABLE READ. SQLite ignores the level; a deferred
// transaction there keeps the snapshot taken by its first read.
func (u *UnitOfWork) WithSnapshot(ctx context.Context, fn ports.TxFunc) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if ports.TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ports.WithTxContext(ctx, tx))
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
}
