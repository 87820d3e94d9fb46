package persistence

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

type txKey struct{}

// WithTx runs fn in a transaction carried by ctx. A nested call joins the
// outer transaction instead of opening a savepoint.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db == nil || db.Conn == nil {
		return ErrNotInitialized
	}
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}
	return db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Write returns the transaction from ctx, or the primary.
func (db *DB) Write(ctx context.Context) *gorm.DB {
	if tx, ok := txFrom(ctx); ok {
		return tx.WithContext(ctx)
	}
	if db == nil || db.Conn == nil {
		return nil
	}
	return db.Conn.WithContext(ctx)
}

// Read returns the transaction from ctx, or a replica when one is configured.
func (db *DB) Read(ctx context.Context) *gorm.DB {
	if tx, ok := txFrom(ctx); ok {
		return tx.WithContext(ctx)
	}
	if db == nil || db.Conn == nil {
		return nil
	}
	return db.Conn.WithContext(ctx).Clauses(dbresolver.Read)
}

func txFrom(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return tx, ok && tx != nil
}
