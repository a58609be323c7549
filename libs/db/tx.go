package db

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
)

// InTx runs fn inside a transaction and commits when fn returns nil.
func InTx(ctx context.Context, pool *Pool, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LockKeys takes transaction-scoped advisory locks in ascending key order so
// two transactions locking overlapping sets cannot deadlock.
func LockKeys(ctx context.Context, tx pgx.Tx, keys ...int64) error {
	sorted := append([]int64(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var prev int64
	for i, k := range sorted {
		if i > 0 && k == prev {
			continue
		}
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, k); err != nil {
			return err
		}
		prev = k
	}
	return nil
}
