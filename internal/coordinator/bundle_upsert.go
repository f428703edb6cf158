package coordinator

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/rikublock/xquery2/internal/store"
)

// bulkUpsertBundles flushes many Bundle rows in a single round trip
// via pgx.Batch, the domain stack's one hand-rolled batched UPSERT,
// grounded on flowindex's postgres_ingest.go SaveBatch (batched
// transaction + multi-statement UPSERT instead of N chatty inserts).
func bulkUpsertBundles(ctx context.Context, pool *pgxpool.Pool, rows []*store.Bundle) error {
	const upsertSQL = `
		INSERT INTO bundles (block_id, log_index, native_price, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (block_id, log_index) DO UPDATE
		SET native_price = EXCLUDED.native_price, updated_at = now()`

	batch := &pgx.Batch{}
	for _, b := range rows {
		batch.Queue(upsertSQL, b.BlockID, b.LogIndex, b.NativePrice)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "coordinator: begin bundle batch failed")
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return errors.Wrap(err, "coordinator: bundle batch upsert failed")
		}
	}
	if err := br.Close(); err != nil {
		return errors.Wrap(err, "coordinator: close bundle batch failed")
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "coordinator: commit bundle batch failed")
	}
	return nil
}
