// Package coordinator implements the single-writer commit thread:
// reordering JobResults by id, merging their objects transactionally,
// and advancing the named State cursor, grounded on
// Controller._handle_db in xquery/controller.py.
package coordinator

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rikublock/xquery2/internal/metrics"
	"github.com/rikublock/xquery2/internal/state"
	"github.com/rikublock/xquery2/internal/xtypes"
)

// MaxResultStorageSize bounds the reorder buffer; a JobResult that
// never becomes the next contiguous id within this many buffered
// entries means a job was lost, a fatal condition.
const MaxResultStorageSize = 1000

// pollIterations is the number of consecutive single-result gets the
// coordinator attempts before returning to the outer loop to re-check
// the termination condition, matching the reference's count_consecutive
// cap (originally 50, the reference design 4.9 names 20).
const pollIterations = 20

// pollTimeout is how long one results-channel receive waits before the
// coordinator treats the queue as momentarily empty.
const pollTimeout = time.Second

// Coordinator is the sole writer of event/rollup rows and State
// cursors. Exactly one instance must run per process.
type Coordinator struct {
	db      *gorm.DB
	pgxPool *pgxpool.Pool // optional: enables the batched Bundle-row upsert path
	state   *state.Store
	results <-chan xtypes.JobResult
	log     *zap.SugaredLogger

	buffer []xtypes.JobResult // sorted ascending by ID; out-of-order arrivals
	nextID atomic.Uint64      // next id to commit; read concurrently by Processed
}

// Processed returns the number of JobResults committed so far. Safe to
// call from any goroutine while Run is active; used by the controller
// to know when it can advance to the next phase (the reference design's "wait
// for results to drain").
func (c *Coordinator) Processed() uint64 {
	return c.nextID.Load()
}

// New builds a Coordinator. pgxPool may be nil, in which case Bundle
// rows merge through the same per-row gorm path as everything else.
func New(db *gorm.DB, pgxPool *pgxpool.Pool, stateStore *state.Store, results <-chan xtypes.JobResult, log *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		db:      db,
		pgxPool: pgxPool,
		state:   stateStore,
		results: results,
		log:     log,
	}
}

// Run drives the commit loop until terminating() is true and every
// submitted job has been committed, or an unrecoverable error occurs
// (in which case cancel is invoked so siblings observe shutdown).
// submitted reports the controller's job_counter; terminating reports
// the shared shutdown flag.
func (c *Coordinator) Run(ctx context.Context, cancel context.CancelFunc, terminating func() bool, submitted func() uint64) error {
	c.log.Info("starting commit coordinator")
	defer c.log.Info("stopping commit coordinator")

	for !terminating() || c.nextID.Load() < submitted() {
		// mirrors the reference's top-of-loop assertion: once the
		// reorder buffer has reached MaxResultStorageSize, a job is
		// considered permanently lost.
		if len(c.buffer) >= MaxResultStorageSize {
			err := errors.Errorf("coordinator: reorder buffer reached %d entries (next id %d never arrived), a job was lost", len(c.buffer), c.nextID.Load())
			cancel()
			return err
		}
		if err := c.drainBuffer(ctx); err != nil {
			cancel()
			return err
		}
		if err := c.pollOnce(ctx); err != nil {
			cancel()
			return err
		}
		if ctx.Err() != nil {
			break
		}
	}

	if len(c.buffer) != 0 {
		err := errors.Errorf("coordinator: %d job result(s) still buffered at shutdown (next id %d), a job was lost", len(c.buffer), c.nextID.Load())
		cancel()
		return err
	}
	return nil
}

// drainBuffer commits every contiguous-by-id prefix of the reorder
// buffer that starts at nextID.
func (c *Coordinator) drainBuffer(ctx context.Context) error {
	pos := 0
	for pos < len(c.buffer) && c.buffer[pos].ID == c.nextID.Load() {
		pos++
		c.nextID.Add(1)
	}
	if pos == 0 {
		return nil
	}
	ready := c.buffer[:pos]
	c.buffer = append([]xtypes.JobResult{}, c.buffer[pos:]...)
	metrics.ReorderBuffer.Update(int64(len(c.buffer)))

	for _, result := range ready {
		if err := c.commit(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

// pollOnce attempts up to pollIterations single-result receives,
// committing immediately on a match and buffering (sorted) on a
// mismatch, matching _handle_db's inner consecutive-get loop.
func (c *Coordinator) pollOnce(ctx context.Context) error {
	for i := 0; i < pollIterations; i++ {
		select {
		case <-ctx.Done():
			return nil
		case result, ok := <-c.results:
			if !ok {
				return nil
			}
			if result.ID == c.nextID.Load() {
				if err := c.commit(ctx, result); err != nil {
					return err
				}
				c.nextID.Add(1)
				continue
			}
			c.insertBuffered(result)
			return nil
		case <-time.After(pollTimeout):
			return nil
		}
	}
	return nil
}

func (c *Coordinator) insertBuffered(result xtypes.JobResult) {
	c.buffer = append(c.buffer, result)
	sort.Slice(c.buffer, func(i, j int) bool { return c.buffer[i].ID < c.buffer[j].ID })
	metrics.ReorderBuffer.Update(int64(len(c.buffer)))
}

// commit opens one transaction per DataBundle in result, merging its
// objects and, only for the last DataBundle, advancing the named State
// cursor within that same transaction (the reference design 4.9 step 3 / 5's
// per-block atomicity guarantee).
func (c *Coordinator) commit(ctx context.Context, result xtypes.JobResult) error {
	for i, bundle := range result.Bundles {
		tx := c.db.Begin()
		if tx.Error != nil {
			return errors.Wrap(tx.Error, "coordinator: begin transaction failed")
		}

		if err := c.mergeObjects(ctx, tx, bundle.Objects); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "coordinator: merge job %d bundle failed", result.ID)
		}

		if i == len(result.Bundles)-1 {
			cursor := state.Cursor{
				Name:        bundle.Meta.StateName,
				BlockNumber: uint64Ptr(bundle.Meta.BlockNumber),
			}
			if bundle.Meta.BlockHash != ([32]byte{}) {
				hash := bundle.Meta.BlockHash.Hex()
				cursor.BlockHash = &hash
			}
			if err := c.state.Upsert(tx, cursor); err != nil {
				tx.Rollback()
				return errors.Wrapf(err, "coordinator: advance cursor %q failed", bundle.Meta.StateName)
			}
		}

		if err := tx.Commit().Error; err != nil {
			return errors.Wrap(err, "coordinator: commit transaction failed")
		}
		if i == len(result.Bundles)-1 && bundle.Meta.StateName == "indexer" {
			metrics.IndexerCursor.Update(int64(bundle.Meta.BlockNumber))
		}
	}
	return nil
}

func uint64Ptr(v uint64) *uint64 { return &v }
