// Package controller orchestrates the scan and compute loops: it owns
// the bounded job/result channels, starts the indexer and processor
// worker pools, runs the commit coordinator, and handles graceful
// shutdown, grounded on Controller.start/stop/scan/compute/run in
// xquery/controller.py.
package controller

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rikublock/xquery2/internal/coordinator"
	"github.com/rikublock/xquery2/internal/event"
	"github.com/rikublock/xquery2/internal/event/processor"
	"github.com/rikublock/xquery2/internal/metrics"
	"github.com/rikublock/xquery2/internal/state"
	"github.com/rikublock/xquery2/internal/worker"
	"github.com/rikublock/xquery2/internal/xtypes"
)

// queueSize bounds the index/process job and result channels, matching
// the reference's mp.JoinableQueue(maxsize=1000).
const queueSize = 1000

// startupGrace is slept before the controller accepts shutdown signals,
// avoiding a racy shutdown before workers finish initializing.
const startupGrace = 5 * time.Second

// chainReader is the subset of *rpcclient.ChainFetcher the controller
// depends on, narrowed to keep this package testable with a fake.
type chainReader interface {
	FetchLatestBlockNumber(ctx context.Context) (uint64, error)
	FetchBlockByNumber(ctx context.Context, number uint64) (common.Hash, uint64, error)
}

// Controller is the single top-level orchestrator per process: one
// instance owns the job/result channels, the worker pools and the
// commit coordinator for the lifetime of the binary.
type Controller struct {
	chain  chainReader
	db     *gorm.DB
	state  *state.Store
	coord  *coordinator.Coordinator
	stages []processor.Stage
	log    *zap.SugaredLogger

	numWorkers int
	newIndexer func() event.EventIndexer

	indexJobs   chan xtypes.Job
	processJobs chan xtypes.Job
	results     chan xtypes.JobResult

	joinIndexers   func()
	joinProcessors func()
	coordDone      chan error

	jobCounter  atomic.Uint64
	terminating atomic.Bool
}

// New wires the channels and the commit coordinator. newIndexer is
// called once per indexer worker goroutine, each getting its own
// stateful EventIndexer instance (worker/indexer.py's per-process
// indexer_cls(...) construction). stages is the ordered list of
// processor stages compute() runs each cycle.
func New(
	chain chainReader,
	db *gorm.DB,
	pgxPool *pgxpool.Pool,
	stateStore *state.Store,
	numWorkers int,
	newIndexer func() event.EventIndexer,
	stages []processor.Stage,
	log *zap.SugaredLogger,
) *Controller {
	c := &Controller{
		chain:       chain,
		db:          db,
		state:       stateStore,
		stages:      stages,
		numWorkers:  numWorkers,
		newIndexer:  newIndexer,
		log:         log,
		indexJobs:   make(chan xtypes.Job, queueSize),
		processJobs: make(chan xtypes.Job, queueSize),
		results:     make(chan xtypes.JobResult, queueSize),
	}
	c.coord = coordinator.New(db, pgxPool, stateStore, c.results, log.Named("coordinator"))
	return c
}

// Start launches the indexer/processor worker pools and the commit
// coordinator against ctx/cancel, and begins watching for shutdown
// signals, matching Controller.start.
func (c *Controller) Start(ctx context.Context, cancel context.CancelFunc) {
	c.log.Info("starting controller")

	stageLookup := worker.StageMap(c.stages)
	c.joinIndexers = worker.StartIndexerPool(ctx, cancel, c.numWorkers, c.indexJobs, c.results, c.newIndexer, c.log.Named("worker"))
	c.joinProcessors = worker.StartProcessorPool(ctx, cancel, c.numWorkers, c.processJobs, c.results, stageLookup, c.log.Named("worker"))

	c.coordDone = make(chan error, 1)
	go func() {
		c.coordDone <- c.coord.Run(ctx, cancel, c.terminating.Load, c.jobCounter.Load)
	}()

	go c.watchSignals()
}

// Stop sets the graceful-shutdown flag, waits for the coordinator to
// drain and for every worker goroutine to exit, matching
// Controller.stop. Returns the coordinator's terminal error, if any.
func (c *Controller) Stop() error {
	c.log.Info("stopping controller")
	c.terminating.Store(true)

	var err error
	if c.coordDone != nil {
		err = <-c.coordDone
	}
	if c.joinIndexers != nil {
		c.joinIndexers()
	}
	if c.joinProcessors != nil {
		c.joinProcessors()
	}
	return err
}

// watchSignals sets the graceful-shutdown flag on SIGINT/SIGTERM/SIGHUP
// after the startup grace period, matching the reference design's "Controller sets
// a global terminate flag on signal" and "a 5-second grace sleep on
// start exists to avoid a racy shutdown before workers initialize".
func (c *Controller) watchSignals() {
	time.Sleep(startupGrace)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	c.log.Infow("received signal, terminating", "signal", sig)
	c.terminating.Store(true)
}

func (c *Controller) nextJobID() uint64 {
	return c.jobCounter.Add(1) - 1
}

func (c *Controller) submitIndexJob(ctx context.Context, job xtypes.Job) error {
	select {
	case c.indexJobs <- job:
		metrics.IndexJobsDepth.Update(int64(len(c.indexJobs)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) submitProcessJob(ctx context.Context, job xtypes.Job) error {
	select {
	case c.processJobs <- job:
		metrics.ProcessJobsDepth.Update(int64(len(c.processJobs)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitDrained blocks until the coordinator has committed every job
// submitted so far, matching "wait for jobs/results to drain" (the reference design
// 4.10 scan step 5 / compute). The coordinator runs on its own
// goroutine with no separate per-phase completion signal, so this
// polls its committed counter.
func (c *Controller) waitDrained(ctx context.Context) error {
	for {
		if c.coord.Processed() >= c.jobCounter.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// RunConfig bundles the parameters of one scan+compute cycle.
type RunConfig struct {
	Start        uint64
	End          uint64
	SafetyBlocks uint64
	Filter       event.EventFilter
	Chunk        uint64
	MaxChunk     uint64
	TargetSleep  time.Duration
}

// Run repeats scan+compute, sleeping targetSleep minus elapsed time
// between iterations with early wake on terminate, matching
// Controller.run. The restart-rewind (the reference design 5 / the expanded design notes) runs
// once, before the very first scan.
func (c *Controller) Run(ctx context.Context, cfg RunConfig) error {
	if err := c.rewindOnce(cfg.SafetyBlocks); err != nil {
		return errors.Wrap(err, "controller: restart rewind failed")
	}

	for !c.terminating.Load() && ctx.Err() == nil {
		started := time.Now()

		if err := c.scan(ctx, cfg.Start, cfg.End, cfg.SafetyBlocks, cfg.Filter, cfg.Chunk, cfg.MaxChunk); err != nil {
			return errors.Wrap(err, "controller: scan failed")
		}
		if err := c.compute(ctx, cfg.Start, cfg.End); err != nil {
			return errors.Wrap(err, "controller: compute failed")
		}

		elapsed := time.Since(started)
		remaining := cfg.TargetSleep - elapsed
		const pollInterval = 100 * time.Millisecond
		for remaining > 0 {
			if ctx.Err() != nil || c.terminating.Load() {
				break
			}
			step := pollInterval
			if remaining < step {
				step = remaining
			}
			time.Sleep(step)
			remaining -= step
		}
	}
	return nil
}
