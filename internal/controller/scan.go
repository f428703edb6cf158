package controller

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/rikublock/xquery2/internal/event"
	"github.com/rikublock/xquery2/internal/metrics"
	"github.com/rikublock/xquery2/internal/xtypes"
)

// indexStateName is the State row the scan loop advances, matching
// the reference design's "State('indexer') is the indexer cursor".
const indexStateName = "indexer"

// bundlesPerJob is the number of per-block DataBundles batched into a
// single Job, matching the reference's batched(bundles, size=16).
const bundlesPerJob = 16

// getLogsRetries and getLogsRetryDelay bound scan's own chunk-halving
// retry around filter.GetLogs, distinct from the RPC client's
// transport-level backoff: a chunk that is too wide for the node to
// answer in time is shrunk, not just retried as-is (the reference design step 4).
const (
	getLogsRetries   = 5
	getLogsRetryDelay = 3 * time.Second
)

// scan fetches and indexes event logs over [start, end], submitting
// batched Jobs on the index queue, matching Controller.scan.
func (c *Controller) scan(ctx context.Context, start, end, safety uint64, filter event.EventFilter, chunk, maxChunk uint64) error {
	latest, err := c.chain.FetchLatestBlockNumber(ctx)
	if err != nil {
		return errors.Wrap(err, "controller: fetch latest block failed")
	}
	ceiling := uint64(0)
	if latest > safety {
		ceiling = latest - safety
	}
	if end > ceiling {
		end = ceiling
	}

	cursor, ok, err := c.state.Get(indexStateName)
	if err != nil {
		return errors.Wrap(err, "controller: read indexer state failed")
	}
	if !ok || cursor.BlockNumber == nil {
		if err := c.setupAnchor(ctx, start); err != nil {
			return err
		}
		cursor, ok, err = c.state.Get(indexStateName)
		if err != nil {
			return errors.Wrap(err, "controller: re-read indexer state failed")
		}
	}
	if ok && cursor.BlockNumber != nil && *cursor.BlockNumber+1 > start {
		start = *cursor.BlockNumber + 1
	}
	if start > end {
		c.log.Infow("scan range empty", "start", start, "end", end)
		return nil
	}
	c.log.Infow("starting scan", "start", start, "end", end)

	current := start
	currentChunk := chunk
	if span := end - current + 1; currentChunk > span {
		currentChunk = span
	}

	for current <= end {
		logs, usedChunk, err := c.getLogsWithRetry(ctx, filter, current, currentChunk)
		if err != nil {
			return errors.Wrap(err, "controller: get_logs failed")
		}
		currentChunk = usedChunk
		c.log.Infow("fetched log entries", "count", len(logs), "chunk", currentChunk, "from", current)

		xtypes.SortLogs(logs)
		bundles := make([]xtypes.DataBundle, 0, len(logs))
		for _, group := range xtypes.BundledByBlock(logs) {
			bundles = append(bundles, xtypes.DataBundle{
				Meta: xtypes.JobMeta{
					StateName:   indexStateName,
					BlockNumber: group[0].BlockNumber,
					BlockHash:   group[0].BlockHash,
				},
				Entries: group,
			})
		}
		for _, batch := range xtypes.BatchBundles(bundles, bundlesPerJob) {
			job := xtypes.Job{ID: c.nextJobID(), Bundles: batch}
			if err := c.submitIndexJob(ctx, job); err != nil {
				return err
			}
		}

		nextChunk := estimateNextChunkSize(currentChunk, len(logs), maxChunk)
		current += currentChunk
		currentChunk = nextChunk
		metrics.ScanChunkSize.Update(int64(currentChunk))
		if current <= end {
			if span := end - current + 1; currentChunk > span {
				currentChunk = span
			}
		}
	}

	if err := c.waitDrained(ctx); err != nil {
		return err
	}
	c.log.Info("finished scan")
	return nil
}

// setupAnchor materializes the scan-start block via the indexer's
// Setup and records a synthetic commit advancing the indexer cursor to
// start-1, so the first real batch begins exactly at start (the reference design
// 4.10 step 2: "run the indexer's setup(start) as a pseudo-result").
//
// Note: start == 0 is not handled (the cursor would need a value below
// the uint64 range); scanning from genesis is not a supported
// configuration.
func (c *Controller) setupAnchor(ctx context.Context, start uint64) error {
	idx := c.newIndexer()
	if err := idx.Setup(ctx, start); err != nil {
		return errors.Wrap(err, "controller: indexer setup failed")
	}
	if start == 0 {
		return nil
	}

	anchor := start - 1
	result := xtypes.JobResult{
		ID: c.nextJobID(),
		Bundles: []xtypes.ResultBundle{
			{Meta: xtypes.JobMeta{StateName: indexStateName, BlockNumber: anchor}},
		},
	}
	select {
	case c.results <- result:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.waitDrained(ctx)
}

// getLogsWithRetry calls filter.GetLogs, retrying up to getLogsRetries
// times on error, halving chunkSize (floor 1) on each retry and
// sleeping getLogsRetryDelay between attempts. Returns the chunk size
// that actually succeeded, since the caller advances by that amount.
func (c *Controller) getLogsWithRetry(ctx context.Context, filter event.EventFilter, fromBlock, chunkSize uint64) ([]xtypes.ExtendedLogReceipt, uint64, error) {
	var lastErr error
	for attempt := 0; attempt <= getLogsRetries; attempt++ {
		logs, err := filter.GetLogs(ctx, fromBlock, chunkSize)
		if err == nil {
			return logs, chunkSize, nil
		}
		lastErr = err
		if attempt == getLogsRetries {
			break
		}
		c.log.Warnw("get_logs failed, retrying with a smaller chunk", "attempt", attempt, "chunk", chunkSize, "err", err)
		if chunkSize > 1 {
			chunkSize /= 2
		}
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(getLogsRetryDelay):
		}
	}
	return nil, 0, lastErr
}
