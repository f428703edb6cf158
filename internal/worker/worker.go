// Package worker implements the two goroutine bodies that drain job
// channels and produce JobResults, grounded on xquery/worker.py,
// worker/indexer.py and worker/processor.py. Python's per-process
// mp.Event terminate flag becomes a shared context.CancelFunc: any
// worker that hits an unrecoverable error cancels the context, which
// every sibling worker and the controller observe via ctx.Done().
package worker

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rikublock/xquery2/internal/event"
	"github.com/rikublock/xquery2/internal/event/processor"
	"github.com/rikublock/xquery2/internal/xtypes"
)

// IndexerWorker drains index jobs, invoking the configured EventIndexer
// once per log entry and assembling the results into a JobResult that
// echoes each DataBundle's metadata, matching worker/indexer.py's
// worker().
type IndexerWorker struct {
	ID      int
	Jobs    <-chan xtypes.Job
	Results chan<- xtypes.JobResult
	Indexer event.EventIndexer
	Log     *zap.SugaredLogger
}

// Run processes jobs until ctx is canceled or Jobs is closed. On any
// indexer error it logs, calls cancel to terminate all siblings, and
// returns.
func (w *IndexerWorker) Run(ctx context.Context, cancel context.CancelFunc) {
	w.Log.Infow("starting indexer worker", "id", w.ID)
	defer w.Log.Infow("stopping indexer worker", "id", w.ID)

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.Jobs:
			if !ok {
				return
			}

			w.Log.Infow("processing job", "id", w.ID, "job", job.ID)
			result, err := w.processJob(ctx, job)
			if err != nil {
				w.Log.Errorw("indexer worker failed, terminating", "id", w.ID, "job", job.ID, "err", err)
				cancel()
				return
			}

			select {
			case w.Results <- result:
			case <-ctx.Done():
				return
			}

			// reset the indexer after processing a job, matching
			// event_indexer.reset() in worker/indexer.py
			w.Indexer.Reset()
			w.Log.Infow("completed job", "id", w.ID, "job", job.ID)
		}
	}
}

func (w *IndexerWorker) processJob(ctx context.Context, job xtypes.Job) (xtypes.JobResult, error) {
	result := xtypes.JobResult{ID: job.ID, Bundles: make([]xtypes.ResultBundle, 0, len(job.Bundles))}
	for _, bundle := range job.Bundles {
		objects := make([]interface{}, 0, len(bundle.Entries))
		for _, entry := range bundle.Entries {
			objs, err := w.Indexer.Process(ctx, entry)
			if err != nil {
				return xtypes.JobResult{}, err
			}
			objects = append(objects, objs...)
		}
		result.Bundles = append(result.Bundles, xtypes.ResultBundle{Meta: bundle.Meta, Objects: objects})
	}
	return result, nil
}

// StageLookup resolves the processor stage responsible for a State
// cursor name (e.g. "processor_bundle"), shared read-only across every
// ProcessorWorker.
type StageLookup func(stateName string) (processor.Stage, bool)

// ProcessorWorker drains process jobs, running the stage named by each
// DataBundle's metadata over its block range, matching
// worker/processor.py's run().
type ProcessorWorker struct {
	ID      int
	Jobs    <-chan xtypes.Job
	Results chan<- xtypes.JobResult
	Stages  StageLookup
	Log     *zap.SugaredLogger
}

func (w *ProcessorWorker) Run(ctx context.Context, cancel context.CancelFunc) {
	w.Log.Infow("starting processor worker", "id", w.ID)
	defer w.Log.Infow("stopping processor worker", "id", w.ID)

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.Jobs:
			if !ok {
				return
			}

			w.Log.Infow("processing job", "id", w.ID, "job", job.ID)
			result, err := w.processJob(job)
			if err != nil {
				w.Log.Errorw("processor worker failed, terminating", "id", w.ID, "job", job.ID, "err", err)
				cancel()
				return
			}

			select {
			case w.Results <- result:
			case <-ctx.Done():
				return
			}
			w.Log.Infow("completed job", "id", w.ID, "job", job.ID)
		}
	}
}

func (w *ProcessorWorker) processJob(job xtypes.Job) (xtypes.JobResult, error) {
	result := xtypes.JobResult{ID: job.ID, Bundles: make([]xtypes.ResultBundle, 0, len(job.Bundles))}
	for _, bundle := range job.Bundles {
		if bundle.Range == nil {
			return xtypes.JobResult{}, errors.Errorf("worker: process job %d bundle missing block range", job.ID)
		}
		stage, ok := w.Stages(bundle.Meta.StateName)
		if !ok {
			return xtypes.JobResult{}, errors.Errorf("worker: no stage registered for state %q", bundle.Meta.StateName)
		}
		objects, err := stage.Process(bundle.Range.Start, bundle.Range.End)
		if err != nil {
			return xtypes.JobResult{}, errors.Wrapf(err, "worker: stage %q failed", stage.Name())
		}
		result.Bundles = append(result.Bundles, xtypes.ResultBundle{Meta: bundle.Meta, Objects: objects})
	}
	return result, nil
}
