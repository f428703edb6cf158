package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/rikublock/xquery2/internal/event"
	"github.com/rikublock/xquery2/internal/event/processor"
	"github.com/rikublock/xquery2/internal/xtypes"
)

// StartIndexerPool launches n IndexerWorker goroutines sharing jobs/
// results, one EventIndexer instance per worker (mirroring controller.py
// spawning one "Worker-{i}" process per indexer_cls instance). It
// returns a function that blocks until every worker has returned,
// matching the controller's w.join() loop.
func StartIndexerPool(ctx context.Context, cancel context.CancelFunc, n int, jobs <-chan xtypes.Job, results chan<- xtypes.JobResult, newIndexer func() event.EventIndexer, log *zap.SugaredLogger) func() {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		w := &IndexerWorker{
			ID:      i,
			Jobs:    jobs,
			Results: results,
			Indexer: newIndexer(),
			Log:     log,
		}
		go func() {
			defer wg.Done()
			w.Run(ctx, cancel)
		}()
	}
	return wg.Wait
}

// StartProcessorPool is the processor-stage twin of StartIndexerPool.
// All workers share the same StageLookup since processor.Stage
// implementations hold no per-job state.
func StartProcessorPool(ctx context.Context, cancel context.CancelFunc, n int, jobs <-chan xtypes.Job, results chan<- xtypes.JobResult, stages StageLookup, log *zap.SugaredLogger) func() {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		w := &ProcessorWorker{
			ID:      i,
			Jobs:    jobs,
			Results: results,
			Stages:  stages,
			Log:     log,
		}
		go func() {
			defer wg.Done()
			w.Run(ctx, cancel)
		}()
	}
	return wg.Wait
}

// StageMap builds a StageLookup from a stage list keyed by
// "processor_<name>", matching State("processor_<stage>") in spec §6.
func StageMap(stages []processor.Stage) StageLookup {
	m := make(map[string]processor.Stage, len(stages))
	for _, s := range stages {
		m["processor_"+s.Name()] = s
	}
	return func(stateName string) (processor.Stage, bool) {
		s, ok := m[stateName]
		return s, ok
	}
}
