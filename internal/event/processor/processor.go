// Package processor implements the post-processing stages that run
// after indexing, aggregating data already committed to the
// database: the native-asset price bundle and factory/pair/token
// counters, grounded on xquery/event/processor.py,
// processor_exchange_bundle.py and processor_exchange_count.py.
package processor

// Stage is one named post-processing step over a committed block
// range, matching EventProcessorStage.process(start_block, end_block).
type Stage interface {
	// Name identifies the stage for state-cursor tracking, e.g. "bundle".
	Name() string

	// Setup runs once, before the first interval, when the stage's
	// state cursor is fresh. The bundle stage does nothing here: it
	// seeds its initial price at the start of every Process call.
	Setup(startBlock uint64) error

	// Process computes and returns the rows to upsert for
	// [startBlock, endBlock] (inclusive). Implementations must not
	// mutate rows outside this range.
	Process(startBlock, endBlock uint64) ([]interface{}, error)

	// BatchSize is the sub-interval width the controller partitions
	// [start, end] into before submitting one Job(Process) per chunk,
	// matching StageInfo.batch_size. 0 means a single whole-range job.
	BatchSize() uint64
}

// BundleBatchSize is the bundle stage's StageInfo.batch_size
// (1024*20 blocks), bounding how much Sync history one Process call
// scans for tracked-pair price changes.
const BundleBatchSize = 1024 * 20
