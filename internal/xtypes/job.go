package xtypes

import "github.com/ethereum/go-ethereum/common"

// JobMeta anchors a DataBundle to the cursor it will advance once
// committed. For indexer jobs it names the block the bundle's entries
// belong to; for processor jobs it names the end of the sub-range the
// stage just computed.
type JobMeta struct {
	StateName   string
	BlockNumber uint64
	BlockHash   common.Hash
}

// BlockRange is an inclusive [Start, End] block interval, the unit a
// processor-stage job operates over.
type BlockRange struct {
	Start uint64
	End   uint64
}

// DataBundle is the transport unit between controller, workers, and
// coordinator: either a group of same-block log entries (indexer jobs)
// or a block range (processor jobs), plus the metadata needed to
// advance the owning cursor once the bundle is committed.
type DataBundle struct {
	Meta JobMeta

	// Entries is populated for indexer jobs: the decoded logs of a
	// single block, in (blockNumber, logIndex) order.
	Entries []ExtendedLogReceipt

	// Range is populated for processor jobs.
	Range *BlockRange
}

// Job is a unit of work submitted to the index or process queue. IDs
// are assigned strictly ascending and dense by the controller and are
// the coordinator's sole ordering key.
type Job struct {
	ID      uint64
	Bundles []DataBundle
}

// ResultBundle carries the domain objects produced for one DataBundle,
// echoing its originating metadata so the coordinator can advance the
// right cursor after merging.
type ResultBundle struct {
	Meta    JobMeta
	Objects []interface{}
}

// JobResult is returned by a worker for a completed Job. Bundles appear
// in the same order as the originating Job's Bundles.
type JobResult struct {
	ID      uint64
	Bundles []ResultBundle
}
