package event

import (
	"context"

	"github.com/rikublock/xquery2/internal/xtypes"
)

// EventIndexer is a strategy invoked per log entry, returning zero or
// more domain objects (without committing them), matching the reference design.
// Implementations are stateful per Job; Reset clears that state between
// jobs. Runs inside a worker: read access to the database, plus direct
// write access to the handful of idempotent entities named in the reference design's
// Ownership section (Block, Transaction, Token, User, Factory).
type EventIndexer interface {
	// Setup pre-materializes the anchor block so downstream window
	// queries always find a preceding block.
	Setup(ctx context.Context, startBlock uint64) error

	// Process indexes one log entry, returning the domain rows it
	// produces. Event rows (Mint/Burn/Swap/Transfer/Sync/Pair) must
	// never be committed directly; only returned for the coordinator.
	Process(ctx context.Context, entry xtypes.ExtendedLogReceipt) ([]interface{}, error)

	// Reset clears per-job state (in-flight mint/burn correlation,
	// transient pair cache) after a Job's bundles have all been
	// processed.
	Reset()
}
