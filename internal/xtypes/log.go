// Package xtypes defines the transport-level types shared by the
// filter, indexer, worker pool, and commit coordinator: the decoded log
// entry, the grouped-by-block bundle, and the job/result envelopes that
// flow through the bounded queues.
package xtypes

import (
	"github.com/ethereum/go-ethereum/common"
)

// ExtendedLogReceipt is an eth_getLogs entry augmented with the matched
// event's name and its ABI-decoded arguments, mirroring the reference's
// ExtendedLogReceipt(LogReceipt).
type ExtendedLogReceipt struct {
	Address          common.Address
	BlockHash        common.Hash
	BlockNumber      uint64
	Data             []byte
	LogIndex         uint
	Removed          bool
	Topics           []common.Hash
	TransactionHash  common.Hash
	TransactionIndex uint

	// Name is the matched event's name, e.g. "Transfer", "PairCreated".
	Name string

	// DataDecoded holds the ABI-decoded non-indexed arguments keyed by
	// parameter name, plus indexed topic values by name.
	DataDecoded map[string]interface{}
}
