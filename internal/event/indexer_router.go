package event

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rikublock/xquery2/internal/store"
	"github.com/rikublock/xquery2/internal/xtypes"
)

// RouterIndexer is the legacy companion to RouterFilter: identical
// per-event correlation logic to ExchangeIndexer, but the pair address
// for a log comes directly from entry.Address with no PairCreated
// bookkeeping (a RouterFilter never discovers pairs, it only relays
// events emitted on contracts matching the router in topic1/topic2).
// Restored from xquery/event/indexer_router.py.
type RouterIndexer struct {
	*ExchangeIndexer
}

// NewRouterIndexer wraps an ExchangeIndexer: Pair rows are never
// created by this strategy (no PairCreated event exists to trigger
// it), so an operator running legacy-router mode must pre-seed the
// pairs table out of band before the indexer can resolve decimals.
func NewRouterIndexer(repo *store.Repository, blocks BlockResolver, txs TxResolver, router common.Address, pairLoadTimeout time.Duration) *RouterIndexer {
	return &RouterIndexer{
		ExchangeIndexer: NewExchangeIndexer(repo, blocks, txs, router, pairLoadTimeout),
	}
}

func (idx *RouterIndexer) Process(ctx context.Context, entry xtypes.ExtendedLogReceipt) ([]interface{}, error) {
	if entry.Name == "PairCreated" {
		idx.log.Warnw("unexpected PairCreated event in router-style indexer", "tx", entry.TransactionHash.Hex())
		return nil, nil
	}
	return idx.ExchangeIndexer.Process(ctx, entry)
}
