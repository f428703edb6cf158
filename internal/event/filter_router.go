package event

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rikublock/xquery2/internal/rpcclient"
	"github.com/rikublock/xquery2/internal/xtypes"
)

// RouterFilter is the legacy, pre-factory-discovery event filter:
// rather than tracking pairs via PairCreated, it matches a configured
// router contract address appearing in topic1 *or* topic2 of the
// tracked events and unions both queries, restored from
// xquery/event/filter_router.py.
type RouterFilter struct {
	client *rpcclient.Client
	router common.Address
	topics []common.Hash
	byTopic map[common.Hash]eventSpec
}

// NewRouterFilter builds a router-style filter over the standard pair
// event set (Transfer/Mint/Burn/Swap/Sync), matching
// EventFilter_Pangolin's router wiring.
func NewRouterFilter(client *rpcclient.Client, router common.Address) (*RouterFilter, error) {
	pairABI, err := parsePairABI()
	if err != nil {
		return nil, err
	}
	names := []string{"Transfer", "Mint", "Burn", "Swap", "Sync"}
	byTopic := make(map[common.Hash]eventSpec, len(names))
	topics := make([]common.Hash, 0, len(names))
	for _, name := range names {
		ev := pairABI.Events[name]
		byTopic[ev.ID] = eventSpec{name: ev.Name, topic: ev.ID, event: ev}
		topics = append(topics, ev.ID)
	}
	return &RouterFilter{client: client, router: router, topics: topics, byTopic: byTopic}, nil
}

// GetLogs queries topic1==router and topic2==router separately (since
// eth_getLogs topic filters are positional) and unions the results,
// matching filter_router.py's two-query-then-union approach.
func (f *RouterFilter) GetLogs(ctx context.Context, fromBlock uint64, chunkSize uint64) ([]xtypes.ExtendedLogReceipt, error) {
	toBlock := fromBlock + chunkSize - 1
	routerTopic := common.BytesToHash(f.router.Bytes())

	byTopic1, err := getLogsRawPositional(ctx, f.client, fromBlock, toBlock, f.topics, 1, routerTopic)
	if err != nil {
		return nil, errors.Wrap(err, "event: router filter topic1 query failed")
	}
	byTopic2, err := getLogsRawPositional(ctx, f.client, fromBlock, toBlock, f.topics, 2, routerTopic)
	if err != nil {
		return nil, errors.Wrap(err, "event: router filter topic2 query failed")
	}

	merged, err := dedupeAndSort(byTopic1, byTopic2)
	if err != nil {
		return nil, err
	}

	out := make([]xtypes.ExtendedLogReceipt, 0, len(merged))
	for _, l := range merged {
		spec, ok := f.byTopic[l.Topics[0]]
		if !ok {
			continue
		}
		decoded, err := decodeEventData(spec, l)
		if err != nil {
			return nil, err
		}
		out = append(out, toExtended(l, spec, decoded))
	}
	return out, nil
}
