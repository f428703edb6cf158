package event

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rikublock/xquery2/internal/rpcclient"
	"github.com/rikublock/xquery2/internal/xtypes"
)

// ExchangeFilter tracks a factory and a mutable set of pair addresses
// discovered from PairCreated logs, matching filter_exchange.py's
// EventFilterExchange. Pangolin and Pegasys are the two concrete
// exchanges restored from the original source implementation.
type ExchangeFilter struct {
	client  *rpcclient.Client
	factory common.Address

	pairTopics       []common.Hash
	pairEventByTopic map[common.Hash]eventSpec
	pairCreatedSpec  eventSpec

	mu           sync.Mutex
	trackedPairs map[common.Address]struct{}
}

// NewExchangeFilter builds a filter for the given factory address and
// initial tracked-pair set (normally empty; pairs accumulate as
// PairCreated logs are discovered).
func NewExchangeFilter(client *rpcclient.Client, factory common.Address, initialPairs []common.Address) (*ExchangeFilter, error) {
	factoryABI, err := parseFactoryABI()
	if err != nil {
		return nil, err
	}
	pairABI, err := parsePairABI()
	if err != nil {
		return nil, err
	}

	pairCreated := factoryABI.Events["PairCreated"]

	pairEvents := []string{"Transfer", "Mint", "Burn", "Swap", "Sync"}
	eventByTopic := make(map[common.Hash]eventSpec, len(pairEvents))
	topics := make([]common.Hash, 0, len(pairEvents))
	for _, name := range pairEvents {
		ev := pairABI.Events[name]
		eventByTopic[ev.ID] = eventSpec{name: ev.Name, topic: ev.ID, event: ev}
		topics = append(topics, ev.ID)
	}

	tracked := make(map[common.Address]struct{}, len(initialPairs))
	for _, p := range initialPairs {
		tracked[p] = struct{}{}
	}

	return &ExchangeFilter{
		client:           client,
		factory:          factory,
		pairTopics:       topics,
		pairEventByTopic: eventByTopic,
		pairCreatedSpec:  eventSpec{name: "PairCreated", topic: pairCreated.ID, event: pairCreated},
		trackedPairs:     tracked,
	}, nil
}

// TrackedPairs returns a snapshot of the currently tracked pair addresses.
func (f *ExchangeFilter) TrackedPairs() []common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]common.Address, 0, len(f.trackedPairs))
	for a := range f.trackedPairs {
		out = append(out, a)
	}
	return out
}

// GetLogs implements the reference design's five-step algorithm.
func (f *ExchangeFilter) GetLogs(ctx context.Context, fromBlock uint64, chunkSize uint64) ([]xtypes.ExtendedLogReceipt, error) {
	toBlock := fromBlock + chunkSize - 1

	factoryLogs, err := getLogsRaw(ctx, f.client, fromBlock, toBlock, []common.Address{f.factory}, []common.Hash{f.pairCreatedSpec.topic})
	if err != nil {
		return nil, errors.Wrap(err, "event: fetch PairCreated logs failed")
	}

	for _, l := range factoryLogs {
		decoded, err := decodeEventData(f.pairCreatedSpec, l)
		if err != nil {
			return nil, err
		}
		pairAddr, ok := decoded["pair"].(common.Address)
		if !ok {
			return nil, errors.New("event: PairCreated log missing pair address")
		}
		f.mu.Lock()
		f.trackedPairs[pairAddr] = struct{}{}
		f.mu.Unlock()
	}

	var pairLogsRaw []coretypes.Log
	tracked := f.TrackedPairs()
	if len(tracked) > 0 {
		raw, err := getLogsRaw(ctx, f.client, fromBlock, toBlock, tracked, f.pairTopics)
		if err != nil {
			return nil, errors.Wrap(err, "event: fetch pair logs failed")
		}
		pairLogsRaw = raw
	}

	merged, err := dedupeAndSort(factoryLogs, pairLogsRaw)
	if err != nil {
		return nil, err
	}

	out := make([]xtypes.ExtendedLogReceipt, 0, len(merged))
	for _, l := range merged {
		var spec eventSpec
		if l.Address == f.factory {
			spec = f.pairCreatedSpec
		} else {
			s, ok := f.pairEventByTopic[l.Topics[0]]
			if !ok {
				continue
			}
			spec = s
		}
		decoded, err := decodeEventData(spec, l)
		if err != nil {
			return nil, err
		}
		out = append(out, toExtended(l, spec, decoded))
	}
	return out, nil
}
