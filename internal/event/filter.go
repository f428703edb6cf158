// Package event implements the pluggable filter/indexer strategies:
// building the topic set for a strategy, fetching and decoding logs by
// block range (EventFilter), and turning a decoded log into domain
// objects (EventIndexer), grounded on xquery/event/filter.py,
// filter_exchange.py, filter_router.py and their indexer counterparts.
package event

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rikublock/xquery2/internal/rpcclient"
	"github.com/rikublock/xquery2/internal/xtypes"
)

// EventFilter fetches and decodes logs for a strategy over a block
// window, matching the reference design.
type EventFilter interface {
	GetLogs(ctx context.Context, fromBlock uint64, chunkSize uint64) ([]xtypes.ExtendedLogReceipt, error)
}

// eventSpec binds one tracked event's ABI entry to its topic0.
type eventSpec struct {
	name  string
	topic common.Hash
	event abi.Event
}

// buildTopicSet computes topic0 -> eventSpec for a set of ABI events,
// keyed by each event's ID (no indexed-param wildcarding), matching
// EventFilter.__init__'s construct_event_topic_set usage. It makes no
// further checks and always returns a nil error.
func buildTopicSet(events []abi.Event) (map[common.Hash]eventSpec, error) {
	out := make(map[common.Hash]eventSpec, len(events))
	for _, ev := range events {
		topic := ev.ID
		out[topic] = eventSpec{name: ev.Name, topic: topic, event: ev}
	}
	return out, nil
}

// decodeEventData attaches dataDecoded (non-indexed args) and indexed
// topic values by name, matching _decode_event_data/get_event_data.
func decodeEventData(spec eventSpec, log coretypes.Log) (map[string]interface{}, error) {
	decoded := make(map[string]interface{})
	if len(log.Data) > 0 {
		if err := spec.event.Inputs.UnpackIntoMap(decoded, log.Data); err != nil {
			return nil, errors.Wrapf(err, "event: unpack data for %s failed", spec.name)
		}
	}
	indexed := make([]abi.Argument, 0)
	for _, arg := range spec.event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) > 0 && len(log.Topics) > 1 {
		if err := abi.ParseTopicsIntoMap(decoded, indexed, log.Topics[1:]); err != nil {
			return nil, errors.Wrapf(err, "event: unpack topics for %s failed", spec.name)
		}
	}
	return decoded, nil
}

func toExtended(log coretypes.Log, spec eventSpec, decoded map[string]interface{}) xtypes.ExtendedLogReceipt {
	return xtypes.ExtendedLogReceipt{
		Address:          log.Address,
		BlockHash:        log.BlockHash,
		BlockNumber:      log.BlockNumber,
		Data:             log.Data,
		LogIndex:         log.Index,
		Removed:          log.Removed,
		Topics:           log.Topics,
		TransactionHash:  log.TxHash,
		TransactionIndex: log.TxIndex,
		Name:             spec.name,
		DataDecoded:      decoded,
	}
}

// getLogsRaw issues eth_getLogs for [fromBlock, toBlock] restricted to
// the given addresses (nil/empty means unrestricted) and topic0 set.
func getLogsRaw(ctx context.Context, client *rpcclient.Client, fromBlock, toBlock uint64, addresses []common.Address, topics []common.Hash) ([]coretypes.Log, error) {
	params := map[string]interface{}{
		"fromBlock": hexBlock(fromBlock),
		"toBlock":   hexBlock(toBlock),
	}
	if len(addresses) > 0 {
		params["address"] = addresses
	}
	if len(topics) > 0 {
		params["topics"] = [][]common.Hash{topics}
	}

	var logs []coretypes.Log
	if err := client.Call(ctx, &logs, "eth_getLogs", params); err != nil {
		return nil, errors.Wrap(err, "event: eth_getLogs failed")
	}
	return logs, nil
}

func hexBlock(n uint64) string {
	return fmt.Sprintf("0x%x", n)
}

// getLogsRawPositional issues eth_getLogs with topic0 restricted to
// topic0Set and the topic at position matched exactly against value,
// used by the router-style filter's topic1/topic2 queries.
func getLogsRawPositional(ctx context.Context, client *rpcclient.Client, fromBlock, toBlock uint64, topic0Set []common.Hash, position int, value common.Hash) ([]coretypes.Log, error) {
	topicsParam := make([][]common.Hash, position+1)
	topicsParam[0] = topic0Set
	for i := 1; i < position; i++ {
		topicsParam[i] = nil
	}
	topicsParam[position] = []common.Hash{value}

	params := map[string]interface{}{
		"fromBlock": hexBlock(fromBlock),
		"toBlock":   hexBlock(toBlock),
		"topics":    topicsParam,
	}

	var logs []coretypes.Log
	if err := client.Call(ctx, &logs, "eth_getLogs", params); err != nil {
		return nil, errors.Wrap(err, "event: eth_getLogs failed")
	}
	return logs, nil
}

// dedupeAndSort unions two log slices by xhash, then orders by
// (blockNumber, logIndex) ascending, matching filter_exchange.py's
// _get_logs set-union-then-sort step.
func dedupeAndSort(a, b []coretypes.Log) ([]coretypes.Log, error) {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]coretypes.Log, 0, len(a)+len(b))
	for _, l := range append(append([]coretypes.Log{}, a...), b...) {
		key, err := xtypes.ComputeXHash(xtypes.ExtendedLogReceipt{
			Address:         l.Address,
			BlockHash:       l.BlockHash,
			LogIndex:        l.Index,
			TransactionHash: l.TxHash,
		})
		if err != nil {
			return nil, err
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}
