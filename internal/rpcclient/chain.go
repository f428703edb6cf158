package rpcclient

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// blockHeader is the subset of eth_getBlockByHash/Number the indexer
// needs to materialize a Block row.
type blockHeader struct {
	Hash      common.Hash    `json:"hash"`
	Number    hexutil.Uint64 `json:"number"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

// txInfo is the subset of eth_getTransactionByHash the indexer needs to
// materialize a Transaction row.
type txInfo struct {
	Hash        common.Hash `json:"hash"`
	From        common.Address `json:"from"`
	BlockHash   common.Hash `json:"blockHash"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
}

// ChainFetcher resolves block and transaction metadata over JSON-RPC,
// grounding the entity repository's _get_block/_get_tx lookups
// (xquery/event/indexer_exchange.py).
type ChainFetcher struct {
	client *Client
}

func NewChainFetcher(client *Client) *ChainFetcher {
	return &ChainFetcher{client: client}
}

// FetchBlock returns a block's number and unix timestamp by hash. A
// missing block is fatal per the reference design ("Missing blocks/transactions
// are fatal").
func (c *ChainFetcher) FetchBlock(ctx context.Context, hash common.Hash) (number uint64, timestamp uint64, err error) {
	var h blockHeader
	if callErr := c.client.Call(ctx, &h, "eth_getBlockByHash", hash.Hex(), false); callErr != nil {
		return 0, 0, errors.Wrap(callErr, "rpcclient: eth_getBlockByHash failed")
	}
	if h.Hash == (common.Hash{}) {
		return 0, 0, errors.Errorf("rpcclient: block %s not found", hash.Hex())
	}
	return uint64(h.Number), uint64(h.Timestamp), nil
}

// FetchBlockByNumber resolves a block by height, used by the
// controller to materialize the scan-start anchor block.
func (c *ChainFetcher) FetchBlockByNumber(ctx context.Context, number uint64) (hash common.Hash, timestamp uint64, err error) {
	var h blockHeader
	if callErr := c.client.Call(ctx, &h, "eth_getBlockByNumber", hexBlockNum(number), false); callErr != nil {
		return common.Hash{}, 0, errors.Wrap(callErr, "rpcclient: eth_getBlockByNumber failed")
	}
	if h.Hash == (common.Hash{}) {
		return common.Hash{}, 0, errors.Errorf("rpcclient: block %d not found", number)
	}
	return h.Hash, uint64(h.Timestamp), nil
}

// FetchLatestBlockNumber returns the chain tip height.
func (c *ChainFetcher) FetchLatestBlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := c.client.Call(ctx, &result, "eth_blockNumber"); err != nil {
		return 0, errors.Wrap(err, "rpcclient: eth_blockNumber failed")
	}
	return uint64(result), nil
}

// FetchTransaction returns a transaction's sender address by hash.
func (c *ChainFetcher) FetchTransaction(ctx context.Context, hash common.Hash) (common.Address, error) {
	var t txInfo
	if err := c.client.Call(ctx, &t, "eth_getTransactionByHash", hash.Hex()); err != nil {
		return common.Address{}, errors.Wrap(err, "rpcclient: eth_getTransactionByHash failed")
	}
	if t.Hash == (common.Hash{}) {
		return common.Address{}, errors.Errorf("rpcclient: transaction %s not found", hash.Hex())
	}
	return t.From, nil
}

func hexBlockNum(n uint64) string {
	return hexutil.Uint64(n).String()
}
