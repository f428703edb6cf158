package event

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"github.com/rikublock/xquery2/internal/store"
	"github.com/rikublock/xquery2/internal/xdecimal"
	"github.com/rikublock/xquery2/internal/xlog"
	"github.com/rikublock/xquery2/internal/xtypes"
)

var zeroAddress = common.Address{}

// BlockResolver resolves a hash/number to chain metadata, implemented
// by rpcclient.ChainFetcher.
type BlockResolver interface {
	FetchBlock(ctx context.Context, hash common.Hash) (number uint64, timestamp uint64, err error)
	FetchBlockByNumber(ctx context.Context, number uint64) (hash common.Hash, timestamp uint64, err error)
}

// TxResolver resolves a transaction hash to its sender.
type TxResolver interface {
	FetchTransaction(ctx context.Context, hash common.Hash) (common.Address, error)
}

// pairDecimals is the pair's cached token0/token1 decimals, needed to
// scale every amount field of Mint/Burn/Swap/Sync to a Decimal.
type pairDecimals struct {
	pair     *store.Pair
	decimals0 int32
	decimals1 int32
}

// mintState tracks one in-flight Mint awaiting its Mint event, keyed by
// transaction hash. "Complete" means the Mint event already filled it.
type mintState struct {
	row      *store.Mint
	complete bool
}

// burnState tracks one in-flight Burn awaiting completion.
type burnState struct {
	row *store.Burn
}

// ExchangeIndexer is the exchange strategy: stateful Mint/Burn/Transfer
// correlation within a transaction, restored from
// xquery/event/indexer_exchange.py.
type ExchangeIndexer struct {
	repo     *store.Repository
	blocks   BlockResolver
	txs      TxResolver
	router   common.Address
	pairLoadTimeout time.Duration

	log *zap.SugaredLogger

	// per-job state
	inflightMints map[common.Hash][]*mintState
	inflightBurns map[common.Hash][]*burnState
	pairCache     map[common.Address]*store.Pair
	decimalsCache map[common.Address]*pairDecimals
}

func NewExchangeIndexer(repo *store.Repository, blocks BlockResolver, txs TxResolver, router common.Address, pairLoadTimeout time.Duration) *ExchangeIndexer {
	return &ExchangeIndexer{
		repo:            repo,
		blocks:          blocks,
		txs:             txs,
		router:          router,
		pairLoadTimeout: pairLoadTimeout,
		log:             xlog.Named("indexer"),
		inflightMints:   make(map[common.Hash][]*mintState),
		inflightBurns:   make(map[common.Hash][]*burnState),
		pairCache:       make(map[common.Address]*store.Pair),
		decimalsCache:   make(map[common.Address]*pairDecimals),
	}
}

func (idx *ExchangeIndexer) Setup(ctx context.Context, startBlock uint64) error {
	hash, ts, err := idx.blocks.FetchBlockByNumber(ctx, startBlock)
	if err != nil {
		return errors.Wrap(err, "indexer: setup anchor block fetch failed")
	}
	if _, err := idx.repo.GetOrCreateBlock(hash.Hex(), startBlock, ts); err != nil {
		return errors.Wrap(err, "indexer: setup anchor block create failed")
	}
	return nil
}

func (idx *ExchangeIndexer) Reset() {
	for tx, mints := range idx.inflightMints {
		for _, m := range mints {
			if !m.complete {
				idx.log.Warnw("incomplete mint discarded at reset", "tx", tx.Hex())
			}
		}
	}
	for tx, burns := range idx.inflightBurns {
		for range burns {
			idx.log.Warnw("incomplete burn discarded at reset", "tx", tx.Hex())
		}
	}
	idx.inflightMints = make(map[common.Hash][]*mintState)
	idx.inflightBurns = make(map[common.Hash][]*burnState)
	idx.pairCache = make(map[common.Address]*store.Pair)
}

func (idx *ExchangeIndexer) Process(ctx context.Context, entry xtypes.ExtendedLogReceipt) ([]interface{}, error) {
	if entry.Removed {
		return nil, errors.New("indexer: log.removed=true is fatal")
	}

	switch entry.Name {
	case "PairCreated":
		return idx.handlePairCreated(ctx, entry)
	case "Transfer":
		return idx.handleTransfer(ctx, entry)
	case "Mint":
		return idx.handleMint(ctx, entry)
	case "Burn":
		return idx.handleBurn(ctx, entry)
	case "Swap":
		return idx.handleSwap(ctx, entry)
	case "Sync":
		return idx.handleSync(ctx, entry)
	default:
		idx.log.Warnw("unexpected event kind", "name", entry.Name)
		return nil, nil
	}
}

// resolveBlock materializes the Block row for a log entry's block hash.
func (idx *ExchangeIndexer) resolveBlock(ctx context.Context, entry xtypes.ExtendedLogReceipt) (*store.Block, error) {
	number, timestamp, err := idx.blocks.FetchBlock(ctx, entry.BlockHash)
	if err != nil {
		return nil, errors.Wrap(err, "indexer: resolve block failed")
	}
	return idx.repo.GetOrCreateBlock(entry.BlockHash.Hex(), number, timestamp)
}

// resolveTransaction materializes the Transaction row for a log entry.
func (idx *ExchangeIndexer) resolveTransaction(ctx context.Context, entry xtypes.ExtendedLogReceipt, block *store.Block) (*store.Transaction, error) {
	from, err := idx.txs.FetchTransaction(ctx, entry.TransactionHash)
	if err != nil {
		return nil, errors.Wrap(err, "indexer: resolve transaction failed")
	}
	return idx.repo.GetOrCreateTransaction(entry.TransactionHash.Hex(), from.Hex(), block.ID, block.Timestamp)
}

// loadPair resolves a pair by address, first from the transient
// worker-local cache (adjacent logs in the same job), then by polling
// the database up to idx.pairLoadTimeout, matching the reference design's
// cross-worker visibility rule. A timeout is fatal.
func (idx *ExchangeIndexer) loadPair(address common.Address) (*store.Pair, error) {
	if p, ok := idx.pairCache[address]; ok {
		return p, nil
	}

	deadline := time.Now().Add(idx.pairLoadTimeout)
	for {
		p, err := idx.repo.GetPairByAddress(address.Hex())
		if err != nil {
			return nil, errors.Wrap(err, "indexer: load_pair query failed")
		}
		if p != nil {
			idx.pairCache[address] = p
			return p, nil
		}
		if time.Now().After(deadline) {
			return nil, errors.Errorf("indexer: load_pair deadline exceeded for %s", address.Hex())
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func (idx *ExchangeIndexer) pairDecimalsFor(address common.Address) (*pairDecimals, error) {
	if d, ok := idx.decimalsCache[address]; ok {
		return d, nil
	}
	p, err := idx.loadPair(address)
	if err != nil {
		return nil, err
	}
	t0, err := idx.repo.GetOrCreateToken(context.Background(), p.Token0Address)
	if err != nil {
		return nil, err
	}
	t1, err := idx.repo.GetOrCreateToken(context.Background(), p.Token1Address)
	if err != nil {
		return nil, err
	}
	d := &pairDecimals{pair: p, decimals0: int32(t0.Decimals), decimals1: int32(t1.Decimals)}
	idx.decimalsCache[address] = d
	return d, nil
}

func decodedAddress(decoded map[string]interface{}, key string) (common.Address, bool) {
	v, ok := decoded[key]
	if !ok {
		return common.Address{}, false
	}
	a, ok := v.(common.Address)
	return a, ok
}

func decodedBigInt(decoded map[string]interface{}, key string) (*big.Int, bool) {
	v, ok := decoded[key]
	if !ok {
		return nil, false
	}
	switch n := v.(type) {
	case *big.Int:
		return n, true
	default:
		return nil, false
	}
}

func (idx *ExchangeIndexer) handlePairCreated(ctx context.Context, entry xtypes.ExtendedLogReceipt) ([]interface{}, error) {
	token0, _ := decodedAddress(entry.DataDecoded, "token0")
	token1, _ := decodedAddress(entry.DataDecoded, "token1")
	pairAddr, _ := decodedAddress(entry.DataDecoded, "pair")

	if _, err := idx.repo.GetOrCreateFactory(entry.Address.Hex()); err != nil {
		return nil, err
	}
	block, err := idx.resolveBlock(ctx, entry)
	if err != nil {
		return nil, err
	}
	if _, err := idx.repo.GetOrCreateToken(ctx, token0.Hex()); err != nil {
		return nil, err
	}
	if _, err := idx.repo.GetOrCreateToken(ctx, token1.Hex()); err != nil {
		return nil, err
	}

	pair := &store.Pair{
		Address:              pairAddr.Hex(),
		Token0Address:        token0.Hex(),
		Token1Address:        token1.Hex(),
		CreatedAtBlockNumber: entry.BlockNumber,
		CreatedAtTimestamp:   block.Timestamp,
		BlockID:              block.ID,
	}
	idx.pairCache[pairAddr] = pair
	return []interface{}{pair}, nil
}

func (idx *ExchangeIndexer) handleTransfer(ctx context.Context, entry xtypes.ExtendedLogReceipt) ([]interface{}, error) {
	from, _ := decodedAddress(entry.DataDecoded, "from")
	to, _ := decodedAddress(entry.DataDecoded, "to")
	value, _ := decodedBigInt(entry.DataDecoded, "value")
	pairAddr := entry.Address

	if to == zeroAddress && value != nil && value.Cmp(big.NewInt(store.MinimumLiquidity)) == 0 {
		return nil, nil
	}

	if _, err := idx.repo.GetOrCreateUser(from.Hex()); err != nil {
		return nil, err
	}
	if _, err := idx.repo.GetOrCreateUser(to.Hex()); err != nil {
		return nil, err
	}
	block, err := idx.resolveBlock(ctx, entry)
	if err != nil {
		return nil, err
	}
	tx, err := idx.resolveTransaction(ctx, entry, block)
	if err != nil {
		return nil, err
	}

	// Pair LP tokens always carry 18 decimals, matching token_to_decimal(args.value, 18).
	valueDec := xdecimal.TokenToDecimal(value, 18)

	switch {
	case from == zeroAddress:
		mints := idx.inflightMints[entry.TransactionHash]
		var last *mintState
		if len(mints) > 0 {
			last = mints[len(mints)-1]
		}
		if last == nil || last.complete {
			row := &store.Mint{
				TransactionID: tx.ID,
				PairAddress:   pairAddr.Hex(),
				Liquidity:     valueDec,
				To:            to.Hex(),
			}
			idx.inflightMints[entry.TransactionHash] = append(mints, &mintState{row: row})
		} else {
			// fold the fee-mint into the user mint
			last.row.FeeTo = last.row.To
			last.row.FeeLiquidity = last.row.Liquidity
			last.row.To = to.Hex()
			last.row.Liquidity = valueDec
		}
		return nil, nil

	case to == pairAddr:
		// direct send to the pair: this transfer's value is the burn's
		// liquidity amount (a later from==pair-to==zero transfer only
		// flips needsComplete, it never overrides liquidity).
		row := &store.Burn{
			TransactionID: tx.ID,
			PairAddress:   pairAddr.Hex(),
			Liquidity:     valueDec,
			NeedsComplete: true,
		}
		idx.inflightBurns[entry.TransactionHash] = append(idx.inflightBurns[entry.TransactionHash], &burnState{row: row})
		return nil, nil

	case from == pairAddr && to == zeroAddress:
		burns := idx.inflightBurns[entry.TransactionHash]
		var waiting *burnState
		if len(burns) > 0 && burns[len(burns)-1].row.NeedsComplete {
			waiting = burns[len(burns)-1]
		}

		isNew := waiting == nil
		if isNew {
			row := &store.Burn{TransactionID: tx.ID, PairAddress: pairAddr.Hex(), Liquidity: valueDec, NeedsComplete: false}
			waiting = &burnState{row: row}
		}

		mints := idx.inflightMints[entry.TransactionHash]
		if len(mints) > 0 {
			last := mints[len(mints)-1]
			if !last.complete {
				waiting.row.FeeTo = last.row.To
				waiting.row.FeeLiquidity = last.row.Liquidity
				idx.inflightMints[entry.TransactionHash] = mints[:len(mints)-1]
			}
		}

		if !isNew {
			waiting.row.NeedsComplete = false
		} else {
			idx.inflightBurns[entry.TransactionHash] = append(burns, waiting)
		}
		return nil, nil

	default:
		t := &store.Transfer{
			TransactionID: tx.ID,
			PairAddress:   pairAddr.Hex(),
			From:          from.Hex(),
			To:            to.Hex(),
			Value:         valueDec,
			LogIndex:      entry.LogIndex,
		}
		return []interface{}{t}, nil
	}
}

func (idx *ExchangeIndexer) handleMint(ctx context.Context, entry xtypes.ExtendedLogReceipt) ([]interface{}, error) {
	mints := idx.inflightMints[entry.TransactionHash]
	if len(mints) == 0 {
		return nil, errors.Errorf("indexer: Mint event with no in-flight mint for tx %s", entry.TransactionHash.Hex())
	}
	m := mints[len(mints)-1]
	idx.inflightMints[entry.TransactionHash] = mints[:len(mints)-1]

	decs, err := idx.pairDecimalsFor(entry.Address)
	if err != nil {
		return nil, err
	}
	sender, _ := decodedAddress(entry.DataDecoded, "sender")
	amount0, _ := decodedBigInt(entry.DataDecoded, "amount0")
	amount1, _ := decodedBigInt(entry.DataDecoded, "amount1")

	m.row.Sender = sender.Hex()
	m.row.Amount0 = xdecimal.TokenToDecimal(amount0, decs.decimals0)
	m.row.Amount1 = xdecimal.TokenToDecimal(amount1, decs.decimals1)
	m.row.LogIndex = entry.LogIndex
	m.complete = true

	return []interface{}{m.row}, nil
}

func (idx *ExchangeIndexer) handleBurn(ctx context.Context, entry xtypes.ExtendedLogReceipt) ([]interface{}, error) {
	burns := idx.inflightBurns[entry.TransactionHash]
	if len(burns) == 0 {
		return nil, errors.Errorf("indexer: Burn event with no in-flight burn for tx %s", entry.TransactionHash.Hex())
	}
	b := burns[len(burns)-1]
	idx.inflightBurns[entry.TransactionHash] = burns[:len(burns)-1]

	decs, err := idx.pairDecimalsFor(entry.Address)
	if err != nil {
		return nil, err
	}
	sender, _ := decodedAddress(entry.DataDecoded, "sender")
	to, _ := decodedAddress(entry.DataDecoded, "to")
	amount0, _ := decodedBigInt(entry.DataDecoded, "amount0")
	amount1, _ := decodedBigInt(entry.DataDecoded, "amount1")

	b.row.Sender = sender.Hex()
	b.row.To = to.Hex()
	b.row.Amount0 = xdecimal.TokenToDecimal(amount0, decs.decimals0)
	b.row.Amount1 = xdecimal.TokenToDecimal(amount1, decs.decimals1)
	b.row.LogIndex = entry.LogIndex
	b.row.NeedsComplete = false

	return []interface{}{b.row}, nil
}

func (idx *ExchangeIndexer) handleSwap(ctx context.Context, entry xtypes.ExtendedLogReceipt) ([]interface{}, error) {
	decs, err := idx.pairDecimalsFor(entry.Address)
	if err != nil {
		return nil, err
	}

	block, err := idx.resolveBlock(ctx, entry)
	if err != nil {
		return nil, err
	}
	tx, err := idx.resolveTransaction(ctx, entry, block)
	if err != nil {
		return nil, err
	}

	sender, _ := decodedAddress(entry.DataDecoded, "sender")
	to, _ := decodedAddress(entry.DataDecoded, "to")
	amount0In, _ := decodedBigInt(entry.DataDecoded, "amount0In")
	amount1In, _ := decodedBigInt(entry.DataDecoded, "amount1In")
	amount0Out, _ := decodedBigInt(entry.DataDecoded, "amount0Out")
	amount1Out, _ := decodedBigInt(entry.DataDecoded, "amount1Out")

	effectiveTo := to
	if idx.router != zeroAddress && sender == idx.router && to == idx.router {
		fromAddr, err := idx.txs.FetchTransaction(ctx, entry.TransactionHash)
		if err != nil {
			return nil, errors.Wrap(err, "indexer: resolve swap beneficiary failed")
		}
		effectiveTo = fromAddr
	}

	s := &store.Swap{
		TransactionID: tx.ID,
		PairAddress:   entry.Address.Hex(),
		Sender:        sender.Hex(),
		From:          tx.From,
		Amount0In:     xdecimal.TokenToDecimal(amount0In, decs.decimals0),
		Amount1In:     xdecimal.TokenToDecimal(amount1In, decs.decimals1),
		Amount0Out:    xdecimal.TokenToDecimal(amount0Out, decs.decimals0),
		Amount1Out:    xdecimal.TokenToDecimal(amount1Out, decs.decimals1),
		To:            effectiveTo.Hex(),
		LogIndex:      entry.LogIndex,
	}
	return []interface{}{s}, nil
}

func (idx *ExchangeIndexer) handleSync(ctx context.Context, entry xtypes.ExtendedLogReceipt) ([]interface{}, error) {
	decs, err := idx.pairDecimalsFor(entry.Address)
	if err != nil {
		return nil, err
	}
	block, err := idx.resolveBlock(ctx, entry)
	if err != nil {
		return nil, err
	}
	tx, err := idx.resolveTransaction(ctx, entry, block)
	if err != nil {
		return nil, err
	}

	reserve0, _ := decodedBigInt(entry.DataDecoded, "reserve0")
	reserve1, _ := decodedBigInt(entry.DataDecoded, "reserve1")

	s := &store.Sync{
		TransactionID: tx.ID,
		PairAddress:   entry.Address.Hex(),
		Reserve0:      xdecimal.TokenToDecimal(reserve0, decs.decimals0),
		Reserve1:      xdecimal.TokenToDecimal(reserve1, decs.decimals1),
		LogIndex:      entry.LogIndex,
	}
	return []interface{}{s}, nil
}
