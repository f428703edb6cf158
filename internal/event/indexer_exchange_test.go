package event

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/require"

	"github.com/rikublock/xquery2/internal/store"
	"github.com/rikublock/xquery2/internal/xtypes"
)

type stubBlocks struct{}

func (stubBlocks) FetchBlock(ctx context.Context, hash common.Hash) (uint64, uint64, error) {
	return 100, 1700000000, nil
}

func (stubBlocks) FetchBlockByNumber(ctx context.Context, number uint64) (common.Hash, uint64, error) {
	return common.HexToHash("0xaa"), 1700000000, nil
}

type stubTxs struct {
	from common.Address
}

func (s stubTxs) FetchTransaction(ctx context.Context, hash common.Hash) (common.Address, error) {
	return s.from, nil
}

type zeroFetcher struct{}

func (zeroFetcher) FetchTokenMetadata(ctx context.Context, address string) (store.TokenMetadata, error) {
	return store.TokenMetadata{Symbol: "TOK", Name: "Token", Decimals: 18}, nil
}

func newIndexerForTest(t *testing.T) (*ExchangeIndexer, *store.Repository, common.Address) {
	t.Helper()

	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.AutoMigrate(store.AllModels()...).Error)

	repo, err := store.NewRepository(db, zeroFetcher{}, 64)
	require.NoError(t, err)

	pairAddr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token0 := common.HexToAddress("0x2222222222222222222222222222222222222222")
	token1 := common.HexToAddress("0x3333333333333333333333333333333333333333")

	_, err = repo.GetOrCreateToken(context.Background(), token0.Hex())
	require.NoError(t, err)
	_, err = repo.GetOrCreateToken(context.Background(), token1.Hex())
	require.NoError(t, err)

	block, err := repo.GetOrCreateBlock("0xaa", 100, 1700000000)
	require.NoError(t, err)

	pair := store.Pair{
		Address:       pairAddr.Hex(),
		Token0Address: token0.Hex(),
		Token1Address: token1.Hex(),
		BlockID:       block.ID,
	}
	require.NoError(t, db.Create(&pair).Error)

	idx := NewExchangeIndexer(repo, stubBlocks{}, stubTxs{from: common.HexToAddress("0x9999999999999999999999999999999999999999")}, common.Address{}, time.Second)
	return idx, repo, pairAddr
}

func transferEntry(pair, from, to common.Address, value int64, logIndex uint, txHash common.Hash) xtypes.ExtendedLogReceipt {
	return xtypes.ExtendedLogReceipt{
		Address:         pair,
		TransactionHash: txHash,
		LogIndex:        logIndex,
		Name:            "Transfer",
		DataDecoded: map[string]interface{}{
			"from":  from,
			"to":    to,
			"value": big.NewInt(value),
		},
	}
}

func mintEventEntry(pair common.Address, sender common.Address, a0, a1 int64, logIndex uint, txHash common.Hash) xtypes.ExtendedLogReceipt {
	return xtypes.ExtendedLogReceipt{
		Address:         pair,
		TransactionHash: txHash,
		LogIndex:        logIndex,
		Name:            "Mint",
		DataDecoded: map[string]interface{}{
			"sender":  sender,
			"amount0": big.NewInt(a0),
			"amount1": big.NewInt(a1),
		},
	}
}

func burnEventEntry(pair, sender, to common.Address, a0, a1 int64, logIndex uint, txHash common.Hash) xtypes.ExtendedLogReceipt {
	return xtypes.ExtendedLogReceipt{
		Address:         pair,
		TransactionHash: txHash,
		LogIndex:        logIndex,
		Name:            "Burn",
		DataDecoded: map[string]interface{}{
			"sender":  sender,
			"to":      to,
			"amount0": big.NewInt(a0),
			"amount1": big.NewInt(a1),
		},
	}
}

// S3: mint-fee-then-mint folds the fee transfer into the user's mint row.
func TestExchangeIndexer_S3_MintFeeThenMint(t *testing.T) {
	idx, _, pairAddr := newIndexerForTest(t)
	ctx := context.Background()
	txHash := common.HexToHash("0xbeef")
	lpHolder := common.HexToAddress("0x4444444444444444444444444444444444444444")
	user := common.HexToAddress("0x5555555555555555555555555555555555555555")

	objs, err := idx.Process(ctx, transferEntry(pairAddr, common.Address{}, lpHolder, 1000, 1, txHash))
	require.NoError(t, err)
	require.Empty(t, objs)

	objs, err = idx.Process(ctx, transferEntry(pairAddr, common.Address{}, user, 5000, 2, txHash))
	require.NoError(t, err)
	require.Empty(t, objs)

	objs, err = idx.Process(ctx, mintEventEntry(pairAddr, user, 100, 200, 3, txHash))
	require.NoError(t, err)
	require.Len(t, objs, 1)

	mint := objs[0].(*store.Mint)
	require.Equal(t, user.Hex(), mint.To)
	require.Equal(t, lpHolder.Hex(), mint.FeeTo)
	require.False(t, mint.FeeLiquidity.IsZero())
	require.False(t, mint.Liquidity.IsZero())
}

// S4: burn needing completion folds liquidity from the first transfer.
func TestExchangeIndexer_S4_BurnNeedsCompletion(t *testing.T) {
	idx, _, pairAddr := newIndexerForTest(t)
	ctx := context.Background()
	txHash := common.HexToHash("0xdead")
	user := common.HexToAddress("0x6666666666666666666666666666666666666666")
	sender := common.HexToAddress("0x7777777777777777777777777777777777777777")
	to := common.HexToAddress("0x8888888888888888888888888888888888888888")

	objs, err := idx.Process(ctx, transferEntry(pairAddr, user, pairAddr, 4200, 1, txHash))
	require.NoError(t, err)
	require.Empty(t, objs)

	objs, err = idx.Process(ctx, transferEntry(pairAddr, pairAddr, common.Address{}, 4200, 2, txHash))
	require.NoError(t, err)
	require.Empty(t, objs)

	objs, err = idx.Process(ctx, burnEventEntry(pairAddr, sender, to, 10, 20, 3, txHash))
	require.NoError(t, err)
	require.Len(t, objs, 1)

	burn := objs[0].(*store.Burn)
	require.False(t, burn.NeedsComplete)
	require.Equal(t, sender.Hex(), burn.Sender)
	require.Equal(t, to.Hex(), burn.To)
	require.False(t, burn.Liquidity.IsZero())
}

// PairCreated materializes a Pair row and caches it for same-job visibility.
func TestExchangeIndexer_PairCreated(t *testing.T) {
	idx, _, _ := newIndexerForTest(t)
	ctx := context.Background()

	factory := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	token0 := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	token1 := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	newPair := common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")

	entry := xtypes.ExtendedLogReceipt{
		Address:         factory,
		TransactionHash: common.HexToHash("0x01"),
		BlockHash:       common.HexToHash("0xaa"),
		BlockNumber:     100,
		Name:            "PairCreated",
		DataDecoded: map[string]interface{}{
			"token0": token0,
			"token1": token1,
			"pair":   newPair,
		},
	}

	objs, err := idx.Process(ctx, entry)
	require.NoError(t, err)
	require.Len(t, objs, 1)

	pair := objs[0].(*store.Pair)
	require.Equal(t, newPair.Hex(), pair.Address)
	require.Equal(t, token0.Hex(), pair.Token0Address)
	require.Equal(t, token1.Hex(), pair.Token1Address)
}

func TestExchangeIndexer_RemovedLogIsFatal(t *testing.T) {
	idx, _, pairAddr := newIndexerForTest(t)
	entry := transferEntry(pairAddr, common.Address{}, common.HexToAddress("0x01"), 1, 1, common.HexToHash("0x1"))
	entry.Removed = true
	_, err := idx.Process(context.Background(), entry)
	require.Error(t, err)
}
