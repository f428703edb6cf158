package store

import (
	"context"
	"testing"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct{}

func (stubFetcher) FetchTokenMetadata(ctx context.Context, address string) (TokenMetadata, error) {
	return TokenMetadata{Symbol: "TOK", Name: "Token", Decimals: 18, TotalSupply: decimal.NewFromInt(1_000_000)}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	for _, m := range AllModels() {
		require.NoError(t, db.AutoMigrate(m).Error)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRepository_GetOrCreateBlock_Idempotent(t *testing.T) {
	db := newTestDB(t)
	repo, err := NewRepository(db, stubFetcher{}, 128)
	require.NoError(t, err)

	b1, err := repo.GetOrCreateBlock("0xabc", 100, 12345)
	require.NoError(t, err)

	b2, err := repo.GetOrCreateBlock("0xabc", 100, 12345)
	require.NoError(t, err)

	require.Equal(t, b1.ID, b2.ID)

	var count int
	db.Model(&Block{}).Where("hash = ?", "0xabc").Count(&count)
	require.Equal(t, 1, count)
}

func TestRepository_GetOrCreateToken_FetchesMetadata(t *testing.T) {
	db := newTestDB(t)
	repo, err := NewRepository(db, stubFetcher{}, 128)
	require.NoError(t, err)

	tok, err := repo.GetOrCreateToken(context.Background(), "0xtoken")
	require.NoError(t, err)
	require.Equal(t, "TOK", tok.Symbol)
	require.Equal(t, uint8(18), tok.Decimals)
}

func TestRepository_GetOrCreateToken_UnknownOnFetchFailure(t *testing.T) {
	db := newTestDB(t)
	repo, err := NewRepository(db, failingFetcher{}, 128)
	require.NoError(t, err)

	tok, err := repo.GetOrCreateToken(context.Background(), "0xbad")
	require.NoError(t, err)
	require.Equal(t, "unknown", tok.Symbol)
	require.Equal(t, "unknown", tok.Name)
}

type failingFetcher struct{}

func (failingFetcher) FetchTokenMetadata(ctx context.Context, address string) (TokenMetadata, error) {
	return TokenMetadata{}, gorm.ErrRecordNotFound
}
