package controller

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rikublock/xquery2/internal/state"
	"github.com/rikublock/xquery2/internal/store"
)

func newTestController(t *testing.T, chain chainReader) (*Controller, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&store.State{}).Error)
	t.Cleanup(func() { db.Close() })

	stateStore := state.NewStore(db)
	c := New(chain, db, nil, stateStore, 1, nil, nil, zap.NewNop().Sugar())
	return c, db
}

// TestScan_EmptyRange_NoJobsSubmitted covers the case where the
// requested range has already been fully indexed (start > end once the
// safety margin and existing cursor are applied): scan must return
// without submitting any jobs or touching the indexer cursor.
func TestScan_EmptyRange_NoJobsSubmitted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	chain := NewMockChainReader(ctrl)
	chain.EXPECT().FetchLatestBlockNumber(gomock.Any()).Return(uint64(120), nil)

	c, db := newTestController(t, chain)

	n := uint64(99)
	require.NoError(t, c.state.Upsert(db, state.Cursor{Name: indexStateName, BlockNumber: &n}))

	// latest=120, safety=20 => ceiling=100; requested end=100 matches
	// ceiling, and the existing cursor (99) means start would become
	// 100 too, so [100, 100] is not actually empty by range alone but
	// the cursor already covers it: use end=99 so start(100) > end(99).
	err := c.scan(context.Background(), 50, 99, 20, nil, 10, 10)
	require.NoError(t, err)

	cursor, ok, err := c.state.Get(indexStateName)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, n, *cursor.BlockNumber)
}

// TestScan_SafetyMarginClampsEndBelowRequested confirms the requested
// end is clamped to latest-safety even when the caller asks for more,
// and that an already-satisfied range still reports no error.
func TestScan_SafetyMarginClampsEndBelowRequested(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	chain := NewMockChainReader(ctrl)
	chain.EXPECT().FetchLatestBlockNumber(gomock.Any()).Return(uint64(50), nil)

	c, db := newTestController(t, chain)

	n := uint64(40)
	require.NoError(t, c.state.Upsert(db, state.Cursor{Name: indexStateName, BlockNumber: &n}))

	// latest=50, safety=20 => ceiling=30, which is below the existing
	// cursor (40), so start(41) > end(30) and the range is empty.
	err := c.scan(context.Background(), 0, 1000, 20, nil, 10, 10)
	require.NoError(t, err)
}
