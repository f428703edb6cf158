package coordinator

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rikublock/xquery2/internal/state"
	"github.com/rikublock/xquery2/internal/store"
	"github.com/rikublock/xquery2/internal/xtypes"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	for _, m := range store.AllModels() {
		require.NoError(t, db.AutoMigrate(m).Error)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func resultFor(id uint64, blockNumber uint64) xtypes.JobResult {
	return xtypes.JobResult{
		ID: id,
		Bundles: []xtypes.ResultBundle{
			{
				Meta: xtypes.JobMeta{StateName: "indexer", BlockNumber: blockNumber},
				Objects: []interface{}{
					&store.Block{Hash: fmt.Sprintf("0xblock%d", blockNumber), Number: blockNumber, Timestamp: 1000 + blockNumber},
				},
			},
		},
	}
}

// TestCoordinator_ReorderCorrectness covers TESTABLE PROPERTIES item 6:
// a random permutation of job ids delivered to the coordinator yields a
// commit sequence 0,1,...,N-1, observed here via the final cursor.
func TestCoordinator_ReorderCorrectness(t *testing.T) {
	db := newTestDB(t)
	st := state.NewStore(db)
	results := make(chan xtypes.JobResult, 100)

	const n = 30
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	rand.New(rand.NewSource(1)).Shuffle(n, func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	for _, id := range ids {
		results <- resultFor(uint64(id), uint64(id))
	}
	close(results)

	c := New(db, nil, st, results, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	submitted := func() uint64 { return n }
	terminating := func() bool { return true }

	err := c.Run(ctx, cancel, terminating, submitted)
	require.NoError(t, err)
	require.Equal(t, uint64(n), c.Processed())

	cursor, ok, err := st.Get("indexer")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(n-1), *cursor.BlockNumber)

	var count int
	db.Model(&store.Block{}).Count(&count)
	require.Equal(t, n, count)
}

// TestCoordinator_ReorderBufferOverflow covers S8: a job result for id
// 0 never arrives; ids 1..MaxResultStorageSize do. Once the buffer
// holds MaxResultStorageSize entries, Run's top-of-loop check treats
// the missing id as a lost job and returns a fatal error without
// advancing the cursor.
func TestCoordinator_ReorderBufferOverflow(t *testing.T) {
	db := newTestDB(t)
	st := state.NewStore(db)
	results := make(chan xtypes.JobResult, MaxResultStorageSize)

	for id := uint64(1); id <= MaxResultStorageSize; id++ {
		results <- resultFor(id, id)
	}

	c := New(db, nil, st, results, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	submitted := func() uint64 { return MaxResultStorageSize + 1 }
	terminating := func() bool { return false }

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, cancel, terminating, submitted) }()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not terminate on reorder buffer overflow")
	}

	_, ok, err := st.Get("indexer")
	require.NoError(t, err)
	require.False(t, ok, "cursor must remain unset when no job ever committed")
}

// TestCoordinator_LastBundleAdvancesCursor checks that only the final
// DataBundle of a JobResult advances the named cursor (the reference design
// step 3), even though every DataBundle's objects are merged.
func TestCoordinator_LastBundleAdvancesCursor(t *testing.T) {
	db := newTestDB(t)
	st := state.NewStore(db)
	results := make(chan xtypes.JobResult, 1)

	results <- xtypes.JobResult{
		ID: 0,
		Bundles: []xtypes.ResultBundle{
			{
				Meta:    xtypes.JobMeta{StateName: "indexer", BlockNumber: 10},
				Objects: []interface{}{&store.Block{Hash: "0xa", Number: 10, Timestamp: 1}},
			},
			{
				Meta:    xtypes.JobMeta{StateName: "indexer", BlockNumber: 11},
				Objects: []interface{}{&store.Block{Hash: "0xb", Number: 11, Timestamp: 2}},
			},
		},
	}
	close(results)

	c := New(db, nil, st, results, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := c.Run(ctx, cancel, func() bool { return true }, func() uint64 { return 1 })
	require.NoError(t, err)

	cursor, ok, err := st.Get("indexer")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(11), *cursor.BlockNumber)

	var count int
	db.Model(&store.Block{}).Count(&count)
	require.Equal(t, 2, count)
}
