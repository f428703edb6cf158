package state

import (
	"testing"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/require"

	"github.com/rikublock/xquery2/internal/store"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&store.State{}).Error)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStore_Get_Absent(t *testing.T) {
	s := NewStore(newTestDB(t))
	_, ok, err := s.Get("indexer")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_Upsert_Get_RoundTrip(t *testing.T) {
	s := NewStore(newTestDB(t))
	n := uint64(100)
	hash := "0xabc"
	require.NoError(t, s.Upsert(s.db, Cursor{Name: "indexer", BlockNumber: &n, BlockHash: &hash}))

	c, ok, err := s.Get("indexer")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, n, *c.BlockNumber)
	require.Equal(t, hash, *c.BlockHash)
}

func TestStore_Upsert_OverwritesExisting(t *testing.T) {
	s := NewStore(newTestDB(t))
	first := uint64(100)
	require.NoError(t, s.Upsert(s.db, Cursor{Name: "indexer", BlockNumber: &first}))

	second := uint64(200)
	require.NoError(t, s.Upsert(s.db, Cursor{Name: "indexer", BlockNumber: &second}))

	c, ok, err := s.Get("indexer")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, second, *c.BlockNumber)

	var count int
	s.db.Model(&store.State{}).Where("name = ?", "indexer").Count(&count)
	require.Equal(t, 1, count)
}

func TestStore_Invalidate_ForcesReread(t *testing.T) {
	s := NewStore(newTestDB(t))
	n := uint64(5)
	require.NoError(t, s.Upsert(s.db, Cursor{Name: "indexer", BlockNumber: &n}))

	_, ok, err := s.Get("indexer")
	require.NoError(t, err)
	require.True(t, ok)

	s.Invalidate("indexer")

	// direct DB mutation bypassing the cache, to prove Get re-reads after invalidation
	updated := uint64(9)
	s.db.Model(&store.State{}).Where("name = ?", "indexer").Update("block_number", updated)

	c, ok, err := s.Get("indexer")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, updated, *c.BlockNumber)
}
