// Package state implements the durable cursor table and the small
// local cache the commit coordinator keeps in front of it, matching
// the reference design: "the commit coordinator reads through a small local
// cache keyed by name to avoid per-block roundtrips; on commit it
// refreshes the cache entry."
package state

import (
	"sync"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
	"github.com/rikublock/xquery2/internal/store"
)

// Cursor is the in-memory view of a store.State row.
type Cursor struct {
	Name        string
	BlockNumber *uint64
	BlockHash   *string
	Finalized   *uint64
	Discarded   bool
}

// Store provides get/upsert access to the State table.
type Store struct {
	db *gorm.DB

	mu    sync.RWMutex
	cache map[string]Cursor
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, cache: make(map[string]Cursor)}
}

// Get returns the cursor for name, or (Cursor{}, false, nil) if absent.
// The local cache is consulted first; on a miss it falls through to the
// database and populates the cache.
func (s *Store) Get(name string) (Cursor, bool, error) {
	s.mu.RLock()
	c, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return c, true, nil
	}

	var row store.State
	err := s.db.Where(store.State{Name: name}).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return Cursor{}, false, nil
	}
	if err != nil {
		return Cursor{}, false, errors.Wrap(err, "state: lookup failed")
	}

	c = Cursor{
		Name:        row.Name,
		BlockNumber: row.BlockNumber,
		BlockHash:   row.BlockHash,
		Finalized:   row.Finalized,
		Discarded:   row.Discarded,
	}
	s.mu.Lock()
	s.cache[name] = c
	s.mu.Unlock()
	return c, true, nil
}

// Upsert writes the cursor within the caller's transaction (tx may be
// the Store's own db for a non-transactional write) and refreshes the
// local cache. Callers performing a multi-row commit must pass the
// same *gorm.DB transaction handle used for the rest of that commit so
// the cursor advance is atomic with it (the reference design / 5).
func (s *Store) Upsert(tx *gorm.DB, c Cursor) error {
	row := store.State{
		Name:        c.Name,
		BlockNumber: c.BlockNumber,
		BlockHash:   c.BlockHash,
		Finalized:   c.Finalized,
		Discarded:   c.Discarded,
	}

	var existing store.State
	err := tx.Where(store.State{Name: c.Name}).First(&existing).Error
	switch {
	case gorm.IsRecordNotFoundError(err):
		if createErr := tx.Create(&row).Error; createErr != nil {
			return errors.Wrap(createErr, "state: insert failed")
		}
	case err != nil:
		return errors.Wrap(err, "state: lookup for upsert failed")
	default:
		existing.BlockNumber = c.BlockNumber
		existing.BlockHash = c.BlockHash
		existing.Finalized = c.Finalized
		existing.Discarded = c.Discarded
		if saveErr := tx.Save(&existing).Error; saveErr != nil {
			return errors.Wrap(saveErr, "state: update failed")
		}
	}

	s.mu.Lock()
	s.cache[c.Name] = c
	s.mu.Unlock()
	return nil
}

// Invalidate drops a cached entry, forcing the next Get to hit the database.
func (s *Store) Invalidate(name string) {
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
}
