package controller

import (
	"github.com/pkg/errors"

	"github.com/rikublock/xquery2/internal/state"
)

// eventTablesByTransaction are truncated via their owning transaction's
// block height; Bundle carries its own block_id and is handled
// separately.
var eventTablesByTransaction = []string{"transfers", "mints", "burns", "swaps", "syncs"}

// rewindOnce deletes event rows produced for blocks more recent than
// state.block_number - safetyBlocks and rewinds the indexer cursor by
// the same amount, matching the reference design's restart-safety rule.
// It runs once per Run call and is skipped while the indexer State row
// still has Discarded set; the coordinator's next cursor commit for
// that row writes Discarded back to false.
func (c *Controller) rewindOnce(safetyBlocks uint64) error {
	cursor, ok, err := c.state.Get(indexStateName)
	if err != nil {
		return errors.Wrap(err, "controller: read indexer state for rewind failed")
	}
	if !ok || cursor.BlockNumber == nil || cursor.Discarded {
		return nil
	}

	threshold := uint64(0)
	if *cursor.BlockNumber > safetyBlocks {
		threshold = *cursor.BlockNumber - safetyBlocks
	}

	tx := c.db.Begin()
	if tx.Error != nil {
		return errors.Wrap(tx.Error, "controller: begin rewind transaction failed")
	}

	for _, table := range eventTablesByTransaction {
		stmt := "DELETE FROM " + table + " WHERE transaction_id IN (" +
			"SELECT t.id FROM transactions t JOIN blocks b ON b.id = t.block_id WHERE b.number > ?)"
		if err := tx.Exec(stmt, threshold).Error; err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "controller: rewind delete from %s failed", table)
		}
	}
	if err := tx.Exec("DELETE FROM bundles WHERE block_id IN (SELECT id FROM blocks WHERE number > ?)", threshold).Error; err != nil {
		tx.Rollback()
		return errors.Wrap(err, "controller: rewind delete from bundles failed")
	}

	rewound := state.Cursor{
		Name:        indexStateName,
		BlockNumber: &threshold,
		Discarded:   true,
	}
	if err := c.state.Upsert(tx, rewound); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "controller: rewind cursor update failed")
	}

	if err := tx.Commit().Error; err != nil {
		return errors.Wrap(err, "controller: commit rewind transaction failed")
	}
	c.log.Infow("restart rewind complete", "threshold", threshold, "safety_blocks", safetyBlocks)
	return nil
}
