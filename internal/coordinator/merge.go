package coordinator

import (
	"context"
	"reflect"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"

	"github.com/rikublock/xquery2/internal/store"
)

// mergeObjects writes every produced domain object within tx, routing
// *store.Bundle rows through the batched pgx path when there are
// enough of them to matter (a processor bundle-stage job over a wide
// range can return hundreds), and everything else through the
// generic per-row upsert.
//
// Note: the Bundle batch commits in its own, separate pgx transaction
// before tx is committed. Bundle rows are idempotent (ON CONFLICT DO
// UPDATE, keyed by block+logIndex) and carry no ordering invariant of
// their own, so a crash between the two leaves at most an already
// up-to-date set of Bundle rows with no matching cursor advance yet,
// recomputed identically on retry; it does not violate per-block
// atomicity for the cursor-bearing row set committed by tx.
func (c *Coordinator) mergeObjects(ctx context.Context, tx *gorm.DB, objects []interface{}) error {
	var bundles []*store.Bundle
	rest := make([]interface{}, 0, len(objects))
	for _, obj := range objects {
		if b, ok := obj.(*store.Bundle); ok {
			bundles = append(bundles, b)
			continue
		}
		rest = append(rest, obj)
	}

	if len(bundles) > 1 && c.pgxPool != nil {
		if err := bulkUpsertBundles(ctx, c.pgxPool, bundles); err != nil {
			return err
		}
	} else {
		for _, b := range bundles {
			rest = append(rest, b)
		}
	}

	for _, obj := range rest {
		if err := mergeOne(tx, obj); err != nil {
			return err
		}
	}
	return nil
}

// mergeOne inserts obj if its surrogate key is unset, else updates the
// existing row, matching the reference design's "merge if exists else insert"
// upsert semantics for rows workers/stages already resolved by ID
// (count/rollup stages) or left unset (freshly produced event rows).
func mergeOne(tx *gorm.DB, obj interface{}) error {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return errors.Errorf("coordinator: merge target %T is not a struct pointer", obj)
	}
	id := v.Elem().FieldByName("ID")
	if !id.IsValid() || id.Kind() != reflect.Uint {
		return errors.Errorf("coordinator: merge target %T has no uint ID field", obj)
	}

	if id.Uint() == 0 {
		if err := tx.Create(obj).Error; err != nil {
			return errors.Wrapf(err, "coordinator: create %T failed", obj)
		}
		return nil
	}
	if err := tx.Save(obj).Error; err != nil {
		return errors.Wrapf(err, "coordinator: save %T failed", obj)
	}
	return nil
}
