package relational

import (
	"fmt"

	"github.com/dataplane/orm/codec"
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/query"
	"gorm.io/gorm/clause"
)

// UpdateMany applies set to every record matching preds (spec §4.4
// bulk terminal "Model.update_many").
func (db *DB[M]) UpdateMany(set map[string]any, preds ...*query.FilterExpr) (int64, error) {
	if db.desc == nil {
		return 0, errNilDescriptor
	}
	defer db.reset()

	wireSet := make(map[string]any, len(set))
	for k, v := range set {
		wire := k
		if fd, ok := db.desc.FieldByName[k]; ok {
			wire = fd.WireName
			encoded, err := codec.EncodeFilterValue(fd, v)
			if err != nil {
				return 0, err
			}
			v = encoded
		}
		wireSet[wire] = v
	}

	plan := query.NewPlan(preds...)
	sess, err := db.applyPlan(db.session(), plan)
	if err != nil {
		return 0, err
	}
	res := sess.Updates(wireSet)
	if res.Error != nil {
		return 0, dberrors.NewDriver(res.Error, isTransient(res.Error))
	}
	return res.RowsAffected, nil
}

// DeleteMany removes every record matching preds (spec §4.4 bulk
// terminal "Model.delete_many").
func (db *DB[M]) DeleteMany(preds ...*query.FilterExpr) (int64, error) {
	if db.desc == nil {
		return 0, errNilDescriptor
	}
	defer db.reset()

	plan := query.NewPlan(preds...)
	sess := db.session()
	if db.enablePurge != nil && *db.enablePurge {
		sess = sess.Unscoped()
	}
	sess, err := db.applyPlan(sess, plan)
	if err != nil {
		return 0, err
	}
	res := sess.Delete(new(map[string]any))
	if res.Error != nil {
		return 0, dberrors.NewDriver(res.Error, isTransient(res.Error))
	}
	return res.RowsAffected, nil
}

// InsertMany is the Bulk Executor's batched insert entry point (spec
// §4.6): above the parallel-codec threshold, encoding fans out across
// an errgroup pool. In ordered mode (the default) the SQL submission is
// chunked into batchSize-row multi-row INSERTs within a single call;
// unordered mode submits one row at a time (see createDocs).
func (db *DB[M]) InsertMany(objs []M) error {
	objs = nonZero(objs)
	if len(objs) == 0 {
		return nil
	}
	return db.Create(objs...)
}

// UpsertOne compiles to ON CONFLICT(keys) DO UPDATE SET ... (spec
// §4.6).
func (db *DB[M]) UpsertOne(spec query.UpsertSpec) error {
	return db.upsert([]query.UpsertSpec{spec})
}

// UpsertMany batches multiple upserts into one conflict clause per
// call (spec §4.6 upsert_many).
func (db *DB[M]) UpsertMany(specs []query.UpsertSpec) error {
	return db.upsert(specs)
}

func (db *DB[M]) upsert(specs []query.UpsertSpec) error {
	if db.desc == nil {
		return errNilDescriptor
	}
	defer db.reset()
	if len(specs) == 0 {
		return nil
	}

	conflictCols := make([]clause.Column, 0, len(specs[0].Keys))
	for _, k := range specs[0].Keys {
		wire := k
		if fd, ok := db.desc.FieldByName[k]; ok {
			wire = fd.WireName
		}
		conflictCols = append(conflictCols, clause.Column{Name: wire})
	}

	updateCols := make([]string, 0)
	seen := map[string]struct{}{}
	rows := make([]map[string]any, 0, len(specs))
	for _, spec := range specs {
		row := make(map[string]any, len(spec.Data))
		for k, v := range spec.Data {
			wire := k
			if fd, ok := db.desc.FieldByName[k]; ok {
				wire = fd.WireName
				encoded, err := codec.EncodeFilterValue(fd, v)
				if err != nil {
					return err
				}
				v = encoded
			}
			row[wire] = v
			if _, ok := seen[wire]; !ok {
				seen[wire] = struct{}{}
				updateCols = append(updateCols, wire)
			}
		}
		rows = append(rows, row)
	}

	sess := db.session().Clauses(clause.OnConflict{
		Columns:   conflictCols,
		DoUpdates: clause.AssignmentColumns(updateCols),
	})
	if err := sess.Create(rows).Error; err != nil {
		return dberrors.NewDriver(err, isTransient(err))
	}
	return nil
}

// Cleanup permanently removes every soft-deleted record (supplemented
// feature, SPEC_FULL.md D.7; grounded on the teacher's Cleanup).
func (db *DB[M]) Cleanup() error {
	if db.desc == nil {
		return errNilDescriptor
	}
	defer db.reset()
	if err := db.session().Unscoped().Where(fmt.Sprintf("%q IS NOT NULL", "deleted_at")).Delete(new(map[string]any)).Error; err != nil {
		return dberrors.NewDriver(err, isTransient(err))
	}
	return nil
}
