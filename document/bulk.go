package document

import (
	"time"

	"github.com/dataplane/orm/codec"
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/query"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// UpdateMany applies set to every document matching preds (spec §4.4
// bulk terminal "Model.update_many").
func (db *DB[M]) UpdateMany(set map[string]any, preds ...*query.FilterExpr) (int64, error) {
	if db.desc == nil {
		return 0, errNilDescriptor
	}
	defer db.reset()

	wireSet := bson.M{}
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
	filter, err := query.CompileBSON(db.desc, plan)
	if err != nil {
		return 0, err
	}
	res, err := db.collection().UpdateMany(db.dbctx.Context(), filter, bson.M{"$set": wireSet})
	if err != nil {
		return 0, dberrors.NewDriver(err, isTransient(err))
	}
	return res.ModifiedCount, nil
}

// DeleteMany removes every document matching preds (spec §4.4 bulk
// terminal "Model.delete_many").
func (db *DB[M]) DeleteMany(preds ...*query.FilterExpr) (int64, error) {
	if db.desc == nil {
		return 0, errNilDescriptor
	}
	defer db.reset()

	plan := query.NewPlan(preds...)
	filter, err := query.CompileBSON(db.desc, plan)
	if err != nil {
		return 0, err
	}

	if db.enablePurge != nil && *db.enablePurge {
		res, err := db.collection().DeleteMany(db.dbctx.Context(), filter)
		if err != nil {
			return 0, dberrors.NewDriver(err, isTransient(err))
		}
		return res.DeletedCount, nil
	}
	res, err := db.collection().UpdateMany(db.dbctx.Context(), filter, bson.M{"$set": bson.M{"deleted_at": time.Now().UTC()}})
	if err != nil {
		return 0, dberrors.NewDriver(err, isTransient(err))
	}
	return res.ModifiedCount, nil
}

// InsertMany is the Bulk Executor's batched insert entry point (spec
// §4.6).
func (db *DB[M]) InsertMany(objs []M) error {
	objs = nonZero(objs)
	if len(objs) == 0 {
		return nil
	}
	return db.Create(objs...)
}

// UpsertOne compiles to a filter-by-Keys ReplaceOne(upsert:true) (spec
// §4.6).
func (db *DB[M]) UpsertOne(spec query.UpsertSpec) error {
	return db.upsert([]query.UpsertSpec{spec})
}

// UpsertMany batches multiple upserts (spec §4.6 upsert_many).
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

	coll := db.collection()
	for _, spec := range specs {
		row := bson.M{}
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
			if wire == "id" {
				wire = mongoIDKey
			}
			row[wire] = v
		}

		filter := bson.M{}
		for _, k := range spec.Keys {
			wire := k
			if fd, ok := db.desc.FieldByName[k]; ok {
				wire = fd.WireName
			}
			if wire == "id" {
				wire = mongoIDKey
			}
			filter[wire] = row[wire]
			delete(row, wire)
		}

		if _, err := coll.UpdateOne(db.dbctx.Context(), filter, bson.M{"$set": row}, options.UpdateOne().SetUpsert(true)); err != nil {
			return dberrors.NewDriver(err, isTransient(err))
		}
	}
	return nil
}

// Cleanup permanently removes every soft-deleted document (supplemented
// feature, SPEC_FULL.md D.7).
func (db *DB[M]) Cleanup() error {
	if db.desc == nil {
		return errNilDescriptor
	}
	defer db.reset()
	_, err := db.collection().DeleteMany(db.dbctx.Context(), bson.M{"deleted_at": bson.M{"$ne": nil}})
	if err != nil {
		return dberrors.NewDriver(err, isTransient(err))
	}
	return nil
}
