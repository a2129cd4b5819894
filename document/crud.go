package document

import (
	"errors"
	"strings"
	"time"

	"github.com/dataplane/orm/binding"
	"github.com/dataplane/orm/codec"
	"github.com/dataplane/orm/consts"
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/query"
	"github.com/dataplane/orm/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type dirtyTracked interface {
	IsDirty() bool
	DirtyBits() []int
	ClearDirty()
}

// Create persists objs, stamping created_at/updated_at and dispatching
// CreateBefore/CreateAfter hooks around the write (spec §3, §4.1).
func (db *DB[M]) Create(objs ...M) (err error) {
	objs = nonZero(objs)
	if len(objs) == 0 {
		return nil
	}
	if db.desc == nil {
		return errNilDescriptor
	}
	defer db.reset()

	if !db.noHook {
		for i := range objs {
			if err = objs[i].CreateBefore(types.NewModelContext(db.dbctx, consts.PHASE_CREATE_BEFORE)); err != nil {
				return err
			}
		}
	}

	now := time.Now()
	for i := range objs {
		objs[i].SetID()
		objs[i].SetCreatedAt(now)
		objs[i].SetUpdatedAt(now)
	}

	// Batch encode is CPU-heavy and runs off the bounded Host Binding
	// Adapter slot (spec §4.11) rather than inline, so a burst of large
	// creates can't starve driver-I/O goroutines elsewhere in the process.
	var docs []codec.Doc
	err = binding.Default.Do(db.dbctx.Context(), func() error {
		var encErr error
		docs, encErr = codec.EncodeBatch(db.dbctx.Context(), db.desc, toModels(objs), 0)
		return encErr
	})
	if err != nil {
		return err
	}
	rows := make([]any, len(docs))
	for i, d := range docs {
		rows[i] = toMongoDoc(d)
	}

	if err := db.insertRows(rows); err != nil {
		return err
	}

	for _, o := range objs {
		if t, ok := any(o).(dirtyTracked); ok {
			t.ClearDirty()
		}
	}

	if !db.noHook {
		for i := range objs {
			if err = objs[i].CreateAfter(types.NewModelContext(db.dbctx, consts.PHASE_CREATE_AFTER)); err != nil {
				return err
			}
		}
	}
	return nil
}

// insertRows submits rows honoring the ordered/unordered partial-
// failure contract (spec §4.6), mirroring relational.createDocs.
// Unlike the relational backend, MongoDB's InsertMany natively reports
// per-document failures via mongo.BulkWriteException, so no replay is
// needed: ordered mode (the default) stops at the first failing chunk
// and reports the written prefix and failing index; unordered mode
// submits every chunk unordered and accumulates every per-document
// failure.
func (db *DB[M]) insertRows(rows []any) error {
	ordered := db.orderedOr(true)
	batchSize := batchSizeOr(db.batchSize, consts.DefaultCreateBatchSize)
	coll := db.collection()
	opts := options.InsertMany().SetOrdered(ordered)
	written := 0

	if !ordered {
		failures := make(map[int]error)
		for i := 0; i < len(rows); i += batchSize {
			end := min(i+batchSize, len(rows))
			chunk := rows[i:end]
			res, err := coll.InsertMany(db.dbctx.Context(), chunk, opts)
			if res != nil {
				written += len(res.InsertedIDs)
			}
			if err == nil {
				continue
			}
			var bwe *mongo.BulkWriteException
			if errors.As(err, &bwe) {
				for _, we := range bwe.WriteErrors {
					failures[i+we.Index] = dberrors.NewDriver(errors.New(we.Message), isTransient(errors.New(we.Message)))
				}
				continue
			}
			for j := range chunk {
				failures[i+j] = dberrors.NewDriver(err, isTransient(err))
			}
		}
		if len(failures) > 0 {
			return &query.BulkError{Written: written, Failures: failures}
		}
		return nil
	}

	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		chunk := rows[i:end]
		res, err := coll.InsertMany(db.dbctx.Context(), chunk, opts)
		if res != nil {
			written += len(res.InsertedIDs)
		}
		if err == nil {
			continue
		}
		failIndex := i
		var bwe *mongo.BulkWriteException
		if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
			failIndex = i + bwe.WriteErrors[0].Index
		}
		return &query.BulkError{
			Written: written,
			Index:   failIndex,
			Err:     dberrors.NewDriver(err, isTransient(err)),
		}
	}
	return nil
}

// Update writes only the dirty fields of each persistent instance via
// $set (spec §8.1 dirty-minimization invariant).
func (db *DB[M]) Update(objs ...M) (err error) {
	objs = nonZero(objs)
	if len(objs) == 0 {
		return nil
	}
	if db.desc == nil {
		return errNilDescriptor
	}
	defer db.reset()

	if !db.noHook {
		for i := range objs {
			if err = objs[i].UpdateBefore(types.NewModelContext(db.dbctx, consts.PHASE_UPDATE_BEFORE)); err != nil {
				return err
			}
		}
	}

	now := time.Now()
	coll := db.collection()
	for _, o := range objs {
		o.SetUpdatedAt(now)

		var dirtyBits []int
		if dt, ok := any(o).(dirtyTracked); ok {
			if !dt.IsDirty() {
				continue
			}
			dirtyBits = dt.DirtyBits()
		}

		doc, err := codec.EncodeInstance(db.desc, o, dirtyBits != nil, dirtyBits)
		if err != nil {
			return err
		}
		doc["updated_at"] = now.UTC()
		delete(doc, "id")

		filter := bson.M{mongoIDKey: o.GetID()}
		update := bson.M{"$set": doc}
		if _, err := coll.UpdateOne(db.dbctx.Context(), filter, update); err != nil {
			return dberrors.NewDriver(err, isTransient(err))
		}
		if dt, ok := any(o).(dirtyTracked); ok {
			dt.ClearDirty()
		}
	}

	if !db.noHook {
		for i := range objs {
			if err = objs[i].UpdateAfter(types.NewModelContext(db.dbctx, consts.PHASE_UPDATE_AFTER)); err != nil {
				return err
			}
		}
	}
	return nil
}

// UpdateByID writes a single field on one document by primary key,
// bypassing model hooks.
func (db *DB[M]) UpdateByID(id string, field string, value any) error {
	if db.desc == nil {
		return errNilDescriptor
	}
	defer db.reset()

	wire := field
	if fd, ok := db.desc.FieldByName[field]; ok {
		wire = fd.WireName
		v, err := codec.EncodeFilterValue(fd, value)
		if err != nil {
			return err
		}
		value = v
	}
	_, err := db.collection().UpdateOne(db.dbctx.Context(), bson.M{mongoIDKey: id}, bson.M{"$set": bson.M{wire: value}})
	if err != nil {
		return dberrors.NewDriver(err, isTransient(err))
	}
	return nil
}

// Delete soft-deletes (sets deleted_at) or permanently removes each
// instance, per Purge()/WithPurge, dispatching Delete hooks.
func (db *DB[M]) Delete(objs ...M) (err error) {
	objs = nonZero(objs)
	if len(objs) == 0 {
		return nil
	}
	if db.desc == nil {
		return errNilDescriptor
	}
	defer db.reset()

	if !db.noHook {
		for i := range objs {
			if err = objs[i].DeleteBefore(types.NewModelContext(db.dbctx, consts.PHASE_DELETE_BEFORE)); err != nil {
				return err
			}
		}
	}

	ids := make([]string, 0, len(objs))
	purge := false
	for _, o := range objs {
		ids = append(ids, o.GetID())
		if db.purge(o) {
			purge = true
		}
	}

	coll := db.collection()
	filter := bson.M{mongoIDKey: bson.M{"$in": ids}}
	var dbErr error
	if purge {
		_, dbErr = coll.DeleteMany(db.dbctx.Context(), filter)
	} else {
		_, dbErr = coll.UpdateMany(db.dbctx.Context(), filter, bson.M{"$set": bson.M{"deleted_at": time.Now().UTC()}})
	}
	if dbErr != nil {
		return dberrors.NewDriver(dbErr, isTransient(dbErr))
	}

	if !db.noHook {
		for i := range objs {
			if err = objs[i].DeleteAfter(types.NewModelContext(db.dbctx, consts.PHASE_DELETE_AFTER)); err != nil {
				return err
			}
		}
	}
	return nil
}

func toModels[M types.Model](objs []M) []types.Model {
	out := make([]types.Model, len(objs))
	for i, o := range objs {
		out[i] = o
	}
	return out
}

// isTransient classifies a driver error as retryable (spec §7), mirroring
// relational.isTransient's conservative substring heuristic.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "timeout", "deadline", "eof", "no reachable servers"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
