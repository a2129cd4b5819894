package relational

import (
	"strings"
	"time"

	"github.com/dataplane/orm/binding"
	"github.com/dataplane/orm/codec"
	"github.com/dataplane/orm/consts"
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/query"
	"github.com/dataplane/orm/types"
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

	if err = db.createDocs(docs); err != nil {
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

// createDocs submits docs honoring the ordered/unordered partial-
// failure contract (spec §4.6). Ordered mode (the default) batches
// rows into multi-row INSERTs for throughput, but a chunk that fails
// is atomic with no per-row detail from the driver, so on failure it
// is replayed single-row to find the exact prefix written and the
// failing index. Unordered mode always submits one row at a time so
// every row gets its own pass/fail outcome.
func (db *DB[M]) createDocs(docs []codec.Doc) error {
	sess := db.session()

	if !db.orderedOr(true) {
		failures := make(map[int]error)
		written := 0
		for i, d := range docs {
			if err := sess.Create(d).Error; err != nil {
				failures[i] = dberrors.NewDriver(err, isTransient(err))
				continue
			}
			written++
		}
		if len(failures) > 0 {
			return &query.BulkError{Written: written, Failures: failures}
		}
		return nil
	}

	batchSize := batchSizeOr(db.batchSize, consts.DefaultCreateBatchSize)
	for i := 0; i < len(docs); i += batchSize {
		end := min(i+batchSize, len(docs))
		chunk := docs[i:end]
		if err := sess.Create(chunk).Error; err == nil {
			continue
		}
		for j, d := range chunk {
			if err := sess.Create(d).Error; err != nil {
				return &query.BulkError{
					Written: i + j,
					Index:   i + j,
					Err:     dberrors.NewDriver(err, isTransient(err)),
				}
			}
		}
	}
	return nil
}

// Update writes only the dirty fields of each persistent instance
// (spec §8.1 dirty-minimization invariant): the emitted UPDATE
// references exactly the set bits in the instance's dirty bitmap, plus
// the primary key in the WHERE clause.
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
	sess := db.session()
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
		if err := sess.Where(`"id" = ?`, o.GetID()).Updates(doc).Error; err != nil {
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

// UpdateByID writes a single column on one record by primary key,
// bypassing model hooks (spec §6 query builder surface).
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
	if err := db.session().Where(`"id" = ?`, id).Update(wire, value).Error; err != nil {
		return dberrors.NewDriver(err, isTransient(err))
	}
	return nil
}

// Delete soft-deletes (or permanently removes, per Purge()/WithPurge)
// each instance, dispatching DeleteBefore/DeleteAfter hooks.
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

	sess := db.session()
	var dbErr error
	if purge {
		dbErr = sess.Unscoped().Where(`"id" IN ?`, ids).Delete(new(map[string]any)).Error
	} else {
		dbErr = sess.Where(`"id" IN ?`, ids).Delete(new(map[string]any)).Error
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

// isTransient classifies a driver error as retryable. This is a
// conservative heuristic grounded on spec §7's transient/permanent
// split: connection-level failures are transient, constraint
// violations are not.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "timeout", "deadline", "eof", "serialize"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
