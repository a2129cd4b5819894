package relational

import (
	"github.com/dataplane/orm/codec"
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/model"
	"github.com/dataplane/orm/relation"
	"github.com/dataplane/orm/types"
	"gorm.io/gorm"
)

// fetcher implements relation.Fetcher against the same *gorm.DB
// connection a Database[M] borrowed for its primary query, so a
// selectinload follow-up query runs on the same session/transaction.
type fetcher struct {
	gdb *gorm.DB
}

// relate returns a relation.Fetcher bound to db's connection, used by
// List/Get/First to run the selectinload follow-up query (spec §4.8).
func (db *DB[M]) relate() relation.Fetcher {
	return &fetcher{gdb: db.gdb}
}

func (f *fetcher) FetchByKeys(rel *types.RelationDescriptor, keys []string) (map[string][]types.Model, error) {
	target := rel.NewTarget()
	desc := model.DescriptorOfInstance(target)
	if desc == nil {
		return nil, dberrors.NewValidation("", "relation target type was never registered with model.Register")
	}

	col, grouped := relateJoinColumn(rel)

	var rows []map[string]any
	sess := f.gdb.Table(rel.TargetTable)
	if err := sess.Where(quoteIdent(col)+" IN ?", keys).Find(&rows).Error; err != nil {
		return nil, dberrors.NewDriver(err, isTransient(err))
	}

	out := make(map[string][]types.Model, len(rows))
	for _, row := range rows {
		inst := rel.NewTarget()
		if err := codec.DecodeRow(desc, codec.Doc(row), inst); err != nil {
			return nil, err
		}
		key, _ := row[col].(string)
		out[key] = append(out[key], inst)
	}
	_ = grouped
	return out, nil
}

// relateJoinColumn returns the column the follow-up query filters and
// groups on: the target's own PK for ManyToOne (one row per key), the
// target's FK column otherwise (many rows may share a key).
func relateJoinColumn(rel *types.RelationDescriptor) (col string, manyPerKey bool) {
	if rel.Kind == types.RelManyToOne {
		return rel.TargetPK, false
	}
	return rel.FKOnTarget, true
}

func quoteIdent(s string) string { return `"` + s + `"` }
