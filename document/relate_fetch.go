package document

import (
	"github.com/dataplane/orm/codec"
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/model"
	"github.com/dataplane/orm/relation"
	"github.com/dataplane/orm/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// fetcher implements relation.Fetcher against the same *mongo.Database
// a Database[M] borrowed for its primary query (spec §4.8).
type fetcher struct {
	dbase *mongo.Database
	dbctx *types.DatabaseContext
}

func (db *DB[M]) relate() relation.Fetcher {
	return &fetcher{dbase: db.dbase, dbctx: db.dbctx}
}

func (f *fetcher) FetchByKeys(rel *types.RelationDescriptor, keys []string) (map[string][]types.Model, error) {
	target := rel.NewTarget()
	desc := model.DescriptorOfInstance(target)
	if desc == nil {
		return nil, dberrors.NewValidation("", "relation target type was never registered with model.Register")
	}

	filterKey, groupKey := relateJoinColumn(rel)
	coll := f.dbase.Collection(rel.TargetTable)
	cur, err := coll.Find(f.dbctx.Context(), bson.M{filterKey: bson.M{"$in": keys}})
	if err != nil {
		return nil, dberrors.NewDriver(err, isTransient(err))
	}
	defer cur.Close(f.dbctx.Context())

	out := map[string][]types.Model{}
	for cur.Next(f.dbctx.Context()) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, dberrors.NewDriver(err, false)
		}
		doc := fromMongoDoc(toDoc(raw))
		inst := rel.NewTarget()
		if err := codec.DecodeRow(desc, doc, inst); err != nil {
			return nil, err
		}
		key, _ := doc[groupKey].(string)
		out[key] = append(out[key], inst)
	}
	if err := cur.Err(); err != nil {
		return nil, dberrors.NewDriver(err, isTransient(err))
	}
	return out, nil
}

// relateJoinColumn returns the raw mongo filter key and the
// post-fromMongoDoc wire key the follow-up find() groups on: the
// target's own _id/id for ManyToOne, the target's FK key otherwise.
func relateJoinColumn(rel *types.RelationDescriptor) (filterKey, groupKey string) {
	if rel.Kind == types.RelManyToOne {
		if rel.TargetPK == "id" {
			return mongoIDKey, "id"
		}
		return rel.TargetPK, rel.TargetPK
	}
	return rel.FKOnTarget, rel.FKOnTarget
}
