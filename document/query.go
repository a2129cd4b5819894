package document

import (
	"reflect"

	"github.com/dataplane/orm/codec"
	"github.com/dataplane/orm/consts"
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/query"
	"github.com/dataplane/orm/relation"
	"github.com/dataplane/orm/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Find starts a QueryPlan builder scoped to this Database[M] (spec
// §4.4 "Model.find(*preds) -> QueryPlan").
func (db *DB[M]) Find(preds ...*query.FilterExpr) *query.Builder[M] {
	return &query.Builder[M]{DB: db, Plan: query.NewPlan(preds...)}
}

func (db *DB[M]) findOptions(plan *query.QueryPlan) *options.FindOptionsBuilder {
	opts := options.Find()
	if plan.Limit > 0 {
		opts = opts.SetLimit(int64(plan.Limit))
	}
	if plan.Offset > 0 {
		opts = opts.SetSkip(int64(plan.Offset))
	}
	if len(plan.OrderBy) > 0 {
		sort := bson.D{}
		for _, t := range plan.OrderBy {
			dir := 1
			if t.Dir == query.Desc {
				dir = -1
			}
			wire := t.Field
			if fd, ok := db.desc.FieldByName[t.Field]; ok {
				wire = fd.WireName
			}
			sort = append(sort, bson.E{Key: wire, Value: dir})
		}
		opts = opts.SetSort(sort)
	}
	if len(plan.Select) > 0 {
		proj := bson.D{}
		for _, f := range plan.Select {
			wire := f
			if fd, ok := db.desc.FieldByName[f]; ok {
				wire = fd.WireName
			}
			proj = append(proj, bson.E{Key: wire, Value: 1})
		}
		opts = opts.SetProjection(proj)
	}
	return opts
}

// List executes plan and writes every match into dest.
func (db *DB[M]) List(plan *query.QueryPlan, dest *[]M) error {
	if db.desc == nil {
		return errNilDescriptor
	}
	strategy, names := db.expandStrategy, db.expandNames
	defer db.reset()
	if plan == nil {
		plan = query.NewPlan()
	}

	filter, err := query.CompileBSON(db.desc, plan)
	if err != nil {
		return err
	}
	cur, err := db.collection().Find(db.dbctx.Context(), filter, db.findOptions(plan))
	if err != nil {
		return dberrors.NewDriver(err, isTransient(err))
	}
	defer cur.Close(db.dbctx.Context())

	out := make([]M, 0)
	for cur.Next(db.dbctx.Context()) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return dberrors.NewDriver(err, false)
		}
		inst := newInstance[M]()
		if err := codec.DecodeRow(db.desc, fromMongoDoc(toDoc(raw)), inst); err != nil {
			return err
		}
		out = append(out, inst)
	}
	if err := cur.Err(); err != nil {
		return dberrors.NewDriver(err, isTransient(err))
	}
	*dest = out
	return relation.Apply(*dest, db.desc, strategy, names, db.relate())
}

// Get loads the document with primary key id into dest.
func (db *DB[M]) Get(dest M, id string) error {
	if db.desc == nil {
		return errNilDescriptor
	}
	strategy, names := db.expandStrategy, db.expandNames
	defer db.reset()

	if err := dest.GetBefore(types.NewModelContext(db.dbctx, consts.PHASE_GET_BEFORE)); err != nil {
		return err
	}
	var raw bson.M
	err := db.collection().FindOne(db.dbctx.Context(), bson.M{mongoIDKey: id}).Decode(&raw)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return dberrors.NewNotFound("id")
		}
		return dberrors.NewDriver(err, isTransient(err))
	}
	if err := codec.DecodeRow(db.desc, fromMongoDoc(toDoc(raw)), dest); err != nil {
		return err
	}
	if err := relation.Apply([]M{dest}, db.desc, strategy, names, db.relate()); err != nil {
		return err
	}
	return dest.GetAfter(types.NewModelContext(db.dbctx, consts.PHASE_GET_AFTER))
}

// First returns the first document ordered by primary key.
func (db *DB[M]) First(dest M) error {
	if db.desc == nil {
		return errNilDescriptor
	}
	strategy, names := db.expandStrategy, db.expandNames
	defer db.reset()

	opts := options.FindOne().SetSort(bson.D{{Key: mongoIDKey, Value: 1}})
	var raw bson.M
	err := db.collection().FindOne(db.dbctx.Context(), bson.M{}, opts).Decode(&raw)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return dberrors.NewNotFound("id")
		}
		return dberrors.NewDriver(err, isTransient(err))
	}
	if err := codec.DecodeRow(db.desc, fromMongoDoc(toDoc(raw)), dest); err != nil {
		return err
	}
	return relation.Apply([]M{dest}, db.desc, strategy, names, db.relate())
}

// Count returns the number of documents matching plan.
func (db *DB[M]) Count(plan *query.QueryPlan, out *int64) error {
	if db.desc == nil {
		return errNilDescriptor
	}
	defer db.reset()
	if plan == nil {
		plan = query.NewPlan()
	}
	filter, err := query.CompileBSON(db.desc, plan)
	if err != nil {
		return err
	}
	n, err := db.collection().CountDocuments(db.dbctx.Context(), filter)
	if err != nil {
		return dberrors.NewDriver(err, isTransient(err))
	}
	*out = n
	return nil
}

// Exists reports whether any document matches plan.
func (db *DB[M]) Exists(plan *query.QueryPlan) (bool, error) {
	var n int64
	if err := db.Count(plan, &n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Aggregate computes agg over field across documents matching plan via
// a $match/$group pipeline.
func (db *DB[M]) Aggregate(plan *query.QueryPlan, agg query.AggOp, field string) (float64, error) {
	if db.desc == nil {
		return 0, errNilDescriptor
	}
	defer db.reset()
	if plan == nil {
		plan = query.NewPlan()
	}

	filter, err := query.CompileBSON(db.desc, plan)
	if err != nil {
		return 0, err
	}
	wire := field
	if fd, ok := db.desc.FieldByName[field]; ok {
		wire = fd.WireName
	}
	op, err := aggOperator(agg)
	if err != nil {
		return 0, err
	}

	var operand any = "$" + wire
	if agg == query.AggCount {
		// Like SQL COUNT(field): 1 per matched document whose field is set and not null.
		operand = bson.D{{Key: "$cond", Value: bson.A{bson.D{{Key: "$gt", Value: bson.A{"$" + wire, nil}}}, 1, 0}}}
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: filter}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "value", Value: bson.D{{Key: op, Value: operand}}},
		}}},
	}
	cur, err := db.collection().Aggregate(db.dbctx.Context(), pipeline)
	if err != nil {
		return 0, dberrors.NewDriver(err, isTransient(err))
	}
	defer cur.Close(db.dbctx.Context())

	var result struct {
		Value float64 `bson:"value"`
	}
	if cur.Next(db.dbctx.Context()) {
		if err := cur.Decode(&result); err != nil {
			return 0, dberrors.NewDriver(err, false)
		}
	}
	return result.Value, nil
}

func aggOperator(agg query.AggOp) (string, error) {
	switch agg {
	case query.AggSum:
		return "$sum", nil
	case query.AggAvg:
		return "$avg", nil
	case query.AggMin:
		return "$min", nil
	case query.AggMax:
		return "$max", nil
	case query.AggCount:
		return "$sum", nil
	default:
		return "", dberrors.NewValidation("", "unknown aggregation operator")
	}
}

func newInstance[M types.Model]() M {
	typ := reflect.TypeOf(*new(M)).Elem()
	return reflect.New(typ).Interface().(M) //nolint:errcheck
}

func toDoc(raw bson.M) codec.Doc {
	doc := make(codec.Doc, len(raw))
	for k, v := range raw {
		doc[k] = v
	}
	return doc
}
