package query

import (
	"github.com/dataplane/orm/codec"
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// CompileBSON compiles plan's filter against desc into a MongoDB
// filter document (spec §4.4: "document: recursive emission to BSON
// filter documents; operators translated"). Sibling leaves on distinct
// fields are merged by implicit document concatenation; an explicit
// $and is only emitted when required (duplicate field, or a
// caller-built Or/Not).
func CompileBSON(desc *types.ModelDescriptor, plan *QueryPlan) (bson.M, error) {
	filter, err := compileBSONExpr(desc, plan.Filter)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		filter = bson.M{}
	}

	if plan.Cursor != nil {
		op := "$gt"
		if !plan.Cursor.Next {
			op = "$lt"
		}
		mergeBSON(filter, bson.M{wireName(desc, plan.Cursor.Field): bson.M{op: plan.Cursor.Value}})
	}
	if !plan.TimeRangeStart.IsZero() || !plan.TimeRangeEnd.IsZero() {
		mergeBSON(filter, bson.M{plan.TimeRangeField: bson.M{"$gte": plan.TimeRangeStart, "$lte": plan.TimeRangeEnd}})
	}
	if len(plan.RawFilter) > 0 {
		mergeBSON(filter, bson.M(plan.RawFilter))
	}

	return filter, nil
}

func wireName(desc *types.ModelDescriptor, field string) string {
	if fd, ok := desc.FieldByName[field]; ok {
		return fd.WireName
	}
	return field
}

// mergeBSON folds src's keys into dst, promoting dst to an explicit
// $and when a key collision would otherwise silently overwrite a
// predicate (spec §4.4 "explicit $and when the same field appears
// twice").
func mergeBSON(dst bson.M, src bson.M) {
	for k, v := range src {
		if _, collide := dst[k]; collide {
			existing := bson.M{k: dst[k]}
			delete(dst, k)
			and, _ := dst["$and"].([]bson.M)
			and = append(and, existing, bson.M{k: v})
			dst["$and"] = and
			continue
		}
		dst[k] = v
	}
}

func compileBSONExpr(desc *types.ModelDescriptor, e *FilterExpr) (bson.M, error) {
	if e == nil {
		return nil, nil
	}
	switch e.Kind {
	case ExprLeaf:
		return compileBSONLeaf(desc, e)
	case ExprNot:
		inner, err := compileBSONExpr(desc, e.Children[0])
		if err != nil {
			return nil, err
		}
		return bson.M{"$nor": []bson.M{inner}}, nil
	case ExprAnd:
		out := bson.M{}
		for _, c := range e.Children {
			cm, err := compileBSONExpr(desc, c)
			if err != nil {
				return nil, err
			}
			mergeBSON(out, cm)
		}
		return out, nil
	case ExprOr:
		parts := make([]bson.M, 0, len(e.Children))
		for _, c := range e.Children {
			cm, err := compileBSONExpr(desc, c)
			if err != nil {
				return nil, err
			}
			parts = append(parts, cm)
		}
		return bson.M{"$or": parts}, nil
	default:
		return nil, dberrors.NewValidation("", "unknown filter expression kind")
	}
}

func compileBSONLeaf(desc *types.ModelDescriptor, e *FilterExpr) (bson.M, error) {
	wire := wireName(desc, e.Field)
	fd, ok := desc.FieldByName[e.Field]

	encode := func(v any) (any, error) {
		if !ok {
			return v, nil
		}
		return codec.EncodeFilterValue(fd, v)
	}

	switch e.Op {
	case OpEq:
		v, err := encode(e.Value)
		if err != nil {
			return nil, err
		}
		return bson.M{wire: v}, nil
	case OpNe:
		v, err := encode(e.Value)
		if err != nil {
			return nil, err
		}
		return bson.M{wire: bson.M{"$ne": v}}, nil
	case OpGt:
		v, err := encode(e.Value)
		if err != nil {
			return nil, err
		}
		return bson.M{wire: bson.M{"$gt": v}}, nil
	case OpGte:
		v, err := encode(e.Value)
		if err != nil {
			return nil, err
		}
		return bson.M{wire: bson.M{"$gte": v}}, nil
	case OpLt:
		v, err := encode(e.Value)
		if err != nil {
			return nil, err
		}
		return bson.M{wire: bson.M{"$lt": v}}, nil
	case OpLte:
		v, err := encode(e.Value)
		if err != nil {
			return nil, err
		}
		return bson.M{wire: bson.M{"$lte": v}}, nil
	case OpIn:
		values, _ := e.Value.([]any)
		encoded := make([]any, 0, len(values))
		for _, v := range values {
			ev, err := encode(v)
			if err != nil {
				return nil, err
			}
			encoded = append(encoded, ev)
		}
		return bson.M{wire: bson.M{"$in": encoded}}, nil
	case OpNotIn:
		values, _ := e.Value.([]any)
		encoded := make([]any, 0, len(values))
		for _, v := range values {
			ev, err := encode(v)
			if err != nil {
				return nil, err
			}
			encoded = append(encoded, ev)
		}
		return bson.M{wire: bson.M{"$nin": encoded}}, nil
	case OpLike:
		s, _ := e.Value.(string)
		return bson.M{wire: bson.M{"$regex": s}}, nil
	case OpIsNull:
		return bson.M{wire: bson.M{"$eq": nil}}, nil
	case OpIsNotNull:
		return bson.M{wire: bson.M{"$ne": nil}}, nil
	default:
		return nil, dberrors.NewValidation(e.Field, "unknown operator")
	}
}
