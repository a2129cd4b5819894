// Package query implements the Filter & Query Builder (spec §4.4): a
// typed, composable expression tree that is built without touching the
// database and compiled to a driver-native form only at execute time.
// It also hosts the Database[M]/DatabaseOption[M] contracts (moved here
// from the model layer to avoid an import cycle: these interfaces
// reference FilterExpr and QueryPlan, which in turn reference
// types.Model).
package query

// Op is the closed set of predicate operators a FilterExpr leaf may
// carry. Compilation translates each to the backend's native operator
// (spec §4.4: Eq -> $eq, In -> $in, ...).
type Op int

const (
	OpEq Op = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpNotIn
	OpLike
	OpIsNull
	OpIsNotNull
)

// ExprKind tags whether a FilterExpr node is a predicate leaf or a
// logical combinator.
type ExprKind int

const (
	ExprLeaf ExprKind = iota
	ExprAnd
	ExprOr
	ExprNot
)

// FilterExpr is one node of the Filter Expression tree (spec §4.4).
// Leaves carry Field/Op/Value; And/Or carry Children; Not carries
// exactly one entry in Children.
type FilterExpr struct {
	Kind     ExprKind
	Field    string
	Op       Op
	Value    any
	Children []*FilterExpr
}

// Eq builds a leaf "field = value" predicate.
func Eq(field string, value any) *FilterExpr { return leaf(field, OpEq, value) }

// Ne builds a leaf "field != value" predicate.
func Ne(field string, value any) *FilterExpr { return leaf(field, OpNe, value) }

// Gt builds a leaf "field > value" predicate.
func Gt(field string, value any) *FilterExpr { return leaf(field, OpGt, value) }

// Gte builds a leaf "field >= value" predicate.
func Gte(field string, value any) *FilterExpr { return leaf(field, OpGte, value) }

// Lt builds a leaf "field < value" predicate.
func Lt(field string, value any) *FilterExpr { return leaf(field, OpLt, value) }

// Lte builds a leaf "field <= value" predicate.
func Lte(field string, value any) *FilterExpr { return leaf(field, OpLte, value) }

// In builds a leaf "field IN (values...)" predicate.
func In(field string, values ...any) *FilterExpr { return leaf(field, OpIn, values) }

// NotIn builds a leaf "field NOT IN (values...)" predicate.
func NotIn(field string, values ...any) *FilterExpr { return leaf(field, OpNotIn, values) }

// Like builds a leaf pattern-match predicate (relational LIKE /
// document regex, depending on backend).
func Like(field string, pattern string) *FilterExpr { return leaf(field, OpLike, pattern) }

// IsNull builds a leaf "field IS NULL" predicate.
func IsNull(field string) *FilterExpr { return leaf(field, OpIsNull, nil) }

// IsNotNull builds a leaf "field IS NOT NULL" predicate.
func IsNotNull(field string) *FilterExpr { return leaf(field, OpIsNotNull, nil) }

func leaf(field string, op Op, value any) *FilterExpr {
	return &FilterExpr{Kind: ExprLeaf, Field: field, Op: op, Value: value}
}

// And combines predicates with logical AND. A nil/empty arg list
// returns nil (no filter).
func And(preds ...*FilterExpr) *FilterExpr { return combine(ExprAnd, preds) }

// Or combines predicates with logical OR.
func Or(preds ...*FilterExpr) *FilterExpr { return combine(ExprOr, preds) }

func combine(kind ExprKind, preds []*FilterExpr) *FilterExpr {
	filtered := preds[:0:0]
	for _, p := range preds {
		if p != nil {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &FilterExpr{Kind: kind, Children: filtered}
}

// Not negates a predicate.
func Not(pred *FilterExpr) *FilterExpr {
	if pred == nil {
		return nil
	}
	return &FilterExpr{Kind: ExprNot, Children: []*FilterExpr{pred}}
}
