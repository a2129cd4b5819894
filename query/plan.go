package query

import (
	"time"

	"github.com/dataplane/orm/consts"
)

// OrderDir is the sort direction of one OrderTerm.
type OrderDir int

const (
	Asc OrderDir = iota
	Desc
)

// OrderTerm is one field in an ORDER BY clause. Compile order always
// matches caller order (spec §4.4 "order_by is stable").
type OrderTerm struct {
	Field string
	Dir   OrderDir
}

// AggOp is the closed set of supported aggregation functions.
type AggOp int

const (
	AggSum AggOp = iota
	AggAvg
	AggMin
	AggMax
	AggCount
)

// HavingClause filters post-aggregation (spec §4.4).
type HavingClause struct {
	Agg   AggOp
	Field string
	Op    Op
	Value any
}

// IndexHint names an index and how strongly the backend should prefer
// it. Only honored by backends that support it (MySQL); silently
// ignored otherwise (spec: Database Compatibility note carried from
// the teacher's WithIndex).
type IndexHint struct {
	Name string
	Mode consts.IndexHintMode
}

// Cursor configures keyset pagination (supplemented feature, see
// SPEC_FULL.md D.1).
type Cursor struct {
	Field string
	Value string
	Next  bool // true: fetch records after Value; false: before Value
}

// CTE names a subplan to be materialized as a named common table
// expression available to the outer QueryPlan.
type CTE struct {
	Name string
	Plan *QueryPlan
}

// RawJoin is an opaque join clause passed through to the relational
// backend verbatim (supplemented feature, see SPEC_FULL.md D.4). args
// are bound positionally the way gorm.Joins(expr, args...) binds them.
type RawJoin struct {
	Expr string
	Args []any
}

// QueryPlan is the backend-agnostic query tree built by the chainable
// builder methods below and compiled to SQL or BSON only at execute
// time (spec §4.4).
type QueryPlan struct {
	Filter  *FilterExpr
	OrderBy []OrderTerm
	Limit   int
	Offset  int
	Select  []string
	GroupBy []string
	Having  []HavingClause
	CTEs    []CTE

	IndexHints []IndexHint
	LockMode   consts.LockMode
	Cursor     *Cursor

	// SelectRaw and RawJoins are opaque escape hatches (spec.md's
	// Non-goals permit leaving the filter/query DSL non-relationally-
	// complete): SelectRaw replaces the compiled SELECT list verbatim
	// on the relational backend, RawJoins appends caller-supplied JOIN
	// clauses. RawFilter injects a pre-built bson.M fragment, ANDed
	// with the compiled filter, on the document backend.
	SelectRaw string
	RawJoins  []RawJoin
	RawFilter map[string]any

	TimeRangeField string
	TimeRangeStart time.Time
	TimeRangeEnd   time.Time
}

// NewPlan starts a QueryPlan from an implicitly-ANDed predicate list
// (spec §4.4 "Model.find(*preds)").
func NewPlan(preds ...*FilterExpr) *QueryPlan {
	return &QueryPlan{Filter: And(preds...)}
}

func (p *QueryPlan) OrderByField(field string, dir OrderDir) *QueryPlan {
	p.OrderBy = append(p.OrderBy, OrderTerm{Field: field, Dir: dir})
	return p
}

func (p *QueryPlan) WithLimit(n int) *QueryPlan {
	p.Limit = n
	return p
}

func (p *QueryPlan) WithOffset(n int) *QueryPlan {
	p.Offset = n
	return p
}

func (p *QueryPlan) WithSelect(fields ...string) *QueryPlan {
	p.Select = fields
	return p
}

func (p *QueryPlan) GroupByFields(fields ...string) *QueryPlan {
	p.GroupBy = fields
	return p
}

func (p *QueryPlan) WithHaving(agg AggOp, field string, op Op, value any) *QueryPlan {
	p.Having = append(p.Having, HavingClause{Agg: agg, Field: field, Op: op, Value: value})
	return p
}

func (p *QueryPlan) WithCTE(name string, other *QueryPlan) *QueryPlan {
	p.CTEs = append(p.CTEs, CTE{Name: name, Plan: other})
	return p
}

func (p *QueryPlan) WithIndex(name string, mode consts.IndexHintMode) *QueryPlan {
	if name == "" {
		return p
	}
	p.IndexHints = append(p.IndexHints, IndexHint{Name: name, Mode: mode})
	return p
}

func (p *QueryPlan) WithLock(mode consts.LockMode) *QueryPlan {
	p.LockMode = mode
	return p
}

func (p *QueryPlan) WithCursor(value string, next bool, field ...string) *QueryPlan {
	if value == "" {
		return p
	}
	f := "id"
	if len(field) > 0 && field[0] != "" {
		f = field[0]
	}
	p.Cursor = &Cursor{Field: f, Value: value, Next: next}
	return p
}

// WithSelectRaw replaces the compiled SELECT list with expr verbatim
// on the relational backend (supplemented feature, SPEC_FULL.md D.4).
func (p *QueryPlan) WithSelectRaw(expr string) *QueryPlan {
	p.SelectRaw = expr
	return p
}

// WithJoinRaw appends an opaque JOIN clause, bound positionally like
// gorm.Joins (supplemented feature, SPEC_FULL.md D.4).
func (p *QueryPlan) WithJoinRaw(expr string, args ...any) *QueryPlan {
	p.RawJoins = append(p.RawJoins, RawJoin{Expr: expr, Args: args})
	return p
}

// WithRawFilter ANDs a pre-built bson.M fragment into the compiled
// filter on the document backend (supplemented feature, SPEC_FULL.md
// D.4). No equivalent exists for the relational backend: there is no
// opaque-predicate escape hatch for SQL WHERE clauses, only for SELECT
// and JOIN (use WithSelectRaw/WithJoinRaw there instead).
func (p *QueryPlan) WithRawFilter(fragment map[string]any) *QueryPlan {
	p.RawFilter = fragment
	return p
}

func (p *QueryPlan) WithTimeRange(field string, start, end time.Time) *QueryPlan {
	p.TimeRangeField = field
	p.TimeRangeStart = start
	p.TimeRangeEnd = end
	return p
}
