package relational

import (
	"fmt"

	"github.com/dataplane/orm/consts"
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/query"
	"github.com/dataplane/orm/relation"
	"github.com/dataplane/orm/types"
	"gorm.io/gorm"
	"gorm.io/hints"
)

// Find starts a QueryPlan builder scoped to this Database[M] (spec
// §4.4 "Model.find(*preds) -> QueryPlan").
func (db *DB[M]) Find(preds ...*query.FilterExpr) *query.Builder[M] {
	return &query.Builder[M]{DB: db, Plan: query.NewPlan(preds...)}
}

func (db *DB[M]) applyPlan(sess *gorm.DB, plan *query.QueryPlan) (*gorm.DB, error) {
	if plan == nil {
		plan = query.NewPlan()
	}
	frag, err := query.CompileSQL(db.desc, plan)
	if err != nil {
		return nil, err
	}
	if frag.Where != "" {
		sess = sess.Where(frag.Where, frag.Args...)
	}
	if frag.Order != "" {
		sess = sess.Order(frag.Order)
	}
	if frag.Limit > 0 {
		sess = sess.Limit(frag.Limit)
	}
	if frag.Offset > 0 {
		sess = sess.Offset(frag.Offset)
	}
	if plan.SelectRaw != "" {
		sess = sess.Select(plan.SelectRaw)
	} else if len(plan.Select) > 0 {
		sess = sess.Select(plan.Select)
	}
	for _, j := range plan.RawJoins {
		sess = sess.Joins(j.Expr, j.Args...)
	}
	if len(plan.GroupBy) > 0 {
		sess = sess.Group(joinIdentifiers(plan.GroupBy))
	}
	if plan.LockMode != "" {
		sess = sess.Clauses(lockClause(plan.LockMode))
	}
	for _, h := range plan.IndexHints {
		sess = sess.Clauses(indexHintClause(h))
	}
	return sess, nil
}

func joinIdentifiers(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%q", f)
	}
	return out
}

func lockClause(mode consts.LockMode) any {
	switch mode {
	case consts.LockUpdate:
		return hints.UpdateLock{}
	case consts.LockShare:
		return hints.ShareLock{}
	default:
		return hints.UpdateLock{}
	}
}

func indexHintClause(h query.IndexHint) any {
	switch h.Mode {
	case consts.IndexHintForce:
		return hints.ForceIndex(h.Name)
	case consts.IndexHintIgnore:
		return hints.IgnoreIndex(h.Name)
	default:
		return hints.UseIndex(h.Name)
	}
}

// List executes plan and writes every match into dest.
func (db *DB[M]) List(plan *query.QueryPlan, dest *[]M) (err error) {
	if db.desc == nil {
		return errNilDescriptor
	}
	strategy, names := db.expandStrategy, db.expandNames
	defer db.reset()

	sess, err := db.applyPlan(db.session(), plan)
	if err != nil {
		return err
	}
	if err := sess.Find(dest).Error; err != nil {
		return dberrors.NewDriver(err, isTransient(err))
	}
	return relation.Apply(*dest, db.desc, strategy, names, db.relate())
}

// Get loads the record with primary key id into dest.
func (db *DB[M]) Get(dest M, id string) error {
	if db.desc == nil {
		return errNilDescriptor
	}
	strategy, names := db.expandStrategy, db.expandNames
	defer db.reset()

	if err := dest.GetBefore(types.NewModelContext(db.dbctx, consts.PHASE_GET_BEFORE)); err != nil {
		return err
	}
	err := db.session().Where(`"id" = ?`, id).Take(dest).Error
	if err != nil {
		if isNotFound(err) {
			return dberrors.NewNotFound("id")
		}
		return dberrors.NewDriver(err, isTransient(err))
	}
	if err := relation.Apply([]M{dest}, db.desc, strategy, names, db.relate()); err != nil {
		return err
	}
	return dest.GetAfter(types.NewModelContext(db.dbctx, consts.PHASE_GET_AFTER))
}

// First returns the first record ordered by primary key.
func (db *DB[M]) First(dest M) error {
	if db.desc == nil {
		return errNilDescriptor
	}
	strategy, names := db.expandStrategy, db.expandNames
	defer db.reset()
	err := db.session().Order(`"id" ASC`).Take(dest).Error
	if err != nil {
		if isNotFound(err) {
			return dberrors.NewNotFound("id")
		}
		return dberrors.NewDriver(err, isTransient(err))
	}
	return relation.Apply([]M{dest}, db.desc, strategy, names, db.relate())
}

// Count returns the number of records matching plan.
func (db *DB[M]) Count(plan *query.QueryPlan, out *int64) error {
	if db.desc == nil {
		return errNilDescriptor
	}
	defer db.reset()
	sess, err := db.applyPlan(db.session(), plan)
	if err != nil {
		return err
	}
	if err := sess.Count(out).Error; err != nil {
		return dberrors.NewDriver(err, isTransient(err))
	}
	return nil
}

// Exists reports whether any record matches plan.
func (db *DB[M]) Exists(plan *query.QueryPlan) (bool, error) {
	var n int64
	if err := db.Count(plan, &n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Aggregate computes agg over field across records matching plan.
func (db *DB[M]) Aggregate(plan *query.QueryPlan, agg query.AggOp, field string) (float64, error) {
	if db.desc == nil {
		return 0, errNilDescriptor
	}
	defer db.reset()

	wire := field
	if fd, ok := db.desc.FieldByName[field]; ok {
		wire = fd.WireName
	}
	fn, err := aggFunc(agg)
	if err != nil {
		return 0, err
	}

	sess, err := db.applyPlan(db.session(), plan)
	if err != nil {
		return 0, err
	}

	var result struct {
		Value float64
	}
	expr := fmt.Sprintf("%s(%q) AS value", fn, wire)
	if err := sess.Select(expr).Scan(&result).Error; err != nil {
		return 0, dberrors.NewDriver(err, isTransient(err))
	}
	return result.Value, nil
}

func aggFunc(agg query.AggOp) (string, error) {
	switch agg {
	case query.AggSum:
		return "SUM", nil
	case query.AggAvg:
		return "AVG", nil
	case query.AggMin:
		return "MIN", nil
	case query.AggMax:
		return "MAX", nil
	case query.AggCount:
		return "COUNT", nil
	default:
		return "", dberrors.NewValidation("", "unknown aggregation operator")
	}
}
