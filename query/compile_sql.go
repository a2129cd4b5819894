package query

import (
	"fmt"
	"strings"

	"github.com/dataplane/orm/codec"
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/types"
	"github.com/dataplane/orm/validate"
)

// SQLFragment is a compiled WHERE/ORDER/LIMIT clause plus its
// positionally-bound arguments. Values are never string-interpolated
// (spec §4.4/§8 injection hardening); identifiers are validated and
// double-quoted.
type SQLFragment struct {
	Where string
	Args  []any
	Order string
	Limit int
	Offset int
}

// CompileSQL compiles plan against desc into a relational WHERE/ORDER
// clause with positional "?" placeholders (gorm substitutes the
// driver's native placeholder style at execution time).
func CompileSQL(desc *types.ModelDescriptor, plan *QueryPlan) (*SQLFragment, error) {
	frag := &SQLFragment{Limit: plan.Limit, Offset: plan.Offset}

	where, args, err := compileExpr(desc, plan.Filter)
	if err != nil {
		return nil, err
	}

	if plan.Cursor != nil {
		fd, ok := desc.FieldByName[plan.Cursor.Field]
		wire := plan.Cursor.Field
		if ok {
			wire = fd.WireName
		}
		if err := validate.Identifier(wire); err != nil {
			return nil, err
		}
		op := ">"
		if !plan.Cursor.Next {
			op = "<"
		}
		cond := fmt.Sprintf("%q %s ?", wire, op)
		if where != "" {
			where = fmt.Sprintf("(%s) AND %s", where, cond)
		} else {
			where = cond
		}
		args = append(args, plan.Cursor.Value)
	}

	if !plan.TimeRangeStart.IsZero() || !plan.TimeRangeEnd.IsZero() {
		if err := validate.Identifier(plan.TimeRangeField); err != nil {
			return nil, err
		}
		cond := fmt.Sprintf("%q BETWEEN ? AND ?", plan.TimeRangeField)
		if where != "" {
			where = fmt.Sprintf("(%s) AND %s", where, cond)
		} else {
			where = cond
		}
		args = append(args, plan.TimeRangeStart, plan.TimeRangeEnd)
	}

	frag.Where = where
	frag.Args = args

	if len(plan.OrderBy) > 0 {
		terms := make([]string, 0, len(plan.OrderBy))
		for _, t := range plan.OrderBy {
			fd, ok := desc.FieldByName[t.Field]
			wire := t.Field
			if ok {
				wire = fd.WireName
			}
			if err := validate.Identifier(wire); err != nil {
				return nil, err
			}
			dir := "ASC"
			if t.Dir == Desc {
				dir = "DESC"
			}
			terms = append(terms, fmt.Sprintf("%q %s", wire, dir))
		}
		frag.Order = strings.Join(terms, ", ")
	}

	return frag, nil
}

func compileExpr(desc *types.ModelDescriptor, e *FilterExpr) (string, []any, error) {
	if e == nil {
		return "", nil, nil
	}
	switch e.Kind {
	case ExprLeaf:
		return compileLeaf(desc, e)
	case ExprNot:
		inner, args, err := compileExpr(desc, e.Children[0])
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("NOT (%s)", inner), args, nil
	case ExprAnd, ExprOr:
		sep := " AND "
		if e.Kind == ExprOr {
			sep = " OR "
		}
		parts := make([]string, 0, len(e.Children))
		var args []any
		for _, c := range e.Children {
			s, a, err := compileExpr(desc, c)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, fmt.Sprintf("(%s)", s))
			args = append(args, a...)
		}
		return strings.Join(parts, sep), args, nil
	default:
		return "", nil, dberrors.NewValidation("", "unknown filter expression kind")
	}
}

func compileLeaf(desc *types.ModelDescriptor, e *FilterExpr) (string, []any, error) {
	fd, ok := desc.FieldByName[e.Field]
	wire := e.Field
	if ok {
		wire = fd.WireName
	}
	if err := validate.Identifier(wire); err != nil {
		return "", nil, err
	}

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
			return "", nil, err
		}
		return fmt.Sprintf("%q = ?", wire), []any{v}, nil
	case OpNe:
		v, err := encode(e.Value)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%q != ?", wire), []any{v}, nil
	case OpGt:
		v, err := encode(e.Value)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%q > ?", wire), []any{v}, nil
	case OpGte:
		v, err := encode(e.Value)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%q >= ?", wire), []any{v}, nil
	case OpLt:
		v, err := encode(e.Value)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%q < ?", wire), []any{v}, nil
	case OpLte:
		v, err := encode(e.Value)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%q <= ?", wire), []any{v}, nil
	case OpIn, OpNotIn:
		values, _ := e.Value.([]any)
		if len(values) == 0 {
			if e.Op == OpIn {
				return "1 = 0", nil, nil // empty IN() matches nothing
			}
			return "1 = 1", nil, nil
		}
		placeholders := make([]string, len(values))
		args := make([]any, len(values))
		for i, v := range values {
			ev, err := encode(v)
			if err != nil {
				return "", nil, err
			}
			placeholders[i] = "?"
			args[i] = ev
		}
		verb := "IN"
		if e.Op == OpNotIn {
			verb = "NOT IN"
		}
		return fmt.Sprintf("%q %s (%s)", wire, verb, strings.Join(placeholders, ", ")), args, nil
	case OpLike:
		s, _ := e.Value.(string)
		return fmt.Sprintf("%q LIKE ?", wire), []any{s}, nil
	case OpIsNull:
		return fmt.Sprintf("%q IS NULL", wire), nil, nil
	case OpIsNotNull:
		return fmt.Sprintf("%q IS NOT NULL", wire), nil, nil
	default:
		return "", nil, dberrors.NewValidation(e.Field, "unknown operator")
	}
}
