package query_test

import (
	"testing"

	"github.com/dataplane/orm/consts"
	"github.com/dataplane/orm/query"
	"github.com/dataplane/orm/types"
	"github.com/stretchr/testify/require"
)

func testDesc() *types.ModelDescriptor {
	return &types.ModelDescriptor{
		TableName: "users",
		FieldByName: map[string]*types.FieldDescriptor{
			"Name": {Name: "Name", WireName: "name", Type: types.TString},
			"Age":  {Name: "Age", WireName: "age", Type: types.TInteger},
		},
	}
}

func TestCompileSQLSimpleAnd(t *testing.T) {
	plan := query.NewPlan(query.Eq("Name", "ada"), query.Gt("Age", 18))
	frag, err := query.CompileSQL(testDesc(), plan)
	require.NoError(t, err)
	require.Contains(t, frag.Where, `"name" = ?`)
	require.Contains(t, frag.Where, `"age" > ?`)
	require.Len(t, frag.Args, 2)
}

func TestCompileSQLRejectsIllegalIdentifier(t *testing.T) {
	plan := query.NewPlan(query.Eq("1;drop", "x"))
	_, err := query.CompileSQL(testDesc(), plan)
	require.Error(t, err)
}

func TestCompileSQLEmptyIn(t *testing.T) {
	plan := query.NewPlan(query.In("Name"))
	frag, err := query.CompileSQL(testDesc(), plan)
	require.NoError(t, err)
	require.Equal(t, "1 = 0", frag.Where)
}

func TestCompileSQLOrder(t *testing.T) {
	plan := query.NewPlan().OrderByField("Name", query.Asc).OrderByField("Age", query.Desc)
	frag, err := query.CompileSQL(testDesc(), plan)
	require.NoError(t, err)
	require.Equal(t, `"name" ASC, "age" DESC`, frag.Order)
}

func TestCompileBSONEqAndIn(t *testing.T) {
	plan := query.NewPlan(query.Eq("Name", "ada"), query.In("Age", 18, 19))
	doc, err := query.CompileBSON(testDesc(), plan)
	require.NoError(t, err)
	require.Equal(t, "ada", doc["name"])
	require.Contains(t, doc, "age")
}

func TestCompileBSONDuplicateFieldBecomesAnd(t *testing.T) {
	plan := query.NewPlan(query.Gt("Age", 10), query.Lt("Age", 20))
	doc, err := query.CompileBSON(testDesc(), plan)
	require.NoError(t, err)
	require.Contains(t, doc, "$and")
}

func TestOrCombinator(t *testing.T) {
	e := query.Or(query.Eq("Name", "a"), query.Eq("Name", "b"))
	require.Equal(t, query.ExprOr, e.Kind)
	require.Len(t, e.Children, 2)
}

func TestCompileBSONMergesRawFilter(t *testing.T) {
	plan := query.NewPlan(query.Eq("Name", "ada")).WithRawFilter(map[string]any{"legacy_flag": true})
	doc, err := query.CompileBSON(testDesc(), plan)
	require.NoError(t, err)
	require.Equal(t, "ada", doc["name"])
	require.Equal(t, true, doc["legacy_flag"])
}

func TestWithIndexIgnoresEmptyName(t *testing.T) {
	plan := query.NewPlan().WithIndex("", consts.IndexHintForce)
	require.Empty(t, plan.IndexHints)
}

func TestWithJoinRawAppends(t *testing.T) {
	plan := query.NewPlan().WithJoinRaw("JOIN accounts ON accounts.id = users.account_id")
	require.Len(t, plan.RawJoins, 1)
	require.Equal(t, "JOIN accounts ON accounts.id = users.account_id", plan.RawJoins[0].Expr)
}

func TestWithSelectRawOverridesSelect(t *testing.T) {
	plan := query.NewPlan().WithSelect("Name").WithSelectRaw("COUNT(*) AS total")
	require.Equal(t, "COUNT(*) AS total", plan.SelectRaw)
}
