package document

import (
	"reflect"
	"testing"

	"github.com/dataplane/orm/codec"
	"github.com/dataplane/orm/model"
	"github.com/dataplane/orm/query"
	"github.com/dataplane/orm/types"
	"github.com/stretchr/testify/require"
)

type docUser struct {
	Name string `json:"name"`
	Age  int    `json:"age"`

	model.Base
}

func (docUser) GetTableName() string { return "doc_users" }

func descOf(t *testing.T) *types.ModelDescriptor {
	t.Helper()
	return model.BuildDescriptor(reflect.TypeOf(docUser{}), "doc_users")
}

func TestToMongoDocRenamesIDKey(t *testing.T) {
	doc := codec.Doc{"id": "u1", "name": "ada"}
	out := toMongoDoc(doc)
	require.Equal(t, "u1", out[mongoIDKey])
	require.NotContains(t, out, "id")
}

func TestFromMongoDocRenamesBack(t *testing.T) {
	doc := codec.Doc{mongoIDKey: "u1", "name": "ada"}
	out := fromMongoDoc(doc)
	require.Equal(t, "u1", out["id"])
	require.NotContains(t, out, mongoIDKey)
}

func TestAggOperatorMapping(t *testing.T) {
	op, err := aggOperator(query.AggSum)
	require.NoError(t, err)
	require.Equal(t, "$sum", op)

	_, err = aggOperator(query.AggOp(99))
	require.Error(t, err)
}

func TestOptionChainersMutateState(t *testing.T) {
	desc := descOf(t)
	db := &DB[*docUser]{desc: desc}

	db.WithTable("alt_users")
	require.Equal(t, "alt_users", db.collName)

	db.WithBatchSize(50)
	require.Equal(t, 50, db.batchSize)

	db.WithPurge()
	require.NotNil(t, db.enablePurge)
	require.True(t, *db.enablePurge)

	db.WithOrdered(false)
	require.NotNil(t, db.ordered)
	require.False(t, db.orderedOr(true))

	db.reset()
	require.Equal(t, "", db.collName)
	require.Equal(t, 0, db.batchSize)
	require.Nil(t, db.enablePurge)
	require.Nil(t, db.ordered)
	require.True(t, db.orderedOr(true))
}

func TestIsTransientHeuristic(t *testing.T) {
	require.True(t, isTransient(errTimeout{}))
	require.False(t, isTransient(errConstraint{}))
}

type errTimeout struct{}

func (errTimeout) Error() string { return "connection timeout talking to replica set" }

type errConstraint struct{}

func (errConstraint) Error() string { return "E11000 duplicate key error" }
