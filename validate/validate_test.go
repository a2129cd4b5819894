package validate_test

import (
	"testing"

	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/types"
	"github.com/dataplane/orm/validate"
	"github.com/stretchr/testify/require"
)

func TestIdentifierRejectsReservedKeyword(t *testing.T) {
	err := validate.Identifier("select")
	require.Error(t, err)
	require.True(t, dberrors.KindIs(err, dberrors.KindValidation))
}

func TestIdentifierRejectsReservedPrefix(t *testing.T) {
	require.Error(t, validate.Identifier("pg_catalog"))
}

func TestIdentifierRejectsIllegalCharacters(t *testing.T) {
	require.Error(t, validate.Identifier("users; drop table x"))
}

func TestIdentifierAcceptsLegalName(t *testing.T) {
	require.NoError(t, validate.Identifier("orders"))
}

func TestConstraintsMinMaxLen(t *testing.T) {
	fd := &types.FieldDescriptor{
		Name: "Name",
		Constraints: []types.Constraint{
			{Kind: types.CMinLen, IntParam: 3},
			{Kind: types.CMaxLen, IntParam: 5},
		},
	}
	require.Error(t, validate.Constraints(fd, "ab"))
	require.NoError(t, validate.Constraints(fd, "abc"))
	require.Error(t, validate.Constraints(fd, "abcdef"))
}

func TestConstraintsRange(t *testing.T) {
	fd := &types.FieldDescriptor{
		Name:        "Age",
		Constraints: []types.Constraint{{Kind: types.CRange, MinFloat: 0, MaxFloat: 120}},
	}
	require.NoError(t, validate.Constraints(fd, 30))
	require.Error(t, validate.Constraints(fd, 200))
}

func TestConstraintsEmail(t *testing.T) {
	fd := &types.FieldDescriptor{
		Name:        "Email",
		Constraints: []types.Constraint{{Kind: types.CEmail}},
	}
	require.NoError(t, validate.Constraints(fd, "a@b.com"))
	require.Error(t, validate.Constraints(fd, "not-an-email"))
}

func TestDepthLimit(t *testing.T) {
	desc := &types.ModelDescriptor{MaxDepth: 3}
	require.NoError(t, validate.Depth(desc, 3))
	require.Error(t, validate.Depth(desc, 4))
}
