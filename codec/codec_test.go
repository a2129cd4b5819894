package codec_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/dataplane/orm/codec"
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/model"
	"github.com/dataplane/orm/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type codecUser struct {
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance" orm:"type=decimal"`
	JoinedAt time.Time      `json:"joined_at" orm:"type=time"`

	model.Base
}

func (codecUser) GetTableName() string { return "codec_users" }

func descOf(t *testing.T) *types.ModelDescriptor {
	t.Helper()
	typ := reflect.TypeOf(codecUser{})
	return model.BuildDescriptor(typ, "codec_users")
}

func TestEncodeInstanceRoundTrip(t *testing.T) {
	desc := descOf(t)
	u := &codecUser{Name: "ada", Balance: decimal.NewFromFloat(12.50), JoinedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	u.SetID("u1")

	doc, err := codec.EncodeInstance(desc, u, false, nil)
	require.NoError(t, err)
	require.Equal(t, "ada", doc["name"])
	require.True(t, doc["balance"].(decimal.Decimal).Equal(decimal.NewFromFloat(12.50)))

	out := &codecUser{}
	require.NoError(t, codec.DecodeRow(desc, doc, out))
	require.Equal(t, u.Name, out.Name)
	require.True(t, u.Balance.Equal(out.Balance))
	require.True(t, u.JoinedAt.Equal(out.JoinedAt))
}

func TestEncodeInstanceDirtyOnly(t *testing.T) {
	desc := descOf(t)
	nameIdx := desc.FieldByName["Name"].Index
	u := &codecUser{Name: "grace", Balance: decimal.NewFromInt(0)}
	u.SetID("u2")

	doc, err := codec.EncodeInstance(desc, u, true, []int{nameIdx})
	require.NoError(t, err)
	require.Contains(t, doc, "name")
	require.NotContains(t, doc, "balance")
}

func TestEncodeValueTypeMismatch(t *testing.T) {
	desc := descOf(t)
	fd := desc.FieldByName["Balance"]
	_, err := codec.EncodeFilterValue(fd, 42)
	require.Error(t, err)
	require.True(t, dberrors.KindIs(err, dberrors.KindType))
}

func TestEncodeBatchPreservesOrder(t *testing.T) {
	desc := descOf(t)
	instances := make([]types.Model, 0, 120)
	for i := 0; i < 120; i++ {
		u := &codecUser{Name: "user", Balance: decimal.NewFromInt(int64(i))}
		u.SetID(string(rune('a' + i%26)))
		instances = append(instances, u)
	}

	docs, err := codec.EncodeBatch(context.Background(), desc, instances, 50)
	require.NoError(t, err)
	require.Len(t, docs, 120)
	for i, d := range docs {
		require.True(t, d["balance"].(decimal.Decimal).Equal(decimal.NewFromInt(int64(i))))
	}
}
