package relational_test

import (
	"errors"
	"testing"

	"github.com/dataplane/orm/model"
	"github.com/dataplane/orm/query"
	"github.com/dataplane/orm/relational"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type relUser struct {
	Name string `json:"name"`
	Age  int    `json:"age"`

	model.Base
}

func (relUser) GetTableName() string { return "rel_users" }
func (u *relUser) Purge() bool       { return true }

func (u *relUser) SetName(n string) {
	u.Name = n
	if desc := model.DescriptorOf[*relUser](); desc != nil {
		u.MarkDirty(desc.FieldByName["Name"].Index, len(desc.Fields))
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	model.Register[*relUser]()
	require.NoError(t, gdb.AutoMigrate(&relUser{}))
	return gdb
}

func TestCreateAndGet(t *testing.T) {
	gdb := openTestDB(t)
	db := relational.New[*relUser](gdb, nil)

	u := &relUser{Name: "ada", Age: 30}
	require.NoError(t, db.Create(u))
	require.NotEmpty(t, u.GetID())

	out := &relUser{}
	require.NoError(t, db.Get(out, u.GetID()))
	require.Equal(t, "ada", out.Name)
	require.Equal(t, 30, out.Age)
	require.False(t, out.GetCreatedAt().IsZero())
}

func TestGetNotFound(t *testing.T) {
	gdb := openTestDB(t)
	db := relational.New[*relUser](gdb, nil)

	out := &relUser{}
	err := db.Get(out, "missing")
	require.Error(t, err)
}

func TestUpdateOnlyTouchesDirtyColumns(t *testing.T) {
	gdb := openTestDB(t)
	db := relational.New[*relUser](gdb, nil)

	u := &relUser{Name: "grace", Age: 40}
	require.NoError(t, db.Create(u))

	u.SetName("grace hopper")
	require.NoError(t, db.Update(u))

	out := &relUser{}
	require.NoError(t, db.Get(out, u.GetID()))
	require.Equal(t, "grace hopper", out.Name)
	require.Equal(t, 40, out.Age)
}

func TestDeleteSoftThenPurge(t *testing.T) {
	gdb := openTestDB(t)
	db := relational.New[*relUser](gdb, nil)

	u := &relUser{Name: "margaret", Age: 50}
	require.NoError(t, db.Create(u))
	require.NoError(t, db.Delete(u))

	exists, err := db.Exists(query.NewPlan(query.Eq("ID", u.GetID())))
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, db.WithPurge().Delete(u))
}

func TestFindListCountAggregate(t *testing.T) {
	gdb := openTestDB(t)
	db := relational.New[*relUser](gdb, nil)

	require.NoError(t, db.Create(
		&relUser{Name: "a", Age: 10},
		&relUser{Name: "b", Age: 20},
		&relUser{Name: "c", Age: 30},
	))

	var out []*relUser
	require.NoError(t, db.Find(query.Gt("Age", 10)).OrderBy("Age", query.Asc).ToList(&out))
	require.Len(t, out, 2)
	require.Equal(t, "b", out[0].Name)

	var count int64
	require.NoError(t, db.Count(query.NewPlan(), &count))
	require.Equal(t, int64(3), count)

	sum, err := db.Aggregate(query.NewPlan(), query.AggSum, "Age")
	require.NoError(t, err)
	require.Equal(t, float64(60), sum)
}

func TestUpdateManyAndDeleteMany(t *testing.T) {
	gdb := openTestDB(t)
	db := relational.New[*relUser](gdb, nil)

	require.NoError(t, db.Create(
		&relUser{Name: "x", Age: 1},
		&relUser{Name: "y", Age: 2},
	))

	n, err := db.UpdateMany(map[string]any{"Age": 99}, query.Lt("Age", 10))
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	d, err := db.DeleteMany(query.Eq("Age", 99))
	require.NoError(t, err)
	require.Equal(t, int64(2), d)
}

func TestUpsertOne(t *testing.T) {
	gdb := openTestDB(t)
	db := relational.New[*relUser](gdb, nil)

	u := &relUser{Name: "init", Age: 1}
	require.NoError(t, db.Create(u))

	require.NoError(t, db.UpsertOne(query.UpsertSpec{
		Keys: []string{"ID"},
		Data: map[string]any{"ID": u.GetID(), "Name": "upserted", "Age": 2},
	}))

	out := &relUser{}
	require.NoError(t, db.Get(out, u.GetID()))
	require.Equal(t, "upserted", out.Name)
}

func TestHealthAndTransaction(t *testing.T) {
	gdb := openTestDB(t)
	db := relational.New[*relUser](gdb, nil)
	require.NoError(t, db.Health())

	err := db.Transaction(func(txDB query.Database[*relUser]) error {
		return txDB.Create(&relUser{Name: "tx", Age: 5})
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Count(query.NewPlan(query.Eq("Name", "tx")), &count))
	require.Equal(t, int64(1), count)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	gdb := openTestDB(t)
	db := relational.New[*relUser](gdb, nil)

	err := db.Transaction(func(txDB query.Database[*relUser]) error {
		if err := txDB.Create(&relUser{Name: "rollback-me", Age: 9}); err != nil {
			return err
		}
		return errors.New("forced rollback")
	})
	require.Error(t, err)

	exists, err := db.Exists(query.NewPlan(query.Eq("Name", "rollback-me")))
	require.NoError(t, err)
	require.False(t, exists)
}

func TestCreateOrderedHaltsAtFirstFailureAndReportsPrefix(t *testing.T) {
	gdb := openTestDB(t)
	require.NoError(t, gdb.Exec(`CREATE UNIQUE INDEX rel_users_name_uniq ON rel_users(name)`).Error)
	db := relational.New[*relUser](gdb, nil)

	require.NoError(t, db.Create(&relUser{Name: "dup", Age: 1}))

	err := db.Create(
		&relUser{Name: "fresh", Age: 2},
		&relUser{Name: "dup", Age: 3},
		&relUser{Name: "unreached", Age: 4},
	)
	require.Error(t, err)
	var bulkErr *query.BulkError
	require.True(t, errors.As(err, &bulkErr))
	require.Equal(t, 1, bulkErr.Written)
	require.Equal(t, 1, bulkErr.Index)

	var count int64
	require.NoError(t, db.Count(query.NewPlan(), &count))
	require.Equal(t, int64(2), count) // "dup" seeded + "fresh"

	exists, err := db.Exists(query.NewPlan(query.Eq("Name", "unreached")))
	require.NoError(t, err)
	require.False(t, exists)
}

func TestCreateUnorderedAttemptsEveryRowAndReportsFailures(t *testing.T) {
	gdb := openTestDB(t)
	require.NoError(t, gdb.Exec(`CREATE UNIQUE INDEX rel_users_name_uniq ON rel_users(name)`).Error)
	db := relational.New[*relUser](gdb, nil)

	require.NoError(t, db.Create(&relUser{Name: "dup", Age: 1}))

	err := db.WithOrdered(false).Create(
		&relUser{Name: "fresh", Age: 2},
		&relUser{Name: "dup", Age: 3},
		&relUser{Name: "another", Age: 4},
	)
	require.Error(t, err)
	var bulkErr *query.BulkError
	require.True(t, errors.As(err, &bulkErr))
	require.Equal(t, 2, bulkErr.Written)
	require.Len(t, bulkErr.Failures, 1)
	require.Contains(t, bulkErr.Failures, 1)

	exists, err := db.Exists(query.NewPlan(query.Eq("Name", "another")))
	require.NoError(t, err)
	require.True(t, exists)
}
