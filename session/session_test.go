package session_test

import (
	"testing"

	"github.com/dataplane/orm/model"
	"github.com/dataplane/orm/relational"
	"github.com/dataplane/orm/session"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type sessUser struct {
	Name string `json:"name"`
	Age  int    `json:"age"`

	model.Base
}

func (sessUser) GetTableName() string { return "sess_users" }
func (u *sessUser) Purge() bool       { return true }

func (u *sessUser) SetName(n string) {
	u.Name = n
	if desc := model.DescriptorOf[*sessUser](); desc != nil {
		u.MarkDirty(desc.FieldByName["Name"].Index, len(desc.Fields))
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	model.Register[*sessUser]()
	require.NoError(t, gdb.AutoMigrate(&sessUser{}))
	return gdb
}

func TestAddFlushInsertsInOrder(t *testing.T) {
	gdb := openTestDB(t)
	s, err := session.New(gdb, nil)
	require.NoError(t, err)

	u1 := &sessUser{Name: "a", Age: 1}
	u2 := &sessUser{Name: "b", Age: 2}
	require.NoError(t, session.Add(s, u1))
	require.NoError(t, session.Add(s, u2))
	require.NoError(t, s.Commit())

	db := relational.New[*sessUser](gdb, nil)
	var count int64
	require.NoError(t, db.Count(nil, &count))
	require.Equal(t, int64(2), count)
}

func TestGetReturnsIdentityMappedInstance(t *testing.T) {
	gdb := openTestDB(t)
	db := relational.New[*sessUser](gdb, nil)
	u := &sessUser{Name: "grace", Age: 40}
	require.NoError(t, db.Create(u))

	s, err := session.New(gdb, nil)
	require.NoError(t, err)
	defer s.Close()

	first, err := session.Get[*sessUser](s, u.GetID())
	require.NoError(t, err)
	second, err := session.Get[*sessUser](s, u.GetID())
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestSaveOnlyAppliesExplicitlyMarkedInstances(t *testing.T) {
	gdb := openTestDB(t)
	db := relational.New[*sessUser](gdb, nil)
	u := &sessUser{Name: "ada", Age: 30}
	require.NoError(t, db.Create(u))

	s, err := session.New(gdb, nil)
	require.NoError(t, err)

	loaded, err := session.Get[*sessUser](s, u.GetID())
	require.NoError(t, err)
	loaded.SetName("ada lovelace")
	require.NoError(t, session.Save(s, loaded))
	require.NoError(t, s.Commit())

	out := &sessUser{}
	require.NoError(t, db.Get(out, u.GetID()))
	require.Equal(t, "ada lovelace", out.Name)
}

func TestRollbackAbandonsPendingInserts(t *testing.T) {
	gdb := openTestDB(t)
	s, err := session.New(gdb, nil)
	require.NoError(t, err)

	require.NoError(t, session.Add(s, &sessUser{Name: "ghost", Age: 1}))
	require.NoError(t, s.Rollback())

	db := relational.New[*sessUser](gdb, nil)
	var count int64
	require.NoError(t, db.Count(nil, &count))
	require.Equal(t, int64(0), count)
}

func TestCommitTwiceIsNoOp(t *testing.T) {
	gdb := openTestDB(t)
	s, err := session.New(gdb, nil)
	require.NoError(t, err)

	require.NoError(t, session.Add(s, &sessUser{Name: "ada", Age: 30}))
	require.NoError(t, s.Commit())
	require.NoError(t, s.Commit())

	db := relational.New[*sessUser](gdb, nil)
	var count int64
	require.NoError(t, db.Count(nil, &count))
	require.Equal(t, int64(1), count)
}

func TestClosedSessionRejectsOperations(t *testing.T) {
	gdb := openTestDB(t)
	s, err := session.New(gdb, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = session.Add(s, &sessUser{Name: "late", Age: 1})
	require.Error(t, err)
}
