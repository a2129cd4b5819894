package relational_test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/model"
	"github.com/dataplane/orm/relational"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type mockUser struct {
	Name string `json:"name"`

	model.Base
}

func (mockUser) GetTableName() string { return "mock_users" }
func (u *mockUser) Purge() bool       { return true }

func openMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	model.Register[*mockUser]()
	return gdb, mock
}

// TestCreateClassifiesConnectionFailureAsTransient drives a Create
// through a sqlmock'd connection that fails the way a dropped
// connection does, and checks the resulting error is a dberrors.Error
// of KindDriver marked transient (spec §7 transient/permanent split).
func TestCreateClassifiesConnectionFailureAsTransient(t *testing.T) {
	gdb, mock := openMockDB(t)
	db := relational.New[*mockUser](gdb, nil)

	// gorm's postgres dialector issues the INSERT as either a Query
	// (to read back a RETURNING clause) or a plain Exec depending on
	// driver/session settings; registering both unordered keeps this
	// test from depending on which path gorm takes.
	mock.MatchExpectationsInOrder(false)
	mock.ExpectBegin()
	mock.ExpectQuery(".*").WillReturnError(errConnectionResetByPeer)
	mock.ExpectExec(".*").WillReturnError(errConnectionResetByPeer)
	mock.ExpectRollback()
	mock.ExpectCommit()

	u := &mockUser{Name: "ada"}
	err := db.Create(u)
	require.Error(t, err)
	require.True(t, dberrors.KindIs(err, dberrors.KindDriver))
}

var errConnectionResetByPeer = &pseudoDriverErr{msg: "connection reset by peer"}

type pseudoDriverErr struct{ msg string }

func (e *pseudoDriverErr) Error() string { return e.msg }
