package migrate_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/migrate"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	return gdb
}

func writeMigration(t *testing.T, dir, version, desc, up, down string) string {
	t.Helper()
	path := filepath.Join(dir, version+"_"+desc+".sql")
	content := "-- UP\n" + up + "\n\n-- DOWN\n" + down + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestApplyRunsPendingInAscendingOrder(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "20240101_000000", "create_widgets",
		"CREATE TABLE widgets (id TEXT PRIMARY KEY, name TEXT)",
		"DROP TABLE widgets")
	writeMigration(t, dir, "20240102_000000", "add_widgets_index",
		"CREATE INDEX idx_widgets_name ON widgets (name)",
		"DROP INDEX idx_widgets_name")

	gdb := openTestDB(t)
	r := migrate.New(gdb)
	require.NoError(t, r.Apply(dir))

	applied, pending, err := r.Status(dir)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	require.Empty(t, pending)

	var count int64
	require.NoError(t, gdb.Raw("SELECT count(*) FROM sqlite_master WHERE type='table' AND name='widgets'").Scan(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestApplyIsIdempotentOnAlreadyApplied(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "20240101_000000", "create_widgets",
		"CREATE TABLE widgets (id TEXT PRIMARY KEY)",
		"DROP TABLE widgets")

	gdb := openTestDB(t)
	r := migrate.New(gdb)
	require.NoError(t, r.Apply(dir))
	require.NoError(t, r.Apply(dir))

	applied, _, err := r.Status(dir)
	require.NoError(t, err)
	require.Len(t, applied, 1)
}

func TestApplyDetectsChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeMigration(t, dir, "20240101_000000", "create_widgets",
		"CREATE TABLE widgets (id TEXT PRIMARY KEY)",
		"DROP TABLE widgets")

	gdb := openTestDB(t)
	r := migrate.New(gdb)
	require.NoError(t, r.Apply(dir))

	require.NoError(t, os.WriteFile(path, []byte("-- UP\nCREATE TABLE widgets (id TEXT PRIMARY KEY, extra TEXT)\n\n-- DOWN\nDROP TABLE widgets\n"), 0o644))

	err := r.Apply(dir)
	require.Error(t, err)
	require.True(t, dberrors.KindIs(err, dberrors.KindChecksumMismatch))
}

func TestApplyDetectsMissingFile(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "20240101_000000", "create_widgets",
		"CREATE TABLE widgets (id TEXT PRIMARY KEY)",
		"DROP TABLE widgets")

	gdb := openTestDB(t)
	r := migrate.New(gdb)
	require.NoError(t, r.Apply(dir))

	require.NoError(t, os.Remove(filepath.Join(dir, "20240101_000000_create_widgets.sql")))

	_, _, err := r.Status(dir)
	require.NoError(t, err) // Status doesn't verify integrity, only Apply does

	err = r.Apply(dir)
	require.Error(t, err)
	require.True(t, dberrors.KindIs(err, dberrors.KindMigrationMissing))
}

func TestRollbackReversesLastAppliedMigration(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "20240101_000000", "create_widgets",
		"CREATE TABLE widgets (id TEXT PRIMARY KEY)",
		"DROP TABLE widgets")
	writeMigration(t, dir, "20240102_000000", "create_gadgets",
		"CREATE TABLE gadgets (id TEXT PRIMARY KEY)",
		"DROP TABLE gadgets")

	gdb := openTestDB(t)
	r := migrate.New(gdb)
	require.NoError(t, r.Apply(dir))
	require.NoError(t, r.Rollback(dir, 1))

	applied, pending, err := r.Status(dir)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	require.Len(t, pending, 1)
	require.Equal(t, "20240101_000000", applied[0].Version)

	var count int64
	require.NoError(t, gdb.Raw("SELECT count(*) FROM sqlite_master WHERE type='table' AND name='gadgets'").Scan(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestCreateWritesTemplateFile(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.Create(dir, "Add Users Table")
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Contains(t, filepath.Base(path), "add_users_table")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), "-- UP")
	require.Contains(t, string(content), "-- DOWN")
}

func TestParseContentRejectsMissingSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "20240101_000000_bad.sql")
	require.NoError(t, os.WriteFile(path, []byte("CREATE TABLE x (id TEXT)"), 0o644))

	gdb := openTestDB(t)
	r := migrate.New(gdb)
	err := r.Apply(dir)
	require.Error(t, err)
}
