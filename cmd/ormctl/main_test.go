package main

import (
	"bytes"
	"testing"

	"github.com/dataplane/orm/config"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	require.Contains(t, names, "migration")
	require.Contains(t, names, "config")
}

func TestMigrationCommandRegistersSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range migrateCmd.Commands() {
		names = append(names, c.Name())
	}
	require.ElementsMatch(t, []string{"init", "status", "apply", "rollback", "create"}, names)
}

func TestConfigCommandPrintsResolvedConfig(t *testing.T) {
	require.NoError(t, config.Init())
	defer config.Clean()

	out := &bytes.Buffer{}
	configCmd.SetOut(out)
	require.NoError(t, configCmd.RunE(configCmd, nil))
}

func TestOpenDBOpensSQLiteWhenConfigured(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	require.NoError(t, config.Init())
	defer config.Clean()
	require.Equal(t, "sqlite", config.App.Database.Driver)

	gdb, err := openDB()
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())
}

func TestOpenDBRejectsUnsupportedDriver(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "oracle")
	require.NoError(t, config.Init())
	defer config.Clean()

	_, err := openDB()
	require.Error(t, err)
}
