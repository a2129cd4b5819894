package main

import (
	"fmt"

	"github.com/dataplane/orm/migrate"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migration",
	Short: "Manage file-based UP/DOWN SQL migrations",
	Long:  "Create, inspect, apply, and roll back the engine's file-based UP/DOWN SQL migrations",
}

var migrateInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the _migrations tracking table",
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := openDB()
		if err != nil {
			return err
		}
		return migrate.New(gdb).Init()
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := openDB()
		if err != nil {
			return err
		}
		applied, pending, err := migrate.New(gdb).Status(migrationDir)
		if err != nil {
			return err
		}
		fmt.Println("applied:")
		for _, rec := range applied {
			fmt.Printf("  %s  %s  applied_at=%s\n", rec.Version, rec.Description, rec.AppliedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		fmt.Println("pending:")
		for _, m := range pending {
			fmt.Printf("  %s  %s\n", m.Version, m.Description)
		}
		return nil
	},
}

var migrateApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply every pending migration in ascending version order",
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := openDB()
		if err != nil {
			return err
		}
		return migrate.New(gdb).Apply(migrationDir)
	},
}

var rollbackSteps int

var migrateRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Reverse the last applied migration(s)",
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := openDB()
		if err != nil {
			return err
		}
		return migrate.New(gdb).Rollback(migrationDir, rollbackSteps)
	},
}

var migrateCreateCmd = &cobra.Command{
	Use:   "create [description]",
	Short: "Generate a new migration file with UP/DOWN placeholders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := migrate.Create(migrationDir, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("created %s\n", path)
		return nil
	},
}

func init() {
	migrateRollbackCmd.Flags().IntVar(&rollbackSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateInitCmd, migrateStatusCmd, migrateApplyCmd, migrateRollbackCmd, migrateCreateCmd)
}
