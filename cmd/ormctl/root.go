package main

import (
	"fmt"
	"os"

	"github.com/dataplane/orm/config"
	"github.com/dataplane/orm/logger"
	"github.com/spf13/cobra"
)

var migrationDir string

var rootCmd = &cobra.Command{
	Use:     "ormctl",
	Short:   "dataplane orm control CLI",
	Long:    "dataplane orm control CLI: database migrations and configuration inspection",
	Version: "1.0.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(); err != nil {
			return err
		}
		return logger.Init(config.App)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&migrationDir, "dir", "migrations", "migration files directory")
	rootCmd.AddCommand(migrateCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
