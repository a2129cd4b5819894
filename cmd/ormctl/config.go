package main

import (
	"encoding/json"
	"fmt"

	"github.com/dataplane/orm/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the resolved runtime configuration",
	Long:  "Dump the engine's resolved configuration (env > config file > defaults, spec §6)",
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := json.MarshalIndent(config.App, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(content))
		return nil
	},
}
