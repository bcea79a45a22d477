package main

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := commandLogger(cmd)
		if err != nil {
			return err
		}
		cfg, err := commandConfig(cmd)
		if err != nil {
			return err
		}

		store, err := openStore(cmd.Context(), cfg, true)
		if err != nil {
			return err
		}
		defer store.Close()

		logger.Info("schema migrated", "driver", cfg.Database.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
