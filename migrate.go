package main

import (
	"fmt"

	"tracker/config"
	"tracker/database"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the tracking tables and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			db, err := database.ConnectDb(cfg)
			if err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			sqlDB, err := db.DB()
			if err == nil {
				sqlDB.Close()
			}
			return nil
		},
	}
}
