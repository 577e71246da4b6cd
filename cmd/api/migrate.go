package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/yourusername/debt-tracer/internal/config"
	"github.com/yourusername/debt-tracer/internal/database"
)

func newMigrateCmd() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "データベースのマイグレーションを実行します",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runMigrate(cmd, cfg.DatabaseURL, down)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "すべてのマイグレーションを巻き戻す")
	return cmd
}

func runMigrate(cmd *cobra.Command, databaseURL string, down bool) error {
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL is required")
	}

	migrator, err := database.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer migrator.Close()

	if down {
		cmd.Println("Rolling back all migrations...")
		err = migrator.Down()
	} else {
		cmd.Println("Running migrations...")
		err = migrator.Up()
	}
	if err != nil {
		return err
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	cmd.Printf("Schema version: %d (dirty: %t)\n", version, dirty)
	return nil
}
