package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rl1809/scrap-lifecycle/internal/adapter/storage"
	"github.com/rl1809/scrap-lifecycle/internal/config"
	"github.com/rl1809/scrap-lifecycle/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log := logger.New(cfg.App.Env)

		dialect, err := storage.ParseDialect(cfg.Database.Driver)
		if err != nil {
			return err
		}
		db, err := storage.Open(cmd.Context(), storage.DBConfig{Dialect: dialect, DSN: cfg.Database.DSN})
		if err != nil {
			return err
		}
		defer db.Close()

		if err := storage.Migrate(cmd.Context(), db, dialect, log); err != nil {
			return err
		}
		version, err := storage.MigrationVersion(cmd.Context(), db, dialect)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
		return nil
	},
}
