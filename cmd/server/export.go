package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rl1809/scrap-lifecycle/internal/adapter/report"
	"github.com/rl1809/scrap-lifecycle/internal/config"
	"github.com/rl1809/scrap-lifecycle/internal/core/service"
	"github.com/rl1809/scrap-lifecycle/internal/logger"
)

var (
	exportOut         string
	exportInventoryID int64
)

var exportHistoryCmd = &cobra.Command{
	Use:   "export-history",
	Short: "Write the lifecycle audit log to an .xlsx file",
	Long: `Write the lifecycle audit log, newest entries first, to an Excel workbook.

Examples:
  # Whole history
  scrap-lifecycle export-history --out history.xlsx

  # One lot
  scrap-lifecycle export-history --inventory-id 42 --out lot42.xlsx`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log := logger.New(cfg.App.Env)

		store, err := openStore(cmd.Context(), cfg, log, false)
		if err != nil {
			return err
		}
		defer store.Close()

		var inventoryID *int64
		if exportInventoryID > 0 {
			inventoryID = &exportInventoryID
		}
		entries, err := service.NewLifecycleService(store, service.WithLogger(log)).ListHistory(cmd.Context(), inventoryID)
		if err != nil {
			return err
		}

		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOut, err)
		}
		if err := report.WriteHistoryXLSX(f, entries); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", exportOut, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d entries to %s\n", len(entries), exportOut)
		return nil
	},
}

func init() {
	exportHistoryCmd.Flags().StringVarP(&exportOut, "out", "o", "lifecycle_history.xlsx", "output file")
	exportHistoryCmd.Flags().Int64Var(&exportInventoryID, "inventory-id", 0, "only export this lot (0 for all)")
}
