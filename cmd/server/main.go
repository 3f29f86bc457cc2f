package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "scrap-lifecycle",
	Short: "Scrap-metal inventory lifecycle and audit service",
	Long: `scrap-lifecycle tracks scrap-metal lots through collection, sorting,
cleaning, melting and distribution, recording every transition in an
append-only audit log.

Running without a subcommand starts the HTTP and gRPC servers.`,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml",
		"path to the YAML config file (empty for defaults and APP_* env only)")
	rootCmd.AddCommand(serveCmd, migrateCmd, exportHistoryCmd)
}

func main() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
