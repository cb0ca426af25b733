package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bluewater-supply/partsync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "partsync",
	Short: "Parts catalog pricing pipeline",
	Long:  "Extracts part records from vendor catalog PDFs, fetches dealer prices under a rate budget, reconciles them into immutable snapshots, and exports the price feed.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
