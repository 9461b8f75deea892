package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/billscan/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "billscan",
	Short: "Utility bill consumption extraction service",
	Long:  "Extracts historical consumption data from scanned utility bills via OCR and Claude, accumulates per-page records in resumable sessions, and aggregates them into one grouped report.",
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
