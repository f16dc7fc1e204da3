package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fortean/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fortean",
	Short: "Anomaly research pipeline",
	Long:  "Ingests geotagged anomaly reports, scans the corpus for geographic, temporal, and attribute patterns, validates candidate hypotheses against a statistical gate, and publishes findings.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env, when present, seeds the process environment before viper reads it
		_ = godotenv.Load()

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
