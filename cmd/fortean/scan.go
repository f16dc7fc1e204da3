package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fortean/internal/scan"
)

var (
	scanType string
	scanFrom string
	scanTo   string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the corpus for pattern candidates without validating them",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		filter, err := recordFilter(scanType, scanFrom, scanTo)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		records, err := env.Records.FetchAll(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "fetch records")
		}
		if len(records) == 0 {
			return eris.New("no records match the filter")
		}

		scanner := scan.NewScanner(cfg.Research.GridResolution)
		candidates, err := scanner.Scan(ctx, records)
		if err != nil {
			return eris.Wrap(err, "scan corpus")
		}

		zap.L().Info("scan complete",
			zap.Int("records", len(records)),
			zap.Int("candidates", len(candidates)),
		)

		out := json.NewEncoder(os.Stdout)
		out.SetIndent("", "  ")
		return out.Encode(candidates)
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanType, "type", "", "restrict to one phenomenon type (ufo, cryptid, haunting)")
	scanCmd.Flags().StringVar(&scanFrom, "from", "", "earliest observation date (2006-01-02)")
	scanCmd.Flags().StringVar(&scanTo, "to", "", "latest observation date (2006-01-02)")
	rootCmd.AddCommand(scanCmd)
}
