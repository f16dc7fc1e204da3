package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fortean/adapters/feed"
)

var (
	ingestFile       string
	ingestBatchSize  int
	ingestMaxRecords int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a feed file of event records into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		batchSize := cfg.Ingest.BatchSize
		if ingestBatchSize > 0 {
			batchSize = ingestBatchSize
		}
		maxRecords := cfg.Ingest.MaxRecords
		if ingestMaxRecords > 0 {
			maxRecords = ingestMaxRecords
		}

		ingestor := feed.NewIngestor(env.Records, batchSize, maxRecords)
		summary, err := ingestor.IngestFile(ctx, ingestFile)
		if err != nil {
			return eris.Wrapf(err, "ingest %s", ingestFile)
		}

		zap.L().Info("ingest complete",
			zap.String("file", summary.SourcePath),
			zap.Int("read", summary.Read),
			zap.Int("skipped", summary.Skipped),
			zap.Int("written", summary.Written),
		)

		out := json.NewEncoder(os.Stdout)
		out.SetIndent("", "  ")
		return out.Encode(summary)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "feed file (.jsonl, .csv, or .xlsx)")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "records per write batch (default from config)")
	ingestCmd.Flags().IntVar(&ingestMaxRecords, "max-records", 0, "quality-ranked record cap (default from config)")
	_ = ingestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ingestCmd)
}
