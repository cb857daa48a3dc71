package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/batch"
)

var (
	batchInput   string
	batchOutput  string
	batchWorkers int
	batchNoGeo   bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Validate engine output against tenant-verified provider records",
	Long:  "Reads addresses plus tenant-entered providers from CSV or XLSX, runs every address through the engine, and classifies each comparison (MATCH, MATCH_TDU, MISMATCH, ...).",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		rows, err := batch.ReadRows(batchInput)
		if err != nil {
			return err
		}
		zap.L().Info("input loaded", zap.String("path", batchInput), zap.Int("rows", len(rows)))

		env, err := initEngine(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer env.Close()

		if !env.Engine.Loaded() {
			return eris.Wrap(errTransient, "engine not ready")
		}

		geocoder := env.Geocoder
		if batchNoGeo {
			geocoder = nil
		}
		workers := batchWorkers
		if workers == 0 {
			workers = cfg.Batch.LookupWorkers
		}
		runner := batch.NewRunner(env.Engine, geocoder, batch.NewComparator(env.Norm),
			batch.WithGeocodeWorkers(cfg.Batch.GeocodeWorkers),
			batch.WithLookupWorkers(workers),
			batch.WithChunkSize(cfg.Batch.ChunkSize),
		)

		report, err := runner.Run(cmd.Context(), rows)
		if err != nil {
			return err
		}

		if batchOutput != "" {
			if strings.HasSuffix(strings.ToLower(batchOutput), ".xlsx") {
				err = report.WriteXLSX(batchOutput)
			} else {
				err = report.WriteCSV(batchOutput)
			}
			if err != nil {
				return err
			}
			zap.L().Info("results written", zap.String("path", batchOutput))
		}

		fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "input CSV or XLSX file (required)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "output CSV or XLSX file")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "engine lookup workers (default from config)")
	batchCmd.Flags().BoolVar(&batchNoGeo, "skip-bulk-geocode", false, "skip the bulk geocode phase")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}
