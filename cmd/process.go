package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bluewater-supply/partsync/internal/model"
	"github.com/bluewater-supply/partsync/internal/scheduler"
)

var (
	processSkipPrices  bool
	processForce       bool
	processRate        float64
	processConcurrency int
	processOut         string
)

var processCmd = &cobra.Command{
	Use:   "process <catalog.pdf>",
	Short: "Run the full pipeline for one catalog PDF",
	Long:  "Extracts the catalog, fetches dealer prices for every part needing a refresh, reconciles the results into a new snapshot, and exports the feed, backup, and error report.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ex, _, err := extractCatalog(ctx, args[0])
		if err != nil {
			return err
		}

		var run *model.FetchRun
		if processSkipPrices {
			zap.L().Info("skipping price fetch (--skip-prices)")
		} else {
			client, err := initPortal(ctx)
			if err != nil {
				return err
			}

			var res *scheduler.Result
			run, res, err = runFetch(ctx, st, client, ex, fetchParams{
				rate:        processRate,
				concurrency: processConcurrency,
				force:       processForce,
			})
			if err != nil {
				// Preserve what the run achieved before stopping; the
				// checkpoints make the run resumable.
				if run != nil {
					var outcomes []model.FetchOutcome
					if res != nil {
						outcomes = res.Outcomes
					}
					if _, rerr := writeErrorReport(ex, run.StartedAt, outcomes); rerr != nil {
						zap.L().Error("error report not written", zap.Error(rerr))
					}
				}
				return err
			}
		}

		out, err := runReconcile(ctx, st, ex, run, processOut, false)
		if err != nil {
			return err
		}

		printReconcileSummary(out)
		return nil
	},
}

func init() {
	processCmd.Flags().BoolVar(&processSkipPrices, "skip-prices", false, "reconcile from the catalog only, without fetching prices")
	processCmd.Flags().BoolVar(&processForce, "force-refresh", false, "fetch every catalog part regardless of freshness")
	processCmd.Flags().Float64Var(&processRate, "rate", 0, "lookup rate in requests/sec (default from config)")
	processCmd.Flags().IntVar(&processConcurrency, "concurrency", 0, "in-flight lookup bound (default from config)")
	processCmd.Flags().StringVar(&processOut, "out", "", "feed output directory (default: data/outputs)")
	rootCmd.AddCommand(processCmd)
}
