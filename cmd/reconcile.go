package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bluewater-supply/partsync/internal/catalog"
	"github.com/bluewater-supply/partsync/internal/freshness"
	"github.com/bluewater-supply/partsync/internal/model"
	"github.com/bluewater-supply/partsync/internal/reconcile"
	"github.com/bluewater-supply/partsync/internal/store"
)

var (
	reconcileExtract    string
	reconcileRunID      string
	reconcileSkipExport bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Merge the latest fetch run into a new snapshot",
	Long:  "Merges the newest extraction artifact, the latest snapshot, and the named run's checkpointed outcomes into a new immutable snapshot, then writes the feed, backup, and error report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ex, err := loadArtifact(reconcileExtract)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := reconcileRun(ctx, st, ex, reconcileRunID)
		if err != nil {
			return err
		}

		out, err := runReconcile(ctx, st, ex, run, "", reconcileSkipExport)
		if err != nil {
			return err
		}

		printReconcileSummary(out)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileExtract, "extract", "", "extraction artifact path (default: newest under data/extracts)")
	reconcileCmd.Flags().StringVar(&reconcileRunID, "run", "", "fetch run to merge (default: latest)")
	reconcileCmd.Flags().BoolVar(&reconcileSkipExport, "skip-export", false, "write the snapshot but no feed or backup files")
	rootCmd.AddCommand(reconcileCmd)
}

// reconcileRun picks the fetch run whose outcomes feed the merge. The
// run must belong to the same catalog file and still hold its
// checkpoints.
func reconcileRun(ctx context.Context, st store.Store, ex *catalog.Extraction, runID string) (*model.FetchRun, error) {
	var run *model.FetchRun
	var err error
	if runID != "" {
		run, err = st.GetRun(ctx, runID)
	} else {
		run, err = st.LatestRun(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return nil, eris.New("no fetch runs recorded; run partsync fetch first, or use process --skip-prices")
		}
	}
	if err != nil {
		return nil, eris.Wrap(err, "select run to reconcile")
	}

	if run.CatalogChecksum != ex.Checksum {
		return nil, eris.Errorf("run %s belongs to a different catalog (checksum mismatch)", run.ID)
	}
	if run.Status == model.RunStatusReconciled {
		return nil, eris.Errorf("run %s is already reconciled; its checkpoints are gone", run.ID)
	}
	return run, nil
}

// reconcileOutput collects everything one reconciliation produced.
type reconcileOutput struct {
	Snapshot   *model.Snapshot
	Stats      reconcile.Stats
	Notes      []string
	FeedPath   string
	BackupPath string
	ReportPath string
}

// runReconcile merges the extraction, the prior snapshot, and the run's
// outcomes (run may be nil for catalog-only merges) into a new
// snapshot, persists it, retires the run, and exports the feed and
// backup files unless told not to.
func runReconcile(ctx context.Context, st store.Store, ex *catalog.Extraction, run *model.FetchRun, outDir string, skipExport bool) (*reconcileOutput, error) {
	prior, err := priorSnapshot(ctx, st)
	if err != nil {
		return nil, err
	}

	var outcomes []model.FetchOutcome
	if run != nil {
		outcomes, err = st.ListOutcomes(ctx, run.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "load outcomes for run %s", run.ID)
		}
	}
	prices := make([]model.PriceRecord, 0, len(outcomes))
	for _, o := range outcomes {
		prices = append(prices, o.Price())
	}

	eng := reconcile.New(freshness.NewPolicy(cfg.Fetch.StaleAfter()), cfg.Export.SKUPrefix, cfg.Vendor.Name)
	res := eng.Merge(reconcile.Inputs{
		CatalogVersion: ex.CatalogVersion,
		Catalog:        ex.Records,
		Prior:          prior,
		Prices:         prices,
		Now:            time.Now().UTC(),
	})

	for _, note := range res.Notes {
		zap.L().Info("reconcile: audit note", zap.String("note", note))
	}

	stored, err := st.SaveSnapshot(ctx, res.Snapshot)
	if err != nil {
		return nil, eris.Wrap(err, "save snapshot")
	}
	zap.L().Info("snapshot saved",
		zap.String("snapshot_id", stored.ID),
		zap.String("catalog_version", stored.CatalogVersion),
		zap.Int("entries", len(stored.Entries)),
		zap.Int("new_parts", res.Stats.NewParts),
		zap.Int("price_updates", res.Stats.PriceUpdates),
	)

	out := &reconcileOutput{Snapshot: stored, Stats: res.Stats, Notes: res.Notes}

	reportAt := ex.ExtractedAt
	if run != nil {
		reportAt = run.StartedAt
	}
	out.ReportPath, err = writeErrorReport(ex, reportAt, outcomes)
	if err != nil {
		zap.L().Error("error report not written", zap.Error(err))
	}

	if run != nil {
		run.Status = model.RunStatusReconciled
		if err := st.UpdateRun(ctx, run); err != nil {
			return out, eris.Wrapf(err, "mark run %s reconciled", run.ID)
		}
		if err := st.ClearOutcomes(ctx, run.ID); err != nil {
			return out, eris.Wrapf(err, "clear checkpoints for run %s", run.ID)
		}
	}

	if skipExport {
		return out, nil
	}

	if outDir == "" {
		outDir = cfg.Data.OutputsDir()
	}
	out.FeedPath, err = writeFeedFile(stored, outDir, "csv", "")
	if err != nil {
		return out, err
	}
	out.BackupPath, err = writeBackupFile(stored)
	if err != nil {
		return out, err
	}

	return out, nil
}

func printReconcileSummary(out *reconcileOutput) {
	s := out.Stats
	fmt.Fprintf(os.Stdout, "Snapshot %s (%s): %d entries\n",
		out.Snapshot.ID, out.Snapshot.CatalogVersion, s.Total)
	fmt.Fprintf(os.Stdout, "  active %d, price_pending %d, discontinued %d\n",
		s.Active, s.PricePending, s.Discontinued)
	fmt.Fprintf(os.Stdout, "  new parts %d, price updates %d, audit notes %d\n",
		s.NewParts, s.PriceUpdates, len(out.Notes))
	if out.FeedPath != "" {
		fmt.Fprintf(os.Stdout, "Feed: %s\n", out.FeedPath)
	}
	if out.BackupPath != "" {
		fmt.Fprintf(os.Stdout, "Backup: %s\n", out.BackupPath)
	}
	if out.ReportPath != "" {
		fmt.Fprintf(os.Stdout, "Error report: %s\n", out.ReportPath)
	}
}
