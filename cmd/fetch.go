package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bluewater-supply/partsync/internal/catalog"
	"github.com/bluewater-supply/partsync/internal/classify"
	"github.com/bluewater-supply/partsync/internal/freshness"
	"github.com/bluewater-supply/partsync/internal/lookup"
	"github.com/bluewater-supply/partsync/internal/model"
	"github.com/bluewater-supply/partsync/internal/scheduler"
	"github.com/bluewater-supply/partsync/internal/store"
)

var (
	fetchExtract     string
	fetchRunID       string
	fetchForce       bool
	fetchRate        float64
	fetchConcurrency int
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch dealer prices for the newest extraction",
	Long:  "Builds a work list from the newest extraction artifact and the freshness policy, then resolves each part against the dealer portal under the rate budget. Interrupted runs resume from their checkpoints when the catalog checksum still matches.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ex, err := loadArtifact(fetchExtract)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		client, err := initPortal(ctx)
		if err != nil {
			return err
		}

		run, res, err := runFetch(ctx, st, client, ex, fetchParams{
			rate:        fetchRate,
			concurrency: fetchConcurrency,
			force:       fetchForce,
			runID:       fetchRunID,
		})
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
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchExtract, "extract", "", "extraction artifact path (default: newest under data/extracts)")
	fetchCmd.Flags().StringVar(&fetchRunID, "run", "", "run ID to resume explicitly")
	fetchCmd.Flags().BoolVar(&fetchForce, "force-refresh", false, "fetch every catalog part regardless of freshness")
	fetchCmd.Flags().Float64Var(&fetchRate, "rate", 0, "lookup rate in requests/sec (default from config)")
	fetchCmd.Flags().IntVar(&fetchConcurrency, "concurrency", 0, "in-flight lookup bound (default from config)")
	rootCmd.AddCommand(fetchCmd)
}

// fetchParams carries the per-invocation fetch knobs.
type fetchParams struct {
	rate        float64
	concurrency int
	force       bool
	runID       string
}

// runFetch drives one price-fetch run to completion: work list, run
// record (new or resumed), scheduler, and final counters. The returned
// run is non-nil whenever a run record exists, even on error, so
// callers can still report against it.
func runFetch(ctx context.Context, st store.Store, client lookup.Client, ex *catalog.Extraction, p fetchParams) (*model.FetchRun, *scheduler.Result, error) {
	prior, err := priorSnapshot(ctx, st)
	if err != nil {
		return nil, nil, err
	}

	policy := freshness.NewPolicy(cfg.Fetch.StaleAfter())
	now := time.Now().UTC()
	items := scheduler.BuildWorkList(ex.Records, prior, policy, now, p.force)
	fresh := len(ex.Records) - len(items)

	run, err := resolveRun(ctx, st, ex, p.runID, len(items))
	if err != nil {
		return nil, nil, err
	}

	schedCfg := scheduler.Config{
		Rate:          rate.Limit(cfg.Fetch.RatePerSec),
		Burst:         cfg.Fetch.Burst,
		Concurrency:   cfg.Fetch.Concurrency,
		MaxAttempts:   cfg.Fetch.MaxAttempts,
		BackoffBase:   cfg.Fetch.BackoffBase(),
		BackoffMax:    cfg.Fetch.BackoffMax(),
		ProgressEvery: cfg.Fetch.CheckpointEvery,
	}
	if p.rate > 0 {
		schedCfg.Rate = rate.Limit(p.rate)
	}
	if p.concurrency > 0 {
		schedCfg.Concurrency = p.concurrency
	}

	sched := scheduler.New(schedCfg, client, st)
	res, runErr := sched.Run(ctx, run.ID, items)

	run.TotalItems = len(items)
	run.Skipped = fresh
	if res != nil {
		run.Found, run.NotFound, run.Failed = res.Found, res.NotFound, res.Failed
	}

	switch {
	case runErr == nil:
		run.Status = model.RunStatusCompleted
		completed := time.Now().UTC()
		run.CompletedAt = &completed
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		// Interrupted: leave the run resumable.
		run.Status = model.RunStatusRunning
	default:
		run.Status = model.RunStatusFailed
		completed := time.Now().UTC()
		run.CompletedAt = &completed
	}

	if uerr := st.UpdateRun(ctx, run); uerr != nil {
		zap.L().Error("run record not updated", zap.String("run_id", run.ID), zap.Error(uerr))
		if runErr == nil {
			runErr = uerr
		}
	}

	zap.L().Info("fetch: run summary",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("total", run.TotalItems),
		zap.Int("found", run.Found),
		zap.Int("not_found", run.NotFound),
		zap.Int("failed", run.Failed),
		zap.Int("fresh_skipped", run.Skipped),
		zap.Duration("duration", run.Duration()),
		zap.Float64("effective_rate", float64(sched.EffectiveRate())),
	)

	return run, res, runErr
}

// resolveRun picks the run record to execute against: the one named
// explicitly, an interrupted run for the same catalog, or a new one.
func resolveRun(ctx context.Context, st store.Store, ex *catalog.Extraction, runID string, totalItems int) (*model.FetchRun, error) {
	if runID != "" {
		run, err := st.GetRun(ctx, runID)
		if err != nil {
			return nil, eris.Wrapf(err, "run %s", runID)
		}
		if run.CatalogChecksum != ex.Checksum {
			return nil, eris.Errorf("run %s belongs to a different catalog (checksum mismatch)", runID)
		}
		if run.Status == model.RunStatusReconciled {
			return nil, eris.Errorf("run %s is already reconciled", runID)
		}
		zap.L().Info("resuming run", zap.String("run_id", run.ID), zap.String("status", string(run.Status)))
		return run, nil
	}

	if run, err := findResumableRun(ctx, st, ex.Checksum); err != nil {
		return nil, err
	} else if run != nil {
		zap.L().Info("resuming interrupted run",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
			zap.Time("started_at", run.StartedAt),
		)
		return run, nil
	}

	return st.CreateRun(ctx, ex.CatalogVersion, ex.Checksum, totalItems)
}

// findResumableRun returns the newest interrupted or failed run whose
// checkpoint set belongs to the same catalog file.
func findResumableRun(ctx context.Context, st store.Store, checksum string) (*model.FetchRun, error) {
	runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 50})
	if err != nil {
		return nil, eris.Wrap(err, "scan for resumable runs")
	}
	for i := range runs {
		r := &runs[i]
		if r.CatalogChecksum != checksum {
			continue
		}
		if r.Status == model.RunStatusRunning || r.Status == model.RunStatusFailed {
			return r, nil
		}
	}
	return nil, nil
}

// loadArtifact opens the named extraction artifact, or the newest one
// under the extracts directory when path is empty.
func loadArtifact(path string) (*catalog.Extraction, error) {
	if path == "" {
		newest, err := latestArtifact(cfg.Data.ExtractsDir())
		if err != nil {
			return nil, err
		}
		path = newest
	}
	ex, err := catalog.LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	zap.L().Info("extraction artifact loaded",
		zap.String("path", path),
		zap.String("catalog_version", ex.CatalogVersion),
		zap.Int("records", len(ex.Records)),
	)
	return ex, nil
}

// latestArtifact finds the most recently written extraction artifact.
func latestArtifact(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "extraction_*.json"))
	if err != nil {
		return "", eris.Wrapf(err, "scan %s", dir)
	}
	if len(matches) == 0 {
		return "", eris.Errorf("no extraction artifacts under %s; run partsync extract first", dir)
	}

	type candidate struct {
		path string
		mod  time.Time
	}
	cands := make([]candidate, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		cands = append(cands, candidate{path: m, mod: info.ModTime()})
	}
	if len(cands) == 0 {
		return "", eris.Errorf("no readable extraction artifacts under %s", dir)
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].mod.After(cands[j].mod) })
	return cands[0].path, nil
}

// writeErrorReport writes the run's error report CSV: page-scoped
// extraction failures plus every part that ended the run without a
// price. The report is named after the run's start time so a resumed
// run regenerates the same file. Returns the report path.
func writeErrorReport(ex *catalog.Extraction, at time.Time, outcomes []model.FetchOutcome) (string, error) {
	rep := classify.NewReporter()
	for _, rec := range ex.Errors {
		rep.Record(rec)
	}
	for _, o := range outcomes {
		if rec := o.Error(); rec != nil {
			rep.Record(*rec)
		}
	}

	dir := cfg.Data.ErrorsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "create errors dir %s", dir)
	}
	path := filepath.Join(dir, classify.ReportFileName(at))

	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "create error report %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := classify.WriteReport(f, rep.Records()); err != nil {
		return "", err
	}

	zap.L().Info("error report written",
		zap.String("path", path),
		zap.Int("records", rep.Len()),
	)
	return path, nil
}
