// Package scheduler drives vendor price lookups across a work list
// under a request-rate budget, with per-part retries, adaptive
// throttling, and checkpointed resume.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bluewater-supply/partsync/internal/classify"
	"github.com/bluewater-supply/partsync/internal/lookup"
	"github.com/bluewater-supply/partsync/internal/model"
	"github.com/bluewater-supply/partsync/internal/partnum"
	"github.com/bluewater-supply/partsync/internal/resilience"
)

// Config holds the fetch run knobs.
type Config struct {
	// Rate is the lookup budget in requests per second.
	Rate  rate.Limit
	Burst int
	// Concurrency bounds in-flight lookups.
	Concurrency int
	// MaxAttempts is the per-part attempt budget; only network and
	// throttle failures consume retries.
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// ProgressEvery is the progress log cadence, in resolved parts.
	ProgressEvery int
	// Grace is how long in-flight lookups may run past cancellation to
	// finish and checkpoint.
	Grace time.Duration
}

func (c Config) withDefaults() Config {
	if c.Rate <= 0 {
		c.Rate = 0.5
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
	if c.Concurrency < 1 {
		c.Concurrency = 4
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.ProgressEvery < 1 {
		c.ProgressEvery = 50
	}
	if c.Grace <= 0 {
		c.Grace = 15 * time.Second
	}
	return c
}

// OutcomeStore persists each part's terminal outcome as it resolves.
// The persisted set is the run's checkpoint: restarting a run skips
// every part already present.
type OutcomeStore interface {
	SaveOutcome(ctx context.Context, runID string, o model.FetchOutcome) error
	ListOutcomes(ctx context.Context, runID string) ([]model.FetchOutcome, error)
}

// Result aggregates one run's outcomes, including those resumed from
// an earlier interrupted attempt of the same run.
type Result struct {
	Outcomes []model.FetchOutcome
	Found    int
	NotFound int
	Failed   int
	// Skipped counts work items already resolved before this attempt.
	Skipped int
}

type Scheduler struct {
	cfg     Config
	client  lookup.Client
	store   OutcomeStore
	limiter *AdaptiveLimiter
}

func New(cfg Config, client lookup.Client, store OutcomeStore) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		cfg:     cfg,
		client:  client,
		store:   store,
		limiter: NewAdaptiveLimiter(cfg.Rate, cfg.Burst),
	}
}

// EffectiveRate returns the current lookup rate, after any throttle
// halvings this run.
func (s *Scheduler) EffectiveRate() rate.Limit {
	return s.limiter.Limit()
}

// Run resolves every work item to exactly one terminal outcome. Parts
// runID already resolved are skipped, so an interrupted run picks up
// where it left off. On cancellation the in-flight lookups get a grace
// window to finish and checkpoint; everything else stays unresolved
// and is retried next time.
func (s *Scheduler) Run(ctx context.Context, runID string, items []model.WorkItem) (*Result, error) {
	prior, err := s.store.ListOutcomes(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "load checkpoint for run %s", runID)
	}
	done := make(map[string]struct{}, len(prior))
	for _, o := range prior {
		done[o.PartNumber] = struct{}{}
	}

	pending := make([]model.WorkItem, 0, len(items))
	for _, item := range items {
		if _, ok := done[item.PartNumber]; !ok {
			pending = append(pending, item)
		}
	}

	res := &Result{Outcomes: prior, Skipped: len(items) - len(pending)}

	zap.L().Info("fetch: run starting",
		zap.String("run_id", runID),
		zap.Int("work_list", len(items)),
		zap.Int("resumed", res.Skipped),
		zap.Int("pending", len(pending)),
		zap.Float64("rate", float64(s.cfg.Rate)),
		zap.Int("concurrency", s.cfg.Concurrency),
	)

	lookupCtx, stopLookups := graceContext(ctx, s.cfg.Grace)
	defer stopLookups()

	var (
		mu        sync.Mutex
		resolvedN atomic.Int64
	)

	g, gctx := errgroup.WithContext(lookupCtx)
	g.SetLimit(s.cfg.Concurrency)

	for _, item := range pending {
		if ctx.Err() != nil || gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome, ferr := s.resolve(gctx, item)
			if ferr != nil {
				return ferr
			}
			if serr := s.store.SaveOutcome(gctx, runID, outcome); serr != nil {
				return eris.Wrapf(serr, "checkpoint %s", item.PartNumber)
			}
			mu.Lock()
			res.Outcomes = append(res.Outcomes, outcome)
			mu.Unlock()

			if n := resolvedN.Add(1); int(n)%s.cfg.ProgressEvery == 0 {
				zap.L().Info("fetch: progress",
					zap.Int64("resolved", n),
					zap.Int("pending", len(pending)),
					zap.Float64("effective_rate", float64(s.limiter.Limit())),
				)
			}
			return nil
		})
	}

	werr := g.Wait()
	s.tally(res)

	if werr == nil && ctx.Err() != nil {
		werr = ctx.Err()
	}
	if werr != nil {
		zap.L().Warn("fetch: run stopped early",
			zap.String("run_id", runID),
			zap.Int("resolved", len(res.Outcomes)),
			zap.Int("work_list", len(items)),
			zap.Error(werr),
		)
		return res, werr
	}

	zap.L().Info("fetch: run complete",
		zap.String("run_id", runID),
		zap.Int("found", res.Found),
		zap.Int("not_found", res.NotFound),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (s *Scheduler) tally(res *Result) {
	res.Found, res.NotFound, res.Failed = 0, 0, 0
	for _, o := range res.Outcomes {
		switch o.SourceStatus {
		case model.SourceFound:
			res.Found++
		case model.SourceNotFound:
			res.NotFound++
		default:
			res.Failed++
		}
	}
}

// resolve drives one work item to its terminal outcome. Outcomes are
// values; the error return is reserved for fatal conditions such as
// cancellation and portal auth failure.
func (s *Scheduler) resolve(ctx context.Context, item model.WorkItem) (model.FetchOutcome, error) {
	pageRef := strconv.Itoa(item.PageReference)

	// Grammar failures never reach the portal and never retry.
	if err := partnum.Validate(item.PartNumber); err != nil {
		return model.FetchOutcome{
			PartNumber:    item.PartNumber,
			SourceStatus:  model.SourceError,
			FetchedAt:     time.Now().UTC(),
			ErrorType:     classify.Classify(classify.Signal{PartNumber: item.PartNumber, InvalidFormat: true}),
			ErrorMessage:  err.Error(),
			PageReference: pageRef,
		}, nil
	}

	var last lookup.Result
	attempts := 0
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		attempts = attempt

		if err := s.limiter.Wait(ctx); err != nil {
			return model.FetchOutcome{}, eris.Wrapf(err, "rate limiter wait for %s", item.PartNumber)
		}

		res, err := s.client.Lookup(ctx, item.PartNumber)
		if err != nil {
			return model.FetchOutcome{}, err
		}
		last = res

		if last.Code == lookup.CodeFound && !classify.ValidPrice(last.UnitPrice) {
			last = lookup.Result{
				PartNumber: last.PartNumber,
				Code:       lookup.CodeInvalid,
				Detail:     fmt.Sprintf("price %.2f outside plausible range", last.UnitPrice),
			}
		}

		if last.Code == lookup.CodeFound {
			price := last.UnitPrice
			return model.FetchOutcome{
				PartNumber:    item.PartNumber,
				SourceStatus:  model.SourceFound,
				UnitPrice:     &price,
				FetchedAt:     time.Now().UTC(),
				Attempts:      attempts,
				PageReference: pageRef,
			}, nil
		}

		if last.Code == lookup.CodeRateLimited {
			s.limiter.OnThrottle()
		}

		if !last.Retryable() || attempt == s.cfg.MaxAttempts {
			break
		}

		delay := resilience.Backoff(attempt-1, resilience.RetryConfig{
			BaseBackoff: s.cfg.BackoffBase,
			MaxBackoff:  s.cfg.BackoffMax,
			Multiplier:  2,
		})
		zap.L().Debug("fetch: retrying part",
			zap.String("part_number", item.PartNumber),
			zap.String("outcome", string(last.Code)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return model.FetchOutcome{}, ctx.Err()
		case <-timer.C:
		}
	}

	status := model.SourceError
	if last.Code == lookup.CodeNotFound {
		status = model.SourceNotFound
	}
	return model.FetchOutcome{
		PartNumber:    item.PartNumber,
		SourceStatus:  status,
		FetchedAt:     time.Now().UTC(),
		Attempts:      attempts,
		ErrorType:     classify.Classify(classify.Signal{PartNumber: item.PartNumber, LookupCode: last.Code}),
		ErrorMessage:  last.Detail,
		PageReference: pageRef,
	}, nil
}

// graceContext returns a context that stays alive for grace after
// parent cancels, then cancels itself.
func graceContext(parent context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	detached, cancel := context.WithCancel(context.WithoutCancel(parent))
	go func() {
		select {
		case <-detached.Done():
			return
		case <-parent.Done():
		}
		t := time.NewTimer(grace)
		defer t.Stop()
		select {
		case <-t.C:
			cancel()
		case <-detached.Done():
		}
	}()
	return detached, cancel
}
