package main

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bluewater-supply/partsync/internal/config"
	"github.com/bluewater-supply/partsync/internal/lookup"
	"github.com/bluewater-supply/partsync/internal/model"
	"github.com/bluewater-supply/partsync/internal/resilience"
	"github.com/bluewater-supply/partsync/internal/store"
	"github.com/bluewater-supply/partsync/pkg/dealerdata"
)

// initStore opens the configured backend and applies migrations.
// Callers defer st.Close().
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initPortal builds the dealer portal client and logs in eagerly so
// credential problems surface before a run starts. Login retries
// transient failures; a credential rejection aborts immediately.
func initPortal(ctx context.Context) (lookup.Client, error) {
	username, password, err := config.ResolveVendorLogin(cfg.Vendor)
	if err != nil {
		return nil, err
	}

	portal := dealerdata.NewClient(cfg.Vendor.BaseURL, username, password,
		dealerdata.WithTimeout(cfg.Vendor.Timeout()))

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.ShouldRetry = func(err error) bool {
		return !errors.Is(err, dealerdata.ErrAuth)
	}
	retryCfg.OnRetry = resilience.RetryLogger("dealerdata", "login")

	if err := resilience.Do(ctx, retryCfg, portal.Login); err != nil {
		return nil, eris.Wrap(err, "portal login")
	}

	zap.L().Info("portal session established",
		zap.String("vendor", cfg.Vendor.Name),
		zap.String("base_url", cfg.Vendor.BaseURL),
	)
	return lookup.NewDealerClient(portal), nil
}

// priorSnapshot loads the latest snapshot, distinguishing "none yet"
// (nil, first run) from a store that cannot be trusted, which is fatal.
func priorSnapshot(ctx context.Context, st store.Store) (*model.Snapshot, error) {
	prior, err := st.LatestSnapshot(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "load prior snapshot")
	}
	return prior, nil
}
