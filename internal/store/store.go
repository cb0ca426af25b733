// Package store persists snapshots, fetch runs, and per-part
// checkpoints behind a backend-neutral interface, with sqlite and
// postgres drivers.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/bluewater-supply/partsync/internal/config"
	"github.com/bluewater-supply/partsync/internal/model"
)

// ErrNotFound reports that the requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// Store is the persistence interface for the pricing pipeline.
type Store interface {
	// Snapshots. SaveSnapshot assigns the snapshot's identity and
	// returns the stored copy; the input is never mutated and stored
	// snapshots are never updated.
	SaveSnapshot(ctx context.Context, snap *model.Snapshot) (*model.Snapshot, error)
	GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error)
	LatestSnapshot(ctx context.Context) (*model.Snapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]model.SnapshotMeta, error)

	// Fetch runs.
	CreateRun(ctx context.Context, catalogVersion, catalogChecksum string, totalItems int) (*model.FetchRun, error)
	UpdateRun(ctx context.Context, run *model.FetchRun) error
	GetRun(ctx context.Context, runID string) (*model.FetchRun, error)
	LatestRun(ctx context.Context) (*model.FetchRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.FetchRun, error)

	// Checkpoints: one row per (run, part number), replaced on save.
	SaveOutcome(ctx context.Context, runID string, outcome model.FetchOutcome) error
	ListOutcomes(ctx context.Context, runID string) ([]model.FetchOutcome, error)
	ClearOutcomes(ctx context.Context, runID string) error

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}

// New opens the configured backend.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.MaxConns)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
