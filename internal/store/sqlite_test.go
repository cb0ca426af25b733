package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluewater-supply/partsync/internal/model"
)

func newTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "partsync.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s, path
}

func price(p float64) *float64 { return &p }

func sampleSnapshot() *model.Snapshot {
	updated := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
	return &model.Snapshot{
		CatalogVersion: "cascade_2024_spring",
		Entries: []model.ReconciledEntry{
			{
				SKU:           "CSP-000001",
				PartNumber:    "6000-125",
				Description:   "PILLOW, LOUNGE",
				Category:      "PILLOWS",
				UnitPrice:     price(18.50),
				LastUpdated:   &updated,
				SourceCatalog: "cascade_2024_spring",
				Vendor:        "Cascade",
				Status:        model.EntryActive,
			},
			{
				SKU:           "CSP-000002",
				PartNumber:    "6540-519",
				Description:   "JET, CLUSTER STORM",
				SourceCatalog: "cascade_2024_spring",
				Vendor:        "Cascade",
				Status:        model.EntryPricePending,
			},
		},
	}
}

func TestSQLiteSnapshotRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	in := sampleSnapshot()
	stored, err := s.SaveSnapshot(ctx, in)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.Empty(t, in.ID, "input snapshot is not mutated")

	got, err := s.GetSnapshot(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, got.ID)
	assert.Equal(t, "cascade_2024_spring", got.CatalogVersion)
	require.Len(t, got.Entries, 2)

	first := got.Entries[0]
	assert.Equal(t, "6000-125", first.PartNumber)
	assert.Equal(t, "CSP-000001", first.SKU)
	assert.Equal(t, "PILLOW, LOUNGE", first.Description)
	assert.Equal(t, "PILLOWS", first.Category)
	require.NotNil(t, first.UnitPrice)
	assert.InDelta(t, 18.50, *first.UnitPrice, 0.001)
	require.NotNil(t, first.LastUpdated)
	assert.WithinDuration(t, time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC), *first.LastUpdated, time.Second)
	assert.Equal(t, model.EntryActive, first.Status)

	second := got.Entries[1]
	assert.Equal(t, "6540-519", second.PartNumber)
	assert.Nil(t, second.UnitPrice, "null price survives the round trip")
	assert.Nil(t, second.LastUpdated)
	assert.Equal(t, model.EntryPricePending, second.Status)
}

func TestSQLiteGetSnapshot_NotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.GetSnapshot(context.Background(), "no-such-id")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteLatestSnapshot(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.LatestSnapshot(ctx)
	require.ErrorIs(t, err, ErrNotFound, "empty store has no latest")

	first, err := s.SaveSnapshot(ctx, sampleSnapshot())
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := s.SaveSnapshot(ctx, sampleSnapshot())
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	latest, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestSQLiteListSnapshots(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for range 3 {
		_, err := s.SaveSnapshot(ctx, sampleSnapshot())
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	metas, err := s.ListSnapshots(ctx, 2)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, 2, metas[0].EntryCount)
	assert.True(t, !metas[0].CreatedAt.Before(metas[1].CreatedAt), "newest first")
}

func TestSQLiteCorruptSnapshotDetected(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()

	stored, err := s.SaveSnapshot(ctx, sampleSnapshot())
	require.NoError(t, err)

	// Damage the store behind the interface's back.
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Exec(`DELETE FROM snapshot_entries WHERE snapshot_id = ? AND part_number = '6000-125'`, stored.ID)
	require.NoError(t, err)

	_, err = s.GetSnapshot(ctx, stored.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt")

	_, err = s.LatestSnapshot(ctx)
	require.Error(t, err, "latest resolves to the damaged snapshot")
}

func TestSQLiteRunLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "cascade_2024_spring", "abc123", 42)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "cascade_2024_spring", got.CatalogVersion)
	assert.Equal(t, "abc123", got.CatalogChecksum)
	assert.Equal(t, 42, got.TotalItems)
	assert.Nil(t, got.CompletedAt)

	done := time.Now().UTC()
	run.Status = model.RunStatusCompleted
	run.CompletedAt = &done
	run.Found = 40
	run.NotFound = 1
	run.Failed = 1
	require.NoError(t, s.UpdateRun(ctx, run))

	got, err = s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 40, got.Found)
	assert.Equal(t, 1, got.NotFound)
	assert.Equal(t, 1, got.Failed)
}

func TestSQLiteUpdateRun_NotFound(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.UpdateRun(context.Background(), &model.FetchRun{ID: "ghost", Status: model.RunStatusFailed})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteGetRun_NotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.GetRun(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.LatestRun(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteListRuns_FilterByStatus(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateRun(ctx, "v1", "sum1", 10)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := s.CreateRun(ctx, "v2", "sum2", 20)
	require.NoError(t, err)

	first.Status = model.RunStatusFailed
	require.NoError(t, s.UpdateRun(ctx, first))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	failed, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, first.ID, failed[0].ID)

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestSQLiteOutcomeCheckpointing(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "v1", "sum1", 2)
	require.NoError(t, err)

	fetched := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveOutcome(ctx, run.ID, model.FetchOutcome{
		PartNumber:   "6000-125",
		SourceStatus: model.SourceError,
		FetchedAt:    fetched,
		Attempts:     3,
		ErrorType:    model.ErrorNetwork,
		ErrorMessage: "connection reset",
	}))

	// Re-resolving the same part replaces its checkpoint row.
	require.NoError(t, s.SaveOutcome(ctx, run.ID, model.FetchOutcome{
		PartNumber:   "6000-125",
		SourceStatus: model.SourceFound,
		UnitPrice:    price(18.50),
		FetchedAt:    fetched.Add(time.Minute),
		Attempts:     1,
	}))
	require.NoError(t, s.SaveOutcome(ctx, run.ID, model.FetchOutcome{
		PartNumber:   "6540-519",
		SourceStatus: model.SourceNotFound,
		FetchedAt:    fetched,
		Attempts:     1,
	}))

	outcomes, err := s.ListOutcomes(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	first := outcomes[0]
	assert.Equal(t, "6000-125", first.PartNumber)
	assert.Equal(t, model.SourceFound, first.SourceStatus)
	require.NotNil(t, first.UnitPrice)
	assert.InDelta(t, 18.50, *first.UnitPrice, 0.001)
	assert.Equal(t, 1, first.Attempts)
	assert.Empty(t, string(first.ErrorType), "replaced row carries no stale error")

	assert.Equal(t, model.SourceNotFound, outcomes[1].SourceStatus)

	require.NoError(t, s.ClearOutcomes(ctx, run.ID))
	outcomes, err = s.ListOutcomes(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestSQLiteOutcomesScopedToRun(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	runA, err := s.CreateRun(ctx, "v1", "sum1", 1)
	require.NoError(t, err)
	runB, err := s.CreateRun(ctx, "v1", "sum1", 1)
	require.NoError(t, err)

	require.NoError(t, s.SaveOutcome(ctx, runA.ID, model.FetchOutcome{
		PartNumber: "6000-125", SourceStatus: model.SourceFound, UnitPrice: price(18.50), FetchedAt: time.Now().UTC(), Attempts: 1,
	}))

	other, err := s.ListOutcomes(ctx, runB.ID)
	require.NoError(t, err)
	assert.Empty(t, other)
}
