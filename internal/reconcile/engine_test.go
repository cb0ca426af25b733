package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluewater-supply/partsync/internal/freshness"
	"github.com/bluewater-supply/partsync/internal/model"
)

var now = time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)

func price(p float64) *float64 { return &p }

func when(tm time.Time) *time.Time { return &tm }

func testEngine() *Engine {
	return New(freshness.NewPolicy(0), "CSP", "Cascade")
}

func priorSnapshot() *model.Snapshot {
	return &model.Snapshot{
		ID:             "snap-1",
		CatalogVersion: "cascade_2024_winter",
		CreatedAt:      now.Add(-72 * time.Hour),
		Entries: []model.ReconciledEntry{
			{
				SKU:           "CSP-000003",
				PartNumber:    "2540-300",
				Description:   "FILTER, CARTRIDGE 50SQFT",
				Category:      "FILTERS",
				UnitPrice:     price(7.50),
				LastUpdated:   when(now.Add(-10 * 24 * time.Hour)),
				SourceCatalog: "cascade_2024_winter",
				Vendor:        "Cascade",
				Status:        model.EntryActive,
			},
			{
				SKU:           "CSP-000007",
				PartNumber:    "6000-125",
				Description:   "PILLOW, LOUNGE",
				Category:      "PILLOWS",
				UnitPrice:     price(18.50),
				LastUpdated:   when(now.Add(-3 * 24 * time.Hour)),
				SourceCatalog: "cascade_2024_winter",
				Vendor:        "Cascade",
				Status:        model.EntryActive,
			},
		},
	}
}

func currentCatalog() []model.CatalogRecord {
	return []model.CatalogRecord{
		{PartNumber: "6000-125", Description: "PILLOW, LOUNGE", Category: "PILLOWS", PageReference: 1, CatalogVersion: "cascade_2024_spring"},
		{PartNumber: "6540-519", Description: "JET, CLUSTER STORM", Category: "JETS", PageReference: 2, CatalogVersion: "cascade_2024_spring"},
	}
}

// New part fetched, fresh part untouched, vanished part carried
// forward: the core merge scenario.
func TestMerge_CatalogTurnover(t *testing.T) {
	t.Parallel()
	res := testEngine().Merge(Inputs{
		CatalogVersion: "cascade_2024_spring",
		Catalog:        currentCatalog(),
		Prior:          priorSnapshot(),
		Prices: []model.PriceRecord{
			{PartNumber: "6540-519", UnitPrice: price(9.95), FetchedAt: now.Add(-time.Hour), SourceStatus: model.SourceFound},
		},
		Now: now,
	})

	entries := res.Snapshot.Entries
	require.Len(t, entries, 3)
	assert.Equal(t, "cascade_2024_spring", res.Snapshot.CatalogVersion)

	discontinued := entries[0]
	assert.Equal(t, "2540-300", discontinued.PartNumber)
	assert.Equal(t, model.EntryDiscontinued, discontinued.Status)
	require.NotNil(t, discontinued.UnitPrice)
	assert.InDelta(t, 7.50, *discontinued.UnitPrice, 0.001, "last known price preserved")
	assert.Equal(t, "CSP-000003", discontinued.SKU)
	assert.Equal(t, "cascade_2024_winter", discontinued.SourceCatalog)

	kept := entries[1]
	assert.Equal(t, "6000-125", kept.PartNumber)
	assert.Equal(t, model.EntryActive, kept.Status)
	assert.Equal(t, "CSP-000007", kept.SKU, "sku stable across snapshots")
	require.NotNil(t, kept.UnitPrice)
	assert.InDelta(t, 18.50, *kept.UnitPrice, 0.001, "no new record, price carried forward")
	assert.Equal(t, when(now.Add(-3*24*time.Hour)), kept.LastUpdated)
	assert.Equal(t, "cascade_2024_spring", kept.SourceCatalog)

	added := entries[2]
	assert.Equal(t, "6540-519", added.PartNumber)
	assert.Equal(t, model.EntryActive, added.Status)
	assert.Equal(t, "CSP-000008", added.SKU, "new sku continues the sequence")
	require.NotNil(t, added.UnitPrice)
	assert.InDelta(t, 9.95, *added.UnitPrice, 0.001)
}

func TestMerge_Stats(t *testing.T) {
	t.Parallel()
	res := testEngine().Merge(Inputs{
		CatalogVersion: "cascade_2024_spring",
		Catalog:        currentCatalog(),
		Prior:          priorSnapshot(),
		Prices: []model.PriceRecord{
			{PartNumber: "6540-519", UnitPrice: price(9.95), FetchedAt: now.Add(-time.Hour), SourceStatus: model.SourceFound},
		},
		Now: now,
	})

	assert.Equal(t, Stats{
		Total:        3,
		Active:       2,
		PricePending: 0,
		Discontinued: 1,
		NewParts:     1,
		PriceUpdates: 1,
	}, res.Stats)
}

func TestMerge_Idempotent(t *testing.T) {
	t.Parallel()
	in := Inputs{
		CatalogVersion: "cascade_2024_spring",
		Catalog:        currentCatalog(),
		Prior:          priorSnapshot(),
		Prices: []model.PriceRecord{
			{PartNumber: "6540-519", UnitPrice: price(9.95), FetchedAt: now.Add(-time.Hour), SourceStatus: model.SourceFound},
		},
		Now: now,
	}

	first := testEngine().Merge(in)
	second := testEngine().Merge(in)

	assert.Equal(t, first.Snapshot.Entries, second.Snapshot.Entries)
	assert.Equal(t, first.Notes, second.Notes)
	assert.Equal(t, first.Stats, second.Stats)
}

func TestMerge_RerunOnOwnOutput(t *testing.T) {
	t.Parallel()
	in := Inputs{
		CatalogVersion: "cascade_2024_spring",
		Catalog:        currentCatalog(),
		Prior:          priorSnapshot(),
		Prices: []model.PriceRecord{
			{PartNumber: "6540-519", UnitPrice: price(9.95), FetchedAt: now.Add(-time.Hour), SourceStatus: model.SourceFound},
		},
		Now: now,
	}
	first := testEngine().Merge(in)

	in.Prior = first.Snapshot
	second := testEngine().Merge(in)

	assert.Equal(t, first.Snapshot.Entries, second.Snapshot.Entries,
		"replaying the same run against its own output changes nothing")
}

func TestMerge_NoDoubleCounting(t *testing.T) {
	t.Parallel()
	res := testEngine().Merge(Inputs{
		CatalogVersion: "cascade_2024_spring",
		Catalog:        currentCatalog(),
		Prior:          priorSnapshot(),
		Now:            now,
	})

	seen := make(map[string]int)
	for _, entry := range res.Snapshot.Entries {
		seen[entry.PartNumber]++
	}
	assert.Len(t, seen, 3, "current catalog plus discontinued carryover")
	for pn, n := range seen {
		assert.Equal(t, 1, n, "part %s appears once", pn)
	}
}

func TestMerge_StalePriceRejected(t *testing.T) {
	t.Parallel()
	res := testEngine().Merge(Inputs{
		CatalogVersion: "cascade_2024_spring",
		Catalog:        currentCatalog(),
		Prior:          priorSnapshot(),
		Prices: []model.PriceRecord{
			// Fetched before the entry's existing last_updated.
			{PartNumber: "6000-125", UnitPrice: price(1.11), FetchedAt: now.Add(-5 * 24 * time.Hour), SourceStatus: model.SourceFound},
		},
		Now: now,
	})

	kept := res.Snapshot.Entry("6000-125")
	require.NotNil(t, kept)
	assert.InDelta(t, 18.50, *kept.UnitPrice, 0.001, "older record never overwrites")
	assert.Equal(t, 0, res.Stats.PriceUpdates)
}

func TestMerge_LatestFetchWinsRegardlessOfOrder(t *testing.T) {
	t.Parallel()
	records := []model.PriceRecord{
		{PartNumber: "6000-125", UnitPrice: price(21.00), FetchedAt: now.Add(-time.Hour), SourceStatus: model.SourceFound},
		{PartNumber: "6000-125", UnitPrice: price(19.00), FetchedAt: now.Add(-2 * time.Hour), SourceStatus: model.SourceFound},
	}

	for name, ordered := range map[string][]model.PriceRecord{
		"newest first": records,
		"oldest first": {records[1], records[0]},
	} {
		res := testEngine().Merge(Inputs{
			CatalogVersion: "cascade_2024_spring",
			Catalog:        currentCatalog(),
			Prior:          priorSnapshot(),
			Prices:         ordered,
			Now:            now,
		})
		entry := res.Snapshot.Entry("6000-125")
		require.NotNil(t, entry)
		assert.InDelta(t, 21.00, *entry.UnitPrice, 0.001, "%s: ordered by fetched_at, not arrival", name)
	}
}

func TestMerge_NotFoundDoesNotClearPrice(t *testing.T) {
	t.Parallel()
	res := testEngine().Merge(Inputs{
		CatalogVersion: "cascade_2024_spring",
		Catalog:        currentCatalog(),
		Prior:          priorSnapshot(),
		Prices: []model.PriceRecord{
			{PartNumber: "6000-125", FetchedAt: now, SourceStatus: model.SourceNotFound},
		},
		Now: now,
	})

	entry := res.Snapshot.Entry("6000-125")
	require.NotNil(t, entry)
	require.NotNil(t, entry.UnitPrice)
	assert.InDelta(t, 18.50, *entry.UnitPrice, 0.001)
}

func TestMerge_StatusDerivation(t *testing.T) {
	t.Parallel()
	catalog := []model.CatalogRecord{
		{PartNumber: "1000-100", CatalogVersion: "v2"},
		{PartNumber: "2000-200", CatalogVersion: "v2"},
		{PartNumber: "3000-300", CatalogVersion: "v2"},
		{PartNumber: "4000-400", CatalogVersion: "v2"},
	}
	prior := &model.Snapshot{
		Entries: []model.ReconciledEntry{
			{SKU: "CSP-000001", PartNumber: "2000-200", UnitPrice: price(5), LastUpdated: when(now.Add(-8 * 24 * time.Hour))},
			{SKU: "CSP-000002", PartNumber: "3000-300", UnitPrice: price(5), LastUpdated: when(now.Add(-7 * 24 * time.Hour))},
			{SKU: "CSP-000003", PartNumber: "4000-400", UnitPrice: price(5), LastUpdated: when(now.Add(-time.Hour))},
		},
	}

	res := testEngine().Merge(Inputs{CatalogVersion: "v2", Catalog: catalog, Prior: prior, Now: now})

	assert.Equal(t, model.EntryPricePending, res.Snapshot.Entry("1000-100").Status, "no price yet")
	assert.Equal(t, model.EntryPricePending, res.Snapshot.Entry("2000-200").Status, "price older than threshold")
	assert.Equal(t, model.EntryActive, res.Snapshot.Entry("3000-300").Status, "exactly at threshold is not stale")
	assert.Equal(t, model.EntryActive, res.Snapshot.Entry("4000-400").Status)
}

func TestMerge_CategoryChange(t *testing.T) {
	t.Parallel()
	catalog := []model.CatalogRecord{
		{PartNumber: "6000-125", Description: "PILLOW, LOUNGE", Category: "COMFORT", CatalogVersion: "v2"},
	}

	res := testEngine().Merge(Inputs{
		CatalogVersion: "v2",
		Catalog:        catalog,
		Prior:          priorSnapshot(),
		Now:            now,
	})

	entry := res.Snapshot.Entry("6000-125")
	require.NotNil(t, entry)
	assert.Equal(t, "COMFORT", entry.Category, "current catalog overwrites")
	require.Len(t, res.Notes, 1)
	assert.Contains(t, res.Notes[0], "6000-125")
	assert.Contains(t, res.Notes[0], "PILLOWS")
	assert.Contains(t, res.Notes[0], "COMFORT")
}

func TestMerge_EmptyCategoryKeepsPrior(t *testing.T) {
	t.Parallel()
	catalog := []model.CatalogRecord{
		{PartNumber: "6000-125", Description: "PILLOW, LOUNGE", CatalogVersion: "v2"},
	}

	res := testEngine().Merge(Inputs{
		CatalogVersion: "v2",
		Catalog:        catalog,
		Prior:          priorSnapshot(),
		Now:            now,
	})

	assert.Equal(t, "PILLOWS", res.Snapshot.Entry("6000-125").Category)
	assert.Empty(t, res.Notes)
}

func TestMerge_FirstRun(t *testing.T) {
	t.Parallel()
	res := testEngine().Merge(Inputs{
		CatalogVersion: "cascade_2024_spring",
		Catalog:        currentCatalog(),
		Prices: []model.PriceRecord{
			{PartNumber: "6000-125", UnitPrice: price(18.50), FetchedAt: now.Add(-time.Minute), SourceStatus: model.SourceFound},
		},
		Now: now,
	})

	entries := res.Snapshot.Entries
	require.Len(t, entries, 2)
	assert.Equal(t, "CSP-000001", entries[0].SKU)
	assert.Equal(t, "CSP-000002", entries[1].SKU)
	assert.Equal(t, model.EntryActive, entries[0].Status)
	assert.Equal(t, model.EntryPricePending, entries[1].Status, "no price fetched yet")
	assert.Equal(t, 2, res.Stats.NewParts)
}

func TestMerge_OrphanPriceNoted(t *testing.T) {
	t.Parallel()
	res := testEngine().Merge(Inputs{
		CatalogVersion: "v2",
		Catalog:        currentCatalog(),
		Prices: []model.PriceRecord{
			{PartNumber: "0000-000", UnitPrice: price(3.00), FetchedAt: now, SourceStatus: model.SourceFound},
		},
		Now: now,
	})

	require.Len(t, res.Snapshot.Entries, 2)
	require.Len(t, res.Notes, 1)
	assert.Contains(t, res.Notes[0], "0000-000")
}

func TestMaxSKUCounter(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, maxSKUCounter(nil, "CSP"))

	snap := &model.Snapshot{Entries: []model.ReconciledEntry{
		{SKU: "CSP-000041"},
		{SKU: "CSP-000007"},
		{SKU: "LEGACY-99"},
		{SKU: "CSP-notanumber"},
	}}
	assert.Equal(t, 41, maxSKUCounter(snap, "CSP"))
}

func TestMerge_VendorStamped(t *testing.T) {
	t.Parallel()
	res := testEngine().Merge(Inputs{CatalogVersion: "v1", Catalog: currentCatalog(), Now: now})
	for _, entry := range res.Snapshot.Entries {
		assert.Equal(t, "Cascade", entry.Vendor)
	}
}
