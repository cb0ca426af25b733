package scheduler

import (
	"sort"
	"time"

	"github.com/bluewater-supply/partsync/internal/freshness"
	"github.com/bluewater-supply/partsync/internal/model"
)

// BuildWorkList selects the parts worth fetching this run: every part
// in the current catalog whose prior entry the freshness policy says
// needs a refresh. Parts missing from the current catalog are never
// fetched, however old their price. force includes every catalog part
// regardless of freshness.
func BuildWorkList(records []model.CatalogRecord, prior *model.Snapshot, policy freshness.Policy, now time.Time, force bool) []model.WorkItem {
	byPart := prior.ByPart()
	items := make([]model.WorkItem, 0, len(records))
	for _, rec := range records {
		if !force && !policy.NeedsRefresh(byPart[rec.PartNumber], now) {
			continue
		}
		items = append(items, model.WorkItem{
			PartNumber:    rec.PartNumber,
			PageReference: rec.PageReference,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].PartNumber < items[j].PartNumber
	})
	return items
}
