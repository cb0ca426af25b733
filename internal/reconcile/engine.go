// Package reconcile merges a catalog extraction, the prior snapshot,
// and a run's fetched prices into a new snapshot. The merge is a pure
// function of its inputs: no ambient state, identical inputs yield
// identical entries.
package reconcile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bluewater-supply/partsync/internal/freshness"
	"github.com/bluewater-supply/partsync/internal/model"
)

// Inputs are the three merge sources plus the evaluation time.
type Inputs struct {
	CatalogVersion string
	Catalog        []model.CatalogRecord
	// Prior is the previous snapshot, nil on the first run.
	Prior *model.Snapshot
	// Prices holds this run's fetch outcomes as price records.
	Prices []model.PriceRecord
	Now    time.Time
}

// Stats summarizes what a merge did.
type Stats struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	PricePending int `json:"price_pending"`
	Discontinued int `json:"discontinued"`
	NewParts     int `json:"new_parts"`
	PriceUpdates int `json:"price_updates"`
}

// Result is a completed merge: the new snapshot (identity assigned at
// persist time), audit notes, and counters.
type Result struct {
	Snapshot *model.Snapshot
	Notes    []string
	Stats    Stats
}

// Engine applies the merge rules.
type Engine struct {
	policy    freshness.Policy
	skuPrefix string
	vendor    string
}

func New(policy freshness.Policy, skuPrefix, vendor string) *Engine {
	return &Engine{policy: policy, skuPrefix: skuPrefix, vendor: vendor}
}

// Merge produces the new entry set. Every part in the current catalog
// gets exactly one entry; parts only in the prior snapshot are carried
// forward as discontinued with their last price preserved. Price
// fields update only from this run's found records, ordered by fetch
// time, and never regress to an older value. SKUs are reused when
// known and assigned monotonically when new.
func (e *Engine) Merge(in Inputs) *Result {
	current := make(map[string]model.CatalogRecord, len(in.Catalog))
	for _, rec := range in.Catalog {
		current[rec.PartNumber] = rec
	}
	prior := in.Prior.ByPart()
	prices := latestFoundPrices(in.Prices)

	res := &Result{}

	keys := unionKeys(current, prior)
	counter := maxSKUCounter(in.Prior, e.skuPrefix)

	entries := make([]model.ReconciledEntry, 0, len(keys))
	for _, pn := range keys {
		cat, inCatalog := current[pn]
		old := prior[pn]

		entry := model.ReconciledEntry{PartNumber: pn, Vendor: e.vendor}

		// Catalog fields come from the current extraction when the
		// part is listed, otherwise carry forward.
		switch {
		case inCatalog:
			entry.Description = cat.Description
			entry.Category = cat.Category
			entry.SourceCatalog = cat.CatalogVersion
			if old != nil && old.Category != "" {
				if cat.Category == "" {
					entry.Category = old.Category
				} else if cat.Category != old.Category {
					res.Notes = append(res.Notes, fmt.Sprintf(
						"part %s category changed from %q to %q", pn, old.Category, cat.Category))
				}
			}
		case old != nil:
			entry.Description = old.Description
			entry.Category = old.Category
			entry.SourceCatalog = old.SourceCatalog
		}

		// Price fields update only from this run's accepted record.
		if old != nil {
			entry.UnitPrice = old.UnitPrice
			entry.LastUpdated = old.LastUpdated
		}
		if rec, ok := prices[pn]; ok && accepts(old, rec) {
			p := *rec.UnitPrice
			t := rec.FetchedAt
			entry.UnitPrice = &p
			entry.LastUpdated = &t
			res.Stats.PriceUpdates++
		}

		// SKU is assigned once and never regenerated.
		if old != nil && old.SKU != "" {
			entry.SKU = old.SKU
		} else {
			counter++
			entry.SKU = fmt.Sprintf("%s-%06d", e.skuPrefix, counter)
			res.Stats.NewParts++
		}

		entry.Status = e.status(inCatalog, entry, in.Now)
		entries = append(entries, entry)
	}

	// Prices for parts in neither the catalog nor the prior snapshot
	// have nothing to attach to; note them rather than drop silently.
	for _, pn := range orphanPrices(prices, current, prior) {
		res.Notes = append(res.Notes, fmt.Sprintf("ignored price for unknown part %s", pn))
	}

	res.Stats.Total = len(entries)
	for _, entry := range entries {
		switch entry.Status {
		case model.EntryActive:
			res.Stats.Active++
		case model.EntryPricePending:
			res.Stats.PricePending++
		case model.EntryDiscontinued:
			res.Stats.Discontinued++
		}
	}

	res.Snapshot = &model.Snapshot{
		CatalogVersion: in.CatalogVersion,
		Entries:        entries,
	}
	return res
}

func (e *Engine) status(inCatalog bool, entry model.ReconciledEntry, now time.Time) model.EntryStatus {
	if !inCatalog {
		return model.EntryDiscontinued
	}
	if entry.UnitPrice == nil || entry.LastUpdated == nil || e.policy.Stale(*entry.LastUpdated, now) {
		return model.EntryPricePending
	}
	return model.EntryActive
}

// accepts applies last-writer-wins by fetch time: a record no newer
// than the entry's existing price is rejected.
func accepts(old *model.ReconciledEntry, rec model.PriceRecord) bool {
	if old == nil || old.LastUpdated == nil {
		return true
	}
	return rec.FetchedAt.After(*old.LastUpdated)
}

// latestFoundPrices reduces the run's price records to at most one per
// part: the newest found record by FetchedAt. Not-found and error
// records never update price fields.
func latestFoundPrices(records []model.PriceRecord) map[string]model.PriceRecord {
	out := make(map[string]model.PriceRecord)
	for _, rec := range records {
		if rec.SourceStatus != model.SourceFound || rec.UnitPrice == nil {
			continue
		}
		if best, ok := out[rec.PartNumber]; ok && !rec.FetchedAt.After(best.FetchedAt) {
			continue
		}
		out[rec.PartNumber] = rec
	}
	return out
}

func unionKeys(current map[string]model.CatalogRecord, prior map[string]*model.ReconciledEntry) []string {
	seen := make(map[string]struct{}, len(current)+len(prior))
	for pn := range current {
		seen[pn] = struct{}{}
	}
	for pn := range prior {
		seen[pn] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for pn := range seen {
		keys = append(keys, pn)
	}
	sort.Strings(keys)
	return keys
}

func orphanPrices(prices map[string]model.PriceRecord, current map[string]model.CatalogRecord, prior map[string]*model.ReconciledEntry) []string {
	var orphans []string
	for pn := range prices {
		if _, ok := current[pn]; ok {
			continue
		}
		if _, ok := prior[pn]; ok {
			continue
		}
		orphans = append(orphans, pn)
	}
	sort.Strings(orphans)
	return orphans
}

// maxSKUCounter finds the highest counter already assigned under the
// prefix, so new SKUs continue the sequence and are never reused.
func maxSKUCounter(prior *model.Snapshot, prefix string) int {
	if prior == nil {
		return 0
	}
	max := 0
	for _, entry := range prior.Entries {
		rest, ok := strings.CutPrefix(entry.SKU, prefix+"-")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max
}
