package model

import "time"

// EntryStatus represents the lifecycle state of a reconciled entry.
type EntryStatus string

const (
	EntryActive       EntryStatus = "active"
	EntryDiscontinued EntryStatus = "discontinued"
	EntryPricePending EntryStatus = "price_pending"
)

// ReconciledEntry is the unit of the canonical dataset: one part with
// its catalog fields, latest accepted price, and derived status.
type ReconciledEntry struct {
	SKU           string      `json:"sku"`
	PartNumber    string      `json:"part_number"`
	Description   string      `json:"description"`
	Category      string      `json:"category,omitempty"`
	UnitPrice     *float64    `json:"unit_price,omitempty"`
	LastUpdated   *time.Time  `json:"last_updated,omitempty"`
	SourceCatalog string      `json:"source_catalog"`
	Vendor        string      `json:"vendor"`
	Status        EntryStatus `json:"status"`
}

// Snapshot is an immutable, timestamped copy of the full reconciled
// dataset. Never mutated after creation; superseded by the next
// snapshot and retained for trend and audit queries. Entries are
// sorted by part number.
type Snapshot struct {
	ID             string            `json:"id"`
	CatalogVersion string            `json:"catalog_version"`
	CreatedAt      time.Time         `json:"created_at"`
	Entries        []ReconciledEntry `json:"entries"`
}

// Meta returns the snapshot's listing row.
func (s *Snapshot) Meta() SnapshotMeta {
	return SnapshotMeta{
		ID:             s.ID,
		CatalogVersion: s.CatalogVersion,
		CreatedAt:      s.CreatedAt,
		EntryCount:     len(s.Entries),
	}
}

// Entry returns the entry for a part number, or nil when absent.
func (s *Snapshot) Entry(partNumber string) *ReconciledEntry {
	if s == nil {
		return nil
	}
	for i := range s.Entries {
		if s.Entries[i].PartNumber == partNumber {
			return &s.Entries[i]
		}
	}
	return nil
}

// ByPart indexes the snapshot's entries by part number. Nil-safe: a
// nil snapshot yields a nil map.
func (s *Snapshot) ByPart() map[string]*ReconciledEntry {
	if s == nil {
		return nil
	}
	m := make(map[string]*ReconciledEntry, len(s.Entries))
	for i := range s.Entries {
		m[s.Entries[i].PartNumber] = &s.Entries[i]
	}
	return m
}

// SnapshotMeta is the header row of a stored snapshot.
type SnapshotMeta struct {
	ID             string    `json:"id"`
	CatalogVersion string    `json:"catalog_version"`
	CreatedAt      time.Time `json:"created_at"`
	EntryCount     int       `json:"entry_count"`
}
