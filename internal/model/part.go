package model

import "time"

// CatalogRecord is one part as extracted from a catalog PDF. Immutable
// once extracted; identified by (part_number, catalog_version).
type CatalogRecord struct {
	PartNumber     string `json:"part_number"`
	Description    string `json:"description"`
	Category       string `json:"category,omitempty"`
	PageReference  int    `json:"page_reference"`
	CatalogVersion string `json:"catalog_version"`
}

// SourceStatus describes how a price lookup for a part resolved.
type SourceStatus string

const (
	SourceFound    SourceStatus = "found"
	SourceNotFound SourceStatus = "not_found"
	SourceError    SourceStatus = "error"
)

// PriceRecord is one fetched price outcome for a part. A newer record
// supersedes an older one for the same part number strictly by
// FetchedAt, never by arrival order.
type PriceRecord struct {
	PartNumber   string       `json:"part_number"`
	UnitPrice    *float64     `json:"unit_price,omitempty"`
	FetchedAt    time.Time    `json:"fetched_at"`
	SourceStatus SourceStatus `json:"source_status"`
}

// WorkItem is one entry in a fetch run's work list.
type WorkItem struct {
	PartNumber    string `json:"part_number"`
	PageReference int    `json:"page_reference"`
}
