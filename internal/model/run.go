package model

import "time"

// RunStatus represents the current state of a fetch run.
type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusReconciled RunStatus = "reconciled"
	RunStatusFailed     RunStatus = "failed"
)

// FetchRun is the bookkeeping record for one price-fetch run. A run
// left in "running" by an interruption is resumable as long as the
// catalog checksum still matches.
type FetchRun struct {
	ID              string     `json:"id"`
	CatalogVersion  string     `json:"catalog_version"`
	CatalogChecksum string     `json:"catalog_checksum"`
	Status          RunStatus  `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	TotalItems      int        `json:"total_items"`
	Found           int        `json:"found"`
	NotFound        int        `json:"not_found"`
	Failed          int        `json:"failed"`
	Skipped         int        `json:"skipped"`
}

// Duration returns the run's wall time, zero while still running.
func (r *FetchRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// FetchOutcome is the terminal result of one part's attempts within a
// run: the checkpoint row. Exactly one exists per resolved part.
type FetchOutcome struct {
	PartNumber    string       `json:"part_number"`
	SourceStatus  SourceStatus `json:"source_status"`
	UnitPrice     *float64     `json:"unit_price,omitempty"`
	FetchedAt     time.Time    `json:"fetched_at"`
	Attempts      int          `json:"attempts"`
	ErrorType     ErrorType    `json:"error_type,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	PageReference string       `json:"page_reference,omitempty"`
}

// Price converts the outcome into its PriceRecord.
func (o FetchOutcome) Price() PriceRecord {
	return PriceRecord{
		PartNumber:   o.PartNumber,
		UnitPrice:    o.UnitPrice,
		FetchedAt:    o.FetchedAt,
		SourceStatus: o.SourceStatus,
	}
}

// Error converts a failed outcome into its ErrorRecord, nil for found.
func (o FetchOutcome) Error() *ErrorRecord {
	if o.SourceStatus == SourceFound {
		return nil
	}
	retries := o.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	return &ErrorRecord{
		PartNumber:    o.PartNumber,
		Type:          o.ErrorType,
		Message:       o.ErrorMessage,
		Timestamp:     o.FetchedAt,
		RetryCount:    retries,
		PageReference: o.PageReference,
	}
}
