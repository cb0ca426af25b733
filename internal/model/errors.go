package model

import "time"

// ErrorType is the fixed failure taxonomy. Every non-success outcome
// maps to exactly one of these values.
type ErrorType string

const (
	ErrorPDFParse    ErrorType = "pdf_parse"
	ErrorNotFound    ErrorType = "not_found"
	ErrorNetwork     ErrorType = "network"
	ErrorValidation  ErrorType = "validation"
	ErrorRateLimited ErrorType = "rate_limited"
)

// ErrorRecord is the final failure outcome for one part within one
// run. Append-only; at most one record per (part_number, run).
// Page-scoped extraction failures carry an empty part number.
type ErrorRecord struct {
	PartNumber    string    `json:"part_number"`
	Type          ErrorType `json:"error_type"`
	Message       string    `json:"error_message"`
	Timestamp     time.Time `json:"timestamp"`
	RetryCount    int       `json:"retry_count"`
	PageReference string    `json:"page_reference,omitempty"`
}
