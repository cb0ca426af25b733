package classify

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/bluewater-supply/partsync/internal/model"
)

var reportColumns = []string{
	"part_number",
	"error_type",
	"error_message",
	"timestamp",
	"retry_count",
	"page_reference",
}

// Reporter accumulates the terminal failure of each work item over one
// run. Parts that eventually succeed never reach it. Safe for
// concurrent use by scheduler workers.
type Reporter struct {
	mu      sync.Mutex
	records map[string]model.ErrorRecord
}

func NewReporter() *Reporter {
	return &Reporter{records: make(map[string]model.ErrorRecord)}
}

// Record stores the terminal failure for a part, replacing any earlier
// one for the same part within the run. Extraction failures carry no
// part number and are keyed by page instead.
func (r *Reporter) Record(rec model.ErrorRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[recordKey(rec)] = rec
}

func recordKey(rec model.ErrorRecord) string {
	if rec.PartNumber != "" {
		return rec.PartNumber
	}
	return "page:" + rec.PageReference
}

// Records returns the accumulated failures ordered by part number then
// page reference, so reports are deterministic.
func (r *Reporter) Records() []model.ErrorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.ErrorRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PartNumber != out[j].PartNumber {
			return out[i].PartNumber < out[j].PartNumber
		}
		return out[i].PageReference < out[j].PageReference
	})
	return out
}

func (r *Reporter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// WriteReport writes the error report CSV for one run.
func WriteReport(w io.Writer, records []model.ErrorRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportColumns); err != nil {
		return eris.Wrap(err, "write error report header")
	}
	for _, rec := range records {
		row := []string{
			rec.PartNumber,
			string(rec.Type),
			rec.Message,
			rec.Timestamp.UTC().Format(time.RFC3339),
			strconv.Itoa(rec.RetryCount),
			rec.PageReference,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "write error report row for %s", rec.PartNumber)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "flush error report")
	}
	return nil
}

// ReportFileName names a run's error report after its start time.
func ReportFileName(at time.Time) string {
	return fmt.Sprintf("errors_%s.csv", at.Format("20060102_150405"))
}
