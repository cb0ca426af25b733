// Package feed renders snapshots into the outbound formats: the
// import CSV, an XLSX workbook, and a JSON backup with statistics.
package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/bluewater-supply/partsync/internal/model"
)

// feedColumns is the import system's contract. Order matters.
var feedColumns = []string{
	"sku", "part_number", "description", "category", "unit_price",
	"last_updated", "source_catalog", "vendor", "status",
}

// DefaultDescriptionLimit caps the description column.
const DefaultDescriptionLimit = 200

// Options shapes the exported feed.
type Options struct {
	// DescriptionLimit truncates descriptions to at most this many
	// runes; zero means DefaultDescriptionLimit.
	DescriptionLimit int
}

func (o Options) limit() int {
	if o.DescriptionLimit <= 0 {
		return DefaultDescriptionLimit
	}
	return o.DescriptionLimit
}

// WriteCSV writes the snapshot as a price feed. Rows keep the
// snapshot's part-number order.
func WriteCSV(w io.Writer, snap *model.Snapshot, opts Options) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(feedColumns); err != nil {
		return eris.Wrap(err, "feed: write header")
	}
	for i := range snap.Entries {
		if err := cw.Write(feedRow(&snap.Entries[i], opts.limit())); err != nil {
			return eris.Wrapf(err, "feed: write row %s", snap.Entries[i].PartNumber)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "feed: flush")
	}
	return nil
}

func feedRow(e *model.ReconciledEntry, limit int) []string {
	return []string{
		e.SKU,
		e.PartNumber,
		clip(e.Description, limit),
		e.Category,
		priceCell(e.UnitPrice),
		timeCell(e.LastUpdated),
		e.SourceCatalog,
		e.Vendor,
		string(e.Status),
	}
}

func priceCell(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}

func timeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func clip(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// CSVFileName names a feed export for the given time.
func CSVFileName(at time.Time) string {
	return fmt.Sprintf("price_feed_%s.csv", at.Format("20060102_150405"))
}

// XLSXFileName names an XLSX export for the given time.
func XLSXFileName(at time.Time) string {
	return fmt.Sprintf("price_feed_%s.xlsx", at.Format("20060102_150405"))
}
