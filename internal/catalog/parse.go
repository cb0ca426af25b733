package catalog

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/bluewater-supply/partsync/internal/model"
	"github.com/bluewater-supply/partsync/internal/partnum"
)

var (
	dotLeaderRe     = regexp.MustCompile(`\.{3,}`)
	trailingPriceRe = regexp.MustCompile(`\$?\d[\d,]*\.\d{2}\s*$`)
)

// parsePages turns extracted catalog text into records. Pages arrive
// separated by form feeds, matching pdftotext output. Corrupt pages
// produce one pdf_parse error each and are skipped; duplicate part
// numbers collapse to a single record.
func parsePages(text, catalogVersion string, extractedAt time.Time) ([]model.CatalogRecord, []model.ErrorRecord) {
	byPart := make(map[string]model.CatalogRecord)
	var pageErrs []model.ErrorRecord

	for i, page := range strings.Split(text, "\f") {
		pageNo := i + 1
		if pageCorrupt(page) {
			pageErrs = append(pageErrs, model.ErrorRecord{
				Type:          model.ErrorPDFParse,
				Message:       "catalog page text unreadable",
				Timestamp:     extractedAt,
				PageReference: strconv.Itoa(pageNo),
			})
			continue
		}

		category := ""
		for _, line := range strings.Split(page, "\n") {
			if isCategoryHeading(line) {
				category = strings.Join(strings.Fields(line), " ")
				continue
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			pn := partnum.Normalize(fields[0])
			if !partnum.Valid(pn) {
				continue
			}
			rec := model.CatalogRecord{
				PartNumber:     pn,
				Description:    cleanDescription(strings.Join(fields[1:], " ")),
				Category:       category,
				PageReference:  pageNo,
				CatalogVersion: catalogVersion,
			}
			byPart[pn] = mergeDuplicate(byPart[pn], rec)
		}
	}

	records := make([]model.CatalogRecord, 0, len(byPart))
	for _, rec := range byPart {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].PartNumber < records[j].PartNumber
	})
	return records, pageErrs
}

// mergeDuplicate collapses repeated listings of one part. The longest
// description wins, the first non-empty category and the earliest page
// stick.
func mergeDuplicate(prev, next model.CatalogRecord) model.CatalogRecord {
	if prev.PartNumber == "" {
		return next
	}
	if len(next.Description) > len(prev.Description) {
		prev.Description = next.Description
	}
	if prev.Category == "" {
		prev.Category = next.Category
	}
	return prev
}

// isCategoryHeading recognizes the catalog's section headings: short
// all-caps lines with no digits or prices.
func isCategoryHeading(line string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < 3 || len(trimmed) > 60 {
		return false
	}
	if strings.ContainsAny(trimmed, "0123456789$") {
		return false
	}
	hasLetter := false
	for _, r := range trimmed {
		if unicode.IsLetter(r) {
			if unicode.IsLower(r) {
				return false
			}
			hasLetter = true
		}
	}
	return hasLetter
}

// pageCorrupt flags page text the OCR step mangled: over a fifth of the
// runes unprintable or invalid. Blank pages are fine.
func pageCorrupt(page string) bool {
	if strings.TrimSpace(page) == "" {
		return false
	}
	var bad, total int
	for _, r := range page {
		total++
		if r == utf8.RuneError || (!unicode.IsPrint(r) && !unicode.IsSpace(r)) {
			bad++
		}
	}
	return bad*5 > total
}

// cleanDescription strips dot leaders and trailing list prices off a
// catalog line, leaving just the part description.
func cleanDescription(s string) string {
	s = trailingPriceRe.ReplaceAllString(s, "")
	s = dotLeaderRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
