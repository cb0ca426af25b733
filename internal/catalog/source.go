// Package catalog extracts structured part records from vendor catalog
// PDFs. Extraction is page-scoped: a corrupt page yields an error
// record and reduces the catalog, it never aborts the run.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/bluewater-supply/partsync/internal/model"
)

// Extraction is the result of pulling structured records out of one
// catalog PDF. It is the unit handed to the fetch scheduler and the
// reconciliation engine.
type Extraction struct {
	CatalogVersion string                `json:"catalog_version"`
	SourcePath     string                `json:"source_path"`
	Checksum       string                `json:"checksum"`
	Pages          int                   `json:"pages"`
	ExtractedAt    time.Time             `json:"extracted_at"`
	Records        []model.CatalogRecord `json:"records"`
	// Errors holds page-scoped extraction failures.
	Errors []model.ErrorRecord `json:"errors,omitempty"`
}

// Source yields catalog records from a PDF.
type Source interface {
	Extract(ctx context.Context, pdfPath string) (*Extraction, error)
}

// deriveVersion names the catalog version after the source file, which
// is how versions are tracked downstream (source_catalog column).
func deriveVersion(pdfPath string) string {
	base := filepath.Base(pdfPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// fileChecksum returns the SHA-256 of a file as lowercase hex. Runs use
// it to decide whether a checkpoint belongs to the same catalog.
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "open %s for checksum", path)
	}
	defer f.Close() //nolint:errcheck

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", eris.Wrapf(err, "checksum %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
