package catalog

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bluewater-supply/partsync/internal/ocr"
)

// PDFSource extracts catalog records from a PDF via OCR. Before text
// extraction the PDF goes through a pdfcpu optimize pass, which repairs
// the damaged cross-reference tables scanned vendor catalogs often
// ship with.
type PDFSource struct {
	extractor ocr.Extractor
}

func NewPDFSource(extractor ocr.Extractor) *PDFSource {
	return &PDFSource{extractor: extractor}
}

func (s *PDFSource) Extract(ctx context.Context, pdfPath string) (*Extraction, error) {
	checksum, err := fileChecksum(pdfPath)
	if err != nil {
		return nil, err
	}

	repaired, pages, cleanup, err := preflight(pdfPath)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	zap.L().Info("catalog: preflight passed",
		zap.String("catalog", pdfPath),
		zap.Int("pages", pages))

	text, err := s.extractor.ExtractText(ctx, repaired)
	if err != nil {
		return nil, eris.Wrapf(err, "extract text from %s", pdfPath)
	}

	extractedAt := time.Now().UTC()
	version := deriveVersion(pdfPath)
	records, pageErrs := parsePages(text, version, extractedAt)

	zap.L().Info("catalog: extraction complete",
		zap.String("catalog_version", version),
		zap.Int("records", len(records)),
		zap.Int("page_errors", len(pageErrs)))

	return &Extraction{
		CatalogVersion: version,
		SourcePath:     pdfPath,
		Checksum:       checksum,
		Pages:          pages,
		ExtractedAt:    extractedAt,
		Records:        records,
		Errors:         pageErrs,
	}, nil
}

// preflight optimizes the PDF into a temp copy and counts its pages.
// The optimized copy is what gets handed to OCR; cleanup removes it.
func preflight(pdfPath string) (repaired string, pages int, cleanup func(), err error) {
	tmp, err := os.MkdirTemp("", "partsync-preflight-*")
	if err != nil {
		return "", 0, nil, eris.Wrap(err, "create preflight dir")
	}
	cleanup = func() { os.RemoveAll(tmp) } //nolint:errcheck

	repaired = filepath.Join(tmp, filepath.Base(pdfPath))
	if err := optimizePDF(pdfPath, repaired); err != nil {
		cleanup()
		return "", 0, nil, eris.Wrapf(err, "catalog %s failed preflight", pdfPath)
	}

	pages, err = api.PageCountFile(repaired)
	if err != nil {
		cleanup()
		return "", 0, nil, eris.Wrapf(err, "count pages of %s", pdfPath)
	}
	return repaired, pages, cleanup, nil
}

func optimizePDF(inPath, outPath string) error {
	cfg := pdfmodel.NewDefaultConfiguration()
	cfg.ValidationMode = pdfmodel.ValidationRelaxed
	return api.OptimizeFile(inPath, outPath, cfg)
}
