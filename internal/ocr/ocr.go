// Package ocr turns catalog PDFs into plain text. Extractors keep page
// boundaries as form feeds so the catalog parser can attribute records
// and failures to pages.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/bluewater-supply/partsync/internal/config"
)

// Extractor extracts text content from PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "pdftotext", "":
		return NewPdfToText(cfg.Binary), nil
	case "mistral":
		if cfg.MistralAPIKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralAPIKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
