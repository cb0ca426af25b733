package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// SaveArtifact writes the extraction as JSON under dir, named after the
// catalog version, and returns the path. The artifact lets fetch and
// reconcile runs work from a stable extraction instead of re-reading
// the PDF.
func SaveArtifact(dir string, ex *Extraction) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "create extracts dir %s", dir)
	}

	path := filepath.Join(dir, fmt.Sprintf("extraction_%s.json", ex.CatalogVersion))
	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "create extraction artifact %s", path)
	}
	defer f.Close() //nolint:errcheck

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ex); err != nil {
		return "", eris.Wrapf(err, "encode extraction artifact %s", path)
	}
	return path, nil
}

// LoadArtifact reads an extraction artifact written by SaveArtifact.
func LoadArtifact(path string) (*Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read extraction artifact %s", path)
	}
	var ex Extraction
	if err := json.Unmarshal(data, &ex); err != nil {
		return nil, eris.Wrapf(err, "parse extraction artifact %s", path)
	}
	return &ex, nil
}
