package feed

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/bluewater-supply/partsync/internal/model"
)

// BackupStats summarizes a snapshot for the backup header.
type BackupStats struct {
	TotalEntries int      `json:"total_entries"`
	Active       int      `json:"active"`
	PricePending int      `json:"price_pending"`
	Discontinued int      `json:"discontinued"`
	Priced       int      `json:"priced"`
	Coverage     float64  `json:"coverage"`
	MinPrice     *float64 `json:"min_price,omitempty"`
	MaxPrice     *float64 `json:"max_price,omitempty"`
	AvgPrice     *float64 `json:"avg_price,omitempty"`
}

// Backup is a self-contained JSON copy of one snapshot.
type Backup struct {
	WrittenAt time.Time       `json:"written_at"`
	Stats     BackupStats     `json:"stats"`
	Snapshot  *model.Snapshot `json:"snapshot"`
}

// ComputeStats derives the backup header from the snapshot entries.
func ComputeStats(snap *model.Snapshot) BackupStats {
	stats := BackupStats{TotalEntries: len(snap.Entries)}

	var sum float64
	for i := range snap.Entries {
		e := &snap.Entries[i]
		switch e.Status {
		case model.EntryActive:
			stats.Active++
		case model.EntryPricePending:
			stats.PricePending++
		case model.EntryDiscontinued:
			stats.Discontinued++
		}
		if e.UnitPrice == nil {
			continue
		}
		p := *e.UnitPrice
		stats.Priced++
		sum += p
		if stats.MinPrice == nil || p < *stats.MinPrice {
			stats.MinPrice = &p
		}
		if stats.MaxPrice == nil || p > *stats.MaxPrice {
			stats.MaxPrice = &p
		}
	}
	if stats.TotalEntries > 0 {
		stats.Coverage = float64(stats.Priced) / float64(stats.TotalEntries)
	}
	if stats.Priced > 0 {
		avg := sum / float64(stats.Priced)
		stats.AvgPrice = &avg
	}
	return stats
}

// WriteBackup writes the snapshot and its statistics as indented JSON.
func WriteBackup(path string, snap *model.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "feed: create backup %s", path)
	}
	defer f.Close() //nolint:errcheck

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	err = enc.Encode(Backup{
		WrittenAt: time.Now().UTC(),
		Stats:     ComputeStats(snap),
		Snapshot:  snap,
	})
	if err != nil {
		return eris.Wrapf(err, "feed: encode backup %s", path)
	}
	return nil
}

// LoadBackup reads a backup file back.
func LoadBackup(path string) (*Backup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: read backup %s", path)
	}
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, eris.Wrapf(err, "feed: parse backup %s", path)
	}
	return &b, nil
}

// BackupFileName names a backup for the given snapshot.
func BackupFileName(snap *model.Snapshot) string {
	return fmt.Sprintf("snapshot_%s_%s.json", snap.CreatedAt.UTC().Format("20060102_150405"), snap.ID)
}
