package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bluewater-supply/partsync/internal/feed"
	"github.com/bluewater-supply/partsync/internal/model"
	"github.com/bluewater-supply/partsync/internal/store"
)

var (
	exportSnapshotID string
	exportFormat     string
	exportOut        string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a snapshot as a price feed file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportFormat != "csv" && exportFormat != "xlsx" {
			return eris.Errorf("unknown format %q (want csv or xlsx)", exportFormat)
		}

		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var snap *model.Snapshot
		if exportSnapshotID != "" {
			snap, err = st.GetSnapshot(ctx, exportSnapshotID)
		} else {
			snap, err = st.LatestSnapshot(ctx)
		}
		if errors.Is(err, store.ErrNotFound) {
			return eris.New("no snapshot to export; run partsync process or reconcile first")
		}
		if err != nil {
			return err
		}

		path, err := writeFeedFile(snap, cfg.Data.OutputsDir(), exportFormat, exportOut)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Exported %d entries to %s\n", len(snap.Entries), path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSnapshotID, "snapshot", "", "snapshot ID to export (default: latest)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "feed format: csv or xlsx")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file path (default: generated name under data/outputs)")
	rootCmd.AddCommand(exportCmd)
}

// writeFeedFile writes the snapshot as a feed file in the given format.
// When path is empty the file is named after the snapshot's creation
// time under dir.
func writeFeedFile(snap *model.Snapshot, dir, format, path string) (string, error) {
	if path == "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", eris.Wrapf(err, "create outputs dir %s", dir)
		}
		name := feed.CSVFileName(snap.CreatedAt)
		if format == "xlsx" {
			name = feed.XLSXFileName(snap.CreatedAt)
		}
		path = filepath.Join(dir, name)
	} else if parent := filepath.Dir(path); parent != "." {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return "", eris.Wrapf(err, "create output dir %s", parent)
		}
	}

	opts := feed.Options{DescriptionLimit: cfg.Export.DescriptionLimit}

	switch format {
	case "csv":
		f, err := os.Create(path)
		if err != nil {
			return "", eris.Wrapf(err, "create feed %s", path)
		}
		if err := feed.WriteCSV(f, snap, opts); err != nil {
			_ = f.Close()
			return "", err
		}
		if err := f.Close(); err != nil {
			return "", eris.Wrapf(err, "close feed %s", path)
		}
	case "xlsx":
		if err := feed.WriteXLSX(path, snap, opts); err != nil {
			return "", err
		}
	default:
		return "", eris.Errorf("unknown feed format %q", format)
	}

	zap.L().Info("feed written",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("entries", len(snap.Entries)),
	)
	return path, nil
}

// writeBackupFile writes the snapshot backup JSON with its statistics
// block under the backups directory.
func writeBackupFile(snap *model.Snapshot) (string, error) {
	dir := cfg.Data.BackupsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "create backups dir %s", dir)
	}

	path := filepath.Join(dir, feed.BackupFileName(snap))
	if err := feed.WriteBackup(path, snap); err != nil {
		return "", err
	}

	zap.L().Info("snapshot backup written",
		zap.String("path", path),
		zap.String("snapshot_id", snap.ID),
	)
	return path, nil
}
