package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bluewater-supply/partsync/internal/feed"
	"github.com/bluewater-supply/partsync/internal/model"
	"github.com/bluewater-supply/partsync/internal/store"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Inspect snapshot history",
	Long:  "Commands for listing, dumping, and summarizing reconciled snapshots.",
}

// -- snapshots list --

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		metas, err := st.ListSnapshots(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "snapshots list")
		}

		if len(metas) == 0 {
			fmt.Fprintln(os.Stderr, "No snapshots found.")
			return nil
		}

		formatSnapshotList(os.Stdout, metas)
		return nil
	},
}

// -- snapshots show --

var snapshotsShowCmd = &cobra.Command{
	Use:   "show <snapshot-id>",
	Short: "Dump a snapshot's entries as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := st.GetSnapshot(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "snapshots show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

// -- snapshots stats --

var snapshotsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show price coverage statistics for a snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		id, _ := cmd.Flags().GetString("snapshot")

		var snap *model.Snapshot
		if id != "" {
			snap, err = st.GetSnapshot(ctx, id)
		} else {
			snap, err = st.LatestSnapshot(ctx)
		}
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintln(os.Stderr, "No snapshots found.")
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "snapshots stats")
		}

		formatSnapshotStats(os.Stdout, snap, feed.ComputeStats(snap))
		return nil
	},
}

func init() {
	snapshotsListCmd.Flags().Int("limit", 50, "max number of snapshots to display")
	snapshotsStatsCmd.Flags().String("snapshot", "", "snapshot ID (default: latest)")

	snapshotsCmd.AddCommand(snapshotsListCmd)
	snapshotsCmd.AddCommand(snapshotsShowCmd)
	snapshotsCmd.AddCommand(snapshotsStatsCmd)
	rootCmd.AddCommand(snapshotsCmd)
}

// formatSnapshotList writes a tabular list of snapshot headers to w.
func formatSnapshotList(out io.Writer, metas []model.SnapshotMeta) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCATALOG\tCREATED\tENTRIES")
	_, _ = fmt.Fprintln(w, "--\t-------\t-------\t-------")

	for _, m := range metas {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
			truncateID(m.ID),
			m.CatalogVersion,
			m.CreatedAt.Format("2006-01-02 15:04"),
			m.EntryCount,
		)
	}
	_ = w.Flush()
}

// formatSnapshotStats writes one snapshot's coverage figures to w.
func formatSnapshotStats(out io.Writer, snap *model.Snapshot, s feed.BackupStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Snapshot:\t%s\n", snap.ID)
	_, _ = fmt.Fprintf(w, "Catalog:\t%s\n", snap.CatalogVersion)
	_, _ = fmt.Fprintf(w, "Created:\t%s\n", snap.CreatedAt.Format("2006-01-02 15:04:05"))
	_, _ = fmt.Fprintf(w, "Entries:\t%d\n", s.TotalEntries)
	_, _ = fmt.Fprintf(w, "  Active:\t%d\n", s.Active)
	_, _ = fmt.Fprintf(w, "  Price pending:\t%d\n", s.PricePending)
	_, _ = fmt.Fprintf(w, "  Discontinued:\t%d\n", s.Discontinued)
	_, _ = fmt.Fprintf(w, "Priced:\t%d (%.1f%%)\n", s.Priced, s.Coverage*100)
	if s.MinPrice != nil {
		_, _ = fmt.Fprintf(w, "Price range:\t%.2f - %.2f (avg %.2f)\n", *s.MinPrice, *s.MaxPrice, *s.AvgPrice)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
