package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bluewater-supply/partsync/internal/model"
	"github.com/bluewater-supply/partsync/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest snapshot and any resumable runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

		snap, err := st.LatestSnapshot(ctx)
		switch {
		case errors.Is(err, store.ErrNotFound):
			_, _ = fmt.Fprintln(w, "Latest snapshot:\tnone")
		case err != nil:
			return err
		default:
			_, _ = fmt.Fprintf(w, "Latest snapshot:\t%s (%s)\n", truncateID(snap.ID), snap.CatalogVersion)
			_, _ = fmt.Fprintf(w, "  Created:\t%s\n", snap.CreatedAt.Format("2006-01-02 15:04:05"))
			_, _ = fmt.Fprintf(w, "  Entries:\t%d\n", len(snap.Entries))
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 50})
		if err != nil {
			return err
		}

		resumable := make([]model.FetchRun, 0, len(runs))
		for _, r := range runs {
			if r.Status == model.RunStatusRunning || r.Status == model.RunStatusFailed {
				resumable = append(resumable, r)
			}
		}

		if len(resumable) == 0 {
			_, _ = fmt.Fprintln(w, "Resumable runs:\tnone")
			_ = w.Flush()
			return nil
		}

		_, _ = fmt.Fprintf(w, "Resumable runs:\t%d\n", len(resumable))
		for _, r := range resumable {
			outcomes, oerr := st.ListOutcomes(ctx, r.ID)
			if oerr != nil {
				return oerr
			}
			_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\tstarted %s\t%d/%d resolved\n",
				truncateID(r.ID),
				r.CatalogVersion,
				r.Status,
				r.StartedAt.Format("2006-01-02 15:04"),
				len(outcomes),
				r.TotalItems,
			)
		}
		_ = w.Flush()

		fmt.Fprintf(os.Stdout, "\nResume with: partsync fetch --run <id>\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
