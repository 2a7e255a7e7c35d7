package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/soypete/pedropost/pkg/database"
	"github.com/soypete/pedropost/pkg/ideas"
	"github.com/soypete/pedropost/pkg/storage"
	"github.com/spf13/cobra"
)

var historyLimit int

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the idea rotation and recent cycles",
		Long: `Show which ideas file is in use, where the rotation cursor sits and which
idea will be posted next. When a database is configured the most recent
cycles are listed too, along with their archived image when images are
archived locally.

Nothing is posted and the cursor is not moved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ledger, err := ideas.Load(cfg.Ideas.File)
			if err != nil {
				return fmt.Errorf("failed to load ideas: %w", err)
			}

			out := cmd.OutOrStdout()
			printLedger(out, ledger)

			if cfg.Database.URL == "" {
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			db, err := database.New(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(ctx); err != nil {
				return err
			}

			records, err := database.NewCycleStore(db.DB).Recent(ctx, historyLimit)
			if err != nil {
				return err
			}

			var archive *storage.ImageStorage
			if cfg.Storage.ArchiveGenerated && cfg.Storage.S3.Bucket == "" && cfg.Storage.BasePath != "" {
				archive, err = storage.NewImageStorage(&storage.ImageStorageConfig{BasePath: cfg.Storage.BasePath})
				if err != nil {
					return err
				}
			}
			printHistory(out, records, archive)
			return nil
		},
	}

	cmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of recent cycles to show")

	return cmd
}

func printLedger(w io.Writer, ledger *ideas.Ledger) {
	fmt.Fprintf(w, "Ideas file:  %s\n", ledger.Path())
	fmt.Fprintf(w, "Ideas:       %d\n", len(ledger.Ideas()))
	fmt.Fprintf(w, "Last index:  %d\n", ledger.LastIndex())

	next, idx, err := ledger.Peek()
	switch {
	case errors.Is(err, ideas.ErrEmptyLedger):
		fmt.Fprintf(w, "Next idea:   none, add entries to %s\n", ledger.Path())
	case err != nil:
		fmt.Fprintf(w, "Next idea:   %v\n", err)
	default:
		fmt.Fprintf(w, "Next idea:   [%d] %s\n", idx, next.Title)
	}
}

// printHistory lists cycles newest first. archive may be nil.
func printHistory(w io.Writer, records []*database.CycleRecord, archive *storage.ImageStorage) {
	fmt.Fprintln(w)
	if len(records) == 0 {
		fmt.Fprintln(w, "No cycles recorded yet.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := "STARTED\tSTATUS\tIDEA\tPOST\tDURATION"
	if archive != nil {
		header += "\tIMAGE"
	}
	fmt.Fprintln(tw, header)
	for _, r := range records {
		detail := r.PostID
		if r.Status == database.StatusFailed {
			detail = r.FailedStage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s",
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Status,
			r.IdeaTitle,
			detail,
			r.Duration().Round(time.Millisecond))
		if archive != nil {
			fmt.Fprintf(tw, "\t%s", archivedImage(archive, r.ID))
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}

func archivedImage(archive *storage.ImageStorage, cycleID string) string {
	paths, err := archive.ListGenerated(cycleID)
	if err != nil || len(paths) == 0 {
		return "-"
	}
	return paths[0]
}
