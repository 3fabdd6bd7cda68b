package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openfroyo/bootstrap/pkg/backup"
	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/stores"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newSnapshotsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots [name]",
		Short: "List backup snapshots",
		Long: `List backup snapshots, newest first. With a snapshot name, list the
files it holds as home-relative paths.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			fs := afero.NewOsFs()
			root := cfg.Settings.BackupRoot

			if len(args) == 1 {
				if !backup.IsSnapshotName(args[0]) {
					return engine.NewValidationError(fmt.Sprintf("%q is not a snapshot name", args[0]), nil)
				}
				files, err := backup.SnapshotFiles(fs, filepath.Join(root, args[0]))
				if err != nil {
					return err
				}
				runs := recordedRuns(cmd.Context(), cfg.Settings.JournalPath, filepath.Join(root, args[0]))
				for _, f := range files {
					if id, ok := runs[f]; ok {
						fmt.Printf("%s  (run %s)\n", f, id)
						continue
					}
					fmt.Println(f)
				}
				return nil
			}

			snaps, err := backup.ListSnapshots(fs, root)
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				fmt.Printf("No snapshots under %s\n", root)
				return nil
			}
			for _, s := range snaps {
				fmt.Printf("%s  %s  %d files\n", s.Name, s.CreatedAt.Format(time.DateTime), s.Files)
			}
			return nil
		},
	}
	return cmd
}

// recordedRuns maps the home-relative files of a snapshot to the run that
// copied them, as recorded in the journal. A missing or unreadable journal
// yields an empty map.
func recordedRuns(ctx context.Context, journalPath, snapshotDir string) map[string]string {
	out := make(map[string]string)
	if journalPath == "" {
		return out
	}
	if _, err := os.Stat(journalPath); err != nil {
		return out
	}

	journal, err := stores.OpenJournal(ctx, journalPath)
	if err != nil {
		log.Debug().Err(err).Msg("Journal unavailable")
		return out
	}
	defer journal.Close()

	entries, err := journal.ListBackupEntries(ctx, filepath.Base(snapshotDir))
	if err != nil {
		log.Debug().Err(err).Msg("Failed to read backup entries")
		return out
	}
	for _, e := range entries {
		rel, err := filepath.Rel(snapshotDir, e.Destination)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if _, seen := out[rel]; !seen && e.RunID != "" {
			out[rel] = e.RunID
		}
	}
	return out
}
