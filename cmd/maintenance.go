package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-scanner/pkg/models"
	"github.com/mattsolo1/grove-scanner/pkg/service"
)

func NewStatsCmd(svc **service.Service) *cobra.Command {
	var statsJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show collection and storage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			stats, err := s.Statistics()
			if err != nil {
				return err
			}
			storage, err := s.StorageStats()
			if err != nil {
				return err
			}

			if statsJSON {
				return outputJSON(struct {
					Collection models.Statistics   `json:"collection"`
					Storage    models.StorageStats `json:"storage"`
				}{stats, storage})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Root:       %s\n", storage.Root)
			fmt.Fprintf(out, "Items:      %d (%d documents, %d folders)\n", stats.TotalItems, stats.TotalDocuments, stats.TotalFolders)
			fmt.Fprintf(out, "Pages:      %d\n", stats.TotalPages)
			fmt.Fprintf(out, "Size:       %s\n", humanBytes(stats.TotalBytes))
			fmt.Fprintf(out, "On disk:    %s in %d items\n", humanBytes(storage.TotalBytes), storage.ItemCount)
			if storage.FreeBytes > 0 || storage.UsedBytes > 0 {
				fmt.Fprintf(out, "Volume:     %s used, %s free\n", humanBytes(storage.UsedBytes), humanBytes(storage.FreeBytes))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&statsJSON, "json", false, "Output in JSON format")
	return cmd
}

func NewVerifyCmd(svc **service.Service) *cobra.Command {
	var verifyJSON bool

	cmd := &cobra.Command{
		Use:   "verify [id]...",
		Short: "Check that every page has a file",
		Long:  "Report pages listed in a document's order that have no file. Without ids, every active document is checked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc

			ids, err := resolveIDs(s, args)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				docs, err := s.Documents()
				if err != nil {
					return err
				}
				for _, d := range docs {
					ids = append(ids, d.ID)
				}
			}

			reports, verr := s.ValidateItems(ids)
			if verifyJSON {
				if err := outputJSON(reports); err != nil {
					return err
				}
				return batchError(cmd, verr)
			}

			bad := 0
			for _, r := range reports {
				if r.Valid() {
					continue
				}
				bad++
				fmt.Fprintf(cmd.OutOrStdout(), "%s: missing %v\n", shortID(r.ItemID), r.Missing)
			}
			if bad == 0 && verr == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "All %d documents complete\n", len(reports))
			}
			return batchError(cmd, verr)
		},
	}

	cmd.Flags().BoolVar(&verifyJSON, "json", false, "Output in JSON format")
	return cmd
}

func NewBackupCmd(svc **service.Service) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "backup <id>",
		Short: "Back up an item, or list its backups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			item, err := resolveItem(s, args[0])
			if err != nil {
				return err
			}

			if list {
				backups, err := s.Backups(item.ID)
				if err != nil {
					return err
				}
				for _, b := range backups {
					m, err := s.ReadManifest(b)
					if err != nil {
						fmt.Fprintf(cmd.OutOrStdout(), "%s  (unreadable manifest)\n", b)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %d files  %s\n",
						b, m.CreatedAt.Local().Format("2006-01-02 15:04"), len(m.Files), humanBytes(m.TotalBytes))
				}
				return nil
			}

			path, err := s.Backup(item.ID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&list, "list", "l", false, "List existing backups instead")
	return cmd
}

func NewRestoreBackupCmd(svc **service.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "restore-backup <id> [backup]",
		Short: "Restore an item from a backup",
		Long:  "Restore an item from a backup, the newest one unless a backup name or path is given. The id must be given in full when the item no longer exists.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			id := args[0]
			if item, err := resolveItem(s, id); err == nil {
				id = item.ID
			}

			var backup string
			if len(args) == 2 {
				backup = args[1]
			} else {
				backups, err := s.Backups(id)
				if err != nil {
					return err
				}
				if len(backups) == 0 {
					return fmt.Errorf("no backups of %s", id)
				}
				backup = backups[0]
			}

			item, err := s.RestoreBackup(id, backup)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s (%s) from %s\n", shortID(item.ID), item.DisplayName, backup)
			return nil
		},
	}
}

func NewCleanupCmd(svc **service.Service) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stale scratch files",
		RunE: func(cmd *cobra.Command, args []string) error {
			n := (*svc).CleanupTemp(maxAge)
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d temp entries\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Remove entries older than this (default from config)")
	return cmd
}

func NewMigrateCmd(svc **service.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite legacy metadata files in the current format",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := (*svc).MigrateAll()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Legacy directories: %d\n", report.TotalDirs)
			fmt.Fprintf(out, "Migrated:           %d\n", report.MigratedDirs)
			fmt.Fprintf(out, "Failed:             %d\n", report.FailedDirs)
			fmt.Fprintf(out, "Took:               %s\n", report.Duration().Round(time.Millisecond))
			for dir, err := range report.ProcessingErr {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %v\n", dir, err)
			}
			if report.FailedDirs > 0 {
				return fmt.Errorf("failed to migrate %d directories", report.FailedDirs)
			}
			return nil
		},
	}
}

func NewReindexCmd(svc **service.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the id index from the item directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := (*svc).Reindex()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d items\n", n)
			return nil
		},
	}
}

func NewExportCmd(svc **service.Service) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all item metadata as a JSON snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create snapshot file: %w", err)
				}
				defer f.Close()
				w = f
			}
			snap, err := (*svc).ExportSnapshot(w)
			if err != nil {
				return err
			}
			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d items to %s\n", snap.Metadata.TotalItems, output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}
