package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-scanner/pkg/integrity"
	"github.com/mattsolo1/grove-scanner/pkg/service"
)

func NewDoctorCmd(svc **service.Service) *cobra.Command {
	var (
		doctorFix  bool
		doctorJSON bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check and repair item metadata",
		Long: `The doctor command checks every item for structural problems
and can fix the ones that have a safe repair.

Issues it can detect and fix:
- Blank names (replaced by a placeholder)
- Update times earlier than creation times
- Pages listed more than once

Issues it only reports:
- The same id in more than one directory
- Creation times in the future
- Deletion times earlier than creation times
- Folders listing pages, and documents without pages`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			out := cmd.OutOrStdout()

			if doctorFix {
				report, err := s.RepairAll()
				if err != nil {
					return err
				}
				if doctorJSON {
					return outputJSON(report)
				}
				for _, id := range report.Repaired {
					fmt.Fprintf(out, "Repaired %s\n", shortID(id))
				}
				for _, id := range report.Unresolved {
					fmt.Fprintf(out, "Unresolved: %s is stored in more than one directory\n", shortID(id))
				}
				for id, err := range report.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "Failed to repair %s: %v\n", shortID(id), err)
				}
				fmt.Fprintf(out, "%d issues before, %d after\n", len(report.Before), len(report.After))
				if len(report.Errors) > 0 {
					return fmt.Errorf("failed to repair %d items", len(report.Errors))
				}
				return nil
			}

			issues, err := s.CheckIntegrity()
			if err != nil {
				return err
			}
			if doctorJSON {
				return outputJSON(issues)
			}
			if len(issues) == 0 {
				fmt.Fprintln(out, "No issues found")
				return nil
			}

			for _, issue := range issues {
				fmt.Fprintln(out, issue.String())
			}
			fmt.Fprintln(out)

			counts := integrity.CountByKind(issues)
			kinds := make([]string, 0, len(counts))
			for k := range counts {
				kinds = append(kinds, string(k))
			}
			sort.Strings(kinds)
			fixable := 0
			for _, k := range kinds {
				fmt.Fprintf(out, "%-24s %d\n", k, counts[integrity.IssueKind(k)])
				if integrity.Repairable(integrity.IssueKind(k)) {
					fixable += counts[integrity.IssueKind(k)]
				}
			}
			if fixable > 0 {
				fmt.Fprintf(out, "\nRun with --fix to repair %d of them\n", fixable)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&doctorFix, "fix", false, "Automatically fix issues")
	cmd.Flags().BoolVar(&doctorJSON, "json", false, "Output in JSON format")
	return cmd
}
