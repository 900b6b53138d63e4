package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mattsolo1/grove-scanner/pkg/service"
)

func NewRenameCmd(svc **service.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename an item",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			item, err := resolveItem(s, args[0])
			if err != nil {
				return err
			}
			item, err = s.Rename(item.ID, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", shortID(item.ID), item.DisplayName)
			return nil
		},
	}
}

func NewLockCmd(svc **service.Service) *cobra.Command {
	var unlock, toggle bool

	cmd := &cobra.Command{
		Use:   "lock <id>",
		Short: "Set or clear an item's lock flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			item, err := resolveItem(s, args[0])
			if err != nil {
				return err
			}
			if toggle {
				item, err = s.ToggleLock(item.ID)
			} else {
				item, err = s.SetLocked(item.ID, !unlock)
			}
			if err != nil {
				return err
			}
			state := "unlocked"
			if item.Locked {
				state = "locked"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", shortID(item.ID), state)
			return nil
		},
	}

	cmd.Flags().BoolVar(&unlock, "off", false, "Clear the lock flag")
	cmd.Flags().BoolVar(&toggle, "toggle", false, "Flip the lock flag")
	return cmd
}

func NewDeleteCmd(svc **service.Service) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Short:   "Move items to the trash",
		Aliases: []string{"rm"},
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			ids, err := resolveIDs(s, args)
			if err != nil {
				return err
			}
			done, err := s.DeleteItems(ids, false)
			for _, id := range done {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", shortID(id))
			}
			return batchError(cmd, err)
		},
	}
}

func NewRestoreCmd(svc **service.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>...",
		Short: "Restore soft-deleted items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			ids, err := resolveIDs(s, args)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if _, err := s.Restore(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", shortID(id))
			}
			return nil
		},
	}
}

func NewPurgeCmd(svc **service.Service) *cobra.Command {
	var (
		yes   bool
		trash bool
	)

	cmd := &cobra.Command{
		Use:   "purge [id]...",
		Short: "Permanently delete items and their files",
		Long: `Permanently delete items. This removes the item directory and every page.

Examples:
  scan purge 3f2a          # One item
  scan purge --trash       # Everything in the trash
  scan purge --trash -y    # Without asking`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc

			var ids []string
			if trash {
				items, err := s.ListItems(service.OnlyDeleted())
				if err != nil {
					return err
				}
				for _, it := range items {
					ids = append(ids, it.ID)
				}
			}
			resolved, err := resolveIDs(s, args)
			if err != nil {
				return err
			}
			ids = append(ids, resolved...)
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to purge")
				return nil
			}

			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Permanently delete %d items?", len(ids)))
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}

			done, err := s.DeleteItems(ids, true)
			for _, id := range done {
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %s\n", shortID(id))
			}
			return batchError(cmd, err)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().BoolVar(&trash, "trash", false, "Purge every soft-deleted item")
	return cmd
}

// isTerminal is replaced in tests.
var isTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

// confirm asks a yes/no question. Without a terminal there is nobody to ask,
// so the answer is no.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	if !isTerminal() {
		return false, errors.New("refusing to purge without a terminal; pass --yes")
	}
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func batchError(cmd *cobra.Command, err error) error {
	var batch *service.BatchError
	if errors.As(err, &batch) {
		for id, e := range batch.Failed {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %v\n", shortID(id), e)
		}
	}
	return err
}
