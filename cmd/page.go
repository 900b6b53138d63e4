package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-scanner/pkg/naming"
	"github.com/mattsolo1/grove-scanner/pkg/pages"
	"github.com/mattsolo1/grove-scanner/pkg/service"
)

func NewPageCmd(svc **service.Service) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "page",
		Short: "Manage the pages of a document",
	}

	cmd.AddCommand(newPageAddCmd(svc))
	cmd.AddCommand(newPageRemoveCmd(svc))
	cmd.AddCommand(newPageReorderCmd(svc))
	cmd.AddCommand(newPageShareCmd(svc))
	cmd.AddCommand(newPageTransferCmd(svc, true))
	cmd.AddCommand(newPageTransferCmd(svc, false))

	return cmd
}

func newPageAddCmd(svc **service.Service) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add <id> <image>...",
		Short: "Append images as pages",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			item, err := resolveItem(s, args[0])
			if err != nil {
				return err
			}
			if name != "" && len(args) > 2 {
				return fmt.Errorf("--name needs exactly one image")
			}

			for _, path := range args[1:] {
				if !naming.IsSupportedFormat(path) {
					return fmt.Errorf("unsupported image format: %s", path)
				}
				item, err = s.AddPage(item.ID, pages.FileSource(path), name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s as %s\n", path, item.PageOrder[len(item.PageOrder)-1])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Page filename (default: random)")
	return cmd
}

func newPageRemoveCmd(svc **service.Service) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id> <page>...",
		Short:   "Remove pages and their files",
		Aliases: []string{"remove"},
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			item, err := resolveItem(s, args[0])
			if err != nil {
				return err
			}
			for _, page := range args[1:] {
				if _, err := s.RemovePage(item.ID, page); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", page)
			}
			return nil
		},
	}
}

func newPageReorderCmd(svc **service.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <id> <page>...",
		Short: "Reorder pages",
		Long: `Reorder the pages of a document. List every page once, in the new order.
Pages are renamed page_001, page_002, ... to match.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			item, err := resolveItem(s, args[0])
			if err != nil {
				return err
			}
			item, err = s.ReorderPages(item.ID, args[1:])
			if err != nil {
				return err
			}
			for i, p := range item.PageOrder {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", i+1, p)
			}
			return nil
		},
	}
}

func newPageShareCmd(svc **service.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "share <id> <page>",
		Short: "Print a shareable location for a page",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			item, err := resolveItem(s, args[0])
			if err != nil {
				return err
			}
			loc, ok, err := s.PageLocation(item.ID, args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("page %s has no file", args[1])
			}
			fmt.Fprintln(cmd.OutOrStdout(), loc.String())
			return nil
		},
	}
}

func newPageTransferCmd(svc **service.Service, move bool) *cobra.Command {
	use, short := "cp <from> <to> <page>", "Copy a page to another document"
	if move {
		use, short = "mv <from> <to> <page>", "Move a page to another document"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			from, err := resolveItem(s, args[0])
			if err != nil {
				return err
			}
			to, err := resolveItem(s, args[1])
			if err != nil {
				return err
			}
			if move {
				_, _, err = s.MovePage(from.ID, to.ID, args[2])
			} else {
				_, _, err = s.CopyPage(from.ID, to.ID, args[2])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s: %s\n", shortID(from.ID), shortID(to.ID), args[2])
			return nil
		},
	}
}
