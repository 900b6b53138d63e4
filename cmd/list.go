package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-scanner/pkg/models"
	"github.com/mattsolo1/grove-scanner/pkg/service"
)

func NewListCmd(svc **service.Service) *cobra.Command {
	var (
		sortBy    string
		listJSON  bool
		documents bool
		folders   bool
		deleted   bool
		all       bool
		inFolder  string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List documents and folders",
		Aliases: []string{"ls"},
		Long: `List the items in the storage root.

Examples:
  scan list                    # Active items, newest first
  scan list --sort name        # By name
  scan list --documents        # Documents only
  scan list --deleted          # Soft-deleted items
  scan list --in 3f2a          # Items labeled with a folder`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc

			opt, err := models.ParseSortOption(sortBy)
			if err != nil {
				return err
			}
			opts := []service.ListOption{service.WithSort(opt)}

			switch {
			case documents && folders:
				return fmt.Errorf("--documents and --folders are mutually exclusive")
			case documents:
				opts = append(opts, service.OnlyDocuments())
			case folders:
				opts = append(opts, service.OnlyFolders())
			}
			switch {
			case deleted:
				opts = append(opts, service.OnlyDeleted())
			case all:
				opts = append(opts, service.IncludeDeleted())
			}
			if inFolder != "" {
				parent, err := resolveItem(s, inFolder)
				if err != nil {
					return err
				}
				opts = append(opts, service.InParent(parent.ID))
			}

			items, err := s.ListItems(opts...)
			if err != nil {
				return err
			}

			if listJSON {
				return outputJSON(items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No items found")
				return nil
			}
			printItemsTable(cmd.OutOrStdout(), items)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sortBy, "sort", "s", string(models.SortDateDesc), "Sort order (name_asc, name_desc, date_asc, date_desc, size_asc, size_desc)")
	cmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	cmd.Flags().BoolVarP(&documents, "documents", "d", false, "List documents only")
	cmd.Flags().BoolVarP(&folders, "folders", "f", false, "List folders only")
	cmd.Flags().BoolVar(&deleted, "deleted", false, "List soft-deleted items only")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include soft-deleted items")
	cmd.Flags().StringVar(&inFolder, "in", "", "List items labeled with this folder")

	return cmd
}

func NewSearchCmd(svc **service.Service) *cobra.Command {
	var searchJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find items by name",
		Long:  "Case-insensitive substring search over the names of active items.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := (*svc).Search(args[0])
			if err != nil {
				return err
			}
			if searchJSON {
				return outputJSON(items)
			}
			if len(items) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No items match %q\n", args[0])
				return nil
			}
			printItemsTable(cmd.OutOrStdout(), items)
			return nil
		},
	}

	cmd.Flags().BoolVar(&searchJSON, "json", false, "Output in JSON format")
	return cmd
}

func NewShowCmd(svc **service.Service) *cobra.Command {
	var (
		showJSON bool
		showYAML bool
	)

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			item, err := resolveItem(s, args[0])
			if err != nil {
				return err
			}

			switch {
			case showJSON:
				return outputJSON(item)
			case showYAML:
				return outputYAML(item)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:       %s\n", item.ID)
			fmt.Fprintf(out, "Name:     %s\n", item.DisplayName)
			fmt.Fprintf(out, "Kind:     %s\n", item.Kind())
			fmt.Fprintf(out, "Locked:   %t\n", item.Locked)
			fmt.Fprintf(out, "Created:  %s\n", item.CreatedAt.Time().Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Updated:  %s\n", item.UpdatedAt.Time().Local().Format("2006-01-02 15:04:05"))
			if item.DeletedAt != nil {
				fmt.Fprintf(out, "Deleted:  %s\n", item.DeletedAt.Time().Local().Format("2006-01-02 15:04:05"))
			}
			if dir, err := s.Store().ItemDir(item.ID); err == nil {
				fmt.Fprintf(out, "Dir:      %s\n", dir)
			}
			if item.IsDocument() {
				fmt.Fprintf(out, "Pages:    %d\n", item.PageCount())
				for i, p := range item.PageOrder {
					fmt.Fprintf(out, "  %3d  %s\n", i+1, p)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
	cmd.Flags().BoolVar(&showYAML, "yaml", false, "Output in YAML format")
	return cmd
}
