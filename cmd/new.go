package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-scanner/pkg/naming"
	"github.com/mattsolo1/grove-scanner/pkg/pages"
	"github.com/mattsolo1/grove-scanner/pkg/service"
)

func NewNewCmd(svc **service.Service) *cobra.Command {
	var (
		folder   bool
		inFolder string
		images   []string
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create a document or folder",
		Long: `Create a new document, optionally importing images as its pages.

Examples:
  scan new "Invoice March"                       # Empty document
  scan new Receipts --folder                     # Folder
  scan new "Tax 2024" -i p1.jpg -i p2.png        # Document with two pages
  scan new Lunch --in 3f2a                       # Document labeled with a folder`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			name := strings.Join(args, " ")

			var opts []service.CreateOption
			if inFolder != "" {
				parent, err := resolveItem(s, inFolder)
				if err != nil {
					return err
				}
				opts = append(opts, service.InFolder(parent.ID))
			}

			if folder {
				if len(images) > 0 {
					return fmt.Errorf("folders have no pages")
				}
				item, err := s.CreateFolder(name, opts...)
				if err != nil {
					return err
				}
				return printCreated(cmd, item.ID, item.Kind(), jsonOut, item)
			}

			sources := make([]pages.Source, 0, len(images))
			for _, path := range images {
				if !naming.IsSupportedFormat(path) {
					return fmt.Errorf("unsupported image format: %s", path)
				}
				sources = append(sources, pages.FileSource(path))
			}
			item, err := s.CreateDocumentFromImages(name, sources, opts...)
			if err != nil {
				return err
			}
			return printCreated(cmd, item.ID, item.Kind(), jsonOut, item)
		},
	}

	cmd.Flags().BoolVar(&folder, "folder", false, "Create a folder instead of a document")
	cmd.Flags().StringVar(&inFolder, "in", "", "Folder to label the new item with")
	cmd.Flags().StringArrayVarP(&images, "image", "i", nil, "Image to import as a page (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the created item as JSON")

	return cmd
}

func printCreated(cmd *cobra.Command, id, kind string, jsonOut bool, v any) error {
	if jsonOut {
		return outputJSON(v)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s\n", kind, id)
	return nil
}
