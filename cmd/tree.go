package cmd

import (
	"fmt"

	"github.com/disiqueira/gotree/v3"
	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-scanner/pkg/models"
	"github.com/mattsolo1/grove-scanner/pkg/service"
)

func NewTreeCmd(svc **service.Service) *cobra.Command {
	var showPages bool

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show folders, documents and pages as a tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			items, err := s.ListItems(service.WithSort(models.SortNameAsc))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), buildTree(s.Config().Root, items, showPages).Print())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showPages, "pages", "p", false, "List the pages of each document")
	return cmd
}

// buildTree nests items under the folder they are labeled with. Items whose
// folder is missing are shown at the top level.
func buildTree(root string, items []models.Item, showPages bool) gotree.Tree {
	tree := gotree.New(root)

	folders := make(map[string]gotree.Tree)
	for _, it := range items {
		if it.IsContainer && it.ParentID == nil {
			folders[it.ID] = tree.Add(itemLabel(it))
		}
	}

	for _, it := range items {
		if it.IsContainer && it.ParentID == nil {
			continue
		}
		parent := tree
		if it.ParentID != nil {
			if f, ok := folders[*it.ParentID]; ok {
				parent = f
			}
		}
		node := parent.Add(itemLabel(it))
		if showPages && it.IsDocument() {
			for _, p := range it.PageOrder {
				node.Add(p)
			}
		}
	}
	return tree
}

func itemLabel(it models.Item) string {
	if it.IsContainer {
		return fmt.Sprintf("%s/ [%s]", it.DisplayName, shortID(it.ID))
	}
	return fmt.Sprintf("%s (%d pages) [%s]", it.DisplayName, it.PageCount(), shortID(it.ID))
}
