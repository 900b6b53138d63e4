package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/mattsolo1/grove-scanner/pkg/models"
)

func outputJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func outputYAML(v any) error {
	encoder := yaml.NewEncoder(os.Stdout)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(v)
}

func printItemsTable(out io.Writer, items []models.Item) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "ID\tKIND\tCREATED\tPAGES\tNAME")
	fmt.Fprintln(w, "--------\t--------\t----------------\t-----\t-----------------------------")

	for _, it := range items {
		name := truncateString(it.DisplayName, 29)
		if it.Locked {
			name += " [locked]"
		}
		if it.IsDeleted() {
			name += " [deleted]"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			shortID(it.ID),
			it.Kind(),
			it.CreatedAt.Time().Local().Format("2006-01-02 15:04"),
			pagesColumn(it),
			name,
		)
	}

	w.Flush()
}

func pagesColumn(it models.Item) string {
	if it.IsContainer {
		return "-"
	}
	return fmt.Sprintf("%d", it.PageCount())
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
