// Package integrity checks a collection of items for structural problems
// and produces a repaired copy. It only looks at metadata; page files are
// never touched.
package integrity

import (
	"fmt"
	"strings"

	"github.com/mattsolo1/grove-scanner/pkg/models"
)

// IssueKind names a class of problem.
type IssueKind string

const (
	DuplicateID          IssueKind = "duplicate_id"
	FutureCreatedAt      IssueKind = "future_created_at"
	UpdatedBeforeCreated IssueKind = "updated_before_created"
	DeletedBeforeCreated IssueKind = "deleted_before_created"
	BlankName            IssueKind = "blank_name"
	ContainerHasPages    IssueKind = "container_has_pages"
	DocumentWithoutPages IssueKind = "document_without_pages"
	DuplicatePage        IssueKind = "duplicate_page"
)

// AllKinds lists every kind Validate can report.
var AllKinds = []IssueKind{
	DuplicateID, FutureCreatedAt, UpdatedBeforeCreated, DeletedBeforeCreated,
	BlankName, ContainerHasPages, DocumentWithoutPages, DuplicatePage,
}

// RepairedKinds are the kinds Repair fixes. Validate(Repair(items)) never
// reports them.
var RepairedKinds = []IssueKind{DuplicateID, UpdatedBeforeCreated, BlankName, DuplicatePage}

// Repairable reports whether Repair fixes issues of kind k.
func Repairable(k IssueKind) bool {
	for _, r := range RepairedKinds {
		if r == k {
			return true
		}
	}
	return false
}

// Placeholder names for blank display names.
const (
	UntitledFolder   = "Untitled Folder"
	UntitledDocument = "Untitled Document"
)

// Issue is one problem found on one item. Current and Expected carry the
// offending and the corrected value where that makes sense.
type Issue struct {
	Kind        IssueKind `json:"kind"`
	ItemID      string    `json:"itemId"`
	Description string    `json:"description"`
	Current     any       `json:"current,omitempty"`
	Expected    any       `json:"expected,omitempty"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s [%s]: %s", i.ItemID, i.Kind, i.Description)
}

// Validate checks every item and the collection as a whole. now bounds
// creation dates.
func Validate(items []models.Item, now models.Timestamp) []Issue {
	var issues []Issue
	seen := make(map[string]int, len(items))

	for _, it := range items {
		seen[it.ID]++
		if seen[it.ID] == 2 {
			issues = append(issues, Issue{
				Kind:        DuplicateID,
				ItemID:      it.ID,
				Description: "id is used by more than one item",
			})
		}

		if it.CreatedAt > now {
			issues = append(issues, Issue{
				Kind:        FutureCreatedAt,
				ItemID:      it.ID,
				Description: "created in the future",
				Current:     it.CreatedAt,
				Expected:    now,
			})
		}
		if it.UpdatedAt < it.CreatedAt {
			issues = append(issues, Issue{
				Kind:        UpdatedBeforeCreated,
				ItemID:      it.ID,
				Description: "updated before it was created",
				Current:     it.UpdatedAt,
				Expected:    it.CreatedAt,
			})
		}
		if it.DeletedAt != nil && *it.DeletedAt < it.CreatedAt {
			issues = append(issues, Issue{
				Kind:        DeletedBeforeCreated,
				ItemID:      it.ID,
				Description: "deleted before it was created",
				Current:     *it.DeletedAt,
				Expected:    it.CreatedAt,
			})
		}
		if strings.TrimSpace(it.DisplayName) == "" {
			issues = append(issues, Issue{
				Kind:        BlankName,
				ItemID:      it.ID,
				Description: "display name is blank",
				Current:     it.DisplayName,
				Expected:    placeholder(it),
			})
		}

		if it.IsContainer {
			if len(it.PageOrder) > 0 {
				issues = append(issues, Issue{
					Kind:        ContainerHasPages,
					ItemID:      it.ID,
					Description: fmt.Sprintf("folder lists %d pages", len(it.PageOrder)),
					Current:     len(it.PageOrder),
					Expected:    0,
				})
			}
			continue
		}

		if len(it.PageOrder) == 0 {
			issues = append(issues, Issue{
				Kind:        DocumentWithoutPages,
				ItemID:      it.ID,
				Description: "document has no pages",
			})
		}
		for _, dup := range duplicates(it.PageOrder) {
			issues = append(issues, Issue{
				Kind:        DuplicatePage,
				ItemID:      it.ID,
				Description: fmt.Sprintf("page %s is listed more than once", dup),
				Current:     dup,
			})
		}
	}
	return issues
}

// Repair returns a corrected copy of items: blank names get a placeholder,
// updatedAt is raised to createdAt where it is earlier, repeated page
// entries keep their first occurrence, and of several items sharing an id
// the first in iteration order is kept. The input is not modified.
func Repair(items []models.Item) []models.Item {
	out := make([]models.Item, 0, len(items))
	seen := make(map[string]bool, len(items))

	for _, orig := range items {
		if seen[orig.ID] {
			continue
		}
		seen[orig.ID] = true

		it := orig.Clone()
		if strings.TrimSpace(it.DisplayName) == "" {
			it.DisplayName = placeholder(it)
		}
		if it.UpdatedAt < it.CreatedAt {
			it.UpdatedAt = it.CreatedAt
		}
		if !it.IsContainer {
			it.PageOrder = distinct(it.PageOrder)
		}
		out = append(out, it)
	}
	return out
}

// Changed reports whether repair altered an item, comparing the fields
// Repair touches.
func Changed(before, after models.Item) bool {
	if before.DisplayName != after.DisplayName || before.UpdatedAt != after.UpdatedAt {
		return true
	}
	if len(before.PageOrder) != len(after.PageOrder) {
		return true
	}
	for i := range before.PageOrder {
		if before.PageOrder[i] != after.PageOrder[i] {
			return true
		}
	}
	return false
}

// CountByKind tallies issues.
func CountByKind(issues []Issue) map[IssueKind]int {
	counts := make(map[IssueKind]int)
	for _, i := range issues {
		counts[i.Kind]++
	}
	return counts
}

func placeholder(it models.Item) string {
	if it.IsContainer {
		return UntitledFolder
	}
	return UntitledDocument
}

func duplicates(names []string) []string {
	seen := make(map[string]int, len(names))
	var dups []string
	for _, n := range names {
		seen[n]++
		if seen[n] == 2 {
			dups = append(dups, n)
		}
	}
	return dups
}

func distinct(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
