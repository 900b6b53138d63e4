package service

import (
	"cmp"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/mattsolo1/grove-scanner/pkg/models"
)

// ListAll returns every readable item, deleted ones included. Unreadable
// items are skipped, not reported.
func (s *Service) ListAll() ([]models.Item, error) {
	items, err := s.store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// ListActive returns the items that are not soft-deleted.
func (s *Service) ListActive() ([]models.Item, error) {
	return s.ListItems()
}

type listOptions struct {
	sort           models.SortOption
	documents      bool
	folders        bool
	includeDeleted bool
	onlyDeleted    bool
	parentID       *string
}

// ListOption configures ListItems.
type ListOption func(*listOptions)

// WithSort orders the result.
func WithSort(opt models.SortOption) ListOption {
	return func(o *listOptions) { o.sort = opt }
}

// OnlyDocuments drops folders.
func OnlyDocuments() ListOption {
	return func(o *listOptions) { o.documents = true }
}

// OnlyFolders drops documents.
func OnlyFolders() ListOption {
	return func(o *listOptions) { o.folders = true }
}

// IncludeDeleted keeps soft-deleted items.
func IncludeDeleted() ListOption {
	return func(o *listOptions) { o.includeDeleted = true }
}

// OnlyDeleted keeps soft-deleted items and nothing else.
func OnlyDeleted() ListOption {
	return func(o *listOptions) { o.onlyDeleted = true }
}

// InParent keeps items labeled with the given folder. An empty id keeps
// items with no folder.
func InParent(folderID string) ListOption {
	return func(o *listOptions) { o.parentID = &folderID }
}

func (o *listOptions) keep(it models.Item) bool {
	switch {
	case o.onlyDeleted && !it.IsDeleted():
		return false
	case !o.onlyDeleted && !o.includeDeleted && it.IsDeleted():
		return false
	case o.documents && it.IsContainer:
		return false
	case o.folders && !it.IsContainer:
		return false
	}
	if o.parentID != nil {
		if it.ParentID == nil {
			return *o.parentID == ""
		}
		return *it.ParentID == *o.parentID
	}
	return true
}

// ListItems lists items, active only by default, filtered and sorted by
// the given options. Without WithSort the store's directory order is kept.
func (s *Service) ListItems(opts ...ListOption) ([]models.Item, error) {
	o := &listOptions{}
	for _, opt := range opts {
		opt(o)
	}

	all, err := s.ListAll()
	if err != nil {
		return nil, err
	}
	items := make([]models.Item, 0, len(all))
	for _, it := range all {
		if o.keep(it) {
			items = append(items, it)
		}
	}
	if o.sort == "" {
		return items, nil
	}
	return s.Sorted(items, o.sort)
}

// Documents lists active documents.
func (s *Service) Documents() ([]models.Item, error) {
	return s.ListItems(OnlyDocuments())
}

// Folders lists active folders.
func (s *Service) Folders() ([]models.Item, error) {
	return s.ListItems(OnlyFolders())
}

// Sorted returns items ordered by opt. Equal keys are ordered by id, so the
// result is the same on every call. Sorting by size reads each item's
// directory size; an item whose size cannot be read sorts as empty.
func (s *Service) Sorted(items []models.Item, opt models.SortOption) ([]models.Item, error) {
	var compare func(a, b models.Item) int

	switch opt {
	case models.SortNameAsc, models.SortNameDesc:
		col := collate.New(language.Und, collate.IgnoreCase)
		compare = func(a, b models.Item) int {
			return col.CompareString(a.DisplayName, b.DisplayName)
		}
	case models.SortDateAsc, models.SortDateDesc:
		compare = func(a, b models.Item) int {
			return cmp.Compare(a.CreatedAt, b.CreatedAt)
		}
	case models.SortSizeAsc, models.SortSizeDesc:
		sizes := make(map[string]int64, len(items))
		for _, it := range items {
			size, err := s.store.DirectorySize(it.ID)
			if err != nil {
				s.logger.WithError(err).WithField("id", it.ID).Debug("Cannot size item")
			}
			sizes[it.ID] = size
		}
		compare = func(a, b models.Item) int {
			return cmp.Compare(sizes[a.ID], sizes[b.ID])
		}
	default:
		return nil, fmt.Errorf("unknown sort option %q", opt)
	}

	desc := opt.Descending()
	out := make([]models.Item, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		c := compare(out[i], out[j])
		if desc {
			c = -c
		}
		if c == 0 {
			return out[i].ID < out[j].ID
		}
		return c < 0
	})
	return out, nil
}

// Search returns active items whose display name contains query, ignoring
// case. A blank query matches nothing.
func (s *Service) Search(query string) ([]models.Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Item{}, nil
	}
	fold := cases.Fold()
	needle := fold.String(query)

	items, err := s.ListActive()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	matches := []models.Item{}
	for _, it := range items {
		if strings.Contains(fold.String(it.DisplayName), needle) {
			matches = append(matches, it)
		}
	}
	return matches, nil
}
