package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Timestamp is a point in time at millisecond precision (Unix milliseconds).
type Timestamp int64

// FromTime truncates t to a millisecond Timestamp.
func FromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

// Time converts the timestamp back into a UTC time.Time.
func (ts Timestamp) Time() time.Time {
	return time.UnixMilli(int64(ts)).UTC()
}

// Ptr returns a pointer to a copy of ts, for optional fields.
func (ts Timestamp) Ptr() *Timestamp {
	return &ts
}

// Item is a scanned document or a folder.
//
// A document (IsContainer == false) owns an ordered list of page files; a
// folder owns none. CreatedAt seeds the item's directory name and never
// changes after creation.
type Item struct {
	ID          string     `json:"id" yaml:"id"`
	DisplayName string     `json:"displayName" yaml:"displayName"`
	IsContainer bool       `json:"isContainer" yaml:"isContainer"`
	PageOrder   []string   `json:"pageOrder" yaml:"pageOrder"`
	Locked      bool       `json:"locked" yaml:"locked"`
	CreatedAt   Timestamp  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   Timestamp  `json:"updatedAt" yaml:"updatedAt"`
	DeletedAt   *Timestamp `json:"deletedAt" yaml:"deletedAt"`

	// ParentID is reserved for folder nesting. Folders are flat labels
	// today and nothing sets it.
	ParentID *string `json:"parentId" yaml:"parentId"`
}

// NewDocument returns an empty document created at now.
func NewDocument(id, displayName string, now Timestamp) Item {
	return Item{
		ID:          id,
		DisplayName: displayName,
		PageOrder:   []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewFolder returns a folder created at now.
func NewFolder(id, displayName string, now Timestamp) Item {
	return Item{
		ID:          id,
		DisplayName: displayName,
		IsContainer: true,
		PageOrder:   []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsDocument reports whether the item holds pages.
func (it Item) IsDocument() bool { return !it.IsContainer }

// IsDeleted reports whether the item is soft-deleted.
func (it Item) IsDeleted() bool { return it.DeletedAt != nil }

// PageCount is the number of pages of a document, zero for folders.
func (it Item) PageCount() int {
	if it.IsContainer {
		return 0
	}
	return len(it.PageOrder)
}

// HasPage reports whether filename is part of the page order.
func (it Item) HasPage(filename string) bool {
	return slices.Contains(it.PageOrder, filename)
}

// Kind is "folder" or "document".
func (it Item) Kind() string {
	if it.IsContainer {
		return "folder"
	}
	return "document"
}

// Clone returns a deep copy so callers can mutate slices and pointers freely.
func (it Item) Clone() Item {
	c := it
	if it.PageOrder != nil {
		c.PageOrder = slices.Clone(it.PageOrder)
	}
	if it.DeletedAt != nil {
		d := *it.DeletedAt
		c.DeletedAt = &d
	}
	if it.ParentID != nil {
		p := *it.ParentID
		c.ParentID = &p
	}
	return c
}

// SortOption selects the ordering of a listing.
type SortOption string

const (
	SortNameAsc  SortOption = "name_asc"
	SortNameDesc SortOption = "name_desc"
	SortDateAsc  SortOption = "date_asc"
	SortDateDesc SortOption = "date_desc"
	SortSizeAsc  SortOption = "size_asc"
	SortSizeDesc SortOption = "size_desc"
)

// SortOptions lists every valid option, in display order.
var SortOptions = []SortOption{SortNameAsc, SortNameDesc, SortDateAsc, SortDateDesc, SortSizeAsc, SortSizeDesc}

// ParseSortOption accepts "name_asc", "NAME-ASC", "name" (ascending) and similar.
func ParseSortOption(s string) (SortOption, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	switch norm {
	case "name":
		return SortNameAsc, nil
	case "date", "created":
		return SortDateDesc, nil
	case "size":
		return SortSizeDesc, nil
	}
	for _, opt := range SortOptions {
		if string(opt) == norm {
			return opt, nil
		}
	}
	return "", fmt.Errorf("unknown sort option %q", s)
}

// Descending reports whether the option sorts high to low.
func (o SortOption) Descending() bool {
	return strings.HasSuffix(string(o), "_desc")
}

// Statistics aggregates the active collection.
type Statistics struct {
	TotalItems     int   `json:"totalItems"`
	TotalDocuments int   `json:"totalDocuments"`
	TotalFolders   int   `json:"totalFolders"`
	TotalPages     int   `json:"totalPages"`
	TotalBytes     int64 `json:"totalBytes"`
	CacheBytes     int64 `json:"cacheBytes"`
}

// StorageStats describes the storage root on disk.
type StorageStats struct {
	ItemCount  int    `json:"itemCount"`
	TotalBytes int64  `json:"totalBytes"`
	FreeBytes  int64  `json:"freeBytes"`
	UsedBytes  int64  `json:"usedBytes"`
	Root       string `json:"root"`
}

// PageReport is the result of checking that every page in an item's order
// has a file on disk.
type PageReport struct {
	ItemID  string   `json:"itemId"`
	Missing []string `json:"missing"`
}

// Valid reports whether no page file is missing.
func (r PageReport) Valid() bool { return len(r.Missing) == 0 }
