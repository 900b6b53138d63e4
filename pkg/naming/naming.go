// Package naming derives item directory names and page filenames.
// Everything here is pure apart from the random generators.
package naming

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mattsolo1/grove-scanner/pkg/models"
)

const (
	// DirectoryLayout is the UTC, millisecond, lexically sortable layout of
	// item directory names.
	DirectoryLayout = "2006-01-02_15_04_05.000"

	// ThumbnailPrefix is prepended to a page filename to name its thumbnail.
	ThumbnailPrefix = "thumb_"

	// DescFileName is the metadata file inside every item directory.
	DescFileName = "desc.json"

	pagePrefix = "page_"
)

// SupportedFormats are the page image extensions accepted on import.
var SupportedFormats = []string{"jpg", "jpeg", "png", "webp"}

var directoryPattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}_\d{2}_\d{2}_\d{2}\.\d{3})(?:_(\d+))?$`)

// NewID returns a random (version 4) UUID string.
func NewID() string {
	return uuid.NewString()
}

// DirectoryName is the deterministic directory name for an item created at
// createdAt, e.g. 2025-01-11_10_00_00.123.
func DirectoryName(createdAt models.Timestamp) string {
	return createdAt.Time().Format(DirectoryLayout)
}

// DirectoryCandidate returns the n-th name to try for a directory: the base
// name itself for n == 0, then base_1, base_2, ...
func DirectoryCandidate(base string, n int) string {
	if n <= 0 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, n)
}

// ParseDirectoryName reverses DirectoryName/DirectoryCandidate. ok is false
// for names that do not follow the layout (temp, backup, stray files).
func ParseDirectoryName(name string) (createdAt models.Timestamp, suffix int, ok bool) {
	m := directoryPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	t, err := time.ParseInLocation(DirectoryLayout, m[1], time.UTC)
	if err != nil {
		return 0, 0, false
	}
	if m[2] != "" {
		suffix, err = strconv.Atoi(m[2])
		if err != nil {
			return 0, 0, false
		}
	}
	return models.FromTime(t), suffix, true
}

// PageFilename is the sequential name of the page at 1-based position index,
// e.g. page_007.jpg.
func PageFilename(index int, ext string) string {
	return fmt.Sprintf("%s%03d.%s", pagePrefix, index, normalizeExt(ext))
}

// RandomPageFilename is a collision-resistant page name for ad-hoc inserts.
func RandomPageFilename(ext string) string {
	return fmt.Sprintf("%s%s.%s", pagePrefix, uuid.NewString()[:8], normalizeExt(ext))
}

// ThumbnailName is the thumbnail filename for a page.
func ThumbnailName(pageFilename string) string {
	return ThumbnailPrefix + pageFilename
}

// IsThumbnail reports whether name follows the thumbnail convention.
func IsThumbnail(name string) bool {
	return strings.HasPrefix(name, ThumbnailPrefix)
}

// Extension is the lower-cased extension of filename without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// IsSupportedFormat reports whether filename has an importable extension.
func IsSupportedFormat(filename string) bool {
	ext := Extension(filename)
	for _, f := range SupportedFormats {
		if f == ext {
			return true
		}
	}
	return false
}

// ValidatePageFilename rejects names that would escape the item directory or
// collide with the metadata file or the thumbnail convention.
func ValidatePageFilename(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("page filename is empty")
	case name == "." || name == "..":
		return fmt.Errorf("page filename %q is reserved", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("page filename %q contains a path separator", name)
	case name == DescFileName:
		return fmt.Errorf("page filename %q is reserved for metadata", name)
	case IsThumbnail(name):
		return fmt.Errorf("page filename %q uses the thumbnail prefix", name)
	}
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return "jpg"
	}
	return ext
}
