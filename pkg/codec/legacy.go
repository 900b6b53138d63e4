package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mattsolo1/grove-scanner/pkg/models"
)

// Key aliases understood by MigrateLegacy, current key first. The first group
// of aliases is the first-generation desc file (uuid, bDir, order, bLock,
// createdDate...), the second its older export shape (isDirectory, pages,
// isLocked).
var legacyKeys = map[string][]string{
	"id":          {"id", "uuid"},
	"displayName": {"displayName", "name", "title"},
	"isContainer": {"isContainer", "bDir", "isDirectory"},
	"pageOrder":   {"pageOrder", "order", "pages"},
	"locked":      {"locked", "bLock", "isLocked"},
	"createdAt":   {"createdAt", "createdDate"},
	"updatedAt":   {"updatedAt", "updatedDate"},
	"deletedAt":   {"deletedAt", "deletedDate"},
	"parentId":    {"parentId"},
}

// markers are keys that only appear in legacy shapes.
var markers = []string{"uuid", "bDir", "order", "bLock", "createdDate", "updatedDate", "deletedDate", "relativePath", "isDirectory", "pages", "isLocked"}

// IsLegacy reports whether data is a JSON object in one of the legacy shapes
// and not in the current one. Unparsable input is not legacy.
func IsLegacy(data []byte) bool {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return false
	}
	_, hasID := raw["id"]
	_, hasKind := raw["isContainer"]
	if hasID && hasKind {
		return false
	}
	for _, k := range markers {
		if _, ok := raw[k]; ok {
			return true
		}
	}
	return false
}

// MigrateLegacy rewrites a legacy metadata document in the current shape.
// Current-shape input is validated and re-encoded unchanged.
//
// Every recognized value is carried over; a value of the wrong type or a
// missing id or creation date fails the migration instead of being dropped.
// relativePath is not carried: it is derivable from the item's directory.
func MigrateLegacy(data []byte) ([]byte, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Reason: MigrationFailed, Err: err}
	}

	var (
		item models.Item
		err  error
	)
	if item.ID, err = pick[string](raw, "id"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(item.ID) == "" {
		return nil, &Error{Reason: MigrationFailed, Field: "id", Err: errors.New("no id")}
	}
	if item.DisplayName, err = pick[string](raw, "displayName"); err != nil {
		return nil, err
	}
	if item.IsContainer, err = pick[bool](raw, "isContainer"); err != nil {
		return nil, err
	}
	if item.PageOrder, err = pick[[]string](raw, "pageOrder"); err != nil {
		return nil, err
	}
	if item.PageOrder == nil {
		item.PageOrder = []string{}
	}
	if item.Locked, err = pick[bool](raw, "locked"); err != nil {
		return nil, err
	}

	created, err := pick[*int64](raw, "createdAt")
	if err != nil {
		return nil, err
	}
	updated, err := pick[*int64](raw, "updatedAt")
	if err != nil {
		return nil, err
	}
	switch {
	case created != nil:
		item.CreatedAt = models.Timestamp(*created)
	case updated != nil:
		item.CreatedAt = models.Timestamp(*updated)
	default:
		return nil, &Error{Reason: MigrationFailed, Field: "createdAt", Err: errors.New("no creation date")}
	}
	item.UpdatedAt = item.CreatedAt
	if updated != nil {
		item.UpdatedAt = models.Timestamp(*updated)
	}

	deleted, err := pick[*int64](raw, "deletedAt")
	if err != nil {
		return nil, err
	}
	if deleted != nil {
		item.DeletedAt = models.Timestamp(*deleted).Ptr()
	}
	if item.ParentID, err = pick[*string](raw, "parentId"); err != nil {
		return nil, err
	}

	// A legacy folder that lists pages cannot be represented. Keep the data
	// by failing rather than discarding the list.
	if item.IsContainer && len(item.PageOrder) > 0 {
		return nil, &Error{Reason: MigrationFailed, Field: "pageOrder", Err: fmt.Errorf("folder lists %d pages", len(item.PageOrder))}
	}

	out, err := Encode(item)
	if err != nil {
		return nil, &Error{Reason: MigrationFailed, Err: err}
	}
	if _, err := Decode(out); err != nil {
		// Flatten so the result does not also match ErrCorrupted.
		return nil, &Error{Reason: MigrationFailed, Err: errors.New(err.Error())}
	}
	return out, nil
}

// pick decodes the first present alias of key into T. Absent keys yield the
// zero value.
func pick[T any](raw map[string]json.RawMessage, key string) (T, error) {
	var v T
	for _, alias := range legacyKeys[key] {
		msg, ok := raw[alias]
		if !ok {
			continue
		}
		if err := json.Unmarshal(msg, &v); err != nil {
			return v, &Error{Reason: MigrationFailed, Field: alias, Err: err}
		}
		return v, nil
	}
	return v, nil
}
