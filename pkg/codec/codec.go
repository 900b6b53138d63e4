// Package codec reads and writes the desc.json metadata file of an item.
//
// Encode always writes every known key, including defaults and nulls, so that
// older files can be diffed against current output. Decode ignores unknown
// keys and fills documented defaults for missing optional ones.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mattsolo1/grove-scanner/pkg/models"
	"github.com/mattsolo1/grove-scanner/pkg/scanerr"
)

// Reason classifies a codec failure.
type Reason int

const (
	Malformed Reason = iota + 1
	InvalidStructure
	MigrationFailed
)

func (r Reason) String() string {
	switch r {
	case Malformed:
		return "malformed"
	case InvalidStructure:
		return "invalid structure"
	case MigrationFailed:
		return "migration failed"
	default:
		return "unknown"
	}
}

// Error is returned by Decode and MigrateLegacy. Field names the offending
// key when one is known.
type Error struct {
	Reason Reason
	Field  string
	Err    error
}

func (e *Error) Error() string {
	msg := "metadata " + e.Reason.String()
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %q)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is maps codec reasons onto the shared error kinds: a file that cannot be
// decoded is Corrupted, a failed migration is MigrationFailed.
func (e *Error) Is(target error) bool {
	switch e.Reason {
	case Malformed, InvalidStructure:
		return target == scanerr.ErrCorrupted
	case MigrationFailed:
		return target == scanerr.ErrMigrationFailed
	}
	return false
}

func structureErr(field, format string, args ...any) error {
	return &Error{Reason: InvalidStructure, Field: field, Err: fmt.Errorf(format, args...)}
}

// document is the on-disk shape. Field order here is the key order in the
// written file.
type document struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	IsContainer bool     `json:"isContainer"`
	PageOrder   []string `json:"pageOrder"`
	Locked      bool     `json:"locked"`
	CreatedAt   int64    `json:"createdAt"`
	UpdatedAt   int64    `json:"updatedAt"`
	DeletedAt   *int64   `json:"deletedAt"`
	ParentID    *string  `json:"parentId"`
}

// incoming mirrors document with pointers so that absent keys can be told
// apart from zero values.
type incoming struct {
	ID          *string  `json:"id"`
	DisplayName *string  `json:"displayName"`
	IsContainer *bool    `json:"isContainer"`
	PageOrder   []string `json:"pageOrder"`
	Locked      *bool    `json:"locked"`
	CreatedAt   *int64   `json:"createdAt"`
	UpdatedAt   *int64   `json:"updatedAt"`
	DeletedAt   *int64   `json:"deletedAt"`
	ParentID    *string  `json:"parentId"`
}

// Encode serializes an item as indented JSON.
func Encode(item models.Item) ([]byte, error) {
	doc := document{
		ID:          item.ID,
		DisplayName: item.DisplayName,
		IsContainer: item.IsContainer,
		PageOrder:   item.PageOrder,
		Locked:      item.Locked,
		CreatedAt:   int64(item.CreatedAt),
		UpdatedAt:   int64(item.UpdatedAt),
		ParentID:    item.ParentID,
	}
	if doc.PageOrder == nil {
		doc.PageOrder = []string{}
	}
	if item.DeletedAt != nil {
		d := int64(*item.DeletedAt)
		doc.DeletedAt = &d
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses and validates a metadata file.
//
// Missing optional keys default to: pageOrder [], locked false, createdAt 0,
// updatedAt = createdAt, deletedAt and parentId null.
func Decode(data []byte) (models.Item, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return models.Item{}, &Error{Reason: Malformed, Err: errors.New("empty file")}
	}

	var in incoming
	if err := json.Unmarshal(data, &in); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return models.Item{}, &Error{Reason: InvalidStructure, Field: typeErr.Field, Err: err}
		}
		return models.Item{}, &Error{Reason: Malformed, Err: err}
	}

	switch {
	case in.ID == nil:
		return models.Item{}, structureErr("id", "required key missing")
	case strings.TrimSpace(*in.ID) == "":
		return models.Item{}, structureErr("id", "blank id")
	case in.DisplayName == nil:
		return models.Item{}, structureErr("displayName", "required key missing")
	case in.IsContainer == nil:
		return models.Item{}, structureErr("isContainer", "required key missing")
	case *in.IsContainer && len(in.PageOrder) > 0:
		return models.Item{}, structureErr("pageOrder", "folder lists %d pages", len(in.PageOrder))
	}

	item := models.Item{
		ID:          *in.ID,
		DisplayName: *in.DisplayName,
		IsContainer: *in.IsContainer,
		PageOrder:   in.PageOrder,
		ParentID:    in.ParentID,
	}
	if item.PageOrder == nil {
		item.PageOrder = []string{}
	}
	if in.Locked != nil {
		item.Locked = *in.Locked
	}
	if in.CreatedAt != nil {
		item.CreatedAt = models.Timestamp(*in.CreatedAt)
	}
	item.UpdatedAt = item.CreatedAt
	if in.UpdatedAt != nil {
		item.UpdatedAt = models.Timestamp(*in.UpdatedAt)
	}
	if in.DeletedAt != nil {
		item.DeletedAt = models.Timestamp(*in.DeletedAt).Ptr()
	}
	return item, nil
}
