package pages

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mattsolo1/grove-scanner/pkg/models"
	"github.com/mattsolo1/grove-scanner/pkg/naming"
	"github.com/mattsolo1/grove-scanner/pkg/scanerr"
)

// OrderError describes a rejected reorder. Current is the item's page order,
// untouched.
type OrderError struct {
	Current   []string
	Requested []string
	Reason    string
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("%s (have %d pages, got %d)", e.Reason, len(e.Current), len(e.Requested))
}

// IsPermutation reports whether b holds exactly the elements of a, with the
// same multiplicities.
func IsPermutation(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, s := range a {
		counts[s]++
	}
	for _, s := range b {
		counts[s]--
		if counts[s] < 0 {
			return false
		}
	}
	return true
}

func hasDuplicates(names []string) bool {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			return true
		}
		seen[n] = struct{}{}
	}
	return false
}

// move is one rename performed by Reorder, kept for rollback.
type move struct{ from, to string }

// Reorder renames the pages of a document so that newOrder[i] becomes
// page_<i+1>.<ext>, and returns a copy of item with the new page order.
// UpdatedAt is left to the caller.
//
// All pages are first moved into a scratch directory under temp/ and then
// moved back under their final names, so swaps never clash. On failure every
// completed move is undone in reverse before the error is returned. The
// scratch directory is removed in all cases.
//
// A newOrder that is not a permutation of the page order is rejected before
// anything on disk changes, and the unchanged item is returned with the
// error.
func (m *Manager) Reorder(item models.Item, newOrder []string) (models.Item, error) {
	const op = "reorder pages"
	unchanged := item.Clone()

	if item.IsContainer {
		return unchanged, scanerr.Errorf(scanerr.KindInvalidOperation, op, "%s is a folder", item.ID)
	}
	if hasDuplicates(item.PageOrder) {
		return unchanged, scanerr.E(scanerr.KindInvalidArgument, op, &OrderError{
			Current: unchanged.PageOrder, Requested: newOrder, Reason: "page order has duplicate entries",
		})
	}
	if !IsPermutation(item.PageOrder, newOrder) {
		return unchanged, scanerr.E(scanerr.KindInvalidArgument, op, &OrderError{
			Current: unchanged.PageOrder, Requested: newOrder, Reason: "new order is not a permutation of the pages",
		})
	}

	dir, err := m.store.ItemDir(item.ID)
	if err != nil {
		return unchanged, err
	}
	for _, name := range item.PageOrder {
		if err := checkName(op, name); err != nil {
			return unchanged, err
		}
		if _, err := m.fs.Stat(filepath.Join(dir, name)); err != nil {
			return unchanged, scanerr.FromFS(op, fmt.Errorf("page %s: %w", name, err))
		}
	}

	scratch := filepath.Join(m.store.TempDir(), "reorder-"+uuid.NewString())
	if err := m.fs.MkdirAll(scratch, 0o755); err != nil {
		return unchanged, scanerr.FromFS(op, err)
	}
	defer func() {
		if err := m.fs.RemoveAll(scratch); err != nil {
			m.logger.WithError(err).WithField("path", scratch).Warn("Failed to remove reorder scratch directory")
		}
	}()

	var done []move
	rollback := func(cause error) error {
		for i := len(done) - 1; i >= 0; i-- {
			mv := done[i]
			if err := m.fs.Rename(mv.to, mv.from); err != nil {
				m.logger.WithError(err).WithFields(logrus.Fields{"id": item.ID, "file": filepath.Base(mv.from)}).Error("Reorder rollback failed")
				cause = errors.Join(cause, fmt.Errorf("restore %s: %w", filepath.Base(mv.from), err))
			}
		}
		return scanerr.FromFS(op, cause)
	}
	rename := func(from, to string) error {
		if err := m.fs.Rename(from, to); err != nil {
			return err
		}
		done = append(done, move{from: from, to: to})
		return nil
	}
	// Thumbnails ride along when present.
	renameThumb := func(fromDir, fromName, toDir, toName string) error {
		from := filepath.Join(fromDir, naming.ThumbnailName(fromName))
		if _, err := m.fs.Stat(from); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return rename(from, filepath.Join(toDir, naming.ThumbnailName(toName)))
	}

	for _, name := range item.PageOrder {
		if err := rename(filepath.Join(dir, name), filepath.Join(scratch, name)); err != nil {
			return unchanged, rollback(err)
		}
		if err := renameThumb(dir, name, scratch, name); err != nil {
			return unchanged, rollback(err)
		}
	}

	final := make([]string, len(newOrder))
	for i, name := range newOrder {
		final[i] = naming.PageFilename(i+1, naming.Extension(name))
		if err := rename(filepath.Join(scratch, name), filepath.Join(dir, final[i])); err != nil {
			return unchanged, rollback(err)
		}
		if err := renameThumb(scratch, name, dir, final[i]); err != nil {
			return unchanged, rollback(err)
		}
	}

	updated := item.Clone()
	updated.PageOrder = final
	m.logger.WithFields(logrus.Fields{"id": item.ID, "pages": len(final)}).Debug("Reordered pages")
	return updated, nil
}
