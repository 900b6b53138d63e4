package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mattsolo1/grove-scanner/pkg/models"
	"github.com/mattsolo1/grove-scanner/pkg/naming"
	"github.com/mattsolo1/grove-scanner/pkg/scanerr"
)

type createOptions struct {
	parentID string
}

// CreateOption modifies item creation.
type CreateOption func(*createOptions)

// InFolder labels the new item with a folder. Folders stay flat on disk;
// this only records parentId.
func InFolder(folderID string) CreateOption {
	return func(o *createOptions) {
		o.parentID = folderID
	}
}

// CreateDocument creates and persists an empty document.
func (s *Service) CreateDocument(name string, options ...CreateOption) (models.Item, error) {
	return s.create(models.NewDocument(naming.NewID(), name, s.timestamp()), options)
}

// CreateFolder creates and persists a folder.
func (s *Service) CreateFolder(name string, options ...CreateOption) (models.Item, error) {
	return s.create(models.NewFolder(naming.NewID(), name, s.timestamp()), options)
}

func (s *Service) create(item models.Item, options []CreateOption) (models.Item, error) {
	opts := &createOptions{}
	for _, opt := range options {
		opt(opts)
	}

	if opts.parentID != "" {
		parent, err := s.store.LoadMetadata(opts.parentID)
		if err != nil {
			return models.Item{}, fmt.Errorf("load folder: %w", err)
		}
		if !parent.IsContainer {
			return models.Item{}, scanerr.Errorf(scanerr.KindInvalidArgument, "create item", "%s is not a folder", opts.parentID)
		}
		item.ParentID = &parent.ID
	}

	unlock := s.locks.Lock(item.ID)
	defer unlock()

	if _, err := s.store.CreateDirectory(item); err != nil {
		return models.Item{}, fmt.Errorf("create %s: %w", item.Kind(), err)
	}
	if err := s.store.SaveMetadata(item); err != nil {
		if _, derr := s.store.DeleteDirectory(item.ID); derr != nil {
			s.logger.WithError(derr).WithField("id", item.ID).Warn("Failed to remove directory of unsaved item")
		}
		return models.Item{}, fmt.Errorf("create %s: %w", item.Kind(), err)
	}

	s.logger.WithFields(logrus.Fields{"id": item.ID, "kind": item.Kind()}).Debug("Created item")
	return item, nil
}

// GetItem loads one item, deleted or not.
func (s *Service) GetItem(id string) (models.Item, error) {
	item, err := s.store.LoadMetadata(id)
	if err != nil {
		return models.Item{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// mutate runs fn on the item under its lock, bumps UpdatedAt and saves. fn
// may return errUnchanged to skip the save.
func (s *Service) mutate(op, id string, fn func(*models.Item) error) (models.Item, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	item, err := s.store.LoadMetadata(id)
	if err != nil {
		return models.Item{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := fn(&item); err != nil {
		if errors.Is(err, errUnchanged) {
			return item, nil
		}
		return item, fmt.Errorf("%s: %w", op, err)
	}
	s.touch(&item)
	if err := s.store.SaveMetadata(item); err != nil {
		return models.Item{}, fmt.Errorf("%s: %w", op, err)
	}
	return item, nil
}

var errUnchanged = errors.New("unchanged")

// UpdateItem replaces an item's mutable metadata (name, lock flag, page
// order, deletion and parent) and bumps UpdatedAt. Identity, kind and
// creation time cannot change.
//
// Page order changes here are metadata only; use the page operations to
// change files.
func (s *Service) UpdateItem(updated models.Item) (models.Item, error) {
	return s.mutate("update item", updated.ID, func(item *models.Item) error {
		switch {
		case updated.IsContainer != item.IsContainer:
			return scanerr.Errorf(scanerr.KindInvalidArgument, "update item", "cannot change a %s into a %s", item.Kind(), updated.Kind())
		case updated.CreatedAt != item.CreatedAt:
			return scanerr.Errorf(scanerr.KindInvalidArgument, "update item", "creation time is immutable")
		case updated.IsContainer && len(updated.PageOrder) > 0:
			return scanerr.Errorf(scanerr.KindInvalidOperation, "update item", "folders have no pages")
		}
		next := updated.Clone()
		next.UpdatedAt = item.UpdatedAt
		if next.PageOrder == nil {
			next.PageOrder = []string{}
		}
		*item = next
		return nil
	})
}

// Rename changes the display name.
func (s *Service) Rename(id, name string) (models.Item, error) {
	if strings.TrimSpace(name) == "" {
		return models.Item{}, scanerr.Errorf(scanerr.KindInvalidArgument, "rename", "name is blank")
	}
	return s.mutate("rename", id, func(item *models.Item) error {
		item.DisplayName = name
		return nil
	})
}

// SetLocked sets the advisory lock flag.
func (s *Service) SetLocked(id string, locked bool) (models.Item, error) {
	return s.mutate("set lock", id, func(item *models.Item) error {
		if item.Locked == locked {
			return errUnchanged
		}
		item.Locked = locked
		return nil
	})
}

// ToggleLock flips the advisory lock flag.
func (s *Service) ToggleLock(id string) (models.Item, error) {
	return s.mutate("toggle lock", id, func(item *models.Item) error {
		item.Locked = !item.Locked
		return nil
	})
}

// SoftDelete marks an item deleted. Deleting a deleted item changes nothing.
func (s *Service) SoftDelete(id string) (models.Item, error) {
	return s.mutate("delete item", id, func(item *models.Item) error {
		if item.IsDeleted() {
			return errUnchanged
		}
		ts := s.timestamp()
		if ts < item.CreatedAt {
			ts = item.CreatedAt
		}
		item.DeletedAt = ts.Ptr()
		return nil
	})
}

// Restore clears the deletion mark. Restoring an active item changes
// nothing.
func (s *Service) Restore(id string) (models.Item, error) {
	return s.mutate("restore item", id, func(item *models.Item) error {
		if !item.IsDeleted() {
			return errUnchanged
		}
		item.DeletedAt = nil
		return nil
	})
}

// PermanentlyDelete removes the item's directory and every file in it.
func (s *Service) PermanentlyDelete(id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	deleted, err := s.store.DeleteDirectory(id)
	if err != nil {
		return fmt.Errorf("permanently delete: %w", err)
	}
	if !deleted {
		return scanerr.Errorf(scanerr.KindNotFound, "permanently delete", "no item with id %s", id)
	}
	s.forgetImages(id)
	s.logger.WithField("id", id).Info("Permanently deleted item")
	return nil
}

// BatchError collects the failures of a batch operation. Successful items
// are still applied.
type BatchError struct {
	Op     string
	Total  int
	Failed map[string]error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("failed to %s %d items out of %d", e.Op, len(e.Failed), e.Total)
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}

// DeleteItems soft-deletes (or, with permanent, removes) each id and
// returns the ids that succeeded. Failures are reported together in a
// *BatchError.
func (s *Service) DeleteItems(ids []string, permanent bool) ([]string, error) {
	var done []string
	failed := make(map[string]error)
	for _, id := range ids {
		var err error
		if permanent {
			err = s.PermanentlyDelete(id)
		} else {
			_, err = s.SoftDelete(id)
		}
		if err != nil {
			failed[id] = err
			continue
		}
		done = append(done, id)
	}
	if len(failed) > 0 {
		return done, &BatchError{Op: "delete", Total: len(ids), Failed: failed}
	}
	return done, nil
}
