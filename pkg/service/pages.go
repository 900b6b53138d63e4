package service

import (
	"errors"
	"fmt"
	"image"
	"net/url"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/mattsolo1/grove-scanner/pkg/imaging"
	"github.com/mattsolo1/grove-scanner/pkg/models"
	"github.com/mattsolo1/grove-scanner/pkg/naming"
	"github.com/mattsolo1/grove-scanner/pkg/pages"
	"github.com/mattsolo1/grove-scanner/pkg/scanerr"
)

func loadDocument(s *Service, op, id string) (models.Item, error) {
	item, err := s.store.LoadMetadata(id)
	if err != nil {
		return models.Item{}, fmt.Errorf("%s: %w", op, err)
	}
	if item.IsContainer {
		return models.Item{}, scanerr.Errorf(scanerr.KindInvalidOperation, op, "%s is a folder", id)
	}
	return item, nil
}

// AddPage imports src as a new last page of a document. An empty filename
// gets a random page name with src's extension (jpg when it has none).
func (s *Service) AddPage(id string, src pages.Source, filename string) (models.Item, error) {
	const op = "add page"
	unlock := s.locks.Lock(id)
	defer unlock()

	item, err := loadDocument(s, op, id)
	if err != nil {
		return models.Item{}, err
	}
	if filename == "" {
		filename = naming.RandomPageFilename(outputExt(src))
	}
	if item.HasPage(filename) {
		return models.Item{}, scanerr.Errorf(scanerr.KindInvalidArgument, op, "%s already has a page %s", id, filename)
	}

	if _, err := s.pages.ImportPage(src, id, filename); err != nil {
		return models.Item{}, fmt.Errorf("%s: %w", op, err)
	}

	item.PageOrder = append(item.PageOrder, filename)
	s.touch(&item)
	if err := s.store.SaveMetadata(item); err != nil {
		if _, derr := s.pages.DeletePage(id, filename); derr != nil {
			s.logger.WithError(derr).WithFields(logrus.Fields{"id": id, "page": filename}).Warn("Failed to remove orphaned page")
		}
		return models.Item{}, fmt.Errorf("%s: %w", op, err)
	}
	return item, nil
}

// RemovePage drops a page from a document's order and deletes its file. A
// file that is already gone is not an error.
func (s *Service) RemovePage(id, filename string) (models.Item, error) {
	const op = "remove page"
	unlock := s.locks.Lock(id)
	defer unlock()

	item, err := loadDocument(s, op, id)
	if err != nil {
		return models.Item{}, err
	}
	idx := slices.Index(item.PageOrder, filename)
	if idx < 0 {
		return models.Item{}, scanerr.Errorf(scanerr.KindNotFound, op, "%s has no page %s", id, filename)
	}

	existed, err := s.pages.DeletePage(id, filename)
	if err != nil {
		return models.Item{}, fmt.Errorf("%s: %w", op, err)
	}
	if !existed {
		s.logger.WithFields(logrus.Fields{"id": id, "page": filename}).Warn("Page file was already missing")
	}
	s.images.Remove(cacheKey(id, filename))
	s.images.Remove(cacheKey(id, naming.ThumbnailName(filename)))

	item.PageOrder = slices.Delete(item.PageOrder, idx, idx+1)
	s.touch(&item)
	if err := s.store.SaveMetadata(item); err != nil {
		return models.Item{}, fmt.Errorf("%s: %w", op, err)
	}
	return item, nil
}

// ReorderPages renames a document's pages so that they follow newOrder and
// saves the new order. If the files are renamed but the save fails, the
// error is returned and the files keep their new names.
func (s *Service) ReorderPages(id string, newOrder []string) (models.Item, error) {
	const op = "reorder pages"
	unlock := s.locks.Lock(id)
	defer unlock()

	item, err := s.store.LoadMetadata(id)
	if err != nil {
		return models.Item{}, fmt.Errorf("%s: %w", op, err)
	}
	reordered, err := s.pages.Reorder(item, newOrder)
	if err != nil {
		return reordered, err
	}
	s.forgetImages(id)

	s.touch(&reordered)
	if err := s.store.SaveMetadata(reordered); err != nil {
		return models.Item{}, fmt.Errorf("%s: %w", op, err)
	}
	return reordered, nil
}

// MovePage moves a page from one document to the end of another.
func (s *Service) MovePage(fromID, toID, filename string) (from, to models.Item, err error) {
	return s.transfer("move page", fromID, toID, filename, true)
}

// CopyPage copies a page from one document to the end of another.
func (s *Service) CopyPage(fromID, toID, filename string) (from, to models.Item, err error) {
	return s.transfer("copy page", fromID, toID, filename, false)
}

func (s *Service) transfer(op, fromID, toID, filename string, move bool) (models.Item, models.Item, error) {
	unlock := s.locks.Lock(fromID, toID)
	defer unlock()

	src, err := loadDocument(s, op, fromID)
	if err != nil {
		return models.Item{}, models.Item{}, err
	}
	dst, err := loadDocument(s, op, toID)
	if err != nil {
		return models.Item{}, models.Item{}, err
	}
	if !src.HasPage(filename) {
		return models.Item{}, models.Item{}, scanerr.Errorf(scanerr.KindNotFound, op, "%s has no page %s", fromID, filename)
	}
	if dst.HasPage(filename) {
		return models.Item{}, models.Item{}, scanerr.Errorf(scanerr.KindInvalidOperation, op, "%s already has a page %s", toID, filename)
	}

	if move {
		err = s.pages.MovePage(fromID, toID, filename)
	} else {
		err = s.pages.CopyPage(fromID, toID, filename)
	}
	if err != nil {
		return models.Item{}, models.Item{}, fmt.Errorf("%s: %w", op, err)
	}

	dst.PageOrder = append(dst.PageOrder, filename)
	s.touch(&dst)
	if err := s.store.SaveMetadata(dst); err != nil {
		return models.Item{}, models.Item{}, fmt.Errorf("%s: %w", op, err)
	}
	if move {
		src.PageOrder = slices.DeleteFunc(src.PageOrder, func(p string) bool { return p == filename })
		s.touch(&src)
		if err := s.store.SaveMetadata(src); err != nil {
			return models.Item{}, models.Item{}, fmt.Errorf("%s: %w", op, err)
		}
		s.images.Remove(cacheKey(fromID, filename))
		s.images.Remove(cacheKey(fromID, naming.ThumbnailName(filename)))
	}
	return src, dst, nil
}

// PageLocation resolves a shareable reference to a page. ok is false when
// the page file does not exist.
func (s *Service) PageLocation(id, filename string) (loc *url.URL, ok bool, err error) {
	if _, err := loadDocument(s, "resolve page", id); err != nil {
		return nil, false, err
	}
	return s.pages.ResolveShareableLocation(id, filename)
}

// VerifyPages reports the pages in a document's order that have no file.
// Nothing is repaired.
func (s *Service) VerifyPages(id string) (models.PageReport, error) {
	item, err := s.store.LoadMetadata(id)
	if err != nil {
		return models.PageReport{}, fmt.Errorf("verify pages: %w", err)
	}
	return s.verify(item)
}

func (s *Service) verify(item models.Item) (models.PageReport, error) {
	report := models.PageReport{ItemID: item.ID, Missing: []string{}}
	for _, p := range item.PageOrder {
		ok, err := s.pages.Exists(item.ID, p)
		if err != nil && !errors.Is(err, scanerr.ErrInvalidArgument) {
			return models.PageReport{}, fmt.Errorf("verify pages: %w", err)
		}
		if !ok {
			report.Missing = append(report.Missing, p)
		}
	}
	return report, nil
}

// ValidateItems verifies the pages of several items. Items that cannot be
// checked are collected in a *BatchError; the reports of the rest are
// still returned.
func (s *Service) ValidateItems(ids []string) ([]models.PageReport, error) {
	var reports []models.PageReport
	failed := make(map[string]error)
	for _, id := range ids {
		r, err := s.VerifyPages(id)
		if err != nil {
			failed[id] = err
			continue
		}
		reports = append(reports, r)
	}
	if len(failed) > 0 {
		return reports, &BatchError{Op: "validate", Total: len(ids), Failed: failed}
	}
	return reports, nil
}

func (s *Service) pageAt(op, id string, index int) (string, error) {
	item, err := loadDocument(s, op, id)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(item.PageOrder) {
		return "", scanerr.Errorf(scanerr.KindInvalidArgument, op, "page %d out of range (%d pages)", index, len(item.PageOrder))
	}
	return item.PageOrder[index], nil
}

// PageImage decodes the page at index (zero-based) through the image cache.
func (s *Service) PageImage(id string, index int) (image.Image, error) {
	filename, err := s.pageAt("read page", id, index)
	if err != nil {
		return nil, err
	}
	return s.cached(cacheKey(id, filename), func() (image.Image, error) {
		return s.pages.ReadPage(id, filename)
	})
}

// Thumbnail returns the thumbnail of the page at index, generating it when
// it is missing.
func (s *Service) Thumbnail(id string, index int) (image.Image, error) {
	filename, err := s.pageAt("read thumbnail", id, index)
	if err != nil {
		return nil, err
	}
	return s.cached(cacheKey(id, naming.ThumbnailName(filename)), func() (image.Image, error) {
		return s.pages.Thumbnail(id, filename)
	})
}

func (s *Service) cached(key string, load func() (image.Image, error)) (image.Image, error) {
	if img, ok := s.images.Get(key); ok {
		return img, nil
	}
	img, err := load()
	if err != nil {
		return nil, err
	}
	if !s.images.Put(key, img, imaging.Footprint(img)) {
		s.logger.WithField("key", key).Debug("Image larger than cache, not cached")
	}
	return img, nil
}

// ClearImageCache drops every cached image.
func (s *Service) ClearImageCache() {
	s.images.Clear()
}

// CreateDocumentFromImages creates a document and imports each source as a
// page, named page_001, page_002 and so on. If any import fails the new
// document is removed.
func (s *Service) CreateDocumentFromImages(name string, sources []pages.Source, options ...CreateOption) (models.Item, error) {
	item, err := s.CreateDocument(name, options...)
	if err != nil {
		return models.Item{}, err
	}

	id := item.ID
	for i, src := range sources {
		filename := naming.PageFilename(i+1, outputExt(src))
		if item, err = s.AddPage(id, src, filename); err != nil {
			if derr := s.PermanentlyDelete(id); derr != nil {
				s.logger.WithError(derr).WithField("id", id).Warn("Failed to remove partial document")
			}
			return models.Item{}, fmt.Errorf("create document from images: %w", err)
		}
	}
	return item, nil
}

// outputExt is the page extension for src: its own when it can be written,
// jpg otherwise.
func outputExt(src pages.Source) string {
	ext := naming.Extension(src.String())
	if !imaging.CanEncode(ext) {
		return "jpg"
	}
	return ext
}
