// Package pages manages the page image files inside item directories.
//
// Every page may have a thumbnail next to it named thumb_<page filename>.
// Thumbnails are derived data: failing to write, move or delete one is
// logged and never fails the page operation.
package pages

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mattsolo1/grove-scanner/pkg/imaging"
	"github.com/mattsolo1/grove-scanner/pkg/naming"
	"github.com/mattsolo1/grove-scanner/pkg/scanerr"
	"github.com/mattsolo1/grove-scanner/pkg/storage"
)

// ShareFunc turns the absolute path of a page into an external reference.
type ShareFunc func(path string) *url.URL

// FileURL is the default ShareFunc.
func FileURL(path string) *url.URL {
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
}

// Manager is the page file manager.
type Manager struct {
	store  *storage.Store
	fs     afero.Fs
	images *imaging.Processor
	share  ShareFunc
	logger *logrus.Entry
}

// NewManager returns a manager over the store's filesystem.
func NewManager(store *storage.Store, images *imaging.Processor, logger *logrus.Entry) *Manager {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	if images == nil {
		images = imaging.New(imaging.Options{})
	}
	return &Manager{
		store:  store,
		fs:     store.Fs(),
		images: images,
		share:  FileURL,
		logger: logger.WithField("component", "pages"),
	}
}

// SetShareFunc replaces how shareable locations are built.
func (m *Manager) SetShareFunc(fn ShareFunc) {
	if fn != nil {
		m.share = fn
	}
}

// Images is the processor used for imports and thumbnails.
func (m *Manager) Images() *imaging.Processor { return m.images }

func checkName(op, filename string) error {
	if err := naming.ValidatePageFilename(filename); err != nil {
		return scanerr.E(scanerr.KindInvalidArgument, op, err)
	}
	return nil
}

// PagePath is the absolute path of a page, whether or not it exists.
func (m *Manager) PagePath(itemID, filename string) (string, error) {
	if err := checkName("resolve page", filename); err != nil {
		return "", err
	}
	dir, err := m.store.ItemDir(itemID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filename), nil
}

// Exists reports whether the page file is present.
func (m *Manager) Exists(itemID, filename string) (bool, error) {
	path, err := m.PagePath(itemID, filename)
	if err != nil {
		return false, err
	}
	_, err = m.fs.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, scanerr.FromFS("stat page", err)
	}
}

// ImportPage decodes src, bounds it to the maximum dimension and writes it
// into the item's directory in the format named by filename's extension.
// A partially written file is removed before an error is returned. A
// thumbnail is written afterwards, best-effort.
func (m *Manager) ImportPage(src Source, itemID, filename string) (path string, err error) {
	if err := checkName("import page", filename); err != nil {
		return "", err
	}
	ext := naming.Extension(filename)
	if !imaging.CanEncode(ext) {
		return "", scanerr.Errorf(scanerr.KindInvalidArgument, "import page", "cannot write %s pages", ext)
	}

	dir, err := m.store.ItemDir(itemID)
	if err != nil {
		return "", err
	}
	target := filepath.Join(dir, filename)

	rc, err := src.Open()
	if err != nil {
		return "", scanerr.FromFS("open "+src.String(), err)
	}
	defer rc.Close()

	img, err := m.images.Decode(rc)
	if err != nil {
		return "", fmt.Errorf("import %s: %w", src.String(), err)
	}
	img = m.images.Bound(img)

	if err := m.writeImage(target, img, ext); err != nil {
		return "", err
	}

	if err := m.writeThumbnail(dir, filename, img); err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{"id": itemID, "page": filename}).Warn("Failed to write thumbnail")
	}
	return target, nil
}

func (m *Manager) writeImage(target string, img image.Image, ext string) (err error) {
	out, err := m.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return scanerr.FromFS("write page", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = scanerr.FromFS("write page", cerr)
		}
		if err != nil {
			_ = m.fs.Remove(target)
		}
	}()
	return m.images.Encode(out, img, ext)
}

func (m *Manager) writeThumbnail(dir, filename string, img image.Image) error {
	return m.writeImage(filepath.Join(dir, naming.ThumbnailName(filename)), m.images.Thumbnail(img), naming.Extension(filename))
}

// ReadPage decodes a page from disk.
func (m *Manager) ReadPage(itemID, filename string) (image.Image, error) {
	path, err := m.PagePath(itemID, filename)
	if err != nil {
		return nil, err
	}
	return m.decodeFile(path)
}

// Thumbnail decodes a page's thumbnail, generating and writing it first when
// it is missing.
func (m *Manager) Thumbnail(itemID, filename string) (image.Image, error) {
	path, err := m.PagePath(itemID, filename)
	if err != nil {
		return nil, err
	}
	thumbPath := filepath.Join(filepath.Dir(path), naming.ThumbnailName(filename))

	thumb, err := m.decodeFile(thumbPath)
	if err == nil {
		return thumb, nil
	}
	if scanerr.KindOf(err) != scanerr.KindNotFound {
		m.logger.WithError(err).WithField("page", filename).Debug("Unreadable thumbnail, regenerating")
	}

	page, err := m.decodeFile(path)
	if err != nil {
		return nil, err
	}
	thumb = m.images.Thumbnail(page)
	if imaging.CanEncode(naming.Extension(filename)) {
		if err := m.writeImage(thumbPath, thumb, naming.Extension(filename)); err != nil {
			m.logger.WithError(err).WithField("page", filename).Warn("Failed to write thumbnail")
		}
	}
	return thumb, nil
}

func (m *Manager) decodeFile(path string) (image.Image, error) {
	f, err := m.fs.Open(path)
	if err != nil {
		return nil, scanerr.FromFS("open page", err)
	}
	defer f.Close()
	img, err := m.images.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// DeletePage removes a page and its thumbnail. It reports whether the page
// existed.
func (m *Manager) DeletePage(itemID, filename string) (bool, error) {
	path, err := m.PagePath(itemID, filename)
	if err != nil {
		return false, err
	}

	err = m.fs.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, scanerr.FromFS("delete page", err)
	}

	thumb := filepath.Join(filepath.Dir(path), naming.ThumbnailName(filename))
	if err := m.fs.Remove(thumb); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.WithError(err).WithField("page", filename).Warn("Failed to delete thumbnail")
	}
	return true, nil
}

// MovePage moves a page (and its thumbnail) from one item to another. The
// destination must not already have a page of that name.
func (m *Manager) MovePage(fromID, toID, filename string) error {
	src, dst, err := m.transferPaths("move page", fromID, toID, filename)
	if err != nil {
		return err
	}
	if err := m.fs.Rename(src, dst); err != nil {
		return scanerr.FromFS("move page", err)
	}
	m.followThumbnail(src, dst, filename, func(a, b string) error { return m.fs.Rename(a, b) })
	return nil
}

// CopyPage copies a page (and its thumbnail) from one item to another.
func (m *Manager) CopyPage(fromID, toID, filename string) error {
	src, dst, err := m.transferPaths("copy page", fromID, toID, filename)
	if err != nil {
		return err
	}
	if err := storage.CopyFile(m.fs, src, dst); err != nil {
		return scanerr.FromFS("copy page", err)
	}
	m.followThumbnail(src, dst, filename, func(a, b string) error { return storage.CopyFile(m.fs, a, b) })
	return nil
}

func (m *Manager) transferPaths(op, fromID, toID, filename string) (string, string, error) {
	src, err := m.PagePath(fromID, filename)
	if err != nil {
		return "", "", err
	}
	dst, err := m.PagePath(toID, filename)
	if err != nil {
		return "", "", err
	}
	if src == dst {
		return "", "", scanerr.Errorf(scanerr.KindInvalidArgument, op, "source and destination are the same item")
	}
	if _, err := m.fs.Stat(src); err != nil {
		return "", "", scanerr.FromFS(op, err)
	}
	if _, err := m.fs.Stat(dst); err == nil {
		return "", "", scanerr.Errorf(scanerr.KindInvalidOperation, op, "%s already exists in item %s", filename, toID)
	}
	return src, dst, nil
}

func (m *Manager) followThumbnail(src, dst, filename string, op func(a, b string) error) {
	from := filepath.Join(filepath.Dir(src), naming.ThumbnailName(filename))
	if _, err := m.fs.Stat(from); err != nil {
		return
	}
	to := filepath.Join(filepath.Dir(dst), naming.ThumbnailName(filename))
	if err := op(from, to); err != nil {
		m.logger.WithError(err).WithField("page", filename).Warn("Thumbnail did not follow its page")
	}
}

// ResolveShareableLocation returns an external reference to a page, or
// false when the page file does not exist.
func (m *Manager) ResolveShareableLocation(itemID, filename string) (*url.URL, bool, error) {
	path, err := m.PagePath(itemID, filename)
	if err != nil {
		return nil, false, err
	}
	info, err := m.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, scanerr.FromFS("resolve page", err)
	}
	if info.IsDir() {
		return nil, false, nil
	}
	return m.share(path), true, nil
}
