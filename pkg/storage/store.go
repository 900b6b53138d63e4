// Package storage maps items to directories under a storage root and owns
// their on-disk representation.
//
// Layout:
//
//	<root>/
//	  2025-01-11_10_00_00.123/   one directory per item
//	    desc.json
//	    page_001.jpg
//	    thumb_page_001.jpg
//	  temp/                      scratch space, never listed
//	  backup/                    item backups, never listed
//
// The Store does no locking of its own. Callers serialize writes per item.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mattsolo1/grove-scanner/pkg/codec"
	"github.com/mattsolo1/grove-scanner/pkg/models"
	"github.com/mattsolo1/grove-scanner/pkg/naming"
	"github.com/mattsolo1/grove-scanner/pkg/scanerr"
)

const (
	TempDirName   = "temp"
	BackupDirName = "backup"

	tmpSuffix = ".tmp"

	// maxCollisionSuffix bounds the search for a free directory name.
	maxCollisionSuffix = 1000
)

// Store is the directory store.
type Store struct {
	fs     afero.Fs
	root   string
	index  Index
	logger *logrus.Entry
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithFs sets the filesystem. Defaults to the OS filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(s *Store) { s.fs = fsys }
}

// WithIndex sets the id to directory index. Defaults to a MemoryIndex.
func WithIndex(idx Index) Option {
	return func(s *Store) { s.index = idx }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New opens the store at root, creating the root and its reserved
// directories if needed.
func New(root string, opts ...Option) (*Store, error) {
	s := &Store{
		fs:     afero.NewOsFs(),
		root:   root,
		logger: logrus.NewEntry(logrus.New()),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.index == nil {
		s.index = NewMemoryIndex()
	}
	s.logger = s.logger.WithField("component", "storage")

	for _, dir := range []string{root, s.TempDir(), s.BackupDir()} {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, scanerr.FromFS("create storage root", err)
		}
	}
	return s, nil
}

// Close releases the index.
func (s *Store) Close() error {
	return s.index.Close()
}

func (s *Store) Root() string      { return s.root }
func (s *Store) TempDir() string   { return filepath.Join(s.root, TempDirName) }
func (s *Store) BackupDir() string { return filepath.Join(s.root, BackupDirName) }
func (s *Store) Fs() afero.Fs      { return s.fs }

// IsReserved reports whether name is a reserved top-level directory.
func IsReserved(name string) bool {
	return name == TempDirName || name == BackupDirName
}

// ItemDir returns the absolute directory of an item.
func (s *Store) ItemDir(id string) (string, error) {
	dir, err := s.locate(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, dir), nil
}

// CreateDirectory ensures the item has a directory and returns its path.
//
// The directory is named after CreatedAt. When that name is taken by another
// item a suffix is appended (_1, _2, ...). The chosen name is claimed with a
// non-recursive mkdir, so two items created in the same millisecond never
// share a directory.
func (s *Store) CreateDirectory(item models.Item) (string, error) {
	if dir, ok := s.indexed(item.ID); ok {
		return filepath.Join(s.root, dir), nil
	}

	base := naming.DirectoryName(item.CreatedAt)
	for n := 0; n < maxCollisionSuffix; n++ {
		name := naming.DirectoryCandidate(base, n)
		path := filepath.Join(s.root, name)

		err := s.fs.Mkdir(path, 0o755)
		if err == nil {
			s.putIndex(item.ID, name)
			if n > 0 {
				s.logger.WithFields(logrus.Fields{"id": item.ID, "dir": name}).Debug("Directory name collision resolved")
			}
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", scanerr.FromFS("create item directory", err)
		}

		// Taken. It may already be ours.
		if id, ok := s.peekID(name); ok && id == item.ID {
			s.putIndex(item.ID, name)
			return path, nil
		}
	}
	return "", scanerr.Errorf(scanerr.KindIOFailure, "create item directory", "no free name for %s after %d attempts", base, maxCollisionSuffix)
}

// SaveMetadata writes the item's desc.json, creating its directory if
// needed. The file is written next to the target and renamed over it.
func (s *Store) SaveMetadata(item models.Item) error {
	if strings.TrimSpace(item.ID) == "" {
		return scanerr.Errorf(scanerr.KindInvalidArgument, "save metadata", "item has no id")
	}
	data, err := codec.Encode(item)
	if err != nil {
		return scanerr.E(scanerr.KindInvalidArgument, "save metadata", err)
	}

	dir, err := s.ItemDir(item.ID)
	if scanerr.KindOf(err) == scanerr.KindNotFound {
		dir, err = s.CreateDirectory(item)
	}
	if err != nil {
		return err
	}

	return s.writeDesc(dir, data)
}

func (s *Store) writeDesc(dir string, data []byte) error {
	target := filepath.Join(dir, naming.DescFileName)
	tmp := target + tmpSuffix
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		_ = s.fs.Remove(tmp)
		return scanerr.FromFS("write metadata", err)
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		_ = s.fs.Remove(tmp)
		return scanerr.FromFS("write metadata", err)
	}
	return nil
}

// LoadMetadata reads the item with the given id.
//
// A desc.json in a legacy shape is migrated and rewritten in the current
// shape. The rewrite is best-effort: the migrated record is returned even if
// it cannot be saved.
func (s *Store) LoadMetadata(id string) (models.Item, error) {
	dir, err := s.locate(id)
	if err != nil {
		return models.Item{}, err
	}

	item, migrated, err := s.readItem(dir)
	if err != nil {
		return models.Item{}, fmt.Errorf("load metadata %s: %w", id, err)
	}
	if item.ID != id {
		return models.Item{}, scanerr.Errorf(scanerr.KindCorrupted, "load metadata", "%s holds item %s, want %s", dir, item.ID, id)
	}

	if migrated != nil {
		if err := s.writeDesc(filepath.Join(s.root, dir), migrated); err != nil {
			s.logger.WithError(err).WithField("id", id).Warn("Failed to rewrite migrated metadata")
		} else {
			s.logger.WithField("id", id).Info("Migrated legacy metadata")
		}
	}
	return item, nil
}

// readItem decodes the desc.json of a directory (relative to the root).
// For legacy files it also returns the migrated bytes.
func (s *Store) readItem(dir string) (models.Item, []byte, error) {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.root, dir, naming.DescFileName))
	if err != nil {
		return models.Item{}, nil, scanerr.FromFS("read metadata", err)
	}

	if codec.IsLegacy(data) {
		migrated, err := codec.MigrateLegacy(data)
		if err != nil {
			return models.Item{}, nil, err
		}
		item, err := codec.Decode(migrated)
		return item, migrated, err
	}

	item, err := codec.Decode(data)
	return item, nil, err
}

// ListAllIDs returns the id of every directory holding a readable desc.json,
// in directory name order. Reserved directories, stray files and items whose
// metadata cannot be decoded are skipped.
func (s *Store) ListAllIDs() ([]string, error) {
	entries, err := s.scan()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.item.ID)
	}
	return ids, nil
}

// LoadAll decodes every readable item in one pass, with the same skipping
// rules as ListAllIDs. Duplicate ids in different directories are all
// returned.
func (s *Store) LoadAll() ([]models.Item, error) {
	entries, err := s.scan()
	if err != nil {
		return nil, err
	}
	items := make([]models.Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, e.item)
	}
	return items, nil
}

// LegacyDirs lists directories whose desc.json is in a legacy shape.
func (s *Store) LegacyDirs() ([]string, error) {
	names, err := s.itemDirNames()
	if err != nil {
		return nil, err
	}
	var legacy []string
	for _, name := range names {
		data, err := afero.ReadFile(s.fs, filepath.Join(s.root, name, naming.DescFileName))
		if err != nil {
			continue
		}
		if codec.IsLegacy(data) {
			legacy = append(legacy, name)
		}
	}
	return legacy, nil
}

// MigrateDir migrates one legacy directory in place and returns the item.
// Unlike LoadMetadata, a failed rewrite is an error.
func (s *Store) MigrateDir(name string) (models.Item, error) {
	item, migrated, err := s.readItem(name)
	if err != nil {
		return models.Item{}, fmt.Errorf("migrate %s: %w", name, err)
	}
	if migrated == nil {
		return item, nil
	}
	if err := s.writeDesc(filepath.Join(s.root, name), migrated); err != nil {
		return models.Item{}, fmt.Errorf("migrate %s: %w", name, err)
	}
	s.putIndex(item.ID, name)
	return item, nil
}

// Reindex rebuilds the id to directory index from a full scan.
func (s *Store) Reindex() (int, error) {
	entries, err := s.scan()
	if err != nil {
		return 0, err
	}
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.item.ID] = e.dir
	}
	if err := s.index.Reset(m); err != nil {
		return 0, scanerr.E(scanerr.KindIOFailure, "reindex", err)
	}
	return len(m), nil
}

// DeleteDirectory removes the item's directory and everything in it.
// It reports false if the item does not exist.
func (s *Store) DeleteDirectory(id string) (bool, error) {
	dir, err := s.locate(id)
	if scanerr.KindOf(err) == scanerr.KindNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.fs.RemoveAll(filepath.Join(s.root, dir)); err != nil {
		return false, scanerr.FromFS("delete item directory", err)
	}
	s.removeIndex(id)
	return true, nil
}

// DirectorySize is the total size of the files in the item's directory.
func (s *Store) DirectorySize(id string) (int64, error) {
	dir, err := s.locate(id)
	if err != nil {
		return 0, err
	}
	size, err := treeSize(s.fs, filepath.Join(s.root, dir))
	if err != nil {
		return 0, scanerr.FromFS("measure item directory", err)
	}
	return size, nil
}

type entry struct {
	dir  string
	item models.Item
}

// itemDirNames lists candidate item directories in name order.
func (s *Store) itemDirNames() ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil, scanerr.FromFS("list storage root", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir() || IsReserved(info.Name()) {
			continue
		}
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names, nil
}

// scan decodes every item directory and refreshes the index for each one it
// reads. Unreadable directories are logged and skipped.
func (s *Store) scan() ([]entry, error) {
	names, err := s.itemDirNames()
	if err != nil {
		return nil, err
	}

	entries := make([]entry, 0, len(names))
	for _, name := range names {
		item, _, err := s.readItem(name)
		if err != nil {
			if scanerr.KindOf(err) != scanerr.KindNotFound {
				s.logger.WithError(err).WithField("dir", name).Warn("Skipping unreadable item")
			}
			continue
		}
		entries = append(entries, entry{dir: name, item: item})
		s.putIndex(item.ID, name)
	}
	return entries, nil
}

// locate resolves an id to its directory name, via the index when it has a
// trustworthy entry and by scanning otherwise.
func (s *Store) locate(id string) (string, error) {
	if dir, ok := s.indexed(id); ok {
		return dir, nil
	}

	names, err := s.itemDirNames()
	if err != nil {
		return "", err
	}
	for _, name := range names {
		if got, ok := s.peekID(name); ok && got == id {
			s.putIndex(id, name)
			return name, nil
		}
	}
	return "", scanerr.Errorf(scanerr.KindNotFound, "locate item", "no item with id %s", id)
}

// indexed returns the index entry for id after checking it still holds.
// Stale entries are dropped.
func (s *Store) indexed(id string) (string, bool) {
	dir, ok, err := s.index.Lookup(id)
	if err != nil {
		s.logger.WithError(err).Warn("Index lookup failed, scanning")
		return "", false
	}
	if !ok {
		return "", false
	}

	info, err := s.fs.Stat(filepath.Join(s.root, dir))
	if err != nil || !info.IsDir() {
		s.removeIndex(id)
		return "", false
	}
	// A directory claimed but not yet written, or whose metadata no longer
	// parses, still belongs to id. One that names another item does not.
	if got, ok := s.peekID(dir); ok && got != id {
		s.removeIndex(id)
		return "", false
	}
	return dir, true
}

// peekID reads just the id of a directory's desc.json, accepting both the
// current and the legacy key. It works on files that fail full validation,
// so a corrupted item can still be found by id.
func (s *Store) peekID(dir string) (string, bool) {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.root, dir, naming.DescFileName))
	if err != nil {
		return "", false
	}
	var probe struct {
		ID   *string `json:"id"`
		UUID *string `json:"uuid"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", false
	}
	switch {
	case probe.ID != nil && *probe.ID != "":
		return *probe.ID, true
	case probe.UUID != nil && *probe.UUID != "":
		return *probe.UUID, true
	}
	return "", false
}

func (s *Store) putIndex(id, dir string) {
	if err := s.index.Put(id, dir); err != nil {
		s.logger.WithError(err).Warn("Failed to update index")
	}
}

func (s *Store) removeIndex(id string) {
	if err := s.index.Remove(id); err != nil {
		s.logger.WithError(err).Warn("Failed to update index")
	}
}
