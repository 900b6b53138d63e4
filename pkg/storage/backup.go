package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/mattsolo1/grove-scanner/pkg/codec"
	"github.com/mattsolo1/grove-scanner/pkg/naming"
	"github.com/mattsolo1/grove-scanner/pkg/scanerr"
)

const (
	// ManifestFileName describes a backup. It is not restored.
	ManifestFileName = "manifest.yaml"

	backupSuffix = ".backup"
)

// Manifest is written into every backup directory.
type Manifest struct {
	ID          string         `yaml:"id"`
	DisplayName string         `yaml:"displayName"`
	SourceDir   string         `yaml:"sourceDir"`
	CreatedAt   time.Time      `yaml:"createdAt"`
	TotalBytes  int64          `yaml:"totalBytes"`
	Files       []ManifestFile `yaml:"files"`
}

// ManifestFile is one file captured by a backup.
type ManifestFile struct {
	Name string `yaml:"name"`
	Size int64  `yaml:"size"`
}

// Backup copies the item's directory to backup/<id>_<millis>.backup and
// returns the backup path. The copy is assembled in temp/ and renamed into
// place, so a backup directory is either complete or absent.
func (s *Store) Backup(id string) (string, error) {
	item, err := s.LoadMetadata(id)
	if err != nil {
		return "", fmt.Errorf("backup %s: %w", id, err)
	}
	dir, err := s.locate(id)
	if err != nil {
		return "", err
	}
	src := filepath.Join(s.root, dir)

	staging := filepath.Join(s.TempDir(), "backup-"+uuid.NewString())
	defer func() {
		_ = s.fs.RemoveAll(staging)
	}()
	if err := copyTree(s.fs, src, staging, nil); err != nil {
		return "", scanerr.FromFS("backup "+id, err)
	}

	now := s.now().UTC()
	manifest := Manifest{
		ID:          id,
		DisplayName: item.DisplayName,
		SourceDir:   dir,
		CreatedAt:   now,
	}
	err = afero.Walk(s.fs, staging, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(staging, path)
		manifest.Files = append(manifest.Files, ManifestFile{Name: filepath.ToSlash(rel), Size: info.Size()})
		manifest.TotalBytes += info.Size()
		return nil
	})
	if err != nil {
		return "", scanerr.FromFS("backup "+id, err)
	}
	data, err := yaml.Marshal(&manifest)
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	if err := afero.WriteFile(s.fs, filepath.Join(staging, ManifestFileName), data, 0o644); err != nil {
		return "", scanerr.FromFS("write manifest", err)
	}

	dest := filepath.Join(s.BackupDir(), fmt.Sprintf("%s_%d%s", id, now.UnixMilli(), backupSuffix))
	if exists(s.fs, dest) {
		return "", scanerr.Errorf(scanerr.KindIOFailure, "backup "+id, "%s already exists", filepath.Base(dest))
	}
	if err := s.fs.Rename(staging, dest); err != nil {
		return "", scanerr.FromFS("backup "+id, err)
	}

	s.logger.WithFields(logrus.Fields{"id": id, "backup": filepath.Base(dest)}).Info("Backed up item")
	return dest, nil
}

// ReadManifest reads the manifest of a backup directory.
func (s *Store) ReadManifest(backupPath string) (Manifest, error) {
	var m Manifest
	data, err := afero.ReadFile(s.fs, filepath.Join(s.resolveBackup(backupPath), ManifestFileName))
	if err != nil {
		return m, scanerr.FromFS("read manifest", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, scanerr.E(scanerr.KindCorrupted, "read manifest", err)
	}
	return m, nil
}

// Backups lists the backups of an item, newest first. An empty id lists all.
func (s *Store) Backups(id string) ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.BackupDir())
	if err != nil {
		return nil, scanerr.FromFS("list backups", err)
	}
	var paths []string
	for _, info := range infos {
		name := info.Name()
		if !info.IsDir() || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		if id != "" && !strings.HasPrefix(name, id+"_") {
			continue
		}
		paths = append(paths, filepath.Join(s.BackupDir(), name))
	}
	// <id>_<millis>: same id, so name order is time order.
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths, nil
}

// Restore replaces the item's directory with the contents of a backup.
//
// The backup is first copied into temp/ and checked. The live directory is
// then moved aside and the staged copy renamed into its place, and the aside
// copy is removed. Where directory rename is atomic the swap is too. If the
// item no longer exists it is recreated under its original directory name,
// or a suffixed one when that is taken.
func (s *Store) Restore(id, backupPath string) error {
	src := s.resolveBackup(backupPath)
	info, err := s.fs.Stat(src)
	if err != nil {
		return scanerr.FromFS("restore "+id, err)
	}
	if !info.IsDir() {
		return scanerr.Errorf(scanerr.KindInvalidArgument, "restore "+id, "%s is not a backup directory", backupPath)
	}

	manifest, err := s.ReadManifest(src)
	switch {
	case err == nil && manifest.ID != id:
		return scanerr.Errorf(scanerr.KindInvalidArgument, "restore "+id, "backup belongs to item %s", manifest.ID)
	case err != nil && scanerr.KindOf(err) != scanerr.KindNotFound:
		return err
	}

	staging := filepath.Join(s.TempDir(), "restore-"+uuid.NewString())
	defer func() {
		_ = s.fs.RemoveAll(staging)
	}()
	err = copyTree(s.fs, src, staging, func(rel string) bool { return rel == ManifestFileName })
	if err != nil {
		return scanerr.FromFS("restore "+id, err)
	}

	data, err := afero.ReadFile(s.fs, filepath.Join(staging, naming.DescFileName))
	if err != nil {
		return scanerr.E(scanerr.KindCorrupted, "restore "+id, fmt.Errorf("backup has no metadata: %w", err))
	}
	if codec.IsLegacy(data) {
		if data, err = codec.MigrateLegacy(data); err != nil {
			return fmt.Errorf("restore %s: %w", id, err)
		}
	}
	item, err := codec.Decode(data)
	if err != nil {
		return fmt.Errorf("restore %s: %w", id, err)
	}
	if item.ID != id {
		return scanerr.Errorf(scanerr.KindInvalidArgument, "restore "+id, "backup holds item %s", item.ID)
	}

	dir, err := s.locate(id)
	switch {
	case err == nil:
		return s.swap(id, dir, staging)
	case scanerr.KindOf(err) != scanerr.KindNotFound:
		return err
	}

	// The item is gone. Put it back under a free name.
	base := manifest.SourceDir
	if base == "" {
		base = naming.DirectoryName(item.CreatedAt)
	}
	for n := 0; n < maxCollisionSuffix; n++ {
		name := naming.DirectoryCandidate(base, n)
		if exists(s.fs, filepath.Join(s.root, name)) {
			continue
		}
		if err := s.fs.Rename(staging, filepath.Join(s.root, name)); err != nil {
			return scanerr.FromFS("restore "+id, err)
		}
		s.putIndex(id, name)
		s.logger.WithFields(logrus.Fields{"id": id, "dir": name}).Info("Restored deleted item from backup")
		return nil
	}
	return scanerr.Errorf(scanerr.KindIOFailure, "restore "+id, "no free directory name for %s", base)
}

func (s *Store) swap(id, dir, staging string) error {
	live := filepath.Join(s.root, dir)
	aside := filepath.Join(s.TempDir(), "aside-"+uuid.NewString())

	if err := s.fs.Rename(live, aside); err != nil {
		return scanerr.FromFS("restore "+id, err)
	}
	if err := s.fs.Rename(staging, live); err != nil {
		if rerr := s.fs.Rename(aside, live); rerr != nil {
			return scanerr.FromFS("restore "+id, errors.Join(err, fmt.Errorf("put back original: %w", rerr)))
		}
		return scanerr.FromFS("restore "+id, err)
	}
	if err := s.fs.RemoveAll(aside); err != nil {
		s.logger.WithError(err).WithField("path", aside).Warn("Failed to remove replaced directory")
	}

	s.logger.WithFields(logrus.Fields{"id": id, "dir": dir}).Info("Restored item from backup")
	return nil
}

// resolveBackup accepts an absolute path or a name under backup/.
func (s *Store) resolveBackup(backupPath string) string {
	if filepath.IsAbs(backupPath) || strings.ContainsRune(backupPath, filepath.Separator) {
		return backupPath
	}
	return filepath.Join(s.BackupDir(), backupPath)
}

// CleanupTemp removes temp/ entries last modified more than maxAge ago and
// returns how many were removed. Failures are logged and skipped.
func (s *Store) CleanupTemp(maxAge time.Duration) int {
	infos, err := afero.ReadDir(s.fs, s.TempDir())
	if err != nil {
		s.logger.WithError(err).Warn("Failed to list temp directory")
		return 0
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, info := range infos {
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.TempDir(), info.Name())
		if err := s.fs.RemoveAll(path); err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Failed to remove temp entry")
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Debug("Cleaned temp directory")
	}
	return removed
}
