package service

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mattsolo1/grove-scanner/pkg/integrity"
	"github.com/mattsolo1/grove-scanner/pkg/models"
	"github.com/mattsolo1/grove-scanner/pkg/storage"
)

// Statistics aggregates the active collection. TotalBytes is the on-disk
// size of the active items' directories.
func (s *Service) Statistics() (models.Statistics, error) {
	items, err := s.ListActive()
	if err != nil {
		return models.Statistics{}, fmt.Errorf("statistics: %w", err)
	}

	stats := models.Statistics{
		TotalItems: len(items),
		CacheBytes: s.images.Bytes(),
	}
	for _, it := range items {
		if it.IsContainer {
			stats.TotalFolders++
		} else {
			stats.TotalDocuments++
			stats.TotalPages += it.PageCount()
		}
		size, err := s.store.DirectorySize(it.ID)
		if err != nil {
			s.logger.WithError(err).WithField("id", it.ID).Debug("Cannot size item")
			continue
		}
		stats.TotalBytes += size
	}
	return stats, nil
}

// StorageStats describes the storage root and its volume.
func (s *Service) StorageStats() (models.StorageStats, error) {
	return s.store.StorageStats()
}

// Backup copies an item to the backup area and returns the backup path.
func (s *Service) Backup(id string) (string, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	path, err := s.store.Backup(id)
	if err != nil {
		return "", fmt.Errorf("backup: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"id": id, "path": path}).Info("Backed up item")
	return path, nil
}

// RestoreBackup replaces an item with a backup of it, or recreates it when
// it no longer exists, and returns the restored item.
func (s *Service) RestoreBackup(id, backupPath string) (models.Item, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.store.Restore(id, backupPath); err != nil {
		return models.Item{}, fmt.Errorf("restore backup: %w", err)
	}
	s.forgetImages(id)

	item, err := s.store.LoadMetadata(id)
	if err != nil {
		return models.Item{}, fmt.Errorf("restore backup: %w", err)
	}
	return item, nil
}

// Backups lists an item's backups, newest first.
func (s *Service) Backups(id string) ([]string, error) {
	return s.store.Backups(id)
}

// ReadManifest reads the manifest of a backup.
func (s *Service) ReadManifest(backupPath string) (storage.Manifest, error) {
	return s.store.ReadManifest(backupPath)
}

// CleanupTemp removes stale scratch entries. A zero maxAge uses the
// configured default.
func (s *Service) CleanupTemp(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = s.config.TempMaxAge
	}
	return s.store.CleanupTemp(maxAge)
}

// CheckIntegrity validates every readable item, deleted ones included.
func (s *Service) CheckIntegrity() ([]integrity.Issue, error) {
	items, err := s.ListAll()
	if err != nil {
		return nil, fmt.Errorf("check integrity: %w", err)
	}
	return integrity.Validate(items, s.timestamp()), nil
}

// RepairReport summarizes RepairAll.
type RepairReport struct {
	Checked int               `json:"checked"`
	Before  []integrity.Issue `json:"before"`
	After   []integrity.Issue `json:"after"`

	// Repaired lists the ids whose metadata was rewritten.
	Repaired []string `json:"repaired"`

	// Unresolved lists ids that appear in more than one directory. Repair
	// never deletes directories, so these are left for the user.
	Unresolved []string `json:"unresolved"`

	Errors map[string]error `json:"-"`
}

// RepairAll repairs and saves the metadata of every item. Files and
// directories are never deleted; items sharing an id are reported in
// Unresolved and left as they are.
func (s *Service) RepairAll() (*RepairReport, error) {
	items, err := s.ListAll()
	if err != nil {
		return nil, fmt.Errorf("repair: %w", err)
	}

	report := &RepairReport{
		Checked:    len(items),
		Before:     integrity.Validate(items, s.timestamp()),
		Repaired:   []string{},
		Unresolved: []string{},
		Errors:     make(map[string]error),
	}

	counts := make(map[string]int, len(items))
	for _, it := range items {
		counts[it.ID]++
	}

	originals := make(map[string]models.Item, len(items))
	for _, it := range items {
		if _, ok := originals[it.ID]; !ok {
			originals[it.ID] = it
		}
	}

	repaired := integrity.Repair(items)
	for _, it := range repaired {
		if counts[it.ID] > 1 {
			report.Unresolved = append(report.Unresolved, it.ID)
			continue
		}
		if !integrity.Changed(originals[it.ID], it) {
			continue
		}
		if err := s.saveRepaired(it); err != nil {
			report.Errors[it.ID] = err
			continue
		}
		report.Repaired = append(report.Repaired, it.ID)
	}

	after, err := s.ListAll()
	if err != nil {
		return report, fmt.Errorf("repair: %w", err)
	}
	report.After = integrity.Validate(after, s.timestamp())

	s.logger.WithFields(logrus.Fields{
		"repaired":   len(report.Repaired),
		"unresolved": len(report.Unresolved),
		"errors":     len(report.Errors),
	}).Info("Repair finished")
	return report, nil
}

// saveRepaired writes a repaired record as is. UpdatedAt is not bumped:
// repair corrects the record, it does not edit it.
func (s *Service) saveRepaired(item models.Item) error {
	unlock := s.locks.Lock(item.ID)
	defer unlock()
	return s.store.SaveMetadata(item)
}

// MigrationReport summarizes MigrateAll.
type MigrationReport struct {
	TotalDirs     int
	MigratedDirs  int
	FailedDirs    int
	Migrated      []string
	ProcessingErr map[string]error
	StartTime     time.Time
	EndTime       time.Time
}

func newMigrationReport(now time.Time) *MigrationReport {
	return &MigrationReport{
		Migrated:      []string{},
		ProcessingErr: make(map[string]error),
		StartTime:     now,
	}
}

// AddError records a directory that could not be migrated.
func (r *MigrationReport) AddError(dir string, err error) {
	r.ProcessingErr[dir] = err
	r.FailedDirs++
}

// Duration is how long the migration ran.
func (r *MigrationReport) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// MigrateAll rewrites every legacy desc file in the current shape.
func (s *Service) MigrateAll() (*MigrationReport, error) {
	report := newMigrationReport(s.now())

	dirs, err := s.store.LegacyDirs()
	if err != nil {
		return report, fmt.Errorf("migrate: %w", err)
	}
	report.TotalDirs = len(dirs)

	for _, dir := range dirs {
		item, err := s.store.MigrateDir(dir)
		if err != nil {
			s.logger.WithError(err).WithField("dir", dir).Warn("Migration failed")
			report.AddError(dir, err)
			continue
		}
		report.MigratedDirs++
		report.Migrated = append(report.Migrated, item.ID)
	}

	report.EndTime = s.now()
	return report, nil
}

// Reindex rebuilds the id to directory index and returns the number of
// items indexed.
func (s *Service) Reindex() (int, error) {
	n, err := s.store.Reindex()
	if err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}
	return n, nil
}
