package storage

import (
	"path/filepath"

	"github.com/mattsolo1/grove-scanner/pkg/models"
	"github.com/mattsolo1/grove-scanner/pkg/scanerr"
)

// StorageStats aggregates item count and size over every listed item, and
// reports the free and used space of the volume holding the root.
func (s *Store) StorageStats() (models.StorageStats, error) {
	entries, err := s.scan()
	if err != nil {
		return models.StorageStats{}, err
	}

	stats := models.StorageStats{ItemCount: len(entries), Root: s.root}
	for _, e := range entries {
		size, err := treeSize(s.fs, filepath.Join(s.root, e.dir))
		if err != nil {
			return models.StorageStats{}, scanerr.FromFS("measure item directory", err)
		}
		stats.TotalBytes += size
	}

	total, free, err := diskUsage(s.root)
	if err != nil {
		s.logger.WithError(err).Debug("Volume usage unavailable")
		return stats, nil
	}
	stats.FreeBytes = int64(free)
	stats.UsedBytes = int64(total - free)
	return stats, nil
}
