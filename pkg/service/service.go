// Package service is the public API over the scan storage engine. It
// composes the directory store and the page file manager, serializes writes
// per item, and owns the decoded image cache.
package service

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mattsolo1/grove-scanner/pkg/cache"
	"github.com/mattsolo1/grove-scanner/pkg/imaging"
	"github.com/mattsolo1/grove-scanner/pkg/models"
	"github.com/mattsolo1/grove-scanner/pkg/pages"
	"github.com/mattsolo1/grove-scanner/pkg/storage"
)

const (
	IndexSQLite = "sqlite"
	IndexMemory = "memory"

	// IndexFileName is the sqlite index inside the storage root.
	IndexFileName = "index.db"

	DefaultCacheBytes = 50 << 20
	DefaultTempMaxAge = 24 * time.Hour
)

// Config holds service configuration
type Config struct {
	Root         string
	Index        string
	CacheBytes   int64
	MaxDimension int
	JPEGQuality  int
	ThumbSize    int
	TempMaxAge   time.Duration
}

// Service is the scan service.
type Service struct {
	config *Config
	store  *storage.Store
	pages  *pages.Manager
	images *cache.LRU[image.Image]
	locks  *keyedMutex
	now    func() time.Time
	logger *logrus.Entry
}

// Option configures a Service beyond its Config.
type Option func(*options)

type options struct {
	fs  afero.Fs
	now func() time.Time
}

// WithFs runs the service over fsys instead of the OS filesystem. The sqlite
// index needs a real directory, so a custom filesystem always uses the
// in-memory index.
func WithFs(fsys afero.Fs) Option {
	return func(o *options) { o.fs = fsys }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New opens the storage root described by config.
func New(config *Config, logger *logrus.Entry, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	cfg := *config
	if cfg.CacheBytes <= 0 {
		cfg.CacheBytes = DefaultCacheBytes
	}
	if cfg.TempMaxAge <= 0 {
		cfg.TempMaxAge = DefaultTempMaxAge
	}
	if cfg.Index == "" {
		cfg.Index = IndexSQLite
	}

	storeOpts := []storage.Option{
		storage.WithLogger(logger),
		storage.WithClock(o.now),
	}
	if o.fs != nil {
		storeOpts = append(storeOpts, storage.WithFs(o.fs))
	}

	var idx storage.Index
	switch {
	case cfg.Index == IndexSQLite && o.fs == nil:
		if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
			return nil, fmt.Errorf("create storage root: %w", err)
		}
		sqlIdx, err := storage.OpenSQLiteIndex(filepath.Join(cfg.Root, IndexFileName))
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		idx = sqlIdx
	case cfg.Index == IndexSQLite, cfg.Index == IndexMemory:
		idx = storage.NewMemoryIndex()
	default:
		return nil, fmt.Errorf("unknown index %q (want %s or %s)", cfg.Index, IndexSQLite, IndexMemory)
	}

	storeOpts = append(storeOpts, storage.WithIndex(idx))

	store, err := storage.New(cfg.Root, storeOpts...)
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	processor := imaging.New(imaging.Options{
		MaxDimension: cfg.MaxDimension,
		JPEGQuality:  cfg.JPEGQuality,
		ThumbSize:    cfg.ThumbSize,
	})

	return &Service{
		config: &cfg,
		store:  store,
		pages:  pages.NewManager(store, processor, logger),
		images: cache.New[image.Image](cfg.CacheBytes),
		locks:  newKeyedMutex(),
		now:    o.now,
		logger: logger.WithField("component", "service"),
	}, nil
}

// Close closes the service
func (s *Service) Close() error {
	return s.store.Close()
}

// Config returns the effective configuration, defaults applied.
func (s *Service) Config() Config { return *s.config }

// Store exposes the directory store.
func (s *Service) Store() *storage.Store { return s.store }

// Pages exposes the page file manager.
func (s *Service) Pages() *pages.Manager { return s.pages }

func (s *Service) timestamp() models.Timestamp {
	return models.FromTime(s.now())
}

// touch bumps UpdatedAt. It never moves backwards and always advances, even
// when the clock has not.
func (s *Service) touch(item *models.Item) {
	ts := s.timestamp()
	if ts <= item.UpdatedAt {
		ts = item.UpdatedAt + 1
	}
	item.UpdatedAt = ts
}

func cacheKey(id, filename string) string {
	return id + "-" + filename
}

func (s *Service) forgetImages(id string) {
	s.images.RemovePrefix(id + "-")
}
