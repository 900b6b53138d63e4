package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsolo1/grove-scanner/pkg/service"
)

func reset(t *testing.T) {
	t.Helper()
	viper.Reset()
	cfgFile, logLevel, rootDir = "", "", ""
	t.Setenv("HOME", t.TempDir())
}

func TestDefaults(t *testing.T) {
	reset(t)
	InitConfig()

	cfg := ServiceConfig()
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".local", "share", "scan", "SimplyScanner"), cfg.Root)
	assert.Equal(t, service.IndexSQLite, cfg.Index)
	assert.Equal(t, int64(service.DefaultCacheBytes), cfg.CacheBytes)
	assert.Equal(t, 2048, cfg.MaxDimension)
	assert.Equal(t, 85, cfg.JPEGQuality)
	assert.Equal(t, 200, cfg.ThumbSize)
	assert.Equal(t, 24*time.Hour, cfg.TempMaxAge)

	logger, err := NewLogger()
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
}

func TestEnvAndFileOverrides(t *testing.T) {
	reset(t)
	dir := t.TempDir()
	cfgFile = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("max_dimension: 1024\ntemp_max_age: 1h\nlog_level: debug\n"), 0o644))
	t.Setenv("SCAN_INDEX", service.IndexMemory)
	InitConfig()

	cfg := ServiceConfig()
	assert.Equal(t, service.IndexMemory, cfg.Index)
	assert.Equal(t, 1024, cfg.MaxDimension)
	assert.Equal(t, time.Hour, cfg.TempMaxAge)

	logger, err := NewLogger()
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	rootDir = dir
	assert.Equal(t, dir, ServiceConfig().Root)

	logLevel = "loud"
	_, err = NewLogger()
	assert.Error(t, err)
}
