package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mattsolo1/grove-scanner/pkg/service"
)

var (
	cfgFile  string
	logLevel string
	rootDir  string
)

func InitConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		configDir := filepath.Join(home, ".config", "scan")
		viper.AddConfigPath(configDir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("SCAN")
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	viper.SetDefault("root", filepath.Join(home, ".local", "share", "scan", "SimplyScanner"))
	viper.SetDefault("index", service.IndexSQLite)
	viper.SetDefault("cache_bytes", service.DefaultCacheBytes)
	viper.SetDefault("max_dimension", 2048)
	viper.SetDefault("jpeg_quality", 85)
	viper.SetDefault("thumb_size", 200)
	viper.SetDefault("temp_max_age", service.DefaultTempMaxAge)
	viper.SetDefault("log_level", "warn")

	// A missing config file is fine; defaults and env apply.
	_ = viper.ReadInConfig()
}

// NewLogger builds the CLI logger. The --log-level flag wins over config.
func NewLogger() (*logrus.Logger, error) {
	level := logLevel
	if level == "" {
		level = viper.GetString("log_level")
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(lvl)
	return logger, nil
}

// ServiceConfig reads the service configuration from viper.
func ServiceConfig() *service.Config {
	root := rootDir
	if root == "" {
		root = viper.GetString("root")
	}
	return &service.Config{
		Root:         root,
		Index:        viper.GetString("index"),
		CacheBytes:   viper.GetInt64("cache_bytes"),
		MaxDimension: viper.GetInt("max_dimension"),
		JPEGQuality:  viper.GetInt("jpeg_quality"),
		ThumbSize:    viper.GetInt("thumb_size"),
		TempMaxAge:   viper.GetDuration("temp_max_age"),
	}
}

func InitService(logger *logrus.Logger) (*service.Service, error) {
	svc, err := service.New(ServiceConfig(), logrus.NewEntry(logger))
	if err != nil {
		return nil, err
	}

	// Stale scratch entries are left behind only by interrupted runs.
	if n := svc.CleanupTemp(0); n > 0 {
		logger.WithField("removed", n).Debug("Removed stale temp entries")
	}
	return svc, nil
}

func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/scan/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&rootDir, "root", "", "storage root (overrides config)")
}
