package telemetry

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/psuctl/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
	defaultLogPath  = "telemetry.log"

	defaultInterval      = time.Second
	defaultBatchSize     = 10
	defaultFlushInterval = 5 * time.Second
)

type Config struct {
	LogPath       string
	DBPath        string
	BackupDir     string
	Interval      time.Duration
	BatchSize     int
	FlushInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		LogPath:       defaultLogPath,
		Interval:      defaultInterval,
		BatchSize:     defaultBatchSize,
		FlushInterval: defaultFlushInterval,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.LogPath == "" {
		return errFactory.New(ErrInvalidLogPath)
	}
	if c.Interval <= 0 {
		return errFactory.WithData(ErrInvalidInterval, c.Interval)
	}
	return nil
}

// StoreEnabled reports whether records are mirrored into SQLite.
func (c Config) StoreEnabled() bool {
	return c.DBPath != ""
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}
