package metrics

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/vibesd/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm     = 0o755
	defaultDBPath      = "/var/lib/vibesd/metrics.db"
	defaultBatchSize   = 6
	defaultBatchPeriod = time.Minute
	defaultRetention   = 5
)

type Config struct {
	DBPath      string
	Enabled     bool
	BatchSize   int
	BatchPeriod time.Duration

	// BackupDir receives an archive of the database whenever the schema
	// version changes. Empty means a "backups" dir next to DBPath.
	BackupDir string
	// BackupRetention is how many archives to keep; zero keeps all.
	BackupRetention int
}

func DefaultConfig() Config {
	return Config{
		DBPath:          defaultDBPath,
		BatchSize:       defaultBatchSize,
		BatchPeriod:     defaultBatchPeriod,
		BackupRetention: defaultRetention,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if metrics is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.BatchPeriod < 0 || c.BackupRetention < 0 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			BatchSize       int
			BatchPeriod     time.Duration
			BackupRetention int
		}{c.BatchSize, c.BatchPeriod, c.BackupRetention})
	}
	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}
