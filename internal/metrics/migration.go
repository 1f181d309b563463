package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"codeberg.org/mutker/vibesd/internal/errors"
	"codeberg.org/mutker/vibesd/internal/logger"
)

const (
	backupPrefix = "metrics-"
	backupLayout = "20060102T150405.000Z"

	resetTablesSQL = `
	   DROP INDEX IF EXISTS idx_pipeline_metrics_ts;
	   DROP TABLE IF EXISTS pipeline_metrics;
	   DROP TABLE IF EXISTS schema_versions;`
)

// migrate brings db to SchemaVersion. A database stamped with any other
// version is archived to the backup dir before its tables are replaced;
// history is not converted between layouts.
func migrate(db *sql.DB, cfg Config, log logger.Logger) error {
	errFactory := errors.New()

	version, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}

	switch version {
	case SchemaVersion:
		log.Debug().Int("version", version).Msg("Metrics schema is current")
		return nil
	case 0:
		return InitSchema(db, log)
	}

	dir := cfg.backupDir()
	path, err := archive(db, dir, version)
	if err != nil {
		return errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "archive",
			Path:  dir,
			Error: err.Error(),
		})
	}

	log.Warn().
		Int("from", version).
		Int("to", SchemaVersion).
		Str("backup", path).
		Msg("Metrics schema changed, previous history archived")

	if removed, err := pruneBackups(dir, cfg.BackupRetention); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Failed to prune metrics backups")
	} else if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Pruned old metrics backups")
	}

	if _, err := db.Exec(resetTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "reset_tables",
			Error: err.Error(),
		})
	}

	return InitSchema(db, log)
}

// archive copies the live database into dir. File names sort by creation
// time.
func archive(db *sql.DB, dir string, version int) (string, error) {
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s%s-v%d.db", backupPrefix, time.Now().UTC().Format(backupLayout), version)
	path := filepath.Join(dir, name)

	// VACUUM INTO takes a literal, not a bound parameter
	quoted := strings.ReplaceAll(path, "'", "''")
	if _, err := db.Exec("VACUUM INTO '" + quoted + "'"); err != nil {
		return "", err
	}

	return path, nil
}

// pruneBackups keeps the newest keep archives in dir. keep <= 0 keeps all.
func pruneBackups(dir string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, backupPrefix+"*.db"))
	if err != nil {
		return 0, err
	}
	if len(matches) <= keep {
		return 0, nil
	}

	sort.Strings(matches)

	var errs []error
	stale := matches[:len(matches)-keep]
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
		}
	}

	return len(stale) - len(errs), errors.Join(errs...)
}
