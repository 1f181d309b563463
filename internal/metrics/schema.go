package metrics

import (
	"database/sql"

	"codeberg.org/mutker/vibesd/internal/errors"
	"codeberg.org/mutker/vibesd/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS pipeline_metrics (
	       id               INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp_ms     INTEGER NOT NULL,
	       total_requests   INTEGER NOT NULL CHECK (total_requests >= 0),
	       cache_hits       INTEGER NOT NULL CHECK (cache_hits >= 0),
	       error_count      INTEGER NOT NULL CHECK (error_count >= 0),
	       avg_latency_ms   REAL    NOT NULL,
	       last_latency_ms  INTEGER NOT NULL,
	       mood             TEXT    NOT NULL,
	       genre            TEXT    NOT NULL,
	       trend            TEXT    NOT NULL CHECK (trend IN ('RISING', 'FALLING', 'STABLE')),
	       bpm              REAL    NOT NULL,
	       theme            TEXT    NOT NULL,
	       directive        TEXT    NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS idx_pipeline_metrics_ts ON pipeline_metrics (timestamp_ms);`

	insertMetricsSQL = `
    INSERT INTO pipeline_metrics (
        timestamp_ms,
        total_requests, cache_hits, error_count,
        avg_latency_ms, last_latency_ms,
        mood, genre, trend, bpm, theme, directive
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// InitSchema creates the pipeline_metrics tables and stamps SchemaVersion.
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating pipeline metrics tables")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				// Only log if it's not the "already committed" error
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	// Execute schema creation
	log.Debug().Str("sql", createTablesSQL).Msg("Executing SQL statement")
	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	log.Debug().Msg("Stamping schema version")
	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the newest recorded schema version.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists reports whether tableName is present in sqlite_master.
func TableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}

// GetInsertMetricSQL returns the prepared insert for one pipeline sample.
func GetInsertMetricSQL() string {
	return insertMetricsSQL
}
