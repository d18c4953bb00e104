// Package sqlite provides the single embedded relational store backing the
// edge prediction and sync core. Uses WAL mode for crash-safe writes from
// the one goroutine group that writes at a time.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and a 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer; one connection avoids SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// Conn exposes the underlying handle for packages (e.g. the sync buffer,
// the registry) that need direct transaction control.
func (d *DB) Conn() *sql.DB {
	return d.db
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Inbound telemetry tables. This module only reads these; their
		// writers are out of scope, but the schema lives here because the
		// Aligner queries it directly.
		`CREATE TABLE IF NOT EXISTS plc_logs (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp        INTEGER NOT NULL,
			tag_name         TEXT NOT NULL,
			value            REAL NOT NULL,
			data_quality_flag TEXT NOT NULL DEFAULT 'good',
			ring_number      INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_plc_logs_ring_tag ON plc_logs(ring_number, tag_name)`,
		`CREATE INDEX IF NOT EXISTS idx_plc_logs_timestamp ON plc_logs(timestamp)`,

		`CREATE TABLE IF NOT EXISTS attitude_logs (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp            INTEGER NOT NULL,
			pitch                REAL,
			roll                 REAL,
			yaw                  REAL,
			horizontal_deviation REAL,
			vertical_deviation   REAL,
			ring_number          INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attitude_logs_ring ON attitude_logs(ring_number)`,

		`CREATE TABLE IF NOT EXISTS monitoring_logs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			sensor_type TEXT NOT NULL,
			value       REAL NOT NULL,
			ring_number INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_monitoring_logs_ring_type ON monitoring_logs(ring_number, sensor_type)`,

		// Ring Aligner output. Exclusively written by the Aligner, except
		// for sync_status which the Sync Core mutates after upload.
		`CREATE TABLE IF NOT EXISTS ring_summary (
			ring_number            INTEGER PRIMARY KEY,
			start_time             INTEGER NOT NULL,
			end_time               INTEGER NOT NULL,
			thrust_mean            REAL,
			thrust_std             REAL,
			torque_mean            REAL,
			torque_std             REAL,
			advance_rate_mean      REAL,
			advance_rate_std       REAL,
			chamber_pressure_mean  REAL,
			chamber_pressure_std   REAL,
			grout_volume           REAL,
			grout_pressure_mean    REAL,
			pitch_mean             REAL,
			roll_mean              REAL,
			yaw_mean               REAL,
			horizontal_deviation   REAL,
			vertical_deviation     REAL,
			specific_energy        REAL,
			theoretical_volume     REAL,
			ground_loss_rate       REAL,
			volume_loss_ratio      REAL,
			settlement_value       REAL,
			data_completeness_flag TEXT NOT NULL DEFAULT 'incomplete',
			sync_status            TEXT NOT NULL DEFAULT 'pending',
			created_at             INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ring_summary_sync ON ring_summary(sync_status, data_completeness_flag)`,
		`CREATE INDEX IF NOT EXISTS idx_ring_summary_start ON ring_summary(start_time)`,

		// Model Registry. Exclusively mutated by the Model Registry's
		// lifecycle operations (deploy/activate/retire).
		`CREATE TABLE IF NOT EXISTS model_metadata (
			model_name                 TEXT NOT NULL,
			model_version              TEXT NOT NULL,
			model_type                 TEXT NOT NULL,
			onnx_path                  TEXT NOT NULL,
			onnx_checksum              TEXT NOT NULL,
			model_size_bytes           INTEGER NOT NULL DEFAULT 0,
			training_date              INTEGER,
			training_data_range        TEXT NOT NULL DEFAULT '',
			training_project_id        TEXT NOT NULL DEFAULT '',
			geological_zone            TEXT NOT NULL DEFAULT 'all',
			validation_r2              REAL,
			validation_rmse            REAL,
			validation_mae             REAL,
			feature_list               TEXT NOT NULL DEFAULT '[]',
			feature_engineering_version TEXT NOT NULL DEFAULT '',
			output_format_version      TEXT NOT NULL DEFAULT 'v2_confidence',
			hyperparameters            TEXT NOT NULL DEFAULT '{}',
			deployment_status          TEXT NOT NULL DEFAULT 'staged',
			deployed_at                INTEGER,
			retired_at                 INTEGER,
			load_time_seconds          REAL,
			avg_inference_time_ms      REAL,
			created_at                 INTEGER NOT NULL,
			updated_at                 INTEGER NOT NULL,
			PRIMARY KEY (model_name, model_version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_model_metadata_status ON model_metadata(deployment_status)`,
		`CREATE INDEX IF NOT EXISTS idx_model_metadata_zone ON model_metadata(geological_zone)`,

		// Inference Service output. Exclusively created by the Inference
		// Service; back-fill updates actual/error fields afterward.
		`CREATE TABLE IF NOT EXISTS prediction_results (
			id                            INTEGER PRIMARY KEY AUTOINCREMENT,
			ring_number                   INTEGER NOT NULL,
			timestamp                     INTEGER NOT NULL,
			model_name                    TEXT NOT NULL,
			model_version                 TEXT NOT NULL,
			model_type                    TEXT NOT NULL,
			geological_zone               TEXT NOT NULL DEFAULT 'all',
			predicted_settlement          REAL,
			settlement_lower_bound        REAL,
			settlement_upper_bound        REAL,
			predicted_displacement        REAL,
			displacement_lower_bound      REAL,
			displacement_upper_bound      REAL,
			predicted_groundwater_change  REAL,
			groundwater_lower_bound       REAL,
			groundwater_upper_bound       REAL,
			prediction_confidence         REAL NOT NULL DEFAULT 0,
			inference_time_ms             REAL NOT NULL DEFAULT 0,
			feature_completeness          REAL NOT NULL DEFAULT 0,
			quality_flag                  TEXT NOT NULL DEFAULT 'normal',
			actual_settlement             REAL,
			actual_displacement           REAL,
			actual_groundwater_change     REAL,
			prediction_error              REAL,
			absolute_error                REAL,
			created_at                    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prediction_results_ring ON prediction_results(ring_number)`,
		`CREATE INDEX IF NOT EXISTS idx_prediction_results_timestamp ON prediction_results(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_prediction_results_model ON prediction_results(model_name, model_version)`,
		`CREATE INDEX IF NOT EXISTS idx_prediction_results_quality ON prediction_results(quality_flag)`,

		// Performance Monitor output.
		`CREATE TABLE IF NOT EXISTS model_performance_metrics (
			id                     INTEGER PRIMARY KEY AUTOINCREMENT,
			model_name             TEXT NOT NULL,
			evaluation_date        INTEGER NOT NULL,
			evaluation_data_range  TEXT NOT NULL DEFAULT '',
			num_predictions        INTEGER NOT NULL,
			r2_score               REAL NOT NULL,
			rmse                   REAL NOT NULL,
			mae                    REAL NOT NULL,
			mape                   REAL,
			confidence_coverage    REAL NOT NULL,
			drift_detected         INTEGER NOT NULL DEFAULT 0,
			drift_severity         TEXT NOT NULL DEFAULT '',
			baseline_rmse          REAL,
			rmse_increase_percent  REAL,
			triggered_retraining   INTEGER NOT NULL DEFAULT 0,
			retraining_reason      TEXT NOT NULL DEFAULT '',
			created_at             INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_perf_metrics_date ON model_performance_metrics(evaluation_date)`,
		`CREATE INDEX IF NOT EXISTS idx_perf_metrics_drift ON model_performance_metrics(drift_detected)`,

		// Sync Core's durable store-and-forward buffer. Exclusively
		// mutated by the Sync Core.
		`CREATE TABLE IF NOT EXISTS sync_buffer (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			item_type       TEXT NOT NULL,
			item_id         TEXT NOT NULL,
			payload         BLOB NOT NULL,
			priority        INTEGER NOT NULL DEFAULT 0,
			retry_count     INTEGER NOT NULL DEFAULT 0,
			last_attempt_at INTEGER,
			created_at      INTEGER NOT NULL,
			metadata        TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_buffer_item ON sync_buffer(item_type, item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_buffer_priority ON sync_buffer(priority DESC, created_at ASC)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func unixToTimePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
