// Package statsdb persists a completed depacketizer run's Stats into a
// SQLite database, schema-migrated with golang-migrate.
package statsdb

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/emit-sds/l1a-depacketizer/internal/monitoring"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/stats"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a sqlite connection holding one run per row.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// migrates its schema to the latest version.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sdp: opening stats database: %w", err)
	}
	db := &DB{sqlDB}
	if err := db.migrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrateUp() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sdp: building migration source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sdp: building migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("sdp: building migrator: %w", err)
	}
	m.Log = &migrateLogger{}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("sdp: migrating stats database: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[statsdb migrate] "+format, v...)
}
func (l *migrateLogger) Verbose() bool { return false }

// InsertRun persists one completed run's stats, keyed by runID.
func (db *DB) InsertRun(runID string, startedAtUnixNanos int64, s *stats.Stats) error {
	const insert = `
		INSERT INTO runs (
			run_id, started_at_unix_nanos, packets_read, bytes_read,
			frames_emitted, truncated_frame_count, invalid_packet_count,
			sequence_error_count, missing_sequence_count, corrupt_frame_names, report
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.Exec(insert,
		runID,
		startedAtUnixNanos,
		s.PacketsRead,
		s.BytesRead,
		s.FramesEmitted,
		s.TruncatedFrameCount,
		s.InvalidPacketCount,
		s.SequenceErrorCount,
		s.MissingSequenceCount(),
		strings.Join(s.CorruptFrameNames(), ","),
		s.Report(),
	)
	if err != nil {
		return fmt.Errorf("sdp: inserting run %s: %w", runID, err)
	}
	return nil
}
