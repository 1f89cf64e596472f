// Package storage persists monitoring sessions and their telemetry records in
// sqlite.
package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/logger"
	"codeberg.org/mutker/droidmetrics/internal/telemetry"
	_ "github.com/mattn/go-sqlite3"
)

type Option func(*Repository)

// WithClock replaces the clock used for session timestamps and retention.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

type Repository struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
	now    func() time.Time
}

// Open opens or creates the database at cfg.DBPath and brings its schema up
// to date.
func Open(cfg Config, log logger.Logger, opts ...Option) (*Repository, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Telemetry repository initialized")

	r := &Repository{
		db:     db,
		logger: log,
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

func (r *Repository) Close() error {
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Telemetry repository closed gracefully")

	return nil
}

// StoreBatch inserts records of one type for a session in a single
// transaction. Either every record is stored or none is.
func (r *Repository) StoreBatch(
	ctx context.Context,
	sessionID int64,
	recordType telemetry.RecordType,
	records []telemetry.Record,
) error {
	errFactory := errors.New()

	if len(records) == 0 {
		return nil
	}

	table, ok := recordTables[recordType]
	if !ok {
		return errFactory.WithData(ErrUnknownRecordType, recordType)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				if !errors.Is(err, sql.ErrTxDone) {
					r.logger.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, table.insertSQL())
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		values, ok := table.values(rec)
		if !ok {
			return errFactory.WithData(ErrRecordMismatch, struct {
				Table string
				Got   telemetry.RecordType
			}{
				Table: table.name,
				Got:   rec.Type(),
			})
		}

		args := append([]any{sessionID, rec.CapturedAt().UnixMilli()}, values...)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errFactory.WithData(ErrTransactionFailed, struct {
				Phase string
				Table string
				Error string
			}{
				Phase: "insert",
				Table: table.name,
				Error: err.Error(),
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	storedRecords.WithLabelValues(string(recordType)).Add(float64(len(records)))
	r.logger.Debug().
		Str("table", table.name).
		Int("records", len(records)).
		Int64("session", sessionID).
		Msg("Stored telemetry batch")

	return nil
}
