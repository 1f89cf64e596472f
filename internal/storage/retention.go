package storage

import (
	"context"
	"database/sql"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/errors"
)

// Cleanup deletes finished sessions that started more than RetentionDays
// ago, together with their records. Running sessions are kept. A zero
// RetentionDays disables cleanup.
func (r *Repository) Cleanup(ctx context.Context) (int64, error) {
	if r.cfg.RetentionDays == 0 {
		return 0, nil
	}

	cutoff := r.now().Add(-time.Duration(r.cfg.RetentionDays) * 24 * time.Hour)

	return r.DeleteSessionsBefore(ctx, cutoff)
}

// DeleteSessionsBefore deletes finished sessions started before cutoff.
func (r *Repository) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	errFactory := errors.New()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				if !errors.Is(err, sql.ErrTxDone) {
					r.logger.Debug().Err(err).Msg("Failed to rollback cleanup")
				}
			}
		}
	}()

	const expired = "SELECT id FROM sessions WHERE started_at < ? AND status != ?"
	args := []any{cutoff.UnixMilli(), string(StatusRunning)}

	for _, table := range tableNames() {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE session_id IN ("+expired+")", args...); err != nil {
			return 0, errFactory.WithData(ErrTransactionFailed, struct {
				Phase string
				Table string
				Error string
			}{
				Phase: "delete_records",
				Table: table,
				Error: err.Error(),
			})
		}
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE started_at < ? AND status != ?", args...)
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	deletedSessions.Add(float64(deleted))
	r.logger.Info().
		Int64("sessions", deleted).
		Time("cutoff", cutoff).
		Msg("Old sessions cleaned up")

	return deleted, nil
}
