package storage

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/errors"
	"github.com/google/uuid"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusCompleted, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

type Session struct {
	ID        int64      `json:"id"`
	UUID      string     `json:"uuid"`
	Name      string     `json:"name"`
	Device    string     `json:"device"`
	Packages  []string   `json:"packages"`
	Status    Status     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Duration returns how long the session ran, or has run so far.
func (s Session) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}

	return now.Sub(s.StartedAt)
}

const sessionColumns = "id, uuid, name, device, packages, status, started_at, ended_at, error"

// CreateSession starts a running session. An empty name gets a generated
// one.
func (r *Repository) CreateSession(ctx context.Context, name, device string, packages []string) (*Session, error) {
	errFactory := errors.New()

	started := r.now()
	s := &Session{
		UUID:      uuid.NewString(),
		Name:      name,
		Device:    device,
		Packages:  packages,
		Status:    StatusRunning,
		StartedAt: started,
	}
	if s.Name == "" {
		s.Name = "session-" + started.UTC().Format("20060102-150405")
	}

	res, err := r.db.ExecContext(ctx, `
        INSERT INTO sessions (uuid, name, device, packages, status, started_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `, s.UUID, s.Name, s.Device, strings.Join(packages, ","), string(s.Status), started.UnixMilli())
	if err != nil {
		return nil, errFactory.WithData(ErrStorageAccess, struct {
			Phase string
			Error string
		}{
			Phase: "create_session",
			Error: err.Error(),
		})
	}

	if s.ID, err = res.LastInsertId(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	r.logger.Info().
		Int64("id", s.ID).
		Str("uuid", s.UUID).
		Str("device", device).
		Strs("packages", packages).
		Msg("Session started")

	return s, nil
}

// EndSession moves a running session to a final status.
func (r *Repository) EndSession(ctx context.Context, id int64, status Status, reason string) error {
	errFactory := errors.New()

	if !status.Valid() || status == StatusRunning {
		return errFactory.WithData(ErrInvalidStatus, status)
	}

	res, err := r.db.ExecContext(ctx, `
        UPDATE sessions
        SET status = ?, ended_at = ?, error = ?
        WHERE id = ? AND status = ?
    `, string(status), r.now().UnixMilli(), nullString(reason), id, string(StatusRunning))
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}
	if affected == 0 {
		if _, err := r.GetSession(ctx, id); err != nil {
			return err
		}
		return errFactory.WithData(ErrSessionEnded, id)
	}

	r.logger.Info().
		Int64("id", id).
		Str("status", string(status)).
		Msg("Session ended")

	return nil
}

func (r *Repository) GetSession(ctx context.Context, id int64) (*Session, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.New().WithData(ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, errors.New().Wrap(ErrStorageAccess, err)
	}

	return s, nil
}

// FindSession resolves a numeric id or a session uuid.
func (r *Repository) FindSession(ctx context.Context, ref string) (*Session, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return r.GetSession(ctx, id)
	}

	row := r.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE uuid = ?", ref)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.New().WithData(ErrSessionNotFound, ref)
	}
	if err != nil {
		return nil, errors.New().Wrap(ErrStorageAccess, err)
	}

	return s, nil
}

// ListSessions returns sessions newest first. A limit below 1 returns all.
func (r *Repository) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions ORDER BY started_at DESC, id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New().Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, errors.New().Wrap(ErrStorageAccess, err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New().Wrap(ErrStorageAccess, err)
	}

	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s        Session
		packages string
		status   string
		started  int64
		ended    sql.NullInt64
		reason   sql.NullString
	)

	if err := row.Scan(&s.ID, &s.UUID, &s.Name, &s.Device, &packages, &status, &started, &ended, &reason); err != nil {
		return nil, err
	}

	if packages != "" {
		s.Packages = strings.Split(packages, ",")
	}
	s.Status = Status(status)
	s.StartedAt = time.UnixMilli(started)
	if ended.Valid {
		t := time.UnixMilli(ended.Int64)
		s.EndedAt = &t
	}
	s.Error = reason.String

	return &s, nil
}
