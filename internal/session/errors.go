package session

import "codeberg.org/mutker/droidmetrics/internal/errors"

const (
	ErrAlreadyRunning = errors.ErrAlreadyRunning
	ErrNotRunning     = errors.ErrorCode("session_not_running")
	ErrStartFailed    = errors.ErrorCode("session_start_failed")
)
