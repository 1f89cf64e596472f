package monitor

import "codeberg.org/mutker/droidmetrics/internal/errors"

const (
	ErrAlreadyRunning = errors.ErrAlreadyRunning
	ErrNotRunning     = errors.ErrorCode("monitor_not_running")
	ErrNothingToDo    = errors.ErrorCode("monitor_nothing_to_collect")
	ErrCycleFailed    = errors.ErrorCode("monitor_cycle_failed")
	ErrDisconnected   = errors.ErrorCode("monitor_device_disconnected")
)
