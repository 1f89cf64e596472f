package adb

import "codeberg.org/mutker/droidmetrics/internal/errors"

const (
	// Command errors, absorbed as absent data by callers
	ErrCommandFailed   = errors.ErrorCode("adb_command_failed")
	ErrCommandTimeout  = errors.ErrorCode("adb_command_timeout")
	ErrCommandCanceled = errors.ErrorCode("adb_command_canceled")

	// Systemic errors
	ErrInvalidCommand = errors.ErrorCode("adb_invalid_command")
	ErrBridgeMissing  = errors.ErrBridgeMissing
	ErrNoDevice       = errors.ErrNoDevice
	ErrDeviceState    = errors.ErrorCode("adb_device_unavailable")

	// Dispatch errors
	ErrInvalidBatch = errors.ErrorCode("adb_invalid_batch")
)

// IsSystemic reports whether err means the bridge itself is unusable, as
// opposed to a single command failing.
func IsSystemic(err error) bool {
	return errors.HasCode(err, ErrBridgeMissing) ||
		errors.HasCode(err, ErrInvalidCommand) ||
		errors.HasCode(err, ErrNoDevice)
}
