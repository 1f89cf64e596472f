package collector

import "codeberg.org/mutker/droidmetrics/internal/errors"

const (
	ErrNotConnected   = errors.ErrorCode("collector_not_connected")
	ErrInvalidPackage = errors.ErrorCode("collector_invalid_package")
	ErrNoData         = errors.ErrorCode("collector_no_data")
)
