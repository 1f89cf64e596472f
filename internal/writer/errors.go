package writer

import "codeberg.org/mutker/droidmetrics/internal/errors"

const (
	ErrClosed            = errors.ErrorCode("writer_closed")
	ErrUnknownRecordType = errors.ErrorCode("writer_unknown_record_type")
	ErrFlushFailed       = errors.ErrorCode("writer_flush_failed")
	ErrInvalidConfig     = errors.ErrInvalidConfig
)
