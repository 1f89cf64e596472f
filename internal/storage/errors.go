package storage

import "codeberg.org/mutker/droidmetrics/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("storage_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("storage_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("storage_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("storage_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("storage_transaction_failed")

	// Storage Errors
	ErrStorageAccess = errors.ErrorCode("storage_access_failed")
	ErrStorageInit   = errors.ErrInitFailed
	ErrStorageClose  = errors.ErrShutdownFailed

	// Session Errors
	ErrSessionNotFound = errors.ErrorCode("storage_session_not_found")
	ErrSessionEnded    = errors.ErrorCode("storage_session_ended")
	ErrInvalidStatus   = errors.ErrorCode("storage_invalid_status")

	// Record Errors
	ErrUnknownRecordType = errors.ErrorCode("storage_unknown_record_type")
	ErrRecordMismatch    = errors.ErrorCode("storage_record_type_mismatch")
)
