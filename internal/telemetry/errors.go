package telemetry

import "codeberg.org/mutker/psuctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig   = errors.ErrInvalidConfig
	ErrInvalidLogPath  = errors.ErrorCode("telemetry_invalid_log_path")
	ErrInvalidInterval = errors.ErrInvalidInterval

	// Collection Errors
	ErrSampleFailed = errors.ErrorCode("telemetry_sample_failed")
	ErrSinkFailed   = errors.ErrorCode("telemetry_sink_failed")

	// Storage Errors
	ErrStorageAccess          = errors.ErrorCode("telemetry_storage_access_failed")
	ErrStorageInit            = errors.ErrorCode("telemetry_storage_init_failed")
	ErrStorageClose           = errors.ErrorCode("telemetry_storage_close_failed")
	ErrSchemaInitFailed       = errors.ErrorCode("telemetry_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("telemetry_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("telemetry_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("telemetry_transaction_failed")
	ErrSinkClosed             = errors.ErrorCode("telemetry_sink_closed")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrInvalidLogPath:         "Telemetry log path is empty",
		ErrSampleFailed:           "Telemetry sample failed",
		ErrSinkFailed:             "Telemetry record could not be written",
		ErrStorageAccess:          "Telemetry storage access failed",
		ErrStorageInit:            "Telemetry storage initialization failed",
		ErrStorageClose:           "Telemetry storage close failed",
		ErrSchemaInitFailed:       "Telemetry schema initialization failed",
		ErrSchemaValidationFailed: "Telemetry schema validation failed",
		ErrSchemaMigrationFailed:  "Telemetry schema migration failed",
		ErrTransactionFailed:      "Telemetry transaction failed",
		ErrSinkClosed:             "Telemetry sink is closed",
	})
}
