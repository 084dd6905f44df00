package logging

import "log/slog"

// Common field names for consistent logging across the pipeline.
const (
	FieldService   = "service"
	FieldTenantID  = "tenant_id"
	FieldSessionID = "session_id"
	FieldEventName = "event"
	FieldCategory  = "category"
	FieldAction    = "action"
	FieldPage      = "page"
	FieldBatchSize = "batch_size"
	FieldError     = "error"
	FieldDuration  = "duration_ms"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Tenant returns a slog attribute for the tenant ID.
func Tenant(id string) slog.Attr {
	return slog.String(FieldTenantID, id)
}

// Session returns a slog attribute for the session ID.
func Session(id string) slog.Attr {
	return slog.String(FieldSessionID, id)
}

// EventName returns a slog attribute for the event name.
func EventName(name string) slog.Attr {
	return slog.String(FieldEventName, name)
}

// BatchSize returns a slog attribute for a batch size.
func BatchSize(n int) slog.Attr {
	return slog.Int(FieldBatchSize, n)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}
