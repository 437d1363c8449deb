package telemetry

import "context"

// Sink receives telemetry records. Implementations must be safe for
// concurrent use and write each record atomically.
type Sink interface {
	Record(ctx context.Context, rec Record) error
	Close() error
}

// Reader returns the most recent stored records, newest first.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// Record is one telemetry sample. Readings are kept exactly as the
// instrument reported them.
type Record struct {
	Timestamp int64  `json:"timestamp"`
	Voltage   string `json:"voltage"`
	Current   string `json:"current"`
	Power     string `json:"power"`
}
