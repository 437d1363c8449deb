package telemetry

import (
	"context"

	"codeberg.org/mutker/psuctl/internal/errors"
)

// MultiSink fans records out to several sinks.
type MultiSink struct {
	sinks []Sink
}

var _ Sink = (*MultiSink)(nil)

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Record delivers rec to every sink, even after one fails, and returns the
// joined errors.
func (m *MultiSink) Record(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// noopSink is used when the store is disabled.
type noopSink struct{}

func (noopSink) Record(context.Context, Record) error {
	return nil
}

func (noopSink) Close() error {
	return nil
}
