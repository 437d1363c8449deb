package telemetry

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/psuctl/internal/errors"
	"codeberg.org/mutker/psuctl/internal/logger"
	"codeberg.org/mutker/psuctl/internal/scpi"
)

// TickObserver is notified after every tick. rec is nil when the tick failed.
type TickObserver interface {
	ObserveTick(rec *Record, err error)
}

type SamplerOption func(*Sampler)

// WithInterval sets the pause between ticks. Non-positive values keep the default.
func WithInterval(d time.Duration) SamplerOption {
	return func(s *Sampler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) SamplerOption {
	return func(s *Sampler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithTickObserver(o TickObserver) SamplerOption {
	return func(s *Sampler) {
		s.observer = o
	}
}

// Sampler periodically reads instrument-wide voltage, current and power and
// hands one Record per tick to a Sink. Failed ticks are logged and skipped;
// only cancellation ends the loop.
type Sampler struct {
	tx       scpi.Sender
	ep       scpi.Endpoint
	sink     Sink
	interval time.Duration
	now      func() time.Time
	observer TickObserver
	log      logger.Logger
}

func NewSampler(tx scpi.Sender, ep scpi.Endpoint, sink Sink, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		tx:       tx,
		ep:       ep,
		sink:     sink,
		interval: defaultInterval,
		now:      time.Now,
		log:      logger.WithComponent("sampler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run samples until ctx is cancelled. It always returns nil.
func (s *Sampler) Run(ctx context.Context) error {
	s.log.Info().
		Str("endpoint", s.ep.String()).
		Dur("interval", s.interval).
		Msg("Telemetry sampler started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Telemetry sampler stopped")
			return nil
		case <-timer.C:
			s.runTick(ctx)
			timer.Reset(s.interval)
		}
	}
}

// Tick performs exactly one sample and delivers it to the sink.
func (s *Sampler) Tick(ctx context.Context) (Record, error) {
	errFactory := errors.New()

	voltage, err := s.query(ctx, scpi.MeasureVoltage)
	if err != nil {
		return Record{}, errFactory.Wrap(ErrSampleFailed, err)
	}

	current, err := s.query(ctx, scpi.MeasureCurrent)
	if err != nil {
		return Record{}, errFactory.Wrap(ErrSampleFailed, err)
	}

	power, err := s.query(ctx, scpi.MeasurePower)
	if err != nil {
		return Record{}, errFactory.Wrap(ErrSampleFailed, err)
	}

	rec := Record{
		Timestamp: s.now().Unix(),
		Voltage:   voltage,
		Current:   current,
		Power:     power,
	}

	if err := s.sink.Record(ctx, rec); err != nil {
		return rec, errFactory.Wrap(ErrSinkFailed, err)
	}

	return rec, nil
}

func (s *Sampler) runTick(ctx context.Context) {
	var (
		rec Record
		err error
	)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during telemetry tick: %v", r)
		}

		// A tick cut short by shutdown is not a failure.
		if err != nil && ctx.Err() != nil {
			return
		}

		if err != nil {
			s.log.Warn().
				Err(err).
				Str("error_code", string(errors.CodeOf(err))).
				Msg("Telemetry tick failed")
		} else {
			s.log.Debug().
				Int64("timestamp", rec.Timestamp).
				Str("voltage", rec.Voltage).
				Str("current", rec.Current).
				Str("power", rec.Power).
				Msg("Telemetry sampled")
		}

		if s.observer != nil {
			if err != nil {
				s.observer.ObserveTick(nil, err)
			} else {
				s.observer.ObserveTick(&rec, nil)
			}
		}
	}()

	rec, err = s.Tick(ctx)
}

func (s *Sampler) query(ctx context.Context, cmd string) (string, error) {
	resp, err := s.tx.Send(ctx, s.ep, cmd)
	if err != nil {
		return "", fmt.Errorf("%s: %w", cmd, err)
	}
	return resp, nil
}
