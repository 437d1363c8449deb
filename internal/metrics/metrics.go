package metrics

import (
	"time"

	"codeberg.org/mutker/psuctl/internal/errors"
	"codeberg.org/mutker/psuctl/internal/logger"
	"codeberg.org/mutker/psuctl/internal/scpi"
	"codeberg.org/mutker/psuctl/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "psuctl"

type service struct {
	exchanges    *prometheus.CounterVec
	exchangeTime prometheus.Histogram
	ticks        prometheus.Counter
	tickFailures prometheus.Counter
	lastSample   prometheus.Gauge
}

// No-op implementation
type noopCollector struct{}

var (
	_ Collector = (*service)(nil)
	_ Collector = noopCollector{}
)

// NewService registers the collectors on reg. A nil registerer yields a
// no-op collector.
func NewService(reg prometheus.Registerer) (Collector, error) {
	if reg == nil {
		logger.Debug().Msg("Metrics registry not set, using no-op collector")
		return noopCollector{}, nil
	}

	s := &service{
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scpi",
			Name:      "exchanges_total",
			Help:      "Instrument exchanges by outcome.",
		}, []string{"outcome"}),
		exchangeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scpi",
			Name:      "exchange_duration_seconds",
			Help:      "Duration of a complete instrument exchange, dial to response.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "ticks_total",
			Help:      "Telemetry ticks attempted.",
		}),
		tickFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "tick_failures_total",
			Help:      "Telemetry ticks that produced no record.",
		}),
		lastSample: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "last_sample_timestamp_seconds",
			Help:      "Unix time of the last recorded telemetry sample.",
		}),
	}

	for _, c := range []prometheus.Collector{s.exchanges, s.exchangeTime, s.ticks, s.tickFailures, s.lastSample} {
		if err := reg.Register(c); err != nil {
			return nil, errors.New().Wrap(ErrRegisterFailed, err)
		}
	}

	// Pre-create label values so every outcome is exported from the start.
	for _, outcome := range []string{OutcomeOK, OutcomeConnection, OutcomeTimeout, OutcomeProtocol, OutcomeOther} {
		s.exchanges.WithLabelValues(outcome)
	}

	logger.Debug().Msg("Metrics collectors registered")

	return s, nil
}

func (s *service) ObserveExchange(_ string, elapsed time.Duration, err error) {
	s.exchanges.WithLabelValues(Outcome(err)).Inc()
	s.exchangeTime.Observe(elapsed.Seconds())
}

func (s *service) ObserveTick(rec *telemetry.Record, err error) {
	s.ticks.Inc()
	if err != nil || rec == nil {
		s.tickFailures.Inc()
		return
	}
	s.lastSample.Set(float64(rec.Timestamp))
}

// Outcome maps an exchange error onto its label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case scpi.IsTimeoutError(err):
		return OutcomeTimeout
	case scpi.IsProtocolError(err):
		return OutcomeProtocol
	case scpi.IsConnectionError(err):
		return OutcomeConnection
	default:
		return OutcomeOther
	}
}

// No-op implementation
func (noopCollector) ObserveExchange(string, time.Duration, error) {}

func (noopCollector) ObserveTick(*telemetry.Record, error) {}
