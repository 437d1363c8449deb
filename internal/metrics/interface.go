package metrics

import (
	"codeberg.org/mutker/psuctl/internal/scpi"
	"codeberg.org/mutker/psuctl/internal/telemetry"
)

// Collector instruments transport exchanges and telemetry ticks.
type Collector interface {
	scpi.Observer
	telemetry.TickObserver
}

// Exchange outcome label values.
const (
	OutcomeOK         = "ok"
	OutcomeConnection = "connection"
	OutcomeTimeout    = "timeout"
	OutcomeProtocol   = "protocol"
	OutcomeOther      = "other"
)
