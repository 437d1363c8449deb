package psu

import (
	"context"

	"codeberg.org/mutker/psuctl/internal/scpi"
)

// Controller manages channel outputs and status queries of a power supply.
type Controller interface {
	// Channel operations
	SetVoltageAndCurrent(ctx context.Context, ep scpi.Endpoint, ch Channel, voltage, current string) error
	EnableOutput(ctx context.Context, ep scpi.Endpoint, ch Channel) error
	DisableOutput(ctx context.Context, ep scpi.Endpoint, ch Channel) error
	EnableChannel(ctx context.Context, ep scpi.Endpoint, ch Channel, voltage, current string) error
	DisableChannel(ctx context.Context, ep scpi.Endpoint, ch Channel) error

	// Status
	PollChannel(ctx context.Context, ep scpi.Endpoint, ch Channel) (ChannelStatus, error)
	GetAllStatus(ctx context.Context, ep scpi.Endpoint) (Status, error)
}

// Domain types
type (
	Channel int

	ChannelStatus struct {
		Voltage string `json:"voltage" yaml:"voltage"`
		Current string `json:"current" yaml:"current"`
	}
)
