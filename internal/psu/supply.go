package psu

import (
	"context"
	"fmt"

	"codeberg.org/mutker/psuctl/internal/errors"
	"codeberg.org/mutker/psuctl/internal/logger"
	"codeberg.org/mutker/psuctl/internal/scpi"
)

// Supply implements Controller on top of a stateless transport. It keeps no
// channel state; every call goes to the instrument.
//
// Multi-step operations are not atomic. If a later step fails the earlier
// steps stay applied on the instrument, and two concurrent calls against the
// same channel may interleave their commands.
type Supply struct {
	tx  scpi.Sender
	log logger.Logger
}

var _ Controller = (*Supply)(nil)

func NewSupply(tx scpi.Sender) *Supply {
	return &Supply{
		tx:  tx,
		log: logger.WithComponent("psu"),
	}
}

// SetVoltageAndCurrent programs voltage first, then current. The current is
// not sent if the voltage command fails.
func (s *Supply) SetVoltageAndCurrent(ctx context.Context, ep scpi.Endpoint, ch Channel, voltage, current string) error {
	if err := ch.Validate(); err != nil {
		return err
	}

	if err := s.command(ctx, ep, scpi.SetVoltage(int(ch), voltage)); err != nil {
		return err
	}

	return s.command(ctx, ep, scpi.SetCurrent(int(ch), current))
}

func (s *Supply) EnableOutput(ctx context.Context, ep scpi.Endpoint, ch Channel) error {
	if err := ch.Validate(); err != nil {
		return err
	}
	return s.command(ctx, ep, scpi.OutputState(int(ch), true))
}

func (s *Supply) DisableOutput(ctx context.Context, ep scpi.Endpoint, ch Channel) error {
	if err := ch.Validate(); err != nil {
		return err
	}
	return s.command(ctx, ep, scpi.OutputState(int(ch), false))
}

// EnableChannel commits the setpoints before energizing the output.
func (s *Supply) EnableChannel(ctx context.Context, ep scpi.Endpoint, ch Channel, voltage, current string) error {
	if err := s.SetVoltageAndCurrent(ctx, ep, ch, voltage, current); err != nil {
		return err
	}

	if err := s.EnableOutput(ctx, ep, ch); err != nil {
		return err
	}

	s.log.Info().
		Int("channel", int(ch)).
		Str("voltage", voltage).
		Str("current", current).
		Msg("Channel enabled")

	return nil
}

func (s *Supply) DisableChannel(ctx context.Context, ep scpi.Endpoint, ch Channel) error {
	if err := s.DisableOutput(ctx, ep, ch); err != nil {
		return err
	}

	s.log.Info().Int("channel", int(ch)).Msg("Channel disabled")

	return nil
}

// PollChannel reads the measured voltage and current of one channel. The
// current is not queried if the voltage query fails.
func (s *Supply) PollChannel(ctx context.Context, ep scpi.Endpoint, ch Channel) (ChannelStatus, error) {
	if err := ch.Validate(); err != nil {
		return ChannelStatus{}, err
	}

	voltage, err := s.query(ctx, ep, scpi.MeasureChannelVoltage(int(ch)))
	if err != nil {
		return ChannelStatus{}, err
	}

	current, err := s.query(ctx, ep, scpi.MeasureChannelCurrent(int(ch)))
	if err != nil {
		return ChannelStatus{}, err
	}

	return ChannelStatus{Voltage: voltage, Current: current}, nil
}

// GetAllStatus polls channels 1 through 4 in order. The result always holds
// four entries; channels that failed carry Unavailable readings and their
// errors are joined into the returned error.
func (s *Supply) GetAllStatus(ctx context.Context, ep scpi.Endpoint) (Status, error) {
	status := make(Status, 0, len(Channels))

	var errs []error
	for _, ch := range Channels {
		cs, err := s.PollChannel(ctx, ep, ch)
		if err != nil {
			s.log.Debug().Err(err).Int("channel", int(ch)).Msg("Channel poll failed")
			errs = append(errs, fmt.Errorf("%s: %w", ch.Label(), err))
			cs = ChannelStatus{Voltage: Unavailable, Current: Unavailable}
		}
		status = append(status, Entry{Channel: ch, ChannelStatus: cs})
	}

	return status, errors.Join(errs...)
}

func (s *Supply) command(ctx context.Context, ep scpi.Endpoint, cmd string) error {
	s.log.Debug().Str("endpoint", ep.String()).Str("command", cmd).Msg("Sending command")

	if _, err := s.tx.Send(ctx, ep, cmd); err != nil {
		return errors.New().Wrap(ErrCommandFailed, fmt.Errorf("%s: %w", cmd, err))
	}
	return nil
}

func (s *Supply) query(ctx context.Context, ep scpi.Endpoint, cmd string) (string, error) {
	resp, err := s.tx.Send(ctx, ep, cmd)
	if err != nil {
		return "", errors.New().Wrap(ErrQueryFailed, fmt.Errorf("%s: %w", cmd, err))
	}
	return resp, nil
}
