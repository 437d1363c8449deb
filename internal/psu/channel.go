package psu

import (
	"fmt"
	"strconv"
	"strings"

	"codeberg.org/mutker/psuctl/internal/errors"
)

const (
	MinChannel Channel = 1
	MaxChannel Channel = 4

	labelPrefix = "Channel"
)

// Channels lists every addressable channel in ascending order.
var Channels = []Channel{1, 2, 3, 4}

// Validate rejects channel numbers the instrument does not have.
func (c Channel) Validate() error {
	if c < MinChannel || c > MaxChannel {
		return errors.New().WithData(ErrInvalidChannel, int(c))
	}
	return nil
}

// Label is the key used for the channel in status documents.
func (c Channel) Label() string {
	return fmt.Sprintf("%s%d", labelPrefix, int(c))
}

func (c Channel) String() string {
	return c.Label()
}

// ParseChannel accepts either a bare number or a label such as "Channel2".
func ParseChannel(s string) (Channel, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(s), labelPrefix))
	if err != nil {
		return 0, errors.New().Wrap(ErrInvalidChannel, err)
	}

	ch := Channel(n)
	if err := ch.Validate(); err != nil {
		return 0, err
	}
	return ch, nil
}
