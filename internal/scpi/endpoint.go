package scpi

import (
	"net"
	"strconv"
)

// DefaultPort is the conventional raw-socket SCPI port.
const DefaultPort = 5025

// Endpoint identifies an instrument on the network.
type Endpoint struct {
	Host string
	Port int
}

// Address returns the host:port form used for dialing.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return e.Address()
}
