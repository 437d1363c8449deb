package scpi

import "codeberg.org/mutker/psuctl/internal/errors"

const (
	// ErrConnection: the TCP session could not be established or broke mid-exchange.
	ErrConnection = errors.ErrorCode("scpi_connection_failed")
	// ErrTimeout: no complete response within the bounded wait.
	ErrTimeout = errors.ErrorCode("scpi_timeout")
	// ErrProtocol: a response arrived but is not a terminated line.
	ErrProtocol = errors.ErrorCode("scpi_protocol_error")
	// ErrInvalidCommand: the command cannot be framed as a single line.
	ErrInvalidCommand = errors.ErrorCode("scpi_invalid_command")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrConnection:     "Instrument connection failed",
		ErrTimeout:        "Instrument did not respond in time",
		ErrProtocol:       "Malformed instrument response",
		ErrInvalidCommand: "Invalid instrument command",
	})
}

// IsConnectionError reports whether err is a transport connection failure.
func IsConnectionError(err error) bool {
	return errors.HasCode(err, ErrConnection)
}

// IsTimeoutError reports whether err is a transport timeout.
func IsTimeoutError(err error) bool {
	return errors.HasCode(err, ErrTimeout)
}

// IsProtocolError reports whether err is a malformed response.
func IsProtocolError(err error) bool {
	return errors.HasCode(err, ErrProtocol)
}
