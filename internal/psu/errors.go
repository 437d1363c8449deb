package psu

import "codeberg.org/mutker/psuctl/internal/errors"

const (
	// Argument Errors
	ErrInvalidChannel = errors.ErrorCode("psu_invalid_channel")

	// Exchange Errors
	ErrCommandFailed = errors.ErrorCode("psu_command_failed")
	ErrQueryFailed   = errors.ErrorCode("psu_query_failed")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrInvalidChannel: "Channel out of range",
		ErrCommandFailed:  "Instrument command failed",
		ErrQueryFailed:    "Instrument query failed",
	})
}
