package api

import (
	"net/http"

	"codeberg.org/mutker/psuctl/internal/errors"
	"codeberg.org/mutker/psuctl/internal/psu"
	"codeberg.org/mutker/psuctl/internal/scpi"
)

const (
	ErrInvalidBody    = errors.ErrorCode("api_invalid_body")
	ErrInvalidRequest = errors.ErrorCode("api_invalid_request")
	ErrNoTelemetry    = errors.ErrorCode("api_telemetry_unavailable")
	ErrServeFailed    = errors.ErrServeFailed
	ErrShutdownFailed = errors.ErrShutdownFailed
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrInvalidBody:    "Invalid JSON body",
		ErrInvalidRequest: "Request validation failed",
		ErrNoTelemetry:    "Telemetry store is not enabled",
	})
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// httpStatus maps a domain error onto a response status. Instrument
// failures are upstream failures from the client's point of view.
func httpStatus(err error) int {
	switch {
	case errors.HasCode(err, ErrInvalidBody),
		errors.HasCode(err, ErrInvalidRequest),
		errors.HasCode(err, psu.ErrInvalidChannel):
		return http.StatusBadRequest
	case scpi.IsTimeoutError(err):
		return http.StatusGatewayTimeout
	case scpi.IsConnectionError(err),
		scpi.IsProtocolError(err),
		errors.HasCode(err, psu.ErrCommandFailed),
		errors.HasCode(err, psu.ErrQueryFailed):
		return http.StatusBadGateway
	case errors.HasCode(err, ErrNoTelemetry):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
