package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"codeberg.org/mutker/psuctl/internal/errors"
	"codeberg.org/mutker/psuctl/internal/psu"
	"github.com/go-playground/validator/v10"
)

const (
	defaultTelemetryLimit = 100
	maxTelemetryLimit     = 1000
)

// Voltage and current are kept as their JSON literal text and forwarded
// to the instrument verbatim.
type enableRequest struct {
	Channel *int        `json:"channel" validate:"required,min=1,max=4"`
	Voltage json.Number `json:"voltage" validate:"required"`
	Current json.Number `json:"current" validate:"required"`
}

type disableRequest struct {
	Channel *int `json:"channel" validate:"required,min=1,max=4"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAndValidate[enableRequest](s, w, r)
	if !ok {
		return
	}

	ch := psu.Channel(*req.Channel)
	if err := s.ctrl.EnableChannel(r.Context(), s.ep, ch, req.Voltage.String(), req.Current.String()); err != nil {
		s.sendError(w, r, err, nil)
		return
	}

	sendText(w, http.StatusOK, fmt.Sprintf("Channel %d enabled", int(ch)))
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAndValidate[disableRequest](s, w, r)
	if !ok {
		return
	}

	ch := psu.Channel(*req.Channel)
	if err := s.ctrl.DisableChannel(r.Context(), s.ep, ch); err != nil {
		s.sendError(w, r, err, nil)
		return
	}

	sendText(w, http.StatusOK, fmt.Sprintf("Channel %d disabled", int(ch)))
}

// handleStatus returns the four-channel document. When some channels
// failed the partial document travels in the error details.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.ctrl.GetAllStatus(r.Context(), s.ep)
	if err != nil {
		s.sendError(w, r, err, status)
		return
	}

	sendJSON(w, http.StatusOK, status)
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	errFactory := errors.New()

	if s.reader == nil {
		s.sendError(w, r, errFactory.New(ErrNoTelemetry), nil)
		return
	}

	limit := defaultTelemetryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.sendError(w, r, errFactory.WithMessage(ErrInvalidRequest, "limit must be a positive integer"), nil)
			return
		}
		limit = min(n, maxTelemetryLimit)
	}

	records, err := s.reader.Recent(r.Context(), limit)
	if err != nil {
		s.sendError(w, r, err, nil)
		return
	}

	sendJSON(w, http.StatusOK, records)
}

func decodeAndValidate[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	errFactory := errors.New()

	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, r, errFactory.Wrap(ErrInvalidBody, err), nil)
		return req, false
	}

	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			s.sendError(w, r, errFactory.Wrap(ErrInvalidRequest, err), nil)
			return req, false
		}
		s.sendError(w, r, errFactory.New(ErrInvalidRequest), fieldMessages(fieldErrs))
		return req, false
	}

	return req, true
}

func fieldMessages(fieldErrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			out[fe.Field()] = fe.Field() + " is required"
		case "min", "max":
			out[fe.Field()] = fmt.Sprintf("%s must be between %d and %d", fe.Field(), psu.MinChannel, psu.MaxChannel)
		default:
			out[fe.Field()] = fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
		}
	}
	return out
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, err error, details any) {
	status := httpStatus(err)
	code := errors.CodeOf(err)
	if code == "" {
		code = errors.ErrInternal
	}

	if status >= http.StatusInternalServerError {
		s.log.Warn().
			Err(err).
			Str("error_code", string(code)).
			Str("request_id", requestIDFrom(r.Context())).
			Msg("Request failed")
	}

	sendJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   err.Error(),
			Details:   details,
			RequestID: requestIDFrom(r.Context()),
		},
	})
}

func sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func sendText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}
