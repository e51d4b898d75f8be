package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	calendarapp "github.com/qnz18/qzwhatnext/internal/calendar/application"
	captureapp "github.com/qnz18/qzwhatnext/internal/capture/application"
	identityservices "github.com/qnz18/qzwhatnext/internal/identity/application/services"
	identitydomain "github.com/qnz18/qzwhatnext/internal/identity/domain"
	"github.com/qnz18/qzwhatnext/internal/planner/application/commands"
	plannerdomain "github.com/qnz18/qzwhatnext/internal/planner/domain"
	recurrenceservices "github.com/qnz18/qzwhatnext/internal/recurrence/application/services"
	recurrencedomain "github.com/qnz18/qzwhatnext/internal/recurrence/domain"
)

// Stable error codes surfaced to clients.
const (
	codeCalendarNotConnected = "CALENDAR_NOT_CONNECTED"
	codeCalendarAuthRevoked  = "CALENDAR_AUTH_REVOKED"
	codeCalendarTransient    = "CALENDAR_API_TRANSIENT"
	codeTokenEncryption      = "TOKEN_ENCRYPTION_FAILURE"
	codeParseMissingField    = "PARSE_MISSING_FIELD"
	codeParseInvalidTime     = "PARSE_INVALID_TIME"
	codeParsePast            = "PARSE_PAST"
	codeNoTasks              = "NO_TASKS"
	codeNotFound             = "NOT_FOUND"
	codeDuplicateRecurrence  = "DUPLICATE_RECURRENCE"
	codeValidation           = "VALIDATION"
	codeUnauthorized         = "UNAUTHORIZED"
	codeInternal             = "INTERNAL"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// validationErrs are domain rejections that all map to a 400 VALIDATION.
var validationErrs = []error{
	plannerdomain.ErrEmptyTitle,
	plannerdomain.ErrInvalidDuration,
	plannerdomain.ErrScoreOutOfRange,
	plannerdomain.ErrInvalidWindow,
	plannerdomain.ErrTaskDeleted,
	plannerdomain.ErrTaskNotOpen,
	plannerdomain.ErrTaskAlreadyFinal,
	plannerdomain.ErrInvalidInterval,
	plannerdomain.ErrBlockLocked,
	recurrencedomain.ErrEmptyTitleTemplate,
	recurrencedomain.ErrEmptyBlockTitle,
	recurrencedomain.ErrSeriesDeleted,
	recurrencedomain.ErrInvalidInterval,
	recurrencedomain.ErrInvalidFrequency,
	recurrencedomain.ErrUntilBeforeStart,
	identitydomain.ErrInvalidEmail,
}

var notFoundErrs = []error{
	plannerdomain.ErrTaskNotFound,
	plannerdomain.ErrBlockNotFound,
	recurrencedomain.ErrSeriesNotFound,
	recurrencedomain.ErrTimeBlockNotFound,
	identitydomain.ErrUserNotFound,
}

// mapError translates service errors to an HTTP status and stable code.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, identityservices.ErrUnauthorized):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, identityservices.ErrCalendarAuthRevoked):
		return http.StatusUnauthorized, codeCalendarAuthRevoked
	case errors.Is(err, identityservices.ErrCalendarNotConnected):
		return http.StatusBadRequest, codeCalendarNotConnected
	case errors.Is(err, identityservices.ErrTokenEncryption):
		return http.StatusInternalServerError, codeTokenEncryption
	case errors.Is(err, calendarapp.ErrTransient):
		return http.StatusInternalServerError, codeCalendarTransient
	case errors.Is(err, captureapp.ErrPastTime):
		return http.StatusBadRequest, codeParsePast
	case errors.Is(err, recurrenceservices.ErrInvalidTime):
		return http.StatusBadRequest, codeParseInvalidTime
	case errors.Is(err, recurrenceservices.ErrEmptyInstruction),
		errors.Is(err, recurrencedomain.ErrMissingTimeStart),
		errors.Is(err, recurrencedomain.ErrMissingByWeekday):
		return http.StatusBadRequest, codeParseMissingField
	case errors.Is(err, commands.ErrNoTasks):
		return http.StatusBadRequest, codeNoTasks
	case errors.Is(err, plannerdomain.ErrDuplicateOccurrence):
		return http.StatusBadRequest, codeDuplicateRecurrence
	}
	for _, sentinel := range notFoundErrs {
		if errors.Is(err, sentinel) {
			return http.StatusNotFound, codeNotFound
		}
	}
	for _, sentinel := range validationErrs {
		if errors.Is(err, sentinel) {
			return http.StatusBadRequest, codeValidation
		}
	}
	return http.StatusInternalServerError, codeInternal
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("code", code),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorBody{Code: code, Message: err.Error()})
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
