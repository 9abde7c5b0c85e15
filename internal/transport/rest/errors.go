package rest

import (
	"errors"
	"net/http"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	appCtx "github.com/baechuer/real-time-ressys/services/booking-service/internal/pkg/context"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/pkg/logger"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/transport/rest/response"
)

type apiError struct {
	status  int
	code    string
	message string
}

// classify maps domain errors to HTTP status + stable error code.
func classify(err error) apiError {
	switch {
	case errors.Is(err, domain.ErrOptionNotFound):
		return apiError{http.StatusNotFound, "option.not_found", err.Error()}
	case errors.Is(err, domain.ErrRequestNotFound):
		return apiError{http.StatusNotFound, "request.not_found", err.Error()}
	case errors.Is(err, domain.ErrDuplicateRequest):
		return apiError{http.StatusConflict, "request.duplicate", err.Error()}
	case errors.Is(err, domain.ErrOptionFull):
		return apiError{http.StatusConflict, "option.full", err.Error()}
	case errors.Is(err, domain.ErrBookingClosed):
		return apiError{http.StatusGone, "option.closed", err.Error()}
	case errors.Is(err, domain.ErrNotEligible):
		return apiError{http.StatusForbidden, "request.not_eligible", err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return apiError{http.StatusConflict, "booking.conflict", domain.ErrConflict.Error()}
	case errors.Is(err, domain.ErrForbidden):
		return apiError{http.StatusForbidden, "auth.forbidden", err.Error()}
	case errors.Is(err, domain.ErrInvalidOption):
		return apiError{http.StatusBadRequest, "request.invalid", err.Error()}
	default:
		// internal details stay in the log
		return apiError{http.StatusInternalServerError, "internal", "internal error"}
	}
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e.status == http.StatusInternalServerError {
		logger.WithCtx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	fail(w, r, e.status, e.code, e.message, nil)
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	reqID := appCtx.GetRequestID(r.Context())
	if reqID == "" {
		reqID = "no-request-id"
	}
	response.Fail(w, status, code, message, meta, reqID)
}
