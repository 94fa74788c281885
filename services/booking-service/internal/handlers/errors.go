package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/tenantbook/libs/httpx"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/apperr"
)

// statusFor maps the error taxonomy onto HTTP. The kind string is stable
// and meant for clients to switch on.
func statusFor(err error) (int, string) {
	var (
		ve *apperr.ValidationError
		nf *apperr.NotFoundError
		ce *apperr.ConfigurationError
		su *apperr.SlotUnavailableError
		up *apperr.UpstreamError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "validation"
	case errors.As(err, &nf):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &ce):
		return http.StatusConflict, "configuration"
	case errors.As(err, &su):
		return http.StatusConflict, "slot_unavailable"
	case errors.Is(err, apperr.ErrBookingInProgress):
		return http.StatusConflict, "in_progress"
	case errors.As(err, &up):
		switch {
		case up.Timeout:
			return http.StatusGatewayTimeout, "upstream_timeout"
		case up.NeedsReconfiguration():
			return http.StatusFailedDependency, "upstream_credentials"
		default:
			return http.StatusBadGateway, "upstream"
		}
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, kind := statusFor(err)
	msg := err.Error()
	switch kind {
	case "internal":
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		msg = "internal error"
	case "configuration":
		msg += "; set the missing fields on the tenant before taking bookings"
	case "slot_unavailable":
		msg += "; please pick another time"
	case "upstream_credentials":
		msg += "; update the tenant's apiToken"
	}
	httpx.WriteError(w, status, kind, msg)
}
