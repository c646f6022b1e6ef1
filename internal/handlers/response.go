package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-driver/internal/api"
	"github.com/ukydev/fleet-driver/internal/driverapp"
	"github.com/ukydev/fleet-driver/internal/trips"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to encode response")
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var statusErr *api.StatusError
	switch {
	case errors.Is(err, api.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, trips.ErrMissingTripReference):
		return http.StatusUnprocessableEntity
	case errors.Is(err, trips.ErrInvalidTransition), errors.Is(err, trips.ErrActionInProgress),
		errors.Is(err, errOfferAnswered):
		return http.StatusConflict
	case errors.Is(err, trips.ErrUnknownDriver), errors.Is(err, driverapp.ErrNotDriver):
		return http.StatusForbidden
	case errors.As(err, &statusErr):
		return statusErr.Code
	case errors.Is(err, api.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}
