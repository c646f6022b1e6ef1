package handlers

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-driver/internal/driverapp"
	"github.com/ukydev/fleet-driver/internal/middleware"
)

const (
	loginAttempts = 5
	loginWindow   = time.Minute
)

// RouterDeps wires the local HTTP surface.
type RouterDeps struct {
	Auth          *middleware.AuthMiddleware
	RateLimit     *middleware.RateLimitMiddleware
	AuthHandler   *AuthHandler
	Notifications *NotificationHandler
	Trips         *TripHandler
	Logger        log.FieldLogger
}

// NewRouter builds the handler the driver UI talks to.
func NewRouter(d RouterDeps) http.Handler {
	mux := http.NewServeMux()
	driver := func(h http.HandlerFunc) http.Handler {
		return d.Auth.RequireRole(driverapp.DriverRole)(h)
	}

	mux.Handle("POST /api/auth/login", d.RateLimit.RateLimit(loginAttempts, loginWindow)(http.HandlerFunc(d.AuthHandler.Login)))
	mux.HandleFunc("POST /api/auth/logout", d.AuthHandler.Logout)
	mux.HandleFunc("GET /api/auth/me", d.AuthHandler.Me)

	mux.Handle("GET /api/notifications", driver(d.Notifications.List))
	mux.Handle("POST /api/notifications/refresh", driver(d.Notifications.Refresh))
	mux.Handle("POST /api/notifications/{id}/read", driver(d.Notifications.MarkRead))
	mux.Handle("POST /api/notifications/{id}/accept", driver(d.Notifications.Accept))
	mux.Handle("POST /api/notifications/{id}/reject", driver(d.Notifications.Reject))

	mux.Handle("GET /api/trips", driver(d.Trips.List))
	mux.Handle("POST /api/trips/{id}/loaded", driver(d.Trips.MarkLoaded))
	mux.Handle("POST /api/trips/{id}/reached", driver(d.Trips.MarkReached))
	mux.Handle("POST /api/trips/{id}/complete", driver(d.Trips.Complete))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	logger := d.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return middleware.RequestLogger(logger)(d.Auth.Authenticate(mux))
}
