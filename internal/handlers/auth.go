package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/ukydev/fleet-driver/internal/middleware"
	"github.com/ukydev/fleet-driver/internal/models"
)

// Session is the signed-in driver as the HTTP surface sees it.
type Session interface {
	Login(ctx context.Context, email, password string) (*models.LoginResponse, error)
	Logout(ctx context.Context) error
	DriverID() int64
	MarkNotificationRead(ctx context.Context, id int64) error
}

// AuthHandler handles sign-in and sign-out
type AuthHandler struct {
	session Session
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(session Session) *AuthHandler {
	return &AuthHandler{session: session}
}

// Login exchanges email and password for a session and boots the driver.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var loginReq models.LoginRequest
	if err := json.Unmarshal(body, &loginReq); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if loginReq.UserEmail == "" || loginReq.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	resp, err := h.session.Login(r.Context(), loginReq.UserEmail, loginReq.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":     resp.User,
		"driverId": h.session.DriverID(),
	})
}

// Logout ends the session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// Me returns the session claims and the resolved driver.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":   claims.UserID,
		"email":    claims.Email,
		"role":     claims.Role,
		"driverId": h.session.DriverID(),
	})
}
