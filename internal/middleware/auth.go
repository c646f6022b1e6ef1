package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-driver/internal/auth"
	"github.com/ukydev/fleet-driver/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	ClaimsContextKey contextKey = "claims"
)

// CredentialSource yields the session's bearer credential.
type CredentialSource interface {
	Credential(ctx context.Context) string
}

// AuthMiddleware only lets requests through while a driver session holds a
// usable credential.
type AuthMiddleware struct {
	session CredentialSource
	now     func() time.Time
	logger  log.FieldLogger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(session CredentialSource, logger log.FieldLogger) *AuthMiddleware {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &AuthMiddleware{session: session, now: time.Now, logger: logger}
}

// Authenticate decodes the session credential and adds its claims to the
// request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSkipAuth(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := m.session.Credential(r.Context())
		if token == "" {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		claims, err := auth.DecodeCredential(token)
		if err != nil {
			m.logger.WithError(err).Warn("Session credential undecodable")
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		if claims.Expired(m.now()) {
			http.Error(w, "Session expired", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects sessions whose credential names another role. A
// credential without a role claim passes; the driver lookup decides then.
func (m *AuthMiddleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "User context not found", http.StatusUnauthorized)
				return
			}
			if claims.Role != "" && claims.Role != role {
				http.Error(w, "You don't have permission to access this app.", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaimsFromContext extracts the session claims from request context
func GetClaimsFromContext(ctx context.Context) (*models.Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*models.Claims)
	return claims, ok
}

// shouldSkipAuth determines if authentication should be skipped for a given path
func shouldSkipAuth(path string) bool {
	skipPaths := []string{
		"/api/auth/login",
		"/health",
	}

	for _, skipPath := range skipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}
