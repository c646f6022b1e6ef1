package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ukydev/fleet-driver/internal/models"
)

// ErrMalformedCredential means the bearer credential could not be decoded.
// It never reaches the UI: callers treat it as an unknown identity.
var ErrMalformedCredential = errors.New("malformed credential")

var parser = jwt.NewParser()

// DecodeCredential reads the claims of a bearer credential without verifying
// its signature. Only the subject, expiry, role and email are read.
func DecodeCredential(token string) (*models.Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if strings.Count(token, ".") != 2 {
		return nil, fmt.Errorf("%w: want 3 segments", ErrMalformedCredential)
	}

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCredential, err)
	}

	userID, ok := numericClaim(claims, "sub")
	if !ok {
		userID, ok = numericClaim(claims, "user_id")
	}
	if !ok {
		return nil, fmt.Errorf("%w: no subject", ErrMalformedCredential)
	}

	out := &models.Claims{UserID: userID}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCredential, err)
	}
	if exp != nil {
		out.Exp = exp.Unix()
	}
	if role, ok := claims["role"].(string); ok {
		out.Role = role
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	return out, nil
}

// IsExpired reports whether token is past its expiry. A token that cannot be
// decoded is expired.
func IsExpired(token string) bool {
	claims, err := DecodeCredential(token)
	if err != nil {
		return true
	}
	return claims.Expired(time.Now())
}

func numericClaim(claims jwt.MapClaims, key string) (int64, bool) {
	switch v := claims[key].(type) {
	case float64:
		if v <= 0 || v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}
