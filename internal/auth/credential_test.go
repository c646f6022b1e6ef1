package auth

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestDecodeCredential(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	token := signedToken(t, jwt.MapClaims{"sub": 17, "role": "driver", "email": "d@fleet.io", "exp": exp})

	claims, err := DecodeCredential(token)
	require.NoError(t, err)
	assert.Equal(t, int64(17), claims.UserID)
	assert.Equal(t, exp, claims.Exp)
	assert.Equal(t, "driver", claims.Role)
	assert.Equal(t, "d@fleet.io", claims.Email)

	withPrefix, err := DecodeCredential("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, int64(17), withPrefix.UserID)
}

func TestDecodeCredential_SubjectVariants(t *testing.T) {
	claims, err := DecodeCredential(signedToken(t, jwt.MapClaims{"sub": "23"}))
	require.NoError(t, err)
	assert.Equal(t, int64(23), claims.UserID)
	assert.Zero(t, claims.Exp)

	claims, err = DecodeCredential(signedToken(t, jwt.MapClaims{"user_id": 31}))
	require.NoError(t, err)
	assert.Equal(t, int64(31), claims.UserID)
}

func TestDecodeCredential_Malformed(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	notJSON := base64.RawURLEncoding.EncodeToString([]byte(`sub=17`))
	noSub := base64.RawURLEncoding.EncodeToString([]byte(`{"role":"driver"}`))
	badExp := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":1,"exp":"tomorrow"}`))

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"one segment", "abc"},
		{"two segments", "abc.def"},
		{"four segments", "a.b.c.d"},
		{"bad base64", header + ".!!!.sig"},
		{"payload not json", header + "." + notJSON + ".sig"},
		{"no subject", header + "." + noSub + ".sig"},
		{"bad exp", header + "." + badExp + ".sig"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				claims, err := DecodeCredential(tt.token)
				assert.ErrorIs(t, err, ErrMalformedCredential)
				assert.Nil(t, claims)
			})
		})
	}
}

func TestIsExpired(t *testing.T) {
	past := signedToken(t, jwt.MapClaims{"sub": 1, "exp": time.Now().Add(-time.Minute).Unix()})
	future := signedToken(t, jwt.MapClaims{"sub": 1, "exp": time.Now().Add(time.Hour).Unix()})
	noExp := signedToken(t, jwt.MapClaims{"sub": 1})

	assert.True(t, IsExpired(past))
	assert.False(t, IsExpired(future))
	assert.False(t, IsExpired(noExp))
	assert.True(t, IsExpired("not-a-token"))
	assert.True(t, IsExpired("a.b"))
}
