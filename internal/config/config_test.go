package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE_URL", "https://storage.example.com/")
	t.Setenv("API_BASE_URL", "https://api.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.Equal(t, "https://storage.example.com", cfg.StorageURL)
	assert.Equal(t, TokenStoreMongo, cfg.TokenStore)
	assert.Equal(t, time.Duration(0), cfg.HTTPTimeout)
	assert.Equal(t, 50, cfg.NotificationPageSize)
	assert.Equal(t, 100, cfg.TripPageSize)
	assert.Equal(t, cfg.MQTTBrokerURL, cfg.Provider["brokerUrl"])
	assert.Equal(t, "granted", cfg.PushPermission)
}

func TestLoad_ProviderKeys(t *testing.T) {
	t.Setenv("STORAGE_URL", "https://storage.example.com")
	t.Setenv("FIREBASE_PROJECT_ID", "fleet-prod")
	t.Setenv("FIREBASE_APP_ID", "1:2:web:3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "fleet-prod", cfg.Provider["projectId"])
	assert.Equal(t, "1:2:web:3", cfg.Provider["appId"])
}

func TestLoad_InvalidTokenStore(t *testing.T) {
	t.Setenv("STORAGE_URL", "https://storage.example.com")
	t.Setenv("TOKEN_STORE", "sqlite")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidPushPermission(t *testing.T) {
	t.Setenv("STORAGE_URL", "https://storage.example.com")
	t.Setenv("PUSH_PERMISSION", "maybe")

	_, err := Load()
	assert.ErrorContains(t, err, "PUSH_PERMISSION")
}

func TestLoad_MissingStorage(t *testing.T) {
	t.Setenv("STORAGE_URL", "")

	_, err := Load()
	assert.ErrorContains(t, err, "STORAGE_URL")
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_DUR", "nope")
	t.Setenv("X_DUR_OK", "3s")

	assert.Equal(t, 7, getEnvAsInt("X_INT", 7))
	assert.Equal(t, time.Second, getEnvAsDuration("X_DUR", time.Second))
	assert.Equal(t, 3*time.Second, getEnvAsDuration("X_DUR_OK", time.Second))
	assert.Equal(t, "fallback", getEnv("X_UNSET_KEY", "fallback"))
}
