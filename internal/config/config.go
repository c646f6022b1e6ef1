package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Token store backends.
const (
	TokenStoreMongo  = "mongo"
	TokenStoreRedis  = "redis"
	TokenStoreMemory = "memory"
)

// Config holds the driver agent configuration loaded from the environment.
type Config struct {
	APIBaseURL  string
	HTTPAddr    string
	HTTPTimeout time.Duration
	LogLevel    string
	LogFile     string

	// Page sizes used when refreshing from the backend.
	NotificationPageSize int
	TripPageSize         int

	TokenStore string
	MongoURI   string
	MongoDB    string
	RedisURL   string

	MQTTBrokerURL string
	MQTTClientID  string

	// PushPermission is the display permission the agent runs with,
	// "granted" or "denied".
	PushPermission string

	StorageURL    string
	StorageBucket string
	StorageKey    string

	// Provider holds the FIREBASE_* values forwarded to the background
	// context, keyed the way the provider client expects them.
	Provider map[string]string
}

var providerKeys = map[string]string{
	"FIREBASE_API_KEY":             "apiKey",
	"FIREBASE_AUTH_DOMAIN":         "authDomain",
	"FIREBASE_PROJECT_ID":          "projectId",
	"FIREBASE_STORAGE_BUCKET":      "storageBucket",
	"FIREBASE_MESSAGING_SENDER_ID": "messagingSenderId",
	"FIREBASE_APP_ID":              "appId",
	"FIREBASE_MEASUREMENT_ID":      "measurementId",
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL:           strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8080"), "/"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8090"),
		HTTPTimeout:          getEnvAsDuration("HTTP_TIMEOUT", 0),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFile:              getEnv("LOG_FILE", ""),
		NotificationPageSize: getEnvAsInt("NOTIFICATION_PAGE_SIZE", 50),
		TripPageSize:         getEnvAsInt("TRIP_PAGE_SIZE", 100),
		TokenStore:           strings.ToLower(getEnv("TOKEN_STORE", TokenStoreMongo)),
		MongoURI:             getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:              getEnv("MONGO_DB", "fleet_driver"),
		RedisURL:             getEnv("REDIS_URL", "localhost:6379"),
		MQTTBrokerURL:        getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
		MQTTClientID:         getEnv("MQTT_CLIENT_ID", ""),
		PushPermission:       strings.ToLower(getEnv("PUSH_PERMISSION", "granted")),
		StorageURL:           strings.TrimRight(getEnv("STORAGE_URL", ""), "/"),
		StorageBucket:        getEnv("STORAGE_BUCKET", "trip-evidence"),
		StorageKey:           getEnv("STORAGE_KEY", ""),
		Provider:             make(map[string]string),
	}
	for env, key := range providerKeys {
		if v, ok := os.LookupEnv(env); ok {
			cfg.Provider[key] = v
		}
	}
	cfg.Provider["brokerUrl"] = cfg.MQTTBrokerURL

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.TokenStore {
	case TokenStoreMongo, TokenStoreRedis, TokenStoreMemory:
	default:
		return fmt.Errorf("invalid TOKEN_STORE %q: want mongo, redis or memory", c.TokenStore)
	}
	switch c.PushPermission {
	case "granted", "denied":
	default:
		return fmt.Errorf("invalid PUSH_PERMISSION %q: want granted or denied", c.PushPermission)
	}
	var missing []string
	if c.APIBaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}
	if c.StorageURL == "" {
		missing = append(missing, "STORAGE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.WithError(err).Warnf("invalid int for %s, using default %d", key, def)
			return def
		}
		return i
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.WithError(err).Warnf("invalid duration for %s, using default %s", key, def)
			return def
		}
		return d
	}
	return def
}
