package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-driver/internal/broker"
	"github.com/ukydev/fleet-driver/internal/config"
	"github.com/ukydev/fleet-driver/internal/models"
	"github.com/ukydev/fleet-driver/internal/push"
)

// fleetBackend is a minimal fleet API: one driver user with one assigned trip.
type fleetBackend struct {
	*httptest.Server
	token string

	mu       sync.Mutex
	created  []models.CreateNotificationRequest
	subToken string
}

func newFleetBackend(t *testing.T) *fleetBackend {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   9,
		"role":  "driver",
		"email": "driver@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	b := &fleetBackend{token: token}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/login", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, models.LoginResponse{Token: b.token, User: models.User{ID: 9, UserEmail: "driver@example.com"}})
	})
	mux.HandleFunc("GET /drivers/by-user/9", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, models.DriverResponse{Driver: &models.Driver{ID: 42}})
	})
	mux.HandleFunc("POST /notifications/subscribe", func(w http.ResponseWriter, r *http.Request) {
		var req models.SubscribeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.subToken = req.Token
		b.mu.Unlock()
		writeTestJSON(w, map[string]string{"message": "subscribed"})
	})
	mux.HandleFunc("POST /notifications/list", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, models.NotificationListResponse{})
	})
	mux.HandleFunc("POST /notifications/create", func(w http.ResponseWriter, r *http.Request) {
		var req models.CreateNotificationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.created = append(b.created, req)
		b.mu.Unlock()
		writeTestJSON(w, map[string]string{"message": "created"})
	})
	mux.HandleFunc("POST /trips/by-driver", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, models.TripsByDriverResponse{DriverID: 42, Items: []models.Trip{{ID: 7, TripStatus: "assigned"}}})
	})
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func (b *fleetBackend) createdCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.created)
}

func writeTestJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		APIBaseURL:           apiURL,
		HTTPAddr:             "127.0.0.1:0",
		NotificationPageSize: 50,
		TripPageSize:         100,
		TokenStore:           config.TokenStoreMemory,
		MQTTClientID:         "agent-test",
		PushPermission:       "granted",
		StorageURL:           "http://storage.invalid",
		StorageBucket:        "trip-evidence",
		Provider:             map[string]string{"projectId": "fleet-test"},
	}
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func TestAgent_LoginPushAndLogout(t *testing.T) {
	backend := newFleetBackend(t)
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())

	a, err := newAgent(ctx, testConfig(backend.URL), logger)
	require.NoError(t, err)
	defer a.Close()
	wait := a.start(ctx)
	defer func() {
		cancel()
		wait()
	}()

	w := serve(t, a.router, http.MethodGet, "/api/trips", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(t, a.router, http.MethodPost, "/api/auth/login", `{"userEmail":"driver@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"driverId":42`)

	w = serve(t, a.router, http.MethodGet, "/api/trips", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"upload_loading"`)

	pushToken, err := a.durable.Get(ctx, push.PushTokenKey)
	require.NoError(t, err)
	backend.mu.Lock()
	assert.Equal(t, pushToken, backend.subToken)
	backend.mu.Unlock()

	// Foreground delivery persists and lists the push.
	require.NoError(t, broker.PublishJSON(a.conn, push.TopicFor(pushToken), models.PushPayload{
		MessageID:    "m-1",
		Notification: &models.NotificationContent{Title: "New trip", Body: "Trip 7 is waiting"},
		Data:         map[string]string{"tripId": "7"},
	}))
	assert.Equal(t, 1, backend.createdCount())

	w = serve(t, a.router, http.MethodGet, "/api/notifications", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unreadCount":1`)
	assert.Contains(t, w.Body.String(), `"actionable":true`)

	require.Eventually(t, func() bool {
		st, err := a.worker.Snapshot(ctx)
		return err == nil && st.DriverID == 42 && st.APIBaseURL == backend.URL
	}, time.Second, 10*time.Millisecond)

	w = serve(t, a.router, http.MethodPost, "/api/auth/logout", "")
	require.Equal(t, http.StatusOK, w.Code)

	// With the foreground gone the worker persists for the configured driver.
	require.NoError(t, broker.PublishJSON(a.conn, push.TopicFor(pushToken), models.PushPayload{
		MessageID: "m-2",
		Data:      map[string]string{"tripId": "8"},
	}))
	require.Eventually(t, func() bool { return backend.createdCount() == 2 }, time.Second, 10*time.Millisecond)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	for _, req := range backend.created {
		assert.Equal(t, int64(42), req.EntityID)
	}
	assert.Equal(t, "8", backend.created[1].Data["tripId"])
}

func TestAgent_PermissionDeniedSkipsPush(t *testing.T) {
	backend := newFleetBackend(t)
	logger, _ := test.NewNullLogger()
	cfg := testConfig(backend.URL)
	cfg.PushPermission = "denied"
	ctx, cancel := context.WithCancel(context.Background())

	a, err := newAgent(ctx, cfg, logger)
	require.NoError(t, err)
	defer a.Close()
	wait := a.start(ctx)
	defer func() {
		cancel()
		wait()
	}()

	w := serve(t, a.router, http.MethodPost, "/api/auth/login", `{"userEmail":"driver@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, w.Code)

	backend.mu.Lock()
	assert.Empty(t, backend.subToken)
	backend.mu.Unlock()
	pushToken, err := a.durable.Get(ctx, push.PushTokenKey)
	require.NoError(t, err)
	assert.Empty(t, pushToken)
}

func TestOpenTokenStore_Memory(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := testConfig("http://api.invalid")

	store, closeStore := openTokenStore(context.Background(), cfg, logger)
	defer closeStore()

	require.NoError(t, store.Put(context.Background(), "k", "v"))
	v, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestOpenBroker_InProcess(t *testing.T) {
	logger, _ := test.NewNullLogger()
	conn, closeConn, err := openBroker(testConfig("http://api.invalid"), "agent-test", logger)
	require.NoError(t, err)
	assert.True(t, conn.IsConnected())

	closeConn()
	assert.False(t, conn.IsConnected())
}

func TestRun_StopsOnCancel(t *testing.T) {
	backend := newFleetBackend(t)
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	assert.NoError(t, run(ctx, testConfig(backend.URL), logger))
}
