package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-driver/internal/api"
	"github.com/ukydev/fleet-driver/internal/bridge"
	"github.com/ukydev/fleet-driver/internal/db"
	"github.com/ukydev/fleet-driver/internal/models"
	"github.com/ukydev/fleet-driver/internal/push"
)

// MockTokenStore is a mock implementation of db.TokenStore
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Put(ctx context.Context, key, value string) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *MockTokenStore) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockTokenStore) Remove(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type recordingShell struct {
	mu     sync.Mutex
	events []string
	shown  []push.Notification
}

func (s *recordingShell) Show(_ context.Context, n push.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "show:"+n.Tag)
	s.shown = append(s.shown, n)
	return nil
}

func (s *recordingShell) Close(_ context.Context, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "close:"+tag)
	return nil
}

func (s *recordingShell) Open(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "open:"+url)
	return nil
}

func (s *recordingShell) snapshot() ([]string, []push.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...), append([]push.Notification(nil), s.shown...)
}

type workerHarness struct {
	worker  *Worker
	mailbox *bridge.Mailbox
	shell   *recordingShell
}

func startWorker(t *testing.T, tokens db.TokenStore, provider push.Provider) *workerHarness {
	t.Helper()
	h := &workerHarness{mailbox: bridge.NewMailbox(8), shell: &recordingShell{}}
	h.worker = NewWorker(WorkerConfig{
		Receiver: h.mailbox,
		Provider: provider,
		Tokens:   tokens,
		Notifier: h.shell,
		Opener:   h.shell,
		NewBackend: func(baseURL string) Backend {
			return api.NewClient(baseURL, 0, nil, nil)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, h.worker.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-h.mailbox.Ready():
	case <-time.After(time.Second):
		t.Fatal("worker never signalled readiness")
	}
	return h
}

func (h *workerHarness) configure(t *testing.T, msgs ...bridge.Message) {
	t.Helper()
	for _, msg := range msgs {
		require.NoError(t, h.mailbox.Send(msg))
	}
	want := h.expectedState(msgs)
	require.Eventually(t, func() bool {
		st, err := h.worker.Snapshot(context.Background())
		return err == nil &&
			(want.APIBaseURL == "" || st.APIBaseURL == want.APIBaseURL) &&
			(want.DriverID == 0 || st.DriverID == want.DriverID) &&
			(want.ProviderConfig == nil || len(st.ProviderConfig) == len(want.ProviderConfig))
	}, time.Second, 5*time.Millisecond)
}

func (h *workerHarness) expectedState(msgs []bridge.Message) State {
	var st State
	for _, msg := range msgs {
		switch msg.Type {
		case bridge.TypeAPIConfig:
			st.APIBaseURL = msg.APIBaseURL
		case bridge.TypeDriverID:
			st.DriverID = msg.DriverID
		case bridge.TypeProviderConfig:
			st.ProviderConfig = msg.Config
		}
	}
	return st
}

func TestWorker_StartsWithUnknownState(t *testing.T) {
	h := startWorker(t, db.NewMemoryTokenStore(), nil)
	st, err := h.worker.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, State{}, st)
}

func TestWorker_PersistsWithConfiguredDriver(t *testing.T) {
	srv, backend := newFakeBackend(t)
	tokens := db.NewMemoryTokenStore()
	require.NoError(t, tokens.Put(context.Background(), db.AuthTokenKey, "stored-token"))

	h := startWorker(t, tokens, nil)
	h.configure(t, bridge.APIConfig(srv.URL), bridge.DriverID(7))

	h.worker.Deliver(context.Background(), models.PushPayload{
		MessageID:    "m-1",
		Notification: &models.NotificationContent{Title: "Trip offer", Body: "Trip 42 is yours"},
		Data:         map[string]string{"tripId": "42"},
	})

	assert.Equal(t, []string{"/notifications/create"}, backend.paths())
	call := backend.last()
	assert.Equal(t, "Bearer stored-token", call.auth)
	assert.Equal(t, float64(7), call.body["entityId"])
	assert.Equal(t, "firebase", call.body["fcmFrom"])

	_, shown := h.shell.snapshot()
	require.Len(t, shown, 1)
	assert.Equal(t, "m-1", shown[0].Tag)
	assert.Equal(t, "Trip offer", shown[0].Title)
	assert.True(t, shown[0].RequireInteraction)
	assert.Equal(t, push.DefaultActions, shown[0].Actions)
	assert.Equal(t, "42", shown[0].Data["tripId"])
}

func TestWorker_DropsWhenRecipientUnresolvable(t *testing.T) {
	srv, backend := newFakeBackend(t)
	tokens := new(MockTokenStore)
	tokens.On("Get", mock.Anything, db.AuthTokenKey).Return("", db.ErrStoreUnavailable)

	h := startWorker(t, tokens, nil)
	h.configure(t, bridge.APIConfig(srv.URL))

	h.worker.Deliver(context.Background(), models.PushPayload{MessageID: "m-2"})

	assert.NotContains(t, backend.paths(), "/notifications/create")
	assert.Empty(t, backend.paths())
	_, shown := h.shell.snapshot()
	require.Len(t, shown, 1)
	assert.Equal(t, "New Notification", shown[0].Title)
	assert.Equal(t, "You have a new notification", shown[0].Body)
}

func TestWorker_RecipientFromPayload(t *testing.T) {
	srv, backend := newFakeBackend(t)
	h := startWorker(t, db.NewMemoryTokenStore(), nil)
	h.configure(t, bridge.APIConfig(srv.URL))

	h.worker.Deliver(context.Background(), models.PushPayload{Data: map[string]string{"driverId": "11"}})

	require.Equal(t, []string{"/notifications/create"}, backend.paths())
	assert.Equal(t, float64(11), backend.last().body["entityId"])
	assert.Empty(t, backend.last().auth)
}

func TestWorker_RecipientFromStoredCredential(t *testing.T) {
	srv, backend := newFakeBackend(t)
	backend.mu.Lock()
	backend.driverID = 13
	backend.mu.Unlock()
	token := signedCredential(t, 21)
	tokens := db.NewMemoryTokenStore()
	require.NoError(t, tokens.Put(context.Background(), db.AuthTokenKey, token))

	h := startWorker(t, tokens, nil)
	h.configure(t, bridge.APIConfig(srv.URL))

	h.worker.Deliver(context.Background(), models.PushPayload{})

	assert.Equal(t, []string{"/drivers/by-user/21", "/notifications/create"}, backend.paths())
	assert.Equal(t, float64(13), backend.last().body["entityId"])
	assert.Equal(t, "Bearer "+token, backend.last().auth)
}

func TestWorker_PersistFailureStillDisplays(t *testing.T) {
	srv, backend := newFakeBackend(t)
	backend.mu.Lock()
	backend.createOK = false
	backend.mu.Unlock()
	h := startWorker(t, db.NewMemoryTokenStore(), nil)
	h.configure(t, bridge.APIConfig(srv.URL), bridge.DriverID(7))

	h.worker.Deliver(context.Background(), models.PushPayload{MessageID: "m-3"})

	assert.Equal(t, []string{"/notifications/create"}, backend.paths())
	_, shown := h.shell.snapshot()
	assert.Len(t, shown, 1)
}

func TestWorker_NoAPIConfigDisplaysOnly(t *testing.T) {
	h := startWorker(t, db.NewMemoryTokenStore(), nil)
	h.configure(t, bridge.DriverID(7))

	h.worker.Deliver(context.Background(), models.PushPayload{MessageID: "m-4"})

	_, shown := h.shell.snapshot()
	assert.Len(t, shown, 1)
}

func TestWorker_ProviderConfigAttachesBackgroundHandler(t *testing.T) {
	srv, backend := newFakeBackend(t)
	dispatcher := push.NewDispatcher(nil)
	h := startWorker(t, db.NewMemoryTokenStore(), &dispatcherProvider{Dispatcher: dispatcher})
	h.configure(t,
		bridge.ProviderConfig(models.ProviderConfig{"apiKey": "k", "projectId": "fleet"}),
		bridge.APIConfig(srv.URL),
		bridge.DriverID(3),
	)

	assert.Equal(t, push.RouteBackground, dispatcher.Deliver(context.Background(), models.PushPayload{MessageID: "m-5"}))
	assert.Equal(t, []string{"/notifications/create"}, backend.paths())
}

func TestWorker_HandleClick(t *testing.T) {
	tests := []struct {
		name   string
		click  Click
		events []string
	}{
		{"view opens notifications", Click{Action: push.ActionView, Tag: "a"}, []string{"close:a", "open:/?page=notifications"}},
		{"body click opens notifications", Click{Tag: "b"}, []string{"close:b", "open:/?page=notifications"}},
		{"dismiss only closes", Click{Action: push.ActionDismiss, Tag: "c"}, []string{"close:c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startWorker(t, db.NewMemoryTokenStore(), nil)
			h.worker.HandleClick(tt.click)
			require.Eventually(t, func() bool {
				events, _ := h.shell.snapshot()
				return len(events) == len(tt.events)
			}, time.Second, 5*time.Millisecond)
			events, _ := h.shell.snapshot()
			assert.Equal(t, tt.events, events)
		})
	}
}

func TestWorker_DeliverAfterStopReturns(t *testing.T) {
	w := NewWorker(WorkerConfig{Receiver: bridge.NewMailbox(1)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))

	done := make(chan struct{})
	go func() {
		w.Deliver(context.Background(), models.PushPayload{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked on a stopped worker")
	}
}

// dispatcherProvider exposes a bare Dispatcher as a Provider.
type dispatcherProvider struct {
	*push.Dispatcher
}

func (p *dispatcherProvider) RequestPermission(context.Context) bool { return true }

func (p *dispatcherProvider) Token(context.Context) (string, error) { return "tok", nil }
