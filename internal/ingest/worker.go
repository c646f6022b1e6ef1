package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-driver/internal/api"
	"github.com/ukydev/fleet-driver/internal/auth"
	"github.com/ukydev/fleet-driver/internal/bridge"
	"github.com/ukydev/fleet-driver/internal/db"
	"github.com/ukydev/fleet-driver/internal/models"
	"github.com/ukydev/fleet-driver/internal/push"
)

// NotificationsPage is where a notification click takes the driver.
const NotificationsPage = "/?page=notifications"

// Backend is what the worker needs from the API once it knows its address.
type Backend interface {
	NotificationCreator
	auth.DriverLookup
}

// BackendFactory builds a backend for an API base URL.
type BackendFactory func(baseURL string) Backend

// Click is a tap on a system notification. An empty Action is a tap on the
// notification body.
type Click struct {
	Action string
	Tag    string
}

// WorkerConfig wires the worker to its collaborators.
type WorkerConfig struct {
	Receiver   bridge.Receiver
	Provider   push.Provider
	Tokens     db.TokenStore
	Notifier   push.Notifier
	Opener     push.Opener
	NewBackend BackendFactory
	Logger     log.FieldLogger
}

type delivery struct {
	payload models.PushPayload
	done    chan struct{}
}

// Worker is the background context. It runs as a single goroutine and owns
// its configuration; the only way to change it is a bridge message.
type Worker struct {
	cfg        WorkerConfig
	logger     log.FieldLogger
	deliveries chan delivery
	clicks     chan Click
	snapshots  chan chan State
	stopped    chan struct{}

	// actor-local, touched only by Run
	apiBaseURL     string
	driverID       int64
	providerConfig models.ProviderConfig
	backend        Backend
}

func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = push.LogNotifier{Logger: logger}
	}
	if cfg.Opener == nil {
		cfg.Opener = push.LogNotifier{Logger: logger}
	}
	return &Worker{
		cfg:        cfg,
		logger:     logger.WithField("component", "worker"),
		deliveries: make(chan delivery, 32),
		clicks:     make(chan Click, 8),
		snapshots:  make(chan chan State),
		stopped:    make(chan struct{}),
	}
}

// Run attaches to the bridge, signals readiness and processes events until
// ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stopped)

	inbox, err := w.cfg.Receiver.Attach()
	if err != nil {
		return fmt.Errorf("attach bridge: %w", err)
	}
	defer w.cfg.Receiver.Detach()

	if err := w.cfg.Receiver.SignalReady(); err != nil {
		w.logger.WithError(err).Warn("Failed to signal readiness")
	}
	w.logger.Info("Background worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Background worker stopped")
			return nil
		case msg, ok := <-inbox:
			if !ok {
				return nil
			}
			w.apply(msg)
		case d := <-w.deliveries:
			w.process(ctx, d.payload)
			close(d.done)
		case c := <-w.clicks:
			w.click(ctx, c)
		case reply := <-w.snapshots:
			reply <- State{APIBaseURL: w.apiBaseURL, DriverID: w.driverID, ProviderConfig: w.providerConfig}
		}
	}
}

// Deliver is the push handler attached to the provider. It returns once the
// payload has been processed, or when the worker is gone.
func (w *Worker) Deliver(ctx context.Context, payload models.PushPayload) {
	d := delivery{payload: payload, done: make(chan struct{})}
	select {
	case w.deliveries <- d:
	case <-w.stopped:
		w.logger.WithField("message_id", payload.MessageID).Warn("Worker stopped, push dropped")
		return
	case <-ctx.Done():
		return
	}
	select {
	case <-d.done:
	case <-w.stopped:
	case <-ctx.Done():
	}
}

// HandleClick queues a notification click.
func (w *Worker) HandleClick(c Click) {
	select {
	case w.clicks <- c:
	case <-w.stopped:
	}
}

func (w *Worker) apply(msg bridge.Message) {
	logger := w.logger.WithField("type", msg.Type)
	switch msg.Type {
	case bridge.TypeProviderConfig:
		w.providerConfig = msg.Config
		if w.cfg.Provider != nil {
			w.cfg.Provider.AttachBackground(w.Deliver)
		}
		logger.Info("Push provider initialized in background")
	case bridge.TypeAPIConfig:
		w.apiBaseURL = msg.APIBaseURL
		if w.cfg.NewBackend != nil {
			w.backend = w.cfg.NewBackend(msg.APIBaseURL)
		}
		logger.WithField("api_base_url", msg.APIBaseURL).Info("API base URL configured")
	case bridge.TypeDriverID:
		w.driverID = msg.DriverID
		logger.WithField("driver_id", msg.DriverID).Info("Driver ID configured")
	default:
		logger.Warn("Ignoring unknown bridge message")
	}
}

func (w *Worker) process(ctx context.Context, payload models.PushPayload) {
	logger := w.logger.WithField("message_id", payload.MessageID)
	logger.Info("Received background message")

	if err := w.persist(ctx, payload); err != nil {
		switch {
		case errors.Is(err, ErrUnresolvableRecipient):
			logger.WithError(err).Warn("Notification not saved")
		case errors.Is(err, ErrNoBackend):
			logger.WithError(err).Warn("Notification not saved")
		default:
			logger.WithError(err).Error("Error saving notification to backend")
		}
	}

	tag := payload.MessageID
	if tag == "" {
		tag = uuid.NewString()
	}
	note := push.Notification{
		Tag:                tag,
		Title:              payload.Title(),
		Body:               payload.Body(),
		Data:               payload.Data,
		RequireInteraction: true,
		Actions:            push.DefaultActions,
	}
	if err := w.cfg.Notifier.Show(ctx, note); err != nil {
		logger.WithError(err).Error("Failed to show notification")
	}
}

func (w *Worker) persist(ctx context.Context, payload models.PushPayload) error {
	if w.backend == nil {
		return ErrNoBackend
	}
	entityID, ok := w.resolveRecipient(ctx, payload)
	if !ok {
		return ErrUnresolvableRecipient
	}
	caps := Capabilities{Notifications: w.backend, Credential: api.TokenFunc(w.storedCredential)}
	return Persist(ctx, caps, Normalize(payload, entityID), w.logger)
}

// resolveRecipient tries the configured driver id, the payload, and the
// stored credential, in that order.
func (w *Worker) resolveRecipient(ctx context.Context, payload models.PushPayload) (int64, bool) {
	if w.driverID != 0 {
		return w.driverID, true
	}
	if id, ok := payload.DriverID(); ok {
		return id, true
	}

	token, _ := w.storedCredential(ctx)
	if token == "" {
		return 0, false
	}
	claims, err := auth.DecodeCredential(token)
	if err != nil {
		w.logger.WithError(err).Warn("Stored credential undecodable")
		return 0, false
	}
	resp, err := w.backend.GetDriverByUserID(ctx, claims.UserID, token)
	if err != nil {
		w.logger.WithError(err).WithField("user_id", claims.UserID).Warn("Driver lookup failed")
		return 0, false
	}
	if resp == nil || resp.Driver == nil || resp.Driver.ID == 0 {
		return 0, false
	}
	return resp.Driver.ID, true
}

func (w *Worker) storedCredential(ctx context.Context) (string, error) {
	if w.cfg.Tokens == nil {
		return "", nil
	}
	token, err := w.cfg.Tokens.Get(ctx, db.AuthTokenKey)
	if err != nil {
		w.logger.WithError(err).Warn("Token store unreadable")
		return "", nil
	}
	return token, nil
}

func (w *Worker) click(ctx context.Context, c Click) {
	logger := w.logger.WithFields(log.Fields{"action": c.Action, "tag": c.Tag})
	logger.Info("Notification click received")

	if err := w.cfg.Notifier.Close(ctx, c.Tag); err != nil {
		logger.WithError(err).Warn("Failed to close notification")
	}
	if c.Action == push.ActionView || c.Action == "" {
		if err := w.cfg.Opener.Open(ctx, NotificationsPage); err != nil {
			logger.WithError(err).Error("Failed to open app")
		}
	}
}

// State is a snapshot of the worker's configuration.
type State struct {
	APIBaseURL     string
	DriverID       int64
	ProviderConfig models.ProviderConfig
}

// Snapshot asks the running worker for its configuration.
func (w *Worker) Snapshot(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	select {
	case w.snapshots <- reply:
	case <-w.stopped:
		return State{}, errors.New("worker stopped")
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}
