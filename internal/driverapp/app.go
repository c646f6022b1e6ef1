package driverapp

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-driver/internal/api"
	"github.com/ukydev/fleet-driver/internal/auth"
	"github.com/ukydev/fleet-driver/internal/bridge"
	"github.com/ukydev/fleet-driver/internal/ingest"
	"github.com/ukydev/fleet-driver/internal/models"
	"github.com/ukydev/fleet-driver/internal/notifications"
	"github.com/ukydev/fleet-driver/internal/push"
	"github.com/ukydev/fleet-driver/internal/trips"
)

// DriverRole is the only role allowed to use the app.
const DriverRole = "driver"

// ErrNotDriver means the signed-in user has no driver profile.
var ErrNotDriver = errors.New("signed-in user is not a driver")

// Session is the identity side of the app.
type Session interface {
	Credential(ctx context.Context) string
	Identity(ctx context.Context) (models.DriverIdentity, bool)
	ResolveDriverID(ctx context.Context) (int64, bool)
	Login(ctx context.Context, token string) error
	Logout(ctx context.Context) error
}

// Backend is the part of the API the app calls directly.
type Backend interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	Subscribe(ctx context.Context, token string, driverID int64) error
	MarkNotificationRead(ctx context.Context, id int64) error
}

// Config is what the foreground forwards to the background context.
type Config struct {
	APIBaseURL     string
	ProviderConfig models.ProviderConfig
}

// Deps are the app's collaborators.
type Deps struct {
	Session    Session
	Backend    Backend
	Provider   push.Provider
	Bridge     bridge.Sender
	Foreground *ingest.Foreground
	Store      *notifications.Store
	Trips      *trips.Controller
	Logger     log.FieldLogger
}

// App is the foreground context: it establishes the driver identity, sets up
// push delivery and keeps the background context configured.
type App struct {
	cfg  Config
	deps Deps
	log  log.FieldLogger

	mu          sync.Mutex
	driverID    int64
	granted     bool
	pushToken   string
	subscribed  bool
	unsubscribe func()
}

func New(cfg Config, deps Deps) *App {
	logger := deps.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &App{cfg: cfg, deps: deps, log: logger.WithField("component", "app")}
}

// DriverID returns the driver the app booted for, 0 before Boot.
func (a *App) DriverID() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.driverID
}

// Boot resolves the driver, asks for display permission, forwards the
// configuration to the background, subscribes the push token and starts
// listening for foreground pushes. Push setup failures are logged; only a
// missing or non-driver identity fails Boot.
func (a *App) Boot(ctx context.Context) error {
	token := a.deps.Session.Credential(ctx)
	if token == "" {
		return api.ErrAuthRequired
	}
	if claims, err := auth.DecodeCredential(token); err == nil && claims.Role != "" && claims.Role != DriverRole {
		a.log.WithField("role", claims.Role).Warn("Signed-in user is not a driver")
		return ErrNotDriver
	}
	identity, ok := a.deps.Session.Identity(ctx)
	if !ok {
		a.log.Warn("Driver not found for current user")
		return ErrNotDriver
	}

	a.mu.Lock()
	a.driverID = identity.DriverID
	a.mu.Unlock()
	logger := a.log.WithField("driver_id", identity.DriverID)
	logger.Info("Driver found")

	if a.deps.Foreground != nil {
		a.deps.Foreground.SetDriverID(identity.DriverID)
	}

	granted := a.deps.Provider.RequestPermission(ctx)
	a.mu.Lock()
	newlyGranted := granted && !a.granted
	a.granted = granted
	a.mu.Unlock()
	if newlyGranted {
		a.sendConfig()
	}
	if granted {
		a.subscribePush(ctx, identity.DriverID)
	}

	a.listen()

	if a.deps.Store != nil {
		_ = a.deps.Store.Refresh(ctx, identity.DriverID)
	}
	if a.deps.Trips != nil {
		if _, err := a.deps.Trips.Refresh(ctx); err != nil {
			logger.WithError(err).Warn("Initial trip refresh failed")
		}
	}
	return nil
}

func (a *App) subscribePush(ctx context.Context, driverID int64) {
	token, err := a.deps.Provider.Token(ctx)
	if err != nil || token == "" {
		a.log.WithError(err).Warn("No registration token available")
		return
	}
	if err := a.deps.Backend.Subscribe(ctx, token, driverID); err != nil {
		a.log.WithError(err).Error("Failed to send push token")
		return
	}
	a.mu.Lock()
	a.pushToken = token
	a.subscribed = true
	a.mu.Unlock()
	a.log.Info("Push token registered successfully")
	a.send(bridge.DriverID(driverID))
}

func (a *App) listen() {
	if a.deps.Foreground == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unsubscribe != nil {
		return
	}
	a.unsubscribe = a.deps.Foreground.Register(a.deps.Provider)
}

func (a *App) sendConfig() {
	if len(a.cfg.ProviderConfig) > 0 {
		a.send(bridge.ProviderConfig(a.cfg.ProviderConfig))
	}
	if a.cfg.APIBaseURL != "" {
		a.send(bridge.APIConfig(a.cfg.APIBaseURL))
	}
}

func (a *App) send(msg bridge.Message) {
	if a.deps.Bridge == nil {
		return
	}
	if err := a.deps.Bridge.Send(msg); err != nil {
		a.log.WithError(err).WithField("type", msg.Type).Warn("Bridge message not delivered")
	}
}

// Resend pushes everything the background should know once more.
func (a *App) Resend() {
	a.mu.Lock()
	granted, subscribed, driverID := a.granted, a.subscribed, a.driverID
	a.mu.Unlock()

	if granted {
		a.sendConfig()
	}
	if subscribed && driverID != 0 {
		a.send(bridge.DriverID(driverID))
	}
}

// Run resends the configuration every time the background signals
// readiness, until ctx is done.
func (a *App) Run(ctx context.Context) {
	if a.deps.Bridge == nil {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.deps.Bridge.Ready():
			a.log.Debug("Background ready, resending configuration")
			a.Resend()
		}
	}
}

// Login exchanges credentials for a token, stores it and boots.
func (a *App) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	resp, err := a.deps.Backend.Login(ctx, models.LoginRequest{UserEmail: email, Password: password})
	if err != nil {
		return nil, err
	}
	if err := a.deps.Session.Login(ctx, resp.Token); err != nil {
		return nil, err
	}
	if err := a.Boot(ctx); err != nil {
		return resp, err
	}
	return resp, nil
}

// Logout stops foreground delivery and clears the credential everywhere.
func (a *App) Logout(ctx context.Context) error {
	a.mu.Lock()
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.driverID = 0
	a.subscribed = false
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if a.deps.Foreground != nil {
		a.deps.Foreground.SetDriverID(0)
	}
	if a.deps.Store != nil {
		a.deps.Store.Replace(nil)
	}
	return a.deps.Session.Logout(ctx)
}

// MarkNotificationRead flags a notification read locally and, for records
// the backend knows, remotely.
func (a *App) MarkNotificationRead(ctx context.Context, id int64) error {
	if id > 0 {
		if err := a.deps.Backend.MarkNotificationRead(ctx, id); err != nil {
			return err
		}
	}
	if a.deps.Store != nil {
		a.deps.Store.MarkRead(id)
	}
	return nil
}

// NotifierAlerter shows foreground alerts as transient system notifications.
type NotifierAlerter struct {
	Notifier push.Notifier
	Logger   log.FieldLogger
}

func (n NotifierAlerter) Alert(ctx context.Context, title, body string) {
	err := n.Notifier.Show(ctx, push.Notification{Tag: "alert-" + uuid.NewString(), Title: title, Body: body})
	if err != nil && n.Logger != nil {
		n.Logger.WithError(err).Warn("Failed to show alert")
	}
}
