package ingest

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-driver/internal/models"
	"github.com/ukydev/fleet-driver/internal/notifications"
	"github.com/ukydev/fleet-driver/internal/push"
)

// IdentitySource resolves the signed-in driver.
type IdentitySource interface {
	ResolveDriverID(ctx context.Context) (int64, bool)
}

// Alerter shows a transient in-app alert.
type Alerter interface {
	Alert(ctx context.Context, title, body string)
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(ctx context.Context, title, body string)

func (f AlerterFunc) Alert(ctx context.Context, title, body string) { f(ctx, title, body) }

// Foreground handles pushes while the app is in the foreground.
type Foreground struct {
	caps     Capabilities
	identity IdentitySource
	store    *notifications.Store
	alerter  Alerter
	logger   log.FieldLogger
	now      func() time.Time

	mu       sync.RWMutex
	driverID int64
}

func NewForeground(caps Capabilities, identity IdentitySource, store *notifications.Store, alerter Alerter, logger log.FieldLogger) *Foreground {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Foreground{
		caps:     caps,
		identity: identity,
		store:    store,
		alerter:  alerter,
		logger:   logger.WithField("component", "foreground"),
		now:      time.Now,
	}
}

// SetDriverID pins the driver id so pushes need no identity lookup. Zero
// clears it.
func (f *Foreground) SetDriverID(id int64) {
	f.mu.Lock()
	f.driverID = id
	f.mu.Unlock()
}

// Register attaches the listener to the provider. The returned function
// detaches it.
func (f *Foreground) Register(p push.Provider) func() {
	return p.OnForeground(f.Handle)
}

// Handle persists payload when the driver is known, then hands it to the
// notification store and the alerter regardless.
func (f *Foreground) Handle(ctx context.Context, payload models.PushPayload) {
	logger := f.logger.WithField("message_id", payload.MessageID)
	logger.Info("Message received in foreground")

	f.mu.RLock()
	entityID := f.driverID
	f.mu.RUnlock()

	known := entityID != 0
	if !known && f.identity != nil {
		entityID, known = f.identity.ResolveDriverID(ctx)
	}

	if known {
		_ = Persist(ctx, f.caps, Normalize(payload, entityID), logger)
	} else {
		logger.Warn("Could not determine driver ID for notification saving")
	}

	if f.store != nil {
		record := Record(payload, entityID)
		record.CreatedAt = f.now()
		f.store.Add(record)
	}
	if f.alerter != nil {
		f.alerter.Alert(ctx, payload.Title(), payload.Body())
	}
}
