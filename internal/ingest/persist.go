package ingest

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-driver/internal/api"
	"github.com/ukydev/fleet-driver/internal/models"
)

var (
	// ErrUnresolvableRecipient means no driver could be determined for a
	// push; the record is not persisted.
	ErrUnresolvableRecipient = errors.New("notification recipient could not be resolved")
	// ErrNoBackend means the background context has not been told where the
	// API lives yet.
	ErrNoBackend = errors.New("api base url not configured")
)

// NotificationCreator persists notifications on the backend.
type NotificationCreator interface {
	CreateNotificationWithToken(ctx context.Context, req models.CreateNotificationRequest, token string) error
}

// Capabilities are what a context must provide to persist a push.
type Capabilities struct {
	Notifications NotificationCreator
	Credential    api.TokenSource
}

// Normalize turns a provider payload into the canonical persist body.
func Normalize(payload models.PushPayload, entityID int64) models.CreateNotificationRequest {
	from := payload.From
	if from == "" {
		from = models.DefaultNotificationFrom
	}
	data := make(map[string]string, len(payload.Data))
	for k, v := range payload.Data {
		data[k] = v
	}
	return models.CreateNotificationRequest{
		EntityID: entityID,
		FCMFrom:  from,
		Notification: models.NotificationContent{
			Title: payload.Title(),
			Body:  payload.Body(),
		},
		Data: data,
	}
}

// Persist sends req to the backend once. The credential is attached when
// one is readable; without one the call is still made. Failures are logged
// and returned, never retried.
func Persist(ctx context.Context, caps Capabilities, req models.CreateNotificationRequest, logger log.FieldLogger) error {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if caps.Notifications == nil {
		return ErrNoBackend
	}
	logger = logger.WithField("entity_id", req.EntityID)

	var token string
	if caps.Credential != nil {
		t, err := caps.Credential.Token(ctx)
		if err != nil {
			logger.WithError(err).Warn("Auth token unreadable")
		}
		token = t
	}
	if token == "" {
		logger.Warn("No auth token available, saving notification unauthenticated")
	}

	if err := caps.Notifications.CreateNotificationWithToken(ctx, req, token); err != nil {
		logger.WithError(err).Error("Failed to save notification to backend")
		return fmt.Errorf("persist notification: %w", err)
	}
	logger.Info("Notification saved to backend successfully")
	return nil
}

// Record builds the local cache entry for a push received in the foreground.
func Record(payload models.PushPayload, entityID int64) models.NotificationRecord {
	req := Normalize(payload, entityID)
	data := make(map[string]any, len(req.Data))
	for k, v := range req.Data {
		data[k] = v
	}
	return models.NotificationRecord{
		EntityID: entityID,
		Source:   req.FCMFrom,
		Title:    req.Notification.Title,
		Body:     req.Notification.Body,
		Payload:  data,
	}
}
