package models

import (
	"strconv"
	"time"
)

const (
	DefaultNotificationTitle = "New Notification"
	DefaultNotificationBody  = "You have a new notification"
	DefaultNotificationFrom  = "firebase"
)

// NotificationRecord is a notification persisted by the backend.
type NotificationRecord struct {
	ID        int64          `json:"id"`
	EntityID  int64          `json:"entityId"`
	Source    string         `json:"fcmFrom"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Payload   map[string]any `json:"payload"`
	IsRead    bool           `json:"isRead"`
	CreatedAt time.Time      `json:"createdAt"`
}

// TripID extracts the trip reference carried in the payload. Push data is
// string-typed, but records coming back from the backend may carry numbers.
func (n NotificationRecord) TripID() (int64, bool) {
	if n.Payload == nil {
		return 0, false
	}
	switch v := n.Payload["tripId"].(type) {
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return 0, false
		}
		return id, true
	case float64:
		if v <= 0 || v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case int64:
		return v, v > 0
	case int:
		return int64(v), v > 0
	default:
		return 0, false
	}
}

// NotificationContent is the visible part of a push.
type NotificationContent struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// CreateNotificationRequest is the canonical body of POST /notifications/create.
type CreateNotificationRequest struct {
	EntityID     int64               `json:"entityId"`
	FCMFrom      string              `json:"fcmFrom"`
	Notification NotificationContent `json:"notification"`
	Data         map[string]string   `json:"data"`
}

// NotificationListRequest is the body of POST /notifications/list.
type NotificationListRequest struct {
	EntityID    int64 `json:"entityId"`
	PageNo      int   `json:"pageNo"`
	RowsPerPage int   `json:"rowsPerPage"`
}

// NotificationListResponse is one page of persisted notifications.
type NotificationListResponse struct {
	Items       []NotificationRecord `json:"items"`
	TotalCount  int                  `json:"totalCount"`
	TotalPages  int                  `json:"totalPages"`
	PageNo      int                  `json:"pageNo"`
	RowsPerPage int                  `json:"rowsPerPage"`
}

// SubscribeRequest registers a push token for a driver.
type SubscribeRequest struct {
	Token    string `json:"token"`
	DriverID int64  `json:"driverId"`
}

// PushPayload is a message as handed over by the push provider.
type PushPayload struct {
	From         string               `json:"from,omitempty"`
	MessageID    string               `json:"messageId,omitempty"`
	CollapseKey  string               `json:"collapseKey,omitempty"`
	Notification *NotificationContent `json:"notification,omitempty"`
	Data         map[string]string    `json:"data,omitempty"`
}

// Title returns the notification title or the default one.
func (p PushPayload) Title() string {
	if p.Notification != nil && p.Notification.Title != "" {
		return p.Notification.Title
	}
	return DefaultNotificationTitle
}

// Body returns the notification body or the default one.
func (p PushPayload) Body() string {
	if p.Notification != nil && p.Notification.Body != "" {
		return p.Notification.Body
	}
	return DefaultNotificationBody
}

// DriverID returns the driver id embedded in the data section, if any.
func (p PushPayload) DriverID() (int64, bool) {
	raw, ok := p.Data["driverId"]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ProviderConfig is the push provider client configuration forwarded to the
// background context.
type ProviderConfig map[string]string
