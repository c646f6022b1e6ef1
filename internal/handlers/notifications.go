package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/ukydev/fleet-driver/internal/models"
	"github.com/ukydev/fleet-driver/internal/notifications"
	"github.com/ukydev/fleet-driver/internal/trips"
)

var errOfferAnswered = errors.New("trip offer already answered")

// OfferResponder answers trip offers carried by notifications.
type OfferResponder interface {
	RespondToOffer(ctx context.Context, record models.NotificationRecord, response trips.Response) (*models.TripStatusUpdateResponse, error)
}

// NotificationHandler serves the notification list and its actions.
type NotificationHandler struct {
	store   *notifications.Store
	session Session
	offers  OfferResponder
}

func NewNotificationHandler(store *notifications.Store, session Session, offers OfferResponder) *NotificationHandler {
	return &NotificationHandler{store: store, session: session, offers: offers}
}

type notificationView struct {
	models.NotificationRecord
	Actionable bool `json:"actionable"`
}

type notificationList struct {
	Items       []notificationView `json:"items"`
	UnreadCount int                `json:"unreadCount"`
}

func (h *NotificationHandler) list() notificationList {
	records := h.store.List()
	items := make([]notificationView, 0, len(records))
	for _, rec := range records {
		items = append(items, notificationView{NotificationRecord: rec, Actionable: notifications.Actionable(rec)})
	}
	return notificationList{Items: items, UnreadCount: h.store.UnreadCount()}
}

// List returns the local notification view, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.list())
}

// Refresh reloads the first page from the backend.
func (h *NotificationHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	driverID := h.session.DriverID()
	if driverID == 0 {
		writeError(w, trips.ErrUnknownDriver)
		return
	}
	if err := h.store.Refresh(r.Context(), driverID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.list())
}

// MarkRead flags one notification read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "Invalid notification ID", http.StatusBadRequest)
		return
	}
	if _, found := h.store.Get(id); !found {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}
	if err := h.session.MarkNotificationRead(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": h.store.UnreadCount()})
}

// Accept accepts the trip offer a notification carries.
func (h *NotificationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, trips.Accept)
}

// Reject rejects the trip offer a notification carries.
func (h *NotificationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, trips.Reject)
}

func (h *NotificationHandler) respond(w http.ResponseWriter, r *http.Request, response trips.Response) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "Invalid notification ID", http.StatusBadRequest)
		return
	}
	record, found := h.store.Get(id)
	if !found {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}
	// A read offer has been answered already.
	if record.IsRead {
		writeError(w, errOfferAnswered)
		return
	}
	resp, err := h.offers.RespondToOffer(r.Context(), record, response)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
