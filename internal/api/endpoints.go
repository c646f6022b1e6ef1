package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ukydev/fleet-driver/internal/models"
)

// Login exchanges email and password for a bearer credential.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	var out models.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/users/login", authNone, "", req, &out, "Login failed"); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDriverByUserID looks up the driver profile of a user with an explicit
// credential, since the caller may be resolving identity from a token it
// just decoded.
func (c *Client) GetDriverByUserID(ctx context.Context, userID int64, token string) (*models.DriverResponse, error) {
	var out models.DriverResponse
	path := fmt.Sprintf("/drivers/by-user/%d", userID)
	if err := c.do(ctx, http.MethodGet, path, authRequired, token, nil, &out, "Failed to fetch driver"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTripsByDriver returns one page of the driver's trips.
func (c *Client) ListTripsByDriver(ctx context.Context, driverID int64, pageNo, rowsPerPage int) (*models.TripsByDriverResponse, error) {
	var out models.TripsByDriverResponse
	body := models.TripsByDriverRequest{DriverID: driverID, PageNo: pageNo, RowsPerPage: rowsPerPage}
	if err := c.do(ctx, http.MethodPost, "/trips/by-driver", authRequired, "", body, &out, "Failed to fetch trips"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) tripAction(ctx context.Context, action string, tripID int64, failMsg string) (*models.TripStatusUpdateResponse, error) {
	var out models.TripStatusUpdateResponse
	body := models.TripActionRequest{TripID: tripID}
	if err := c.do(ctx, http.MethodPost, "/trips/"+action, authRequired, "", body, &out, failMsg); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MarkTripLoaded(ctx context.Context, tripID int64) (*models.TripStatusUpdateResponse, error) {
	return c.tripAction(ctx, "loaded", tripID, "Failed to mark trip as loaded")
}

func (c *Client) MarkTripReached(ctx context.Context, tripID int64) (*models.TripStatusUpdateResponse, error) {
	return c.tripAction(ctx, "reached", tripID, "Failed to mark trip as reached destination")
}

func (c *Client) CompleteTrip(ctx context.Context, tripID int64) (*models.TripStatusUpdateResponse, error) {
	return c.tripAction(ctx, "complete", tripID, "Failed to complete trip")
}

func (c *Client) AcceptTrip(ctx context.Context, tripID int64) (*models.TripStatusUpdateResponse, error) {
	return c.tripAction(ctx, "accept", tripID, "Failed to accept trip")
}

func (c *Client) RejectTrip(ctx context.Context, tripID int64) (*models.TripStatusUpdateResponse, error) {
	return c.tripAction(ctx, "reject", tripID, "Failed to reject trip")
}

// RegisterLoadedAttachment records a loading photo URL against a trip.
func (c *Client) RegisterLoadedAttachment(ctx context.Context, tripID int64, url string) (*models.AttachmentResponse, error) {
	var out models.AttachmentResponse
	body := struct {
		TripID int64  `json:"tripId"`
		URL    string `json:"url"`
	}{tripID, url}
	if err := c.do(ctx, http.MethodPost, "/attachments/loaded", authRequired, "", body, &out, "Failed to upload loaded image URL"); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegisterInvoiceAttachment records an invoice photo URL against an order.
func (c *Client) RegisterInvoiceAttachment(ctx context.Context, orderID int64, url string) (*models.AttachmentResponse, error) {
	var out models.AttachmentResponse
	body := struct {
		OrderID int64  `json:"orderId"`
		URL     string `json:"url"`
	}{orderID, url}
	if err := c.do(ctx, http.MethodPost, "/attachments/invoice", authRequired, "", body, &out, "Failed to upload invoice image URL"); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateNotification persists a received push. The credential is attached
// when one can be read; the call is made without it otherwise.
func (c *Client) CreateNotification(ctx context.Context, req models.CreateNotificationRequest) error {
	return c.CreateNotificationWithToken(ctx, req, "")
}

// CreateNotificationWithToken is CreateNotification with an explicit
// credential. An empty token falls back to the client's token source.
func (c *Client) CreateNotificationWithToken(ctx context.Context, req models.CreateNotificationRequest, token string) error {
	return c.do(ctx, http.MethodPost, "/notifications/create", authOptional, token, req, nil, "Failed to save notification")
}

// ListNotifications returns one page of the driver's persisted notifications.
func (c *Client) ListNotifications(ctx context.Context, entityID int64, pageNo, rowsPerPage int) (*models.NotificationListResponse, error) {
	var out models.NotificationListResponse
	body := models.NotificationListRequest{EntityID: entityID, PageNo: pageNo, RowsPerPage: rowsPerPage}
	if err := c.do(ctx, http.MethodPost, "/notifications/list", authRequired, "", body, &out, "Failed to fetch notifications"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Subscribe registers the installation's push token for the driver.
func (c *Client) Subscribe(ctx context.Context, token string, driverID int64) error {
	body := models.SubscribeRequest{Token: token, DriverID: driverID}
	return c.do(ctx, http.MethodPost, "/notifications/subscribe", authRequired, "", body, nil, "Failed to send push token")
}

// MarkNotificationRead flags a persisted notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/notifications/%d/read", id)
	return c.do(ctx, http.MethodPatch, path, authRequired, "", nil, nil, "Failed to mark notification as read")
}
