package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-driver/internal/models"
)

func TestClient_RequiresCredentialWithoutNetwork(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	client := NewClient(server.URL, 0, nil, nil)

	_, err := client.AcceptTrip(context.Background(), 5)
	assert.ErrorIs(t, err, ErrAuthRequired)
	_, err = client.ListTripsByDriver(context.Background(), 1, 1, 10)
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Equal(t, 0, calls)
}

func TestClient_TripActions(t *testing.T) {
	tests := []struct {
		name string
		path string
		call func(c *Client) (*models.TripStatusUpdateResponse, error)
	}{
		{"loaded", "/trips/loaded", func(c *Client) (*models.TripStatusUpdateResponse, error) { return c.MarkTripLoaded(context.Background(), 42) }},
		{"reached", "/trips/reached", func(c *Client) (*models.TripStatusUpdateResponse, error) { return c.MarkTripReached(context.Background(), 42) }},
		{"complete", "/trips/complete", func(c *Client) (*models.TripStatusUpdateResponse, error) { return c.CompleteTrip(context.Background(), 42) }},
		{"accept", "/trips/accept", func(c *Client) (*models.TripStatusUpdateResponse, error) { return c.AcceptTrip(context.Background(), 42) }},
		{"reject", "/trips/reject", func(c *Client) (*models.TripStatusUpdateResponse, error) { return c.RejectTrip(context.Background(), 42) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, tt.path, r.URL.Path)
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, float64(42), body["tripId"])

				w.Write([]byte(`{"message":"ok","trip":{"id":42,"tripStatus":"LOADED"}}`))
			}))
			defer server.Close()

			client := NewClient(server.URL, 0, StaticToken("tok"), nil)
			resp, err := tt.call(client)
			require.NoError(t, err)
			assert.Equal(t, "ok", resp.Message)
			require.NotNil(t, resp.Trip)
			assert.Equal(t, int64(42), resp.Trip.ID)
		})
	}
}

func TestClient_StatusErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/trips/accept":
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"message":"Trip already assigned"}`))
		case "/users/login":
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"bad password"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`not json`))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, 0, StaticToken("tok"), nil)

	_, err := client.AcceptTrip(context.Background(), 1)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusConflict, se.Code)
	assert.Equal(t, "Trip already assigned", se.Message)

	_, err = client.Login(context.Background(), models.LoginRequest{UserEmail: "a@b.c", Password: "x"})
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "bad password", se.Message)

	_, err = client.MarkTripReached(context.Background(), 1)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Failed to mark trip as reached destination", se.Message)
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, 0, StaticToken("tok"), nil)
	_, err := client.CompleteTrip(context.Background(), 1)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_CreateNotification_BestEffortAuth(t *testing.T) {
	var gotAuth []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications/create", r.URL.Path)
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))

		var req models.CreateNotificationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(9), req.EntityID)
		assert.Equal(t, "Offer", req.Notification.Title)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	req := models.CreateNotificationRequest{
		EntityID:     9,
		FCMFrom:      "firebase",
		Notification: models.NotificationContent{Title: "Offer", Body: "b"},
		Data:         map[string]string{"tripId": "7"},
	}

	require.NoError(t, NewClient(server.URL, 0, nil, nil).CreateNotification(context.Background(), req))
	require.NoError(t, NewClient(server.URL, 0, StaticToken("tok"), nil).CreateNotification(context.Background(), req))
	require.NoError(t, NewClient(server.URL, 0, StaticToken("tok"), nil).CreateNotificationWithToken(context.Background(), req, "explicit"))
	assert.Equal(t, []string{"", "Bearer tok", "Bearer explicit"}, gotAuth)
}

func TestClient_GetDriverByUserID_ExplicitToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/drivers/by-user/17", r.URL.Path)
		assert.Equal(t, "Bearer decoded", r.Header.Get("Authorization"))
		w.Write([]byte(`{"driver":{"id":5,"assignedUserId":17}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 0, StaticToken("session"), nil)
	resp, err := client.GetDriverByUserID(context.Background(), 17, "decoded")
	require.NoError(t, err)
	require.NotNil(t, resp.Driver)
	assert.Equal(t, int64(5), resp.Driver.ID)
}

func TestClient_ListsAndAttachments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil && r.ContentLength != 0 {
			json.NewDecoder(r.Body).Decode(&body)
		}
		switch r.URL.Path {
		case "/trips/by-driver":
			assert.Equal(t, float64(3), body["driverId"])
			assert.Equal(t, float64(1), body["pageNo"])
			assert.Equal(t, float64(100), body["rowsPerPage"])
			w.Write([]byte(`{"driverId":3,"items":[{"id":1,"tripStatus":"ASSIGNED"}],"totalCount":1}`))
		case "/notifications/list":
			assert.Equal(t, float64(3), body["entityId"])
			w.Write([]byte(`{"items":[{"id":8,"title":"t","isRead":false,"createdAt":"2025-01-01T00:00:00Z"}],"totalCount":1}`))
		case "/attachments/loaded":
			assert.Equal(t, float64(1), body["tripId"])
			assert.Equal(t, "https://cdn/a.jpg", body["url"])
			w.Write([]byte(`{"message":"saved","attachment":{"id":1,"url":"https://cdn/a.jpg"}}`))
		case "/attachments/invoice":
			assert.Equal(t, float64(1), body["orderId"])
			_, hasTrip := body["tripId"]
			assert.False(t, hasTrip)
			w.Write([]byte(`{"message":"saved"}`))
		case "/notifications/subscribe":
			assert.Equal(t, "push-token", body["token"])
			assert.Equal(t, float64(3), body["driverId"])
			w.WriteHeader(http.StatusOK)
		case "/notifications/8/read":
			assert.Equal(t, http.MethodPatch, r.Method)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client := NewClient(server.URL+"/", 0, StaticToken("tok"), nil)

	trips, err := client.ListTripsByDriver(ctx, 3, 1, 100)
	require.NoError(t, err)
	require.Len(t, trips.Items, 1)
	assert.Equal(t, models.TripAssigned, trips.Items[0].Status())

	notes, err := client.ListNotifications(ctx, 3, 1, 50)
	require.NoError(t, err)
	require.Len(t, notes.Items, 1)
	assert.Equal(t, int64(8), notes.Items[0].ID)

	att, err := client.RegisterLoadedAttachment(ctx, 1, "https://cdn/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/a.jpg", att.Attachment.URL)

	_, err = client.RegisterInvoiceAttachment(ctx, 1, "https://cdn/b.jpg")
	require.NoError(t, err)

	require.NoError(t, client.Subscribe(ctx, "push-token", 3))
	require.NoError(t, client.MarkNotificationRead(ctx, 8))
}

func TestClient_WithBaseURL(t *testing.T) {
	client := NewClient("http://a.example", 0, nil, nil)
	other := client.WithBaseURL("http://b.example/")

	assert.Equal(t, "http://a.example", client.BaseURL())
	assert.Equal(t, "http://b.example", other.BaseURL())
}
