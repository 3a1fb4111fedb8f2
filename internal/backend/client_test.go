package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Options{BaseURL: server.URL + "/api/v1", Token: "backend-token"})
}

func writeEnvelope(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "message": message, "data": data})
}

func TestClient_ListDevices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/devices", r.URL.Path)
		require.Equal(t, "1", r.URL.Query().Get("page"))
		require.Equal(t, "10", r.URL.Query().Get("limit"))
		require.Equal(t, "quest", r.URL.Query().Get("search"))
		require.Equal(t, "Bearer backend-token", r.Header.Get("Authorization"))
		writeEnvelope(w, 200, "ok", map[string]any{
			"rows":  []map[string]any{{"id": "d1", "deviceId": "HW-1", "title": "Quest 1", "deviceStatus": "CONNECTED"}},
			"count": 1, "page": 1, "limit": 10,
		})
	})

	page, err := client.ListDevices(context.Background(), ListParams{Page: 1, Limit: 10, Search: "quest"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Count)
	require.Len(t, page.Rows, 1)
	require.Equal(t, "HW-1", page.Rows[0].DeviceID)
	require.True(t, page.Rows[0].Online())
}

func TestClient_UpdateSessionStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/api/v1/sessions-history/s1", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "PLAYING", body["status"])
		writeEnvelope(w, 200, "updated", map[string]any{"id": "s1", "status": "PLAYING"})
	})

	session, err := client.UpdateSessionStatus(context.Background(), "s1", StatusPlaying)
	require.NoError(t, err)
	require.Equal(t, StatusPlaying, session.Status)
}

func TestClient_CreateSessionOmitsEmptyVideo(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, hasVideo := body["videoId"]
		require.False(t, hasVideo)
		require.Equal(t, "SINGLE", body["playAction"])
		require.Equal(t, "Fire Drill - Quest 1", body["title"])
		writeEnvelope(w, 201, "created", map[string]any{"id": "s2", "status": "PENDING"})
	})

	session, err := client.CreateSession(context.Background(), CreateSessionRequest{
		DeviceID:   "d1",
		ActivityID: "a1",
		Title:      "Fire Drill - Quest 1",
		PlayAction: PlayActionSingle,
	})
	require.NoError(t, err)
	require.Equal(t, "s2", session.ID)
}

func TestClient_ReplayMultiple(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/sessions-history/replay", r.URL.Path)
		var body map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, []string{"d2", "d3"}, body["deviceIds"])
		writeEnvelope(w, 200, "ok", map[string]any{
			"successful": []map[string]any{{"deviceId": "d2"}},
			"failed":     []map[string]any{{"deviceId": "d3", "error": "No session to replay"}},
		})
	})

	result, err := client.ReplayMultiple(context.Background(), []string{"d2", "d3"})
	require.NoError(t, err)
	require.Len(t, result.Successful, 1)
	require.Len(t, result.Failed, 1)
	require.Equal(t, "No session to replay", result.Failed[0].Error)
}

func TestClient_ErrorCarriesBackendMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 400, "Device is offline", nil)
	})

	_, err := client.UpdateSessionStatus(context.Background(), "s1", StatusPaused)
	require.Error(t, err)

	var backendErr *Error
	require.True(t, errors.As(err, &backendErr))
	require.Equal(t, 400, backendErr.StatusCode)
	require.Equal(t, "Device is offline", MessageOf(err))
}

func TestClient_LoginSendsNoBackendToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auth/login", r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))
		writeEnvelope(w, 200, "ok", map[string]any{
			"user":        map[string]any{"id": "u1", "email": "ops@example.com", "name": "Ops"},
			"accessToken": "a", "refreshToken": "r",
		})
	})

	result, err := client.Login(context.Background(), "ops@example.com", "secret")
	require.NoError(t, err)
	require.Equal(t, "u1", result.User.ID)
}

func TestClient_ReadBreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelope(w, 500, "boom", nil)
	})

	for i := 0; i < 5; i++ {
		_, err := client.ListActivities(context.Background())
		require.Error(t, err)
	}
	require.Equal(t, int32(5), calls.Load())

	_, err := client.ListActivities(context.Background())
	require.Error(t, err)
	require.True(t, IsUnavailable(err))
	require.Equal(t, int32(5), calls.Load())
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 404, "Device not found", nil)
	})

	for i := 0; i < 8; i++ {
		_, err := client.GetDevice(context.Background(), "missing")
		require.True(t, IsNotFound(err))
	}
}

func TestMessageOf(t *testing.T) {
	require.Equal(t, "bad", MessageOf(&Error{StatusCode: 400, Message: "bad"}))
	require.Equal(t, "backend returned status 502", MessageOf(&Error{StatusCode: 502}))
	require.Equal(t, "dial failed", MessageOf(errors.New("dial failed")))
	require.Equal(t, UnknownErrorMessage, MessageOf(nil))
}

func TestEndpointLabel(t *testing.T) {
	require.Equal(t, "/devices", endpointLabel("/devices?page=1"))
	require.Equal(t, "/devices/:id", endpointLabel("/devices/abc"))
	require.Equal(t, "/sessions-history/replay", endpointLabel("/sessions-history/replay"))
	require.Equal(t, "/sessions-history/:id/replay", endpointLabel("/sessions-history/s1/replay"))
	require.Equal(t, "/auth/me", endpointLabel("/auth/me"))
}
