package fleet

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/vr-console-go/internal/backend"
)

func newTestRouter(t *testing.T, fb *fakeBackend) (http.Handler, *Controller) {
	t.Helper()
	c, _ := newTestController(t, fb)
	router := chi.NewRouter()
	RegisterRoutes(router, c)
	return router, c
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestRoutes_Dashboard(t *testing.T) {
	router, _ := newTestRouter(t, &fakeBackend{devices: []backend.Device{device("x", "Quest X", true)}})

	rec, payload := doRequest(t, router, http.MethodGet, "/v1/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "dashboard", payload["object"])
	devices := payload["devices"].([]any)
	require.Len(t, devices, 1)
	require.Equal(t, "idle", devices[0].(map[string]any)["session_state"])
}

func TestRoutes_SelectActivityLocked(t *testing.T) {
	router, c := newTestRouter(t, &fakeBackend{
		devices:    []backend.Device{device("x", "Quest X", true)},
		sessions:   []backend.Session{session("sx", "x", backend.StatusPaused)},
		activities: []backend.Activity{fireDrill()},
	})
	_, err := c.ToggleDevice("x")
	require.NoError(t, err)

	rec, payload := doRequest(t, router, http.MethodPut, "/v1/selection/activity", `{"activity_id":"a1"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	errBody := payload["error"].(map[string]any)
	require.Equal(t, "ACTIVITY_LOCKED", errBody["code"])
}

func TestRoutes_SelectionFlow(t *testing.T) {
	router, _ := newTestRouter(t, &fakeBackend{
		devices:    []backend.Device{device("x", "Quest X", true)},
		activities: []backend.Activity{fireDrill()},
	})

	rec, payload := doRequest(t, router, http.MethodPost, "/v1/selection/devices/x", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, payload["selected"])

	rec, payload = doRequest(t, router, http.MethodPut, "/v1/selection/activity", `{"activity_id":"a1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	activity := payload["activity"].(map[string]any)
	require.Equal(t, "v1", activity["video_id"])

	rec, _ = doRequest(t, router, http.MethodPut, "/v1/selection/video", `{"activity_id":"a1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, payload = doRequest(t, router, http.MethodDelete, "/v1/selection", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, payload["device_ids"])
	require.Nil(t, payload["activity"])
}

func TestRoutes_CommandReturnsToast(t *testing.T) {
	fb := &fakeBackend{devices: []backend.Device{device("x", "Quest X", true)}}
	router, _ := newTestRouter(t, fb)

	rec, payload := doRequest(t, router, http.MethodPost, "/v1/commands/replay", `{"device_ids":["x"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	result := payload["result"].(map[string]any)
	require.Equal(t, true, result["ok"])
	require.Equal(t, "Replay initiated", result["toast"].(map[string]any)["title"])
	require.Equal(t, [][]string{{"x"}}, fb.replays)
}

func TestRoutes_StartWithoutActivity(t *testing.T) {
	router, _ := newTestRouter(t, &fakeBackend{devices: []backend.Device{device("x", "Quest X", true)}})

	rec, payload := doRequest(t, router, http.MethodPost, "/v1/commands/start", `{"device_ids":["x"]}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "NO_ACTIVITY_SELECTED", payload["error"].(map[string]any)["code"])
}

func TestRoutes_UnknownDevice(t *testing.T) {
	router, _ := newTestRouter(t, &fakeBackend{})

	rec, payload := doRequest(t, router, http.MethodPost, "/v1/selection/devices/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "DEVICE_NOT_FOUND", payload["error"].(map[string]any)["code"])
}

func TestRoutes_GetDevice(t *testing.T) {
	fb := &fakeBackend{
		devices:  []backend.Device{device("x", "Quest X", true)},
		offPage:  []backend.Device{device("y", "Quest Y", true)},
		sessions: []backend.Session{session("s1", "y", backend.StatusPlaying)},
	}
	router, _ := newTestRouter(t, fb)

	rec, payload := doRequest(t, router, http.MethodGet, "/v1/devices/x", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Quest X", payload["device"].(map[string]any)["name"])

	rec, payload = doRequest(t, router, http.MethodGet, "/v1/devices/y", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := payload["device"].(map[string]any)
	require.Equal(t, "Quest Y", view["name"])
	require.Equal(t, "running", view["session_state"])

	rec, payload = doRequest(t, router, http.MethodGet, "/v1/devices/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "DEVICE_NOT_FOUND", payload["error"].(map[string]any)["code"])
}

func TestRoutes_ListVideos(t *testing.T) {
	fb := &fakeBackend{videos: []backend.Video{
		{ID: "v1", Title: "Intro", Status: backend.VideoActive},
		{ID: "v2", Title: "Draft", Status: "INACTIVE"},
	}}
	router, _ := newTestRouter(t, fb)

	rec, payload := doRequest(t, router, http.MethodGet, "/v1/videos?status="+backend.VideoActive, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "list", payload["object"])
	require.Len(t, payload["data"].([]any), 1)
	require.Equal(t, false, payload["has_more"])

	rec, payload = doRequest(t, router, http.MethodGet, "/v1/videos?limit=500", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", payload["error"].(map[string]any)["code"])
}

func TestRoutes_CreateDeviceValidation(t *testing.T) {
	router, _ := newTestRouter(t, &fakeBackend{})

	rec, payload := doRequest(t, router, http.MethodPost, "/v1/devices", `{"device_id":"  "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := payload["error"].(map[string]any)
	require.Equal(t, "VALIDATION_ERROR", errBody["code"])
	require.Equal(t, "device_id is required; title is required", errBody["message"])
}
