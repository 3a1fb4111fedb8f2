package system

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/vr-console-go/internal/fleet"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping() error { return p.err }

type fakeFleet struct{ dashboard fleet.Dashboard }

func (f fakeFleet) Dashboard() fleet.Dashboard { return f.dashboard }

type fakeClients int

func (c fakeClients) ClientCount() int { return int(c) }

type fakeAudit struct{ healthy, pruning bool }

func (a fakeAudit) IsHealthy() bool       { return a.healthy }
func (a fakeAudit) PruneJobRunning() bool { return a.pruning }

func healthyOptions() Options {
	return Options{
		DB: fakePinger{},
		Fleet: fakeFleet{dashboard: fleet.Dashboard{
			Stats:    fleet.Stats{Total: 5, Online: 4, Running: 2},
			Realtime: true,
			Queries:  map[string]fleet.QueryStatus{"devices": {Loaded: true}},
		}},
		Console:         fakeClients(3),
		Audit:           fakeAudit{healthy: true, pruning: true},
		RealtimeEnabled: true,
	}
}

func TestGetSystemInfo(t *testing.T) {
	service := NewService(healthyOptions())
	start := service.startTime
	service.now = func() time.Time { return start.Add(90 * time.Second) }

	info := service.GetSystemInfo()
	require.Equal(t, Version, info.Version)
	require.Equal(t, int64(90), info.Uptime)
	require.True(t, info.SQLiteConnected)
	require.Equal(t, 4, info.DevicesOnline)
	require.Equal(t, 5, info.DevicesTotal)
	require.Equal(t, 2, info.SessionsRunning)
	require.True(t, info.RealtimeConnected)
	require.Equal(t, 3, info.ConsoleClients)
	require.True(t, info.AuditPruneRunning)
	require.Positive(t, info.Goroutines)
}

func TestGetSystemInfo_NoCollaborators(t *testing.T) {
	info := NewService(Options{}).GetSystemInfo()
	require.False(t, info.SQLiteConnected)
	require.Zero(t, info.DevicesTotal)
	require.Zero(t, info.ConsoleClients)
}

func TestAttention_HealthyIsEmpty(t *testing.T) {
	require.Empty(t, NewService(healthyOptions()).Attention())
}

func TestAttention_ErrorsBeforeWarnings(t *testing.T) {
	opts := healthyOptions()
	opts.DB = fakePinger{err: errors.New("disk I/O error")}
	opts.Audit = fakeAudit{healthy: false}
	opts.Fleet = fakeFleet{dashboard: fleet.Dashboard{
		Stats:    fleet.Stats{Total: 2, Online: 0},
		Realtime: false,
		Queries: map[string]fleet.QueryStatus{
			"sessions": {Error: "backend unavailable"},
			"devices":  {Error: "timeout"},
		},
	}}

	items := NewService(opts).Attention()
	types := make([]string, 0, len(items))
	for _, item := range items {
		types = append(types, item.Type)
	}
	require.Equal(t, []string{
		"database_unavailable",
		"backend_query_failed",
		"backend_query_failed",
		"audit_unhealthy",
		"realtime_disconnected",
		"all_devices_offline",
	}, types)
	require.Equal(t, "Failed to load devices", items[1].Message)
	require.Equal(t, "Failed to load sessions", items[2].Message)
}

func TestAttention_RealtimeDisabledIsNotReported(t *testing.T) {
	opts := healthyOptions()
	opts.RealtimeEnabled = false
	opts.Fleet = fakeFleet{dashboard: fleet.Dashboard{Stats: fleet.Stats{Total: 1, Online: 1}}}

	require.Empty(t, NewService(opts).Attention())
}

func TestRoutes(t *testing.T) {
	router := chi.NewRouter()
	RegisterRoutes(router, NewService(healthyOptions()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/system/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Equal(t, "system_info", info["object"])
	require.Equal(t, float64(5), info["devices_total"])
	require.Equal(t, float64(3), info["console_clients"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/system/attention", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Object string          `json:"object"`
		Data   []AttentionItem `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, "list", list.Object)
	require.Empty(t, list.Data)
}
