package system

import (
	"runtime"
	"sort"
	"time"

	"github.com/strefethen/vr-console-go/internal/fleet"
)

// Version is the console version, set at build time or defaulted.
var Version = "1.0.0"

// Pinger reports database reachability.
type Pinger interface {
	Ping() error
}

// DashboardSource provides the current fleet dashboard.
type DashboardSource interface {
	Dashboard() fleet.Dashboard
}

// ClientCounter reports connected console clients.
type ClientCounter interface {
	ClientCount() int
}

// AuditStatus reports audit log health.
type AuditStatus interface {
	IsHealthy() bool
	PruneJobRunning() bool
}

// Options configures a Service. Nil collaborators are reported as absent.
type Options struct {
	DB              Pinger
	Fleet           DashboardSource
	Console         ClientCounter
	Audit           AuditStatus
	RealtimeEnabled bool
}

// Service reports process status and the problems an operator should see.
type Service struct {
	opts      Options
	startTime time.Time
	now       func() time.Time
}

// NewService creates a new system service.
func NewService(opts Options) *Service {
	return &Service{opts: opts, startTime: time.Now(), now: time.Now}
}

// SystemInfo holds system information.
type SystemInfo struct {
	Version           string  `json:"version"`
	Uptime            int64   `json:"uptime_seconds"`
	MemoryUsageMB     float64 `json:"memory_mb"`
	Goroutines        int     `json:"goroutines"`
	SQLiteConnected   bool    `json:"sqlite_connected"`
	DevicesOnline     int     `json:"devices_online"`
	DevicesTotal      int     `json:"devices_total"`
	SessionsRunning   int     `json:"sessions_running"`
	RealtimeEnabled   bool    `json:"realtime_enabled"`
	RealtimeConnected bool    `json:"realtime_connected"`
	ConsoleClients    int     `json:"console_clients"`
	AuditPruneRunning bool    `json:"audit_prune_running"`
}

// Severity levels for attention items.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// AttentionItem represents something an operator should look at.
type AttentionItem struct {
	Type        string         `json:"type"`
	Severity    string         `json:"severity"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	ResolveHint string         `json:"resolve_hint,omitempty"`
}

// GetSystemInfo returns current system information.
func (s *Service) GetSystemInfo() SystemInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	info := SystemInfo{
		Version:         Version,
		Uptime:          int64(s.now().Sub(s.startTime).Seconds()),
		MemoryUsageMB:   float64(memStats.Alloc) / 1024 / 1024,
		Goroutines:      runtime.NumGoroutine(),
		RealtimeEnabled: s.opts.RealtimeEnabled,
	}
	if s.opts.DB != nil {
		info.SQLiteConnected = s.opts.DB.Ping() == nil
	}
	if s.opts.Fleet != nil {
		dashboard := s.opts.Fleet.Dashboard()
		info.DevicesOnline = dashboard.Stats.Online
		info.DevicesTotal = dashboard.Stats.Total
		info.SessionsRunning = dashboard.Stats.Running
		info.RealtimeConnected = dashboard.Realtime
	}
	if s.opts.Console != nil {
		info.ConsoleClients = s.opts.Console.ClientCount()
	}
	if s.opts.Audit != nil {
		info.AuditPruneRunning = s.opts.Audit.PruneJobRunning()
	}
	return info
}

// Attention lists current problems, errors first.
func (s *Service) Attention() []AttentionItem {
	var errs, warnings []AttentionItem

	if s.opts.DB != nil {
		if err := s.opts.DB.Ping(); err != nil {
			errs = append(errs, AttentionItem{
				Type:        "database_unavailable",
				Severity:    SeverityError,
				Message:     "The local database is not reachable",
				Details:     map[string]any{"error": err.Error()},
				ResolveHint: "Check SQLITE_DB_PATH and disk space",
			})
		}
	}
	if s.opts.Audit != nil && !s.opts.Audit.IsHealthy() {
		warnings = append(warnings, AttentionItem{
			Type:     "audit_unhealthy",
			Severity: SeverityWarning,
			Message:  "Audit events are failing to write",
		})
	}
	if s.opts.Fleet != nil {
		dashboard := s.opts.Fleet.Dashboard()
		for _, name := range sortedKeys(dashboard.Queries) {
			q := dashboard.Queries[name]
			if q.Error == "" {
				continue
			}
			errs = append(errs, AttentionItem{
				Type:        "backend_query_failed",
				Severity:    SeverityError,
				Message:     "Failed to load " + name,
				Details:     map[string]any{"query": name, "error": q.Error},
				ResolveHint: "Check BACKEND_API_URL and BACKEND_API_TOKEN",
			})
		}
		if s.opts.RealtimeEnabled && !dashboard.Realtime {
			warnings = append(warnings, AttentionItem{
				Type:        "realtime_disconnected",
				Severity:    SeverityWarning,
				Message:     "Live updates are disconnected; falling back to polling",
				ResolveHint: "Check BACKEND_WS_URL",
			})
		}
		if dashboard.Stats.Total > 0 && dashboard.Stats.Online == 0 {
			warnings = append(warnings, AttentionItem{
				Type:     "all_devices_offline",
				Severity: SeverityWarning,
				Message:  "No headsets are connected",
				Details:  map[string]any{"devices_total": dashboard.Stats.Total},
			})
		}
	}

	return append(append([]AttentionItem{}, errs...), warnings...)
}

func sortedKeys(queries map[string]fleet.QueryStatus) []string {
	keys := make([]string, 0, len(queries))
	for k := range queries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
