package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/strefethen/vr-console-go/internal/api"
	"github.com/strefethen/vr-console-go/internal/audit"
	"github.com/strefethen/vr-console-go/internal/auth"
	"github.com/strefethen/vr-console-go/internal/backend"
	"github.com/strefethen/vr-console-go/internal/config"
	"github.com/strefethen/vr-console-go/internal/console"
	"github.com/strefethen/vr-console-go/internal/db"
	"github.com/strefethen/vr-console-go/internal/fleet"
	"github.com/strefethen/vr-console-go/internal/history"
	"github.com/strefethen/vr-console-go/internal/metrics"
	"github.com/strefethen/vr-console-go/internal/openapi"
	"github.com/strefethen/vr-console-go/internal/realtime"
	"github.com/strefethen/vr-console-go/internal/system"
)

// historyTopic is the invalidation topic pushed when session history changes.
const historyTopic = "session_history"

// Options controls server wiring.
type Options struct {
	// HTTPClient overrides the backend HTTP client (tests).
	HTTPClient *http.Client
	// SkipBackground leaves the initial load, polling, realtime listener and
	// prune job stopped (tests).
	SkipBackground bool
}

// NewHandler builds the HTTP handler and returns a shutdown function.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	log.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	backendTimeout := time.Duration(cfg.BackendTimeoutMs) * time.Millisecond
	if backendTimeout <= 0 {
		backendTimeout = 10 * time.Second
	}
	backendClient := backend.NewClient(backend.Options{
		BaseURL:    cfg.BackendAPIURL,
		Token:      cfg.BackendAPIToken,
		Timeout:    backendTimeout,
		HTTPClient: options.HTTPClient,
	})

	var (
		events         fleet.EventSource
		historyEvents  history.EventSource
		realtimeClient *realtime.Client
	)
	if cfg.RealtimeEnabled {
		realtimeClient, err = realtime.NewClient(realtime.Options{
			URL:            cfg.BackendWSURL,
			Token:          cfg.BackendAPIToken,
			ReconnectDelay: time.Duration(cfg.RealtimeReconnectDelayMs) * time.Millisecond,
		})
		if err != nil {
			dbPair.Close()
			return nil, nil, err
		}
		events = realtimeClient
		historyEvents = realtimeClient
	}

	controller := fleet.NewController(fleet.Options{
		Backend:              backendClient,
		Events:               events,
		DevicePageLimit:      cfg.DevicePageLimit,
		SessionPageLimit:     cfg.SessionPageLimit,
		DevicePollInterval:   time.Duration(cfg.DevicePollIntervalMs) * time.Millisecond,
		SessionPollInterval:  time.Duration(cfg.SessionPollIntervalMs) * time.Millisecond,
		ActivityPollInterval: time.Duration(cfg.ActivityPollIntervalMs) * time.Millisecond,
	})

	hub := console.NewHub(controller.Dashboard, nil)
	auditService := audit.NewService(dbPair, audit.Options{
		RetentionDays: cfg.AuditRetentionDays,
		PruneSchedule: cfg.AuditPruneCron,
	})
	controller.AddNotifier(hub)
	controller.AddNotifier(auditService)
	controller.AddObserver(auditService)

	historyService := history.NewService(backendClient, historyEvents, nil)
	historyService.AddNotifier(hub)
	historyService.AddNotifier(auditService)
	historyService.OnChange(func() { hub.Invalidate(historyTopic) })

	systemService := system.NewService(system.Options{
		DB:              dbPair,
		Fleet:           controller,
		Console:         hub,
		Audit:           auditService,
		RealtimeEnabled: cfg.RealtimeEnabled,
	})

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Test-Mode"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	router.Use(api.RequestLoggerMiddleware)
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(auth.Middleware(cfg))

	registerHealthRoutes(router, dbPair, auditService, controller)
	router.Handle("/metrics", metrics.Handler())
	openapi.RegisterRoutes(router)
	auth.RegisterRoutes(router, backendClient, cfg)
	fleet.RegisterRoutes(router, controller)
	history.RegisterRoutes(router, historyService)
	audit.RegisterRoutes(router, auditService)
	console.RegisterRoutes(router, hub)
	system.RegisterRoutes(router, systemService)

	if !options.SkipBackground {
		if err := auditService.StartPruneJob(); err != nil {
			dbPair.Close()
			return nil, nil, err
		}
		startCtx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		controller.Run(startCtx)
		cancel()
		if realtimeClient != nil {
			realtimeClient.Start(context.Background())
		}
	}
	auditService.RecordSystem(audit.EventSystemStartup, "Console started")

	shutdown := func(ctx context.Context) error {
		if realtimeClient != nil {
			realtimeClient.Stop()
		}
		controller.Shutdown()
		hub.Close()
		auditService.StopPruneJob()
		auditService.RecordSystem(audit.EventSystemShutdown, "Console stopped")
		return dbPair.Close()
	}

	return router, shutdown, nil
}

// healthChecks is what the health endpoints report on.
type healthChecks struct {
	db         interface{ Ping() error }
	audit      interface{ IsHealthy() bool }
	controller *fleet.Controller
}

func registerHealthRoutes(router chi.Router, dbPair *db.DBPair, auditService *audit.Service, controller *fleet.Controller) {
	checks := healthChecks{db: dbPair, audit: auditService, controller: controller}

	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		components, healthy := checks.report()
		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		return api.WriteJSON(w, code, map[string]any{
			"status":     status,
			"service":    "vr-console",
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"components": components,
		})
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		if err := checks.db.Ping(); err != nil {
			return api.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "reason": "database"})
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}

// report summarizes each dependency. The backend being unreachable degrades
// the console but does not make the process unhealthy.
func (h healthChecks) report() (map[string]any, bool) {
	healthy := true
	components := map[string]any{}

	if err := h.db.Ping(); err != nil {
		healthy = false
		components["database"] = map[string]any{"status": "down", "error": err.Error()}
	} else {
		components["database"] = map[string]any{"status": "up"}
	}

	if h.audit.IsHealthy() {
		components["audit"] = map[string]any{"status": "up"}
	} else {
		healthy = false
		components["audit"] = map[string]any{"status": "down"}
	}

	dashboard := h.controller.Dashboard()
	backendStatus := map[string]any{"status": "up"}
	for name, q := range dashboard.Queries {
		if q.Error != "" {
			backendStatus["status"] = "degraded"
			backendStatus[name] = q.Error
		}
	}
	components["backend"] = backendStatus
	components["realtime"] = map[string]any{"connected": dashboard.Realtime}

	return components, healthy
}
