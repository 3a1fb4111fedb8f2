package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the base server configuration.
type Config struct {
	Host                     string
	Port                     string
	SQLiteDBPath             string
	AppEnv                   string
	AllowTestMode            bool
	JWTSecret                string
	JWTAccessTokenExpirySec  int
	JWTRefreshTokenExpirySec int

	// Browser origins allowed to call the API; "*" allows any.
	CORSAllowedOrigins   []string
	LoginRateLimitPerMin int // zero disables login throttling

	// Fleet backend (state of record for devices, activities and sessions).
	BackendAPIURL    string
	BackendWSURL     string
	BackendAPIToken  string
	BackendTimeoutMs int

	DevicePageLimit  int
	SessionPageLimit int

	// Poll intervals back up the realtime channel. Zero disables polling.
	DevicePollIntervalMs   int
	SessionPollIntervalMs  int
	ActivityPollIntervalMs int

	RealtimeEnabled          bool
	RealtimeReconnectDelayMs int

	AuditRetentionDays int
	AuditPruneCron     string // standard 5-field cron expression
}

// fileOverlay mirrors the keys that may be provided through CONFIG_FILE.
// Environment variables always win over the file.
type fileOverlay struct {
	Host             string `yaml:"host"`
	Port             string `yaml:"port"`
	SQLiteDBPath     string `yaml:"sqlite_db_path"`
	AppEnv           string `yaml:"app_env"`
	BackendAPIURL    string `yaml:"backend_api_url"`
	BackendWSURL     string `yaml:"backend_ws_url"`
	BackendAPIToken  string `yaml:"backend_api_token"`
	BackendTimeoutMs int    `yaml:"backend_timeout_ms"`
	DevicePageLimit  int    `yaml:"device_page_limit"`
	SessionPageLimit int    `yaml:"session_page_limit"`
	Polling          struct {
		DevicesMs    *int `yaml:"devices_ms"`
		SessionsMs   *int `yaml:"sessions_ms"`
		ActivitiesMs *int `yaml:"activities_ms"`
	} `yaml:"polling"`
	Realtime struct {
		Enabled          *bool `yaml:"enabled"`
		ReconnectDelayMs int   `yaml:"reconnect_delay_ms"`
	} `yaml:"realtime"`
	Audit struct {
		RetentionDays int    `yaml:"retention_days"`
		PruneCron     string `yaml:"prune_cron"`
	} `yaml:"audit"`
	CORSOrigins []string `yaml:"cors_allowed_origins"`
}

// Load reads configuration from environment variables with defaults.
// If CONFIG_FILE is set, the YAML file supplies defaults beneath the environment.
func Load() (Config, error) {
	overlay, err := loadOverlay(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}

	backendAPIURL := strings.TrimRight(envString("BACKEND_API_URL", orString(overlay.BackendAPIURL, "http://localhost:3000/api/v1")), "/")

	cfg := Config{
		Host:                     envString("HOST", orString(overlay.Host, "0.0.0.0")),
		Port:                     envString("PORT", orString(overlay.Port, "9100")),
		SQLiteDBPath:             envString("SQLITE_DB_PATH", orString(overlay.SQLiteDBPath, "./data/vr-console.db")),
		AppEnv:                   envString("APP_ENV", orString(overlay.AppEnv, "development")),
		AllowTestMode:            envBool("ALLOW_TEST_MODE", false),
		JWTSecret:                envString("JWT_SECRET", ""),
		JWTAccessTokenExpirySec:  envInt("JWT_ACCESS_TOKEN_EXPIRY", 3600),
		JWTRefreshTokenExpirySec: envInt("JWT_REFRESH_TOKEN_EXPIRY", 2592000),

		CORSAllowedOrigins:   orCSV(envCSV("CORS_ALLOWED_ORIGINS"), overlay.CORSOrigins, []string{"*"}),
		LoginRateLimitPerMin: envInt("LOGIN_RATE_LIMIT_PER_MIN", 10),

		BackendAPIURL:    backendAPIURL,
		BackendWSURL:     envString("BACKEND_WS_URL", orString(overlay.BackendWSURL, DeriveWSURL(backendAPIURL))),
		BackendAPIToken:  envString("BACKEND_API_TOKEN", overlay.BackendAPIToken),
		BackendTimeoutMs: envInt("BACKEND_TIMEOUT_MS", orInt(overlay.BackendTimeoutMs, 10000)),

		DevicePageLimit:  envInt("DEVICE_PAGE_LIMIT", orInt(overlay.DevicePageLimit, 10)),
		SessionPageLimit: envInt("SESSION_PAGE_LIMIT", orInt(overlay.SessionPageLimit, 50)),

		DevicePollIntervalMs:   envInt("DEVICE_POLL_INTERVAL_MS", orIntPtr(overlay.Polling.DevicesMs, 30000)),
		SessionPollIntervalMs:  envInt("SESSION_POLL_INTERVAL_MS", orIntPtr(overlay.Polling.SessionsMs, 15000)),
		ActivityPollIntervalMs: envInt("ACTIVITY_POLL_INTERVAL_MS", orIntPtr(overlay.Polling.ActivitiesMs, 60000)),

		RealtimeEnabled:          envBool("REALTIME_ENABLED", orBoolPtr(overlay.Realtime.Enabled, true)),
		RealtimeReconnectDelayMs: envInt("REALTIME_RECONNECT_DELAY_MS", orInt(overlay.Realtime.ReconnectDelayMs, 3000)),

		AuditRetentionDays: envInt("AUDIT_RETENTION_DAYS", orInt(overlay.Audit.RetentionDays, 90)),
		AuditPruneCron:     envString("AUDIT_PRUNE_CRON", orString(overlay.Audit.PruneCron, "0 3 * * *")),
	}

	if len(strings.TrimSpace(cfg.JWTSecret)) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.DevicePageLimit <= 0 || cfg.SessionPageLimit <= 0 {
		return Config{}, fmt.Errorf("page limits must be positive")
	}
	if cfg.BackendAPIToken == "" {
		log.Printf("WARNING: BACKEND_API_TOKEN is empty, backend requests will be unauthenticated")
	}

	return cfg, nil
}

// DeriveWSURL strips the REST prefix from the API URL; the realtime channel is
// served from the backend root.
func DeriveWSURL(apiURL string) string {
	return strings.TrimSuffix(strings.TrimRight(apiURL, "/"), "/api/v1")
}

func loadOverlay(path string) (fileOverlay, error) {
	var overlay fileOverlay
	if path == "" {
		return overlay, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return overlay, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return overlay, fmt.Errorf("parse config file: %w", err)
	}
	return overlay, nil
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}

func envCSV(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}

func orCSV(values ...[]string) []string {
	for _, v := range values {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}

func orString(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}

func orInt(val, fallback int) int {
	if val == 0 {
		return fallback
	}
	return val
}

func orIntPtr(val *int, fallback int) int {
	if val == nil {
		return fallback
	}
	return *val
}

func orBoolPtr(val *bool, fallback bool) bool {
	if val == nil {
		return fallback
	}
	return *val
}
