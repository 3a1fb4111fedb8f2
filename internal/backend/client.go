// Package backend is the REST client for the fleet backend API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/strefethen/vr-console-go/internal/metrics"
)

const defaultTimeout = 15 * time.Second

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client talks to the backend REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *log.Logger
}

type envelope struct {
	Status  json.RawMessage `json:"status"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// NewClient creates a backend client.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		httpClient: httpClient,
		breaker:    newReadBreaker(logger),
		logger:     logger,
	}
}

// ListDevices returns a page of devices.
func (c *Client) ListDevices(ctx context.Context, params ListParams) (*Page[Device], error) {
	var page Page[Device]
	if err := c.get(ctx, "/devices", params.query(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetDevice returns a single device.
func (c *Client) GetDevice(ctx context.Context, id string) (*Device, error) {
	var device Device
	if err := c.get(ctx, "/devices/"+url.PathEscape(id), nil, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// CreateDevice registers a device.
func (c *Client) CreateDevice(ctx context.Context, req CreateDeviceRequest) (*Device, error) {
	var device Device
	if err := c.send(ctx, http.MethodPost, "/devices", req, c.token, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// DeleteDevice removes a device.
func (c *Client) DeleteDevice(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/devices/"+url.PathEscape(id), nil, c.token, nil)
}

// ListActivities returns the activity catalog.
func (c *Client) ListActivities(ctx context.Context) (*Page[Activity], error) {
	var page Page[Activity]
	if err := c.get(ctx, "/activities", nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListVideos returns a page of videos.
func (c *Client) ListVideos(ctx context.Context, params ListParams) (*Page[Video], error) {
	var page Page[Video]
	if err := c.get(ctx, "/videos", params.query(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListSessions returns a page of sessions, newest first as ordered by the backend.
func (c *Client) ListSessions(ctx context.Context, params ListParams) (*Page[Session], error) {
	var page Page[Session]
	if err := c.get(ctx, "/sessions-history", params.query(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// UpdateSessionStatus requests a session status transition.
func (c *Client) UpdateSessionStatus(ctx context.Context, id, status string) (*Session, error) {
	var session Session
	body := map[string]string{"status": status}
	if err := c.send(ctx, http.MethodPatch, "/sessions-history/"+url.PathEscape(id), body, c.token, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateSession starts a new session.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	var session Session
	if err := c.send(ctx, http.MethodPost, "/sessions-history", req, c.token, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ReplaySession replays a single past session.
func (c *Client) ReplaySession(ctx context.Context, id string) (*Session, error) {
	var session Session
	if err := c.send(ctx, http.MethodPost, "/sessions-history/"+url.PathEscape(id)+"/replay", nil, c.token, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ReplayMultiple replays the last session of each device.
func (c *Client) ReplayMultiple(ctx context.Context, deviceIDs []string) (*ReplayResult, error) {
	var result ReplayResult
	body := map[string][]string{"deviceIds": deviceIDs}
	if err := c.send(ctx, http.MethodPost, "/sessions-history/replay", body, c.token, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Login validates operator credentials.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var result LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.send(ctx, http.MethodPost, "/auth/login", body, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Me returns the account that owns token.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var user User
	if err := c.send(ctx, http.MethodGet, "/auth/me", nil, token, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, http.MethodGet, path, nil, c.token)
	})
	if err != nil {
		if IsUnavailable(err) {
			metrics.BackendRequests.WithLabelValues(http.MethodGet, endpointLabel(path), "rejected").Inc()
		}
		return err
	}
	return decodeData(raw, out)
}

func (c *Client) send(ctx context.Context, method, path string, body any, token string, out any) error {
	raw, err := c.roundTrip(ctx, method, path, body, token)
	if err != nil {
		return err
	}
	return decodeData(raw, out)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any, token string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	label := endpointLabel(path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(method, label, "error").Inc()
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(method, label, "error").Inc()
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.BackendRequests.WithLabelValues(method, label, "error").Inc()
		backendErr := &Error{StatusCode: resp.StatusCode}
		var env envelope
		if json.Unmarshal(raw, &env) == nil {
			backendErr.Message = env.Message
		}
		c.logger.Printf("BACKEND: %s %s returned %d: %s", method, path, resp.StatusCode, backendErr.Message)
		return nil, backendErr
	}

	metrics.BackendRequests.WithLabelValues(method, label, "ok").Inc()
	return raw, nil
}

func decodeData(raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// endpointLabel keeps metric cardinality bounded by dropping ids and query strings.
func endpointLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "/"
	}
	label := "/" + segments[0]
	for _, segment := range segments[1:] {
		switch segment {
		case "replay", "login", "me":
			label += "/" + segment
		default:
			label += "/:id"
		}
	}
	return label
}

func (p ListParams) query() url.Values {
	values := url.Values{}
	if p.Page > 0 {
		values.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		values.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Search != "" {
		values.Set("search", p.Search)
	}
	if p.Status != "" {
		values.Set("status", p.Status)
	}
	if p.DeviceID != "" {
		values.Set("deviceId", p.DeviceID)
	}
	return values
}
