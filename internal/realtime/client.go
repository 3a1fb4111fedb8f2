// Package realtime listens to the backend push channel and fans named events
// out to registered handlers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/strefethen/vr-console-go/internal/metrics"
)

// Events the console reacts to.
const (
	EventDeviceConnection      = "device-connection"
	EventDeviceReadyToPlay     = "device-ready-to-play"
	EventSessionStatusChange   = "session-change-status-web"
	EventActivityStatusChange  = "activity-status-change"
	EventActivityChangeStatus  = "change-activity-status"
	EventDeviceWebStatusChange = "change-device-status-web"
	EventVideoProgress         = "video-progress"

	eventJoinAdmin = "join-admin"
)

// FleetEvents are the events that invalidate device and session data.
var FleetEvents = []string{
	EventDeviceConnection,
	EventDeviceReadyToPlay,
	EventSessionStatusChange,
	EventActivityStatusChange,
	EventActivityChangeStatus,
	EventDeviceWebStatusChange,
}

const (
	defaultReconnectDelay = 3 * time.Second
	defaultPingInterval   = 25 * time.Second
	defaultPingTimeout    = 20 * time.Second
	handshakeTimeout      = 10 * time.Second
	writeWait             = 10 * time.Second
)

// Handler receives an event payload. Payloads are passed through undecoded.
type Handler func(event string, payload json.RawMessage)

// Options configures a Client.
type Options struct {
	URL            string
	Token          string
	ReconnectDelay time.Duration
	Logger         *log.Logger
}

// Client maintains a connection to the backend push channel.
type Client struct {
	endpoint       string
	token          string
	reconnectDelay time.Duration
	logger         *log.Logger
	dialer         websocket.Dialer

	handlerMu sync.RWMutex
	handlers  map[string][]Handler
	onConnect []func()

	connMu    sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a client for the channel rooted at opts.URL.
func NewClient(opts Options) (*Client, error) {
	endpoint, err := socketURL(opts.URL)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	return &Client{
		endpoint:       endpoint,
		token:          opts.Token,
		reconnectDelay: delay,
		logger:         logger,
		dialer:         websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		handlers:       make(map[string][]Handler),
	}, nil
}

// On registers h for event.
func (c *Client) On(event string, h Handler) {
	c.handlerMu.Lock()
	c.handlers[event] = append(c.handlers[event], h)
	c.handlerMu.Unlock()
}

// OnConnect registers fn to run each time the namespace connection is established.
func (c *Client) OnConnect(fn func()) {
	c.handlerMu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.handlerMu.Unlock()
}

// Connected reports whether the channel is currently joined.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Start runs the connection loop in the background.
func (c *Client) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Run(ctx)
	}()
}

// Stop closes the connection and waits for the loop to exit.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.closeConn()
	c.wg.Wait()
}

// Run connects and reconnects after a fixed delay until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		err := c.serve(ctx)
		if ctx.Err() != nil {
			return
		}
		c.logger.Printf("REALTIME: disconnected: %v; reconnecting in %s", err, c.reconnectDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

// Emit sends an event on the current connection.
func (c *Client) Emit(event string, payload any) error {
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		return err
	}
	return c.write(frame)
}

func (c *Client) serve(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	stop := context.AfterFunc(ctx, c.closeConn)
	defer stop()
	defer func() {
		c.connected.Store(false)
		metrics.RealtimeConnected.Set(0)
		c.closeConn()
	}()

	readWait := defaultPingInterval + defaultPingTimeout
	for {
		if err := conn.SetReadDeadline(time.Now().Add(readWait)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		packet, err := ParsePacket(string(data))
		if err != nil {
			c.logger.Printf("REALTIME: ignoring frame: %v", err)
			continue
		}

		switch packet.Frame {
		case frameOpen:
			var hs Handshake
			if err := json.Unmarshal(packet.Payload, &hs); err == nil && hs.PingInterval > 0 {
				readWait = time.Duration(hs.PingInterval+hs.PingTimeout) * time.Millisecond
			}
			if err := c.sendConnect(); err != nil {
				return err
			}
		case framePing:
			if err := c.write(string(framePong)); err != nil {
				return err
			}
		case frameClose:
			return errors.New("server closed transport")
		case frameMessage:
			if err := c.handlePacket(packet); err != nil {
				return err
			}
		}
	}
}

func (c *Client) handlePacket(packet Packet) error {
	switch packet.Type {
	case packetConnect:
		c.connected.Store(true)
		metrics.RealtimeConnected.Set(1)
		c.logger.Printf("REALTIME: connected to %s", c.endpoint)
		if err := c.Emit(eventJoinAdmin, nil); err != nil {
			return err
		}
		c.handlerMu.RLock()
		callbacks := append([]func(){}, c.onConnect...)
		c.handlerMu.RUnlock()
		for _, fn := range callbacks {
			fn()
		}
	case packetConnectError:
		return fmt.Errorf("connect rejected: %s", string(packet.Payload))
	case packetDisconnect:
		return errors.New("server disconnected namespace")
	case packetEvent:
		c.dispatch(packet.Event, packet.Payload)
	}
	return nil
}

func (c *Client) dispatch(event string, payload json.RawMessage) {
	c.handlerMu.RLock()
	handlers := append([]Handler{}, c.handlers[event]...)
	c.handlerMu.RUnlock()

	if len(handlers) == 0 {
		return
	}
	metrics.RealtimeEvents.WithLabelValues(event).Inc()
	for _, h := range handlers {
		h(event, payload)
	}
}

func (c *Client) sendConnect() error {
	var auth any
	if c.token != "" {
		auth = map[string]string{"token": c.token}
	}
	frame, err := EncodeConnect(auth)
	if err != nil {
		return err
	}
	return c.write(frame)
}

func (c *Client) write(frame string) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (c *Client) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// socketURL converts a backend base URL into the websocket transport endpoint.
func socketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported realtime url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/socket.io/"
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
