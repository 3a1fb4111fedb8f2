// Package fleet projects backend device and session state into the console
// view and dispatches session commands on behalf of operators.
package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strefethen/vr-console-go/internal/backend"
	"github.com/strefethen/vr-console-go/internal/query"
	"github.com/strefethen/vr-console-go/internal/realtime"
)

var (
	ErrControlsBusy       = errors.New("another command is in progress")
	ErrNoActivitySelected = errors.New("no activity selected")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDeviceOffline      = errors.New("device is offline")
	ErrActivityNotFound   = errors.New("activity not found")
)

// Backend is the subset of the backend API the controller uses.
type Backend interface {
	SessionUpdater
	ListDevices(ctx context.Context, params backend.ListParams) (*backend.Page[backend.Device], error)
	GetDevice(ctx context.Context, id string) (*backend.Device, error)
	ListVideos(ctx context.Context, params backend.ListParams) (*backend.Page[backend.Video], error)
	ListActivities(ctx context.Context) (*backend.Page[backend.Activity], error)
	ListSessions(ctx context.Context, params backend.ListParams) (*backend.Page[backend.Session], error)
	CreateSession(ctx context.Context, req backend.CreateSessionRequest) (*backend.Session, error)
	ReplayMultiple(ctx context.Context, deviceIDs []string) (*backend.ReplayResult, error)
	CreateDevice(ctx context.Context, req backend.CreateDeviceRequest) (*backend.Device, error)
	DeleteDevice(ctx context.Context, id string) error
}

// EventSource delivers backend push events.
type EventSource interface {
	On(event string, h realtime.Handler)
	OnConnect(fn func())
	Connected() bool
}

// Options configures a Controller.
type Options struct {
	Backend              Backend
	Events               EventSource
	Projector            Projector
	DevicePageLimit      int
	SessionPageLimit     int
	DevicePollInterval   time.Duration
	SessionPollInterval  time.Duration
	ActivityPollInterval time.Duration
	Logger               *log.Logger
}

type (
	devicePage   = *backend.Page[backend.Device]
	sessionPage  = *backend.Page[backend.Session]
	activityPage = *backend.Page[backend.Activity]
)

// Controller owns the console state: cached queries, the projected device
// views, the selection, and the reconcilers. One controller serves a process.
type Controller struct {
	backend   Backend
	events    EventSource
	projector Projector
	logger    *log.Logger
	opts      Options

	devices    *query.Query[devicePage]
	sessions   *query.Query[sessionPage]
	activities *query.Query[activityPage]

	autoReplay *AutoReplayer
	completion *CompletionNotifier

	mu        sync.RWMutex
	selection Selection
	views     []DeviceView
	catalog   []ActivityView

	loading atomic.Bool

	listenerMu sync.RWMutex
	notifiers  []Notifier
	observers  []CommandObserver

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController wires the queries, reconcilers and event listener.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.DevicePageLimit <= 0 {
		opts.DevicePageLimit = 10
	}
	if opts.SessionPageLimit <= 0 {
		opts.SessionPageLimit = 50
	}
	projector := opts.Projector
	if projector.Primary == nil {
		projector = DefaultProjector
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend:    opts.Backend,
		events:     opts.Events,
		projector:  projector,
		logger:     logger,
		opts:       opts,
		completion: NewCompletionNotifier(),
		views:      []DeviceView{},
		catalog:    []ActivityView{},
		ctx:        ctx,
		cancel:     cancel,
	}

	c.devices = query.New("devices", func(ctx context.Context, search string) (devicePage, error) {
		return c.backend.ListDevices(ctx, backend.ListParams{Page: 1, Limit: opts.DevicePageLimit, Search: search})
	}, logger)
	c.sessions = query.New("sessions", func(ctx context.Context, _ string) (sessionPage, error) {
		return c.backend.ListSessions(ctx, backend.ListParams{Page: 1, Limit: opts.SessionPageLimit})
	}, logger)
	c.activities = query.New("activities", func(ctx context.Context, _ string) (activityPage, error) {
		return c.backend.ListActivities(ctx)
	}, logger)

	c.autoReplay = NewAutoReplayer(opts.Backend, c.onAutoReplayStarted, c.onAutoReplayFailed, logger)

	c.devices.Subscribe(func(query.Snapshot[devicePage]) { c.reproject() })
	c.sessions.Subscribe(c.onSessions)
	c.activities.Subscribe(c.onActivities)

	if c.events != nil {
		for _, event := range realtime.FleetEvents {
			c.events.On(event, c.onFleetEvent)
		}
		c.events.OnConnect(func() { c.invalidate("connect") })
	}

	return c
}

// AddNotifier registers a console event sink.
func (c *Controller) AddNotifier(n Notifier) {
	c.listenerMu.Lock()
	c.notifiers = append(c.notifiers, n)
	c.listenerMu.Unlock()
}

// AddObserver registers a command observer.
func (c *Controller) AddObserver(o CommandObserver) {
	c.listenerMu.Lock()
	c.observers = append(c.observers, o)
	c.listenerMu.Unlock()
}

// Run loads initial data and begins polling.
func (c *Controller) Run(ctx context.Context) {
	if _, err := c.activities.Ensure(ctx); err != nil {
		c.logger.Printf("FLEET: initial activity load failed: %v", err)
	}
	if _, err := c.devices.Ensure(ctx); err != nil {
		c.logger.Printf("FLEET: initial device load failed: %v", err)
	}
	if _, err := c.sessions.Ensure(ctx); err != nil {
		c.logger.Printf("FLEET: initial session load failed: %v", err)
	}

	c.poll(c.devices.Poll, c.opts.DevicePollInterval)
	c.poll(c.sessions.Poll, c.opts.SessionPollInterval)
	c.poll(c.activities.Poll, c.opts.ActivityPollInterval)
}

func (c *Controller) poll(fn func(context.Context, time.Duration), interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx, interval)
	}()
}

// Shutdown ends polling and waits for background work.
func (c *Controller) Shutdown() {
	c.cancel()
	c.wg.Wait()
	c.autoReplay.Wait()
}

// Devices returns the current device views.
func (c *Controller) Devices() []DeviceView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]DeviceView{}, c.views...)
}

// Activities returns the activity catalog.
func (c *Controller) Activities() []ActivityView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ActivityView{}, c.catalog...)
}

// Search returns the current device search term.
func (c *Controller) Search() string {
	return c.devices.Key()
}

// Dashboard returns the full console view.
func (c *Controller) Dashboard() Dashboard {
	deviceSnap := c.devices.Snapshot()
	loading := c.loading.Load()

	c.mu.RLock()
	views := append([]DeviceView{}, c.views...)
	catalog := append([]ActivityView{}, c.catalog...)
	selection := c.selection.View()
	c.mu.RUnlock()

	selected := devicesIn(views, selection.DeviceIDs)

	stats := Stats{Total: len(views), Selected: len(selection.DeviceIDs)}
	if deviceSnap.Data != nil && deviceSnap.Data.Count > 0 {
		stats.Total = deviceSnap.Data.Count
	}
	for _, v := range views {
		if v.Status == Online {
			stats.Online++
		}
		if v.SessionState == StateRunning {
			stats.Running++
		}
	}

	d := Dashboard{
		Devices:    views,
		Activities: catalog,
		Selection:  selection,
		Controls:   ComputeControls(selected, selection.Activity, catalog, loading),
		Stats:      stats,
		Search:     deviceSnap.Key,
		Queries: map[string]QueryStatus{
			"devices":    queryStatus(deviceSnap),
			"sessions":   queryStatus(c.sessions.Snapshot()),
			"activities": queryStatus(c.activities.Snapshot()),
		},
	}
	if c.events != nil {
		d.Realtime = c.events.Connected()
	}
	return d
}

func queryStatus[T any](s query.Snapshot[T]) QueryStatus {
	status := QueryStatus{Loaded: s.Loaded, Fetching: s.Fetching}
	if s.Err != nil {
		status.Error = backend.MessageOf(s.Err)
	}
	if !s.UpdatedAt.IsZero() {
		at := s.UpdatedAt
		status.UpdatedAt = &at
	}
	return status
}

// reproject rebuilds the device views from the cached pages and drops
// offline devices from the selection.
func (c *Controller) reproject() {
	var devices []backend.Device
	var sessions []backend.Session
	if page := c.devices.Snapshot().Data; page != nil {
		devices = page.Rows
	}
	if page := c.sessions.Snapshot().Data; page != nil {
		sessions = page.Rows
	}
	views := c.projector.Project(devices, sessions)

	c.mu.Lock()
	c.views = views
	removed := c.selection.PruneOffline(views)
	c.mu.Unlock()

	if len(removed) > 0 {
		c.logger.Printf("FLEET: deselected offline devices %v", removed)
	}
	c.changed()
}

func (c *Controller) onSessions(s query.Snapshot[sessionPage]) {
	c.reproject()
	if s.Data == nil || s.Err != nil {
		return
	}
	if toast := c.completion.Observe(s.Data.Rows); toast != nil {
		c.emit(*toast)
	}
	c.autoReplay.Reconcile(c.ctx, s.Data.Rows)
}

func (c *Controller) onActivities(s query.Snapshot[activityPage]) {
	if s.Data == nil {
		return
	}
	catalog := ProjectActivities(s.Data.Rows)
	c.mu.Lock()
	c.catalog = catalog
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) onFleetEvent(event string, _ json.RawMessage) {
	c.invalidate(event)
}

// invalidate refetches devices and sessions in the background.
func (c *Controller) invalidate(reason string) {
	if c.ctx.Err() != nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.devices.Refetch(c.ctx); err != nil && c.ctx.Err() == nil {
			c.logger.Printf("FLEET: device refetch after %s failed: %v", reason, err)
		}
		if _, err := c.sessions.Refetch(c.ctx); err != nil && c.ctx.Err() == nil {
			c.logger.Printf("FLEET: session refetch after %s failed: %v", reason, err)
		}
	}()
}

func (c *Controller) onAutoReplayStarted(ctx context.Context, session backend.Session) {
	c.refetchSessions(ctx)
	c.refetchDevices(ctx)
	c.emit(autoReplayStartedToast(session))
}

func (c *Controller) onAutoReplayFailed(_ backend.Session, _ error) {
	c.emit(autoReplayFailedToast())
}

func (c *Controller) refetchSessions(ctx context.Context) {
	if _, err := c.sessions.Refetch(ctx); err != nil {
		c.logger.Printf("FLEET: session refetch failed: %v", err)
	}
}

func (c *Controller) refetchDevices(ctx context.Context) {
	if _, err := c.devices.Refetch(ctx); err != nil {
		c.logger.Printf("FLEET: device refetch failed: %v", err)
	}
}

func (c *Controller) emit(toast Toast) {
	c.logger.Printf("FLEET: toast %q %q (%s)", toast.Title, toast.Description, toast.Variant)
	c.listenerMu.RLock()
	notifiers := append([]Notifier{}, c.notifiers...)
	c.listenerMu.RUnlock()
	for _, n := range notifiers {
		n.Toast(toast)
	}
}

func (c *Controller) shake() {
	c.listenerMu.RLock()
	notifiers := append([]Notifier{}, c.notifiers...)
	c.listenerMu.RUnlock()
	for _, n := range notifiers {
		n.Shake()
	}
}

func (c *Controller) changed() {
	c.listenerMu.RLock()
	notifiers := append([]Notifier{}, c.notifiers...)
	c.listenerMu.RUnlock()
	if len(notifiers) == 0 {
		return
	}
	d := c.Dashboard()
	for _, n := range notifiers {
		n.Changed(d)
	}
}
