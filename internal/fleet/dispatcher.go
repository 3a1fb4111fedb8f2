package fleet

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/strefethen/vr-console-go/internal/backend"
	"github.com/strefethen/vr-console-go/internal/metrics"
)

// target is the resolved device set of a command.
type target struct {
	ids      []string
	devices  []DeviceView
	all      []DeviceView
	catalog  []ActivityView
	activity *ActivitySelection
	bulk     bool
}

// resolve uses ids when given and the device selection otherwise. A nil
// slice means no override; an empty non-nil slice targets nothing.
func (c *Controller) resolve(ids []string) target {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t := target{
		all:     append([]DeviceView{}, c.views...),
		catalog: append([]ActivityView{}, c.catalog...),
		bulk:    ids == nil,
	}
	if t.bulk {
		t.ids = c.selection.DeviceIDs()
	} else {
		t.ids = append([]string{}, ids...)
	}
	if a, ok := c.selection.Activity(); ok {
		t.activity = &a
	}
	t.devices = devicesIn(t.all, t.ids)
	return t
}

func (c *Controller) begin() error {
	if !c.loading.CompareAndSwap(false, true) {
		return ErrControlsBusy
	}
	c.changed()
	return nil
}

func (c *Controller) end() {
	c.loading.Store(false)
	c.changed()
}

// finish records the outcome, emits its toast and informs observers.
func (c *Controller) finish(result *CommandResult, toast *Toast, err error) *CommandResult {
	result.OK = err == nil
	result.Toast = toast
	if err != nil {
		result.Error = backend.MessageOf(err)
	}
	outcome := "ok"
	if !result.OK {
		outcome = "failed"
	}
	metrics.Commands.WithLabelValues(result.Command, outcome).Inc()

	if toast != nil {
		c.emit(*toast)
	}
	c.listenerMu.RLock()
	observers := append([]CommandObserver{}, c.observers...)
	c.listenerMu.RUnlock()
	for _, o := range observers {
		o.CommandDispatched(*result)
	}
	return result
}

// fanOut runs fn for every id concurrently and waits for all of them.
// The first error is returned; successful calls are not rolled back.
func fanOut(ctx context.Context, ids []string, fn func(ctx context.Context, id string) error) error {
	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error { return fn(ctx, id) })
	}
	return g.Wait()
}

func activeSessionIDs(devices []DeviceView) []string {
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		if d.ActiveSessionID != "" {
			ids = append(ids, d.ActiveSessionID)
		}
	}
	return ids
}

func (c *Controller) patchAll(ctx context.Context, sessionIDs []string, status string) error {
	return fanOut(ctx, sessionIDs, func(ctx context.Context, id string) error {
		_, err := c.backend.UpdateSessionStatus(ctx, id, status)
		return err
	})
}

// Start plays existing pending/ready sessions on the target devices, or, if
// there are none, creates a session of the selected activity on each of them.
func (c *Controller) Start(ctx context.Context, ids []string) (*CommandResult, error) {
	t := c.resolve(ids)
	result := &CommandResult{Command: CommandStart, DeviceIDs: t.ids, OK: true}
	if len(t.ids) == 0 {
		return result, nil
	}

	var existing []DeviceView
	for _, d := range t.devices {
		if d.SessionState == StatePending || d.SessionState == StateReady {
			existing = append(existing, d)
		}
	}

	if len(existing) == 0 && t.activity == nil {
		return nil, ErrNoActivitySelected
	}

	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()

	if len(existing) > 0 {
		sessionIDs := activeSessionIDs(existing)
		result.Requests = len(sessionIDs)
		if err := c.patchAll(ctx, sessionIDs, backend.StatusPlaying); err != nil {
			toast := failure("Failed to start existing sessions", backend.MessageOf(err))
			return c.finish(result, &toast, err), nil
		}
		c.refetchSessions(ctx)
		toast := info("Session(s) started", fmt.Sprintf("Started existing activities on %d device(s)", len(existing)))
		return c.finish(result, &toast, nil), nil
	}

	activityName := ""
	if a, ok := findActivity(t.catalog, t.activity.ActivityID); ok {
		activityName = a.Name
	}
	requests := make(map[string]backend.CreateSessionRequest, len(t.ids))
	for _, id := range t.ids {
		requests[id] = newSessionRequest(id, *t.activity, activityName, t.all)
	}
	result.Requests = len(requests)

	err := fanOut(ctx, t.ids, func(ctx context.Context, id string) error {
		_, err := c.backend.CreateSession(ctx, requests[id])
		return err
	})
	if err != nil {
		c.logger.Printf("FLEET: failed to start sessions: %v", err)
		toast := failure("Failed to start sessions", backend.MessageOf(err))
		return c.finish(result, &toast, err), nil
	}
	c.refetchSessions(ctx)

	if t.bulk {
		c.mu.Lock()
		c.selection.ClearActivity()
		c.mu.Unlock()
	}

	names := []string{}
	if activityName != "" {
		names = append(names, activityName)
	}
	toast := info("Session(s) started", fmt.Sprintf("Started %s on %d device(s)", strings.Join(names, ", "), len(t.ids)))
	return c.finish(result, &toast, nil), nil
}

func newSessionRequest(deviceID string, selection ActivitySelection, activityName string, devices []DeviceView) backend.CreateSessionRequest {
	title := activityName
	if title == "" {
		title = "Session"
	}
	deviceName := "VR"
	if d, ok := findDevice(devices, deviceID); ok && d.Name != "" {
		deviceName = d.Name
	}

	req := backend.CreateSessionRequest{
		DeviceID:   deviceID,
		ActivityID: selection.ActivityID,
		Title:      title + " - " + deviceName,
		PlayAction: backend.PlayActionSingle,
	}
	if selection.VideoID != nil && *selection.VideoID != "" {
		req.VideoID = *selection.VideoID
	}
	return req
}

// Pause pauses the active session of each target device.
func (c *Controller) Pause(ctx context.Context, ids []string) (*CommandResult, error) {
	return c.transition(ctx, CommandPause, ids, backend.StatusPaused, "Session(s) paused", "Error pausing session")
}

// Resume resumes the active session of each target device.
func (c *Controller) Resume(ctx context.Context, ids []string) (*CommandResult, error) {
	return c.transition(ctx, CommandResume, ids, backend.StatusResumed, "Session(s) resumed", "Error resuming session")
}

// transition is silent when no target device has an active session.
func (c *Controller) transition(ctx context.Context, command string, ids []string, status, okTitle, errTitle string) (*CommandResult, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()

	t := c.resolve(ids)
	result := &CommandResult{Command: command, DeviceIDs: t.ids, OK: true}
	sessionIDs := activeSessionIDs(t.devices)
	if len(sessionIDs) == 0 {
		return result, nil
	}

	result.Requests = len(sessionIDs)
	if err := c.patchAll(ctx, sessionIDs, status); err != nil {
		toast := failure(errTitle, backend.MessageOf(err))
		return c.finish(result, &toast, err), nil
	}
	c.refetchSessions(ctx)
	toast := info(okTitle, "")
	return c.finish(result, &toast, nil), nil
}

// Stop stops the active session of each target device. A bulk stop also
// clears the device and activity selection.
func (c *Controller) Stop(ctx context.Context, ids []string) (*CommandResult, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()

	t := c.resolve(ids)
	result := &CommandResult{Command: CommandStop, DeviceIDs: t.ids, OK: true}
	sessionIDs := activeSessionIDs(t.devices)
	result.Requests = len(sessionIDs)

	if len(sessionIDs) > 0 {
		if err := c.patchAll(ctx, sessionIDs, backend.StatusStopped); err != nil {
			toast := failure("Error stopping session", backend.MessageOf(err))
			return c.finish(result, &toast, err), nil
		}
		c.refetchSessions(ctx)
	}

	if t.bulk {
		c.mu.Lock()
		c.selection.ClearDevices()
		c.selection.ClearActivity()
		c.mu.Unlock()
	}

	toast := info("Session(s) stopped", "")
	return c.finish(result, &toast, nil), nil
}

// Replay replays the last session on every idle target device. Busy devices
// are skipped; if none are idle no request is made.
func (c *Controller) Replay(ctx context.Context, ids []string) (*CommandResult, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()

	t := c.resolve(ids)
	idle := make([]string, 0, len(t.devices))
	for _, d := range t.devices {
		if d.SessionState == StateIdle {
			idle = append(idle, d.ID)
		}
	}
	result := &CommandResult{Command: CommandReplay, DeviceIDs: idle, OK: true}

	if len(idle) == 0 {
		toast := failure("No idle devices", "Please select devices that are not currently running sessions")
		return c.finish(result, &toast, fmt.Errorf("no idle devices")), nil
	}

	result.Requests = 1
	res, err := c.backend.ReplayMultiple(ctx, idle)
	if err != nil {
		c.logger.Printf("FLEET: failed to replay session: %v", err)
		toast := failure("Failed to replay session", backend.MessageOf(err))
		return c.finish(result, &toast, err), nil
	}
	c.refetchSessions(ctx)
	c.refetchDevices(ctx)

	switch {
	case len(res.Successful) > 0:
		description := fmt.Sprintf("Replaying last session on %d device(s)", len(res.Successful))
		if len(res.Failed) > 0 {
			description += fmt.Sprintf(". %d failed.", len(res.Failed))
		}
		toast := info("Replay initiated", description)
		return c.finish(result, &toast, nil), nil
	case len(res.Failed) > 0:
		reason := res.Failed[0].Error
		if reason == "" {
			reason = "Failed to replay sessions"
		}
		toast := failure("Replay failed", reason)
		return c.finish(result, &toast, fmt.Errorf("%s", reason)), nil
	}
	return c.finish(result, nil, nil), nil
}
