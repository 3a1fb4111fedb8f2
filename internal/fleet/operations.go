package fleet

import (
	"context"
	"errors"
	"fmt"

	"github.com/strefethen/vr-console-go/internal/backend"
)

// ToggleDevice selects or deselects a device. Offline devices cannot be
// selected but can always be deselected.
func (c *Controller) ToggleDevice(id string) (bool, error) {
	c.mu.Lock()
	device, ok := findDevice(c.views, id)
	if !ok {
		c.mu.Unlock()
		return false, ErrDeviceNotFound
	}
	if device.Status == Offline && !c.selection.IsSelected(id) {
		c.mu.Unlock()
		return false, ErrDeviceOffline
	}
	selected := c.selection.ToggleDevice(id)
	c.mu.Unlock()

	c.changed()
	return selected, nil
}

// SelectAll toggles between all online devices and none.
func (c *Controller) SelectAll() SelectionView {
	c.mu.Lock()
	c.selection.SelectAll(c.views)
	view := c.selection.View()
	c.mu.Unlock()

	c.changed()
	return view
}

// ClearSelection drops both the device and activity selection.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	c.selection.ClearDevices()
	c.selection.ClearActivity()
	c.mu.Unlock()

	c.changed()
}

// Selection returns the current selection.
func (c *Controller) Selection() SelectionView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selection.View()
}

// SelectActivity toggles or replaces the selected activity. While a selected
// device is busy the selection is left untouched, a shake is signalled, and
// ErrActivityLocked is returned.
func (c *Controller) SelectActivity(activityID string) (SelectionView, error) {
	c.mu.Lock()
	if c.selection.Busy(c.views) {
		c.mu.Unlock()
		c.shake()
		c.emit(failure("Cannot change activity", "Some selected devices are currently busy. Please stop the current session first."))
		return c.Selection(), ErrActivityLocked
	}

	current, selected := c.selection.Activity()
	if !(selected && current.ActivityID == activityID) {
		if _, ok := findActivity(c.catalog, activityID); !ok {
			c.mu.Unlock()
			return c.Selection(), ErrActivityNotFound
		}
	}

	if err := c.selection.SelectActivity(activityID, c.views, c.catalog); err != nil {
		c.mu.Unlock()
		return c.Selection(), err
	}
	view := c.selection.View()
	c.mu.Unlock()

	c.changed()
	return view, nil
}

// SelectVideo sets the video of the selected activity. It is a no-op when
// activityID is not the selected activity.
func (c *Controller) SelectVideo(activityID, videoID string) SelectionView {
	c.mu.Lock()
	changed := c.selection.SelectVideo(activityID, videoID)
	view := c.selection.View()
	c.mu.Unlock()

	if changed {
		c.changed()
	}
	return view
}

// Refresh refetches the device list.
func (c *Controller) Refresh(ctx context.Context) Toast {
	c.refetchDevices(ctx)
	toast := info("Devices refreshed", "Device list has been updated")
	c.emit(toast)
	return toast
}

// SetSearch changes the device search term and loads the matching page.
func (c *Controller) SetSearch(ctx context.Context, term string) error {
	if c.devices.SetKey(term) {
		c.reproject()
	}
	_, err := c.devices.Refetch(ctx)
	return err
}

// CreateDevice registers a device as DISCONNECTED until it first connects.
func (c *Controller) CreateDevice(ctx context.Context, deviceID, title, description string) (*backend.Device, Toast, error) {
	device, err := c.backend.CreateDevice(ctx, backend.CreateDeviceRequest{
		DeviceID:     deviceID,
		Title:        title,
		Discription:  description,
		DeviceStatus: "DISCONNECTED",
	})
	if err != nil {
		toast := failure("Error adding device", backend.MessageOf(err))
		c.emit(toast)
		return nil, toast, err
	}

	c.refetchDevices(ctx)
	toast := info("Device added successfully", fmt.Sprintf("%q (%s) has been registered", title, deviceID))
	c.emit(toast)
	return device, toast, nil
}

// DeleteDevice removes a device and deselects it.
func (c *Controller) DeleteDevice(ctx context.Context, id string) (Toast, error) {
	if err := c.backend.DeleteDevice(ctx, id); err != nil {
		toast := failure("Failed to delete device", backend.MessageOf(err))
		c.emit(toast)
		if backend.IsNotFound(err) {
			return toast, errors.Join(ErrDeviceNotFound, err)
		}
		return toast, err
	}

	c.refetchDevices(ctx)
	c.mu.Lock()
	c.selection.RemoveDevice(id)
	c.mu.Unlock()

	toast := info("Device deleted successfully", "")
	c.emit(toast)
	c.changed()
	return toast, nil
}

// Device returns one device view. Devices outside the cached page are fetched
// from the backend and projected against the cached sessions.
func (c *Controller) Device(ctx context.Context, id string) (DeviceView, error) {
	c.mu.RLock()
	view, ok := findDevice(c.views, id)
	c.mu.RUnlock()
	if ok {
		return view, nil
	}

	device, err := c.backend.GetDevice(ctx, id)
	if err != nil {
		if backend.IsNotFound(err) {
			return DeviceView{}, errors.Join(ErrDeviceNotFound, err)
		}
		return DeviceView{}, err
	}
	if device == nil {
		return DeviceView{}, ErrDeviceNotFound
	}

	var sessions []backend.Session
	if snap := c.sessions.Snapshot(); snap.Data != nil {
		sessions = snap.Data.Rows
	}
	return c.projector.Project([]backend.Device{*device}, sessions)[0], nil
}

// Videos lists the backend video library.
func (c *Controller) Videos(ctx context.Context, params backend.ListParams) (*backend.Page[backend.Video], error) {
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.Limit <= 0 {
		params.Limit = 20
	}
	return c.backend.ListVideos(ctx, params)
}
