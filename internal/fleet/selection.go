package fleet

import (
	"errors"
	"slices"
)

// ErrActivityLocked is returned when the activity cannot change because a
// selected device is busy.
var ErrActivityLocked = errors.New("selected devices are busy")

// Selection holds the selected devices and the single selected activity.
// It is not safe for concurrent use; the Controller serializes access.
type Selection struct {
	deviceIDs []string
	activity  *ActivitySelection
}

// View returns a copy of the selection.
func (s *Selection) View() SelectionView {
	view := SelectionView{DeviceIDs: append([]string{}, s.deviceIDs...)}
	if s.activity != nil {
		a := *s.activity
		if a.VideoID != nil {
			v := *a.VideoID
			a.VideoID = &v
		}
		view.Activity = &a
	}
	return view
}

// DeviceIDs returns the selected device ids in selection order.
func (s *Selection) DeviceIDs() []string {
	return append([]string{}, s.deviceIDs...)
}

// Activity returns the selected activity, if any.
func (s *Selection) Activity() (ActivitySelection, bool) {
	if s.activity == nil {
		return ActivitySelection{}, false
	}
	return *s.activity, true
}

// IsSelected reports whether a device is selected.
func (s *Selection) IsSelected(id string) bool {
	return slices.Contains(s.deviceIDs, id)
}

// ToggleDevice adds or removes a device and reports whether it is now selected.
func (s *Selection) ToggleDevice(id string) bool {
	if i := slices.Index(s.deviceIDs, id); i >= 0 {
		s.deviceIDs = slices.Delete(s.deviceIDs, i, i+1)
		return false
	}
	s.deviceIDs = append(s.deviceIDs, id)
	return true
}

// RemoveDevice drops a device from the selection.
func (s *Selection) RemoveDevice(id string) {
	s.deviceIDs = slices.DeleteFunc(s.deviceIDs, func(x string) bool { return x == id })
}

// SelectAll selects every online device, or clears the device selection if
// all online devices are already selected.
func (s *Selection) SelectAll(views []DeviceView) {
	online := make([]string, 0, len(views))
	for _, v := range views {
		if v.Status == Online {
			online = append(online, v.ID)
		}
	}

	allSelected := len(online) > 0
	for _, id := range online {
		if !s.IsSelected(id) {
			allSelected = false
			break
		}
	}

	if allSelected {
		s.deviceIDs = nil
		return
	}
	s.deviceIDs = online
}

// ClearDevices empties the device selection.
func (s *Selection) ClearDevices() {
	s.deviceIDs = nil
}

// ClearActivity empties the activity selection.
func (s *Selection) ClearActivity() {
	s.activity = nil
}

// PruneOffline removes devices that the latest views report offline and
// returns the removed ids.
func (s *Selection) PruneOffline(views []DeviceView) []string {
	offline := make(map[string]struct{})
	for _, v := range views {
		if v.Status == Offline {
			offline[v.ID] = struct{}{}
		}
	}
	if len(offline) == 0 {
		return nil
	}

	var removed []string
	s.deviceIDs = slices.DeleteFunc(s.deviceIDs, func(id string) bool {
		if _, ok := offline[id]; ok {
			removed = append(removed, id)
			return true
		}
		return false
	})
	return removed
}

// Busy reports whether any selected device blocks an activity change.
func (s *Selection) Busy(views []DeviceView) bool {
	for _, v := range devicesIn(views, s.deviceIDs) {
		switch v.SessionState {
		case StateRunning, StatePaused, StateLoading, StateReady:
			return true
		}
	}
	return false
}

// SelectActivity toggles activityID off if it is already selected and
// otherwise replaces the selection with it and its first video. The guard
// runs before any mutation.
func (s *Selection) SelectActivity(activityID string, views []DeviceView, catalog []ActivityView) error {
	if s.Busy(views) {
		return ErrActivityLocked
	}

	if s.activity != nil && s.activity.ActivityID == activityID {
		s.activity = nil
		return nil
	}

	next := &ActivitySelection{ActivityID: activityID}
	if a, ok := findActivity(catalog, activityID); ok && len(a.Videos) > 0 {
		first := a.Videos[0].ID
		next.VideoID = &first
	}
	s.activity = next
	return nil
}

// SelectVideo sets the video of the matching activity entry and reports
// whether anything changed.
func (s *Selection) SelectVideo(activityID, videoID string) bool {
	if s.activity == nil || s.activity.ActivityID != activityID {
		return false
	}
	v := videoID
	s.activity.VideoID = &v
	return true
}
