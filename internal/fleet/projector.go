package fleet

import (
	"github.com/strefethen/vr-console-go/internal/backend"
)

// ProjectState maps a backend session status to its console state.
func ProjectState(status string) SessionState {
	switch status {
	case backend.StatusPlaying, backend.StatusResumed:
		return StateRunning
	case backend.StatusPaused:
		return StatePaused
	case backend.StatusPending:
		return StatePending
	case backend.StatusReady:
		return StateReady
	default:
		return StateIdle
	}
}

// IsRelevant reports whether a session belongs in a device's live view.
// Completed, stopped and failed sessions never do, however recent.
func IsRelevant(status string) bool {
	switch status {
	case backend.StatusPlaying, backend.StatusPaused, backend.StatusResumed, backend.StatusReady, backend.StatusPending:
		return true
	}
	return false
}

// PrimarySessionPolicy picks the session that represents a device from its
// relevant sessions, in backend order.
type PrimarySessionPolicy func(sessions []backend.Session) (backend.Session, bool)

// FirstActiveOrFirst picks the first PLAYING, RESUMED or PAUSED session and
// falls back to the first session. Ties follow backend response order.
func FirstActiveOrFirst(sessions []backend.Session) (backend.Session, bool) {
	if len(sessions) == 0 {
		return backend.Session{}, false
	}
	for _, s := range sessions {
		switch s.Status {
		case backend.StatusPlaying, backend.StatusResumed, backend.StatusPaused:
			return s, true
		}
	}
	return sessions[0], true
}

// Projector derives device views from raw backend rows.
type Projector struct {
	Primary PrimarySessionPolicy
}

// DefaultProjector uses FirstActiveOrFirst.
var DefaultProjector = Projector{Primary: FirstActiveOrFirst}

// Project builds one view per device. It has no side effects and returns
// equal output for equal input.
func (p Projector) Project(devices []backend.Device, sessions []backend.Session) []DeviceView {
	primary := p.Primary
	if primary == nil {
		primary = FirstActiveOrFirst
	}

	views := make([]DeviceView, 0, len(devices))
	for _, d := range devices {
		relevant := make([]backend.Session, 0)
		for _, s := range sessions {
			if s.DeviceID == d.ID && IsRelevant(s.Status) {
				relevant = append(relevant, s)
			}
		}

		view := DeviceView{
			ID:           d.ID,
			DeviceID:     d.DeviceID,
			Name:         d.Title,
			Identifier:   d.Identifier,
			Description:  d.Discription,
			Status:       connectivity(d),
			LastSeen:     d.UpdatedAt,
			SessionState: StateIdle,
			Sessions:     make([]SessionSummary, 0, len(relevant)),
		}

		if s, ok := primary(relevant); ok {
			view.SessionState = ProjectState(s.Status)
			view.ActiveSessionID = s.ID
			view.CurrentActivity, view.IsVideoRequired = activityInfo(s)
			view.CurrentVideo = videoTitle(s)
		}

		for _, s := range relevant {
			summary := SessionSummary{
				ID:     s.ID,
				Status: ProjectState(s.Status),
				Video:  videoTitle(s),
			}
			summary.Activity, summary.IsVideoRequired = activityInfo(s)
			view.Sessions = append(view.Sessions, summary)
		}

		views = append(views, view)
	}
	return views
}

func connectivity(d backend.Device) Connectivity {
	if d.Online() {
		return Online
	}
	return Offline
}

func activityInfo(s backend.Session) (*string, *int) {
	a, ok := s.Activity.First()
	if !ok {
		return nil, nil
	}
	title := a.Title
	required := a.IsVideoRequired
	return &title, &required
}

func videoTitle(s backend.Session) *string {
	v, ok := s.Video.First()
	if !ok {
		return nil
	}
	title := v.Title
	return &title
}

// ProjectActivities builds the catalog. Only ACTIVE videos are offered.
func ProjectActivities(activities []backend.Activity) []ActivityView {
	views := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		view := ActivityView{
			ID:              a.ID,
			Name:            a.Title,
			Identifier:      a.Identifier,
			Description:     a.Discription,
			HasVideos:       len(a.Videos) > 0,
			IsVideoRequired: a.IsVideoRequired,
			Videos:          make([]VideoOption, 0, len(a.Videos)),
		}
		for _, v := range a.Videos {
			if v.Status != backend.VideoActive {
				continue
			}
			view.Videos = append(view.Videos, VideoOption{
				ID:       v.ID,
				Name:     v.Title,
				Duration: string(v.TotalTime),
				URL:      v.URL,
			})
		}
		views = append(views, view)
	}
	return views
}

func findActivity(catalog []ActivityView, id string) (ActivityView, bool) {
	for _, a := range catalog {
		if a.ID == id {
			return a, true
		}
	}
	return ActivityView{}, false
}

func findDevice(views []DeviceView, id string) (DeviceView, bool) {
	for _, v := range views {
		if v.ID == id {
			return v, true
		}
	}
	return DeviceView{}, false
}

// devicesIn returns the views whose id is in ids, in view order.
func devicesIn(views []DeviceView, ids []string) []DeviceView {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	out := make([]DeviceView, 0, len(ids))
	for _, v := range views {
		if _, ok := wanted[v.ID]; ok {
			out = append(out, v)
		}
	}
	return out
}
