package fleet

import (
	"time"
)

// SessionState is the console-facing state of a device or session.
type SessionState string

const (
	StateIdle    SessionState = "idle"
	StatePending SessionState = "pending"
	StateReady   SessionState = "ready"
	StateRunning SessionState = "running"
	StatePaused  SessionState = "paused"
	// StateLoading is never projected from backend data but is treated as busy.
	StateLoading SessionState = "loading"
)

// Connectivity is the online/offline projection of a device's backend status.
type Connectivity string

const (
	Online  Connectivity = "online"
	Offline Connectivity = "offline"
)

// SessionSummary is one relevant session of a device.
type SessionSummary struct {
	ID              string       `json:"id"`
	Status          SessionState `json:"status"`
	Activity        *string      `json:"activity,omitempty"`
	Video           *string      `json:"video,omitempty"`
	IsVideoRequired *int         `json:"is_video_required,omitempty"`
}

// DeviceView is the projected view of a device.
type DeviceView struct {
	ID              string           `json:"id"`
	DeviceID        string           `json:"device_id"`
	Name            string           `json:"name"`
	Identifier      string           `json:"identifier,omitempty"`
	Description     string           `json:"description,omitempty"`
	Status          Connectivity     `json:"status"`
	LastSeen        string           `json:"last_seen,omitempty"`
	SessionState    SessionState     `json:"session_state"`
	ActiveSessionID string           `json:"active_session_id,omitempty"`
	CurrentActivity *string          `json:"current_activity,omitempty"`
	CurrentVideo    *string          `json:"current_video,omitempty"`
	IsVideoRequired *int             `json:"is_video_required,omitempty"`
	Sessions        []SessionSummary `json:"sessions"`
}

// VideoOption is a selectable video of an activity.
type VideoOption struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Duration string `json:"duration,omitempty"`
	URL      string `json:"url,omitempty"`
}

// ActivityView is an entry of the activity catalog.
type ActivityView struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Identifier      string        `json:"identifier,omitempty"`
	Description     string        `json:"description,omitempty"`
	HasVideos       bool          `json:"has_videos"`
	IsVideoRequired int           `json:"is_video_required"`
	Videos          []VideoOption `json:"videos"`
}

// ActivitySelection is the single selected activity and optional video.
type ActivitySelection struct {
	ActivityID string  `json:"activity_id"`
	VideoID    *string `json:"video_id"`
}

// SelectionView is the current selection.
type SelectionView struct {
	DeviceIDs []string           `json:"device_ids"`
	Activity  *ActivitySelection `json:"activity"`
}

// Variant is the severity of a toast.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Toast is a user-facing notification.
type Toast struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Variant     Variant `json:"variant"`
}

func info(title, description string) Toast {
	return Toast{Title: title, Description: description, Variant: VariantDefault}
}

func failure(title, description string) Toast {
	return Toast{Title: title, Description: description, Variant: VariantDestructive}
}

// Stats are the dashboard counters.
type Stats struct {
	Total    int `json:"total"`
	Online   int `json:"online"`
	Running  int `json:"running"`
	Selected int `json:"selected"`
}

// QueryStatus describes one of the cached remote queries.
type QueryStatus struct {
	Loaded    bool       `json:"loaded"`
	Fetching  bool       `json:"fetching"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Dashboard is the full console view.
type Dashboard struct {
	Devices    []DeviceView           `json:"devices"`
	Activities []ActivityView         `json:"activities"`
	Selection  SelectionView          `json:"selection"`
	Controls   Controls               `json:"controls"`
	Stats      Stats                  `json:"stats"`
	Search     string                 `json:"search"`
	Realtime   bool                   `json:"realtime_connected"`
	Queries    map[string]QueryStatus `json:"queries"`
}

// Command names.
const (
	CommandStart  = "start"
	CommandPause  = "pause"
	CommandResume = "resume"
	CommandStop   = "stop"
	CommandReplay = "replay"
)

// CommandResult reports the outcome of a dispatched command.
type CommandResult struct {
	Command   string   `json:"command"`
	OK        bool     `json:"ok"`
	DeviceIDs []string `json:"device_ids"`
	Requests  int      `json:"requests"`
	Toast     *Toast   `json:"toast,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Notifier receives console events.
type Notifier interface {
	Toast(toast Toast)
	Shake()
	Changed(dashboard Dashboard)
}

// CommandObserver is told about every dispatched command.
type CommandObserver interface {
	CommandDispatched(result CommandResult)
}
