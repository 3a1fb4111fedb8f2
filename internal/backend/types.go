package backend

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Backend session statuses.
const (
	StatusPending   = "PENDING"
	StatusReady     = "READY"
	StatusPlaying   = "PLAYING"
	StatusResumed   = "RESUMED"
	StatusPaused    = "PAUSED"
	StatusStopped   = "STOPPED"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// DeviceConnected is the only deviceStatus value treated as online.
const DeviceConnected = "CONNECTED"

// VideoActive marks a video that may be offered for selection.
const VideoActive = "ACTIVE"

// PlayActionSingle is the only play action the console issues.
const PlayActionSingle = "SINGLE"

// Page is the list payload returned by every paged endpoint.
type Page[T any] struct {
	Rows       []T `json:"rows"`
	Count      int `json:"count"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages,omitempty"`
}

// OneOrMany decodes a JSON value that may be a single object, an array, or null.
type OneOrMany[T any] []T

// UnmarshalJSON implements json.Unmarshaler.
func (o *OneOrMany[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*o = nil
		return nil
	}
	if trimmed[0] == '[' {
		var many []T
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return err
		}
		*o = many
		return nil
	}
	var one T
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return err
	}
	*o = OneOrMany[T]{one}
	return nil
}

// First returns the first element, if any.
func (o OneOrMany[T]) First() (T, bool) {
	if len(o) == 0 {
		var zero T
		return zero, false
	}
	return o[0], true
}

// FlexString accepts either a JSON string or a JSON number.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = FlexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

// Device is a registered headset.
type Device struct {
	ID           string `json:"id"`
	DeviceID     string `json:"deviceId"`
	AddedBy      string `json:"addedBy,omitempty"`
	Title        string `json:"title"`
	Identifier   string `json:"identifier"`
	DeviceStatus string `json:"deviceStatus"`
	Discription  string `json:"discription"`
	Status       string `json:"status"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// Online reports whether the backend considers the device connected.
func (d Device) Online() bool {
	return d.DeviceStatus == DeviceConnected
}

// Video belongs to an activity.
type Video struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Identifier  string     `json:"identifier"`
	TotalTime   FlexString `json:"totalTime"`
	Discription string     `json:"discription,omitempty"`
	Status      string     `json:"status"`
	ActivityID  string     `json:"activityId"`
}

// Activity is a training exercise.
type Activity struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Identifier      string  `json:"identifier"`
	Status          string  `json:"status"`
	Discription     string  `json:"discription,omitempty"`
	IsVideoRequired int     `json:"isVideoRequired"`
	CreatedAt       string  `json:"createdAt,omitempty"`
	UpdatedAt       string  `json:"updatedAt,omitempty"`
	Videos          []Video `json:"videos,omitempty"`
}

// Session is one run of an activity on a device.
type Session struct {
	ID         string              `json:"id"`
	DeviceID   string              `json:"deviceId"`
	ActivityID string              `json:"activityId"`
	VideoID    string              `json:"videoId,omitempty"`
	Status     string              `json:"status"`
	StartTime  string              `json:"startTime,omitempty"`
	EndTime    string              `json:"endTime,omitempty"`
	Duration   FlexString          `json:"duration,omitempty"`
	CreatedAt  string              `json:"createdAt,omitempty"`
	UpdatedAt  string              `json:"updatedAt,omitempty"`
	Device     *Device             `json:"device,omitempty"`
	PlayAction string              `json:"playAction,omitempty"`
	Activity   OneOrMany[Activity] `json:"activity,omitempty"`
	Video      OneOrMany[Video]    `json:"video,omitempty"`
	IsReplay   bool                `json:"isReplay,omitempty"`
}

// CreateDeviceRequest registers a new device.
type CreateDeviceRequest struct {
	DeviceID     string `json:"deviceId"`
	Title        string `json:"title"`
	Discription  string `json:"discription,omitempty"`
	DeviceStatus string `json:"deviceStatus,omitempty"`
}

// CreateSessionRequest starts an activity on a device.
type CreateSessionRequest struct {
	DeviceID   string `json:"deviceId"`
	ActivityID string `json:"activityId"`
	VideoID    string `json:"videoId,omitempty"`
	Title      string `json:"title"`
	PlayAction string `json:"playAction"`
}

// ReplayOutcome is one entry of a bulk replay response.
type ReplayOutcome struct {
	DeviceID  string `json:"deviceId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ReplayResult partitions a bulk replay response.
type ReplayResult struct {
	Successful []ReplayOutcome `json:"successful"`
	Failed     []ReplayOutcome `json:"failed"`
}

// User is the backend operator account.
type User struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	Code           string `json:"code,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	AuthProvider   string `json:"authProvider,omitempty"`
	Status         string `json:"status,omitempty"`
}

// LoginResult is returned by /auth/login.
type LoginResult struct {
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ListParams are the common paging/search parameters.
type ListParams struct {
	Page     int
	Limit    int
	Search   string
	Status   string
	DeviceID string
}

// UnmarshalJSON accepts either an object or a bare device id string.
func (r *ReplayOutcome) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &r.DeviceID)
	}
	type plain ReplayOutcome
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*r = ReplayOutcome(p)
	return nil
}
