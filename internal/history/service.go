// Package history lists past sessions and offers stop / replay on single rows.
package history

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/strefethen/vr-console-go/internal/backend"
	"github.com/strefethen/vr-console-go/internal/fleet"
	"github.com/strefethen/vr-console-go/internal/realtime"
)

// DefaultLimit is the page size used when none is requested.
const DefaultLimit = 10

// Backend is the subset of the fleet backend used by history.
type Backend interface {
	ListSessions(ctx context.Context, params backend.ListParams) (*backend.Page[backend.Session], error)
	UpdateSessionStatus(ctx context.Context, id, status string) (*backend.Session, error)
	ReplaySession(ctx context.Context, id string) (*backend.Session, error)
}

// EventSource delivers backend push events.
type EventSource interface {
	On(event string, h realtime.Handler)
}

// Filters narrow a fetched history page.
type Filters struct {
	Page       int
	Limit      int
	Search     string
	Status     string
	ActivityID string
	From       *time.Time
	To         *time.Time
}

// Row is one session in the history table.
type Row struct {
	ID            string     `json:"id"`
	DeviceID      string     `json:"device_id"`
	DeviceTitle   string     `json:"device_title"`
	HardwareID    string     `json:"hardware_id"`
	ActivityID    string     `json:"activity_id"`
	Activities    []string   `json:"activities"`
	Videos        []string   `json:"videos"`
	Status        string     `json:"status"`
	DisplayStatus string     `json:"display_status"`
	StartedAt     *time.Time `json:"started_at"`
	Duration      string     `json:"duration"`
	IsReplay      bool       `json:"is_replay"`
	CanStop       bool       `json:"can_stop"`
	CanReplay     bool       `json:"can_replay"`
}

// Summary counts the filtered rows by outcome.
type Summary struct {
	Completed int `json:"completed"`
	Stopped   int `json:"stopped"`
	Failed    int `json:"failed"`
}

// Page is a filtered history page.
type Page struct {
	Rows       []Row   `json:"rows"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
	Total      int     `json:"total"`
	TotalPages int     `json:"total_pages"`
	Summary    Summary `json:"summary"`
}

// ActionResult reports a stop or replay on one session.
type ActionResult struct {
	SessionID string       `json:"session_id"`
	OK        bool         `json:"ok"`
	Toast     *fleet.Toast `json:"toast,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Service serves the session history.
type Service struct {
	backend Backend
	logger  *log.Logger

	mu        sync.Mutex
	notifiers []fleet.Notifier
	listeners []func()
}

// NewService creates a history service. When events is non-nil, session and
// activity status changes notify change listeners so viewers can reload.
func NewService(b Backend, events EventSource, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{backend: b, logger: logger}
	if events != nil {
		events.On(realtime.EventSessionStatusChange, s.onEvent)
		events.On(realtime.EventActivityStatusChange, s.onEvent)
	}
	return s
}

// AddNotifier registers a toast receiver.
func (s *Service) AddNotifier(n fleet.Notifier) {
	s.mu.Lock()
	s.notifiers = append(s.notifiers, n)
	s.mu.Unlock()
}

// OnChange registers fn to run when the history is known to be stale.
func (s *Service) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// List fetches one backend page and applies the filters to its rows.
func (s *Service) List(ctx context.Context, filters Filters) (*Page, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.Limit <= 0 {
		filters.Limit = DefaultLimit
	}

	result, err := s.backend.ListSessions(ctx, backend.ListParams{Page: filters.Page, Limit: filters.Limit})
	if err != nil {
		return nil, err
	}

	page := &Page{
		Rows:       []Row{},
		Page:       filters.Page,
		Limit:      filters.Limit,
		Total:      result.Count,
		TotalPages: result.TotalPages,
	}
	for _, session := range result.Rows {
		if !matches(session, filters) {
			continue
		}
		row := toRow(session)
		page.Rows = append(page.Rows, row)
		switch strings.ToLower(row.Status) {
		case "completed":
			page.Summary.Completed++
		case "stopped":
			page.Summary.Stopped++
		case "failed":
			page.Summary.Failed++
		}
	}
	return page, nil
}

// Stop marks a session STOPPED.
func (s *Service) Stop(ctx context.Context, sessionID string) (*ActionResult, error) {
	if _, err := s.backend.UpdateSessionStatus(ctx, sessionID, backend.StatusStopped); err != nil {
		s.logger.Printf("HISTORY: failed to stop session %s: %v", sessionID, err)
		return nil, err
	}
	s.changed()
	return &ActionResult{SessionID: sessionID, OK: true}, nil
}

// Replay asks the backend to replay a finished session. Failures are reported
// through the result and a toast rather than an error.
func (s *Service) Replay(ctx context.Context, sessionID string) *ActionResult {
	result := &ActionResult{SessionID: sessionID, OK: true}
	var toast fleet.Toast
	if _, err := s.backend.ReplaySession(ctx, sessionID); err != nil {
		s.logger.Printf("HISTORY: failed to replay session %s: %v", sessionID, err)
		result.OK = false
		result.Error = err.Error()
		toast = fleet.Toast{Title: "Failed to replay session", Description: backend.MessageOf(err), Variant: fleet.VariantDestructive}
	} else {
		toast = fleet.Toast{Title: "Replay initiated", Description: "The session will start automatically when the device is ready", Variant: fleet.VariantDefault}
		s.changed()
	}
	result.Toast = &toast

	s.mu.Lock()
	notifiers := append([]fleet.Notifier{}, s.notifiers...)
	s.mu.Unlock()
	for _, n := range notifiers {
		n.Toast(toast)
	}
	return result
}

func (s *Service) onEvent(event string, _ json.RawMessage) {
	s.changed()
}

func (s *Service) changed() {
	s.mu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func matches(s backend.Session, f Filters) bool {
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		var title, hardwareID string
		if s.Device != nil {
			title = s.Device.Title
			hardwareID = s.Device.DeviceID
		}
		if !strings.Contains(strings.ToLower(title), needle) &&
			!strings.Contains(strings.ToLower(hardwareID), needle) &&
			!strings.Contains(strings.ToLower(strings.Join(activityTitles(s), ", ")), needle) {
			return false
		}
	}
	if f.Status != "" && !strings.EqualFold(f.Status, s.Status) {
		return false
	}
	if f.ActivityID != "" && s.ActivityID != f.ActivityID {
		return false
	}
	if f.From != nil || f.To != nil {
		// Sessions without a usable date are never filtered out by range.
		if started, ok := StartedAt(s); ok {
			if f.From != nil && started.Before(*f.From) {
				return false
			}
			if f.To != nil && started.After(*f.To) {
				return false
			}
		}
	}
	return true
}

func toRow(s backend.Session) Row {
	row := Row{
		ID:            s.ID,
		DeviceID:      s.DeviceID,
		ActivityID:    s.ActivityID,
		Activities:    activityTitles(s),
		Videos:        []string{},
		Status:        s.Status,
		DisplayStatus: DisplayStatus(s.Status),
		Duration:      FormatDuration(SessionDuration(s)),
		IsReplay:      s.IsReplay,
		CanStop:       CanStop(s.Status),
		CanReplay:     CanReplay(s),
	}
	if s.Device != nil {
		row.DeviceTitle = s.Device.Title
		row.HardwareID = s.Device.DeviceID
	}
	for _, v := range s.Video {
		row.Videos = append(row.Videos, v.Title)
	}
	if started, ok := StartedAt(s); ok {
		row.StartedAt = &started
	}
	return row
}

func activityTitles(s backend.Session) []string {
	titles := make([]string, 0, len(s.Activity))
	for _, a := range s.Activity {
		titles = append(titles, a.Title)
	}
	return titles
}
