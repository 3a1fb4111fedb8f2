package history

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/strefethen/vr-console-go/internal/backend"
)

// DisplayStatus maps a backend status to the label shown in the history table.
func DisplayStatus(status string) string {
	switch strings.ToLower(status) {
	case "completed", "active":
		return "Completed"
	case "stopped", "paused":
		return "Stopped"
	case "failed":
		return "Failed"
	case "in-progress", "running":
		return "In Progress"
	default:
		return status
	}
}

var stoppableStatuses = map[string]bool{
	"playing": true, "paused": true, "ready": true, "pending": true,
	"resumed": true, "in-progress": true, "running": true,
}

// CanStop reports whether a session in status may still be stopped.
func CanStop(status string) bool {
	return stoppableStatuses[strings.ToLower(status)]
}

// CanReplay reports whether a finished session may be replayed.
func CanReplay(s backend.Session) bool {
	switch strings.ToLower(s.Status) {
	case "completed", "stopped":
		return !s.IsReplay
	}
	return false
}

// DurationSeconds parses a duration given as whole seconds or as an
// HH:MM:SS / MM:SS clock string. Anything else is zero.
func DurationSeconds(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if !strings.Contains(value, ":") {
		seconds, err := strconv.ParseFloat(value, 64)
		if err != nil || seconds < 0 {
			return 0
		}
		return int(seconds)
	}

	parts := strings.Split(value, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0
	}
	total := 0
	for _, part := range parts {
		n, _ := strconv.Atoi(part)
		total = total*60 + n
	}
	return total
}

// FormatDuration renders seconds as "1h 2m 3s", omitting zero units.
// Zero renders as "--".
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "--"
	}
	d := time.Duration(seconds) * time.Second
	hours := int(d / time.Hour)
	minutes := int(d%time.Hour) / int(time.Minute)
	secs := seconds % 60

	var parts []string
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if secs > 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	return strings.Join(parts, " ")
}

// SessionDuration is the recorded duration, or the total length of the
// session's videos when none was recorded.
func SessionDuration(s backend.Session) int {
	if s.Duration != "" {
		return DurationSeconds(string(s.Duration))
	}
	total := 0
	for _, v := range s.Video {
		total += DurationSeconds(string(v.TotalTime))
	}
	return total
}

// StartedAt resolves when a session started. The backend may send startTime
// as a bare UTC clock time, which is applied to the createdAt date.
func StartedAt(s backend.Session) (time.Time, bool) {
	if s.StartTime != "" && !isClockTime(s.StartTime) {
		if t, err := time.Parse(time.RFC3339, s.StartTime); err == nil {
			return t, true
		}
	}

	created, err := time.Parse(time.RFC3339, s.CreatedAt)
	if err != nil {
		return time.Time{}, false
	}
	if !isClockTime(s.StartTime) {
		return created, true
	}

	created = created.UTC()
	hour, minute, second := created.Clock()
	parts := strings.Split(s.StartTime, ":")
	if n, err := strconv.Atoi(parts[0]); err == nil {
		hour = n
	}
	if len(parts) > 1 {
		if n, err := strconv.Atoi(parts[1]); err == nil {
			minute = n
		}
	}
	if len(parts) > 2 {
		if n, err := strconv.Atoi(parts[2]); err == nil {
			second = n
		}
	}
	year, month, day := created.Date()
	return time.Date(year, month, day, hour, minute, second, 0, time.UTC), true
}

func isClockTime(value string) bool {
	return strings.Contains(value, ":") && !strings.Contains(value, "-") && !strings.Contains(value, "T")
}
