package fleet

import (
	"fmt"
	"strings"
	"sync"

	"github.com/strefethen/vr-console-go/internal/backend"
	"github.com/strefethen/vr-console-go/internal/metrics"
)

// CompletionNotifier detects sessions that transition into COMPLETED.
type CompletionNotifier struct {
	mu       sync.Mutex
	previous map[string]string
	notified map[string]struct{}
}

// NewCompletionNotifier creates an empty notifier.
func NewCompletionNotifier() *CompletionNotifier {
	return &CompletionNotifier{
		previous: make(map[string]string),
		notified: make(map[string]struct{}),
	}
}

// Observe records the latest statuses and returns a single batched toast for
// sessions that newly completed, or nil. A session is only reported when a
// previous non-COMPLETED status was seen, and never more than once.
func (n *CompletionNotifier) Observe(sessions []backend.Session) *Toast {
	n.mu.Lock()
	var completed []backend.Session
	for _, s := range sessions {
		prev, seen := n.previous[s.ID]
		if seen && prev != backend.StatusCompleted && s.Status == backend.StatusCompleted {
			if _, done := n.notified[s.ID]; !done {
				completed = append(completed, s)
				n.notified[s.ID] = struct{}{}
			}
		}
		n.previous[s.ID] = s.Status
	}
	n.mu.Unlock()

	if len(completed) == 0 {
		return nil
	}
	metrics.CompletedSessions.Add(float64(len(completed)))

	names := make([]string, 0, len(completed))
	for _, s := range completed {
		name := "Unknown device"
		if s.Device != nil && s.Device.Title != "" {
			name = s.Device.Title
		}
		names = append(names, name)
	}

	count := len(completed)
	toast := Toast{Variant: VariantDefault}
	if count == 1 {
		toast.Title = "1 Session Completed"
		toast.Description = names[0] + " has completed its training session"
	} else {
		toast.Title = fmt.Sprintf("%d Sessions Completed", count)
		toast.Description = fmt.Sprintf("%d devices have completed their training sessions (%s)", count, strings.Join(names, ", "))
	}
	return &toast
}
