package audit

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/strefethen/vr-console-go/internal/fleet"
)

// Default configuration values
const (
	DefaultRetentionDays   = 90
	DefaultPruneSchedule   = "0 3 * * *"
	DefaultQueryLimit      = 100
	MaxQueryLimit          = 1000
	MaxConsecutiveFailures = 3
)

// Options configures the audit service.
type Options struct {
	RetentionDays int
	PruneSchedule string // standard 5-field cron expression
	Logger        *log.Logger
}

// Service records console commands and notifications and prunes old events.
// It implements fleet.Notifier and fleet.CommandObserver.
type Service struct {
	logger        *log.Logger
	repo          *Repository
	retentionDays int
	pruneSchedule string
	now           func() time.Time

	cronMu sync.Mutex
	cron   *cron.Cron

	healthMu            sync.RWMutex
	healthy             bool
	consecutiveFailures int
}

// NewService creates a new audit service.
func NewService(dbPair DBPair, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	retention := opts.RetentionDays
	if retention <= 0 {
		retention = DefaultRetentionDays
	}
	schedule := opts.PruneSchedule
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}

	return &Service{
		logger:        logger,
		repo:          NewRepository(dbPair),
		retentionDays: retention,
		pruneSchedule: schedule,
		now:           time.Now,
		healthy:       true,
	}
}

// RecordEvent writes a new audit event.
func (s *Service) RecordEvent(input WriteEventInput) (*AuditEvent, error) {
	if input.Level == nil {
		level := EventLevelInfo
		input.Level = &level
	}

	event, err := s.repo.InsertEvent(input)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to record audit event: %w", err)
	}

	s.recordSuccess()
	return event, nil
}

// QueryEvents retrieves events with filters and pagination.
// Returns: events, total count, hasMore flag, error.
func (s *Service) QueryEvents(filters EventQueryFilters) ([]AuditEvent, int, bool, error) {
	if filters.Limit <= 0 {
		filters.Limit = DefaultQueryLimit
	}
	if filters.Limit > MaxQueryLimit {
		filters.Limit = MaxQueryLimit
	}

	events, total, err := s.repo.QueryEvents(filters)
	if err != nil {
		s.recordFailure()
		return nil, 0, false, fmt.Errorf("failed to query audit events: %w", err)
	}

	s.recordSuccess()
	return events, total, filters.Offset+len(events) < total, nil
}

// GetEvent retrieves a single event by ID.
func (s *Service) GetEvent(eventID string) (*AuditEvent, error) {
	event, err := s.repo.GetEvent(eventID)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	if event == nil {
		return nil, &EventNotFoundError{EventID: eventID}
	}

	s.recordSuccess()
	return event, nil
}

// Toast implements fleet.Notifier.
func (s *Service) Toast(toast fleet.Toast) {
	level := EventLevelInfo
	if toast.Variant == fleet.VariantDestructive {
		level = EventLevelWarn
	}
	s.record(WriteEventInput{
		Type:    string(EventNotification),
		Level:   &level,
		Message: toast.Title,
		Payload: map[string]any{
			"description": toast.Description,
			"variant":     string(toast.Variant),
		},
	})
}

// Shake implements fleet.Notifier. The shake affordance carries no content.
func (s *Service) Shake() {}

// Changed implements fleet.Notifier. Dashboard snapshots are not audited.
func (s *Service) Changed(fleet.Dashboard) {}

// CommandDispatched implements fleet.CommandObserver.
func (s *Service) CommandDispatched(result fleet.CommandResult) {
	input := WriteEventInput{
		Type:    string(EventCommandSucceeded),
		Message: fmt.Sprintf("%s on %d device(s)", result.Command, len(result.DeviceIDs)),
		Payload: map[string]any{
			"command":    result.Command,
			"device_ids": result.DeviceIDs,
			"requests":   result.Requests,
		},
	}
	if !result.OK {
		level := EventLevelError
		input.Type = string(EventCommandFailed)
		input.Level = &level
		input.Payload["error"] = result.Error
	}
	if len(result.DeviceIDs) == 1 {
		input.DeviceID = &result.DeviceIDs[0]
	}
	s.record(input)
}

// RecordSystem writes a lifecycle event.
func (s *Service) RecordSystem(eventType EventType, message string) {
	s.record(WriteEventInput{Type: string(eventType), Message: message})
}

func (s *Service) record(input WriteEventInput) {
	if _, err := s.RecordEvent(input); err != nil {
		s.logger.Printf("AUDIT: %v", err)
	}
}

// StartPruneJob prunes once and then on the configured cron schedule.
func (s *Service) StartPruneJob() error {
	c := cron.New()
	if _, err := c.AddFunc(s.pruneSchedule, s.runPrune); err != nil {
		return fmt.Errorf("invalid audit prune schedule %q: %w", s.pruneSchedule, err)
	}

	s.cronMu.Lock()
	s.cron = c
	s.cronMu.Unlock()

	s.logger.Printf("AUDIT: prune job scheduled (%s, retention %d days)", s.pruneSchedule, s.retentionDays)
	s.runPrune()
	c.Start()
	return nil
}

// StopPruneJob stops the schedule and waits for a running prune to finish.
func (s *Service) StopPruneJob() {
	s.cronMu.Lock()
	c := s.cron
	s.cron = nil
	s.cronMu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Printf("AUDIT: prune job stopped")
}

// PruneJobRunning reports whether the prune schedule is active.
func (s *Service) PruneJobRunning() bool {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	return s.cron != nil
}

func (s *Service) runPrune() {
	if count, err := s.Prune(); err != nil {
		s.logger.Printf("AUDIT: error pruning events: %v", err)
	} else if count > 0 {
		s.logger.Printf("AUDIT: pruned %d events", count)
	}
}

// Prune deletes events older than the retention window.
func (s *Service) Prune() (int64, error) {
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	count, err := s.repo.Prune(cutoff)
	if err != nil {
		s.recordFailure()
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}

	s.recordSuccess()
	return count, nil
}

// IsHealthy returns current health status.
func (s *Service) IsHealthy() bool {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.healthy
}

func (s *Service) recordSuccess() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures = 0
	s.healthy = true
}

// recordFailure marks the service unhealthy after MaxConsecutiveFailures.
func (s *Service) recordFailure() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures++
	if s.consecutiveFailures >= MaxConsecutiveFailures {
		s.healthy = false
	}
}

// EventNotFoundError is returned when an audit event is not found.
type EventNotFoundError struct {
	EventID string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("audit event not found: %s", e.EventID)
}
