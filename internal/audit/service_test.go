package audit

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/vr-console-go/internal/fleet"
)

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return NewService(setupTestDB(t), opts)
}

func TestServiceRecordsToasts(t *testing.T) {
	service := newTestService(t, Options{})

	service.Toast(fleet.Toast{Title: "Session(s) started", Variant: fleet.VariantDefault})
	service.Toast(fleet.Toast{Title: "Failed to start sessions", Description: "boom", Variant: fleet.VariantDestructive})
	service.Shake()
	service.Changed(fleet.Dashboard{})

	events, total, _, err := service.QueryEvents(EventQueryFilters{})
	require.NoError(t, err)
	require.Equal(t, 2, total)

	byMessage := map[string]AuditEvent{}
	for _, e := range events {
		byMessage[e.Message] = e
	}
	require.Equal(t, EventLevelInfo, byMessage["Session(s) started"].Level)
	failed := byMessage["Failed to start sessions"]
	require.Equal(t, EventLevelWarn, failed.Level)
	require.Equal(t, "boom", failed.Payload["description"])
	require.Equal(t, "destructive", failed.Payload["variant"])
}

func TestServiceRecordsCommands(t *testing.T) {
	service := newTestService(t, Options{})

	service.CommandDispatched(fleet.CommandResult{Command: fleet.CommandPause, OK: true, DeviceIDs: []string{"d1"}, Requests: 1})
	service.CommandDispatched(fleet.CommandResult{Command: fleet.CommandStop, OK: false, DeviceIDs: []string{"d1", "d2"}, Requests: 2, Error: "backend down"})

	succeeded := string(EventCommandSucceeded)
	events, _, _, err := service.QueryEvents(EventQueryFilters{Type: &succeeded})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "pause on 1 device(s)", events[0].Message)
	require.NotNil(t, events[0].DeviceID)
	require.Equal(t, "d1", *events[0].DeviceID)

	failed := string(EventCommandFailed)
	events, _, _, err = service.QueryEvents(EventQueryFilters{Type: &failed})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventLevelError, events[0].Level)
	require.Nil(t, events[0].DeviceID)
	require.Equal(t, "backend down", events[0].Payload["error"])
	require.Equal(t, []any{"d1", "d2"}, events[0].Payload["device_ids"])
}

func TestServiceQueryClampsLimit(t *testing.T) {
	service := newTestService(t, Options{})
	for i := 0; i < 3; i++ {
		service.RecordSystem(EventSystemStartup, "started")
	}

	events, total, hasMore, err := service.QueryEvents(EventQueryFilters{Limit: 2})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, 3, total)
	require.True(t, hasMore)

	events, _, hasMore, err = service.QueryEvents(EventQueryFilters{Limit: MaxQueryLimit + 50})
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.False(t, hasMore)
}

func TestServiceGetEventNotFound(t *testing.T) {
	service := newTestService(t, Options{})

	_, err := service.GetEvent("missing")
	var notFound *EventNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "missing", notFound.EventID)
}

func TestServicePruneUsesRetention(t *testing.T) {
	service := newTestService(t, Options{RetentionDays: 7})
	now := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)

	service.repo.now = func() time.Time { return now.AddDate(0, 0, -8) }
	service.RecordSystem(EventSystemStartup, "stale")
	service.repo.now = func() time.Time { return now.AddDate(0, 0, -1) }
	service.RecordSystem(EventSystemStartup, "fresh")

	service.now = func() time.Time { return now }
	deleted, err := service.Prune()
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
	require.True(t, service.IsHealthy())
}

func TestServicePruneJobSchedule(t *testing.T) {
	service := newTestService(t, Options{PruneSchedule: "not a schedule"})
	require.Error(t, service.StartPruneJob())

	service = newTestService(t, Options{PruneSchedule: "*/5 * * * *"})
	require.False(t, service.PruneJobRunning())
	require.NoError(t, service.StartPruneJob())
	require.True(t, service.PruneJobRunning())
	service.StopPruneJob()
	require.False(t, service.PruneJobRunning())
	// Stopping twice is harmless.
	service.StopPruneJob()
}
