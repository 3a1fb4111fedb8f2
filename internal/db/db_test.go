package db

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitCreatesSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "console.db")

	pair, err := Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { pair.Close() })

	require.NoError(t, pair.Ping())

	columns, err := tableColumns(pair.Writer(), "audit_events")
	require.NoError(t, err)
	for _, name := range []string{"event_id", "timestamp", "type", "level", "request_id", "device_id", "message", "payload"} {
		require.True(t, columns[name], "missing column %s", name)
	}
}

func TestInitRequiresPath(t *testing.T) {
	_, err := Init("")
	require.Error(t, err)
}

func TestInitMigratesLegacyAuditTable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = legacy.Exec(`
		CREATE TABLE audit_events (
		  event_id TEXT PRIMARY KEY,
		  timestamp TEXT NOT NULL,
		  type TEXT NOT NULL,
		  level TEXT NOT NULL,
		  request_id TEXT,
		  udn TEXT,
		  message TEXT NOT NULL,
		  payload TEXT NOT NULL DEFAULT '{}'
		);
		INSERT INTO audit_events (event_id, timestamp, type, level, udn, message)
		VALUES ('evt-1', '2026-01-01T00:00:00Z', 'COMMAND_DISPATCHED', 'INFO', 'device-1', 'legacy');
	`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	pair, err := Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { pair.Close() })

	var deviceID string
	require.NoError(t, pair.Reader().QueryRow("SELECT device_id FROM audit_events WHERE event_id = 'evt-1'").Scan(&deviceID))
	require.Equal(t, "device-1", deviceID)
}
