package db

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func TestInitCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "hub.db")

	pair, err := Init(path)
	require.NoError(t, err)
	defer pair.Close()

	for _, table := range []string{"devices", "audit_events"} {
		columns, err := tableColumns(pair.Writer(), table)
		require.NoError(t, err)
		require.NotEmpty(t, columns, table)
	}

	columns, err := tableColumns(pair.Writer(), "devices")
	require.NoError(t, err)
	require.True(t, columns["address"])
	require.True(t, columns["enabled"])
}

func TestInitIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.db")

	first, err := Init(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Init(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestInitRequiresPath(t *testing.T) {
	_, err := Init("")
	require.Error(t, err)
}

func TestInitRecordsSchemaVersion(t *testing.T) {
	pair, err := Init(filepath.Join(t.TempDir(), "hub.db"))
	require.NoError(t, err)
	defer pair.Close()

	var version int
	require.NoError(t, pair.Reader().QueryRow("PRAGMA user_version").Scan(&version))
	require.Equal(t, SchemaVersion(), version)
}

func TestInitUpgradesOlderStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.db")

	legacy, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`
		CREATE TABLE devices (
		  device_id TEXT PRIMARY KEY,
		  name TEXT NOT NULL,
		  address TEXT NOT NULL,
		  created_at TEXT NOT NULL,
		  updated_at TEXT NOT NULL,
		  last_seen_at TEXT
		);
		CREATE TABLE audit_events (
		  event_id TEXT PRIMARY KEY,
		  timestamp TEXT NOT NULL,
		  type TEXT NOT NULL,
		  level TEXT NOT NULL,
		  request_id TEXT,
		  message TEXT NOT NULL,
		  payload TEXT NOT NULL DEFAULT '{}'
		);
		INSERT INTO devices (device_id, name, address, created_at, updated_at)
		VALUES ('SN1', 'Living Room', '10.0.0.5', '2024-01-01', '2024-01-01');
	`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	pair, err := Init(path)
	require.NoError(t, err)
	defer pair.Close()

	devices, err := tableColumns(pair.Writer(), "devices")
	require.NoError(t, err)
	require.True(t, devices["product_id"])
	require.True(t, devices["firmware_version"])
	require.True(t, devices["enabled"])

	audit, err := tableColumns(pair.Writer(), "audit_events")
	require.NoError(t, err)
	require.True(t, audit["device_id"])

	var enabled int
	require.NoError(t, pair.Reader().QueryRow("SELECT enabled FROM devices WHERE device_id = 'SN1'").Scan(&enabled))
	require.Equal(t, 1, enabled)
}
