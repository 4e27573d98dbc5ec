// ABOUTME: SQLite-backed device directory using modernc.org/sqlite
// ABOUTME: Persists device metadata so push addresses survive process restarts

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/2389/handoff-bridge/internal/broker"
)

// DeviceStore persists known devices and their durable push addresses.
type DeviceStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDeviceStore opens (or creates) the device directory at the given path.
// Parent directories are created if needed.
func NewDeviceStore(path string, logger *slog.Logger) (*DeviceStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &DeviceStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("device directory initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *DeviceStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS devices (
			device_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			push_address TEXT NOT NULL DEFAULT '',
			last_seen DATETIME NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertDevice inserts or refreshes a device record. An empty push address on
// an update leaves a previously stored one intact, mirroring the broker's
// durable-map semantics.
func (s *DeviceStore) UpsertDevice(ctx context.Context, rec broker.DeviceRecord) error {
	if rec.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, name, push_address, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			name = excluded.name,
			push_address = CASE
				WHEN excluded.push_address != '' THEN excluded.push_address
				ELSE devices.push_address
			END,
			last_seen = excluded.last_seen
	`, rec.DeviceID, rec.Name, rec.PushAddress, rec.LastSeen.UTC())
	if err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}
	return nil
}

// ListDevices returns every known device, most recently seen first.
func (s *DeviceStore) ListDevices(ctx context.Context) ([]broker.DeviceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, name, push_address, last_seen
		FROM devices
		ORDER BY last_seen DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []broker.DeviceRecord
	for rows.Next() {
		var rec broker.DeviceRecord
		if err := rows.Scan(&rec.DeviceID, &rec.Name, &rec.PushAddress, &rec.LastSeen); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, rec)
	}
	return devices, rows.Err()
}

// PushAddresses returns the durable push address map used to seed the broker.
func (s *DeviceStore) PushAddresses(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, push_address FROM devices WHERE push_address != ''
	`)
	if err != nil {
		return nil, fmt.Errorf("querying push addresses: %w", err)
	}
	defer rows.Close()

	addrs := make(map[string]string)
	for rows.Next() {
		var deviceID, addr string
		if err := rows.Scan(&deviceID, &addr); err != nil {
			return nil, fmt.Errorf("scanning push address row: %w", err)
		}
		addrs[deviceID] = addr
	}
	return addrs, rows.Err()
}

// Close closes the underlying database.
func (s *DeviceStore) Close() error {
	return s.db.Close()
}
