package devices

import (
	"database/sql"
	"errors"
	"time"
)

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository persists configured devices.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

const deviceColumns = `device_id, name, address, product_id, firmware_version, enabled, created_at, updated_at, last_seen_at`

// List returns all devices ordered by name.
func (r *Repository) List() ([]Device, error) {
	rows, err := r.reader.Query(`SELECT ` + deviceColumns + ` FROM devices ORDER BY name, device_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *device)
	}
	return devices, rows.Err()
}

// Get returns nil, nil if the device does not exist.
func (r *Repository) Get(deviceID string) (*Device, error) {
	row := r.reader.QueryRow(`SELECT `+deviceColumns+` FROM devices WHERE device_id = ?`, deviceID)
	device, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return device, err
}

// GetByAddress returns nil, nil if no device uses address.
func (r *Repository) GetByAddress(address string) (*Device, error) {
	row := r.reader.QueryRow(`SELECT `+deviceColumns+` FROM devices WHERE address = ?`, address)
	device, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return device, err
}

// Upsert inserts the device or updates the stored identity. The name of an
// existing device is kept so user renames survive rediscovery.
func (r *Repository) Upsert(device Device) (*Device, error) {
	now := nowISO()
	_, err := r.writer.Exec(`
		INSERT INTO devices (device_id, name, address, product_id, firmware_version, enabled, created_at, updated_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			address = excluded.address,
			product_id = excluded.product_id,
			firmware_version = excluded.firmware_version,
			updated_at = excluded.updated_at,
			last_seen_at = excluded.last_seen_at
	`, device.ID, device.Name, device.Address, device.ProductID, device.FirmwareVersion, boolToInt(device.Enabled), now, now, now)
	if err != nil {
		return nil, err
	}
	return r.Get(device.ID)
}

// Update writes the mutable fields of device.
func (r *Repository) Update(device Device) (*Device, error) {
	_, err := r.writer.Exec(`
		UPDATE devices SET name = ?, address = ?, enabled = ?, updated_at = ?
		WHERE device_id = ?
	`, device.Name, device.Address, boolToInt(device.Enabled), nowISO(), device.ID)
	if err != nil {
		return nil, err
	}
	return r.Get(device.ID)
}

// TouchLastSeen records that the device answered at t.
func (r *Repository) TouchLastSeen(deviceID string, t time.Time) error {
	_, err := r.writer.Exec(`UPDATE devices SET last_seen_at = ? WHERE device_id = ?`, t.UTC().Format(time.RFC3339), deviceID)
	return err
}

// Delete reports whether a row was removed.
func (r *Repository) Delete(deviceID string) (bool, error) {
	result, err := r.writer.Exec(`DELETE FROM devices WHERE device_id = ?`, deviceID)
	if err != nil {
		return false, err
	}
	count, err := result.RowsAffected()
	return count > 0, err
}

// DeleteAll removes every device and returns the number removed.
func (r *Repository) DeleteAll() (int64, error) {
	result, err := r.writer.Exec(`DELETE FROM devices`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var device Device
	var productID, firmware, lastSeen sql.NullString
	var enabled int
	var createdAt, updatedAt string

	if err := row.Scan(
		&device.ID,
		&device.Name,
		&device.Address,
		&productID,
		&firmware,
		&enabled,
		&createdAt,
		&updatedAt,
		&lastSeen,
	); err != nil {
		return nil, err
	}

	device.ProductID = productID.String
	device.FirmwareVersion = firmware.String
	device.Enabled = enabled != 0
	device.CreatedAt = parseTime(createdAt)
	device.UpdatedAt = parseTime(updatedAt)
	if lastSeen.Valid && lastSeen.String != "" {
		seen := parseTime(lastSeen.String)
		device.LastSeenAt = &seen
	}
	return &device, nil
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		parsed, _ = time.Parse("2006-01-02 15:04:05", value)
	}
	return parsed
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
