package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/devsim/pkg/models"
	"github.com/dukex/devsim/pkg/persistence"
)

const deviceColumns = `
	id
  , reference
  , name
  , category
  , frequency_seconds
  , enabled
  , cursor_position
  , last_sent_at
  , selected_connection_id
  , include_reference
  , auto_reset
  , dataset
  , created_at
  , updated_at
`

// DeviceByID returns a device or persistence.ErrDeviceNotFound.
func (p *Persistence) DeviceByID(ctx context.Context, id string) (*models.Device, error) {
	row := p.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE id = $1", id)

	device, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewDeviceError("DeviceByID", id, persistence.ErrDeviceNotFound)
	}

	if err != nil {
		return nil, persistence.NewDeviceError("DeviceByID", id, err)
	}

	return device, nil
}

// Devices returns all devices ordered by id.
func (p *Persistence) Devices(ctx context.Context) ([]*models.Device, error) {
	return p.queryDevices(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY id")
}

// EnabledDevices returns devices flagged as enabled.
func (p *Persistence) EnabledDevices(ctx context.Context) ([]*models.Device, error) {
	return p.queryDevices(ctx, "SELECT "+deviceColumns+" FROM devices WHERE enabled ORDER BY id")
}

// SaveDevice upserts a device record.
func (p *Persistence) SaveDevice(ctx context.Context, device *models.Device) error {
	if err := device.Validate(); err != nil {
		return persistence.NewDeviceError("SaveDevice", device.ID, err)
	}

	dataset, err := json.Marshal(device.Dataset)
	if err != nil {
		return fmt.Errorf("failed to marshal dataset: %w", err)
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}

	device.UpdatedAt = now

	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id)
		DO UPDATE SET
			reference = EXCLUDED.reference,
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			frequency_seconds = EXCLUDED.frequency_seconds,
			enabled = EXCLUDED.enabled,
			cursor_position = EXCLUDED.cursor_position,
			last_sent_at = EXCLUDED.last_sent_at,
			selected_connection_id = EXCLUDED.selected_connection_id,
			include_reference = EXCLUDED.include_reference,
			auto_reset = EXCLUDED.auto_reset,
			dataset = EXCLUDED.dataset,
			updated_at = EXCLUDED.updated_at
	`

	_, err = p.db.ExecContext(ctx, query,
		device.ID,
		device.Reference,
		device.Name,
		string(device.Category),
		device.FrequencySeconds,
		device.Enabled,
		device.Cursor,
		device.LastSentAt,
		device.SelectedConnectionID,
		device.IncludeReference,
		device.AutoReset,
		dataset,
		device.CreatedAt,
		device.UpdatedAt,
	)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to save device", "device_id", device.ID, "error", err)

		return persistence.NewDeviceError("SaveDevice", device.ID, err)
	}

	return nil
}

// UpdateDeviceFields writes only the provided columns in a single statement.
func (p *Persistence) UpdateDeviceFields(ctx context.Context, id string, update persistence.DeviceUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Cursor != nil {
		add("cursor_position", *update.Cursor)
	}

	if update.Enabled != nil {
		add("enabled", *update.Enabled)
	}

	if update.LastSentAt != nil {
		add("last_sent_at", update.LastSentAt.UTC())
	}

	add("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf("UPDATE devices SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return persistence.NewDeviceError("UpdateDeviceFields", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewDeviceError("UpdateDeviceFields", id, err)
	}

	if affected == 0 {
		return persistence.NewDeviceError("UpdateDeviceFields", id, persistence.ErrDeviceNotFound)
	}

	return nil
}

func (p *Persistence) queryDevices(ctx context.Context, query string) ([]*models.Device, error) {
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			p.logger.ErrorContext(ctx, "Failed to close rows", "error", closeErr)
		}
	}()

	devices := make([]*models.Device, 0)

	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}

		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	return devices, nil
}

func scanDevice(scanner interface{ Scan(dest ...any) error }) (*models.Device, error) {
	var (
		device       models.Device
		category     string
		lastSentAt   sql.NullTime
		selectedConn sql.NullString
		dataset      []byte
	)

	err := scanner.Scan(
		&device.ID,
		&device.Reference,
		&device.Name,
		&category,
		&device.FrequencySeconds,
		&device.Enabled,
		&device.Cursor,
		&lastSentAt,
		&selectedConn,
		&device.IncludeReference,
		&device.AutoReset,
		&dataset,
		&device.CreatedAt,
		&device.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	device.Category = models.DeviceCategory(category)

	if lastSentAt.Valid {
		at := lastSentAt.Time.UTC()
		device.LastSentAt = &at
	}

	if selectedConn.Valid {
		device.SelectedConnectionID = &selectedConn.String
	}

	if len(dataset) > 0 {
		if err := json.Unmarshal(dataset, &device.Dataset); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
		}
	}

	return &device, nil
}
