// Package file provides file-based persistence for devices, connections and
// the transmission log.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukex/devsim/pkg/models"
	"github.com/dukex/devsim/pkg/persistence"
)

const (
	devicesDir       = "devices"
	connectionsDir   = "connections"
	transmissionsDir = "transmissions"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Records are stored one JSON document per file; the transmission log is one
// JSON line per entry, per device.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{devicesDir, connectionsDir, transmissionsDir} {
		if err := os.MkdirAll(filepath.Join(cleanRoot, dir), 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return &Persistence{root: cleanRoot}, nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// DeviceByID returns a device or persistence.ErrDeviceNotFound.
func (fp *Persistence) DeviceByID(_ context.Context, id string) (*models.Device, error) {
	if !models.ValidID(id) {
		return nil, persistence.NewDeviceError("DeviceByID", id, persistence.ErrDeviceNotFound)
	}

	fp.mu.RLock()
	defer fp.mu.RUnlock()

	device := &models.Device{}

	err := fp.readJSON(fp.recordPath(devicesDir, id), device)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewDeviceError("DeviceByID", id, persistence.ErrDeviceNotFound)
	}

	if err != nil {
		return nil, persistence.NewDeviceError("DeviceByID", id, err)
	}

	return device, nil
}

// ConnectionByID returns a connection or persistence.ErrConnectionNotFound.
func (fp *Persistence) ConnectionByID(_ context.Context, id string) (*models.Connection, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	return fp.connectionByID(id)
}

// Devices returns all stored devices ordered by id.
func (fp *Persistence) Devices(_ context.Context) ([]*models.Device, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	return readAll[models.Device](fp, devicesDir)
}

// Connections returns all stored connections ordered by id.
func (fp *Persistence) Connections(_ context.Context) ([]*models.Connection, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	return fp.connections()
}

// EnabledDevices returns devices flagged as enabled.
func (fp *Persistence) EnabledDevices(ctx context.Context) ([]*models.Device, error) {
	devices, err := fp.Devices(ctx)
	if err != nil {
		return nil, err
	}

	enabled := make([]*models.Device, 0, len(devices))

	for _, device := range devices {
		if device.Enabled {
			enabled = append(enabled, device)
		}
	}

	return enabled, nil
}

// ActiveConnections returns connections flagged as active.
func (fp *Persistence) ActiveConnections(_ context.Context) ([]*models.Connection, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	connections, err := fp.connections()
	if err != nil {
		return nil, err
	}

	active := make([]*models.Connection, 0, len(connections))

	for _, connection := range connections {
		if connection.Active {
			active = append(active, connection)
		}
	}

	return active, nil
}

// SaveDevice creates or replaces a device record.
func (fp *Persistence) SaveDevice(_ context.Context, device *models.Device) error {
	if err := device.Validate(); err != nil {
		return persistence.NewDeviceError("SaveDevice", device.ID, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}

	device.UpdatedAt = now

	return fp.writeJSON(fp.recordPath(devicesDir, device.ID), device)
}

// SaveConnection creates or replaces a connection record.
func (fp *Persistence) SaveConnection(_ context.Context, connection *models.Connection) error {
	if err := connection.Validate(); err != nil {
		return persistence.NewConnectionError("SaveConnection", connection.ID, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	now := time.Now().UTC()
	if connection.CreatedAt.IsZero() {
		connection.CreatedAt = now
	}

	connection.UpdatedAt = now

	return fp.writeJSON(fp.recordPath(connectionsDir, connection.ID), connection)
}

// UpdateDeviceFields applies a partial update under the write lock so
// concurrent updates on different fields never lose each other.
func (fp *Persistence) UpdateDeviceFields(_ context.Context, id string, update persistence.DeviceUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	if !models.ValidID(id) {
		return persistence.NewDeviceError("UpdateDeviceFields", id, persistence.ErrDeviceNotFound)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	path := fp.recordPath(devicesDir, id)
	device := &models.Device{}

	err := fp.readJSON(path, device)
	if errors.Is(err, fs.ErrNotExist) {
		return persistence.NewDeviceError("UpdateDeviceFields", id, persistence.ErrDeviceNotFound)
	}

	if err != nil {
		return persistence.NewDeviceError("UpdateDeviceFields", id, err)
	}

	update.Apply(device)
	device.UpdatedAt = time.Now().UTC()

	return fp.writeJSON(path, device)
}

// AppendTransmission appends an entry to the device's log file.
func (fp *Persistence) AppendTransmission(_ context.Context, entry *models.TransmissionLogEntry) error {
	if !models.ValidID(entry.DeviceID) {
		return persistence.NewDeviceError("AppendTransmission", entry.DeviceID, models.ErrInvalidDevice)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal transmission entry: %w", err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	file, err := os.OpenFile(fp.logPath(entry.DeviceID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open transmission log: %w", err)
	}

	defer func() { _ = file.Close() }()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append transmission entry: %w", err)
	}

	return nil
}

// TransmissionHistory returns up to limit entries, newest first.
func (fp *Persistence) TransmissionHistory(_ context.Context, deviceID string, limit int) ([]*models.TransmissionLogEntry, error) {
	if !models.ValidID(deviceID) {
		return []*models.TransmissionLogEntry{}, nil
	}

	fp.mu.RLock()
	defer fp.mu.RUnlock()

	data, err := os.ReadFile(fp.logPath(deviceID)) // #nosec G304 -- path is built from the controlled root
	if errors.Is(err, fs.ErrNotExist) {
		return []*models.TransmissionLogEntry{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read transmission log: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	entries := make([]*models.TransmissionLogEntry, 0, min(limit, len(lines)))

	for i := len(lines) - 1; i >= 0 && len(entries) < limit; i-- {
		if lines[i] == "" {
			continue
		}

		entry := &models.TransmissionLogEntry{}
		if err := json.Unmarshal([]byte(lines[i]), entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transmission entry: %w", err)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

func (fp *Persistence) connectionByID(id string) (*models.Connection, error) {
	if !models.ValidID(id) {
		return nil, persistence.NewConnectionError("ConnectionByID", id, persistence.ErrConnectionNotFound)
	}

	connection := &models.Connection{}

	err := fp.readJSON(fp.recordPath(connectionsDir, id), connection)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewConnectionError("ConnectionByID", id, persistence.ErrConnectionNotFound)
	}

	if err != nil {
		return nil, persistence.NewConnectionError("ConnectionByID", id, err)
	}

	return connection, nil
}

func (fp *Persistence) connections() ([]*models.Connection, error) {
	return readAll[models.Connection](fp, connectionsDir)
}

// recordPath and logPath expect ids accepted by models.ValidID.
func (fp *Persistence) recordPath(dir, id string) string {
	return filepath.Join(fp.root, dir, id+".json")
}

func (fp *Persistence) logPath(deviceID string) string {
	return filepath.Join(fp.root, transmissionsDir, deviceID+".jsonl")
}

func (fp *Persistence) readJSON(path string, target any) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from the controlled root
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}

	return nil
}

// writeJSON replaces path atomically through a temp file and rename.
func (fp *Persistence) writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace record: %w", err)
	}

	return nil
}

func readAll[T any](fp *Persistence, dir string) ([]*T, error) {
	jsonFiles, err := fs.Glob(os.DirFS(filepath.Join(fp.root, dir)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", dir, err)
	}

	sort.Strings(jsonFiles)

	records := make([]*T, 0, len(jsonFiles))

	for _, name := range jsonFiles {
		record := new(T)
		if err := fp.readJSON(filepath.Join(fp.root, dir, name), record); err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}
