// Package config loads fleet seed files: YAML documents describing the
// connections and devices to store before the scheduler starts.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dukex/devsim/pkg/clients"
	"github.com/dukex/devsim/pkg/models"
	"github.com/dukex/devsim/pkg/persistence"
)

// ErrUnknownConnection is returned when a device selects a connection the file does not define.
var ErrUnknownConnection = errors.New("device references unknown connection")

// FleetFile is the structure of a fleet seed file.
type FleetFile struct {
	Connections []ConnectionConfig `yaml:"connections" validate:"dive"`
	Devices     []DeviceConfig     `yaml:"devices"     validate:"dive"`
}

// ConnectionConfig is a connection entry in the seed file.
type ConnectionConfig struct {
	ID       string            `yaml:"id"       validate:"required,excludesall=:/\\"`
	Name     string            `yaml:"name"`
	Protocol string            `yaml:"protocol" validate:"required,oneof=MQTT HTTPS KAFKA"`
	Host     string            `yaml:"host"     validate:"required"`
	Port     int               `yaml:"port"     validate:"gte=0,lte=65535"`
	Endpoint string            `yaml:"endpoint"`
	Active   bool              `yaml:"active"`
	Config   map[string]any    `yaml:"config"`
	Auth     map[string]string `yaml:"auth"`
}

// DeviceConfig is a device entry in the seed file.
type DeviceConfig struct {
	ID               string           `yaml:"id"                validate:"required,excludesall=:/\\"`
	Reference        string           `yaml:"reference"`
	Name             string           `yaml:"name"`
	Category         string           `yaml:"category"          validate:"required,oneof=CONTINUOUS SEQUENTIAL"`
	FrequencySeconds int              `yaml:"frequency_seconds" validate:"gte=0"`
	Enabled          bool             `yaml:"enabled"`
	IncludeReference bool             `yaml:"include_reference"`
	AutoReset        bool             `yaml:"auto_reset"`
	Connection       string           `yaml:"connection"`
	Dataset          []map[string]any `yaml:"dataset"`
}

// Summary counts what Apply stored.
type Summary struct {
	Connections int
	Devices     int
}

// LoadFleet reads and validates a seed file.
func LoadFleet(path string) (*FleetFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fleet file %s: %w", path, err)
	}

	return ParseFleet(data)
}

// ParseFleet decodes and validates a seed document.
func ParseFleet(data []byte) (*FleetFile, error) {
	var fleet FleetFile
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		return nil, fmt.Errorf("failed to parse YAML fleet: %w", err)
	}

	if err := fleet.Validate(); err != nil {
		return nil, err
	}

	return &fleet, nil
}

// Validate checks struct tags, protocol config schemas and connection references.
func (f *FleetFile) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("invalid fleet: %w", err)
	}

	known := make(map[string]bool, len(f.Connections))

	for i, c := range f.Connections {
		if err := clients.ValidateConfig(c.model()); err != nil {
			return fmt.Errorf("connections[%d] %s: %w", i, c.ID, err)
		}

		known[c.ID] = true
	}

	for i, d := range f.Devices {
		if d.Connection != "" && !known[d.Connection] {
			return fmt.Errorf("devices[%d] %s: %w: %s", i, d.ID, ErrUnknownConnection, d.Connection)
		}
	}

	return nil
}

// Apply upserts every connection, then every device.
func (f *FleetFile) Apply(ctx context.Context, store persistence.Persistence) (Summary, error) {
	var summary Summary

	for _, c := range f.Connections {
		if err := store.SaveConnection(ctx, c.model()); err != nil {
			return summary, fmt.Errorf("failed to save connection %s: %w", c.ID, err)
		}

		summary.Connections++
	}

	for _, d := range f.Devices {
		if err := store.SaveDevice(ctx, d.model()); err != nil {
			return summary, fmt.Errorf("failed to save device %s: %w", d.ID, err)
		}

		summary.Devices++
	}

	return summary, nil
}

func (c ConnectionConfig) model() *models.Connection {
	return &models.Connection{
		ID:       c.ID,
		Name:     c.Name,
		Protocol: models.Protocol(c.Protocol),
		Active:   c.Active,
		Host:     c.Host,
		Port:     c.Port,
		Endpoint: c.Endpoint,
		Config:   c.Config,
		Auth:     c.Auth,
	}
}

func (d DeviceConfig) model() *models.Device {
	device := &models.Device{
		ID:               d.ID,
		Reference:        d.Reference,
		Name:             d.Name,
		Category:         models.DeviceCategory(d.Category),
		FrequencySeconds: d.FrequencySeconds,
		Enabled:          d.Enabled,
		IncludeReference: d.IncludeReference,
		AutoReset:        d.AutoReset,
		Dataset:          make([]models.Row, 0, len(d.Dataset)),
	}

	if d.Connection != "" {
		conn := d.Connection
		device.SelectedConnectionID = &conn
	}

	for _, row := range d.Dataset {
		device.Dataset = append(device.Dataset, models.Row(row))
	}

	return device
}
