package models

import (
	"errors"
	"time"
)

// Protocol identifies the wire protocol used to reach an endpoint.
type Protocol string

const (
	ProtocolMQTT  Protocol = "MQTT"
	ProtocolHTTPS Protocol = "HTTPS"
	ProtocolKafka Protocol = "KAFKA"
)

// ErrInvalidConnection is returned when connection validation fails.
var ErrInvalidConnection = errors.New("invalid connection")

// Connection describes a downstream endpoint devices transmit to.
type Connection struct {
	ID       string   `json:"id"       validate:"required,excludesall=:/\\"`
	Name     string   `json:"name"`
	Protocol Protocol `json:"protocol" validate:"required,oneof=MQTT HTTPS KAFKA"`
	Active   bool     `json:"active"`

	Host     string `json:"host"     validate:"required"`
	Port     int    `json:"port"     validate:"gte=0,lte=65535"`
	Endpoint string `json:"endpoint"`

	// Config carries protocol specific options (qos, method, headers...).
	Config map[string]any `json:"config,omitempty"`

	// Auth carries already decrypted credentials for the protocol client.
	Auth map[string]string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the structural invariants of a connection record.
func (c *Connection) Validate() error {
	if !ValidID(c.ID) || c.Host == "" {
		return ErrInvalidConnection
	}

	switch c.Protocol {
	case ProtocolMQTT, ProtocolHTTPS, ProtocolKafka:
		return nil
	default:
		return ErrInvalidConnection
	}
}

// ConfigString returns a string option or fallback when absent.
func (c *Connection) ConfigString(key, fallback string) string {
	if v, ok := c.Config[key].(string); ok && v != "" {
		return v
	}

	return fallback
}

// ConfigInt returns a numeric option or fallback when absent. JSON numbers
// decode as float64, so both forms are accepted.
func (c *Connection) ConfigInt(key string, fallback int) int {
	switch v := c.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// ConfigBool returns a boolean option or fallback when absent.
func (c *Connection) ConfigBool(key string, fallback bool) bool {
	if v, ok := c.Config[key].(bool); ok {
		return v
	}

	return fallback
}
