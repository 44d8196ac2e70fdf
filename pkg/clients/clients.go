// Package clients resolves the protocol client for a connection. The set of
// protocols is closed: dispatch is a switch over models.Protocol.
package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dukex/devsim/pkg/clients/https"
	"github.com/dukex/devsim/pkg/clients/kafka"
	"github.com/dukex/devsim/pkg/clients/mqtt"
	"github.com/dukex/devsim/pkg/models"
)

var (
	// ErrUnsupportedProtocol is returned for protocols without a client.
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	// ErrInvalidConfig is returned when a connection config fails its schema.
	ErrInvalidConfig = errors.New("invalid connection config")
)

// Client is the send capability every protocol implements. It never returns
// an error: failures are reported as ok=false with a human readable detail.
type Client interface {
	Send(ctx context.Context, payload []byte) (bool, string)
}

// Resolver returns the client for a connection.
type Resolver interface {
	ClientFor(conn *models.Connection) (Client, error)
}

// Factory builds protocol clients.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{logger: logger.With("module", "clients")}
}

// ClientFor validates the connection config and builds its client.
func (f *Factory) ClientFor(conn *models.Connection) (Client, error) {
	if err := ValidateConfig(conn); err != nil {
		return nil, err
	}

	switch conn.Protocol {
	case models.ProtocolMQTT:
		return mqtt.New(conn, f.logger)
	case models.ProtocolHTTPS:
		return https.New(conn, f.logger)
	case models.ProtocolKafka:
		return kafka.New(conn, f.logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, conn.Protocol)
	}
}

// Schema returns the JSON schema for a protocol's config options.
func Schema(protocol models.Protocol) (map[string]any, bool) {
	switch protocol {
	case models.ProtocolMQTT:
		return mqtt.Schema(), true
	case models.ProtocolHTTPS:
		return https.Schema(), true
	case models.ProtocolKafka:
		return kafka.Schema(), true
	default:
		return nil, false
	}
}

// ValidateConfig checks conn.Config against the protocol schema.
func ValidateConfig(conn *models.Connection) error {
	schema, ok := Schema(conn.Protocol)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedProtocol, conn.Protocol)
	}

	config := conn.Config
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	return nil
}
