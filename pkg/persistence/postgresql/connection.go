package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/devsim/pkg/models"
	"github.com/dukex/devsim/pkg/persistence"
)

const connectionColumns = `
	id
  , name
  , protocol
  , active
  , host
  , port
  , endpoint
  , config
  , auth
  , created_at
  , updated_at
`

// ConnectionByID returns a connection or persistence.ErrConnectionNotFound.
func (p *Persistence) ConnectionByID(ctx context.Context, id string) (*models.Connection, error) {
	row := p.db.QueryRowContext(ctx, "SELECT "+connectionColumns+" FROM connections WHERE id = $1", id)

	connection, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewConnectionError("ConnectionByID", id, persistence.ErrConnectionNotFound)
	}

	if err != nil {
		return nil, persistence.NewConnectionError("ConnectionByID", id, err)
	}

	return connection, nil
}

// Connections returns all connections ordered by id.
func (p *Persistence) Connections(ctx context.Context) ([]*models.Connection, error) {
	return p.queryConnections(ctx, "SELECT "+connectionColumns+" FROM connections ORDER BY id")
}

// ActiveConnections returns connections flagged as active.
func (p *Persistence) ActiveConnections(ctx context.Context) ([]*models.Connection, error) {
	return p.queryConnections(ctx, "SELECT "+connectionColumns+" FROM connections WHERE active ORDER BY id")
}

// SaveConnection upserts a connection record.
func (p *Persistence) SaveConnection(ctx context.Context, connection *models.Connection) error {
	if err := connection.Validate(); err != nil {
		return persistence.NewConnectionError("SaveConnection", connection.ID, err)
	}

	config, err := json.Marshal(connection.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal connection config: %w", err)
	}

	auth, err := json.Marshal(connection.Auth)
	if err != nil {
		return fmt.Errorf("failed to marshal connection auth: %w", err)
	}

	now := time.Now().UTC()
	if connection.CreatedAt.IsZero() {
		connection.CreatedAt = now
	}

	connection.UpdatedAt = now

	query := `
		INSERT INTO connections (` + connectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			protocol = EXCLUDED.protocol,
			active = EXCLUDED.active,
			host = EXCLUDED.host,
			port = EXCLUDED.port,
			endpoint = EXCLUDED.endpoint,
			config = EXCLUDED.config,
			auth = EXCLUDED.auth,
			updated_at = EXCLUDED.updated_at
	`

	_, err = p.db.ExecContext(ctx, query,
		connection.ID,
		connection.Name,
		string(connection.Protocol),
		connection.Active,
		connection.Host,
		connection.Port,
		connection.Endpoint,
		config,
		auth,
		connection.CreatedAt,
		connection.UpdatedAt,
	)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to save connection", "connection_id", connection.ID, "error", err)

		return persistence.NewConnectionError("SaveConnection", connection.ID, err)
	}

	return nil
}

func (p *Persistence) queryConnections(ctx context.Context, query string) ([]*models.Connection, error) {
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			p.logger.ErrorContext(ctx, "Failed to close rows", "error", closeErr)
		}
	}()

	connections := make([]*models.Connection, 0)

	for rows.Next() {
		connection, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}

		connections = append(connections, connection)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate connections: %w", err)
	}

	return connections, nil
}

func scanConnection(scanner interface{ Scan(dest ...any) error }) (*models.Connection, error) {
	var (
		connection models.Connection
		protocol   string
		config     []byte
		auth       []byte
	)

	err := scanner.Scan(
		&connection.ID,
		&connection.Name,
		&protocol,
		&connection.Active,
		&connection.Host,
		&connection.Port,
		&connection.Endpoint,
		&config,
		&auth,
		&connection.CreatedAt,
		&connection.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	connection.Protocol = models.Protocol(protocol)

	if len(config) > 0 {
		if err := json.Unmarshal(config, &connection.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal connection config: %w", err)
		}
	}

	if len(auth) > 0 {
		if err := json.Unmarshal(auth, &connection.Auth); err != nil {
			return nil, fmt.Errorf("failed to unmarshal connection auth: %w", err)
		}
	}

	return &connection, nil
}
