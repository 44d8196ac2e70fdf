// Package jobstore persists scheduler job registrations so they survive a
// restart. Implementations are selected by URL scheme.
package jobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/devsim/pkg/models"
)

// ErrUnsupportedScheme is returned for persistence URLs no store understands.
var ErrUnsupportedScheme = errors.New("unsupported job store scheme")

// Store is the durable registry behind the scheduler.
type Store interface {
	Jobs(ctx context.Context) ([]*models.Job, error)
	SaveJob(ctx context.Context, job *models.Job) error
	DeleteJob(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// New creates the store matching the URL scheme: memory://, file://path,
// postgres://... or redis://....
func New(ctx context.Context, logger *slog.Logger, persistenceURL string) (Store, error) {
	scheme := ParseScheme(persistenceURL)

	logger.InfoContext(ctx, "Initializing job store", "scheme", scheme)

	switch scheme {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(strings.TrimPrefix(persistenceURL, "file://"))
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, logger, persistenceURL)
	case "redis", "rediss":
		return NewRedisStore(ctx, logger, persistenceURL)
	default:
		return nil, fmt.Errorf("%w: %s (supported: memory, file, postgres, redis)", ErrUnsupportedScheme, scheme)
	}
}

// ParseScheme extracts the scheme from a persistence URL. A bare path is a file store.
func ParseScheme(persistenceURL string) string {
	if persistenceURL == "" {
		return "memory"
	}

	parts := strings.Split(persistenceURL, "://")
	if len(parts) < 2 {
		return "file"
	}

	return parts[0]
}
