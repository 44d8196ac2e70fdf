package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/devsim/pkg/jobstore"
	"github.com/dukex/devsim/pkg/persistence"
	"github.com/dukex/devsim/pkg/persistence/file"
	"github.com/dukex/devsim/pkg/persistence/postgresql"
)

// NewPersistence opens the record store named by databaseURL: postgres:// or
// postgresql:// for PostgreSQL, anything else is a file store root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL)
	}
}

// NewJobStore opens the scheduler job store. A store that cannot be opened is
// replaced by an in-memory one so scheduling still works without durability.
func NewJobStore(ctx context.Context, logger *slog.Logger, persistenceURL string) jobstore.Store {
	store, err := jobstore.New(ctx, logger, persistenceURL)
	if err != nil {
		logger.WarnContext(ctx, "Job store unavailable, using in-memory scheduling",
			"scheme", jobstore.ParseScheme(persistenceURL), "error", err)

		return jobstore.NewMemoryStore()
	}

	return store
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
