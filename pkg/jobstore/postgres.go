package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/devsim/pkg/models"
	"github.com/dukex/devsim/pkg/persistence/sqlbase"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func jobMigrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE scheduler_jobs (
				job_key VARCHAR(511) PRIMARY KEY,
				device_id VARCHAR(255) NOT NULL,
				connection_id VARCHAR(255) NOT NULL,
				interval_seconds INTEGER NOT NULL CHECK (interval_seconds > 0),
				next_fire_time TIMESTAMP WITH TIME ZONE NOT NULL,
				paused BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_scheduler_jobs_device_id ON scheduler_jobs(device_id);
		`,
	}
}

// NewPostgresStore connects, pings and migrates the job table.
func NewPostgresStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*PostgresStore, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, "scheduler_schema_migrations", jobMigrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run scheduler migrations: %w", err)
	}

	logger.InfoContext(ctx, "Scheduler PostgreSQL job store initialized successfully")

	return &PostgresStore{
		db:     database,
		logger: logger.With("component", "scheduler_postgres_jobstore"),
	}, nil
}

// SaveJob upserts a job.
func (p *PostgresStore) SaveJob(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO scheduler_jobs (
			job_key, device_id, connection_id, interval_seconds, next_fire_time, paused, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_key)
		DO UPDATE SET
			interval_seconds = EXCLUDED.interval_seconds,
			next_fire_time = EXCLUDED.next_fire_time,
			paused = EXCLUDED.paused,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}

	job.UpdatedAt = now

	_, err := p.db.ExecContext(ctx, query,
		job.Key,
		job.DeviceID,
		job.ConnectionID,
		job.IntervalSeconds,
		job.NextFireTime.UTC(),
		job.Paused,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to save job", "job_key", job.Key, "error", err)

		return fmt.Errorf("failed to save job: %w", err)
	}

	return nil
}

// Jobs returns every stored job ordered by key.
func (p *PostgresStore) Jobs(ctx context.Context) ([]*models.Job, error) {
	query := `
		SELECT job_key, device_id, connection_id, interval_seconds, next_fire_time, paused, created_at, updated_at
		FROM scheduler_jobs
		ORDER BY job_key ASC
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			p.logger.ErrorContext(ctx, "Failed to close rows", "error", closeErr)
		}
	}()

	jobs := make([]*models.Job, 0)

	for rows.Next() {
		job := &models.Job{}

		err := rows.Scan(
			&job.Key,
			&job.DeviceID,
			&job.ConnectionID,
			&job.IntervalSeconds,
			&job.NextFireTime,
			&job.Paused,
			&job.CreatedAt,
			&job.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}

		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}

	return jobs, nil
}

// DeleteJob removes a job by key.
func (p *PostgresStore) DeleteJob(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM scheduler_jobs WHERE job_key = $1", key)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *PostgresStore) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *PostgresStore) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
