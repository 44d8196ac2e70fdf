package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukex/devsim/pkg/models"
	redis "github.com/redis/go-redis/v9"
)

// RedisJobsKey is the hash holding every job, keyed by job key.
const RedisJobsKey = "devsim:jobs"

// RedisStore implements Store on a single Redis hash.
type RedisStore struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewRedisStore parses a redis:// URL and verifies connectivity.
func NewRedisStore(ctx context.Context, logger *slog.Logger, redisURL string) (*RedisStore, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return NewRedisStoreWithClient(ctx, logger, redis.NewClient(options))
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(ctx context.Context, logger *slog.Logger, client redis.UniversalClient) (*RedisStore, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		logger: logger.With("component", "scheduler_redis_jobstore"),
	}, nil
}

func (r *RedisStore) Jobs(ctx context.Context) ([]*models.Job, error) {
	values, err := r.client.HGetAll(ctx, RedisJobsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}

	jobs := make([]*models.Job, 0, len(values))

	for key, value := range values {
		job := &models.Job{}
		if err := json.Unmarshal([]byte(value), job); err != nil {
			r.logger.WarnContext(ctx, "Skipping corrupt job entry", "job_key", key, "error", err)

			continue
		}

		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Key < jobs[j].Key })

	return jobs, nil
}

func (r *RedisStore) SaveJob(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := r.client.HSet(ctx, RedisJobsKey, job.Key, data).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	return nil
}

func (r *RedisStore) DeleteJob(ctx context.Context, key string) error {
	if err := r.client.HDel(ctx, RedisJobsKey, key).Err(); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	return nil
}

func (r *RedisStore) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
