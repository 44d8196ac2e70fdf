package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dukex/devsim/pkg/models"
)

const jobsFile = "jobs.json"

// FileStore implements Store using a single JSON file.
type FileStore struct {
	dataDir string
	mu      sync.RWMutex
	jobs    map[string]*models.Job
}

// NewFileStore creates a file-based job store rooted at dataDir.
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	fs := &FileStore{
		dataDir: dataDir,
		jobs:    make(map[string]*models.Job),
	}

	if err := fs.loadJobs(); err != nil {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}

	return fs, nil
}

// Jobs returns all jobs ordered by key.
func (fs *FileStore) Jobs(_ context.Context) ([]*models.Job, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	jobs := make([]*models.Job, 0, len(fs.jobs))
	for _, job := range fs.jobs {
		clone := *job
		jobs = append(jobs, &clone)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Key < jobs[j].Key })

	return jobs, nil
}

// SaveJob creates or replaces a job and flushes the file.
func (fs *FileStore) SaveJob(_ context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	clone := *job
	fs.jobs[job.Key] = &clone

	return fs.saveJobsToFile()
}

// DeleteJob removes a job by key. Missing keys are not an error.
func (fs *FileStore) DeleteJob(_ context.Context, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.jobs[key]; !ok {
		return nil
	}

	delete(fs.jobs, key)

	return fs.saveJobsToFile()
}

// HealthCheck verifies that the data directory is still accessible.
func (fs *FileStore) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fs.dataDir); os.IsNotExist(err) {
		return fmt.Errorf("data directory does not exist: %s", fs.dataDir)
	}

	return nil
}

// Close flushes the current state.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.saveJobsToFile()
}

func (fs *FileStore) loadJobs() error {
	path := filepath.Join(fs.dataDir, jobsFile)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is constructed from controlled dataDir
	if err != nil {
		return fmt.Errorf("failed to read jobs file: %w", err)
	}

	var jobs []*models.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("failed to unmarshal jobs: %w", err)
	}

	for _, job := range jobs {
		fs.jobs[job.Key] = job
	}

	return nil
}

func (fs *FileStore) saveJobsToFile() error {
	path := filepath.Join(fs.dataDir, jobsFile)

	jobs := make([]*models.Job, 0, len(fs.jobs))
	for _, job := range fs.jobs {
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Key < jobs[j].Key })

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal jobs: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write jobs file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace jobs file: %w", err)
	}

	return nil
}
