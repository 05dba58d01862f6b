package jobs

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Job is a background task with an explicit lifecycle.
type Job interface {
	Start() error
	Stop()
}

// JobManager owns the running background jobs, one per key. Screen sessions
// register their live poll here so shutdown can stop them all at once.
type JobManager struct {
	mu     sync.Mutex
	jobs   map[string]Job
	logger *slog.Logger
}

// NewJobManager creates an empty manager.
func NewJobManager(logger *slog.Logger) *JobManager {
	return &JobManager{
		jobs:   make(map[string]Job),
		logger: logger.With("component", "job_manager"),
	}
}

// Add starts job and keeps it under key. A key can hold one job at a time.
func (jm *JobManager) Add(key string, job Job) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if _, ok := jm.jobs[key]; ok {
		return fmt.Errorf("job %q is already registered", key)
	}
	if err := job.Start(); err != nil {
		return fmt.Errorf("failed to start job %q: %w", key, err)
	}
	jm.jobs[key] = job
	return nil
}

// Remove stops and forgets the job under key. Unknown keys are ignored.
func (jm *JobManager) Remove(key string) {
	jm.mu.Lock()
	job, ok := jm.jobs[key]
	delete(jm.jobs, key)
	jm.mu.Unlock()
	if ok {
		job.Stop()
	}
}

// Keys lists the registered jobs in sorted order.
func (jm *JobManager) Keys() []string {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	keys := make([]string, 0, len(jm.jobs))
	for k := range jm.jobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StopAll stops every job gracefully.
func (jm *JobManager) StopAll() {
	jm.mu.Lock()
	jobs := jm.jobs
	jm.jobs = make(map[string]Job)
	jm.mu.Unlock()

	for _, job := range jobs {
		job.Stop()
	}
	jm.logger.Info("All jobs stopped", "count", len(jobs))
}
