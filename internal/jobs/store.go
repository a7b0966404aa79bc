package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/tandem/internal/reconcile"
)

// DefaultRetention is how long finished jobs are kept before Cleanup drops them.
const DefaultRetention = 24 * time.Hour

var (
	ErrNotFound          = errors.New("job not found")
	ErrExists            = errors.New("job already exists")
	ErrTerminal          = errors.New("job already finished")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store is an in-memory job registry safe for concurrent use. All mutation
// goes through its methods; readers always get copies.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	cancels map[string]context.CancelFunc
	logger  *zap.Logger
	now     func() time.Time
}

// NewStore creates an empty store. A nil logger disables log mirroring.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		jobs:    make(map[string]*Job),
		cancels: make(map[string]context.CancelFunc),
		logger:  logger,
		now:     time.Now,
	}
}

// Create registers a pending job. An empty id gets a random one.
func (s *Store) Create(id string) (Job, error) {
	if id == "" {
		id = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; ok {
		return Job{}, fmt.Errorf("%w: %s", ErrExists, id)
	}
	now := s.now().UTC()
	j := &Job{
		ID:        id,
		Status:    StatusPending,
		Logs:      []LogEntry{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[id] = j
	s.logger.Info("job created", zap.String("job_id", id))
	return j.clone(), nil
}

// Get returns a copy of the job.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return j.clone(), true
}

// View returns the polling view of a job, or a not_found snapshot.
func (s *Store) View(id string) Snapshot {
	j, ok := s.Get(id)
	if !ok {
		return Snapshot{ID: id, Status: StatusNotFound}
	}
	p := j.Progress
	return Snapshot{ID: j.ID, Status: j.Status, Progress: &p, Logs: j.Logs, Result: j.Result}
}

// List returns copies of every job, newest first.
func (s *Store) List() []Job {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}

// AppendLog appends a timestamped message to a running job.
func (s *Store) AppendLog(id, msg string) error {
	return s.mutate(id, func(j *Job) error {
		s.appendLocked(j, msg)
		return nil
	})
}

// UpdateProgress applies the given fields and recomputes the percentage.
func (s *Store) UpdateProgress(id string, opts ...ProgressOption) error {
	return s.mutate(id, func(j *Job) error {
		for _, opt := range opts {
			opt(&j.Progress)
		}
		j.Progress.recompute()
		return nil
	})
}

// SetStatus moves a job forward to pending or processing, or cancels it.
// Completed and failed are reached only through Complete and Fail.
func (s *Store) SetStatus(id string, status Status) error {
	switch status {
	case StatusCancelled:
		_, err := s.Cancel(id)
		return err
	case StatusCompleted, StatusFailed:
		return fmt.Errorf("%w: use Complete or Fail to reach %s", ErrInvalidTransition, status)
	case StatusPending, StatusProcessing:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	return s.mutate(id, func(j *Job) error {
		if status.rank() < j.Status.rank() {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, status)
		}
		if j.Status != status {
			j.Status = status
			s.logger.Info("job status", zap.String("job_id", id), zap.String("status", string(status)))
		}
		return nil
	})
}

// Complete records the result and marks the job completed.
func (s *Store) Complete(id string, result *reconcile.AnalysisResult) error {
	if result == nil {
		return errors.New("complete: nil result")
	}
	err := s.mutate(id, func(j *Job) error {
		j.Status = StatusCompleted
		j.Result = result
		s.appendLocked(j, "Job completed successfully.")
		return nil
	})
	if err == nil {
		s.release(id)
	}
	return err
}

// Fail marks the job failed with a human-readable error.
func (s *Store) Fail(id, msg string) error {
	if msg == "" {
		msg = "unknown error"
	}
	err := s.mutate(id, func(j *Job) error {
		j.Status = StatusFailed
		j.Result = reconcile.Failure(msg)
		s.appendLocked(j, "Job failed: "+msg)
		return nil
	})
	if err == nil {
		s.release(id)
	}
	return err
}

// Cancel marks a non-terminal job cancelled and aborts its attached run
// context. Cancelling a finished job is a no-op that reports its status.
func (s *Store) Cancel(id string) (Status, error) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return StatusNotFound, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if j.Status.Terminal() {
		st := j.Status
		s.mu.Unlock()
		return st, nil
	}
	j.Status = StatusCancelled
	s.appendLocked(j, "Job cancellation requested by user.")
	j.UpdatedAt = s.now().UTC()
	cancel := s.cancels[id]
	delete(s.cancels, id)
	s.mu.Unlock()

	s.logger.Info("job cancelled", zap.String("job_id", id))
	if cancel != nil {
		cancel()
	}
	return StatusCancelled, nil
}

// IsCancelled reports whether cancellation has been requested for the job.
func (s *Store) IsCancelled(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return ok && j.Status == StatusCancelled
}

// Attach registers the cancel function of the job's run context. It is invoked
// when the job is cancelled and dropped when the job finishes. Attaching to a
// job that is already cancelled cancels immediately.
func (s *Store) Attach(id string, cancel context.CancelFunc) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if j.Status.Terminal() {
		s.mu.Unlock()
		if j.Status == StatusCancelled {
			cancel()
		}
		return nil
	}
	s.cancels[id] = cancel
	s.mu.Unlock()
	return nil
}

// Cleanup removes jobs created more than maxAge ago and returns how many went.
func (s *Store) Cleanup(maxAge time.Duration) int {
	cutoff := s.now().UTC().Add(-maxAge)
	s.mu.Lock()
	var removed []string
	for id, j := range s.jobs {
		if j.CreatedAt.Before(cutoff) {
			removed = append(removed, id)
		}
	}
	var cancels []context.CancelFunc
	for _, id := range removed {
		delete(s.jobs, id)
		if c, ok := s.cancels[id]; ok {
			cancels = append(cancels, c)
			delete(s.cancels, id)
		}
	}
	s.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	if len(removed) > 0 {
		s.logger.Info("cleaned up old jobs", zap.Int("count", len(removed)))
	}
	return len(removed)
}

// RunJanitor calls Cleanup every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup(maxAge)
		}
	}
}

// mutate applies fn to a live, non-terminal job under the write lock.
func (s *Store) mutate(id string, fn func(*Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, id, j.Status)
	}
	if err := fn(j); err != nil {
		return err
	}
	j.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) appendLocked(j *Job, msg string) {
	j.Logs = append(j.Logs, LogEntry{Time: s.now().UTC(), Message: msg})
	s.logger.Info(msg, zap.String("job_id", j.ID))
}

func (s *Store) release(id string) {
	s.mu.Lock()
	cancel := s.cancels[id]
	delete(s.cancels, id)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
