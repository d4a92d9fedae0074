package records

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nypoclary/lectura-backend/internal/types"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrExists   = errors.New("record already exists")
)

// IsNotFound reports whether err means a missing record in any backend.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// JobStore persists note jobs. The orchestrator only uses Get and Update;
// Create and Rearm serve the surfaces that enqueue and restart jobs.
type JobStore interface {
	Get(ctx context.Context, id string) (types.Job, error)
	Update(ctx context.Context, id string, u types.JobUpdate) error
	Create(ctx context.Context, job types.Job) error
	Rearm(ctx context.Context, id string, at time.Time) error
}

// UserStore reads owner preferences.
type UserStore interface {
	Get(ctx context.Context, id string) (types.User, error)
	Put(ctx context.Context, u types.User) error
}

// RearmUpdate resets a job to pending for a fresh run: CreatedAt moves to
// at and both artifact references are cleared.
func RearmUpdate(at time.Time) types.JobUpdate {
	pending := types.StatusPending
	empty := ""
	return types.JobUpdate{
		Status:               &pending,
		ResultArtifactRef:    &empty,
		NarrationArtifactRef: &empty,
		CreatedAt:            &at,
	}
}

// Memory keeps jobs and users in process. Used by tests and local runs.
type Memory struct {
	mu    sync.RWMutex
	jobs  map[string]types.Job
	users map[string]types.User
}

func NewMemory() *Memory {
	return &Memory{jobs: map[string]types.Job{}, users: map[string]types.User{}}
}

// Jobs and Users expose the two store views of the same backend.
func (m *Memory) Jobs() JobStore   { return memoryJobs{m} }
func (m *Memory) Users() UserStore { return memoryUsers{m} }

type memoryJobs struct{ m *Memory }

func (s memoryJobs) Get(_ context.Context, id string) (types.Job, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	j, ok := s.m.jobs[id]
	if !ok {
		return types.Job{}, ErrNotFound
	}
	return j, nil
}

func (s memoryJobs) Update(_ context.Context, id string, u types.JobUpdate) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	j, ok := s.m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	u.Apply(&j)
	s.m.jobs[id] = j
	return nil
}

func (s memoryJobs) Create(_ context.Context, job types.Job) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.jobs[job.ID]; ok {
		return ErrExists
	}
	if job.Status == "" {
		job.Status = types.StatusPending
	}
	s.m.jobs[job.ID] = job
	return nil
}

func (s memoryJobs) Rearm(ctx context.Context, id string, at time.Time) error {
	return s.Update(ctx, id, RearmUpdate(at))
}

type memoryUsers struct{ m *Memory }

func (s memoryUsers) Get(_ context.Context, id string) (types.User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	u, ok := s.m.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return u, nil
}

func (s memoryUsers) Put(_ context.Context, u types.User) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.users[u.ID] = u
	return nil
}
