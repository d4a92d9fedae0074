package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nypoclary/lectura-backend/internal/types"
)

type blockingRunner struct {
	release chan struct{}
	started chan string

	mu       sync.Mutex
	restarts []string
	active   int32
	peak     int32
	deadline time.Time
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{}), started: make(chan string, 16)}
}

func (b *blockingRunner) Run(ctx context.Context, jobID string) types.JobStatus {
	n := atomic.AddInt32(&b.active, 1)
	defer atomic.AddInt32(&b.active, -1)
	for {
		p := atomic.LoadInt32(&b.peak)
		if n <= p || atomic.CompareAndSwapInt32(&b.peak, p, n) {
			break
		}
	}
	if dl, ok := ctx.Deadline(); ok {
		b.mu.Lock()
		b.deadline = dl
		b.mu.Unlock()
	}

	b.started <- jobID
	<-b.release
	return types.StatusCompleted
}

func (b *blockingRunner) Restart(ctx context.Context, jobID string) types.JobStatus {
	b.mu.Lock()
	b.restarts = append(b.restarts, jobID)
	b.mu.Unlock()
	return b.Run(ctx, jobID)
}

func TestSubmitRejectsDuplicateJob(t *testing.T) {
	r := newBlockingRunner()
	d := NewDispatcher(r, Config{}, nil)

	require.NoError(t, d.Submit("J1"))
	<-r.started
	assert.True(t, d.Running("J1"))
	assert.ErrorIs(t, d.Submit("J1"), ErrJobAlreadyRunning)
	assert.ErrorIs(t, d.Restart("J1"), ErrJobAlreadyRunning)

	close(r.release)
	require.NoError(t, d.Shutdown(context.Background()))
	assert.False(t, d.Running("J1"))
}

func TestSubmitAppliesJobTimeout(t *testing.T) {
	r := newBlockingRunner()
	d := NewDispatcher(r, Config{JobTimeout: time.Hour}, nil)

	before := time.Now()
	require.NoError(t, d.Submit("J1"))
	<-r.started
	close(r.release)
	require.NoError(t, d.Shutdown(context.Background()))

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.WithinDuration(t, before.Add(time.Hour), r.deadline, time.Minute)
}

func TestConcurrencyIsBounded(t *testing.T) {
	r := newBlockingRunner()
	d := NewDispatcher(r, Config{MaxConcurrentJobs: 2}, nil)

	for _, id := range []string{"A", "B", "C", "D"} {
		require.NoError(t, d.Submit(id))
	}
	<-r.started
	<-r.started

	select {
	case id := <-r.started:
		t.Fatalf("job %s started beyond the limit", id)
	case <-time.After(50 * time.Millisecond):
	}

	close(r.release)
	require.NoError(t, d.Shutdown(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&r.peak))
}

func TestRestartUsesRunnerRestart(t *testing.T) {
	r := newBlockingRunner()
	d := NewDispatcher(r, Config{}, nil)

	require.NoError(t, d.Restart("J9"))
	<-r.started
	close(r.release)
	require.NoError(t, d.Shutdown(context.Background()))

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, []string{"J9"}, r.restarts)
}

func TestShutdownRefusesNewJobsAndTimesOut(t *testing.T) {
	r := newBlockingRunner()
	d := NewDispatcher(r, Config{ShutdownTimeout: 20 * time.Millisecond}, nil)

	require.NoError(t, d.Submit("J1"))
	<-r.started

	assert.Error(t, d.Shutdown(context.Background()))
	assert.ErrorIs(t, d.Submit("J2"), ErrShuttingDown)
	assert.NoError(t, d.Shutdown(context.Background()), "second shutdown is a no-op")

	close(r.release)
}
