// Package pipeline runs note jobs in the background, one goroutine per job,
// each bounded by an overall timeout.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/nypoclary/lectura-backend/internal/logger"
	"github.com/nypoclary/lectura-backend/internal/types"
)

var (
	ErrJobAlreadyRunning = errors.New("job is already running")
	ErrShuttingDown      = errors.New("dispatcher is shutting down")
)

// Runner is implemented by processor.Processor.
type Runner interface {
	Run(ctx context.Context, jobID string) types.JobStatus
	Restart(ctx context.Context, jobID string) types.JobStatus
}

type Config struct {
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	ShutdownTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs: 4,
		JobTimeout:        60 * time.Minute,
		ShutdownTimeout:   30 * time.Second,
	}
}

// Dispatcher accepts job ids and processes them asynchronously. A job id is
// never run twice at the same time.
type Dispatcher struct {
	runner Runner
	cfg    Config
	log    *logrus.Entry

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu         sync.Mutex
	running    map[string]struct{}
	isShutdown bool
}

func NewDispatcher(r Runner, cfg Config, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}
	def := DefaultConfig()
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = def.MaxConcurrentJobs
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	return &Dispatcher{
		runner:  r,
		cfg:     cfg,
		log:     log.WithComponent("dispatcher"),
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
		running: map[string]struct{}{},
	}
}

// Submit schedules a fresh run of jobID.
func (d *Dispatcher) Submit(jobID string) error {
	return d.start(jobID, "run", d.runner.Run)
}

// Restart schedules a re-armed run of jobID.
func (d *Dispatcher) Restart(jobID string) error {
	return d.start(jobID, "restart", d.runner.Restart)
}

// Running reports whether jobID has an in-flight run.
func (d *Dispatcher) Running(jobID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.running[jobID]
	return ok
}

func (d *Dispatcher) start(jobID, kind string, fn func(context.Context, string) types.JobStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isShutdown {
		return ErrShuttingDown
	}
	if _, ok := d.running[jobID]; ok {
		return fmt.Errorf("%w: %s", ErrJobAlreadyRunning, jobID)
	}
	d.running[jobID] = struct{}{}
	d.wg.Add(1)

	go d.execute(jobID, kind, fn)
	return nil
}

func (d *Dispatcher) execute(jobID, kind string, fn func(context.Context, string) types.JobStatus) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.running, jobID)
		d.mu.Unlock()
	}()

	log := d.log.WithFields(logrus.Fields{"job_id": jobID, "kind": kind})

	// Runs queue here until a slot frees up; the timeout starts once running.
	if err := d.sem.Acquire(context.Background(), 1); err != nil {
		log.WithError(err).Error("acquire run slot")
		return
	}
	defer d.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	status := fn(ctx, jobID)
	log.WithFields(logrus.Fields{
		"status":      status,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("dispatch finished")
}

// Shutdown stops accepting jobs and waits for in-flight runs, bounded by
// ShutdownTimeout and ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.isShutdown {
		d.mu.Unlock()
		return nil
	}
	d.isShutdown = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, d.cfg.ShutdownTimeout)
	defer cancel()

	select {
	case <-done:
		return nil
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timed out after %s with jobs still running", d.cfg.ShutdownTimeout)
	}
}
