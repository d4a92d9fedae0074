// Package app assembles the note pipeline from configuration: stores,
// provider clients, stages, the processor and the background dispatcher.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nypoclary/lectura-backend/internal/chunker"
	"github.com/nypoclary/lectura-backend/internal/config"
	"github.com/nypoclary/lectura-backend/internal/llm"
	"github.com/nypoclary/lectura-backend/internal/logger"
	"github.com/nypoclary/lectura-backend/internal/metrics"
	"github.com/nypoclary/lectura-backend/internal/narration"
	"github.com/nypoclary/lectura-backend/internal/notes"
	"github.com/nypoclary/lectura-backend/internal/pipeline"
	"github.com/nypoclary/lectura-backend/internal/processor"
	"github.com/nypoclary/lectura-backend/internal/provider"
	"github.com/nypoclary/lectura-backend/internal/records"
	"github.com/nypoclary/lectura-backend/internal/retry"
	"github.com/nypoclary/lectura-backend/internal/storage"
	"github.com/nypoclary/lectura-backend/internal/transcription"
)

type App struct {
	Config  config.Config
	Log     *logger.Logger
	Metrics *metrics.Metrics

	Jobs  records.JobStore
	Users records.UserStore
	Blobs storage.BlobStore

	Processor  *processor.Processor
	Dispatcher *pipeline.Dispatcher

	closers []func() error
}

func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.New()
	}
	a := &App{Config: cfg, Log: log, Metrics: metrics.New()}

	if err := a.openRecords(ctx); err != nil {
		return nil, err
	}
	if err := a.openBlobs(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	r := a.newRetrier()
	tp, gen, synth := a.providers()

	ff := chunker.NewFFmpeg(cfg.Transcription.FFmpegPath, cfg.Transcription.FFprobePath)
	ch := chunker.New(cfg.Transcription.MaxChunkBytes, cfg.Transcription.ChunkMode, ff, r, log)

	a.Processor = processor.New(processor.Deps{
		Jobs:  a.Jobs,
		Users: a.Users,
		Blobs: a.Blobs,
		Transcriber: transcription.NewStage(tp, ch, r, a.Metrics, log, transcription.StageConfig{
			TempDir: cfg.TempDir,
			Pause:   cfg.Transcription.ChunkPause,
		}),
		Notes: notes.NewStage(gen, r, a.Metrics, log, notes.StageConfig{
			LargeSegmentChars: cfg.Notes.LargeSegmentChars,
			MaxConcurrency:    cfg.Notes.MaxConcurrency,
		}),
		Narrator: narration.NewStage(synth, cfg.Narration.Voice, a.Metrics, log),
	}, a.Metrics, log)

	a.Dispatcher = pipeline.NewDispatcher(a.Processor, pipeline.Config{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		JobTimeout:        cfg.JobTimeout,
		ShutdownTimeout:   cfg.ShutdownTimeout,
	}, log)

	log.WithFields(logrus.Fields{
		"records":        cfg.Records.Backend,
		"storage":        cfg.Storage.Backend,
		"mock_providers": cfg.MockProviders,
		"chunk_mode":     cfg.Transcription.ChunkMode,
	}).Info("pipeline assembled")
	return a, nil
}

func (a *App) openRecords(ctx context.Context) error {
	rc := a.Config.Records
	if rc.Backend != "redis" {
		mem := records.NewMemory()
		a.Jobs, a.Users = mem.Jobs(), mem.Users()
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rc.RedisAddr,
		Password: rc.RedisPassword,
		DB:       rc.RedisDB,
	})
	store := records.NewRedis(client, rc.RedisPrefix)
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("connect redis %s: %w", rc.RedisAddr, err)
	}
	a.closers = append(a.closers, client.Close)
	a.Jobs, a.Users = store.Jobs(), store.Users()
	return nil
}

func (a *App) openBlobs(ctx context.Context) error {
	sc := a.Config.Storage
	if sc.Backend == "r2" {
		s3, err := storage.NewR2(ctx, storage.R2Config{
			AccountID:       sc.R2AccountID,
			Endpoint:        sc.R2Endpoint,
			AccessKeyID:     sc.R2AccessKeyID,
			SecretAccessKey: sc.R2SecretKey,
			Bucket:          sc.R2Bucket,
		})
		if err != nil {
			return err
		}
		a.Blobs = s3
		return nil
	}
	local, err := storage.NewLocal(sc.Dir)
	if err != nil {
		return err
	}
	a.Blobs = local
	return nil
}

// newRetrier logs and counts every scheduled retry.
func (a *App) newRetrier() *retry.Retrier {
	log := a.Log.WithComponent("retry")
	policy := retry.Policy{
		MaxAttempts: a.Config.Retry.MaxAttempts,
		BaseDelay:   a.Config.Retry.BaseDelay,
		MaxDelay:    a.Config.Retry.MaxDelay,
	}
	return retry.New(policy, retry.WithNotify(func(op string, attempt int, err error, wait time.Duration) {
		a.Metrics.Retry(op)
		log.WithError(err).WithFields(logrus.Fields{
			"operation": op,
			"attempt":   attempt,
			"wait_ms":   wait.Milliseconds(),
		}).Warn("provider call failed, retrying")
	}))
}

func (a *App) providers() (transcription.Provider, llm.Generator, narration.Synthesizer) {
	if a.Config.MockProviders {
		a.Log.Warn("USE_MOCK_PROVIDERS=true: external providers are replaced by canned responses")
		return transcription.Mock{}, llm.Mock{}, narration.Mock{}
	}
	tc, nc, vc := a.Config.Transcription, a.Config.Notes, a.Config.Narration
	if tc.APIKey == "" || nc.APIKey == "" {
		a.Log.Warn("GROQ_API_KEY or MISTRAL_API_KEY is empty; provider calls will be rejected")
	}

	tp := transcription.NewClient(tc.BaseURL, tc.APIKey, tc.Model, tc.Language,
		provider.WithRateLimit(tc.RatePerSecond))
	gen := llm.NewClient(nc.BaseURL, nc.APIKey, llm.Models{Default: nc.DefaultModel, Large: nc.LargeModel},
		nc.Temperature, nc.MaxTokens, provider.WithRateLimit(nc.RatePerSecond))
	synth := narration.NewClient(vc.BaseURL, vc.APIKey, vc.Model)
	return tp, gen, synth
}

// Close releases store connections. Call after the dispatcher is drained.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
