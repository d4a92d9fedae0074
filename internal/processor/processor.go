package processor

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nypoclary/lectura-backend/internal/logger"
	"github.com/nypoclary/lectura-backend/internal/metrics"
	"github.com/nypoclary/lectura-backend/internal/records"
	"github.com/nypoclary/lectura-backend/internal/storage"
	"github.com/nypoclary/lectura-backend/internal/types"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrOwnerNotFound = errors.New("owner not found")
	ErrNotPending    = errors.New("job is not pending")
)

// Transcriber turns source audio into ordered transcript segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) ([]types.TranscriptSegment, error)
}

// NoteSynthesizer turns transcript segments into the final study document.
type NoteSynthesizer interface {
	Synthesize(ctx context.Context, segments []types.TranscriptSegment, style types.LearningStyle) (string, error)
}

// Narrator renders the document as speech; nil audio means no narration.
type Narrator interface {
	Narrate(ctx context.Context, doc string) []byte
}

// Deps are the collaborators of a Processor. Narrator may be nil.
type Deps struct {
	Jobs        records.JobStore
	Users       records.UserStore
	Blobs       storage.BlobStore
	Transcriber Transcriber
	Notes       NoteSynthesizer
	Narrator    Narrator
}

// Processor drives one job at a time through the note pipeline:
//
//	pending → transcribing → transcribed → converting → finalizing → completed
//
// Any stage error moves the job to failed. Callers guarantee that a job id
// is never run twice concurrently.
type Processor struct {
	deps    Deps
	metrics *metrics.Metrics
	log     *logrus.Entry

	now   func() time.Time
	newID func() string
}

func New(d Deps, m *metrics.Metrics, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Discard()
	}
	return &Processor{
		deps:    d,
		metrics: m,
		log:     log.WithComponent("processor"),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// run is the mutable state of one Run call.
type run struct {
	job    types.Job
	status types.JobStatus
	log    *logrus.Entry
}

// Run processes a pending job and returns the terminal status it persisted.
// It never returns an error: failures are logged and recorded as failed.
func (p *Processor) Run(ctx context.Context, jobID string) types.JobStatus {
	start := time.Now()
	log := p.log.WithField("job_id", jobID)
	p.metrics.JobStarted()

	status := p.run(ctx, jobID, log)

	p.metrics.JobFinished(string(status))
	log.WithFields(logrus.Fields{
		"status":      status,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("job finished")
	return status
}

func (p *Processor) run(ctx context.Context, jobID string, log *logrus.Entry) types.JobStatus {
	job, err := p.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		if records.IsNotFound(err) {
			log.WithError(ErrJobNotFound).Error("cannot process job")
			return types.StatusFailed
		}
		log.WithError(err).Error("load job")
		// The record may exist; try to leave it terminal.
		if err := p.deps.Jobs.Update(context.WithoutCancel(ctx), jobID, types.StatusUpdate(types.StatusFailed)); err != nil && !records.IsNotFound(err) {
			log.WithError(err).Error("could not record failed status")
		}
		return types.StatusFailed
	}
	if job.Status != types.StatusPending {
		log.WithError(ErrNotPending).WithField("status", job.Status).Warn("refusing to process job")
		return job.Status
	}

	r := &run{job: job, status: job.Status, log: log.WithField("owner_id", job.OwnerID)}
	began := time.Now()
	r.log.Info("job started")

	user, err := p.deps.Users.Get(ctx, job.OwnerID)
	if err != nil {
		if records.IsNotFound(err) {
			err = ErrOwnerNotFound
		}
		return p.fail(ctx, r, began, fmt.Errorf("load owner: %w", err))
	}

	style := types.ParseLearningStyle(string(user.LearningStyle))
	if err := p.process(ctx, r, style); err != nil {
		return p.fail(ctx, r, began, err)
	}
	return r.status
}

func (p *Processor) process(ctx context.Context, r *run, style types.LearningStyle) error {
	if err := p.advance(ctx, r, types.StatusTranscribing); err != nil {
		return err
	}

	audio, err := p.deps.Blobs.Get(ctx, r.job.SourceArtifactRef)
	if err != nil {
		return fmt.Errorf("fetch source audio: %w", err)
	}

	segments, err := p.deps.Transcriber.Transcribe(ctx, audio, path.Base(r.job.SourceArtifactRef))
	if err != nil {
		return fmt.Errorf("transcription: %w", err)
	}

	if err := p.advance(ctx, r, types.StatusTranscribed); err != nil {
		return err
	}
	if err := p.advance(ctx, r, types.StatusConverting); err != nil {
		return err
	}

	doc, err := p.deps.Notes.Synthesize(ctx, segments, style)
	if err != nil {
		return fmt.Errorf("note synthesis: %w", err)
	}

	if err := p.advance(ctx, r, types.StatusFinalizing); err != nil {
		return err
	}

	refs, err := p.persist(ctx, r, doc, style)
	if err != nil {
		return err
	}
	// References land before the job is observable as completed.
	if err := p.deps.Jobs.Update(ctx, r.job.ID, refs); err != nil {
		return fmt.Errorf("record artifacts: %w", err)
	}
	return p.advance(context.WithoutCancel(ctx), r, types.StatusCompleted)
}

// persist uploads the note document and, for auditory learners, its
// narration. A narration that fails to render or upload is dropped.
func (p *Processor) persist(ctx context.Context, r *run, doc string, style types.LearningStyle) (types.JobUpdate, error) {
	keys := newArtifactKeys(p.newID(), r.job.DisplayName)

	if err := p.deps.Blobs.Put(ctx, keys.notes, []byte(doc), contentTypeNotes); err != nil {
		return types.JobUpdate{}, fmt.Errorf("upload notes: %w", err)
	}
	update := types.JobUpdate{ResultArtifactRef: &keys.notes}
	r.log.WithField("key", keys.notes).Info("notes uploaded")

	if style != types.StyleAuditory || p.deps.Narrator == nil {
		return update, nil
	}

	speech := p.deps.Narrator.Narrate(ctx, doc)
	if len(speech) == 0 {
		return update, nil
	}
	if err := p.deps.Blobs.Put(ctx, keys.narration, speech, contentTypeNarration); err != nil {
		r.log.WithError(err).Warn("narration upload failed, continuing without it")
		return update, nil
	}
	update.NarrationArtifactRef = &keys.narration
	r.log.WithField("key", keys.narration).Info("narration uploaded")
	return update, nil
}

// advance persists the next status after checking the transition is legal.
func (p *Processor) advance(ctx context.Context, r *run, to types.JobStatus) error {
	if !types.CanTransition(r.status, to) {
		return fmt.Errorf("illegal transition %s → %s", r.status, to)
	}
	if err := p.deps.Jobs.Update(ctx, r.job.ID, types.StatusUpdate(to)); err != nil {
		return fmt.Errorf("set status %s: %w", to, err)
	}
	r.log.WithField("status", to).Debug("status changed")
	r.status = to
	return nil
}

// fail records the failed terminal state even when ctx is already done.
func (p *Processor) fail(ctx context.Context, r *run, began time.Time, cause error) types.JobStatus {
	r.log.WithError(cause).WithFields(logrus.Fields{
		"stage":      r.status,
		"elapsed_ms": time.Since(began).Milliseconds(),
	}).Error("job failed")

	if r.status.IsTerminal() {
		return r.status
	}
	if err := p.deps.Jobs.Update(context.WithoutCancel(ctx), r.job.ID, types.StatusUpdate(types.StatusFailed)); err != nil {
		r.log.WithError(err).Error("could not record failed status")
	}
	r.status = types.StatusFailed
	return r.status
}

// Restart re-arms a finished job and processes it again. Artifacts of the
// previous run are removed on a best-effort basis.
func (p *Processor) Restart(ctx context.Context, jobID string) types.JobStatus {
	log := p.log.WithField("job_id", jobID)

	job, err := p.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		log.WithError(err).Error("cannot restart job")
		return types.StatusFailed
	}
	for _, key := range []string{job.ResultArtifactRef, job.NarrationArtifactRef} {
		if key == "" {
			continue
		}
		if err := p.deps.Blobs.Delete(ctx, key); err != nil {
			log.WithError(err).WithField("key", key).Warn("could not remove previous artifact")
		}
	}

	if err := p.deps.Jobs.Rearm(ctx, jobID, p.now()); err != nil {
		log.WithError(err).Error("re-arm job")
		return types.StatusFailed
	}
	log.Info("job re-armed")
	return p.Run(ctx, jobID)
}
