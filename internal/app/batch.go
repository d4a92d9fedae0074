package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nypoclary/lectura-backend/internal/processor"
	"github.com/nypoclary/lectura-backend/internal/records"
	"github.com/nypoclary/lectura-backend/internal/types"
)

// RunBatch registers and processes every manifest row, at most
// MaxConcurrentJobs at a time. Results come back in manifest order.
//
// An AudioPath naming a readable local file is uploaded under uploads/;
// anything else is taken as the key of an existing blob.
func (a *App) RunBatch(ctx context.Context, rows []types.ManifestRow) []types.BatchResult {
	results := make([]types.BatchResult, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	if a.Config.MaxConcurrentJobs > 0 {
		g.SetLimit(a.Config.MaxConcurrentJobs)
	}
	for i, row := range rows {
		g.Go(func() error {
			results[i] = a.runRow(gctx, row)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (a *App) runRow(ctx context.Context, row types.ManifestRow) types.BatchResult {
	start := time.Now()
	res := types.BatchResult{
		Row:           row.Row,
		JobID:         row.JobID,
		DisplayName:   row.DisplayName,
		OwnerID:       row.OwnerID,
		LearningStyle: row.LearningStyle,
	}
	if res.JobID == "" {
		res.JobID = uuid.New().String()
	}
	log := a.Log.WithComponent("batch").WithField("job_id", res.JobID).WithField("row", row.Row)

	status, err := a.registerAndRun(ctx, res.JobID, row)
	res.Status = status
	if err != nil {
		res.Status = types.StatusFailed
		res.Error = err.Error()
		log.WithError(err).Error("batch row failed before processing")
	}

	if job, err := a.Jobs.Get(context.WithoutCancel(ctx), res.JobID); err == nil {
		res.ResultArtifactRef = job.ResultArtifactRef
		res.NarrationArtifactRef = job.NarrationArtifactRef
	}
	if res.Status == types.StatusFailed && res.Error == "" {
		res.Error = "processing failed, see logs"
	}
	res.DurationMs = time.Since(start).Milliseconds()
	return res
}

func (a *App) registerAndRun(ctx context.Context, jobID string, row types.ManifestRow) (types.JobStatus, error) {
	key, err := a.stageAudio(ctx, jobID, row.AudioPath)
	if err != nil {
		return types.StatusFailed, err
	}

	if row.LearningStyle != "" {
		if err := a.Users.Put(ctx, types.User{ID: row.OwnerID, LearningStyle: row.LearningStyle}); err != nil {
			return types.StatusFailed, fmt.Errorf("save owner preference: %w", err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, a.Config.JobTimeout)
	defer cancel()

	err = a.Jobs.Create(ctx, types.Job{
		ID:                jobID,
		OwnerID:           row.OwnerID,
		DisplayName:       row.DisplayName,
		SourceArtifactRef: key,
		Status:            types.StatusPending,
		CreatedAt:         time.Now(),
	})
	switch {
	case errors.Is(err, records.ErrExists):
		return a.Processor.Restart(runCtx, jobID), nil
	case err != nil:
		return types.StatusFailed, fmt.Errorf("create job: %w", err)
	}
	return a.Processor.Run(runCtx, jobID), nil
}

func (a *App) stageAudio(ctx context.Context, jobID, audioPath string) (string, error) {
	data, err := os.ReadFile(audioPath)
	if errors.Is(err, os.ErrNotExist) {
		return audioPath, nil
	}
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	base := filepath.Base(audioPath)
	ext := filepath.Ext(base)
	key := fmt.Sprintf("uploads/%s_%s%s", jobID, processor.SanitizeName(strings.TrimSuffix(base, ext)), ext)
	if err := a.Blobs.Put(ctx, key, data, "application/octet-stream"); err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	return key, nil
}
