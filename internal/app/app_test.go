package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nypoclary/lectura-backend/internal/config"
	"github.com/nypoclary/lectura-backend/internal/logger"
	"github.com/nypoclary/lectura-backend/internal/types"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	var cfg config.Config
	cfg.TempDir = t.TempDir()
	cfg.JobTimeout = time.Minute
	cfg.MaxConcurrentJobs = 2
	cfg.MockProviders = true
	cfg.Retry = config.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	cfg.Transcription.MaxChunkBytes = 1024 * 1024
	cfg.Transcription.ChunkMode = "bytes"
	cfg.Notes.LargeSegmentChars = 40000
	cfg.Narration.Voice = "michael"
	cfg.Storage = config.StorageConfig{Backend: "local", Dir: t.TempDir()}
	cfg.Records = config.RecordsConfig{Backend: "memory"}
	return cfg
}

func TestRunBatchWithMockProviders(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), logger.Discard())
	require.NoError(t, err)
	defer a.Close()

	audio := filepath.Join(t.TempDir(), "week 1.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("fake mp3 bytes"), 0o600))

	results := a.RunBatch(ctx, []types.ManifestRow{
		{Row: 2, JobID: "J1", DisplayName: "Week 1", OwnerID: "U1", AudioPath: audio, LearningStyle: types.StyleAuditory},
		{Row: 3, JobID: "J2", DisplayName: "Week 2", OwnerID: "U2", AudioPath: "uploads/missing.mp3", LearningStyle: types.StyleVisual},
		{Row: 4, DisplayName: "Week 3", OwnerID: "nobody", AudioPath: audio},
	})
	require.Len(t, results, 3)

	first := results[0]
	assert.Equal(t, types.StatusCompleted, first.Status)
	assert.True(t, strings.HasPrefix(first.ResultArtifactRef, "explanationFile/"))
	assert.True(t, strings.HasSuffix(first.NarrationArtifactRef, "_Week_1.mp3"))

	doc, err := a.Blobs.Get(ctx, first.ResultArtifactRef)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "Lecture Notes")

	src, err := a.Blobs.Get(ctx, "uploads/J1_week_1.mp3")
	require.NoError(t, err)
	assert.Equal(t, "fake mp3 bytes", string(src))

	assert.Equal(t, types.StatusFailed, results[1].Status, "missing source audio")
	assert.NotEmpty(t, results[1].Error)

	assert.Equal(t, types.StatusFailed, results[2].Status, "owner has no preference record")
	assert.NotEmpty(t, results[2].JobID)
}

func TestRunBatchRestartsExistingJob(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), logger.Discard())
	require.NoError(t, err)
	defer a.Close()

	audio := filepath.Join(t.TempDir(), "lecture.wav")
	require.NoError(t, os.WriteFile(audio, []byte("wav"), 0o600))
	row := types.ManifestRow{Row: 2, JobID: "J1", DisplayName: "L", OwnerID: "U1", AudioPath: audio, LearningStyle: types.StyleReadWrite}

	first := a.RunBatch(ctx, []types.ManifestRow{row})[0]
	second := a.RunBatch(ctx, []types.ManifestRow{row})[0]

	assert.Equal(t, types.StatusCompleted, first.Status)
	assert.Equal(t, types.StatusCompleted, second.Status)
	assert.NotEqual(t, first.ResultArtifactRef, second.ResultArtifactRef)
	assert.Empty(t, second.NarrationArtifactRef)
}

func TestNewWithRedisRecords(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Records = config.RecordsConfig{Backend: "redis", RedisAddr: mr.Addr(), RedisPrefix: "it"}

	a, err := New(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)

	require.NoError(t, a.Users.Put(context.Background(), types.User{ID: "U1", LearningStyle: types.StyleVisual}))
	assert.True(t, mr.Exists("it:user:U1"))
	require.NoError(t, a.Close())
}

func TestNewFailsWhenRedisIsUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.Records = config.RecordsConfig{Backend: "redis", RedisAddr: addr}
	_, err := New(context.Background(), cfg, logger.Discard())
	assert.Error(t, err)
}
