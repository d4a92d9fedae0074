package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nypoclary/lectura-backend/internal/chunker"
	"github.com/nypoclary/lectura-backend/internal/logger"
	"github.com/nypoclary/lectura-backend/internal/metrics"
	"github.com/nypoclary/lectura-backend/internal/retry"
	"github.com/nypoclary/lectura-backend/internal/types"
)

// ErrEmptyTranscript means no chunk produced usable text.
var ErrEmptyTranscript = errors.New("transcription produced no text")

// Stage chunks an audio payload and transcribes the chunks in order.
type Stage struct {
	provider Provider
	chunker  *chunker.Chunker
	retrier  *retry.Retrier
	metrics  *metrics.Metrics
	log      *logrus.Entry

	tempDir string
	pause   time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

type StageConfig struct {
	TempDir string
	// Pause is waited between consecutive chunk calls, successful or not.
	Pause time.Duration
}

func NewStage(p Provider, c *chunker.Chunker, r *retry.Retrier, m *metrics.Metrics, log *logger.Logger, cfg StageConfig) *Stage {
	if log == nil {
		log = logger.Discard()
	}
	return &Stage{
		provider: p,
		chunker:  c,
		retrier:  r,
		metrics:  m,
		log:      log.WithComponent("transcription"),
		tempDir:  cfg.TempDir,
		pause:    cfg.Pause,
		sleep:    sleepCtx,
	}
}

// Transcribe returns one segment per chunk, in chunk order. A chunk that
// fails after retries becomes a Failed segment carrying the reason; the
// stage only fails when nothing usable came back.
func (s *Stage) Transcribe(ctx context.Context, audio []byte, filename string) ([]types.TranscriptSegment, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveStage("transcription", time.Since(start)) }()

	dir, err := os.MkdirTemp(s.tempDir, "transcribe-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "source"+audioExt(filename))
	if err := os.WriteFile(src, audio, 0o600); err != nil {
		return nil, fmt.Errorf("write source audio: %w", err)
	}

	pieces, err := s.chunker.Chunk(ctx, src, dir)
	if err != nil {
		return nil, fmt.Errorf("chunk audio: %w", err)
	}
	n := len(pieces)
	s.log.WithFields(logrus.Fields{"chunks": n, "bytes": len(audio)}).Info("transcribing audio")

	segments := make([]types.TranscriptSegment, 0, n)
	for i, p := range pieces {
		if i > 0 {
			if err := s.sleep(ctx, s.pause); err != nil {
				return nil, err
			}
		}

		seg, err := s.transcribePiece(ctx, p, n)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}

	if !hasText(segments) {
		return segments, ErrEmptyTranscript
	}
	return segments, nil
}

func (s *Stage) transcribePiece(ctx context.Context, p chunker.Piece, n int) (types.TranscriptSegment, error) {
	log := s.log.WithField("segment", fmt.Sprintf("%d/%d", p.Index+1, n))

	data, err := os.ReadFile(p.Path)
	if err != nil {
		return types.TranscriptSegment{}, fmt.Errorf("read chunk %d: %w", p.Index, err)
	}

	t0 := time.Now()
	text, err := retry.Do(ctx, s.retrier, "transcribe", func(ctx context.Context) (string, error) {
		return s.provider.Transcribe(ctx, data, filepath.Base(p.Path))
	})
	if err != nil {
		if ctx.Err() != nil {
			return types.TranscriptSegment{}, ctx.Err()
		}
		log.WithError(err).Warn("chunk transcription failed, continuing")
		s.metrics.Segment("transcription", metrics.ResultFailed)
		return types.TranscriptSegment{
			Index:  p.Index,
			Text:   fmt.Sprintf("[Transcription failed for segment %d/%d: %v]", p.Index+1, n, err),
			Failed: true,
		}, nil
	}

	log.WithField("duration_ms", time.Since(t0).Milliseconds()).Debug("chunk transcribed")
	s.metrics.Segment("transcription", metrics.ResultOK)
	return types.TranscriptSegment{Index: p.Index, Text: strings.TrimSpace(text)}, nil
}

func hasText(segments []types.TranscriptSegment) bool {
	for _, seg := range segments {
		if !seg.Failed && strings.TrimSpace(seg.Text) != "" {
			return true
		}
	}
	return false
}

func audioExt(name string) string {
	if ext := filepath.Ext(name); ext != "" {
		return strings.ToLower(ext)
	}
	return ".mp3"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
