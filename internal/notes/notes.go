package notes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nypoclary/lectura-backend/internal/llm"
	"github.com/nypoclary/lectura-backend/internal/logger"
	"github.com/nypoclary/lectura-backend/internal/metrics"
	"github.com/nypoclary/lectura-backend/internal/retry"
	"github.com/nypoclary/lectura-backend/internal/types"
)

// ErrNoNotes means no segment produced a usable note.
var ErrNoNotes = errors.New("failed to generate study notes from all segments")

// DefaultLargeSegmentChars is the length above which the large tier is used.
const DefaultLargeSegmentChars = 40000

// Stage turns transcript segments into one study document.
type Stage struct {
	gen         llm.Generator
	retrier     *retry.Retrier
	metrics     *metrics.Metrics
	log         *logrus.Entry
	largeChars  int
	maxInFlight int
}

type StageConfig struct {
	LargeSegmentChars int
	// MaxConcurrency limits in-flight provider calls; zero means unlimited.
	MaxConcurrency int
}

func NewStage(gen llm.Generator, r *retry.Retrier, m *metrics.Metrics, log *logger.Logger, cfg StageConfig) *Stage {
	if log == nil {
		log = logger.Discard()
	}
	if cfg.LargeSegmentChars <= 0 {
		cfg.LargeSegmentChars = DefaultLargeSegmentChars
	}
	return &Stage{
		gen:         gen,
		retrier:     r,
		metrics:     m,
		log:         log.WithComponent("notes"),
		largeChars:  cfg.LargeSegmentChars,
		maxInFlight: cfg.MaxConcurrency,
	}
}

// TierFor picks the model tier from the segment length in characters.
func (s *Stage) TierFor(text string) llm.Tier {
	if utf8.RuneCountInString(text) > s.largeChars {
		return llm.TierLarge
	}
	return llm.TierDefault
}

// Synthesize generates a note per segment concurrently and joins them in
// segment order. Failed or blank transcript segments pass through without a
// provider call.
func (s *Stage) Synthesize(ctx context.Context, segments []types.TranscriptSegment, style types.LearningStyle) (string, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveStage("notes", time.Since(start)) }()

	results := make([]types.NoteSegment, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	if s.maxInFlight > 0 {
		g.SetLimit(s.maxInFlight)
	}
	for i, seg := range segments {
		if seg.Failed || strings.TrimSpace(seg.Text) == "" {
			s.log.WithField("segment", seg.Index).Warn("skipping note generation for failed or empty segment")
			s.metrics.Segment("notes", metrics.ResultSkipped)
			results[i] = types.NoteSegment{Index: seg.Index, Text: seg.Text, Failed: seg.Failed}
			continue
		}
		g.Go(func() error {
			results[i] = s.generate(gctx, seg, style, len(segments))
			return nil
		})
	}
	// Per-segment failures are captured in results, so Wait only returns nil.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return Assemble(results)
}

func (s *Stage) generate(ctx context.Context, seg types.TranscriptSegment, style types.LearningStyle, n int) types.NoteSegment {
	tier := s.TierFor(seg.Text)
	log := s.log.WithFields(logrus.Fields{
		"segment": fmt.Sprintf("%d/%d", seg.Index+1, n),
		"tier":    tier,
	})
	req := BuildPrompt(seg.Text, style)

	t0 := time.Now()
	text, err := retry.Do(ctx, s.retrier, "generate_notes", func(ctx context.Context) (string, error) {
		return s.gen.Generate(ctx, req, tier)
	})
	if err != nil {
		log.WithError(err).Error("note generation failed")
		s.metrics.Segment("notes", metrics.ResultFailed)
		return types.NoteSegment{
			Index:  seg.Index,
			Text:   fmt.Sprintf("[Failed to generate notes for this section: %v]", err),
			Failed: true,
		}
	}

	log.WithField("duration_ms", time.Since(t0).Milliseconds()).Info("note segment generated")
	s.metrics.Segment("notes", metrics.ResultOK)
	return types.NoteSegment{Index: seg.Index, Text: text}
}

// Assemble sorts note segments by index and joins the non-blank ones with a
// blank line. It fails with ErrNoNotes when nothing but failure markers remain.
func Assemble(results []types.NoteSegment) (string, error) {
	sorted := make([]types.NoteSegment, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Index < sorted[b].Index })

	parts := make([]string, 0, len(sorted))
	usable := false
	for _, r := range sorted {
		t := strings.TrimSpace(r.Text)
		if t == "" {
			continue
		}
		parts = append(parts, t)
		if !r.Failed {
			usable = true
		}
	}
	if !usable {
		return "", ErrNoNotes
	}
	return strings.Join(parts, "\n\n"), nil
}
