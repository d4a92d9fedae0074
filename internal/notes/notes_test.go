package notes

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nypoclary/lectura-backend/internal/llm"
	"github.com/nypoclary/lectura-backend/internal/retry"
	"github.com/nypoclary/lectura-backend/internal/types"
)

type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	tiers    map[int]llm.Tier
	fail     func(req llm.Request) error
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.Request, tier llm.Tier) (string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)

	f.mu.Lock()
	f.calls++
	if f.tiers == nil {
		f.tiers = map[int]llm.Tier{}
	}
	f.tiers[len([]rune(transcriptOf(req)))] = tier
	f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(req); err != nil {
			return "", err
		}
	}
	return "notes(" + transcriptOf(req) + ")", nil
}

func transcriptOf(req llm.Request) string {
	const marker = "Transcript:\n"
	i := strings.LastIndex(req.User, marker)
	return strings.TrimSuffix(req.User[i+len(marker):], "\n")
}

func newTestStage(gen llm.Generator, cfg StageConfig) *Stage {
	r := retry.New(retry.Policy{MaxAttempts: 1})
	return NewStage(gen, r, nil, nil, cfg)
}

func segments(texts ...string) []types.TranscriptSegment {
	out := make([]types.TranscriptSegment, len(texts))
	for i, t := range texts {
		out[i] = types.TranscriptSegment{Index: i, Text: t}
	}
	return out
}

func TestSynthesizePreservesOrder(t *testing.T) {
	gen := &fakeGenerator{}
	s := newTestStage(gen, StageConfig{})

	texts := make([]string, 12)
	want := make([]string, 12)
	for i := range texts {
		texts[i] = fmt.Sprintf("part %02d", i)
		want[i] = "notes(" + texts[i] + ")"
	}

	doc, err := s.Synthesize(context.Background(), segments(texts...), types.StyleVisual)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(want, "\n\n"), doc)
	assert.Equal(t, 12, gen.calls)
}

func TestSynthesizeTierBoundary(t *testing.T) {
	gen := &fakeGenerator{}
	s := newTestStage(gen, StageConfig{})

	below := strings.Repeat("é", 39999)
	above := strings.Repeat("a", 40001)
	exact := strings.Repeat("b", 40000)

	_, err := s.Synthesize(context.Background(), segments(below, above, exact), types.StyleReadWrite)
	require.NoError(t, err)

	assert.Equal(t, llm.TierDefault, gen.tiers[39999])
	assert.Equal(t, llm.TierLarge, gen.tiers[40001])
	assert.Equal(t, llm.TierDefault, gen.tiers[40000])
}

func TestSynthesizePassesFailedSegmentsThrough(t *testing.T) {
	gen := &fakeGenerator{}
	s := newTestStage(gen, StageConfig{})

	segs := segments("alpha", "", "gamma")
	segs[1] = types.TranscriptSegment{Index: 1, Text: "[Transcription failed for segment 2/3: timeout]", Failed: true}

	doc, err := s.Synthesize(context.Background(), segs, types.StyleKinesthetic)
	require.NoError(t, err)
	assert.Equal(t, "notes(alpha)\n\n[Transcription failed for segment 2/3: timeout]\n\nnotes(gamma)", doc)
	assert.Equal(t, 2, gen.calls)
}

func TestSynthesizeMarksFailedSegments(t *testing.T) {
	gen := &fakeGenerator{fail: func(req llm.Request) error {
		if transcriptOf(req) == "beta" {
			return errors.New("model overloaded")
		}
		return nil
	}}
	s := newTestStage(gen, StageConfig{})

	doc, err := s.Synthesize(context.Background(), segments("alpha", "beta"), types.StyleAuditory)
	require.NoError(t, err)
	assert.Equal(t, "notes(alpha)\n\n[Failed to generate notes for this section: model overloaded]", doc)
}

func TestSynthesizeFailsWhenEverySegmentFails(t *testing.T) {
	gen := &fakeGenerator{fail: func(llm.Request) error { return errors.New("down") }}
	s := newTestStage(gen, StageConfig{})

	_, err := s.Synthesize(context.Background(), segments("a", "b", "c"), types.StyleVisual)
	assert.ErrorIs(t, err, ErrNoNotes)
}

func TestSynthesizeFailsOnEmptyInput(t *testing.T) {
	s := newTestStage(&fakeGenerator{}, StageConfig{})
	_, err := s.Synthesize(context.Background(), nil, types.StyleVisual)
	assert.ErrorIs(t, err, ErrNoNotes)
}

func TestSynthesizeRespectsConcurrencyLimit(t *testing.T) {
	gen := &fakeGenerator{}
	s := newTestStage(gen, StageConfig{MaxConcurrency: 2})

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprint(i)
	}
	_, err := s.Synthesize(context.Background(), segments(texts...), types.StyleVisual)
	require.NoError(t, err)
	assert.LessOrEqual(t, gen.peak.Load(), int32(2))
}

func TestAssembleSortsByIndex(t *testing.T) {
	doc, err := Assemble([]types.NoteSegment{
		{Index: 2, Text: "c"},
		{Index: 0, Text: "a"},
		{Index: 1, Text: "  "},
	})
	require.NoError(t, err)
	assert.Equal(t, "a\n\nc", doc)
}

func TestBuildPromptIncludesStyleAndTranscript(t *testing.T) {
	req := BuildPrompt("the lecture", types.StyleAuditory)
	assert.Equal(t, systemPrompt, req.System)
	assert.Contains(t, req.User, "auditory learner")
	assert.Contains(t, req.User, "tailored for the Auditory Learner")
	assert.True(t, strings.HasSuffix(req.User, "Transcript:\nthe lecture\n"))

	unknown := BuildPrompt("x", types.LearningStyle("interpretive"))
	assert.Contains(t, unknown.User, "reading/writing learner")
}
