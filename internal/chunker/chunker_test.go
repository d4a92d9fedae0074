package chunker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nypoclary/lectura-backend/internal/retry"
)

func TestSplitCoversPayloadExactlyOnce(t *testing.T) {
	for _, tc := range []struct {
		size, limit int64
		want        int
	}{
		{size: 10, limit: 10, want: 1},
		{size: 11, limit: 10, want: 2},
		{size: 100, limit: 7, want: 15},
		{size: 0, limit: 5, want: 1},
		{size: 19*1024*1024 + 1, limit: 19 * 1024 * 1024, want: 2},
	} {
		ranges := Split(tc.size, tc.limit)
		require.Len(t, ranges, tc.want, "size=%d limit=%d", tc.size, tc.limit)

		var next int64
		for _, r := range ranges {
			assert.Equal(t, next, r.Start)
			assert.LessOrEqual(t, r.Len(), tc.limit)
			next = r.End
		}
		assert.Equal(t, tc.size, next)
	}
}

func TestWindowsCoverDurationExactlyOnce(t *testing.T) {
	for _, tc := range []struct {
		total float64
		count int
	}{
		{total: 3600, count: 3},
		{total: 100.5, count: 4},
		{total: 5, count: 10},
		{total: 7, count: 1},
	} {
		ws := Windows(tc.total, tc.count)
		require.NotEmpty(t, ws)
		assert.LessOrEqual(t, len(ws), tc.count)

		next := 0.0
		for _, w := range ws {
			assert.InDelta(t, next, w.Start, 1e-9)
			assert.Greater(t, w.Length, 0.0)
			assert.Less(t, w.Start, tc.total)
			next = w.Start + w.Length
		}
		assert.InDelta(t, tc.total, next, 1e-9)
	}
}

func TestWindowsDropsWindowsPastTheEnd(t *testing.T) {
	// ceil(5/4) = 2s windows: 0,2,4 and the fourth would start at 6.
	ws := Windows(5, 4)
	require.Len(t, ws, 3)
	assert.Equal(t, Window{Start: 4, Length: 1}, ws[2])
}

// fakeRunner answers ffprobe with a fixed duration and writes pieces for ffmpeg.
type fakeRunner struct {
	mu         sync.Mutex
	duration   string
	probeErr   error
	pieceBytes int
	calls      []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (commandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)

	if name == "ffprobe" {
		if f.probeErr != nil {
			return commandResult{ExitCode: 1, Stderr: "bad file"}, f.probeErr
		}
		return commandResult{Stdout: f.duration + "\n"}, nil
	}
	dst := args[len(args)-1]
	return commandResult{}, os.WriteFile(dst, bytes.Repeat([]byte{1}, f.pieceBytes), 0o644)
}

func writeSource(t *testing.T, size int) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "lecture.mp3")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(src, data, 0o644))
	return src
}

func newTestChunker(mode string, limit int64, runner commandRunner) *Chunker {
	ff := NewFFmpeg("ffmpeg", "ffprobe")
	ff.runner = runner
	return New(limit, mode, ff, retry.New(retry.Policy{MaxAttempts: 1}), nil)
}

func TestChunkSmallFileIsReturnedAsIs(t *testing.T) {
	src := writeSource(t, 100)
	runner := &fakeRunner{}
	c := newTestChunker(ModeDuration, 100, runner)

	pieces, err := c.Chunk(context.Background(), src, t.TempDir())
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, src, pieces[0].Path)
	assert.Empty(t, runner.calls)
}

func TestChunkByDurationCutsWindows(t *testing.T) {
	src := writeSource(t, 250)
	runner := &fakeRunner{duration: "90.0", pieceBytes: 80}
	c := newTestChunker(ModeDuration, 100, runner)
	dir := t.TempDir()

	pieces, err := c.Chunk(context.Background(), src, dir)
	require.NoError(t, err)
	require.Len(t, pieces, 3)
	for i, p := range pieces {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, dir, filepath.Dir(p.Path))
		assert.Equal(t, ".mp3", filepath.Ext(p.Path))
	}
	assert.Equal(t, []string{"ffprobe", "ffmpeg", "ffmpeg", "ffmpeg"}, runner.calls)
}

func TestChunkFallsBackToBytesWhenProbeFails(t *testing.T) {
	src := writeSource(t, 250)
	runner := &fakeRunner{probeErr: errors.New("exit status 1")}
	c := newTestChunker(ModeDuration, 100, runner)

	pieces, err := c.Chunk(context.Background(), src, t.TempDir())
	require.NoError(t, err)
	require.Len(t, pieces, 3)

	orig, err := os.ReadFile(src)
	require.NoError(t, err)
	var joined []byte
	for _, p := range pieces {
		b, err := os.ReadFile(p.Path)
		require.NoError(t, err)
		joined = append(joined, b...)
	}
	assert.Equal(t, orig, joined)
}

func TestChunkFallsBackWhenWindowOverflowsLimit(t *testing.T) {
	src := writeSource(t, 250)
	runner := &fakeRunner{duration: "90", pieceBytes: 150}
	c := newTestChunker(ModeDuration, 100, runner)
	dir := t.TempDir()

	pieces, err := c.Chunk(context.Background(), src, dir)
	require.NoError(t, err)
	require.Len(t, pieces, 3)
	for _, p := range pieces {
		assert.LessOrEqual(t, p.Size, int64(100))
	}
	assert.Equal(t, []int64{100, 100, 50}, []int64{pieces[0].Size, pieces[1].Size, pieces[2].Size})
}

func TestChunkBytesModeSkipsFFmpeg(t *testing.T) {
	src := writeSource(t, 201)
	runner := &fakeRunner{}
	c := newTestChunker(ModeBytes, 100, runner)

	pieces, err := c.Chunk(context.Background(), src, t.TempDir())
	require.NoError(t, err)
	assert.Len(t, pieces, 3)
	assert.Empty(t, runner.calls)
}

func TestProbeParsesDuration(t *testing.T) {
	ff := NewFFmpeg("", "")
	ff.runner = &fakeRunner{duration: "12.25"}
	d, err := ff.Probe(context.Background(), "x.mp3")
	require.NoError(t, err)
	assert.InDelta(t, 12.25, d, 1e-9)

	ff.runner = &fakeRunner{duration: "N/A"}
	_, err = ff.Probe(context.Background(), "x.mp3")
	assert.Error(t, err)
}
