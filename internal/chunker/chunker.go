package chunker

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/nypoclary/lectura-backend/internal/logger"
	"github.com/nypoclary/lectura-backend/internal/retry"
)

// Range is a half-open byte range [Start, End).
type Range struct {
	Start int64
	End   int64
}

func (r Range) Len() int64 { return r.End - r.Start }

// Window is a time range in seconds.
type Window struct {
	Start  float64
	Length float64
}

// Piece is one chunk on disk, ready for upload.
type Piece struct {
	Index int
	Path  string
	Size  int64
}

const (
	ModeDuration = "duration"
	ModeBytes    = "bytes"
)

// Split cuts size bytes into contiguous ranges of at most limit bytes.
// A payload that already fits yields a single range.
func Split(size, limit int64) []Range {
	if size <= limit || limit <= 0 {
		return []Range{{Start: 0, End: size}}
	}
	out := make([]Range, 0, (size+limit-1)/limit)
	for start := int64(0); start < size; start += limit {
		end := start + limit
		if end > size {
			end = size
		}
		out = append(out, Range{Start: start, End: end})
	}
	return out
}

// Windows divides total seconds into count windows of ceil(total/count)
// seconds. Windows starting at or past total are dropped and the last one
// is trimmed so the union is exactly [0, total).
func Windows(total float64, count int) []Window {
	if count < 1 {
		count = 1
	}
	length := math.Ceil(total / float64(count))
	if length <= 0 {
		return []Window{{Start: 0, Length: total}}
	}
	out := make([]Window, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * length
		if start >= total {
			break
		}
		l := length
		if start+l > total {
			l = total - start
		}
		out = append(out, Window{Start: start, Length: l})
	}
	return out
}

// Chunker splits an audio file into provider-sized pieces.
type Chunker struct {
	maxBytes int64
	mode     string
	ffmpeg   *FFmpeg
	retrier  *retry.Retrier
	log      *logrus.Entry
}

func New(maxBytes int64, mode string, ff *FFmpeg, r *retry.Retrier, log *logger.Logger) *Chunker {
	if log == nil {
		log = logger.Discard()
	}
	if ff == nil {
		ff = NewFFmpeg("", "")
	}
	if r == nil {
		r = retry.New(retry.DefaultPolicy)
	}
	return &Chunker{
		maxBytes: maxBytes,
		mode:     mode,
		ffmpeg:   ff,
		retrier:  r,
		log:      log.WithComponent("chunker"),
	}
}

// Chunk writes the pieces of src into dir, which the caller owns and
// removes. A file within the limit is returned as-is without copying.
func (c *Chunker) Chunk(ctx context.Context, src, dir string) ([]Piece, error) {
	st, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	size := st.Size()
	if size <= c.maxBytes {
		return []Piece{{Index: 0, Path: src, Size: size}}, nil
	}

	if c.mode == ModeDuration {
		pieces, err := c.byDuration(ctx, src, dir, size)
		if err == nil {
			return pieces, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.WithError(err).Warn("duration chunking failed, falling back to byte ranges")
	}
	return c.byBytes(src, dir, size)
}

func (c *Chunker) byDuration(ctx context.Context, src, dir string, size int64) ([]Piece, error) {
	total, err := retry.Do(ctx, c.retrier, "probe_duration", func(ctx context.Context) (float64, error) {
		return c.ffmpeg.Probe(ctx, src)
	})
	if err != nil {
		return nil, err
	}

	count := int((size + c.maxBytes - 1) / c.maxBytes)
	windows := Windows(total, count)
	ext := filepath.Ext(src)

	pieces := make([]Piece, 0, len(windows))
	for i, w := range windows {
		dst := filepath.Join(dir, fmt.Sprintf("chunk_%03d%s", i, ext))
		if err := c.ffmpeg.Extract(ctx, src, dst, w); err != nil {
			removePieces(pieces)
			return nil, fmt.Errorf("extract window %d: %w", i, err)
		}
		st, err := os.Stat(dst)
		if err != nil {
			removePieces(pieces)
			return nil, fmt.Errorf("stat window %d: %w", i, err)
		}
		pieces = append(pieces, Piece{Index: i, Path: dst, Size: st.Size()})
		if st.Size() > c.maxBytes {
			removePieces(pieces)
			return nil, fmt.Errorf("window %d is %d bytes, over the %d limit", i, st.Size(), c.maxBytes)
		}
	}

	c.log.WithFields(logrus.Fields{
		"duration_s": total,
		"pieces":     len(pieces),
	}).Info("split audio by duration")
	return pieces, nil
}

func (c *Chunker) byBytes(src, dir string, size int64) ([]Piece, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ext := filepath.Ext(src)
	ranges := Split(size, c.maxBytes)
	pieces := make([]Piece, 0, len(ranges))
	for i, r := range ranges {
		dst := filepath.Join(dir, fmt.Sprintf("chunk_%03d%s", i, ext))
		if err := copyRange(f, dst, r); err != nil {
			removePieces(pieces)
			return nil, fmt.Errorf("write range %d: %w", i, err)
		}
		pieces = append(pieces, Piece{Index: i, Path: dst, Size: r.Len()})
	}

	c.log.WithField("pieces", len(pieces)).Info("split audio by byte range")
	return pieces, nil
}

func copyRange(src io.ReaderAt, dst string, r Range) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, io.NewSectionReader(src, r.Start, r.Len())); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func removePieces(pieces []Piece) {
	for _, p := range pieces {
		_ = os.Remove(p.Path)
	}
}
