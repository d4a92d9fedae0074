package chunker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// commandResult is the captured output of one process run.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution so tests can fake ffmpeg.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		return res, err
	}
	return res, nil
}

// FFmpeg wraps the ffprobe and ffmpeg binaries.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	runner      commandRunner
}

func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, runner: execRunner{}}
}

// Probe returns the media duration in seconds.
func (f *FFmpeg) Probe(ctx context.Context, path string) (float64, error) {
	res, err := f.runner.Run(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe exit %d: %s: %w", res.ExitCode, strings.TrimSpace(res.Stderr), err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(res.Stdout), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", strings.TrimSpace(res.Stdout), err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("ffprobe duration %v is not positive", d)
	}
	return d, nil
}

// Extract stream-copies [w.Start, w.Start+w.Length) of src into dst.
func (f *FFmpeg) Extract(ctx context.Context, src, dst string, w Window) error {
	res, err := f.runner.Run(ctx, f.ffmpegPath,
		"-ss", formatSeconds(w.Start),
		"-i", src,
		"-t", formatSeconds(w.Length),
		"-c", "copy",
		"-y",
		"-loglevel", "error",
		dst,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg exit %d: %s: %w", res.ExitCode, strings.TrimSpace(res.Stderr), err)
	}
	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
