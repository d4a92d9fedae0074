package narration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nypoclary/lectura-backend/internal/logger"
	"github.com/nypoclary/lectura-backend/internal/metrics"
	"github.com/nypoclary/lectura-backend/internal/provider"
)

// Synthesizer converts text to speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Client calls an OpenAI-compatible /audio/speech endpoint (Lemonfox).
type Client struct {
	api   *provider.Client
	model string
}

func NewClient(baseURL, apiKey, model string, opts ...provider.Option) *Client {
	return &Client{api: provider.NewClient("tts", baseURL, apiKey, opts...), model: model}
}

type speechRequest struct {
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	Model          string `json:"model"`
	ResponseFormat string `json:"response_format"`
}

func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	audio, err := c.api.PostJSONRaw(ctx, "/audio/speech", speechRequest{
		Input:          text,
		Voice:          voice,
		Model:          c.model,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, errors.New("tts: empty audio response")
	}
	return audio, nil
}

// Mock returns a few bytes of fake mp3; enabled with USE_MOCK_PROVIDERS=true.
type Mock struct{}

func (Mock) Synthesize(context.Context, string, string) ([]byte, error) {
	return []byte("ID3MOCK"), nil
}

// Stage renders the final document as speech for auditory learners.
type Stage struct {
	synth   Synthesizer
	voice   string
	metrics *metrics.Metrics
	log     *logrus.Entry
}

func NewStage(s Synthesizer, voice string, m *metrics.Metrics, log *logger.Logger) *Stage {
	if log == nil {
		log = logger.Discard()
	}
	if voice == "" {
		voice = "michael"
	}
	return &Stage{synth: s, voice: voice, metrics: m, log: log.WithComponent("narration")}
}

var markup = strings.NewReplacer("*", "", "#", "", "`", "")

// Clean strips markdown emphasis so it is not read aloud.
func Clean(doc string) string {
	return strings.TrimSpace(markup.Replace(doc))
}

// Narrate returns mp3 audio for doc, or nil when synthesis fails. Failures
// are logged and never returned: narration is optional.
func (s *Stage) Narrate(ctx context.Context, doc string) []byte {
	start := time.Now()
	defer func() { s.metrics.ObserveStage("narration", time.Since(start)) }()

	text := Clean(doc)
	if text == "" {
		s.log.Warn("nothing to narrate after cleaning")
		return nil
	}

	audio, err := s.synth.Synthesize(ctx, text, s.voice)
	if err != nil {
		s.log.WithError(err).Warn("speech synthesis failed, continuing without narration")
		s.metrics.Segment("narration", metrics.ResultFailed)
		return nil
	}
	s.log.WithFields(logrus.Fields{
		"bytes":       len(audio),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("narration generated")
	s.metrics.Segment("narration", metrics.ResultOK)
	return audio
}
