package transcription

import (
	"context"
	"strings"

	"github.com/nypoclary/lectura-backend/internal/provider"
)

// Provider turns one audio chunk into text.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Client talks to an OpenAI-compatible /audio/transcriptions endpoint (Groq).
type Client struct {
	api      *provider.Client
	model    string
	language string
}

func NewClient(baseURL, apiKey, model, language string, opts ...provider.Option) *Client {
	return &Client{
		api:      provider.NewClient("transcription", baseURL, apiKey, opts...),
		model:    model,
		language: language,
	}
}

func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	fields := map[string]string{
		"model":           c.model,
		"response_format": "text",
		"temperature":     "0",
	}
	if c.language != "" {
		fields["language"] = c.language
	}
	raw, err := c.api.PostMultipart(ctx, "/audio/transcriptions", fields, provider.FormFile{
		Field:    "file",
		Filename: filename,
		Data:     audio,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// Mock returns a canned transcript; enabled with USE_MOCK_PROVIDERS=true.
type Mock struct{}

func (Mock) Transcribe(_ context.Context, _ []byte, filename string) (string, error) {
	return "MOCK TRANSCRIPT for " + filename + ": today we cover supply and demand, " +
		"how prices settle where the two curves meet, and why shortages appear under price ceilings.", nil
}
