package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nypoclary/lectura-backend/internal/provider"
)

// Tier selects the model class used for a request.
type Tier string

const (
	TierDefault Tier = "default"
	TierLarge   Tier = "large"
)

// ErrEmptyCompletion is returned when the provider answers without content.
var ErrEmptyCompletion = errors.New("llm returned no content")

type Request struct {
	System string
	User   string
}

// Generator produces text for a prompt on the given tier.
type Generator interface {
	Generate(ctx context.Context, req Request, tier Tier) (string, error)
}

type Models struct {
	Default string
	Large   string
}

// Client calls an OpenAI-compatible /chat/completions endpoint (Mistral).
type Client struct {
	api         *provider.Client
	models      Models
	temperature float64
	maxTokens   int
}

func NewClient(baseURL, apiKey string, models Models, temperature float64, maxTokens int, opts ...provider.Option) *Client {
	if models.Large == "" {
		models.Large = models.Default
	}
	return &Client{
		api:         provider.NewClient("llm", baseURL, apiKey, opts...),
		models:      models,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

func (c *Client) Model(tier Tier) string {
	if tier == TierLarge {
		return c.models.Large
	}
	return c.models.Default
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

func (c *Client) Generate(ctx context.Context, req Request, tier Tier) (string, error) {
	msgs := make([]message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, message{Role: "user", Content: req.User})

	raw, err := c.api.PostJSONRaw(ctx, "/chat/completions", chatRequest{
		Model:       c.Model(tier),
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", err
	}

	content := contentFromChoices(raw)
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w (model %s)", ErrEmptyCompletion, c.Model(tier))
	}
	return strings.TrimSpace(content), nil
}

// contentFromChoices reads choices[0].message.content. Content may be a
// plain string or a list of typed parts, depending on the provider.
func contentFromChoices(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}

	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return ""
	}
	c0, _ := choices[0].(map[string]any)
	if c0 == nil {
		return ""
	}
	msg, _ := c0["message"].(map[string]any)
	if msg == nil {
		return ""
	}

	switch content := msg["content"].(type) {
	case string:
		return content
	case []any:
		var b strings.Builder
		for _, part := range content {
			p, _ := part.(map[string]any)
			if p == nil {
				continue
			}
			if text, ok := p["text"].(string); ok {
				b.WriteString(text)
			}
		}
		return b.String()
	default:
		return ""
	}
}

// Mock echoes a canned note; enabled with USE_MOCK_PROVIDERS=true.
type Mock struct{}

func (Mock) Generate(_ context.Context, req Request, tier Tier) (string, error) {
	return fmt.Sprintf("# Lecture Notes (%s tier)\n\n## Key Points\n- %d characters of transcript summarised\n",
		tier, len([]rune(req.User))), nil
}
