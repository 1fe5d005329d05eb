// Package gemini implements generation.Completer with Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/askdb/askdb/internal/generation"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// DefaultFallbackModels are tried in order when the primary model fails.
var DefaultFallbackModels = []string{"gemini-1.5-flash", "gemini-1.5-pro"}

// Config configures a Client.
type Config struct {
	APIKey         string
	Model          string
	FallbackModels []string
	Logger         *zap.Logger
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error)

// Client calls Gemini models, falling back through a model chain.
type Client struct {
	models   []string
	generate generateFunc
	logger   *zap.Logger
}

var _ generation.Completer = (*Client)(nil)

// New creates a Gemini client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set GOOGLE_API_KEY or GEMINI_API_KEY)")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	generate := func(ctx context.Context, model string, contents []*genai.Content, gc *genai.GenerateContentConfig) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, model, contents, gc)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}

	return newClient(cfg, generate), nil
}

func newClient(cfg Config, generate generateFunc) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	primary := cfg.Model
	if primary == "" {
		primary = DefaultModel
	}
	fallbacks := cfg.FallbackModels
	if fallbacks == nil {
		fallbacks = DefaultFallbackModels
	}

	models := []string{primary}
	for _, m := range fallbacks {
		if m != "" && m != primary {
			models = append(models, m)
		}
	}

	return &Client{models: models, generate: generate, logger: logger}
}

// Models returns the model chain in the order it is tried.
func (c *Client) Models() []string {
	return append([]string(nil), c.models...)
}

// Complete sends the prompt to each model in turn until one answers with
// non-empty text.
func (c *Client) Complete(ctx context.Context, p generation.Prompt) (generation.Completion, error) {
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	}
	if p.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}
	if p.JSON {
		gc.ResponseMIMEType = "application/json"
	}
	contents := genai.Text(p.User)

	var out generation.Completion
	var errs []error
	for _, model := range c.models {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		text, err := c.generate(ctx, model, contents, gc)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errors.New("empty response")
		}
		if err != nil {
			c.logger.Warn("model failed", zap.String("model", model), zap.Error(err))
			out.Fallbacks = append(out.Fallbacks, fmt.Sprintf("%s: %v", model, err))
			errs = append(errs, fmt.Errorf("%s: %w", model, err))
			continue
		}

		out.Text = text
		out.Model = model
		return out, nil
	}

	return out, fmt.Errorf("all Gemini models failed: %w", errors.Join(errs...))
}
