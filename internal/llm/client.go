package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/skyroast/skyroast/internal/retry"
	"github.com/skyroast/skyroast/pkg/models"
)

const defaultModel = "gpt-5-mini"

// Config for the comment-generation client.
type Config struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Client generates reaction comments for extracted post content through an
// OpenAI-compatible chat-completion API.
type Client struct {
	model     llms.Model
	modelName string
	retryCfg  retry.Config
}

// New creates a client from configuration.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(modelName),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	log.Debug().Str("model", modelName).Msg("LLM client initialized")
	return &Client{model: model, modelName: modelName, retryCfg: retry.LLMConfig()}, nil
}

// NewWithModel wraps an existing model. Used by tests and anywhere a custom
// provider is already configured.
func NewWithModel(model llms.Model) *Client {
	return &Client{model: model, modelName: "custom", retryCfg: retry.LLMConfig()}
}

// StreamReply requests the completion in incremental mode, invoking onDelta
// for every non-empty chunk in arrival order, and returns the accumulated
// text. Empty chunks are skipped: neither forwarded nor accumulated. An error
// returned by onDelta aborts the stream and is propagated unwrapped so the
// caller can recognize its own sentinel.
func (c *Client) StreamReply(ctx context.Context, content *models.PostContent, onDelta func(ctx context.Context, chunk []byte) error) (string, error) {
	var sb strings.Builder

	_, err := c.model.GenerateContent(ctx, BuildPrompt(content),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			sb.Write(chunk)
			if onDelta != nil {
				return onDelta(ctx, chunk)
			}
			return nil
		}))
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// GenerateReply requests a single-shot completion and returns its text.
// Unlike the streaming path, nothing has been sent anywhere when an attempt
// fails, so transient model failures are retried with backoff.
func (c *Client) GenerateReply(ctx context.Context, content *models.PostContent) (string, error) {
	var resp *llms.ContentResponse
	err := retry.Do(ctx, c.retryCfg, "generate", func() error {
		r, err := c.model.GenerateContent(ctx, BuildPrompt(content))
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, nil)
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Content, nil
}
