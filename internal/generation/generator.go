// Package generation produces answer text from a prompt using a chat-completion service.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "mistral-large-latest"

const defaultTimeout = 2 * time.Minute

// ErrGenerationService is wrapped by every failure of the generation service.
var ErrGenerationService = errors.New("generation service error")

// ServiceError is a failed generation call.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("generation service: %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() []error {
	return []error{ErrGenerationService, e.Err}
}

// Generator turns a prompt into answer text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OpenAIGenerator calls an OpenAI-compatible chat completions endpoint (OpenAI, Mistral and
// most self-hosted servers) with the prompt as a single user message.
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures an OpenAIGenerator.
type Option func(*OpenAIGenerator)

// WithLogger sets the logger used for request debug output.
func WithLogger(l *zap.Logger) Option {
	return func(g *OpenAIGenerator) { g.logger = l }
}

// NewOpenAIGenerator returns a generator for the service at baseURL. An empty baseURL uses
// the OpenAI default; an empty model uses DefaultModel.
func NewOpenAIGenerator(baseURL, apiKey, model string, timeout time.Duration, opts ...Option) *OpenAIGenerator {
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	g := &OpenAIGenerator{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns the first choice's message content.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", &ServiceError{Op: "chat completion", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &ServiceError{Op: "decode response", Err: errors.New("no choices returned")}
	}
	g.logger.Debug("generation complete",
		zap.String("model", g.model),
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("took", time.Since(start)))
	return resp.Choices[0].Message.Content, nil
}

// Static always returns the same answer. Used for offline runs and tests.
type Static struct {
	Answer string
}

// Generate returns s.Answer.
func (s Static) Generate(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &ServiceError{Op: "generate", Err: err}
	}
	return s.Answer, nil
}
