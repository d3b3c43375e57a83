package embedding

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hyperjump/kotae/internal/vector"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultTimeout = 30 * time.Second

// Client calls an OpenAI-compatible /v1/embeddings endpoint, one text per request.
// The vector dimension is learned from the first response; later responses of a
// different length are rejected.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	dims    atomic.Int64
	logger  *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets a logger for request debug output.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithRateLimit throttles requests to rps per second. Non-positive rps disables throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithDimensions sets the expected vector length up front.
func WithDimensions(n int) ClientOption {
	return func(c *Client) { c.dims.Store(int64(n)) }
}

// NewClient returns a client for the service at baseURL (for example "http://localhost:8000";
// a trailing "/v1" is added when missing). timeout bounds each call.
func NewClient(baseURL, apiKey, model string, timeout time.Duration, opts ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = apiBaseURL(baseURL)
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	c := &Client{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func apiBaseURL(base string) string {
	base = strings.TrimRight(base, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base
}

// Embed returns the embedding of text. It never returns a zero vector in place of an error.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &ServiceError{Op: "throttle", Err: err}
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: text,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, &ServiceError{Op: "create embeddings", Err: err}
	}
	if len(resp.Data) == 0 {
		return nil, &ServiceError{Op: "decode response", Err: errors.New("no embedding data returned")}
	}
	vec := resp.Data[0].Embedding
	if len(vec) == 0 {
		return nil, &ServiceError{Op: "decode response", Err: errors.New("empty embedding returned")}
	}
	if !c.dims.CompareAndSwap(0, int64(len(vec))) {
		if want := int(c.dims.Load()); want != len(vec) {
			return nil, &vector.DimensionMismatchError{Expected: want, Got: len(vec)}
		}
	}
	c.logger.Debug("embedding received",
		zap.Int("chars", len(text)),
		zap.Int("dimensions", len(vec)),
		zap.Duration("took", time.Since(start)))
	return vec, nil
}

// Dimensions returns the learned vector length, or 0 before the first successful call.
func (c *Client) Dimensions() int {
	return int(c.dims.Load())
}

// Close is a no-op; the underlying HTTP client has no resources to release.
func (c *Client) Close() error {
	return nil
}
