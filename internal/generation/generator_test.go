package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, status int, resp any, gotPrompt *string, gotModel *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if gotModel != nil {
			*gotModel = req.Model
		}
		if gotPrompt != nil && len(req.Messages) > 0 {
			*gotPrompt = req.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func completion(text string) map[string]any {
	return map[string]any{
		"id":     "cmpl-1",
		"object": "chat.completion",
		"model":  "m",
		"choices": []map[string]any{
			{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": text}},
		},
		"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
	}
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	var prompt, model string
	srv := chatServer(t, http.StatusOK, completion("The answer."), &prompt, &model)
	g := NewOpenAIGenerator(srv.URL+"/v1", "key", "", time.Second)

	got, err := g.Generate(context.Background(), "What is it?")
	require.NoError(t, err)
	assert.Equal(t, "The answer.", got)
	assert.Equal(t, "What is it?", prompt)
	assert.Equal(t, DefaultModel, model)
}

func TestOpenAIGenerator_Errors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := chatServer(t, http.StatusServiceUnavailable, map[string]any{"error": map[string]any{"message": "overloaded"}}, nil, nil)
		g := NewOpenAIGenerator(srv.URL+"/v1", "key", "m", time.Second)
		_, err := g.Generate(context.Background(), "q")
		assert.ErrorIs(t, err, ErrGenerationService)
	})
	t.Run("no choices", func(t *testing.T) {
		srv := chatServer(t, http.StatusOK, map[string]any{"id": "x", "choices": []any{}}, nil, nil)
		g := NewOpenAIGenerator(srv.URL+"/v1", "key", "m", time.Second)
		_, err := g.Generate(context.Background(), "q")
		assert.ErrorIs(t, err, ErrGenerationService)
	})
	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()
		g := NewOpenAIGenerator(srv.URL+"/v1", "key", "m", 30*time.Millisecond)
		_, err := g.Generate(context.Background(), "q")
		var se *ServiceError
		assert.ErrorAs(t, err, &se)
	})
}

func TestStatic(t *testing.T) {
	got, err := Static{Answer: "fixed"}.Generate(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "fixed", got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Static{Answer: "fixed"}.Generate(ctx, "anything")
	assert.ErrorIs(t, err, ErrGenerationService)
}
