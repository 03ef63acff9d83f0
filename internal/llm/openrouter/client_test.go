package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kitbuilder587/translation-pipeline/internal/failure"
	"github.com/kitbuilder587/translation-pipeline/internal/llm"
)

func TestClient_CompleteWithSystem(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name       string
		response   interface{}
		statusCode int
		header     map[string]string
		wantErr    error
		wantKind   failure.Kind
	}{
		{
			name: "successful completion",
			response: llm.ChatResponse{
				Choices: []llm.Choice{
					{Message: llm.Message{Role: "assistant", Content: "Bonjour le monde"}},
				},
			},
			statusCode: http.StatusOK,
		},
		{
			name:       "unauthorized",
			response:   map[string]string{"error": "unauthorized"},
			statusCode: http.StatusUnauthorized,
			wantErr:    llm.ErrAuthFailed,
			wantKind:   failure.KindCredentialInvalid,
		},
		{
			name:       "rate limit",
			response:   map[string]any{"error": map[string]any{"message": "Rate limit exceeded", "code": 429}},
			statusCode: http.StatusTooManyRequests,
			header:     map[string]string{"Retry-After": "12"},
			wantErr:    llm.ErrRateLimit,
			wantKind:   failure.KindRateLimited,
		},
		{
			name:       "service unavailable",
			response:   map[string]string{"message": "service unavailable"},
			statusCode: http.StatusServiceUnavailable,
			wantErr:    llm.ErrUnavailable,
			wantKind:   failure.KindDependencyUnavailable,
		},
		{
			name:       "bare 503 is overload",
			response:   map[string]string{"message": "upstream busy"},
			statusCode: http.StatusServiceUnavailable,
			wantErr:    llm.ErrOverloaded,
			wantKind:   failure.KindDependencyOverloaded,
		},
		{
			name: "empty response",
			response: llm.ChatResponse{
				Choices: []llm.Choice{},
			},
			statusCode: http.StatusOK,
			wantErr:    llm.ErrEmptyResponse,
			wantKind:   failure.KindProcessingFailed,
		},
		{
			name:       "upstream error with 200",
			response:   map[string]any{"error": map[string]any{"message": "Provider returned error", "code": 502}},
			statusCode: http.StatusOK,
			wantErr:    llm.ErrRequestFailed,
			wantKind:   failure.KindDependencyUnavailable,
		},
	}

	classifier := failure.NewClassifier(nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") == "" {
					t.Error("missing authorization header")
				}
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.statusCode)
				json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			client := New(Config{
				APIKey:  "test-key",
				BaseURL: server.URL,
				Timeout: 5 * time.Second,
			}, logger)

			result, err := client.CompleteWithSystem(context.Background(), "system", "prompt")

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("CompleteWithSystem() error = %v, wantErr %v", err, tt.wantErr)
				}
				if got := classifier.Classify(err).Kind; got != tt.wantKind {
					t.Errorf("Classify() = %s, want %s (err %v)", got, tt.wantKind, err)
				}
				return
			}

			if err != nil {
				t.Errorf("CompleteWithSystem() unexpected error = %v", err)
				return
			}

			if result == "" {
				t.Error("CompleteWithSystem() returned empty result")
			}
		})
	}
}

func TestClient_RetryAfterHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down","code":"rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "k", BaseURL: server.URL}, zap.NewNop())
	_, err := client.CompleteWithSystem(context.Background(), "s", "p")

	var apiErr *llm.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %T is not *llm.APIError", err)
	}
	if apiErr.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", apiErr.RetryAfter)
	}
	if apiErr.Code != "rate_limit_exceeded" {
		t.Errorf("Code = %q", apiErr.Code)
	}

	cls := failure.NewClassifier(nil).Classify(err)
	if cls.Metadata.RetryAfter != 7*time.Second || cls.Metadata.HTTPStatus != 429 {
		t.Errorf("Metadata = %+v", cls.Metadata)
	}
}

func TestClient_WithModel(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req llm.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		json.NewEncoder(w).Encode(llm.ChatResponse{Choices: []llm.Choice{{Message: llm.Message{Content: "ok"}}}})
	}))
	defer server.Close()

	base := New(Config{APIKey: "k", BaseURL: server.URL, Model: "deepseek/deepseek-chat"}, zap.NewNop())
	alt := base.WithModel("qwen/qwen-2.5-72b-instruct")

	if _, err := alt.CompleteWithSystem(context.Background(), "s", "p"); err != nil {
		t.Fatalf("CompleteWithSystem() error = %v", err)
	}
	if gotModel != "qwen/qwen-2.5-72b-instruct" {
		t.Errorf("model = %q", gotModel)
	}
	if base.Model() != "deepseek/deepseek-chat" {
		t.Errorf("base model changed to %q", base.Model())
	}
}
