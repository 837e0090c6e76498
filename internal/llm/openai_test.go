package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
)

const researchJSON = `{"snippets":[],"summary":"none","noResults":true}`

func TestOpenAIProvider_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
			return
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != openai.ChatMessageRoleSystem || req.Messages[0].Content != "sys" {
			t.Errorf("Expected system message first, got %+v", req.Messages)
		}
		if req.Messages[1].Content != "user message" {
			t.Errorf("Expected user message, got %q", req.Messages[1].Content)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
			t.Errorf("Expected JSON object response format, got %+v", req.ResponseFormat)
		}
		if req.MaxTokens != 4096 {
			t.Errorf("Expected default max tokens 4096, got %d", req.MaxTokens)
		}

		resp := openai.ChatCompletionResponse{
			ID:     "chatcmpl-123",
			Object: "chat.completion",
			Model:  "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{
					Message: openai.ChatCompletionMessage{
						Role:    "assistant",
						Content: researchJSON,
					},
					FinishReason: "stop",
				},
			},
			Usage: openai.Usage{PromptTokens: 70, CompletionTokens: 30, TotalTokens: 100},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Model: "gpt-4o-mini", Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	resp, err := provider.Complete(context.Background(), CompletionRequest{System: "sys", User: "user message", JSONMode: true})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Text != researchJSON {
		t.Errorf("Unexpected text: %s", resp.Text)
	}
	if resp.InputTokens != 70 || resp.OutputTokens != 30 {
		t.Errorf("Unexpected token usage: %d/%d", resp.InputTokens, resp.OutputTokens)
	}
	if resp.Model != "gpt-4o-mini" {
		t.Errorf("Unexpected model: %s", resp.Model)
	}
	if resp.Truncated {
		t.Error("Expected finish_reason stop to leave the response whole")
	}
}

func TestOpenAIProvider_Complete_NoJSONMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat != nil {
			t.Errorf("Expected no response format, got %+v", req.ResponseFormat)
		}
		if req.Model != "gpt-4o" {
			t.Errorf("Expected request model override, got %s", req.Model)
		}
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "plain"}}},
		})
	}))
	defer server.Close()

	provider, _ := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Model: "gpt-4o-mini"})

	resp, err := provider.Complete(context.Background(), CompletionRequest{User: "u", Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Model != "gpt-4o" {
		t.Errorf("Expected fallback to request model, got %s", resp.Model)
	}
}

func TestOpenAIProvider_MissingKey(t *testing.T) {
	if _, err := NewOpenAIProvider(Config{}); err == nil {
		t.Error("Expected error for missing API key")
	}
}

func TestOpenAIProvider_Complete_APIErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		kind      string
		retryable bool
	}{
		{"server error", http.StatusInternalServerError, `{"error": {"message": "Internal Server Error", "type": "server_error"}}`, "server_error", true},
		{"rate limit", http.StatusTooManyRequests, `{"error": {"message": "Rate limit exceeded", "type": "rate_limit_error"}}`, "rate_limit_error", true},
		{"bad request", http.StatusBadRequest, `{"error": {"message": "context too long", "type": "invalid_request_error"}}`, "invalid_request_error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
			if err != nil {
				t.Fatalf("Failed to create provider: %v", err)
			}

			_, err = provider.Complete(context.Background(), CompletionRequest{User: "u"})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected *APIError, got %v", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, apiErr.StatusCode)
			}
			if apiErr.Kind != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, apiErr.Kind)
			}
			if apiErr.Retryable() != tt.retryable {
				t.Errorf("Expected retryable %v, got %v", tt.retryable, apiErr.Retryable())
			}
		})
	}
}

func TestOpenAIProvider_Complete_BadResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{malformed json`},
		{"no choices", `{"choices": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			provider, _ := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})

			_, err := provider.Complete(context.Background(), CompletionRequest{User: "u"})
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				t.Errorf("Expected a non-API error, got %v", apiErr)
			}
		})
	}
}

func TestOpenAIProvider_Complete_Truncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Content: `{"snippets":[`},
				FinishReason: openai.FinishReasonLength,
			}},
			Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 4096},
		})
	}))
	defer server.Close()

	provider, _ := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL})

	resp, err := provider.Complete(context.Background(), CompletionRequest{User: "u"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if !resp.Truncated {
		t.Error("Expected finish_reason length to mark the response truncated")
	}
}

func TestOpenAIProvider_Complete_ReasoningModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.MaxTokens != 0 {
			t.Errorf("Expected no max_tokens for o-series, got %d", req.MaxTokens)
		}
		if req.MaxCompletionTokens != 2000 {
			t.Errorf("Expected max_completion_tokens 2000, got %d", req.MaxCompletionTokens)
		}
		if req.Temperature != 0 {
			t.Errorf("Expected default temperature, got %v", req.Temperature)
		}
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: researchJSON}}},
		})
	}))
	defer server.Close()

	provider, _ := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Model: "o3-mini", MaxTokens: 2000})

	if _, err := provider.Complete(context.Background(), CompletionRequest{User: "u"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
}

func TestReasoningModel(t *testing.T) {
	tests := map[string]bool{
		"o1":          true,
		"o3-mini":     true,
		"o4-mini":     true,
		"gpt-4o":      false,
		"gpt-4o-mini": false,
		"omni":        false,
		"o":           false,
	}
	for model, expected := range tests {
		if got := reasoningModel(model); got != expected {
			t.Errorf("reasoningModel(%q) = %v, expected %v", model, got, expected)
		}
	}
}

func TestOpenAIProvider_Complete_ContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 1})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	// the caller's deadline wins over the configured timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := provider.Complete(ctx, CompletionRequest{User: "u"}); err == nil {
		t.Fatal("Expected timeout error, got nil")
	}
}

func TestOpenAIProvider_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"data": [{"id": "gpt-4o-mini"}]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	if !provider.IsAvailable(context.Background()) {
		t.Error("Expected available to be true")
	}

	server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if provider.IsAvailable(context.Background()) {
		t.Error("Expected available to be false on error")
	}
}
