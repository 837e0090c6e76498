package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaProvider_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("Expected path /api/chat, got %s", r.URL.Path)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
			return
		}
		if req.Stream {
			t.Error("Expected non-streaming request")
		}
		if req.Format != "json" {
			t.Errorf("Expected json format in JSON mode, got %q", req.Format)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[0].Content != "sys" {
			t.Errorf("Expected system message first, got %+v", req.Messages)
		}
		if req.Messages[1].Content != "user message" {
			t.Errorf("Expected user message, got %q", req.Messages[1].Content)
		}
		if req.Options.NumPredict != 4096 {
			t.Errorf("Expected default num_predict 4096, got %d", req.Options.NumPredict)
		}

		_ = json.NewEncoder(w).Encode(chatResponse{
			Model:           "llama3.1",
			Message:         chatMessage{Role: "assistant", Content: researchJSON},
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 10,
			EvalCount:       20,
		})
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(Config{BaseURL: server.URL + "/", Model: "llama3.1", Timeout: 5})
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
	if resp.InputTokens != 10 || resp.OutputTokens != 20 {
		t.Errorf("Unexpected token usage: %d/%d", resp.InputTokens, resp.OutputTokens)
	}
	if resp.Truncated {
		t.Error("Expected complete response not to be marked truncated")
	}
}

func TestOllamaProvider_Complete_Truncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"llama3.1","message":{"role":"assistant","content":"{\"snippets\":["},"done":true,"done_reason":"length"}`))
	}))
	defer server.Close()

	provider, _ := NewOllamaProvider(Config{BaseURL: server.URL, Model: "llama3.1", Timeout: 5})

	resp, err := provider.Complete(context.Background(), CompletionRequest{User: "u"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if !resp.Truncated {
		t.Error("Expected done_reason length to mark the response truncated")
	}
}

func TestOllamaProvider_Complete_NotDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"llama3.1","message":{"role":"assistant","content":"{"},"done":false}`))
	}))
	defer server.Close()

	provider, _ := NewOllamaProvider(Config{BaseURL: server.URL, Model: "llama3.1", Timeout: 5})

	if _, err := provider.Complete(context.Background(), CompletionRequest{User: "u"}); err == nil {
		t.Fatal("Expected error for incomplete response, got nil")
	}
}

func TestOllamaProvider_Complete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "model 'llama9' not found"}`))
	}))
	defer server.Close()

	provider, _ := NewOllamaProvider(Config{BaseURL: server.URL, Model: "llama9", Timeout: 5})

	_, err := provider.Complete(context.Background(), CompletionRequest{User: "u"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "model 'llama9' not found" {
		t.Errorf("Unexpected API error: %+v", apiErr)
	}
	if apiErr.Retryable() {
		t.Error("Expected 404 not to be retryable")
	}
}

func TestOllamaProvider_Complete_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{malformed json`))
	}))
	defer server.Close()

	provider, _ := NewOllamaProvider(Config{BaseURL: server.URL, Model: "llama3.1", Timeout: 5})

	_, err := provider.Complete(context.Background(), CompletionRequest{User: "u"})
	if err == nil {
		t.Fatal("Expected error for malformed JSON, got nil")
	}
	if !strings.Contains(err.Error(), "unmarshal response") {
		t.Errorf("Expected unmarshal error, got %v", err)
	}
}

func TestOllamaProvider_IsAvailable(t *testing.T) {
	tags := `{"models":[{"name":"llama3:latest"},{"name":"mistral:7b"}]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(tags))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	tests := []struct {
		model    string
		expected bool
	}{
		{"", true},
		{"llama3", true},
		{"mistral:7b", true},
		{"mistral", false},
		{"qwen2", false},
	}

	for _, tt := range tests {
		provider, err := NewOllamaProvider(Config{BaseURL: server.URL, Model: tt.model})
		if err != nil {
			t.Fatalf("Failed to create provider: %v", err)
		}
		if got := provider.IsAvailable(context.Background()); got != tt.expected {
			t.Errorf("IsAvailable with model %q = %v, expected %v", tt.model, got, tt.expected)
		}
	}

	server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	provider, _ := NewOllamaProvider(Config{BaseURL: server.URL})
	if provider.IsAvailable(context.Background()) {
		t.Error("Expected available to be false on error")
	}
}

func TestOllamaProvider_Complete_NoModel(t *testing.T) {
	provider, err := NewOllamaProvider(Config{BaseURL: "http://localhost:11434"})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	_, err = provider.Complete(context.Background(), CompletionRequest{User: "u"})
	if err == nil {
		t.Fatal("Expected error when no model provided, got nil")
	}
	if !strings.Contains(err.Error(), "must be specified") {
		t.Errorf("Expected error about missing model, got %v", err)
	}
}
