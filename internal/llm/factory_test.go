package llm

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/ppiankov/folio/internal/model"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		apiKey   string
		expected string
		wantErr  bool
	}{
		{provider: "openai", apiKey: "k", expected: "openai"},
		{provider: "OpenAI", apiKey: "k", expected: "openai"},
		{provider: "anthropic", apiKey: "k", expected: "anthropic"},
		{provider: "claude", apiKey: "k", expected: "anthropic"},
		{provider: "ollama", expected: "ollama"},
		{provider: "openai", wantErr: true},
		{provider: "gemini", apiKey: "k", wantErr: true},
	}

	for _, tt := range tests {
		p, err := NewProvider(Config{Provider: tt.provider, APIKey: tt.apiKey})
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error, got nil", tt.provider)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.provider, err)
			continue
		}
		if p.Name() != tt.expected {
			t.Errorf("%s: expected name %s, got %s", tt.provider, tt.expected, p.Name())
		}
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(Config{})
	if err != nil || p != nil {
		t.Errorf("Expected nil provider and nil error, got %v, %v", p, err)
	}
}

func TestConfigFromModel(t *testing.T) {
	cfg := ConfigFromModel(model.LLMConfig{
		Provider:   "ollama",
		Model:      "llama3.1",
		BaseURL:    "http://gpu:11434",
		Timeout:    90,
		MaxTokens:  2048,
		HTTPSProxy: "http://proxy:3128",
		NoProxy:    "gpu",
	})

	if cfg.Provider != "ollama" || cfg.Model != "llama3.1" || cfg.Timeout != 90 || cfg.MaxTokens != 2048 {
		t.Errorf("Unexpected config: %+v", cfg)
	}
	if cfg.HTTPSProxy != "http://proxy:3128" || cfg.NoProxy != "gpu" {
		t.Errorf("Expected proxy settings to carry over, got %+v", cfg)
	}
}

func TestProxyFunc(t *testing.T) {
	proxy := newProxyFunc("http://plain:8080", "http://secure:3128", "localhost, .internal,gpu.lan")

	tests := []struct {
		target   string
		expected string
	}{
		{"https://api.openai.com/v1", "http://secure:3128"},
		{"http://example.com/", "http://plain:8080"},
		{"http://localhost:11434/api", ""},
		{"https://models.internal/v1", ""},
		{"http://gpu.lan:11434/", ""},
		{"http://box.gpu.lan:11434/", ""},
	}

	for _, tt := range tests {
		u, _ := url.Parse(tt.target)
		got, err := proxy(&http.Request{URL: u})
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.target, err)
			continue
		}
		gotStr := ""
		if got != nil {
			gotStr = got.String()
		}
		if gotStr != tt.expected {
			t.Errorf("%s: expected proxy %q, got %q", tt.target, tt.expected, gotStr)
		}
	}
}

func TestResolveDefaults(t *testing.T) {
	cfg := Config{}
	if got := cfg.resolveMaxTokens(CompletionRequest{}); got != 4096 {
		t.Errorf("Expected default max tokens 4096, got %d", got)
	}
	if got := cfg.resolveModel(CompletionRequest{}, "fallback"); got != "fallback" {
		t.Errorf("Expected fallback model, got %s", got)
	}
	cfg.Model = "configured"
	if got := cfg.resolveModel(CompletionRequest{Model: "requested"}, "fallback"); got != "requested" {
		t.Errorf("Expected request model to win, got %s", got)
	}
}

func TestNewProvider_FailedBuildIsNilInterface(t *testing.T) {
	p, err := NewProvider(Config{Provider: "anthropic"})
	if err == nil {
		t.Fatal("Expected error for missing API key")
	}
	if p != nil {
		t.Errorf("Expected nil interface on failure, got %#v", p)
	}
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != 3 || names[0] != "anthropic" || names[1] != "ollama" || names[2] != "openai" {
		t.Errorf("Unexpected provider names: %v", names)
	}
}
