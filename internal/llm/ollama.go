package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OllamaProvider talks to a local Ollama server through its chat endpoint
type OllamaProvider struct {
	api    *jsonEndpoint
	config Config
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"` // "json" constrains output
	Options  chatOptions   `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Model      string      `json:"model"`
	Message    chatMessage `json:"message"`
	Done       bool        `json:"done"`
	DoneReason string      `json:"done_reason"`

	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaProvider creates a new Ollama provider
func NewOllamaProvider(config Config) (*OllamaProvider, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &OllamaProvider{
		api: &jsonEndpoint{
			provider: "ollama",
			baseURL:  strings.TrimSuffix(baseURL, "/"),
			client:   newHTTPClient(config, 120*time.Second), // Local models can be slow
			decodeError: func(body []byte) (string, string) {
				var e struct {
					Error string `json:"error"`
				}
				_ = json.Unmarshal(body, &e)
				return "", e.Error
			},
		},
		config: config,
	}, nil
}

// Name returns the provider name
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// IsAvailable checks that the server answers and, when a model is
// configured, that it has been pulled
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	var tags tagsResponse
	if err := p.api.do(ctx, "/api/tags", nil, &tags); err != nil {
		return false
	}
	if p.config.Model == "" {
		return true
	}
	for _, m := range tags.Models {
		if sameModel(m.Name, p.config.Model) {
			return true
		}
	}
	return false
}

// sameModel compares Ollama model names, where "llama3" means "llama3:latest"
func sameModel(a, b string) bool {
	withTag := func(s string) string {
		if !strings.Contains(s, ":") {
			return s + ":latest"
		}
		return s
	}
	return withTag(a) == withTag(b)
}

// Complete runs one non-streaming chat call
func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := p.config.resolveModel(req, "")
	if model == "" {
		return nil, fmt.Errorf("ollama model must be specified (e.g., llama3.1:8b, mistral)")
	}

	in := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Options: chatOptions{
			Temperature: 0.2,
			NumPredict:  p.config.resolveMaxTokens(req),
		},
	}
	if req.JSONMode {
		in.Format = "json"
	}

	var out chatResponse
	if err := p.api.do(ctx, "/api/chat", in, &out); err != nil {
		return nil, err
	}
	if !out.Done {
		return nil, fmt.Errorf("ollama returned an incomplete response")
	}

	return &CompletionResponse{
		Text:         out.Message.Content,
		Model:        out.Model,
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
		Truncated:    out.DoneReason == "length",
	}, nil
}
