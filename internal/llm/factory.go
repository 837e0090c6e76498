package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/folio/internal/model"
)

type constructor func(Config) (Provider, error)

var registry = map[string]constructor{
	"openai":    register(NewOpenAIProvider),
	"anthropic": register(NewAnthropicProvider),
	"ollama":    register(NewOllamaProvider),
}

// register adapts a concrete constructor, keeping a failed build a nil
// interface rather than a typed nil
func register[P Provider](build func(Config) (P, error)) constructor {
	return func(c Config) (Provider, error) {
		p, err := build(c)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

var aliases = map[string]string{
	"claude": "anthropic",
}

// Names lists the supported provider names
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewProvider builds the provider named by config.Provider.
// An empty name means the model is disabled and returns nil, nil.
func NewProvider(config Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(config.Provider))
	if name == "" {
		return nil, nil
	}
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}

	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: %s)", config.Provider, strings.Join(Names(), ", "))
	}
	return build(config)
}

// ConfigFromModel converts the llm section of the folio config
func ConfigFromModel(c model.LLMConfig) Config {
	return Config{
		Provider:   c.Provider,
		Model:      c.Model,
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		Timeout:    c.Timeout,
		MaxTokens:  c.MaxTokens,
		HTTPProxy:  c.HTTPProxy,
		HTTPSProxy: c.HTTPSProxy,
		NoProxy:    c.NoProxy,
	}
}
