package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/folio/internal/cache"
	"github.com/ppiankov/folio/internal/model"
	"gopkg.in/yaml.v3"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"How do finch beaks vary?", "how-do-finch-beaks-vary"},
		{"  What's in ch. 3 / part 2?  ", "what-s-in-ch-3-part-2"},
		{"../../etc/passwd", "etc-passwd"},
		{"???", "query"},
		{strings.Repeat("word ", 30), strings.TrimSuffix(strings.Repeat("word-", 12), "-")},
	}

	for _, tt := range tests {
		if got := sanitizeFilename(tt.input); got != tt.expected {
			t.Errorf("sanitizeFilename(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestProviderFlags_Overrides(t *testing.T) {
	var f providerFlags
	if f.overrides() != nil {
		t.Error("expected nil overrides when no budget flag is set")
	}

	f.maxChunks = 5
	o := f.overrides()
	if o == nil || o.MaxChunks != 5 || o.SourceContextBudget != 0 {
		t.Errorf("expected only max chunks overridden, got %+v", o)
	}
}

func TestProviderFlags_Apply(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg := model.DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "sk-openai"

	f := providerFlags{provider: "anthropic", model: "claude-3-5-haiku-latest", noCache: true, strict: true}
	f.apply(cfg)

	if cfg.LLM.APIKey != "sk-ant-test" {
		t.Errorf("expected anthropic key after switching provider, got %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "claude-3-5-haiku-latest" {
		t.Errorf("expected model override, got %s", cfg.LLM.Model)
	}
	if cfg.Cache.Enabled || !cfg.Research.Strict {
		t.Error("expected cache disabled and strict mode enabled")
	}
}

func TestApplyProviderEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("OLLAMA_BASE_URL", "http://ollama:11434")

	cfg := model.DefaultConfig()
	cfg.LLM.Provider = "openai"
	applyProviderEnv(cfg)
	if cfg.LLM.APIKey != "sk-from-env" {
		t.Errorf("expected key from env, got %q", cfg.LLM.APIKey)
	}

	cfg.LLM.APIKey = "sk-explicit"
	applyProviderEnv(cfg)
	if cfg.LLM.APIKey != "sk-explicit" {
		t.Errorf("expected explicit key to win, got %q", cfg.LLM.APIKey)
	}

	cfg.LLM.Provider = "ollama"
	applyProviderEnv(cfg)
	if cfg.LLM.BaseURL != "http://ollama:11434" {
		t.Errorf("expected ollama base URL from env, got %q", cfg.LLM.BaseURL)
	}
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FOLIO_LLM_PROVIDER", "ollama")
	t.Setenv("FOLIO_RESEARCH_BUDGET_MAX_CHUNKS", "7")
	t.Setenv("FOLIO_RESEARCH_STRICT", "true")
	t.Setenv("OLLAMA_BASE_URL", "http://ollama:11434")

	initConfig()
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected provider from env, got %q", cfg.LLM.Provider)
	}
	if cfg.Research.Budget.MaxChunks != 7 {
		t.Errorf("expected max chunks 7, got %d", cfg.Research.Budget.MaxChunks)
	}
	if cfg.Research.Budget.SourceContextBudget != model.DefaultTokenBudget().SourceContextBudget {
		t.Errorf("expected default source budget kept, got %d", cfg.Research.Budget.SourceContextBudget)
	}
	if !cfg.Research.Strict {
		t.Error("expected strict mode from env")
	}
	if cfg.LLM.BaseURL != "http://ollama:11434" {
		t.Errorf("expected ollama base URL, got %q", cfg.LLM.BaseURL)
	}
}

func TestResearchCommand_EndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
			return
		}
		body, _ := json.Marshal(map[string]interface{}{
			"model": "llama3",
			"message": map[string]string{
				"role":    "assistant",
				"content": "```json\n{\"snippets\": [{\"content\": \"Beaks vary.\", \"source_id\": \"s1\"}], \"summary\": \"ok\"}\n```",
			},
			"done": true,
		})
		_, _ = w.Write(body)
	}))
	defer server.Close()

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("OLLAMA_BASE_URL", server.URL)

	chunks := filepath.Join(dir, "pool.json")
	if err := os.WriteFile(chunks, []byte(`[{"id": "s1:0", "sourceId": "s1", "sourceTitle": "Origin", "text": "Beaks vary.", "startOffset": 0, "endOffset": 11}]`), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "result.json")
	report := filepath.Join(dir, "report.json")

	rootCmd.SetArgs([]string{
		"research",
		"--chunks", chunks,
		"--query", "How do finch beaks vary?",
		"--provider", "ollama",
		"--model", "llama3",
		"--no-cache",
		"--json", out,
		"--report", report,
	})
	if err := Execute(); err != nil {
		t.Fatalf("research failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read result: %v", err)
	}
	var result model.ResearchQueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("invalid result JSON: %v", err)
	}
	if len(result.Snippets) != 1 || result.Snippets[0].SourceID != "s1" {
		t.Errorf("unexpected result: %+v", result)
	}

	data, err = os.ReadFile(report)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	var r model.Report
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("invalid report JSON: %v", err)
	}
	if r.Outcome != model.OutcomeSuccess || r.Provider != "ollama" {
		t.Errorf("unexpected report: outcome=%s provider=%s", r.Outcome, r.Provider)
	}
	if !r.HasSignal(model.SignalShapeDrift) {
		t.Error("expected shape drift signal for fenced snake_case response")
	}
}

func TestParseCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	valid := filepath.Join(dir, "valid.txt")
	_ = os.WriteFile(valid, []byte(`{"snippets": [], "summary": "", "noResults": true}`), 0644)
	prose := filepath.Join(dir, "prose.txt")
	_ = os.WriteFile(prose, []byte("I could not find anything relevant."), 0644)

	tests := []struct {
		file    string
		strict  bool
		wantErr bool
	}{
		{valid, false, false},
		{valid, true, false},
		{prose, false, true},
		{filepath.Join(dir, "missing.txt"), false, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s strict=%v", filepath.Base(tt.file), tt.strict), func(t *testing.T) {
			rootCmd.SetArgs([]string{"parse", tt.file, fmt.Sprintf("--strict=%v", tt.strict)})
			err := Execute()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := writeDefaultConfig(path, false); err != nil {
		t.Fatalf("writeDefaultConfig failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# Folio configuration") {
		t.Errorf("expected commented header, got:\n%s", data)
	}
	if strings.Contains(string(data), "api_key") {
		t.Error("expected API key never to be written")
	}

	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Research.Budget != model.DefaultTokenBudget() {
		t.Errorf("expected default budget, got %+v", cfg.Research.Budget)
	}

	if err := writeDefaultConfig(path, false); err == nil {
		t.Error("expected error when config already exists")
	}
	if err := writeDefaultConfig(path, true); err != nil {
		t.Errorf("expected --force to overwrite, got %v", err)
	}
}

func TestCheckConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models": [{"name": "llama3:latest"}]}`))
	}))
	defer server.Close()

	cfg := model.DefaultConfig()
	if err := checkConfig(context.Background(), cfg, time.Second); err != nil {
		t.Errorf("expected no provider to pass, got %v", err)
	}

	cfg.LLM.Provider = "ollama"
	cfg.LLM.BaseURL = server.URL
	cfg.LLM.Model = "llama3"
	if err := checkConfig(context.Background(), cfg, time.Second); err != nil {
		t.Errorf("expected reachable provider to pass, got %v", err)
	}

	cfg.LLM.Model = "mistral"
	if err := checkConfig(context.Background(), cfg, time.Second); err == nil {
		t.Error("expected missing model to fail")
	}

	cfg = model.DefaultConfig()
	cfg.Research.Budget.MaxChunks = 0
	if err := checkConfig(context.Background(), cfg, time.Second); err == nil {
		t.Error("expected invalid budget to fail")
	}

	cfg = model.DefaultConfig()
	cfg.LLM.Provider = "gemini"
	if err := checkConfig(context.Background(), cfg, time.Second); err == nil {
		t.Error("expected unknown provider to fail")
	}
}

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		n        int64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := humanBytes(tt.n); got != tt.expected {
			t.Errorf("humanBytes(%d) = %q, expected %q", tt.n, got, tt.expected)
		}
	}
}

func TestCacheCommands(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	disk := cache.NewDiskCache(dir, time.Hour)
	if err := disk.Put("k", &cache.Response{Raw: "{}", StoredAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	st, err := disk.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	printCacheStats(&buf, st)
	if !strings.Contains(buf.String(), "Entries:  1 (0 expired)") {
		t.Errorf("unexpected stats output:\n%s", buf.String())
	}

	rootCmd.SetArgs([]string{"cache", "prune", "--dir", dir})
	if err := Execute(); err != nil {
		t.Fatalf("cache prune failed: %v", err)
	}
	if _, ok := disk.Get("k"); !ok {
		t.Error("expected live entry to survive prune")
	}

	rootCmd.SetArgs([]string{"cache", "clear", "--dir", dir})
	if err := Execute(); err != nil {
		t.Fatalf("cache clear failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("expected cache directory removed")
	}
	cacheDir = ""
}
