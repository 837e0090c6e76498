package source

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ppiankov/folio/internal/model"
)

// fetchSleepFunc is replaced in tests to skip retry backoff
var fetchSleepFunc = time.Sleep

// FetcherConfig configures remote chunk pool retrieval
type FetcherConfig struct {
	Timeout    time.Duration
	UserAgent  string
	MaxBytes   int64 // Larger bodies are rejected, not truncated
	MaxRetries int   // Retries after the first attempt for 429 and 5xx
}

// DefaultFetcherConfig returns the settings used by the CLI
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:    30 * time.Second,
		UserAgent:  "folio/0.1 (+https://github.com/ppiankov/folio)",
		MaxBytes:   32 << 20,
		MaxRetries: 2,
	}
}

// Fetcher downloads chunk pools published by the upstream chunker
type Fetcher struct {
	httpClient *http.Client
	config     FetcherConfig
}

// NewFetcher creates a new Fetcher with the given configuration
func NewFetcher(config FetcherConfig) *Fetcher {
	defaults := DefaultFetcherConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = defaults.MaxBytes
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout: config.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		config: config,
	}
}

// statusError is a non-2xx response
type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.code, e.status)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// FetchChunks downloads and decodes a chunk pool, retrying transient failures
func (f *Fetcher) FetchChunks(ctx context.Context, rawURL string) ([]model.Chunk, error) {
	var lastErr error
	for attempt := 0; attempt <= f.config.MaxRetries; attempt++ {
		if attempt > 0 {
			fetchSleepFunc(time.Duration(attempt) * 500 * time.Millisecond)
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("fetch chunks: %w", err)
			}
		}

		body, contentType, err := f.fetch(ctx, rawURL)
		if err == nil {
			chunks, err := decodeChunks(body, formatFromResponse(rawURL, contentType))
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", rawURL, err)
			}
			return normalizeAll(chunks)
		}

		lastErr = err
		if se, ok := err.(*statusError); ok && !se.retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "application/json, application/x-ndjson;q=0.9, application/yaml;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &statusError{code: resp.StatusCode, status: resp.Status}
	}

	// read one byte past the limit to detect oversized bodies
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.config.MaxBytes {
		return nil, "", fmt.Errorf("chunk pool exceeds %d bytes", f.config.MaxBytes)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// formatFromResponse prefers the URL extension, then the content type
func formatFromResponse(rawURL, contentType string) format {
	if u, err := url.Parse(rawURL); err == nil {
		if f, err := formatFromExt(path.Base(u.Path)); err == nil {
			return f
		}
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case strings.Contains(mediaType, "ndjson"), strings.Contains(mediaType, "jsonl"):
		return formatJSONLines
	case strings.Contains(mediaType, "yaml"):
		return formatYAML
	default:
		return formatJSON
	}
}
