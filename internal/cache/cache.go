package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ppiankov/folio/internal/model"
)

// Response is one stored model reply and what it cost to produce
type Response struct {
	Raw          string    `json:"raw"`
	Model        string    `json:"model,omitempty"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
	StoredAt     time.Time `json:"stored_at"`
}

// Cache stores model responses by prompt fingerprint.
// Expiry is a property of each layer, not of individual entries.
type Cache interface {
	Get(key string) (*Response, bool)
	Put(key string, resp *Response) error
	Delete(key string) error
	Clear() error
}

// keyVersion changes whenever the prompt format changes, so stale responses
// produced for an older prompt layout are never served
const keyVersion = "folio:v1:"

// ResponseKey fingerprints one model call. Every input that can change the
// raw response is part of the key.
func ResponseKey(provider, modelName, system, user string) string {
	h := sha256.New()
	for _, part := range []string{provider, modelName, system, user} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return keyVersion + hex.EncodeToString(h.Sum(nil))
}

// NewFromConfig builds the configured cache, or nil when caching is disabled
func NewFromConfig(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Dir == "" {
		return NewMemoryCache(cfg.MemoryTTL)
	}
	return NewLayeredCache(NewMemoryCache(cfg.MemoryTTL), NewDiskCache(cfg.Dir, cfg.DiskTTL))
}
