package worker

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter throttles model calls per provider with two token buckets:
// one for requests and one for estimated prompt tokens.
type Limiter struct {
	mu        sync.Mutex
	providers map[string]*providerBuckets

	requestRate  rate.Limit
	requestBurst int
	tokensPerMin int // 0 disables the token bucket
}

type providerBuckets struct {
	requests *rate.Limiter
	tokens   *rate.Limiter // nil when tokens are not limited
}

// NewLimiter creates a limiter. A non-positive requestsPerSecond disables
// request limiting; a non-positive tokensPerMinute disables token limiting.
func NewLimiter(requestsPerSecond float64, burst, tokensPerMinute int) *Limiter {
	if burst <= 0 {
		burst = 5
	}

	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		providers:    make(map[string]*providerBuckets),
		requestRate:  limit,
		requestBurst: burst,
		tokensPerMin: tokensPerMinute,
	}
}

// Wait blocks until provider may receive a call carrying tokens estimated
// input tokens, or ctx is done. A prompt larger than a full minute of
// tokens waits for the whole bucket instead of failing.
func (l *Limiter) Wait(ctx context.Context, provider string, tokens int) error {
	b := l.buckets(provider)

	if err := b.requests.Wait(ctx); err != nil {
		return fmt.Errorf("wait for %s request slot: %w", provider, err)
	}
	if b.tokens == nil || tokens <= 0 {
		return nil
	}
	if tokens > b.tokens.Burst() {
		tokens = b.tokens.Burst()
	}
	if err := b.tokens.WaitN(ctx, tokens); err != nil {
		return fmt.Errorf("wait for %s token budget: %w", provider, err)
	}
	return nil
}

// Allow reports whether a call could go out now, consuming a request slot
// when it can. It does not consult the token bucket.
func (l *Limiter) Allow(provider string) bool {
	return l.buckets(provider).requests.Allow()
}

// SetProviderLimits overrides the limits for one provider, for example a
// local Ollama server that needs no throttling
func (l *Limiter) SetProviderLimits(provider string, requestsPerSecond float64, burst, tokensPerMinute int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if burst <= 0 {
		burst = l.requestBurst
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	l.providers[provider] = newBuckets(limit, burst, tokensPerMinute)
}

func (l *Limiter) buckets(provider string) *providerBuckets {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.providers[provider]
	if !ok {
		b = newBuckets(l.requestRate, l.requestBurst, l.tokensPerMin)
		l.providers[provider] = b
	}
	return b
}

func newBuckets(requests rate.Limit, burst, tokensPerMinute int) *providerBuckets {
	b := &providerBuckets{requests: rate.NewLimiter(requests, burst)}
	if tokensPerMinute > 0 {
		b.tokens = rate.NewLimiter(rate.Limit(float64(tokensPerMinute)/60), tokensPerMinute)
	}
	return b
}
