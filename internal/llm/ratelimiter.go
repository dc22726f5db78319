package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimitedProvider caps a Provider at rpm completions per minute. Up to
// rpm calls may go out back to back; after that each call waits for the
// bucket to refill.
type RateLimitedProvider struct {
	provider Provider
	rpm      int
	interval time.Duration

	mu     sync.Mutex
	tokens float64
	last   time.Time
	now    func() time.Time
}

func NewRateLimitedProvider(provider Provider, rpm int) Provider {
	if rpm <= 0 {
		return provider
	}
	return &RateLimitedProvider{
		provider: provider,
		rpm:      rpm,
		interval: time.Minute / time.Duration(rpm),
		tokens:   float64(rpm),
		last:     time.Now(),
		now:      time.Now,
	}
}

func (r *RateLimitedProvider) Name() string {
	return r.provider.Name()
}

func (r *RateLimitedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	for {
		wait := r.reserve()
		if wait == 0 {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return r.provider.Complete(ctx, req)
}

// reserve takes a token and returns zero, or returns how long until one is
// available.
func (r *RateLimitedProvider) reserve() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.tokens += float64(now.Sub(r.last)) / float64(r.interval)
	if r.tokens > float64(r.rpm) {
		r.tokens = float64(r.rpm)
	}
	r.last = now

	if r.tokens >= 1 {
		r.tokens--
		return 0
	}
	return time.Duration((1 - r.tokens) * float64(r.interval))
}
