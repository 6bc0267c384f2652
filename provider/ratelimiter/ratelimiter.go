// Package ratelimiter provides per-client token buckets for the HTTP API
package ratelimiter

import (
	"context"
	"sync"
	"time"

	"github.com/oddbit-project/walletguard/types/periodic"
	"github.com/oddbit-project/walletguard/utils"
	"golang.org/x/time/rate"
)

const (
	ErrInvalidRateLimit       = utils.Error("rate limit must be positive")
	ErrInvalidBurst           = utils.Error("burst must be positive")
	ErrInvalidTTL             = utils.Error("TTL must be positive")
	ErrInvalidCleanupInterval = utils.Error("cleanup interval must be positive")
	ErrNilConfig              = utils.Error("rate limiter config is nil")
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Config struct {
	RateLimit       rate.Limit `json:"rateLimit"` // requests per second
	Burst           int        `json:"burst"`
	TTL             int        `json:"ttl"`             // seconds an idle client is remembered
	CleanupInterval int        `json:"cleanupInterval"` // seconds
}

func NewConfig() *Config {
	return &Config{
		RateLimit:       5,
		Burst:           20,
		TTL:             600,
		CleanupInterval: 60,
	}
}

// Validate checks if config values are valid
func (c *Config) Validate() error {
	if c.RateLimit <= 0 {
		return ErrInvalidRateLimit
	}
	if c.Burst <= 0 {
		return ErrInvalidBurst
	}
	if c.TTL <= 0 {
		return ErrInvalidTTL
	}
	if c.CleanupInterval <= 0 {
		return ErrInvalidCleanupInterval
	}
	return nil
}

// RateLimiter keeps one token bucket per client key; idle buckets are evicted
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
	sweeper  *periodic.Task
}

type Option func(*RateLimiter)

// WithClock overrides the time source used for buckets and eviction
func WithClock(now func() time.Time) Option {
	return func(r *RateLimiter) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRateLimiter(cfg *Config, opts ...Option) (*RateLimiter, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     cfg.RateLimit,
		burst:    cfg.Burst,
		ttl:      time.Duration(cfg.TTL) * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	var err error
	r.sweeper, err = periodic.New(time.Duration(cfg.CleanupInterval)*time.Second, func(context.Context) {
		r.cleanup()
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Start begins evicting idle clients; safe to call multiple times
func (r *RateLimiter) Start() {
	r.sweeper.Start()
}

// Allow consumes a token for key and reports whether the request may proceed
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, exists := r.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(r.rate, r.burst)}
		r.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

// cleanup removes clients idle for longer than the TTL
func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for key, entry := range r.limiters {
		if now.Sub(entry.lastSeen) > r.ttl {
			delete(r.limiters, key)
		}
	}
}

// Shutdown stops the eviction loop; safe to call multiple times
func (r *RateLimiter) Shutdown(ctx context.Context) error {
	return r.sweeper.Shutdown(ctx)
}
