package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Common errors.
var (
	ErrClosed        = errors.New("limiter closed")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds limiter configuration.
type Config struct {
	// Rate is the sustained number of events per second per key.
	Rate float64

	// Burst is the bucket size per key.
	Burst int

	// IdleTTL is how long an unused key is kept before Prune drops it.
	IdleTTL time.Duration
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Rate:    10,
		Burst:   20,
		IdleTTL: 10 * time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Rate > 0 && c.Burst <= 0 {
		return fmt.Errorf("%w: burst must be positive when rate is set", ErrInvalidConfig)
	}
	if c.IdleTTL < 0 {
		return fmt.Errorf("%w: negative idle ttl", ErrInvalidConfig)
	}
	return nil
}

// Enabled reports whether the configuration limits anything.
func (c Config) Enabled() bool {
	return c.Rate > 0
}

// Capacity describes the current state of one key's bucket.
type Capacity struct {
	Key    string  `json:"key"`
	Tokens float64 `json:"tokens"`
	Rate   float64 `json:"rate"`
	Burst  int     `json:"burst"`
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter holds one token bucket per key.
// It is safe for concurrent use.
type KeyedLimiter struct {
	mu      sync.Mutex
	config  Config
	entries map[string]*entry
	closed  bool
	nowFunc func() time.Time // for testing
}

// Option configures a KeyedLimiter.
type Option func(*KeyedLimiter)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(k *KeyedLimiter) {
		k.nowFunc = now
	}
}

// New creates a limiter. Invalid configuration falls back to defaults.
func New(cfg Config, opts ...Option) *KeyedLimiter {
	if cfg.Validate() != nil {
		cfg = DefaultConfig()
	}
	k := &KeyedLimiter{
		config:  cfg,
		entries: make(map[string]*entry),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Config returns the limiter configuration.
func (k *KeyedLimiter) Config() Config {
	return k.config
}

// get returns the entry for key, creating it on first use.
// Caller must hold k.mu.
func (k *KeyedLimiter) get(key string, now time.Time) *entry {
	e, ok := k.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(k.config.Rate), k.config.Burst)}
		k.entries[key] = e
	}
	e.lastSeen = now
	return e
}

// Allow reports whether one event for key may happen now, consuming a token
// if so.
func (k *KeyedLimiter) Allow(key string) bool {
	if !k.config.Enabled() {
		return true
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return false
	}
	now := k.nowFunc()
	return k.get(key, now).limiter.AllowN(now, 1)
}

// Wait blocks until an event for key may happen or ctx ends.
func (k *KeyedLimiter) Wait(ctx context.Context, key string) error {
	if !k.config.Enabled() {
		return ctx.Err()
	}
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return ErrClosed
	}
	lim := k.get(key, k.nowFunc()).limiter
	k.mu.Unlock()

	return lim.Wait(ctx)
}

// Capacity returns the bucket state for key, or nil if the key is unknown.
func (k *KeyedLimiter) Capacity(key string) *Capacity {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		return nil
	}
	return &Capacity{
		Key:    key,
		Tokens: e.limiter.TokensAt(k.nowFunc()),
		Rate:   k.config.Rate,
		Burst:  k.config.Burst,
	}
}

// Prune drops keys idle for longer than IdleTTL and returns how many were
// removed.
func (k *KeyedLimiter) Prune() int {
	if k.config.IdleTTL == 0 {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	cutoff := k.nowFunc().Add(-k.config.IdleTTL)
	removed := 0
	for key, e := range k.entries {
		if e.lastSeen.Before(cutoff) {
			delete(k.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// Close stops the limiter. Further Allow calls fail.
func (k *KeyedLimiter) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrClosed
	}
	k.closed = true
	k.entries = nil
	return nil
}
