// Package resilience provides the rate limiting and concurrency control
// primitives that sit between the pipeline and external services.
package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiterConfig configures per-host limiting.
type HostLimiterConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
	MinCooldown       time.Duration `yaml:"min_cooldown"`
	GlobalConcurrent  int           `yaml:"global_concurrent"`
}

// DefaultHostLimiterConfig returns sensible defaults.
func DefaultHostLimiterConfig() HostLimiterConfig {
	return HostLimiterConfig{
		RequestsPerSecond: 4,
		Burst:             8,
		MaxConcurrent:     4,
		MinCooldown:       500 * time.Millisecond,
		GlobalConcurrent:  64,
	}
}

// hostState is the token bucket plus adaptive state for one host.
type hostState struct {
	limiter       *rate.Limiter
	sem           *Semaphore
	baseRate      rate.Limit
	cooldownUntil time.Time
	consecErrors  int
}

// HostLimiter is a process-wide per-host token bucket with adaptive
// backoff. Errors shrink a host's rate and enforce a cooldown; a
// provider-reported Retry-After is honoured exactly. Successes restore
// the configured rate gradually.
type HostLimiter struct {
	mu        sync.Mutex
	hosts     map[string]*hostState
	cfg       HostLimiterConfig
	globalSem *Semaphore
}

// NewHostLimiter creates a limiter with the given per-host defaults.
func NewHostLimiter(cfg HostLimiterConfig) *HostLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultHostLimiterConfig().RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultHostLimiterConfig().Burst
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultHostLimiterConfig().MaxConcurrent
	}
	if cfg.GlobalConcurrent <= 0 {
		cfg.GlobalConcurrent = DefaultHostLimiterConfig().GlobalConcurrent
	}
	return &HostLimiter{
		hosts:     make(map[string]*hostState),
		cfg:       cfg,
		globalSem: NewSemaphore(cfg.GlobalConcurrent),
	}
}

func (l *HostLimiter) host(host string) *hostState {
	if h, ok := l.hosts[host]; ok {
		return h
	}
	h := &hostState{
		limiter:  rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst),
		sem:      NewSemaphore(l.cfg.MaxConcurrent),
		baseRate: rate.Limit(l.cfg.RequestsPerSecond),
	}
	l.hosts[host] = h
	return h
}

// Acquire waits for a token, the host concurrency slot, the global
// slot, and any active cooldown. Callers must call Release when done.
func (l *HostLimiter) Acquire(ctx context.Context, host string) error {
	l.mu.Lock()
	h := l.host(host)
	wait := time.Until(h.cooldownUntil)
	l.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := l.globalSem.Acquire(ctx); err != nil {
		return err
	}
	if err := h.sem.Acquire(ctx); err != nil {
		l.globalSem.Release()
		return err
	}
	if err := h.limiter.Wait(ctx); err != nil {
		h.sem.Release()
		l.globalSem.Release()
		return err
	}
	return nil
}

// Release frees the concurrency slots taken by Acquire.
func (l *HostLimiter) Release(host string) {
	l.mu.Lock()
	h := l.host(host)
	l.mu.Unlock()
	h.sem.Release()
	l.globalSem.Release()
}

// RecordSuccess restores the host's rate toward its configured base.
func (l *HostLimiter) RecordSuccess(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := l.host(host)
	h.consecErrors = 0
	cur := h.limiter.Limit()
	if cur < h.baseRate {
		next := cur * 2
		if next > h.baseRate {
			next = h.baseRate
		}
		h.limiter.SetLimit(next)
	}
}

// RecordError halves the host's rate and enforces a cooldown. When
// retryAfter is positive (a Retry-After header), the cooldown honours
// it exactly; otherwise the minimum cooldown grows with consecutive
// errors.
func (l *HostLimiter) RecordError(host string, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := l.host(host)
	h.consecErrors++

	half := h.limiter.Limit() / 2
	if half < rate.Limit(0.1) {
		half = rate.Limit(0.1)
	}
	h.limiter.SetLimit(half)

	cooldown := retryAfter
	if cooldown <= 0 {
		cooldown = l.cfg.MinCooldown * time.Duration(h.consecErrors)
	}
	until := time.Now().Add(cooldown)
	if until.After(h.cooldownUntil) {
		h.cooldownUntil = until
	}
}

// CooldownUntil reports the host's current cooldown deadline.
func (l *HostLimiter) CooldownUntil(host string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.host(host).cooldownUntil
}
