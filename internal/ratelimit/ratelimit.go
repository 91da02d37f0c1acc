package ratelimit

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	DefaultLimit  = 10
	DefaultWindow = 24 * time.Hour

	shardCount = 32
)

// Decision is the outcome of one Check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"resetAt"`
}

// Usage is a read-only view of a key's window.
type Usage struct {
	Count       int       `json:"count"`
	Remaining   int       `json:"remaining"`
	Limit       int       `json:"limit"`
	WindowStart time.Time `json:"windowStart"`
	ResetAt     time.Time `json:"resetAt"`
}

type Options struct {
	Limit  int
	Window time.Duration
	Now    func() time.Time
}

type window struct {
	count int
	start time.Time
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// RateLimiter is a per-key fixed-window counter with lazy reset.
// Keys hash onto independent shards so unrelated keys rarely contend.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time
	shards [shardCount]shard
}

func NewRateLimiter(opts Options) *RateLimiter {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	rl := &RateLimiter{
		limit:  opts.Limit,
		window: opts.Window,
		now:    opts.Now,
	}
	for i := range rl.shards {
		rl.shards[i].windows = make(map[string]*window)
	}
	return rl
}

func (rl *RateLimiter) shardFor(key string) *shard {
	return &rl.shards[xxhash.Sum64String(key)%shardCount]
}

// Check consumes one slot for key when one is available.
// A denied check never mutates the count.
func (rl *RateLimiter) Check(key string) Decision {
	now := rl.now()
	s := rl.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &window{start: now}
		s.windows[key] = w
	}
	if now.Sub(w.start) >= rl.window {
		w.count = 0
		w.start = now
	}

	resetAt := w.start.Add(rl.window)
	if w.count >= rl.limit {
		return Decision{Allowed: false, Remaining: 0, Limit: rl.limit, ResetAt: resetAt}
	}
	w.count++
	return Decision{Allowed: true, Remaining: rl.limit - w.count, Limit: rl.limit, ResetAt: resetAt}
}

// Peek reports the key's usage without consuming a slot.
func (rl *RateLimiter) Peek(key string) Usage {
	now := rl.now()
	s := rl.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= rl.window {
		return Usage{Remaining: rl.limit, Limit: rl.limit, WindowStart: now, ResetAt: now.Add(rl.window)}
	}
	return Usage{
		Count:       w.count,
		Remaining:   rl.limit - w.count,
		Limit:       rl.limit,
		WindowStart: w.start,
		ResetAt:     w.start.Add(rl.window),
	}
}

// Sweep drops windows that have already expired and returns how many were removed.
// Unexpired windows are kept, so a sweep never admits more than Check would.
func (rl *RateLimiter) Sweep(now time.Time) int {
	removed := 0
	for i := range rl.shards {
		s := &rl.shards[i]
		s.mu.Lock()
		for key, w := range s.windows {
			if now.Sub(w.start) >= rl.window {
				delete(s.windows, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	n := 0
	for i := range rl.shards {
		s := &rl.shards[i]
		s.mu.Lock()
		n += len(s.windows)
		s.mu.Unlock()
	}
	return n
}

func (rl *RateLimiter) Limit() int { return rl.limit }

func (rl *RateLimiter) Window() time.Duration { return rl.window }
