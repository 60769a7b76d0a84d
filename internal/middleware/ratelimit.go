package middleware

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

type window struct {
	count    int
	resetsAt time.Time
}

// RateLimiter is a fixed-window in-memory limiter, keyed by whatever the
// caller chooses (client IP for the login route).
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: make(map[string]*window)}
}

// Allow reports whether key is still under limit for the current window.
func (rl *RateLimiter) Allow(key string, limit int, d time.Duration) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[key]
	if !ok || now.After(w.resetsAt) {
		rl.windows[key] = &window{count: 1, resetsAt: now.Add(d)}
		return true
	}
	w.count++
	return w.count <= limit
}

// Cleanup drops windows that have already reset. Called from the hourly
// maintenance loop.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, w := range rl.windows {
		if now.After(w.resetsAt) {
			delete(rl.windows, key)
		}
	}
}

// RateLimit wraps a handler with per-key limiting. Over-limit requests get
// a 429 with the standard failure envelope.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string, limit int, d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(keyFunc(r), limit, d) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
