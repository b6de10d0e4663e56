package auth

import (
	"sync"
	"time"
)

// clientWindow tracks requests for a single client
type clientWindow struct {
	requests []time.Time
	lastSeen time.Time
}

// RateLimiter is an in-memory sliding window limiter keyed by client
type RateLimiter struct {
	window    time.Duration
	idleAfter time.Duration
	clients   map[string]*clientWindow
	lastSweep time.Time
	now       func() time.Time
	mu        sync.Mutex
}

// NewRateLimiter creates a limiter over the given window
func NewRateLimiter(window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		window:    window,
		idleAfter: 5 * window,
		clients:   make(map[string]*clientWindow),
		now:       time.Now,
	}
}

// Allow records a request and reports whether it fits in the limit. When
// it does not, retryAfter is the time until the oldest request leaves the
// window.
func (rl *RateLimiter) Allow(clientID string, limit int) (allowed bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	client, exists := rl.clients[clientID]
	if !exists {
		client = &clientWindow{}
		rl.clients[clientID] = client
	}
	client.lastSeen = now

	windowStart := now.Add(-rl.window)
	kept := client.requests[:0]
	for _, t := range client.requests {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}
	client.requests = kept

	if limit > 0 && len(client.requests) >= limit {
		return false, client.requests[0].Add(rl.window).Sub(now)
	}
	client.requests = append(client.requests, now)
	return true, 0
}

// sweep drops idle clients at most once per window
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	rl.lastSweep = now
	cutoff := now.Add(-rl.idleAfter)
	for id, client := range rl.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rl.clients, id)
		}
	}
}

// Stats returns rate limiting statistics
func (rl *RateLimiter) Stats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	clients := make([]map[string]interface{}, 0, len(rl.clients))
	for id, client := range rl.clients {
		clients = append(clients, map[string]interface{}{
			"client_id":     id,
			"request_count": len(client.requests),
			"last_request":  client.lastSeen,
		})
	}
	return map[string]interface{}{
		"window":        rl.window.String(),
		"total_clients": len(rl.clients),
		"clients":       clients,
	}
}
