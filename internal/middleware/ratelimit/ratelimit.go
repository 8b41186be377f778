// Package ratelimit caps mutating requests per client with a fixed
// one-minute window.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

type Config struct {
	// RequestsPerMinute allowed per client (default: 60)
	RequestsPerMinute int

	// CleanupInterval for dropping idle clients (default: 5m)
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
	}
}

type window struct {
	start time.Time
	count int
}

type Limiter struct {
	config Config
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*window
	limited int64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New starts a limiter with its cleanup goroutine. Call Stop when done.
func New(config Config) *Limiter {
	d := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = d.RequestsPerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = d.CleanupInterval
	}
	l := &Limiter{
		config:  config,
		now:     time.Now,
		clients: make(map[string]*window),
		stopCh:  make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow counts one request for key and reports whether it fits the window.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.clients[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		l.clients[key] = &window{start: now, count: 1}
		return true
	}
	if w.count >= l.config.RequestsPerMinute {
		l.limited++
		return false
	}
	w.count++
	return true
}

// retryAfter is the time left in key's window, rounded up to a second.
func (l *Limiter) retryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.clients[key]
	if !ok {
		return 0
	}
	left := time.Minute - l.now().Sub(w.start)
	if left < 0 {
		return 0
	}
	return left.Round(time.Second) + time.Second
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.dropIdle()
		case <-l.stopCh:
			return
		}
	}
}

// dropIdle forgets clients whose window expired.
func (l *Limiter) dropIdle() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, w := range l.clients {
		if now.Sub(w.start) >= time.Minute {
			delete(l.clients, k)
			n++
		}
	}
	return n
}

func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Limited is the number of requests rejected so far.
func (l *Limiter) Limited() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limited
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Middleware rejects requests over the limit with 429. keyFn picks the
// client key, usually its IP. onLimit may be nil.
func (l *Limiter) Middleware(keyFn func(*http.Request) string, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if l.Allow(key) {
				next.ServeHTTP(w, r)
				return
			}
			if secs := int(l.retryAfter(key) / time.Second); secs > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
		})
	}
}
