// Package ratelimit provides a client-keyed request counter with TTL
// eviction. The store is injected rather than a package-level map, so limits
// are testable and shared state can live in redis when the service runs with
// multiple replicas.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"commentpulse/internal/logger"

	"github.com/redis/go-redis/v9"
)

// Store counts requests per client key within a rolling window.
type Store interface {
	// Incr increments the counter for key and returns the new count. The
	// first increment starts the key's window; the counter resets when the
	// window expires.
	Incr(ctx context.Context, key string) (int64, error)
}

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is the in-process Store, suitable for single-replica runs.
type MemoryStore struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]*memoryEntry
	ops     int
	now     func() time.Time
}

// sweepInterval is how many increments pass between full expiry sweeps.
const sweepInterval = 256

// NewMemoryStore creates an in-memory store with the given window.
func NewMemoryStore(window time.Duration) *MemoryStore {
	return &MemoryStore{
		window:  window,
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// NewMemoryStoreWithClock creates a store with an injected clock.
func NewMemoryStoreWithClock(window time.Duration, now func() time.Time) *MemoryStore {
	store := NewMemoryStore(window)
	store.now = now
	return store
}

// Incr implements Store.
func (m *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	m.ops++
	if m.ops%sweepInterval == 0 {
		m.sweep(now)
	}

	entry, ok := m.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &memoryEntry{expiresAt: now.Add(m.window)}
		m.entries[key] = entry
	}
	entry.count++

	return entry.count, nil
}

// sweep drops expired entries; callers hold the lock.
func (m *MemoryStore) sweep(now time.Time) {
	for key, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, key)
		}
	}
}

// Len reports the live entry count, for tests and diagnostics.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// RedisStore is the redis-backed Store for multi-replica deployments.
type RedisStore struct {
	client *redis.Client
	window time.Duration
	prefix string
}

// NewRedisStore creates a redis-backed store with the given window.
func NewRedisStore(client *redis.Client, window time.Duration) *RedisStore {
	return &RedisStore{client: client, window: window, prefix: "ratelimit:"}
}

// Incr implements Store. The window TTL is set when the key is first created;
// redis evicts the key once the window passes.
func (r *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	fullKey := r.prefix + key

	count, err := r.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, fullKey, r.window).Err(); err != nil {
			return count, err
		}
	}

	return count, nil
}

// Middleware limits requests per client to limit per window. Clients are
// keyed by remote IP; errors from the store fail open so a limiter outage
// never takes the API down with it.
func Middleware(store Store, limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)

			count, err := store.Incr(r.Context(), key)
			if err != nil {
				logger.Warn("Rate limit store unavailable", "error", err.Error())
				next.ServeHTTP(w, r)
				return
			}

			if count > limit {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientKey derives the limiter key from the request's remote IP. chi's
// RealIP middleware rewrites RemoteAddr from forwarding headers upstream of
// this.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
