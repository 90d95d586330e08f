package ratelimit

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Bucket defines rate limit parameters. MaxRequests requests may be made per
// Window, refilled evenly; MaxRequests <= 0 means unlimited.
type Bucket struct {
	MaxRequests int
	Window      time.Duration
}

// Bucket names used by the HTTP surface.
const (
	BucketSubmit = "submit"
	BucketAPI    = "api"
)

// DefaultBuckets protect the remote prediction service from bursts.
var DefaultBuckets = map[string]Bucket{
	BucketSubmit: {MaxRequests: 30, Window: time.Minute},
	BucketAPI:    {MaxRequests: 60, Window: time.Minute},
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is an in-memory token-bucket rate limiter per key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]Bucket
	entries map[string]*entry
	now     func() time.Time
}

// New creates a limiter. A nil buckets map uses DefaultBuckets.
func New(buckets map[string]Bucket) *Limiter {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	return &Limiter{
		buckets: buckets,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Allow reports whether a request identified by key is within bucket.
func (l *Limiter) Allow(key string, bucket Bucket) bool {
	if bucket.MaxRequests <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		every := bucket.Window / time.Duration(bucket.MaxRequests)
		e = &entry{limiter: rate.NewLimiter(rate.Every(every), bucket.MaxRequests)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Check writes a 429 response if the client IP is over the named bucket.
// Returns true if the request was rejected.
func (l *Limiter) Check(w http.ResponseWriter, r *http.Request, bucketName string) bool {
	bucket, ok := l.buckets[bucketName]
	if !ok {
		bucket = Bucket{MaxRequests: 60, Window: time.Minute}
	}

	if l.Allow(bucketName+":"+ClientIP(r), bucket) {
		return false
	}

	retry := max(int(bucket.Window.Seconds())/max(bucket.MaxRequests, 1), 1)
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]any{
		"error":               "Rate limited",
		"retry_after_seconds": retry,
	})
	return true
}

// ClientIP is the host part of r.RemoteAddr. chi's RealIP middleware
// replaces RemoteAddr with a bare IP when a proxy header is present;
// otherwise it is the ip:port of the connection.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Prune forgets keys idle for longer than idle.
func (l *Limiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for k, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// CleanupLoop prunes idle keys every interval until ctx is cancelled.
func (l *Limiter) CleanupLoop(ctx context.Context) {
	const interval = 5 * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune(2 * interval)
		}
	}
}

// Bucket returns the configured bucket for name.
func (l *Limiter) Bucket(name string) (Bucket, bool) {
	b, ok := l.buckets[name]
	return b, ok
}
