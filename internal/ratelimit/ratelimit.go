package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/smallbiz-web/internal/httpmw"
)

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
	// warned is set on the first denial and cleared when the bucket is evicted
	warned bool
}

// IPLimiter keeps one token bucket per client IP. Idle buckets are evicted
// after the TTL and the table is capped, so a scan from many addresses
// cannot grow it without bound.
type IPLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	full    bool
	now     func() time.Time

	perSecond  rate.Limit
	burst      int
	ttl        time.Duration
	maxBuckets int

	onFirstDenied func(ip string)
	onDenied      func(ip string)
	onCapacity    func()
}

type Option func(*IPLimiter)

// WithRate sets the refill rate and bucket size. WithRate(0.2, 5) allows five
// attempts at once and then one every five seconds.
func WithRate(perSecond float64, burst int) Option {
	return func(l *IPLimiter) {
		l.perSecond = rate.Limit(perSecond)
		l.burst = burst
	}
}

// WithTTL sets how long an idle IP is remembered.
func WithTTL(d time.Duration) Option {
	return func(l *IPLimiter) { l.ttl = d }
}

// WithMaxVisitors caps the number of tracked IPs. 0 disables the cap.
func WithMaxVisitors(n int) Option {
	return func(l *IPLimiter) { l.maxBuckets = n }
}

// WithOnFirstDenied runs once per IP when it is first limited, until its
// bucket is evicted.
func WithOnFirstDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.onFirstDenied = fn }
}

// WithOnDenied runs on every rejected request.
func WithOnDenied(fn func(ip string)) Option {
	return func(l *IPLimiter) { l.onDenied = fn }
}

// WithOnCapacity runs when the table first fills up, and again after
// eviction has made room and it fills once more.
func WithOnCapacity(fn func()) Option {
	return func(l *IPLimiter) { l.onCapacity = fn }
}

// New creates an IPLimiter whose eviction loop runs until ctx is done.
func New(ctx context.Context, opts ...Option) *IPLimiter {
	l := newLimiter(opts...)
	go l.evictLoop(ctx)
	return l
}

func newLimiter(opts ...Option) *IPLimiter {
	l := &IPLimiter{
		buckets:    make(map[string]*bucket),
		now:        time.Now,
		perSecond:  10,
		burst:      30,
		ttl:        5 * time.Minute,
		maxBuckets: 100000,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Allow reports whether a request from ip may proceed. Callbacks run after
// the lock is released.
func (l *IPLimiter) Allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		if l.maxBuckets > 0 && len(l.buckets) >= l.maxBuckets {
			first := !l.full
			l.full = true
			l.mu.Unlock()
			if first && l.onCapacity != nil {
				l.onCapacity()
			}
			return false
		}
		b = &bucket{lim: rate.NewLimiter(l.perSecond, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	allowed := b.lim.AllowN(now, 1)
	warn := !allowed && !b.warned
	if warn {
		b.warned = true
	}
	l.mu.Unlock()

	if allowed {
		return true
	}
	if warn && l.onFirstDenied != nil {
		l.onFirstDenied(ip)
	}
	if l.onDenied != nil {
		l.onDenied(ip)
	}
	return false
}

// Len returns the number of tracked IPs.
func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// evict drops buckets idle for longer than the TTL and re-arms the capacity
// callback once there is room again.
func (l *IPLimiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.ttl {
			delete(l.buckets, ip)
		}
	}
	if l.maxBuckets == 0 || len(l.buckets) < l.maxBuckets {
		l.full = false
	}
}

func (l *IPLimiter) evictLoop(ctx context.Context) {
	t := time.NewTicker(l.ttl / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.evict(l.now())
		}
	}
}

// retryAfter is the time for one token to refill, in whole seconds.
func (l *IPLimiter) retryAfter() string {
	if l.perSecond <= 0 || l.perSecond == rate.Inf {
		return "60"
	}
	return strconv.Itoa(max(1, int(math.Ceil(1/float64(l.perSecond)))))
}

// Middleware answers 429 for requests over the per-IP limit. The client IP
// comes from httpmw.ClientIP, which must run first.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Allow(httpmw.ClientIPFromContext(r.Context())) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Retry-After", l.retryAfter())
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"too many requests"}`))
	})
}
