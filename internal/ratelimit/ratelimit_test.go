package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keithlinneman/smallbiz-web/internal/httpmw"
)

// clock is a manually advanced time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testLimiter(opts ...Option) (*IPLimiter, *clock) {
	c := &clock{t: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)}
	l := newLimiter(opts...)
	l.now = c.now
	return l, c
}

func allowN(l *IPLimiter, ip string, n int) (allowed int) {
	for i := 0; i < n; i++ {
		if l.Allow(ip) {
			allowed++
		}
	}
	return allowed
}

func TestAllow_BurstRefillAndIsolation(t *testing.T) {
	l, c := testLimiter(WithRate(0.2, 5))

	if got := allowN(l, "198.51.100.1", 8); got != 5 {
		t.Fatalf("burst allowed %d, want 5", got)
	}
	if !l.Allow("198.51.100.2") {
		t.Fatal("a second IP shares the first IP's bucket")
	}

	c.advance(4 * time.Second)
	if l.Allow("198.51.100.1") {
		t.Fatal("token refilled too early")
	}
	c.advance(time.Second)
	if !l.Allow("198.51.100.1") {
		t.Fatal("token not refilled after 5s")
	}
}

func TestDefaults(t *testing.T) {
	l := newLimiter()
	if l.perSecond != 10 || l.burst != 30 || l.ttl != 5*time.Minute || l.maxBuckets != 100000 {
		t.Fatalf("defaults = %v/%d ttl %v max %d", l.perSecond, l.burst, l.ttl, l.maxBuckets)
	}
}

func TestCallbacks(t *testing.T) {
	var first, denied []string
	l, c := testLimiter(
		WithRate(1, 1),
		WithTTL(time.Minute),
		WithOnFirstDenied(func(ip string) { first = append(first, ip) }),
		WithOnDenied(func(ip string) { denied = append(denied, ip) }),
	)

	allowN(l, "a", 4)
	allowN(l, "b", 2)
	if fmt.Sprint(first) != "[a b]" {
		t.Fatalf("first denied = %v", first)
	}
	if len(denied) != 4 {
		t.Fatalf("denied = %v", denied)
	}

	c.advance(2 * time.Minute)
	l.evict(c.now())
	allowN(l, "a", 2)
	if fmt.Sprint(first) != "[a b a]" {
		t.Fatalf("eviction should re-arm the first denial, got %v", first)
	}
}

func TestNilCallbacks(t *testing.T) {
	l, _ := testLimiter(WithRate(1, 1), WithMaxVisitors(1))
	allowN(l, "a", 3)
	allowN(l, "b", 3)
}

func TestEvict(t *testing.T) {
	l, c := testLimiter(WithTTL(time.Minute))
	l.Allow("idle")
	c.advance(45 * time.Second)
	l.Allow("active")
	c.advance(30 * time.Second)
	l.evict(c.now())

	if l.Len() != 1 {
		t.Fatalf("len = %d, want 1", l.Len())
	}
	if _, ok := l.buckets["active"]; !ok {
		t.Fatal("active visitor evicted")
	}
}

func TestEvictLoop_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := newLimiter(WithTTL(20 * time.Millisecond))
	done := make(chan struct{})
	go func() {
		l.evictLoop(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("evict loop still running after cancel")
	}
}

func TestCapacity(t *testing.T) {
	var fired int
	l, c := testLimiter(
		WithRate(1, 1),
		WithTTL(time.Minute),
		WithMaxVisitors(2),
		WithOnCapacity(func() { fired++ }),
	)

	l.Allow("a")
	l.Allow("b")
	if l.Allow("c") || l.Allow("d") {
		t.Fatal("new IP admitted over capacity")
	}
	if fired != 1 {
		t.Fatalf("capacity fired %d times, want 1", fired)
	}
	if l.Allow("a") {
		t.Fatal("known IP should still be rate limited at capacity")
	}
	c.advance(time.Second)
	if !l.Allow("a") {
		t.Fatal("known IP refused at capacity")
	}

	c.advance(30 * time.Second)
	l.Allow("a")
	c.advance(45 * time.Second)
	l.evict(c.now())
	if !l.Allow("c") {
		t.Fatal("eviction did not free a slot")
	}
	if l.Allow("d") {
		t.Fatal("table should be full again")
	}
	if fired != 2 {
		t.Fatalf("capacity fired %d times, want 2 after re-arm", fired)
	}
}

func TestCapacity_ZeroDisables(t *testing.T) {
	l, _ := testLimiter(WithMaxVisitors(0))
	for i := 0; i < 500; i++ {
		if !l.Allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256)) {
			t.Fatalf("IP %d refused without a cap", i)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	var capacity atomic.Int32
	l, _ := testLimiter(WithMaxVisitors(50), WithOnCapacity(func() { capacity.Add(1) }))
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				l.Allow(fmt.Sprintf("192.0.2.%d", (g*100+i)%200))
			}
		}(g)
	}
	wg.Wait()
	if l.Len() > 50 {
		t.Fatalf("len = %d over the cap", l.Len())
	}
	if capacity.Load() != 1 {
		t.Fatalf("capacity fired %d times", capacity.Load())
	}
}

func TestRetryAfter(t *testing.T) {
	for _, tt := range []struct {
		perSecond float64
		want      string
	}{
		{10, "1"},
		{1, "1"},
		{0.2, "5"},
		{0.3, "4"},
		{0, "60"},
	} {
		l := newLimiter(WithRate(tt.perSecond, 1))
		if got := l.retryAfter(); got != tt.want {
			t.Errorf("retryAfter(%v) = %q, want %q", tt.perSecond, got, tt.want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	l, _ := testLimiter(WithRate(0.2, 2))
	var reached int
	h := httpmw.ClientIP(httpmw.ClientIPOptions{})(l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached++
	})))

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	send("203.0.113.1:1000")
	send("203.0.113.1:1001")
	rec := send("203.0.113.1:1002")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "5" {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if rec.Body.String() != `{"error":"too many requests"}` {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if reached != 2 {
		t.Fatalf("handler reached %d times, want 2", reached)
	}

	if rec := send("203.0.113.2:1000"); rec.Code != http.StatusOK {
		t.Fatalf("other IP status = %d", rec.Code)
	}
}

func TestMiddleware_WithoutClientIP(t *testing.T) {
	l, _ := testLimiter(WithRate(1, 1))
	h := l.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	codes := []int{}
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}
	if fmt.Sprint(codes) != "[200 429]" {
		t.Fatalf("codes = %v, requests without an IP share one bucket", codes)
	}
}
