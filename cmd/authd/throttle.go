package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// edgeThrottle is an in-process per-IP token bucket. It sheds floods before
// they reach Redis; shared budgets live in internal/rate.
type edgeThrottle struct {
	mu         sync.Mutex
	visitors   map[string]*visitor
	limit      rate.Limit
	burst      int
	idle       time.Duration
	trustProxy bool
	now        func() time.Time
}

func newEdgeThrottle(perSecond float64, burst int, trustProxy bool) *edgeThrottle {
	return &edgeThrottle{
		visitors:   make(map[string]*visitor),
		limit:      rate.Limit(perSecond),
		burst:      burst,
		idle:       5 * time.Minute,
		trustProxy: trustProxy,
		now:        time.Now,
	}
}

func (t *edgeThrottle) allow(ip string) bool {
	if t == nil || t.limit <= 0 {
		return true
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// sweep drops visitors idle for longer than t.idle.
func (t *edgeThrottle) sweep() {
	cutoff := t.now().Add(-t.idle)
	t.mu.Lock()
	defer t.mu.Unlock()
	for ip, v := range t.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(t.visitors, ip)
		}
	}
}

func (t *edgeThrottle) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.visitors)
}

func (t *edgeThrottle) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := middleware.DeviceFromRequest(r, t.trustProxy).ClientIP
		if !t.allow(ip) {
			w.Header().Set("Retry-After", "1")
			middleware.WriteError(w, authcore.ErrRateLimitExceeded)
			return
		}
		next.ServeHTTP(w, r)
	})
}
