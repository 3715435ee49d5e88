package http

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/stephnangue/vortex/helper"
	"golang.org/x/time/rate"
)

// defaultLimiterClients bounds how many client IPs are tracked at once; the
// least recently seen client is forgotten first.
const defaultLimiterClients = 10000

// loginLimiter applies a token bucket per client IP to the login route.
type loginLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients *lru.Cache[string, *rate.Limiter]
}

func newLoginLimiter(limit rate.Limit, burst, size int) (*loginLimiter, error) {
	if limit <= 0 {
		return &loginLimiter{}, nil
	}
	if burst <= 0 {
		burst = 1
	}
	clients, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, fmt.Errorf("create login limiter: %w", err)
	}
	return &loginLimiter{limit: limit, burst: burst, clients: clients}, nil
}

func (l *loginLimiter) allow(ip string) bool {
	if l.clients == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.clients.Get(ip)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.clients.Add(ip, lim)
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (l *loginLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(helper.ClientIP(r)) {
			retry := 1
			if l.limit > 0 && l.limit < 1 {
				retry = int(1/float64(l.limit)) + 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			respondError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}
		next.ServeHTTP(w, r)
	})
}
