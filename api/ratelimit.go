package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// loginMaxFailures is the number of failed attempts per client within
	// loginWindow before logins are rejected outright.
	loginMaxFailures = 5
	loginWindow      = 15 * time.Minute

	// requestLimit is the general per-client request budget.
	requestLimit  = 100
	requestWindow = 1 * time.Minute
)

// loginRateLimiter tracks failed login attempts per client IP over a
// sliding window. Once a client accumulates loginMaxFailures failures, all
// further login attempts are rejected until the oldest failure leaves the
// window, even when the credentials on the blocked attempt are correct.
type loginRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
}

func newLoginRateLimiter() *loginRateLimiter {
	return &loginRateLimiter{
		failures: make(map[string][]time.Time),
	}
}

// check returns whether the client is blocked and how long until the next
// attempt would be admitted.
func (rl *loginRateLimiter) check(ip string) (blocked bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := rl.trim(ip, time.Now())
	if len(recent) >= loginMaxFailures {
		return true, time.Until(recent[0].Add(loginWindow))
	}
	return false, 0
}

// recordFailure notes a failed attempt for the client.
func (rl *loginRateLimiter) recordFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.failures[ip] = append(rl.trim(ip, now), now)
}

// recordSuccess clears the failure history on a successful login.
func (rl *loginRateLimiter) recordSuccess(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.failures, ip)
}

// trim drops failures outside the window. Caller holds the lock.
func (rl *loginRateLimiter) trim(ip string, now time.Time) []time.Time {
	recent := rl.failures[ip]
	cutoff := now.Add(-loginWindow)
	start := 0
	for start < len(recent) && recent[start].Before(cutoff) {
		start++
	}
	recent = recent[start:]
	if len(recent) == 0 {
		delete(rl.failures, ip)
	} else {
		rl.failures[ip] = recent
	}
	return recent
}

// sweep removes stale records. Call periodically from a background goroutine.
func (rl *loginRateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-loginWindow)
	for ip, recent := range rl.failures {
		if len(recent) == 0 || recent[len(recent)-1].Before(cutoff) {
			delete(rl.failures, ip)
		}
	}
}

// requestRateLimiter enforces the general per-client budget. Every request
// counts, not just failures.
type requestRateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
}

func newRequestRateLimiter() *requestRateLimiter {
	return &requestRateLimiter{
		requests: make(map[string][]time.Time),
	}
}

// allow records the request and reports whether it is within budget.
func (rl *requestRateLimiter) allow(ip string) (ok bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-requestWindow)
	recent := rl.requests[ip]
	start := 0
	for start < len(recent) && recent[start].Before(cutoff) {
		start++
	}
	recent = recent[start:]

	if len(recent) >= requestLimit {
		rl.requests[ip] = recent
		return false, time.Until(recent[0].Add(requestWindow))
	}
	rl.requests[ip] = append(recent, now)
	return true, 0
}

// rateLimitRequests applies the general limiter to every route.
func (a *API) rateLimitRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ok, retryAfter := a.apiLimiter.allow(extractClientIP(r)); !ok {
			writeRateLimited(w, r, retryAfter, "Too many requests; try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeRateLimited sends a 429 Too Many Requests response.
func writeRateLimited(w http.ResponseWriter, r *http.Request, retryAfter time.Duration, msg string) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	writeError(w, r, http.StatusTooManyRequests, msg)
}

func retryAfterString(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// extractClientIP returns the best-effort client address for rate limiting.
// Proxy headers are not consulted; RemoteAddr is authoritative.
func extractClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
