package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/diagnosis/visitor-management/internal/http/response"
	"github.com/diagnosis/visitor-management/pkg/logger"
)

// Limiter counts hits per key. repository.RateLimitRepository satisfies it.
type Limiter interface {
	CheckRateLimit(ctx context.Context, key string, requests int, window time.Duration) (bool, error)
}

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	Requests int                            // Max requests per window
	Window   time.Duration                  // Time window duration
	KeyFunc  func(r *http.Request) []string // Function to generate rate limit keys
	SkipFunc func(r *http.Request) bool     // Function to skip rate limiting
}

// RateLimiter provides rate limiting functionality
type RateLimiter struct {
	limiter Limiter
	config  RateLimitConfig
}

func NewRateLimiter(limiter Limiter, config RateLimitConfig) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = IPKeyFunc("ip")
	}
	return &RateLimiter{limiter: limiter, config: config}
}

// Middleware returns the rate limiting middleware
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.config.SkipFunc != nil && rl.config.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			for _, key := range rl.config.KeyFunc(r) {
				allowed, err := rl.limiter.CheckRateLimit(r.Context(), key, rl.config.Requests, rl.config.Window)
				if err != nil {
					// Fail open
					logger.WarnContext(r.Context(), "Rate limit check failed", "error", err, "key", key)
					continue
				}
				if !allowed {
					w.Header().Set("Retry-After", retryAfter(rl.config.Window))
					response.RateLimit(w, "Too many requests. Try again later.")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(window time.Duration) string {
	secs := int(window.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// IPKeyFunc keys requests by client IP under prefix.
func IPKeyFunc(prefix string) func(r *http.Request) []string {
	return func(r *http.Request) []string {
		ip := ClientIP(r)
		if ip == "" {
			return nil
		}
		return []string{prefix + ":" + ip}
	}
}

// ClientIP is the peer address of the request. Forwarding headers are only
// honoured when chi's RealIP middleware has already rewritten RemoteAddr,
// which the server does behind a trusted proxy.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
