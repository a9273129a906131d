package middleware

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	apperrors "github.com/Coffee-Network/coffee_ledger/internal/errors"
	"github.com/Coffee-Network/coffee_ledger/pkg/logger"
)

// RateLimiter throttles requests per caller. The faucet endpoint uses it so
// a caller cannot hammer the top-up path.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	log      *logger.Logger
}

// NewRateLimiter creates a limiter allowing requestsPerMinute per key.
func NewRateLimiter(requestsPerMinute, burst int, log *logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewDefault("ratelimit")
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
		log:      log,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Handler returns the rate limiting middleware handler. Keys on the
// authenticated caller, falling back to the remote address.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if caller, ok := CallerFromContext(r.Context()); ok {
			key = caller.String()
		}

		if !rl.getLimiter(key).Allow() {
			rl.log.WithField("key", key).Warn("rate limit exceeded")
			respondError(w, apperrors.RateLimitExceeded(int(rl.rate*60), "1m"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
