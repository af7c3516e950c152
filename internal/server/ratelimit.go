package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"upkeep/internal/engine"
)

// newRateLimiter builds an in-memory per-IP limiter from a formatted rate
// such as "100-M". An empty rate disables limiting.
func newRateLimiter(rate string) (*limiter.Limiter, error) {
	if rate == "" {
		return nil, nil
	}
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	return limiter.New(memory.NewStore(), r), nil
}

func rateLimit(l *limiter.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := l.GetIPKey(r)
			log := engine.LoggerFrom(r.Context())
			lc, err := l.Get(r.Context(), ip)
			if err != nil {
				log.Error("rate limit check failed", slog.String("ip", ip), slog.String("error", err.Error()))
				respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil))
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(lc.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(lc.Reset, 10))
			if lc.Reached {
				log.Warn("rate limit exceeded", slog.String("ip", ip), slog.Int64("limit", lc.Limit))
				respondStatusError(w, newAPIError(http.StatusTooManyRequests, "rate_limited", "too many requests", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
