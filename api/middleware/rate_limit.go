package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/carrental-backend/api/responses"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// RateLimitPolicy is a fixed window with separate per-user and per-IP ceilings.
// A zero limit disables that dimension.
type RateLimitPolicy struct {
	name      string
	window    time.Duration
	userLimit int
	ipLimit   int
}

func NewRateLimitPolicy(name string, window time.Duration, userLimit, ipLimit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	return RateLimitPolicy{name: name, window: window, userLimit: userLimit, ipLimit: ipLimit}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.userLimit > 0 || p.ipLimit > 0)
}

// RateLimit counts requests per caller and per client IP. Run it after Auth so the user is known.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			checks := []struct {
				dimension string
				value     string
				limit     int
			}{
				{"user", userIDFromContext(ctx), policy.userLimit},
				{"ip", clientIP(r), policy.ipLimit},
			}
			for _, c := range checks {
				if c.limit <= 0 || c.value == "" {
					continue
				}
				key := store.RateLimitKey(fmt.Sprintf("%s:%s:%s", policy.name, c.dimension, c.value))
				count, err := store.IncrWithTTL(ctx, key, policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count > int64(c.limit) {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"policy":         policy.name,
							"dimension":      c.dimension,
							"attempts":       count,
							"limit":          c.limit,
							"window_seconds": int(policy.window.Seconds()),
						}), "rate_limit.blocked")
					}
					w.Header().Set("Retry-After", fmt.Sprintf("%d", int(policy.window.Seconds())))
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
