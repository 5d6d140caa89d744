package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ovenly/backend/api/responses"
	"github.com/ovenly/backend/internal/ratelimit"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
	"github.com/ovenly/backend/pkg/logger"
)

// WebhookRateLimitPolicy bounds deliveries per client IP for one webhook surface.
// TrustedHops is the number of proxies in front of the API that append to
// X-Forwarded-For; zero keys on the socket address alone.
type WebhookRateLimitPolicy struct {
	Name        string
	Limit       int
	Window      time.Duration
	TrustedHops int
}

func (p WebhookRateLimitPolicy) enabled() bool {
	return p.Limit > 0 && p.Window > 0
}

func (p WebhookRateLimitPolicy) key(ip string) string {
	name := strings.ToLower(strings.TrimSpace(p.Name))
	if name == "" {
		name = "webhook"
	}
	return fmt.Sprintf("rl:webhook:%s:%s", name, ip)
}

// WebhookRateLimit rejects floods from a single address before the body is
// read. Limiter errors let the delivery through; losing a payment is worse
// than admitting a burst.
func WebhookRateLimit(policy WebhookRateLimitPolicy, limiter ratelimit.Limiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := clientIP(r, policy.TrustedHops)
			decision, err := limiter.Allow(ctx, policy.key(ip), policy.Limit, policy.Window)
			if err != nil {
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook.rate_limit.unavailable")
				}
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"ip":             ip,
						"policy":         policy.Name,
						"limit":          policy.Limit,
						"window_seconds": int(policy.Window.Seconds()),
					}), "webhook.rate_limit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many webhook deliveries").
					WithDetails(map[string]any{"retry_after_ms": decision.RetryAfterMs()}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP takes the X-Forwarded-For entry written by the outermost trusted
// proxy. Entries to its left come from the caller and are ignored.
func clientIP(r *http.Request, trustedHops int) string {
	if r == nil {
		return ""
	}
	if trustedHops > 0 {
		var hops []string
		for _, header := range r.Header.Values("X-Forwarded-For") {
			for _, part := range strings.Split(header, ",") {
				if ip := strings.TrimSpace(part); ip != "" {
					hops = append(hops, ip)
				}
			}
		}
		if len(hops) >= trustedHops {
			return hops[len(hops)-trustedHops]
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
