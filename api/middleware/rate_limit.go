package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/rentwise-payments/api/responses"
	pkgerrors "github.com/angelmondragon/rentwise-payments/pkg/errors"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
)

type windowCounter interface {
	AllowInWindow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// UserRateLimitPolicy throttles an authenticated surface per user.
type UserRateLimitPolicy struct {
	Name   string
	Limit  int64
	Window time.Duration
}

func (p UserRateLimitPolicy) enabled() bool {
	return p.Limit > 0 && p.Window > 0
}

func (p UserRateLimitPolicy) scope(userID string) string {
	name := p.Name
	if name == "" {
		name = "default"
	}
	return name + ":" + userID
}

// UserRateLimit enforces a fixed-window counter keyed by the authenticated user.
// It must run after Auth.
func UserRateLimit(policy UserRateLimitPolicy, store windowCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := UserIDFromContext(ctx)
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, count, err := store.AllowInWindow(ctx, policy.scope(userID), policy.Limit, policy.Window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if !allowed {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"policy":         policy.Name,
						"attempts":       count,
						"limit":          policy.Limit,
						"window_seconds": int(policy.Window.Seconds()),
					})
					logg.Warn(logCtx, "rate_limit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
