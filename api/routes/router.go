package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/rentwise-payments/api/controllers"
	webhookcontrollers "github.com/angelmondragon/rentwise-payments/api/controllers/webhooks"
	"github.com/angelmondragon/rentwise-payments/api/middleware"
	checkoutsvc "github.com/angelmondragon/rentwise-payments/internal/checkout"
	reconcilesvc "github.com/angelmondragon/rentwise-payments/internal/reconcile"
	"github.com/angelmondragon/rentwise-payments/pkg/config"
	"github.com/angelmondragon/rentwise-payments/pkg/db"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
)

// redisStore is the slice of pkg/redis.Client the HTTP surface needs.
type redisStore interface {
	LoadReplay(ctx context.Context, scope, idempotencyKey string) ([]byte, bool, error)
	StoreReplay(ctx context.Context, scope, idempotencyKey string, payload []byte, ttl time.Duration) (bool, error)
	AllowInWindow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

const subscriptionCheckPolicy = "subscription-check"

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient redisStore,
	checkoutService checkoutsvc.Service,
	reconcileService reconcilesvc.Service,
	webhookService webhookcontrollers.MobileMoneyWebhookService,
	webhookGuard webhookGuard,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.Dependency{Name: "postgres", Pinger: dbP},
			controllers.Dependency{Name: "redis", Pinger: redisClient},
		))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/mobile-money", webhookcontrollers.MobileMoneyWebhook(webhookService, cfg.MobileMoney.WebhookSecret, webhookGuard, logg))
	})

	checkPolicy := middleware.UserRateLimitPolicy{
		Name:   subscriptionCheckPolicy,
		Limit:  cfg.Payments.CheckRateLimit,
		Window: cfg.Payments.CheckRateWindow,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.CheckoutIdempotency(redisClient, logg))

		r.Route("/payments", func(r chi.Router) {
			r.Post("/checkout", controllers.SubscriptionCheckout(checkoutService, logg))
			r.Post("/partner-checkout", controllers.PartnerCheckout(checkoutService, logg))
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.With(middleware.UserRateLimit(checkPolicy, redisClient, logg)).Post("/check", controllers.CheckSubscription(reconcileService, logg))
		})
	})

	return r
}
