package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/rentwise-payments/api/routes"
	"github.com/angelmondragon/rentwise-payments/internal/bootstrap"
	"github.com/angelmondragon/rentwise-payments/internal/checkout"
	"github.com/angelmondragon/rentwise-payments/internal/payments"
	"github.com/angelmondragon/rentwise-payments/internal/reconcile"
	mobilemoneywebhook "github.com/angelmondragon/rentwise-payments/internal/webhooks/mobilemoney"
	"github.com/angelmondragon/rentwise-payments/pkg/metrics"
	"github.com/angelmondragon/rentwise-payments/pkg/outbox"
)

const shutdownTimeout = 15 * time.Second

func main() {
	proc := bootstrap.Start("api")
	defer proc.Close()
	cfg, logg := proc.Config, proc.Logger

	ctx, stop := proc.SignalContext()
	defer stop()

	dbClient := proc.Database(ctx)
	redisClient := proc.Redis(ctx)
	gateway := proc.Gateway()

	conn := dbClient.DB()
	emitter := outbox.NewEmitter(outbox.NewStore(conn), logg)
	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	paymentRepo := payments.NewPaymentRepository(conn)
	dependentRepo := payments.NewDependentRepository(conn)

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		DB:         dbClient,
		Payments:   paymentRepo,
		Dependents: dependentRepo,
		Gateway:    gateway,
		Outbox:     emitter,
		Metrics:    paymentMetrics,
		Logger:     logg,
		Config:     cfg.Payments,
	})
	proc.Must("checkout service", err)

	syncer, err := payments.NewSyncer(payments.SyncerParams{
		DB:         dbClient,
		Payments:   paymentRepo,
		Dependents: dependentRepo,
		Outbox:     emitter,
		Metrics:    paymentMetrics,
		Logger:     logg,
	})
	proc.Must("payment syncer", err)

	reconcileService, err := reconcile.NewService(reconcile.ServiceParams{
		Payments:   paymentRepo,
		Dependents: dependentRepo,
		Gateway:    gateway,
		Syncer:     syncer,
		Logger:     logg,
	})
	proc.Must("reconcile service", err)

	webhookService, err := mobilemoneywebhook.NewService(mobilemoneywebhook.ServiceParams{
		Reconciler: reconcileService,
		Logger:     logg,
	})
	proc.Must("webhook service", err)
	webhookGuard, err := mobilemoneywebhook.NewEventGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL)
	proc.Must("webhook guard", err)

	// Cloud Run injects PORT; it wins over the configured one.
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	ctx = logg.WithField(ctx, "addr", ":"+port)

	server := &http.Server{
		Addr: ":" + port,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient,
			checkoutService, reconcileService, webhookService, webhookGuard, promhttp.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "api listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			proc.Must("serve", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api shutdown incomplete", err)
		}
		logg.Info(ctx, "api stopped")
	}
}
