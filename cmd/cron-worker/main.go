package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/rentwise-payments/internal/bootstrap"
	"github.com/angelmondragon/rentwise-payments/internal/commissions"
	"github.com/angelmondragon/rentwise-payments/internal/cron"
	"github.com/angelmondragon/rentwise-payments/internal/payments"
	"github.com/angelmondragon/rentwise-payments/pkg/metrics"
	"github.com/angelmondragon/rentwise-payments/pkg/outbox"
)

func main() {
	once := flag.Bool("once", false, "run the selected jobs a single time and exit")
	only := flag.String("job", "", "comma-separated job names (payment-reconcile, commission-payout, outbox-retention); empty means all")
	flag.Parse()

	proc := bootstrap.Start("cron-worker")
	defer proc.Close()
	cfg, logg := proc.Config, proc.Logger

	ctx, stop := proc.SignalContext()
	defer stop()

	dbClient := proc.Database(ctx)
	redisClient := proc.Redis(ctx)

	conn := dbClient.DB()
	store := outbox.NewStore(conn)
	emitter := outbox.NewEmitter(store, logg)
	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)

	paymentRepo := payments.NewPaymentRepository(conn)
	syncer, err := payments.NewSyncer(payments.SyncerParams{
		DB:         dbClient,
		Payments:   paymentRepo,
		Dependents: payments.NewDependentRepository(conn),
		Outbox:     emitter,
		Metrics:    paymentMetrics,
		Logger:     logg,
	})
	proc.Must("payment syncer", err)

	sweep, err := cron.NewPaymentReconcileJob(cron.PaymentReconcileJobParams{
		Logger:    logg,
		Payments:  paymentRepo,
		Gateway:   proc.Gateway(),
		Syncer:    syncer,
		Metrics:   paymentMetrics,
		BatchSize: cfg.Payments.SweepBatchSize,
	})
	proc.Must("payment-reconcile job", err)

	commissionSvc, err := commissions.NewService(commissions.ServiceParams{
		DB:        dbClient,
		Repo:      commissions.NewRepository(conn),
		Outbox:    emitter,
		Logger:    logg,
		BatchSize: cfg.Payments.CommissionBatchSize,
	})
	proc.Must("commission service", err)
	payout, err := cron.NewCommissionPayoutJob(cron.CommissionPayoutJobParams{Logger: logg, Service: commissionSvc})
	proc.Must("commission-payout job", err)

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:    logg,
		DB:        dbClient,
		Store:     store,
		Retention: cfg.Outbox.RetentionDays,
	})
	proc.Must("outbox-retention job", err)

	registry := cron.NewRegistry(
		cron.Schedule{Job: sweep, Interval: cfg.Payments.SweepInterval},
		cron.Schedule{Job: payout, Interval: cfg.Payments.CommissionInterval},
		cron.Schedule{Job: retention, Interval: cfg.Outbox.RetentionInterval},
	)
	names := jobNames(*only)
	if len(names) > 0 {
		selected, err := registry.Select(names...)
		proc.Must("-job flag", err)
		registry = cron.NewRegistry(selected...)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Locks:    cron.RedisLocks(redisClient, cfg.App.Env),
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	proc.Must("cron service", err)

	if *once {
		logg.Info(ctx, "running cron jobs once")
		proc.Must("cron run", service.RunOnce(ctx))
		return
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	logg.Info(ctx, "cron worker running")
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		proc.Must("cron loop", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	logg.Info(ctx, "cron worker stopped")
}

func jobNames(raw string) []string {
	var names []string
	for part := range strings.SplitSeq(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
