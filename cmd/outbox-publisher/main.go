package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/rentwise-payments/internal/bootstrap"
	"github.com/angelmondragon/rentwise-payments/pkg/outbox"
	"github.com/angelmondragon/rentwise-payments/pkg/outbox/registry"
	"github.com/angelmondragon/rentwise-payments/pkg/pubsub"
)

func main() {
	proc := bootstrap.Start("outbox-publisher")
	defer proc.Close()
	cfg, logg := proc.Config, proc.Logger

	ctx, stop := proc.SignalContext()
	defer stop()

	dbClient := proc.Database(ctx)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	proc.Must("connect pubsub", err)
	proc.OnClose("pubsub", pubsubClient.Close)

	routes, err := registry.NewEventRegistry(cfg.PubSub)
	proc.Must("event registry", err)

	service, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		PubSub:   pubsubClient,
		Store:    outbox.NewStore(dbClient.DB()),
		Registry: routes,
	})
	proc.Must("outbox publisher", err)

	logg.Info(ctx, "outbox publisher running")
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		proc.Must("publish loop", err)
	}
	logg.Info(ctx, "outbox publisher stopped")
}
