package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/rentwise-payments/internal/payments"
	"github.com/angelmondragon/rentwise-payments/pkg/config"
	"github.com/angelmondragon/rentwise-payments/pkg/db"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
	"github.com/angelmondragon/rentwise-payments/pkg/migrate"
)

func main() {
	cmd := flag.String("cmd", "up", "up | down | status")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cfg, err := config.Load()
	exitOn(logg, "load config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(logg, "connect database", err)
	defer dbClient.Close()

	if cfg.DB.IsSQLite() {
		if *cmd != "up" {
			exitOn(logg, "sqlite", fmt.Errorf("only -cmd=up is supported, got %q", *cmd))
		}
		exitOn(logg, "sqlite auto-migrate", payments.AutoMigrate(dbClient.DB()))
		logg.Info(ctx, "sqlite schema migrated")
		return
	}

	sqlDB, err := dbClient.DB().DB()
	exitOn(logg, "open sql.DB", err)
	migrator, err := migrate.New(sqlDB)
	exitOn(logg, "build migrator", err)

	switch *cmd {
	case "up":
		applied, err := migrator.Up(ctx)
		exitOn(logg, "migrate up", err)
		logg.Info(logg.WithField(ctx, "applied", applied), "schema up to date")
	case "down":
		file, err := migrator.Down(ctx)
		exitOn(logg, "migrate down", err)
		logg.Info(logg.WithField(ctx, "rolled_back", file), "migration rolled back")
	case "status":
		states, err := migrator.Status(ctx)
		exitOn(logg, "migrate status", err)
		for _, s := range states {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			fmt.Printf("%-8s %s\n", state, s.File)
		}
	default:
		exitOn(logg, "parse flags", fmt.Errorf("unknown -cmd %q", *cmd))
	}
}

func exitOn(logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), step+" failed", err)
	os.Exit(1)
}
