// Package bootstrap is the startup sequence the api, cron-worker and
// outbox-publisher binaries share: env file, config, logger, and the
// database, Redis and gateway clients they all depend on.
package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/rentwise-payments/internal/payments"
	"github.com/angelmondragon/rentwise-payments/pkg/config"
	"github.com/angelmondragon/rentwise-payments/pkg/db"
	"github.com/angelmondragon/rentwise-payments/pkg/instance"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
	"github.com/angelmondragon/rentwise-payments/pkg/migrate"
	"github.com/angelmondragon/rentwise-payments/pkg/mobilemoney"
	"github.com/angelmondragon/rentwise-payments/pkg/redis"
)

type closer struct {
	name  string
	close func() error
}

// Process is one running binary. Clients opened through it are closed in
// reverse order by Close, and by Must before it exits.
type Process struct {
	Name    string
	Config  *config.Config
	Logger  *logger.Logger
	closers []closer
	exit    func(int)
}

// Start loads .env and config and builds the service logger. A bad config
// ends the process.
func Start(name string) *Process {
	p := &Process{Name: name, Logger: logger.New(logger.Options{ServiceName: name}), exit: os.Exit}
	if err := godotenv.Load(); err != nil {
		p.Logger.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	p.Must("load config", err)
	cfg.Service.Kind = name
	p.Config = cfg
	p.Logger = logger.New(logger.Options{
		ServiceName: name,
		InstanceID:  instance.GetID(),
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	return p
}

// Must logs err, closes what was opened and exits non-zero. nil is a no-op.
func (p *Process) Must(step string, err error) {
	if err == nil {
		return
	}
	p.Logger.Error(context.Background(), step+" failed", err)
	p.Close()
	p.exit(1)
}

// Database connects, then brings the schema up: goose for a dev postgres with
// auto-migrate on, gorm AutoMigrate for sqlite.
func (p *Process) Database(ctx context.Context) *db.Client {
	client, err := db.New(ctx, p.Config.DB, p.Logger)
	p.Must("connect database", err)
	p.onClose("database", client.Close)

	p.Must("dev migrations", migrate.MaybeRunDev(ctx, p.Config, p.Logger, client))
	if p.Config.DB.IsSQLite() {
		p.Must("sqlite schema", payments.AutoMigrate(client.DB()))
	}
	return client
}

func (p *Process) Redis(ctx context.Context) *redis.Client {
	client, err := redis.New(ctx, p.Config.Redis, p.Logger)
	p.Must("connect redis", err)
	p.onClose("redis", client.Close)
	return client
}

func (p *Process) Gateway() *mobilemoney.Client {
	mm := p.Config.MobileMoney
	client, err := mobilemoney.NewClient(mm.APIKey, mm.BaseURL, mobilemoney.WithTimeout(mm.Timeout))
	p.Must("mobile money client", err)
	return client
}

// OnClose registers a client opened outside Process.
func (p *Process) OnClose(name string, fn func() error) {
	p.onClose(name, fn)
}

func (p *Process) onClose(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, close: fn})
}

// Close is safe to call more than once.
func (p *Process) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.close(); err != nil {
			p.Logger.Error(p.Logger.WithField(context.Background(), "client", c.name), "close failed", err)
		}
	}
	p.closers = nil
}

// SignalContext is canceled on SIGINT or SIGTERM and carries the env and
// service kind on every log line.
func (p *Process) SignalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return p.Logger.WithFields(ctx, map[string]any{
		"env":         p.Config.App.Env,
		"serviceKind": p.Name,
	}), stop
}
