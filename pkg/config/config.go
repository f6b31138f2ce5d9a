package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	Service     ServiceConfig
	DB          DBConfig
	Redis       RedisConfig
	JWT         JWTConfig
	FeatureFlag FeatureFlagsConfig
	MobileMoney MobileMoneyConfig
	Payments    PaymentsConfig
	Eventing    EventingConfig
	GCP         GCPConfig
	PubSub      PubSubConfig
	Outbox      OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the payment pipeline cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.DB.Driver) {
	case DBDriverPostgres, DBDriverSQLite:
	default:
		return fmt.Errorf("%s must be one of %s|%s, got %q", EnvDBDriver, DBDriverPostgres, DBDriverSQLite, c.DB.Driver)
	}
	if c.Payments.SweepInterval <= 0 {
		return fmt.Errorf("%s must be positive", EnvPaymentsSweepInterval)
	}
	if c.Payments.SweepBatchSize <= 0 || c.Payments.SweepBatchSize > MaxSweepBatchSize {
		return fmt.Errorf("%s must be between 1 and %d", EnvPaymentsSweepBatchSize, MaxSweepBatchSize)
	}
	if c.Payments.CommissionInterval <= 0 {
		return fmt.Errorf("%s must be positive", EnvPaymentsCommissionInterval)
	}
	if c.Payments.CommissionBatchSize <= 0 || c.Payments.CommissionBatchSize > MaxCommissionBatchSize {
		return fmt.Errorf("%s must be between 1 and %d", EnvPaymentsCommissionBatchSize, MaxCommissionBatchSize)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"RENTWISE_APP_ENV" required:"true"`
	Port         string `envconfig:"RENTWISE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"RENTWISE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RENTWISE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"RENTWISE_LOG_FORMAT" default:"json"`

	CORSAllowedOrigins []string `envconfig:"RENTWISE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"RENTWISE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"RENTWISE_DB_DSN"`
	Driver string `envconfig:"RENTWISE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RENTWISE_DB_HOST"`
	LegacyPort     int    `envconfig:"RENTWISE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RENTWISE_DB_USER"`
	LegacyPassword string `envconfig:"RENTWISE_DB_PASSWORD"`
	LegacyName     string `envconfig:"RENTWISE_DB_NAME"`
	LegacySSLMode  string `envconfig:"RENTWISE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RENTWISE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RENTWISE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RENTWISE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RENTWISE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQuery is the duration above which a statement is logged at warn.
	SlowQuery time.Duration `envconfig:"RENTWISE_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the local sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"RENTWISE_REDIS_URL"`
	Address      string        `envconfig:"RENTWISE_REDIS_ADDR"`
	Password     string        `envconfig:"RENTWISE_REDIS_PASSWORD"`
	DB           int           `envconfig:"RENTWISE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RENTWISE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RENTWISE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RENTWISE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RENTWISE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RENTWISE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the verification settings for tokens minted by the identity service.
type JWTConfig struct {
	Secret string `envconfig:"RENTWISE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"RENTWISE_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"RENTWISE_AUTO_MIGRATE" default:"false"`
}

type MobileMoneyConfig struct {
	BaseURL       string        `envconfig:"RENTWISE_MOBILE_MONEY_BASE_URL" required:"true"`
	APIKey        string        `envconfig:"RENTWISE_MOBILE_MONEY_API_KEY"`
	WebhookSecret string        `envconfig:"RENTWISE_MOBILE_MONEY_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"RENTWISE_MOBILE_MONEY_TIMEOUT" default:"15s"`
}

type PaymentsConfig struct {
	PortalURL           string        `envconfig:"RENTWISE_PAYMENTS_PORTAL_URL"`
	DefaultCurrency     string        `envconfig:"RENTWISE_PAYMENTS_DEFAULT_CURRENCY" default:"ZMW"`
	SweepInterval       time.Duration `envconfig:"RENTWISE_PAYMENTS_SWEEP_INTERVAL" default:"15m"`
	SweepBatchSize      int           `envconfig:"RENTWISE_PAYMENTS_SWEEP_BATCH_SIZE" default:"25"`
	CommissionInterval  time.Duration `envconfig:"RENTWISE_PAYMENTS_COMMISSION_INTERVAL" default:"24h"`
	CommissionBatchSize int           `envconfig:"RENTWISE_PAYMENTS_COMMISSION_BATCH_SIZE" default:"20"`
	CheckRateLimit      int64         `envconfig:"RENTWISE_PAYMENTS_CHECK_RATE_LIMIT" default:"10"`
	CheckRateWindow     time.Duration `envconfig:"RENTWISE_PAYMENTS_CHECK_RATE_WINDOW" default:"1m"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"RENTWISE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"RENTWISE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	PaymentsTopic    string `envconfig:"RENTWISE_PUBSUB_PAYMENTS_TOPIC" default:"rw-payment-events"`
	CommissionsTopic string `envconfig:"RENTWISE_PUBSUB_COMMISSIONS_TOPIC" default:"rw-commission-payouts"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"RENTWISE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"RENTWISE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"RENTWISE_OUTBOX_MAX_ATTEMPTS" default:"10"`

	RetentionDays     int           `envconfig:"RENTWISE_OUTBOX_RETENTION_DAYS" default:"30"`
	RetentionInterval time.Duration `envconfig:"RENTWISE_OUTBOX_RETENTION_INTERVAL" default:"24h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:rentwise.db?cache=shared"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
