package config

const EnvPrefix = "RENTWISE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	MaxSweepBatchSize      = 25
	MaxCommissionBatchSize = 20
)

const (
	EnvAppEnv    = "RENTWISE_APP_ENV"
	EnvPort      = "RENTWISE_APP_PORT"
	EnvLogLevel  = "RENTWISE_LOG_LEVEL"
	EnvLogFormat = "RENTWISE_LOG_FORMAT"

	EnvCORSAllowedOrigins = "RENTWISE_CORS_ALLOWED_ORIGINS"

	EnvDBDSN    = "RENTWISE_DB_DSN"
	EnvDBDriver = "RENTWISE_DB_DRIVER"
	EnvDBHost   = "RENTWISE_DB_HOST"
	EnvDBUser   = "RENTWISE_DB_USER"
	EnvDBName   = "RENTWISE_DB_NAME"

	EnvRedisURL = "RENTWISE_REDIS_URL"

	EnvJWTSecret = "RENTWISE_JWT_SECRET"
	EnvJWTIssuer = "RENTWISE_JWT_ISSUER"

	EnvMobileMoneyBaseURL = "RENTWISE_MOBILE_MONEY_BASE_URL"
	EnvMobileMoneyAPIKey  = "RENTWISE_MOBILE_MONEY_API_KEY"

	EnvPaymentsPortalURL           = "RENTWISE_PAYMENTS_PORTAL_URL"
	EnvPaymentsSweepInterval       = "RENTWISE_PAYMENTS_SWEEP_INTERVAL"
	EnvPaymentsSweepBatchSize      = "RENTWISE_PAYMENTS_SWEEP_BATCH_SIZE"
	EnvPaymentsCommissionInterval  = "RENTWISE_PAYMENTS_COMMISSION_INTERVAL"
	EnvPaymentsCommissionBatchSize = "RENTWISE_PAYMENTS_COMMISSION_BATCH_SIZE"

	EnvGCPProjectID = "RENTWISE_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
