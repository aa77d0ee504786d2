package config

const (
	EnvPrefix = "WILDROOTS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv     = "WILDROOTS_APP_ENV"
	EnvPort       = "WILDROOTS_APP_PORT"
	EnvLogLevel   = "WILDROOTS_LOG_LEVEL"
	EnvDBDSN      = "WILDROOTS_DB_DSN"
	EnvDBDriver   = "WILDROOTS_DB_DRIVER"
	EnvDBHost     = "WILDROOTS_DB_HOST"
	EnvDBPort     = "WILDROOTS_DB_PORT"
	EnvDBUser     = "WILDROOTS_DB_USER"
	EnvDBPassword = "WILDROOTS_DB_PASSWORD"
	EnvDBName     = "WILDROOTS_DB_NAME"
	EnvRedisURL   = "WILDROOTS_REDIS_URL"

	EnvGCPProjectID        = "WILDROOTS_GCP_PROJECT_ID"
	EnvPubSubLedgerTopic   = "WILDROOTS_PUBSUB_LEDGER_TOPIC"
	EnvStripeAPIKey        = "WILDROOTS_STRIPE_API_KEY"
	EnvStripeSecret        = "WILDROOTS_STRIPE_SECRET"
	EnvFeePercentBPS       = "WILDROOTS_FEE_PERCENT_BPS"
	EnvFeeFixedCents       = "WILDROOTS_FEE_FIXED_CENTS"
	EnvWebhookIdemTTL      = "WILDROOTS_WEBHOOK_IDEMPOTENCY_TTL"
	EnvConsistencyInterval = "WILDROOTS_LEDGER_CONSISTENCY_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
