package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	Fees         FeesConfig
	Webhook      WebhookConfig
	Ledger       LedgerConfig
	RateLimit    RateLimitConfig
	Operator     OperatorConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"WILDROOTS_APP_ENV" required:"true"`
	Port         string `envconfig:"WILDROOTS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"WILDROOTS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WILDROOTS_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"WILDROOTS_LOG_FORMAT" default:"json"`
	PublicURL    string `envconfig:"WILDROOTS_PUBLIC_URL" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"WILDROOTS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"WILDROOTS_DB_DSN"`
	Driver string `envconfig:"WILDROOTS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"WILDROOTS_DB_HOST"`
	LegacyPort     int    `envconfig:"WILDROOTS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"WILDROOTS_DB_USER"`
	LegacyPassword string `envconfig:"WILDROOTS_DB_PASSWORD"`
	LegacyName     string `envconfig:"WILDROOTS_DB_NAME"`
	LegacySSLMode  string `envconfig:"WILDROOTS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WILDROOTS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WILDROOTS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WILDROOTS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WILDROOTS_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"WILDROOTS_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// IsSQLite reports whether the local sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"WILDROOTS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"WILDROOTS_REDIS_ADDR"`
	Password     string        `envconfig:"WILDROOTS_REDIS_PASSWORD"`
	DB           int           `envconfig:"WILDROOTS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WILDROOTS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WILDROOTS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WILDROOTS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WILDROOTS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WILDROOTS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"WILDROOTS_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"WILDROOTS_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	LedgerTopic     string `envconfig:"WILDROOTS_PUBSUB_LEDGER_TOPIC" default:"wr-ledger-events"`
	OperationsTopic string `envconfig:"WILDROOTS_PUBSUB_OPERATIONS_TOPIC" default:"wr-ledger-operations"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"WILDROOTS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"WILDROOTS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"WILDROOTS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"WILDROOTS_OUTBOX_RETENTION_DAYS" default:"30"`
}

type StripeConfig struct {
	APIKey            string `envconfig:"WILDROOTS_STRIPE_API_KEY"`
	Secret            string `envconfig:"WILDROOTS_STRIPE_SECRET"`
	Env               string `envconfig:"WILDROOTS_STRIPE_ENV" default:"test"`
	SuccessURL        string `envconfig:"WILDROOTS_STRIPE_SUCCESS_URL"`
	CancelURL         string `envconfig:"WILDROOTS_STRIPE_CANCEL_URL"`
	MaxNetworkRetries int64  `envconfig:"WILDROOTS_STRIPE_MAX_NETWORK_RETRIES" default:"2"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// FeesConfig holds the processor fee schedule used to estimate cover-fees surcharges.
type FeesConfig struct {
	PercentBasisPoints int64 `envconfig:"WILDROOTS_FEE_PERCENT_BPS" default:"290"`
	FixedCents         int64 `envconfig:"WILDROOTS_FEE_FIXED_CENTS" default:"30"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"WILDROOTS_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type LedgerConfig struct {
	ConsistencyInterval time.Duration `envconfig:"WILDROOTS_LEDGER_CONSISTENCY_INTERVAL" default:"1h"`
	ConsistencyBatch    int           `envconfig:"WILDROOTS_LEDGER_CONSISTENCY_BATCH" default:"200"`
}

// CronConfig sets how often the cron worker wakes to look for due jobs and
// how long any single job may run.
type CronConfig struct {
	Tick              time.Duration `envconfig:"WILDROOTS_CRON_TICK" default:"1m"`
	JobTimeout        time.Duration `envconfig:"WILDROOTS_CRON_JOB_TIMEOUT" default:"30m"`
	RetentionInterval time.Duration `envconfig:"WILDROOTS_CRON_RETENTION_INTERVAL" default:"24h"`
}

type RateLimitConfig struct {
	CheckoutWindow  time.Duration `envconfig:"WILDROOTS_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutIPLimit int           `envconfig:"WILDROOTS_RATE_LIMIT_CHECKOUT_IP_LIMIT" default:"20"`
}

// OperatorConfig gates the project owner-action endpoints. An empty token
// leaves them unmounted.
type OperatorConfig struct {
	Token string `envconfig:"WILDROOTS_OPERATOR_TOKEN"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
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
