package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App            AppConfig
	Service        ServiceConfig
	DB             DBConfig
	Redis          RedisConfig
	JWT            JWTConfig
	FeatureFlags   FeatureFlagsConfig
	Webhook        WebhookConfig
	Idempotency    IdempotencyConfig
	Reconciliation ReconciliationConfig
	Orders         OrdersConfig
	Mpesa          MpesaConfig
	GCP            GCPConfig
	PubSub         PubSubConfig
	Maps           MapsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Orders.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"OVENLY_APP_ENV" required:"true"`
	Port         string   `envconfig:"OVENLY_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"OVENLY_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"OVENLY_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"OVENLY_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"OVENLY_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, AppEnvProduction)
}

type ServiceConfig struct {
	Kind string `envconfig:"OVENLY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"OVENLY_DB_DSN"`

	// SlowQuery is the duration past which a statement is logged at warn.
	SlowQuery time.Duration `envconfig:"OVENLY_DB_SLOW_QUERY" default:"500ms"`

	LegacyHost     string `envconfig:"OVENLY_DB_HOST"`
	LegacyPort     int    `envconfig:"OVENLY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"OVENLY_DB_USER"`
	LegacyPassword string `envconfig:"OVENLY_DB_PASSWORD"`
	LegacyName     string `envconfig:"OVENLY_DB_NAME"`
	LegacySSLMode  string `envconfig:"OVENLY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"OVENLY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"OVENLY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"OVENLY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"OVENLY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"OVENLY_REDIS_URL"`
	Address      string        `envconfig:"OVENLY_REDIS_ADDR"`
	Password     string        `envconfig:"OVENLY_REDIS_PASSWORD"`
	DB           int           `envconfig:"OVENLY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"OVENLY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"OVENLY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"OVENLY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"OVENLY_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"OVENLY_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// JWTConfig covers the staff bearer tokens issued by the back-office login.
type JWTConfig struct {
	Secret            string `envconfig:"OVENLY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"OVENLY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"OVENLY_JWT_EXPIRATION_MINUTES" default:"720"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"OVENLY_AUTO_MIGRATE" default:"false"`
}

type WebhookConfig struct {
	SharedSecret      string        `envconfig:"OVENLY_WEBHOOK_SHARED_SECRET"`
	HMACSecret        string        `envconfig:"OVENLY_WEBHOOK_HMAC_SECRET"`
	ForceFailClosed   bool          `envconfig:"OVENLY_WEBHOOK_FAIL_CLOSED" default:"false"`
	RateLimit         int           `envconfig:"OVENLY_WEBHOOK_RATE_LIMIT" default:"120"`
	RateWindow        time.Duration `envconfig:"OVENLY_WEBHOOK_RATE_WINDOW" default:"1m"`
	TrustedProxyHops  int           `envconfig:"OVENLY_WEBHOOK_TRUSTED_PROXY_HOPS" default:"1"`
	ProcessingTimeout time.Duration `envconfig:"OVENLY_WEBHOOK_PROCESSING_TIMEOUT" default:"8s"`
}

// FailClosed reports whether a missing secret must reject deliveries.
func (w WebhookConfig) FailClosed(app AppConfig) bool {
	return w.ForceFailClosed || app.IsProd()
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"OVENLY_IDEMPOTENCY_TTL" default:"15m"`
}

const (
	minReconcileBatch    = 1
	maxReconcileBatch    = 100
	minReconcileLookback = 10
	maxReconcileLookback = 1440
)

type ReconciliationConfig struct {
	BatchSize       int           `envconfig:"OVENLY_RECONCILE_BATCH_SIZE" default:"25"`
	LookbackMinutes int           `envconfig:"OVENLY_RECONCILE_LOOKBACK_MINUTES" default:"360"`
	MinAge          time.Duration `envconfig:"OVENLY_RECONCILE_MIN_AGE" default:"60s"`
	Interval        time.Duration `envconfig:"OVENLY_RECONCILE_INTERVAL" default:"2m"`
	QueryTimeout    time.Duration `envconfig:"OVENLY_RECONCILE_QUERY_TIMEOUT" default:"8s"`
}

// Batch returns the batch size clamped to 1..100.
func (r ReconciliationConfig) Batch() int {
	return clamp(r.BatchSize, 25, minReconcileBatch, maxReconcileBatch)
}

// Lookback returns the lookback window clamped to 10..1440 minutes.
func (r ReconciliationConfig) Lookback() time.Duration {
	minutes := clamp(r.LookbackMinutes, 360, minReconcileLookback, maxReconcileLookback)
	return time.Duration(minutes) * time.Minute
}

func clamp(value, fallback, lo, hi int) int {
	if value == 0 {
		value = fallback
	}
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

type OrdersConfig struct {
	PhoneWindowLimit    int           `envconfig:"OVENLY_ORDERS_PHONE_LIMIT" default:"5"`
	PhoneWindow         time.Duration `envconfig:"OVENLY_ORDERS_PHONE_WINDOW" default:"1h"`
	BurstLimit          int           `envconfig:"OVENLY_ORDERS_BURST_LIMIT" default:"2"`
	BurstWindow         time.Duration `envconfig:"OVENLY_ORDERS_BURST_WINDOW" default:"30s"`
	BalancePushCooldown time.Duration `envconfig:"OVENLY_ORDERS_BALANCE_PUSH_COOLDOWN" default:"60s"`
	MinimumAmount       int64         `envconfig:"OVENLY_ORDERS_MINIMUM_AMOUNT" default:"100"`
	DepositPercent      int64         `envconfig:"OVENLY_ORDERS_DEPOSIT_PERCENT" default:"50"`
	BusyMode            bool          `envconfig:"OVENLY_ORDERS_BUSY_MODE" default:"false"`
	RateLimitBackend    string        `envconfig:"OVENLY_ORDERS_RATE_LIMIT_BACKEND" default:"memory"`
	NumberRetries       int           `envconfig:"OVENLY_ORDERS_NUMBER_RETRIES" default:"3"`
}

func (o OrdersConfig) validate() error {
	if o.DepositPercent <= 0 || o.DepositPercent > 100 {
		return fmt.Errorf("deposit percent must be within 1..100, got %d", o.DepositPercent)
	}
	switch strings.ToLower(strings.TrimSpace(o.RateLimitBackend)) {
	case "", RateLimitBackendMemory, RateLimitBackendRedis:
		return nil
	default:
		return fmt.Errorf("unsupported rate limit backend %q", o.RateLimitBackend)
	}
}

// UseRedisRateLimits reports whether limiter counters live in Redis.
func (o OrdersConfig) UseRedisRateLimits() bool {
	return strings.EqualFold(strings.TrimSpace(o.RateLimitBackend), RateLimitBackendRedis)
}

type MpesaConfig struct {
	BaseURL         string        `envconfig:"OVENLY_MPESA_BASE_URL" default:"https://sandbox.safaricom.co.ke"`
	ConsumerKey     string        `envconfig:"OVENLY_MPESA_CONSUMER_KEY"`
	ConsumerSecret  string        `envconfig:"OVENLY_MPESA_CONSUMER_SECRET"`
	ShortCode       string        `envconfig:"OVENLY_MPESA_SHORTCODE"`
	PassKey         string        `envconfig:"OVENLY_MPESA_PASSKEY"`
	CallbackURL     string        `envconfig:"OVENLY_MPESA_CALLBACK_URL"`
	TransactionType string        `envconfig:"OVENLY_MPESA_TRANSACTION_TYPE" default:"CustomerPayBillOnline"`
	Timeout         time.Duration `envconfig:"OVENLY_MPESA_TIMEOUT" default:"10s"`
}

// Enabled reports whether enough credentials are present to call Daraja.
func (m MpesaConfig) Enabled() bool {
	return m.ConsumerKey != "" && m.ConsumerSecret != "" && m.ShortCode != "" && m.PassKey != ""
}

type GCPConfig struct {
	ProjectID string `envconfig:"OVENLY_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	AlertsTopic string `envconfig:"OVENLY_PUBSUB_ALERTS_TOPIC"`
}

// MapsConfig enables place-id lookups for deliveries outside the named zones.
type MapsConfig struct {
	APIKey    string `envconfig:"OVENLY_GOOGLE_MAPS_API_KEY"`
	CacheSize int    `envconfig:"OVENLY_GOOGLE_MAPS_CACHE_SIZE" default:"512"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
