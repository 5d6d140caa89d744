package config

const EnvPrefix = "OVENLY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
	// AppEnvProduction is accepted as an alias of AppEnvProd.
	AppEnvProduction = "production"
)

const (
	EnvAppEnv   = "OVENLY_APP_ENV"
	EnvPort     = "OVENLY_APP_PORT"
	EnvLogLevel = "OVENLY_LOG_LEVEL"

	EnvDBDSN  = "OVENLY_DB_DSN"
	EnvDBHost = "OVENLY_DB_HOST"
	EnvDBUser = "OVENLY_DB_USER"
	EnvDBName = "OVENLY_DB_NAME"

	EnvRedisURL = "OVENLY_REDIS_URL"

	EnvJWTSecret  = "OVENLY_JWT_SECRET"
	EnvJWTIssuer  = "OVENLY_JWT_ISSUER"
	EnvJWTExpMins = "OVENLY_JWT_EXPIRATION_MINUTES"

	EnvWebhookSharedSecret = "OVENLY_WEBHOOK_SHARED_SECRET"
	EnvWebhookHMACSecret   = "OVENLY_WEBHOOK_HMAC_SECRET"
	EnvWebhookFailClosed   = "OVENLY_WEBHOOK_FAIL_CLOSED"

	EnvIdempotencyTTL = "OVENLY_IDEMPOTENCY_TTL"

	EnvReconcileBatchSize       = "OVENLY_RECONCILE_BATCH_SIZE"
	EnvReconcileLookbackMinutes = "OVENLY_RECONCILE_LOOKBACK_MINUTES"

	EnvOrdersRateLimitBackend = "OVENLY_ORDERS_RATE_LIMIT_BACKEND"
	EnvOrdersBusyMode         = "OVENLY_ORDERS_BUSY_MODE"

	EnvMpesaConsumerKey    = "OVENLY_MPESA_CONSUMER_KEY"
	EnvMpesaConsumerSecret = "OVENLY_MPESA_CONSUMER_SECRET"
	EnvMpesaShortCode      = "OVENLY_MPESA_SHORTCODE"
	EnvMpesaPassKey        = "OVENLY_MPESA_PASSKEY"
	EnvMpesaCallbackURL    = "OVENLY_MPESA_CALLBACK_URL"

	EnvGCPProjectID      = "OVENLY_GCP_PROJECT_ID"
	EnvPubSubAlertsTopic = "OVENLY_PUBSUB_ALERTS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
