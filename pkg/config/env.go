package config

const EnvPrefix = "CINERENT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "CINERENT_APP_ENV"
	EnvPort         = "CINERENT_APP_PORT"
	EnvLogLevel     = "CINERENT_LOG_LEVEL"
	EnvLogWarnStack = "CINERENT_LOG_WARN_STACK"

	EnvDBDSN      = "CINERENT_DB_DSN"
	EnvDBHost     = "CINERENT_DB_HOST"
	EnvDBPort     = "CINERENT_DB_PORT"
	EnvDBUser     = "CINERENT_DB_USER"
	EnvDBPassword = "CINERENT_DB_PASSWORD"
	EnvDBName     = "CINERENT_DB_NAME"
	EnvDBSSLMode  = "CINERENT_DB_SSLMODE"

	EnvRedisURL = "CINERENT_REDIS_URL"

	EnvJWTSecret  = "CINERENT_JWT_SECRET"
	EnvJWTIssuer  = "CINERENT_JWT_ISSUER"
	EnvJWTExpMins = "CINERENT_JWT_EXPIRATION_MINUTES"

	EnvMidtransBaseURL   = "CINERENT_MIDTRANS_BASE_URL"
	EnvMidtransServerKey = "CINERENT_MIDTRANS_SERVER_KEY"
	EnvMidtransTimeout   = "CINERENT_MIDTRANS_TIMEOUT"

	EnvRentalLateFeePerDay = "CINERENT_RENTAL_LATE_FEE_PER_DAY"
	EnvRentalPendingTTL    = "CINERENT_RENTAL_PENDING_TTL"

	EnvGCPProjectID       = "CINERENT_GCP_PROJECT_ID"
	EnvPubSubRentalsTopic = "CINERENT_PUBSUB_RENTALS_TOPIC"
	EnvOutboxBatchSize    = "CINERENT_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvOutboxPollMS       = "CINERENT_OUTBOX_PUBLISH_POLL_MS"
	EnvOutboxMaxAttempts  = "CINERENT_OUTBOX_MAX_ATTEMPTS"
	EnvCronInterval       = "CINERENT_CRON_INTERVAL"
	EnvWebhookReplayTTL   = "CINERENT_WEBHOOK_REPLAY_TTL"
	EnvFeatureAutoMigrate = "CINERENT_AUTO_MIGRATE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
