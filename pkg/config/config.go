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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Midtrans     MidtransConfig
	Rental       RentalConfig
	Webhooks     WebhookConfig
	FeatureFlags FeatureFlagsConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Midtrans.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CINERENT_APP_ENV" required:"true"`
	Port         string `envconfig:"CINERENT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CINERENT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CINERENT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CINERENT_DB_DSN"`
	Driver string `envconfig:"CINERENT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CINERENT_DB_HOST"`
	LegacyPort     int    `envconfig:"CINERENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CINERENT_DB_USER"`
	LegacyPassword string `envconfig:"CINERENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"CINERENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"CINERENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CINERENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CINERENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CINERENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CINERENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQueryThreshold enables GORM slow-query warnings when positive.
	SlowQueryThreshold time.Duration `envconfig:"CINERENT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CINERENT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CINERENT_REDIS_ADDR"`
	Password     string        `envconfig:"CINERENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"CINERENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CINERENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CINERENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CINERENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CINERENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CINERENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CINERENT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CINERENT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CINERENT_JWT_EXPIRATION_MINUTES" default:"60"`
}

// MidtransConfig points the charge client at the sandbox or production core API.
type MidtransConfig struct {
	BaseURL   string        `envconfig:"CINERENT_MIDTRANS_BASE_URL" default:"https://api.sandbox.midtrans.com"`
	ServerKey string        `envconfig:"CINERENT_MIDTRANS_SERVER_KEY" required:"true"`
	Timeout   time.Duration `envconfig:"CINERENT_MIDTRANS_TIMEOUT" default:"15s"`
}

func (m MidtransConfig) validate() error {
	if strings.TrimSpace(m.ServerKey) == "" {
		return fmt.Errorf("%s is required", EnvMidtransServerKey)
	}
	if m.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvMidtransTimeout)
	}
	if _, err := url.ParseRequestURI(m.BaseURL); err != nil {
		return fmt.Errorf("%s invalid: %w", EnvMidtransBaseURL, err)
	}
	return nil
}

type RentalConfig struct {
	LateFeePerDay int64         `envconfig:"CINERENT_RENTAL_LATE_FEE_PER_DAY" default:"5000"`
	PendingTTL    time.Duration `envconfig:"CINERENT_RENTAL_PENDING_TTL" default:"24h"`
}

type WebhookConfig struct {
	ReplayTTL time.Duration `envconfig:"CINERENT_WEBHOOK_REPLAY_TTL" default:"72h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CINERENT_AUTO_MIGRATE" default:"false"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"CINERENT_CRON_INTERVAL" default:"5m"`
	JobTimeout time.Duration `envconfig:"CINERENT_CRON_JOB_TIMEOUT" default:"2m"`
	LockTTL    time.Duration `envconfig:"CINERENT_CRON_LOCK_TTL" default:"15m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CINERENT_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"CINERENT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	RentalsTopic string `envconfig:"CINERENT_PUBSUB_RENTALS_TOPIC" default:"cinerent-rental-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CINERENT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CINERENT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CINERENT_OUTBOX_MAX_ATTEMPTS" default:"10"`

	Retention time.Duration `envconfig:"CINERENT_OUTBOX_RETENTION" default:"720h"`
	// MetricsAddr, when set, serves the publisher's Prometheus metrics.
	MetricsAddr string `envconfig:"CINERENT_OUTBOX_METRICS_ADDR"`
}

// PollInterval converts the millisecond setting into a duration, falling back to 500ms.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
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
