package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "TUNETIDE_DB_DSN"
	EnvDBHost = "TUNETIDE_DB_HOST"
	EnvDBUser = "TUNETIDE_DB_USER"
	EnvDBName = "TUNETIDE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Stripe  StripeConfig
	Metrics MetricsConfig
	Escrow  EscrowConfig
	Outbox  OutboxConfig
	PubSub  PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Escrow.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TUNETIDE_APP_ENV" required:"true"`
	Port         string `envconfig:"TUNETIDE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TUNETIDE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TUNETIDE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"TUNETIDE_DB_DSN"`
	Driver string `envconfig:"TUNETIDE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TUNETIDE_DB_HOST"`
	LegacyPort     int    `envconfig:"TUNETIDE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TUNETIDE_DB_USER"`
	LegacyPassword string `envconfig:"TUNETIDE_DB_PASSWORD"`
	LegacyName     string `envconfig:"TUNETIDE_DB_NAME"`
	LegacySSLMode  string `envconfig:"TUNETIDE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TUNETIDE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TUNETIDE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TUNETIDE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TUNETIDE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"TUNETIDE_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TUNETIDE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TUNETIDE_REDIS_ADDR"`
	Password     string        `envconfig:"TUNETIDE_REDIS_PASSWORD"`
	DB           int           `envconfig:"TUNETIDE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TUNETIDE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TUNETIDE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TUNETIDE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TUNETIDE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TUNETIDE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// StripeConfig carries parallel test/live webhook secrets so both
// environments can be verified against during a key rotation.
type StripeConfig struct {
	APIKey            string        `envconfig:"TUNETIDE_STRIPE_API_KEY"`
	WebhookSecretTest string        `envconfig:"TUNETIDE_STRIPE_WEBHOOK_SECRET_TEST"`
	WebhookSecretLive string        `envconfig:"TUNETIDE_STRIPE_WEBHOOK_SECRET_LIVE"`
	Env               string        `envconfig:"TUNETIDE_STRIPE_ENV" default:"test"`
	IdempotencyTTL    time.Duration `envconfig:"TUNETIDE_STRIPE_IDEMPOTENCY_TTL" default:"720h"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// WebhookSecrets returns every configured signing secret, preferred
// environment first.
func (s StripeConfig) WebhookSecrets() []string {
	ordered := []string{s.WebhookSecretTest, s.WebhookSecretLive}
	if s.Environment() == "live" {
		ordered = []string{s.WebhookSecretLive, s.WebhookSecretTest}
	}
	secrets := make([]string, 0, len(ordered))
	for _, secret := range ordered {
		if strings.TrimSpace(secret) != "" {
			secrets = append(secrets, strings.TrimSpace(secret))
		}
	}
	return secrets
}

type MetricsConfig struct {
	CacheTTL time.Duration `envconfig:"TUNETIDE_METRICS_CACHE_TTL" default:"5m"`
}

type EscrowConfig struct {
	PlatformSharePercent int `envconfig:"TUNETIDE_ESCROW_PLATFORM_SHARE_PERCENT" default:"30"`
}

func (e EscrowConfig) validate() error {
	if e.PlatformSharePercent < 0 || e.PlatformSharePercent > 100 {
		return fmt.Errorf("platform share must be 0-100, got %d", e.PlatformSharePercent)
	}
	return nil
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TUNETIDE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TUNETIDE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TUNETIDE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type PubSubConfig struct {
	ProjectID       string `envconfig:"TUNETIDE_GCP_PROJECT_ID"`
	CredentialsFile string `envconfig:"TUNETIDE_GCP_CREDENTIALS_FILE"`
	EventsTopic     string `envconfig:"TUNETIDE_PUBSUB_EVENTS_TOPIC" default:"tt-platform-events"`
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
