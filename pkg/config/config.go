package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "GRAINHUB"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "GRAINHUB_APP_ENV"
	EnvPort         = "GRAINHUB_APP_PORT"
	EnvDBDSN        = "GRAINHUB_DB_DSN"
	EnvDBHost       = "GRAINHUB_DB_HOST"
	EnvDBUser       = "GRAINHUB_DB_USER"
	EnvDBName       = "GRAINHUB_DB_NAME"
	EnvRedisURL     = "GRAINHUB_REDIS_URL"
	EnvJWTSecret    = "GRAINHUB_JWT_SECRET"
	EnvJWTIssuer    = "GRAINHUB_JWT_ISSUER"
	EnvGCPProjectID = "GRAINHUB_GCP_PROJECT_ID"
	EnvEventsTopic  = "GRAINHUB_PUBSUB_EVENTS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Visibility   VisibilityConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	HTTP         HTTPConfig
	RateLimit    RateLimitConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GRAINHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"GRAINHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GRAINHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GRAINHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"GRAINHUB_DB_DSN"`
	Driver string `envconfig:"GRAINHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GRAINHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"GRAINHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GRAINHUB_DB_USER"`
	LegacyPassword string `envconfig:"GRAINHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"GRAINHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"GRAINHUB_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"GRAINHUB_SQLITE_PATH" default:"grainhub.db"`

	MaxOpenConns    int           `envconfig:"GRAINHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GRAINHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GRAINHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GRAINHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GRAINHUB_REDIS_URL"`
	Address      string        `envconfig:"GRAINHUB_REDIS_ADDR"`
	Password     string        `envconfig:"GRAINHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"GRAINHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GRAINHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GRAINHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GRAINHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GRAINHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GRAINHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// JWTConfig holds the verification side of the access tokens minted by the
// identity service. Tokens are never issued here.
type JWTConfig struct {
	Secret            string `envconfig:"GRAINHUB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"GRAINHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"GRAINHUB_JWT_EXPIRATION_MINUTES" default:"60"`
	RequireSession    bool   `envconfig:"GRAINHUB_JWT_REQUIRE_SESSION" default:"false"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GRAINHUB_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GRAINHUB_AUTO_MIGRATE" default:"false"`
}

type VisibilityConfig struct {
	DefaultPageSize int `envconfig:"GRAINHUB_VISIBILITY_DEFAULT_PAGE_SIZE" default:"10"`
	MaxPageSize     int `envconfig:"GRAINHUB_VISIBILITY_MAX_PAGE_SIZE" default:"100"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GRAINHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GRAINHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GRAINHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"GRAINHUB_CRON_INTERVAL" default:"1h"`
	OutboxRetentionDays int           `envconfig:"GRAINHUB_OUTBOX_RETENTION_DAYS" default:"14"`
}

type HTTPConfig struct {
	CORSAllowedOrigins []string      `envconfig:"GRAINHUB_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	ReadTimeout        time.Duration `envconfig:"GRAINHUB_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout       time.Duration `envconfig:"GRAINHUB_HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout    time.Duration `envconfig:"GRAINHUB_HTTP_SHUTDOWN_TIMEOUT" default:"20s"`
}

// RateLimitConfig throttles the write endpoints. A zero window disables it.
type RateLimitConfig struct {
	ActionWindow    time.Duration `envconfig:"GRAINHUB_RATE_LIMIT_ACTION_WINDOW" default:"1m"`
	ActionUserLimit int           `envconfig:"GRAINHUB_RATE_LIMIT_ACTION_USER_LIMIT" default:"60"`
	ActionIPLimit   int           `envconfig:"GRAINHUB_RATE_LIMIT_ACTION_IP_LIMIT" default:"300"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"GRAINHUB_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	EventsTopic string `envconfig:"GRAINHUB_PUBSUB_EVENTS_TOPIC" default:"grainhub-transaction-events"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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
