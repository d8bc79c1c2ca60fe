// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Session store backends selectable with SESSION_STORE.
const (
	SessionStoreMongo  = "mongo"
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"
)

// Mail providers selectable with MAIL_PROVIDER.
const (
	MailProviderLog       = "log"
	MailProviderSparkPost = "sparkpost"
	MailProviderSES       = "ses"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// Env is the application environment ("development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level (debug, info, warn, error); empty uses the env preset.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// ServiceName is reported to OpenTelemetry and used as the telemetry event source.
	ServiceName string `mapstructure:"SERVICE_NAME"`

	// HTTPAddr is the address the HTTP server listens on (e.g. :8051).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// APIRoot is the path prefix all routes are mounted under.
	APIRoot string `mapstructure:"API_ROOT"`

	// DatabaseURL is the Postgres DSN for users and grants.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// SessionStore selects the session backend: mongo, redis or memory.
	SessionStore string `mapstructure:"SESSION_STORE"`
	// MongoURI is the MongoDB connection string (sessions and audit events).
	MongoURI string `mapstructure:"MONGO_URI"`
	// MongoDatabase is the MongoDB database name.
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`
	// MongoSessionCollection holds device sessions.
	MongoSessionCollection string `mapstructure:"MONGO_SESSION_COLLECTION"`
	// MongoAuditCollection holds auth audit events.
	MongoAuditCollection string `mapstructure:"MONGO_AUDIT_COLLECTION"`
	// RedisURL is the redis:// URL used when SESSION_STORE=redis.
	RedisURL string `mapstructure:"REDIS_URL"`
	// StoreTimeout bounds every session store, grant and user lookup (e.g. "5s").
	StoreTimeout string `mapstructure:"STORE_TIMEOUT"`

	// SessionHeaderName is the request header carrying "Bearer <access token>".
	SessionHeaderName string `mapstructure:"SESSION_HEADER_NAME"`
	// UpdateGrantsOnRefresh re-resolves grants on every token refresh when true.
	UpdateGrantsOnRefresh bool `mapstructure:"UPDATE_GRANTS_ON_REFRESH"`
	// RouteGrants lists grants required per route: "GET /users/me=users.read,users.admin;POST /x=y".
	RouteGrants string `mapstructure:"ROUTE_GRANTS"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim of access tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim of access tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the session (refresh token) lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31).
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// MailProvider selects the outbound mail adapter: log, sparkpost or ses.
	MailProvider string `mapstructure:"MAIL_PROVIDER"`
	// MailFrom is the sender address of notification mails.
	MailFrom string `mapstructure:"MAIL_FROM"`
	// MailTimeout bounds a single send (e.g. "15s").
	MailTimeout string `mapstructure:"MAIL_TIMEOUT"`
	// SparkPostAPIKey authenticates against the SparkPost transmissions API.
	SparkPostAPIKey string `mapstructure:"SPARKPOST_API_KEY"`
	// SparkPostBaseURL is the SparkPost API base (default https://api.sparkpost.com/api/v1).
	SparkPostBaseURL string `mapstructure:"SPARKPOST_BASE_URL"`
	// AWSRegion is the SES region.
	AWSRegion string `mapstructure:"AWS_REGION"`
	// AWSAccessKeyID and AWSSecretAccessKey are optional static SES credentials;
	// when empty the default AWS credential chain is used.
	AWSAccessKeyID     string `mapstructure:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `mapstructure:"AWS_SECRET_ACCESS_KEY"`

	// OTLPEndpoint is the OTLP gRPC collector address; empty disables OpenTelemetry export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Telemetry (optional). When Kafka brokers are set, auth events are also produced to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for auth events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the event worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv values reach Unmarshal.
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("SERVICE_NAME", "session-auth")
	v.SetDefault("HTTP_ADDR", ":8051")
	v.SetDefault("API_ROOT", "/")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_STORE", SessionStoreMongo)
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DATABASE", "session_auth")
	v.SetDefault("MONGO_SESSION_COLLECTION", "device_sessions")
	v.SetDefault("MONGO_AUDIT_COLLECTION", "auth_events")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("SESSION_HEADER_NAME", "Authorization")
	v.SetDefault("UPDATE_GRANTS_ON_REFRESH", false)
	v.SetDefault("ROUTE_GRANTS", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "session-auth")
	v.SetDefault("JWT_AUDIENCE", "session-auth-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("MAIL_PROVIDER", MailProviderLog)
	v.SetDefault("MAIL_FROM", "no-reply@localhost")
	v.SetDefault("MAIL_TIMEOUT", "15s")
	v.SetDefault("SPARKPOST_API_KEY", "")
	v.SetDefault("SPARKPOST_BASE_URL", "https://api.sparkpost.com/api/v1")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("AWS_ACCESS_KEY_ID", "")
	v.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "auth-events")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "auth-events-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.SessionHeaderName == "" {
		return errors.New("config: SESSION_HEADER_NAME must be set")
	}
	switch c.SessionStore {
	case SessionStoreMongo:
		if c.MongoURI == "" {
			return errors.New("config: MONGO_URI must be set when SESSION_STORE=mongo")
		}
	case SessionStoreRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set when SESSION_STORE=redis")
		}
	case SessionStoreMemory:
		if c.IsProduction() {
			return errors.New("config: SESSION_STORE=memory is not allowed when APP_ENV=production")
		}
	default:
		return errors.New("config: SESSION_STORE must be one of mongo, redis, memory")
	}
	switch c.MailProvider {
	case MailProviderLog:
	case MailProviderSparkPost:
		if c.SparkPostAPIKey == "" {
			return errors.New("config: SPARKPOST_API_KEY must be set when MAIL_PROVIDER=sparkpost")
		}
	case MailProviderSES:
		if c.AWSRegion == "" {
			return errors.New("config: AWS_REGION must be set when MAIL_PROVIDER=ses")
		}
	default:
		return errors.New("config: MAIL_PROVIDER must be one of log, sparkpost, ses")
	}
	if c.IsProduction() && (c.JWTPrivateKey == "" || c.JWTPublicKey == "") {
		return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set when APP_ENV=production")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

// StoreTimeoutDuration parses StoreTimeout. Returns 5s if unset or invalid.
func (c *Config) StoreTimeoutDuration() time.Duration {
	return parseDuration(c.StoreTimeout, 5*time.Second)
}

// MailTimeoutDuration parses MailTimeout. Returns 15s if unset or invalid.
func (c *Config) MailTimeoutDuration() time.Duration {
	return parseDuration(c.MailTimeout, 15*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if Kafka emission is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// RouteGrantMap parses RouteGrants into route -> required grants.
// Malformed entries are skipped.
func (c *Config) RouteGrantMap() map[string][]string {
	out := make(map[string][]string)
	if c == nil {
		return out
	}
	for _, entry := range strings.Split(c.RouteGrants, ";") {
		route, grants, ok := strings.Cut(entry, "=")
		route = strings.Join(strings.Fields(route), " ")
		if !ok || route == "" {
			continue
		}
		for _, g := range strings.Split(grants, ",") {
			if g = strings.TrimSpace(g); g != "" {
				out[route] = append(out[route], g)
			}
		}
	}
	return out
}
