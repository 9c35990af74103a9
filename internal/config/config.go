package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // settlement timezone lookups on hosts without zoneinfo

	"github.com/joho/godotenv"
)

// defaultCronSecret is the placeholder from the example environment files
const defaultCronSecret = "change-me-in-production"

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Gateway     GatewayConfig
	Secrets     SecretsConfig
	Notify      NotifyConfig
	SMTP        SMTPConfig
	Reconcile   ReconcileConfig
	RateLimit   RateLimitConfig
	Logger      LoggerConfig
}

// IsProduction reports whether ENVIRONMENT=production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	MetricsPort     int
	CronSecret      string
	AdminAPIKey     string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// RedisConfig holds the shared rate counter and job lock store. Empty means disabled.
type RedisConfig struct {
	URL      string
	Addr     string
	Password string
	DB       int
}

// GatewayConfig holds Kashier configuration. Keys are resolved through the
// secret provider when not set directly.
type GatewayConfig struct {
	APIURL        string
	MerchantID    string
	APIKey        string
	SecretKey     string // HMAC key for callback signatures
	Currency      string
	Timeout       time.Duration
	APIKeyPath    string
	SecretKeyPath string
}

// SecretsConfig selects the secret provider: env, local, aws, gcp or vault
type SecretsConfig struct {
	Provider       string
	CacheTTL       time.Duration
	LocalPath      string
	AWSRegion      string
	AWSProfile     string
	AWSEndpoint    string
	GCPProjectID   string
	VaultAddress   string
	VaultAuth      string
	VaultToken     string
	VaultRoleID    string
	VaultSecretID  string
	VaultNamespace string
	VaultMount     string
}

// NotifyConfig selects the customer notification sinks
type NotifyConfig struct {
	Sinks        []string // inbox, kafka, sns
	KafkaBrokers []string
	KafkaTopic   string
	SNSTopicARN  string
	AWSRegion    string
}

// SMTPConfig holds the merchant email relay. An empty host disables email.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// ReconcileConfig holds the reconciliation job settings
type ReconcileConfig struct {
	SchedulerEnabled   bool
	SweepInterval      time.Duration
	AbandonThreshold   time.Duration
	SweepBatchSize     int
	SettlementInterval time.Duration
	SettlementGrace    time.Duration
	SettlementCreate   time.Duration
	SettlementTimezone string // IANA zone that settlement days are cut in
	CustomOrderTTL     time.Duration
	CustomOrderEvery   time.Duration
}

// RateLimitConfig holds the webhook rate limit
type RateLimitConfig struct {
	Limit      int
	Window     time.Duration
	TrustProxy bool
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadDotEnv loads variables from the given files, or .env when none are
// given. Missing files are ignored and existing variables are not overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:            getEnvAsInt("PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort:     getEnvAsInt("METRICS_PORT", 9090),
			CronSecret:      getEnv("CRON_SECRET", ""),
			AdminAPIKey:     getEnv("ADMIN_API_KEY", ""),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "checkout"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Gateway: GatewayConfig{
			APIURL:        getEnv("KASHIER_API_URL", "https://api.kashier.io"),
			MerchantID:    getEnv("KASHIER_MERCHANT_ID", ""),
			APIKey:        getEnv("KASHIER_API_KEY", ""),
			SecretKey:     getEnv("KASHIER_SECRET_KEY", ""),
			Currency:      getEnv("KASHIER_CURRENCY", "EGP"),
			Timeout:       getEnvAsDuration("KASHIER_TIMEOUT", 30*time.Second),
			APIKeyPath:    getEnv("KASHIER_API_KEY_PATH", "checkout/kashier-api-key"),
			SecretKeyPath: getEnv("KASHIER_SECRET_KEY_PATH", "checkout/kashier-secret-key"),
		},
		Secrets: SecretsConfig{
			Provider:       getEnv("SECRET_MANAGER", "env"),
			CacheTTL:       getEnvAsDuration("SECRET_CACHE_TTL", 5*time.Minute),
			LocalPath:      getEnv("LOCAL_SECRETS_PATH", "./secrets"),
			AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
			AWSProfile:     getEnv("AWS_PROFILE", ""),
			AWSEndpoint:    getEnv("AWS_SECRETS_ENDPOINT", ""),
			GCPProjectID:   getEnv("GCP_PROJECT_ID", ""),
			VaultAddress:   getEnv("VAULT_ADDR", ""),
			VaultAuth:      getEnv("VAULT_AUTH_METHOD", "token"),
			VaultToken:     getEnv("VAULT_TOKEN", ""),
			VaultRoleID:    getEnv("VAULT_ROLE_ID", ""),
			VaultSecretID:  getEnv("VAULT_SECRET_ID", ""),
			VaultNamespace: getEnv("VAULT_NAMESPACE", ""),
			VaultMount:     getEnv("VAULT_MOUNT_PATH", "secret"),
		},
		Notify: NotifyConfig{
			Sinks:        getEnvAsList("NOTIFY_SINKS", []string{"inbox"}),
			KafkaBrokers: getEnvAsList("KAFKA_BROKERS", nil),
			KafkaTopic:   getEnv("KAFKA_NOTIFICATIONS_TOPIC", "checkout.notifications"),
			SNSTopicARN:  getEnv("SNS_TOPIC_ARN", ""),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
		},
		Reconcile: ReconcileConfig{
			SchedulerEnabled:   getEnvAsBool("SCHEDULER_ENABLED", false),
			SweepInterval:      getEnvAsDuration("SWEEP_INTERVAL", 15*time.Minute),
			AbandonThreshold:   getEnvAsDuration("ABANDON_THRESHOLD", 30*time.Minute),
			SweepBatchSize:     getEnvAsInt("SWEEP_BATCH_SIZE", 500),
			SettlementInterval: getEnvAsDuration("SETTLEMENT_SCAN_INTERVAL", time.Hour),
			SettlementGrace:    getEnvAsDuration("SETTLEMENT_GRACE", 24*time.Hour),
			SettlementCreate:   getEnvAsDuration("SETTLEMENT_CREATE_INTERVAL", time.Hour),
			SettlementTimezone: getEnv("SETTLEMENT_TIMEZONE", "Africa/Cairo"),
			CustomOrderTTL:     getEnvAsDuration("CUSTOM_ORDER_QUOTE_TTL", 24*time.Hour),
			CustomOrderEvery:   getEnvAsDuration("CUSTOM_ORDER_EXPIRY_INTERVAL", time.Hour),
		},
		RateLimit: RateLimitConfig{
			Limit:      getEnvAsInt("WEBHOOK_RATE_LIMIT", 120),
			Window:     getEnvAsDuration("WEBHOOK_RATE_WINDOW", time.Minute),
			TrustProxy: getEnvAsBool("TRUST_PROXY", false),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails closed on missing secrets and nonsensical durations
func (c *Config) Validate() error {
	var errs []error

	switch {
	case c.Server.CronSecret == "":
		errs = append(errs, errors.New("CRON_SECRET is required"))
	case c.IsProduction() && c.Server.CronSecret == defaultCronSecret:
		errs = append(errs, errors.New("CRON_SECRET must be changed from the default in production"))
	}
	if c.IsProduction() && c.Database.Password == "" {
		errs = append(errs, errors.New("DB_PASSWORD is required in production"))
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout},
		{"KASHIER_TIMEOUT", c.Gateway.Timeout},
		{"SWEEP_INTERVAL", c.Reconcile.SweepInterval},
		{"ABANDON_THRESHOLD", c.Reconcile.AbandonThreshold},
		{"SETTLEMENT_SCAN_INTERVAL", c.Reconcile.SettlementInterval},
		{"SETTLEMENT_GRACE", c.Reconcile.SettlementGrace},
		{"SETTLEMENT_CREATE_INTERVAL", c.Reconcile.SettlementCreate},
		{"CUSTOM_ORDER_QUOTE_TTL", c.Reconcile.CustomOrderTTL},
		{"CUSTOM_ORDER_EXPIRY_INTERVAL", c.Reconcile.CustomOrderEvery},
		{"WEBHOOK_RATE_WINDOW", c.RateLimit.Window},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive duration", d.name))
		}
	}
	if c.Reconcile.SweepBatchSize <= 0 {
		errs = append(errs, errors.New("SWEEP_BATCH_SIZE must be positive"))
	}
	if _, err := time.LoadLocation(c.Reconcile.SettlementTimezone); err != nil {
		errs = append(errs, fmt.Errorf("SETTLEMENT_TIMEZONE %q: %w", c.Reconcile.SettlementTimezone, err))
	}
	if c.RateLimit.Limit <= 0 {
		errs = append(errs, errors.New("WEBHOOK_RATE_LIMIT must be positive"))
	}

	switch c.Secrets.Provider {
	case "env", "local", "aws", "vault":
	case "gcp":
		if c.Secrets.GCPProjectID == "" {
			errs = append(errs, errors.New("GCP_PROJECT_ID is required when SECRET_MANAGER=gcp"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SECRET_MANAGER %q", c.Secrets.Provider))
	}

	for _, sink := range c.Notify.Sinks {
		switch sink {
		case "inbox":
		case "kafka":
			if len(c.Notify.KafkaBrokers) == 0 {
				errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka sink"))
			}
		case "sns":
			if c.Notify.SNSTopicARN == "" {
				errs = append(errs, errors.New("SNS_TOPIC_ARN is required for the sns sink"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown notification sink %q", sink))
		}
	}

	if c.IsProduction() && c.Reconcile.SchedulerEnabled && c.Redis.URL == "" && c.Redis.Addr == "" {
		errs = append(errs, errors.New("SCHEDULER_ENABLED requires Redis in production"))
	}

	return errors.Join(errs...)
}

// ConnectionString returns the PostgreSQL connection URL
func (c *DatabaseConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go duration strings ("15m"). An unparsable value
// yields zero so validation rejects it instead of silently using the default.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
