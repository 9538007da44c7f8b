package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flexprice/ebilling/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Secrets    SecretsConfig    `validate:"required"`
	Auth       AuthConfig       `validate:"required"`
	Cron       CronConfig
	Matias     MatiasConfig `validate:"required"`
	Reconcile  ReconcileConfig
	Cache      CacheConfig
	Events     EventsConfig
	Kafka      KafkaConfig
	S3         S3Config
	Sentry     SentryConfig
	RBAC       RBACConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address        string   `validate:"required"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host            string `validate:"required"`
	Port            int    `validate:"required"`
	User            string `validate:"required"`
	Password        string
	DBName          string `mapstructure:"dbname" validate:"required"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnectAttempts uint64 `mapstructure:"connect_attempts"`
}

// SecretsConfig holds the master secret the credential vault derives its key from
type SecretsConfig struct {
	EncryptionKey string `mapstructure:"encryption_key" validate:"required"`
}

// AuthConfig configures the operator JWT validation
type AuthConfig struct {
	Secret string `validate:"required"`
	Issuer string
}

// CronConfig protects the endpoints hit by the external scheduler
type CronConfig struct {
	APIKey string `mapstructure:"api_key"`
	Header string
}

// MatiasConfig configures the fiscal document provider client
type MatiasConfig struct {
	BaseURL          string        `mapstructure:"base_url" validate:"required,url"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	TestTimeout      time.Duration `mapstructure:"test_timeout"`
	DefaultTokenTTL  time.Duration `mapstructure:"default_token_ttl"`
	RetryMax         int           `mapstructure:"retry_max"`
	RetryWaitMin     time.Duration `mapstructure:"retry_wait_min"`
	RetryWaitMax     time.Duration `mapstructure:"retry_wait_max"`
	BreakerFailures  uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
	ClientCacheTTL   time.Duration `mapstructure:"client_cache_ttl"`
	PlatformEmail    string        `mapstructure:"platform_email"`
	PlatformPassword string        `mapstructure:"platform_password"` // encrypted with the vault
}

// ReconcileConfig bounds the status polling pass
type ReconcileConfig struct {
	Concurrency       int     `mapstructure:"concurrency"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BatchSize         int     `mapstructure:"batch_size"`
	// ClaimTimeout is how long a SUBMITTING document is held before an
	// operator may retry it
	ClaimTimeout time.Duration `mapstructure:"claim_timeout"`
}

type CacheConfig struct {
	Enabled bool
}

// EventsConfig selects the pubsub backend used for e-billing events
type EventsConfig struct {
	PubSub types.PubSubType `mapstructure:"pubsub"`
	Topic  string
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string `mapstructure:"consumer_group"`
	ClientID      string `mapstructure:"client_id"`
	TLS           bool
	UseSASL       bool   `mapstructure:"use_sasl"`
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUser      string `mapstructure:"sasl_user"`
	SASLPassword  string `mapstructure:"sasl_password"`
}

// S3Config configures the optional archive of downloaded document artifacts
type S3Config struct {
	Enabled         bool
	Region          string
	Bucket          string
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type SentryConfig struct {
	Enabled     bool
	DSN         string
	Environment string
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type RBACConfig struct {
	RolesConfigPath string `mapstructure:"roles_config_path"`
}

func NewConfig() (*Configuration, error) {
	// .env is optional, real deployments inject the environment directly
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/ebilling")

	v.SetEnvPrefix("EBILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults registers every key so that AutomaticEnv can override it
func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("logging.level", types.LogLevelInfo)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "ebilling")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "ebilling")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.connect_attempts", 5)

	v.SetDefault("secrets.encryption_key", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("cron.api_key", "")
	v.SetDefault("cron.header", "x-cron-key")

	v.SetDefault("matias.base_url", "https://api.matias-api.com/api/ubl2.1")
	v.SetDefault("matias.request_timeout", 30*time.Second)
	v.SetDefault("matias.test_timeout", 15*time.Second)
	v.SetDefault("matias.default_token_ttl", 365*24*time.Hour)
	v.SetDefault("matias.retry_max", 2)
	v.SetDefault("matias.retry_wait_min", 200*time.Millisecond)
	v.SetDefault("matias.retry_wait_max", 2*time.Second)
	v.SetDefault("matias.breaker_failures", 5)
	v.SetDefault("matias.breaker_timeout", 30*time.Second)
	v.SetDefault("matias.client_cache_ttl", 30*time.Minute)
	v.SetDefault("matias.platform_email", "")
	v.SetDefault("matias.platform_password", "")

	v.SetDefault("reconcile.concurrency", 4)
	v.SetDefault("reconcile.requests_per_second", 5)
	v.SetDefault("reconcile.batch_size", 200)
	v.SetDefault("reconcile.claim_timeout", "10m")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("events.pubsub", types.MemoryPubSub)
	v.SetDefault("events.topic", "ebilling_events")

	v.SetDefault("kafka.brokers", []string{"localhost:29092"})
	v.SetDefault("kafka.consumer_group", "ebilling")
	v.SetDefault("kafka.client_id", "ebilling")

	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.key_prefix", "ebilling")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.sample_rate", 0.1)
	v.SetDefault("rbac.roles_config_path", "./config/rbac/roles.json")
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or other non-web applications
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Matias: MatiasConfig{
			RequestTimeout:  30 * time.Second,
			TestTimeout:     15 * time.Second,
			DefaultTokenTTL: 365 * 24 * time.Hour,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
			ClientCacheTTL:  30 * time.Minute,
		},
		Reconcile: ReconcileConfig{
			Concurrency:       4,
			RequestsPerSecond: 5,
			BatchSize:         200,
			ClaimTimeout:      10 * time.Minute,
		},
		Cache:  CacheConfig{Enabled: true},
		Events: EventsConfig{PubSub: types.MemoryPubSub, Topic: "ebilling_events"},
		Cron:   CronConfig{Header: "x-cron-key"},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
