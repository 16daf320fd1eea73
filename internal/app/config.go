package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/freshcart/internal/notify"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// devPepper hashes the demo catalog keys when the in-memory backend runs
// without a configured pepper.
const devPepper = "freshcart-dev-pepper"

// Config holds the complete application configuration, loadable from
// environment variables (FRESH_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage      string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (FRESH_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (FRESH_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Timezone     string `default:"UTC" usage:"Time zone that defines the business day for delivery dates"`
	RateLimit    RateLimitConfig
	Kafka        KafkaConfig
	Redis        RedisConfig
	Mail         MailConfig
	Notifier     NotifierConfig
	Graceful     GracefulConfig

	location *time.Location
}

// RateLimitConfig controls the per-consumer token bucket limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// KafkaConfig configures order event delivery. Events are only logged when
// no brokers are set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers"`
	Topic   string   `default:"order.confirmed" usage:"Topic for order confirmed events"`
	Buffer  int      `default:"1024" usage:"Producer buffer size"`
	Group   string   `default:"freshcart-notifier" usage:"Notifier consumer group"`
	Workers int      `default:"4" usage:"Notifier worker count"`
}

// RedisConfig configures notification dedup.
type RedisConfig struct {
	Addr     string        `default:"localhost:6379" usage:"Redis address"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database"`
	DedupTTL time.Duration `default:"48h" usage:"How long delivered event ids are remembered" flag:"dedup-ttl"`
}

// MailConfig configures the SMTP relay. Mail is logged instead of sent when
// no host is set.
type MailConfig struct {
	Host     string `usage:"SMTP host"`
	Port     int    `default:"587" usage:"SMTP port"`
	Username string `usage:"SMTP username"`
	Password string `usage:"SMTP password"`
	From     string `default:"FreshCart <no-reply@freshcart.local>" usage:"Sender address"`
}

// NotifierConfig configures the notifier process.
type NotifierConfig struct {
	HealthAddr string `default:"0.0.0.0:8081" usage:"Notifier health endpoint address" flag:"notifier-health-addr"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads a .env file when present, then configuration from
// environment variables and YAML config files, and applies platform-specific
// defaults.
func LoadConfig() (*Config, error) {
	// Missing .env is fine.
	_ = godotenv.Load()

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "FRESH",
		Files:     []string{"config.yaml", "/etc/freshcart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's FRESH_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Storage == StorageMemory && c.APIKeyPepper == "" {
		c.APIKeyPepper = devPepper
	}
	if c.Redis.DedupTTL <= 0 {
		c.Redis.DedupTTL = notify.DefaultDedupTTL
	}
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set FRESH_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q: want %q or %q", c.Storage, StoragePostgres, StorageMemory)
	}
	if c.APIKeyPepper == "" {
		return errors.New("API key pepper is required: set FRESH_API_KEY_PEPPER")
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return errors.Wrapf(err, "timezone %q", c.Timezone)
	}
	c.location = loc
	return nil
}

// Location returns the business time zone. It is UTC until the config has
// been validated.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}
