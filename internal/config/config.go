package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name, e.g. AXS_HTTP_ADDR.
const Prefix = "AXS"

// DevSecret signs tokens in dev when no secret is configured.
const DevSecret = "axs-dev-insecure"

type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":9090"`

	Env string `envconfig:"ENV" default:"dev"` // "dev" | "prod"

	// Storage
	StoreDriver string `envconfig:"STORE" default:"sqlite"` // "sqlite" | "memory"
	DBPath      string `envconfig:"DB_PATH" default:"./data/axs.db"`
	SeedDev     bool   `envconfig:"SEED_DEV" default:"false"`

	OpTimeout time.Duration `envconfig:"OP_TIMEOUT" default:"2s"`
	// Bounds on scanner-supplied scan timestamps relative to server time.
	MaxClockSkew time.Duration `envconfig:"MAX_CLOCK_SKEW" default:"1m"`
	MaxScanAge   time.Duration `envconfig:"MAX_SCAN_AGE" default:"15m"`

	// Bearer tokens from the identity service.
	JWTSecret string `envconfig:"JWT_SECRET"`
	// QR pass tokens.
	TokenSecret string        `envconfig:"TOKEN_SECRET"`
	TokenTTL    time.Duration `envconfig:"TOKEN_TTL" default:"5m"`

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	StatsCacheTTL time.Duration `envconfig:"STATS_CACHE_TTL" default:"10m"`

	KafkaBrokers     []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopicPrefix string   `envconfig:"KAFKA_TOPIC_PREFIX" default:"axs.notifications"`

	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"payments"`
	AMQPQueue    string `envconfig:"AMQP_QUEUE" default:"axs.pass-issuance"`

	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`

	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"15m"` // 0 disables

	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogConsole bool   `envconfig:"LOG_CONSOLE" default:"false"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	return FromEnv()
}

func FromEnv() (Config, error) {
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))

	// Dev runs without secrets configured; prod refuses to (see Validate).
	if c.Env == "dev" {
		if c.JWTSecret == "" {
			c.JWTSecret = DevSecret
		}
		if c.TokenSecret == "" {
			c.TokenSecret = DevSecret
		}
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("%s_STORE must be sqlite or memory, got %q", Prefix, c.StoreDriver))
	}
	if c.OpTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s_OP_TIMEOUT must be positive", Prefix))
	}
	if c.MaxClockSkew < 0 || c.MaxScanAge <= 0 {
		errs = append(errs, fmt.Errorf("%s_MAX_CLOCK_SKEW must not be negative and %s_MAX_SCAN_AGE must be positive", Prefix, Prefix))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("%s_SWEEP_INTERVAL must not be negative", Prefix))
	}
	if c.Env == "prod" {
		if c.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("%s_JWT_SECRET is required in prod", Prefix))
		}
		if c.TokenSecret == "" {
			errs = append(errs, fmt.Errorf("%s_TOKEN_SECRET is required in prod", Prefix))
		}
		if c.StoreDriver == "memory" {
			errs = append(errs, fmt.Errorf("%s_STORE=memory is not allowed in prod", Prefix))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) Dev() bool { return c.Env == "dev" }
