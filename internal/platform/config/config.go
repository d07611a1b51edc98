// Package config loads server configuration from the environment with an
// optional YAML overlay.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"mintledger/pkg/domain"
	pstrings "mintledger/pkg/platform/strings"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config is the full server configuration.
type Config struct {
	Server    Server          `yaml:"server"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	JWTSigningKey   string        `yaml:"jwt_signing_key"`
	JWTIssuer       string        `yaml:"jwt_issuer"`
	JWTAudience     string        `yaml:"jwt_audience"`
	AdminToken      string        `yaml:"admin_token"`
	FaucetEnabled   bool          `yaml:"faucet_enabled"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LedgerConfig holds the economic constants. Amounts are decimal strings.
type LedgerConfig struct {
	ProcessingFee  string `yaml:"processing_fee"`
	FactoryReserve string `yaml:"factory_reserve"`
	ItemReserve    string `yaml:"item_reserve"`
	RefundExcess   bool   `yaml:"refund_configure_excess"`
	Tolerance      string `yaml:"tolerance"`
	MaxCascade     int    `yaml:"max_cascade"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
}

type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// KafkaConfig enables the audit stream when Brokers is not empty.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	AuditTopic    string   `yaml:"audit_topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
	SampleRate    float64  `yaml:"sample_rate"`
}

type RateLimitConfig struct {
	Disabled   bool    `yaml:"disabled"`
	ReadRPS    float64 `yaml:"read_rps"`
	ReadBurst  int     `yaml:"read_burst"`
	WriteRPS   float64 `yaml:"write_rps"`
	WriteBurst int     `yaml:"write_burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration suitable for local development.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			JWTSigningKey:   "dev-secret-key-change-in-production",
			JWTIssuer:       "mintledger",
			JWTAudience:     "mintledger-api",
			ShutdownTimeout: 10 * time.Second,
		},
		Ledger: LedgerConfig{
			ProcessingFee:  "0.005",
			FactoryReserve: "0.02",
			ItemReserve:    "0.02",
			RefundExcess:   false,
			Tolerance:      "0.01",
			MaxCascade:     256,
		},
		Store: StoreConfig{Driver: DriverMemory},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			AuditTopic:    "mintledger.audit",
			ConsumerGroup: "mintledger-audit",
			SampleRate:    1,
		},
		RateLimit: RateLimitConfig{
			ReadRPS:    20,
			ReadBurst:  40,
			WriteRPS:   5,
			WriteBurst: 10,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// FromEnv builds the configuration from defaults, environment variables and,
// when MINTLEDGER_CONFIG names a file, a YAML overlay applied last.
func FromEnv() (Config, error) {
	cfg := Default()
	cfg.applyEnv(os.Getenv)
	if path := os.Getenv("MINTLEDGER_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	return cfg, cfg.Validate()
}

// LoadFile merges a YAML file into c. Keys missing from the file keep their value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.Kafka.Brokers = pstrings.DedupeAndTrim(c.Kafka.Brokers)
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	setString(getenv, "MINTLEDGER_ADDR", &c.Server.Addr)
	setString(getenv, "JWT_SIGNING_KEY", &c.Server.JWTSigningKey)
	setString(getenv, "JWT_ISSUER", &c.Server.JWTIssuer)
	setString(getenv, "JWT_AUDIENCE", &c.Server.JWTAudience)
	setString(getenv, "ADMIN_API_TOKEN", &c.Server.AdminToken)
	setBool(getenv, "FAUCET_ENABLED", &c.Server.FaucetEnabled)

	setString(getenv, "LEDGER_PROCESSING_FEE", &c.Ledger.ProcessingFee)
	setString(getenv, "LEDGER_FACTORY_RESERVE", &c.Ledger.FactoryReserve)
	setString(getenv, "LEDGER_ITEM_RESERVE", &c.Ledger.ItemReserve)
	setBool(getenv, "LEDGER_REFUND_CONFIGURE_EXCESS", &c.Ledger.RefundExcess)
	setString(getenv, "LEDGER_TOLERANCE", &c.Ledger.Tolerance)

	setString(getenv, "STORE_DRIVER", &c.Store.Driver)
	setString(getenv, "DATABASE_URL", &c.Store.DatabaseURL)
	setString(getenv, "REDIS_URL", &c.Redis.URL)

	if brokers := getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = pstrings.SplitList(brokers, ",")
	}
	setString(getenv, "KAFKA_AUDIT_TOPIC", &c.Kafka.AuditTopic)
	setString(getenv, "KAFKA_CONSUMER_GROUP", &c.Kafka.ConsumerGroup)

	setBool(getenv, "DISABLE_RATE_LIMITING", &c.RateLimit.Disabled)
	setString(getenv, "LOG_LEVEL", &c.Log.Level)
	setString(getenv, "LOG_FORMAT", &c.Log.Format)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("store.database_url is required for the postgres driver"))
		}
	case DriverRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver: %q", c.Store.Driver))
	}

	for name, value := range map[string]string{
		"ledger.processing_fee":  c.Ledger.ProcessingFee,
		"ledger.factory_reserve": c.Ledger.FactoryReserve,
		"ledger.item_reserve":    c.Ledger.ItemReserve,
		"ledger.tolerance":       c.Ledger.Tolerance,
	} {
		if _, err := domain.ParseAmount(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if c.Server.JWTSigningKey == "" {
		errs = append(errs, errors.New("server.jwt_signing_key is required"))
	}
	if c.Server.FaucetEnabled && c.Server.AdminToken == "" {
		errs = append(errs, errors.New("server.admin_token is required when the faucet is enabled"))
	}
	if c.Kafka.SampleRate < 0 || c.Kafka.SampleRate > 1 {
		errs = append(errs, errors.New("kafka.sample_rate must be between 0 and 1"))
	}
	if c.RateLimit.ReadRPS < 0 || c.RateLimit.WriteRPS < 0 {
		errs = append(errs, errors.New("rate_limit rates must not be negative"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level: %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

// Amounts returns the parsed ledger constants. Call after Validate.
func (l LedgerConfig) Amounts() (fee, factoryReserve, itemReserve, tolerance domain.Amount) {
	return domain.MustParseAmount(l.ProcessingFee),
		domain.MustParseAmount(l.FactoryReserve),
		domain.MustParseAmount(l.ItemReserve),
		domain.MustParseAmount(l.Tolerance)
}

// StreamEnabled reports whether audit events go through Kafka.
func (k KafkaConfig) StreamEnabled() bool {
	return len(k.Brokers) > 0
}

func setString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func setBool(getenv func(string) string, key string, dst *bool) {
	if v := getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
