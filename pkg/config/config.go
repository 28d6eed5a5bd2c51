// Package config holds polyd's settings: defaults, a YAML file and PE_*
// environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RPC       RPCConfig       `yaml:"rpc"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Engine    EngineConfig    `yaml:"engine"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// RPCConfig holds the JSON-over-TCP RPC listener settings.
type RPCConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings. With no brokers,
// computation events are aggregated in process.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	Computations string `yaml:"computations"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// EngineConfig bounds the size of polynomials accepted from callers and how
// long operand resolution may take.
type EngineConfig struct {
	MaxTerms       int           `yaml:"maxTerms"`
	MaxTextBytes   int           `yaml:"maxTextBytes"`
	ResolveTimeout time.Duration `yaml:"resolveTimeout"`
}

// RateLimitConfig controls the per-client request budget.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load layers three sources: built-in defaults, the YAML file at path (if
// any), then PE_* environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.MaxTerms <= 0 {
		return fmt.Errorf("engine.maxTerms must be positive, got %d", c.Engine.MaxTerms)
	}
	if c.Engine.MaxTextBytes <= 0 {
		return fmt.Errorf("engine.maxTextBytes must be positive, got %d", c.Engine.MaxTextBytes)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rateLimit.requestsPerMinute must be positive when enabled")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		RPC: RPCConfig{
			Enabled: true,
			Port:    9100,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "polyengine",
			User:            "polyengine",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "polyengine-group",
			Topics: KafkaTopics{
				Computations: "polynomial-computations",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Engine: EngineConfig{
			MaxTerms:       10000,
			MaxTextBytes:   1 << 20,
			ResolveTimeout: 2 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// envBinding ties one PE_* variable to the field it overrides. Malformed
// numbers are reported by Load rather than silently ignored.
type envBinding struct {
	name  string
	apply func(cfg *Config, v string) error
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}
}

func num(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

func dur(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}
}

var envBindings = []envBinding{
	{"PE_SERVER_PORT", num(func(c *Config) *int { return &c.Server.Port })},
	{"PE_RPC_PORT", num(func(c *Config) *int { return &c.RPC.Port })},
	{"PE_METRICS_PORT", num(func(c *Config) *int { return &c.Metrics.Port })},
	{"PE_POSTGRES_HOST", str(func(c *Config) *string { return &c.Postgres.Host })},
	{"PE_POSTGRES_PORT", num(func(c *Config) *int { return &c.Postgres.Port })},
	{"PE_POSTGRES_DATABASE", str(func(c *Config) *string { return &c.Postgres.Database })},
	{"PE_POSTGRES_USER", str(func(c *Config) *string { return &c.Postgres.User })},
	{"PE_POSTGRES_PASSWORD", str(func(c *Config) *string { return &c.Postgres.Password })},
	{"PE_POSTGRES_SSLMODE", str(func(c *Config) *string { return &c.Postgres.SSLMode })},
	{"PE_KAFKA_BROKERS", func(c *Config, v string) error {
		c.Kafka.Brokers = strings.Split(v, ",")
		return nil
	}},
	{"PE_REDIS_ADDR", str(func(c *Config) *string { return &c.Redis.Addr })},
	{"PE_REDIS_PASSWORD", str(func(c *Config) *string { return &c.Redis.Password })},
	{"PE_REDIS_CACHE_TTL", dur(func(c *Config) *time.Duration { return &c.Redis.CacheTTL })},
	{"PE_ENGINE_MAX_TERMS", num(func(c *Config) *int { return &c.Engine.MaxTerms })},
	{"PE_ENGINE_RESOLVE_TIMEOUT", dur(func(c *Config) *time.Duration { return &c.Engine.ResolveTimeout })},
	{"PE_RATELIMIT_RPM", num(func(c *Config) *int { return &c.RateLimit.RequestsPerMinute })},
	{"PE_LOGGING_LEVEL", str(func(c *Config) *string { return &c.Logging.Level })},
	{"PE_LOGGING_FORMAT", str(func(c *Config) *string { return &c.Logging.Format })},
}

func applyEnvOverrides(cfg *Config) error {
	for _, b := range envBindings {
		v, ok := os.LookupEnv(b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return fmt.Errorf("%s=%q: %w", b.name, v, err)
		}
	}
	return nil
}
