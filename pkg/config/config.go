package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	SQLite    SQLiteConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Analytics AnalyticsConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

type StorageConfig struct {
	Driver string // sqlite or postgres
}

type SQLiteConfig struct {
	Path string
}

type PostgresConfig struct {
	URL      string
	MaxConns int32
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
	Roles         []string
}

type AnalyticsConfig struct {
	CacheTTL           time.Duration
	FetchTimeout       time.Duration
	RetryAttempts      int
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
	LivePollInterval   time.Duration
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load reads config.yaml (if present) and DDX_* environment overrides.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/ddx-dashboard")

	return load(v)
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("DDX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("invalid config: sqlite.path is required")
		}
	case "postgres":
		if c.Postgres.URL == "" {
			return fmt.Errorf("invalid config: postgres.url is required")
		}
	default:
		return fmt.Errorf("invalid config: unknown storage driver %q", c.Storage.Driver)
	}

	if c.Analytics.FetchTimeout <= 0 || c.Analytics.LivePollInterval <= 0 {
		return fmt.Errorf("invalid config: analytics timeouts must be positive")
	}
	if c.Analytics.RetryAttempts < 1 {
		return fmt.Errorf("invalid config: analytics.retryAttempts must be at least 1")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:5173"})
	v.SetDefault("server.development", false)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("sqlite.path", "./data/ddx.db")
	v.SetDefault("postgres.url", "")
	v.SetDefault("postgres.maxConns", 10)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwtSigningKey", "")
	v.SetDefault("auth.issuer", "ddx-dashboard")
	v.SetDefault("auth.roles", []string{"instructor", "admin"})

	v.SetDefault("analytics.cacheTTL", "2m")
	v.SetDefault("analytics.fetchTimeout", "10s")
	v.SetDefault("analytics.retryAttempts", 3)
	v.SetDefault("analytics.breakerFailures", 5)
	v.SetDefault("analytics.breakerOpenTimeout", "30s")
	v.SetDefault("analytics.livePollInterval", "15s")

	v.SetDefault("rateLimit.requestsPerMinute", 120)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
