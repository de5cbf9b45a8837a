package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// DefaultJWTSecret is only accepted with the in-memory store, where nothing outlives the process.
const DefaultJWTSecret = "change-me"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Auction   AuctionConfig   `mapstructure:"auction"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Leader    LeaderConfig    `mapstructure:"leader"`
	Instance  InstanceConfig  `mapstructure:"instance"`
	Events    EventsConfig    `mapstructure:"events"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type AuctionConfig struct {
	DefaultDuration time.Duration `mapstructure:"default_duration"`
	MaxBidRetries   int           `mapstructure:"max_bid_retries"`
}

type SchedulerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type LeaderConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

type EventsConfig struct {
	Backend string `mapstructure:"backend"`
	Channel string `mapstructure:"channel"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

const (
	BackendMemory = "memory"
	BackendMySQL  = "mysql"
	BackendRedis  = "redis"

	EventsNone  = "none"
	EventsRedis = "redis"
	EventsNATS  = "nats"
)

var envBindings = map[string]string{
	"server.port":              "SERVER_PORT",
	"server.host":              "SERVER_HOST",
	"log.level":                "LOG_LEVEL",
	"store.backend":            "STORE_BACKEND",
	"redis.address":            "REDIS_ADDRESS",
	"redis.password":           "REDIS_PASSWORD",
	"redis.db":                 "REDIS_DB",
	"mysql.dsn":                "MYSQL_DSN",
	"mysql.max_open_conns":     "MYSQL_MAX_OPEN_CONNS",
	"mysql.max_idle_conns":     "MYSQL_MAX_IDLE_CONNS",
	"mysql.conn_max_lifetime":  "MYSQL_CONN_MAX_LIFETIME",
	"auction.default_duration": "AUCTION_DEFAULT_DURATION",
	"auction.max_bid_retries":  "AUCTION_MAX_BID_RETRIES",
	"scheduler.interval":       "SCHEDULER_INTERVAL",
	"leader.enabled":           "LEADER_ENABLED",
	"leader.ttl":               "LEADER_TTL",
	"instance.id":              "INSTANCE_ID",
	"events.backend":           "EVENTS_BACKEND",
	"events.channel":           "EVENTS_CHANNEL",
	"nats.url":                 "NATS_URL",
	"auth.jwt_secret":          "AUTH_JWT_SECRET",
	"auth.token_ttl":           "AUTH_TOKEN_TTL",
	"auth.bcrypt_cost":         "AUTH_BCRYPT_COST",
	"metrics.enabled":          "METRICS_ENABLED",
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("log.level", "info")
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/auction_db?parseTime=true")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("auction.default_duration", 60*time.Second)
	v.SetDefault("auction.max_bid_retries", 5)
	v.SetDefault("scheduler.interval", 2*time.Second)
	v.SetDefault("leader.enabled", false)
	v.SetDefault("leader.ttl", 30*time.Second)
	v.SetDefault("instance.id", "auction-engine-1")
	v.SetDefault("events.backend", EventsNone)
	v.SetDefault("events.channel", "lot_events")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("auth.jwt_secret", DefaultJWTSecret)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("metrics.enabled", true)

	v.AutomaticEnv()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	return v
}

// Load reads defaults, an optional config.yaml and environment overrides.
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/auction-engine/")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Auction.DefaultDuration <= 0:
		return errors.New("auction.default_duration must be positive")
	case c.Auction.MaxBidRetries < 0:
		return errors.New("auction.max_bid_retries must not be negative")
	case c.Scheduler.Interval <= 0:
		return errors.New("scheduler.interval must be positive")
	case c.Leader.Enabled && c.Leader.TTL <= 0:
		return errors.New("leader.ttl must be positive")
	case c.Auth.JWTSecret == "":
		return errors.New("auth.jwt_secret is required")
	case c.Auth.JWTSecret == DefaultJWTSecret && c.Store.Backend != BackendMemory:
		return fmt.Errorf("auth.jwt_secret must be set for the %s store", c.Store.Backend)
	case c.Auth.TokenTTL <= 0:
		return errors.New("auth.token_ttl must be positive")
	}

	switch c.Store.Backend {
	case BackendMemory, BackendMySQL, BackendRedis:
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}

	switch c.Events.Backend {
	case EventsNone, EventsRedis, EventsNATS:
	default:
		return fmt.Errorf("unknown events.backend %q", c.Events.Backend)
	}

	return nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Store: %s, Events: %s, Scheduler: %s, Instance: %s",
		c.Server.Host,
		c.Server.Port,
		c.Store.Backend,
		c.Events.Backend,
		c.Scheduler.Interval,
		c.Instance.ID,
	)
}
