// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store driver names.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds all application configuration.
type Config struct {
	Store StoreConfig `mapstructure:"store"`
	Game  GameConfig  `mapstructure:"game"`
}

// StoreConfig selects and configures the room persistence backend.
// When Driver is "memory" (the default) no durable backend is used and
// rooms live only in process memory.
type StoreConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// MongoConfig holds MongoDB connection configuration.
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// GameConfig holds round timing and settlement configuration.
type GameConfig struct {
	TradingWindow  time.Duration `mapstructure:"trading_window"`
	NextRoundDelay time.Duration `mapstructure:"next_round_delay"`
	BotTradeDelay  time.Duration `mapstructure:"bot_trade_delay"`
	InitialBalance float64       `mapstructure:"initial_balance"`
	HouseFeeRate   float64       `mapstructure:"house_fee_rate"`
	ListLimit      int           `mapstructure:"list_limit"`
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		p.User, p.Password, p.Host, p.Port, p.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the given directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. STORE_DRIVER, STORE_POSTGRES_HOST, GAME_TRADING_WINDOW.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file not found is OK, env vars can provide all config.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", DriverMemory)

	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "traderoom")
	v.SetDefault("store.postgres.name", "traderoom")
	v.SetDefault("store.postgres.pool_size", 20)
	v.SetDefault("store.postgres.connect_timeout", "10s")
	v.SetDefault("store.postgres.max_conn_lifetime", "1h")
	v.SetDefault("store.postgres.max_conn_idle_time", "30m")

	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "traderoom")

	v.SetDefault("game.trading_window", "20s")
	v.SetDefault("game.next_round_delay", "5s")
	v.SetDefault("game.bot_trade_delay", "8s")
	v.SetDefault("game.initial_balance", 1000)
	v.SetDefault("game.house_fee_rate", 0.01)
	v.SetDefault("game.list_limit", 50)
}
