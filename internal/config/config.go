// Package config loads and validates ingester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/example/nntp2sql/internal/errcode"
)

// Limits applied to fetch pipeline knobs regardless of where they came from.
const (
	MaxWorkers = 64
	MaxRetries = 10
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig describes the news server to pull from.
type ServerConfig struct {
	Host               string `mapstructure:"host"`
	Port               string `mapstructure:"port"`
	TLS                bool   `mapstructure:"tls"`
	StartTLS           bool   `mapstructure:"starttls"`
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	DialTimeoutSeconds int    `mapstructure:"dial_timeout_seconds"`
	IOTimeoutSeconds   int    `mapstructure:"io_timeout_seconds"`
}

// FetchConfig governs the header-fetch pipeline.
type FetchConfig struct {
	Group       string `mapstructure:"group"`
	HeadersOnly bool   `mapstructure:"headers_only"`
	Limit       int    `mapstructure:"limit"`
	Workers     int    `mapstructure:"workers"`
	Retries     int    `mapstructure:"retries"`
}

// DBConfig controls access to the relational store.
type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Upsert bool   `mapstructure:"upsert"`
}

// LoggingConfig toggles zap output behavior.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Verbose     bool   `mapstructure:"verbose"`
	File        string `mapstructure:"file"`
}

// MetricsConfig controls the optional metrics HTTP listener.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// Load builds a fully validated Config from disk and environment using the
// given Viper instance. Passing the instance in lets the CLI bind flags
// before loading.
func Load(v *viper.Viper, path string) (Config, error) {
	return load(v, path, Config.Validate)
}

// LoadDB is Load with only the database settings validated, for commands
// that never touch the news server.
func LoadDB(v *viper.Viper, path string) (Config, error) {
	return load(v, path, Config.ValidateDB)
}

func load(v *viper.Viper, path string, validate func(Config) error) (Config, error) {
	v.SetEnvPrefix("NNTP2SQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errcode.New(errcode.ConfigFile, fmt.Errorf("read config: %w", err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errcode.New(errcode.ConfigFile, fmt.Errorf("unmarshal config: %w", err))
	}

	cfg.Normalize()
	if err := validate(cfg); err != nil {
		return Config{}, errcode.New(errcode.Args, err)
	}

	return cfg, nil
}

// SetDefaults registers default values on the Viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.dial_timeout_seconds", 30)
	v.SetDefault("server.io_timeout_seconds", 120)
	v.SetDefault("fetch.workers", 1)
	v.SetDefault("fetch.retries", 3)
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("logging.development", true)
}

// Normalize fills derived values and clamps pipeline knobs to their
// documented bounds.
func (c *Config) Normalize() {
	if c.Server.Port == "" {
		if c.Server.TLS {
			c.Server.Port = "563"
		} else {
			c.Server.Port = "119"
		}
	}
	if c.Fetch.Workers < 1 {
		c.Fetch.Workers = 1
	}
	if c.Fetch.Workers > MaxWorkers {
		c.Fetch.Workers = MaxWorkers
	}
	if c.Fetch.Retries < 0 {
		c.Fetch.Retries = 0
	}
	if c.Fetch.Retries > MaxRetries {
		c.Fetch.Retries = MaxRetries
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Fetch.Group == "" {
		return fmt.Errorf("fetch.group is required")
	}
	if c.Fetch.Limit < 0 {
		return fmt.Errorf("fetch.limit must be >= 0")
	}
	if err := c.ValidateDB(); err != nil {
		return err
	}
	if c.Server.StartTLS && c.Server.TLS {
		return fmt.Errorf("server.starttls is redundant when server.tls is set")
	}
	if (c.Server.Username == "") != (c.Server.Password == "") {
		return fmt.Errorf("server.username and server.password must be set together")
	}
	return nil
}

// ValidateDB enforces required database values.
func (c Config) ValidateDB() error {
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("db.driver must be sqlite or postgres, got %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	return nil
}

// DialTimeout returns the connect timeout as a duration.
func (c ServerConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSeconds) * time.Second
}

// IOTimeout returns the per-read/write deadline as a duration.
func (c ServerConfig) IOTimeout() time.Duration {
	return time.Duration(c.IOTimeoutSeconds) * time.Second
}
