// Package config loads application configuration from a YAML file with
// environment variable expansion, layered on top of compiled defaults.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"marketsim/services/backtest"
	"marketsim/services/candlestore"
)

// App is the top-level configuration for the simulation services.
type App struct {
	Server     ServerConfig       `yaml:"server"`
	Backtest   backtest.Config    `yaml:"backtest"`
	ClickHouse candlestore.Config `yaml:"clickhouse"`
	Redis      RedisConfig        `yaml:"redis"`
	Binance    BinanceConfig      `yaml:"binance"`
	Log        LogConfig          `yaml:"log"`
}

// ServerConfig for the HTTP API.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	MetricsEnable bool   `yaml:"metrics_enable"`
}

// RedisConfig for the candle cache. Empty Addr disables caching.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// BinanceConfig holds optional API credentials for the live feed.
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the compiled defaults, used when no config file is given
// and as the base that file values override.
func Default() *App {
	return &App{
		Server: ServerConfig{
			Addr:          ":8080",
			MetricsEnable: true,
		},
		Backtest:   backtest.DefaultConfig(),
		ClickHouse: candlestore.ConfigFromEnv(),
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file, expanding ${VAR} references from the
// environment first. A .env file next to the process is honored when
// present. Empty path returns the defaults.
func Load(path string) (*App, error) {
	_ = godotenv.Load()

	app := Default()
	if path == "" {
		return app, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.Expand(string(data), os.Getenv)

	if err := yaml.Unmarshal([]byte(expanded), app); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := app.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return app, nil
}

// Validate checks the parts the services cannot run without.
func (a *App) Validate() error {
	if a.Server.Addr == "" {
		return fmt.Errorf("server addr must not be empty")
	}
	switch a.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", a.Log.Level)
	}
	return a.Backtest.Validate()
}
