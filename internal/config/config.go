// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string
	Env         string
	MetricsAddr string
	LogLevel    string
}

// Exchange describes Bybit connectivity: credentials, network, market
// category, and the symbols to stream.
type Exchange struct {
	APIKey    string   `yaml:"api_key"`
	APISecret string   `yaml:"api_secret"`
	Testnet   bool     `yaml:"testnet"`
	Category  string   `yaml:"category"`
	Symbols   []string `yaml:"symbols"`
}

// StopLoss tunes the smart stop-loss module.
type StopLoss struct {
	Enabled            bool    `yaml:"enabled"`
	AutoBreakeven      bool    `yaml:"auto_breakeven"`
	BreakevenThreshold float64 `yaml:"breakeven_threshold"`
}

// Modules groups per-module configuration blocks.
type Modules struct {
	StopLoss StopLoss `yaml:"stop_loss"`
}

// Bus sizes the in-process event bus.
type Bus struct {
	Capacity int `yaml:"capacity"`
}

// Risk seeds the user-level risk settings in shared state.
type Risk struct {
	DefaultRiskPercent float64 `yaml:"default_risk_percent"`
	MaxDailyLoss       float64 `yaml:"max_daily_loss"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Exchange Exchange `yaml:"exchange"`
	Modules  Modules  `yaml:"modules"`
	Bus      Bus      `yaml:"bus"`
	Risk     Risk     `yaml:"risk"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
