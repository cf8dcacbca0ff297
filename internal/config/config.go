package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	Data    DataConfig    `toml:"data"`
	Fetcher FetcherConfig `toml:"fetcher"`
	Ingest  IngestConfig  `toml:"ingest"`
	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`
}

// DataConfig represents local storage paths
type DataConfig struct {
	Dir    string `toml:"dir"`     // directory for downloaded archives and extracted files
	DBPath string `toml:"db_path"` // sqlite database file
}

// FetcherConfig represents the download client configuration
type FetcherConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// IngestConfig represents the default ingestion range
type IngestConfig struct {
	StartYear  int `toml:"start_year"`
	StartMonth int `toml:"start_month"`
}

// ServerConfig represents the HTTP API configuration
type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
}

// LoggingConfig represents the logger configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used when no file is provided.
// The first monthly export published by the DGT is 2014-12.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Dir:    "dgt_data",
			DBPath: "matriculaciones.db",
		},
		Fetcher: FetcherConfig{
			BaseURL:        "https://www.dgt.es/microdatos/salida",
			TimeoutSeconds: 60,
		},
		Ingest: IngestConfig{
			StartYear:  2014,
			StartMonth: 12,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a TOML config file on top of the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}
