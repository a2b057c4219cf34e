// Package config loads the gateway's listen address, data directory, and
// SQLite pragmas from file, environment, and flags. Grounded on
// riftdata-rift's internal/config/config.go: same viper defaults/env-prefix
// shape, fields generalized to this gateway's own settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	MaxConnections int           `mapstructure:"max_connections"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

type DatabaseConfig struct {
	DataDir        string `mapstructure:"data_dir"`
	ForeignKeys    bool   `mapstructure:"foreign_keys"`
	WAL            bool   `mapstructure:"wal"`
	FastPathEnable bool   `mapstructure:"fast_path_enable"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CacheConfig struct {
	TranslationSize int `mapstructure:"translation_size"`
	ParamTypeSize   int `mapstructure:"param_type_size"`
	RowDescSize     int `mapstructure:"row_desc_size"`
	ResultSize      int `mapstructure:"result_size"`
	ResultMinCost   int `mapstructure:"result_min_cost"`
}

// DefaultConfig returns the gateway's out-of-the-box settings (WAL and
// foreign keys on, port 5432).
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:     ":5432",
			MaxConnections: 100,
			ShutdownGrace:  10 * time.Second,
		},
		Database: DatabaseConfig{
			DataDir:        defaultDataDir(),
			ForeignKeys:    true,
			WAL:            true,
			FastPathEnable: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Cache: CacheConfig{
			TranslationSize: 512,
			ParamTypeSize:   512,
			RowDescSize:     512,
			ResultSize:      128,
			ResultMinCost:   1000,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kqlite-pg"
	}
	return filepath.Join(home, ".kqlite-pg")
}

// Load reads configuration from an explicit file path, or config.yaml
// under ".", the default data dir, and /etc/kqlite-pg, then layers
// KQLITE_PG_-prefixed environment variables on top. Command-line flags
// are not read here; the caller applies them to the returned Config.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("server.listen_addr", defaults.Server.ListenAddr)
	v.SetDefault("server.max_connections", defaults.Server.MaxConnections)
	v.SetDefault("server.shutdown_grace", defaults.Server.ShutdownGrace)
	v.SetDefault("database.data_dir", defaults.Database.DataDir)
	v.SetDefault("database.foreign_keys", defaults.Database.ForeignKeys)
	v.SetDefault("database.wal", defaults.Database.WAL)
	v.SetDefault("database.fast_path_enable", defaults.Database.FastPathEnable)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("cache.translation_size", defaults.Cache.TranslationSize)
	v.SetDefault("cache.param_type_size", defaults.Cache.ParamTypeSize)
	v.SetDefault("cache.row_desc_size", defaults.Cache.RowDescSize)
	v.SetDefault("cache.result_size", defaults.Cache.ResultSize)
	v.SetDefault("cache.result_min_cost", defaults.Cache.ResultMinCost)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(defaultDataDir())
		v.AddConfigPath("/etc/kqlite-pg")
	}

	v.SetEnvPrefix("kqlite_pg")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the fields the server can't safely run without.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Database.DataDir == "" {
		return fmt.Errorf("database.data_dir is required")
	}
	return nil
}
