package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over values from
// config files. Returns a populated Config struct or an error if
// loading or validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config.yaml next to the binary or in the working directory.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables with the RECORDSCRAPE_ prefix, e.g.
	// RECORDSCRAPE_SERVER_PORT overrides server.port.
	v.SetEnvPrefix("RECORDSCRAPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Pool.Floor > cfg.Pool.MaxSize {
		return nil, fmt.Errorf(
			"config validation failed: pool floor %d exceeds max size %d",
			cfg.Pool.Floor, cfg.Pool.MaxSize)
	}

	return &cfg, nil
}

// setDefaults registers a default for every key so AutomaticEnv picks
// up overrides even when no config file is present.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("engine.worker_count", 5)
	v.SetDefault("engine.queue_size", 100)
	v.SetDefault("engine.reaper_interval", "1m")
	v.SetDefault("engine.retention_window", "1h")
	v.SetDefault("engine.orphan_threshold", "10m")
	v.SetDefault("engine.heartbeat_interval", "15s")

	v.SetDefault("pool.max_size", 5)
	v.SetDefault("pool.floor", 0)
	v.SetDefault("pool.acquire_timeout", "2m")
	v.SetDefault("pool.idle_age", "30m")
	v.SetDefault("pool.reap_interval", "1m")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.chrome_path", "")
	v.SetDefault("browser.cdp_url", "")
	v.SetDefault("browser.search_url", "")
	v.SetDefault("browser.step_timeout", "60s")
}
