package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"  validate:"required"`
	Engine  EngineConfig  `mapstructure:"engine"  validate:"required"`
	Pool    PoolConfig    `mapstructure:"pool"    validate:"required"`
	Browser BrowserConfig `mapstructure:"browser"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"             validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level"        validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required"`
}

// EngineConfig contains the task engine settings: worker capacity,
// queue depth and the reaper's retention/orphan thresholds.
type EngineConfig struct {
	WorkerCount       int           `mapstructure:"worker_count"       validate:"required,gt=0"`
	QueueSize         int           `mapstructure:"queue_size"         validate:"required,gt=0"`
	ReaperInterval    time.Duration `mapstructure:"reaper_interval"    validate:"required"`
	RetentionWindow   time.Duration `mapstructure:"retention_window"   validate:"required"`
	OrphanThreshold   time.Duration `mapstructure:"orphan_threshold"   validate:"required"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"required"`
}

// PoolConfig contains the browser session pool settings.
type PoolConfig struct {
	MaxSize        int           `mapstructure:"max_size"        validate:"required,gt=0"`
	Floor          int           `mapstructure:"floor"           validate:"gte=0"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" validate:"required"`
	IdleAge        time.Duration `mapstructure:"idle_age"        validate:"required"`
	ReapInterval   time.Duration `mapstructure:"reap_interval"   validate:"required"`
}

// BrowserConfig contains settings for the underlying Chrome sessions.
// CDPURL, when set, points at a remote DevTools endpoint instead of
// launching a local browser process.
type BrowserConfig struct {
	Headless    bool          `mapstructure:"headless"`
	ChromePath  string        `mapstructure:"chrome_path"`
	CDPURL      string        `mapstructure:"cdp_url"`
	SearchURL   string        `mapstructure:"search_url"`
	StepTimeout time.Duration `mapstructure:"step_timeout"`
}
