package config

import (
	"errors"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Auth       AuthConfig       `yaml:"auth"`
	Log        LogConfig        `yaml:"log"`
}

// WorkerPoolConfig holds the configuration for the delivery worker pools.
type WorkerPoolConfig struct {
	// Size caps concurrent deliveries within one batch and the number of event workers.
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// PushConfig holds the VAPID keys and delivery hints for web push notifications.
type PushConfig struct {
	PublicKey                 string        `yaml:"vapid_public_key"`
	PrivateKey                string        `yaml:"vapid_private_key"`
	Subject                   string        `yaml:"subject"`
	TTL                       int           `yaml:"ttl"`
	Urgency                   string        `yaml:"urgency"`
	AttemptTimeoutSeconds     int           `yaml:"attempt_timeout_seconds"`
	AttemptTimeout            time.Duration `yaml:"-"` // Derived from AttemptTimeoutSeconds
	MaxDevicesPerUser         int           `yaml:"max_devices_per_user"`
	RefreshLastUsedOnDelivery *bool         `yaml:"refresh_last_used_on_delivery"`
}

// RefreshOnDelivery reports whether a successful delivery refreshes last_used.
func (p PushConfig) RefreshOnDelivery() bool {
	return p.RefreshLastUsedOnDelivery == nil || *p.RefreshLastUsedOnDelivery
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// AuthConfig holds the settings used to verify caller identity tokens.
type AuthConfig struct {
	JWTSecret  string   `yaml:"jwt_secret"`
	AdminRoles []string `yaml:"admin_roles"`
}

// LogConfig selects the zap logger level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ErrMissingJWTSecret is returned when no token signing secret is configured.
var ErrMissingJWTSecret = errors.New("auth.jwt_secret must be set")

func validate(cfg *Config) error {
	if cfg.Auth.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 86400
	}
	if cfg.Push.Urgency == "" {
		cfg.Push.Urgency = "normal"
	}
	if cfg.Push.AttemptTimeoutSeconds <= 0 {
		cfg.Push.AttemptTimeoutSeconds = 10
	}
	cfg.Push.AttemptTimeout = time.Duration(cfg.Push.AttemptTimeoutSeconds) * time.Second

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 10")
		cfg.WorkerPool.Size = 10
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = cfg.WorkerPool.Size * 10
	}

	if len(cfg.Auth.AdminRoles) == 0 {
		cfg.Auth.AdminRoles = []string{"admin", "owner"}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
