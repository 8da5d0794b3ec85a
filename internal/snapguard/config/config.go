package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/vaibhaw-/snapguard/internal/snapguard/apperr"
)

type LoggingCfg struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	RunLog      string `mapstructure:"run_log"`
}

type StorageCfg struct {
	Driver       string        `mapstructure:"driver"` // memory, postgres, pgx, mysql, sqlite3
	DSN          string        `mapstructure:"dsn"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
}

// CryptoCfg carries key material. Both keys are required at process start.
type CryptoCfg struct {
	EncryptionKey       string `mapstructure:"encryption_key"`
	MasterEncryptionKey string `mapstructure:"master_encryption_key"`
}

type FirewallCfg struct {
	Limiter                string        `mapstructure:"limiter"` // window or token_bucket
	RateLimitWindow        time.Duration `mapstructure:"rate_limit_window"`
	RateLimitMax           int           `mapstructure:"rate_limit_max"`
	FailedAttemptThreshold int           `mapstructure:"failed_attempt_threshold"`
	FailedAttemptTTL       time.Duration `mapstructure:"failed_attempt_ttl"`
	CleanupInterval        time.Duration `mapstructure:"cleanup_interval"`
}

type IntrusionCfg struct {
	RapidActivityThreshold int           `mapstructure:"rapid_activity_threshold"`
	Window                 time.Duration `mapstructure:"window"`
}

type IntegrityCfg struct {
	Interval         time.Duration `mapstructure:"interval"`
	LockdownOnTamper bool          `mapstructure:"lockdown_on_tamper"`
}

type MonitorCfg struct {
	Addr string `mapstructure:"addr"`
}

type OutputCfg struct {
	RejectFile string `mapstructure:"reject_file"`
}

type Config struct {
	Version   string       `mapstructure:"version"`
	Logging   LoggingCfg   `mapstructure:"logging"`
	Storage   StorageCfg   `mapstructure:"storage"`
	Crypto    CryptoCfg    `mapstructure:"crypto"`
	Firewall  FirewallCfg  `mapstructure:"firewall"`
	Intrusion IntrusionCfg `mapstructure:"intrusion"`
	Integrity IntegrityCfg `mapstructure:"integrity"`
	Monitor   MonitorCfg   `mapstructure:"monitor"`
	Output    OutputCfg    `mapstructure:"output"`
}

// SetDefaults registers defaults and the environment bindings for key material.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("version", "0.1")
	v.SetDefault("logging.level", "info")
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.timeout", "5s")
	v.SetDefault("storage.max_open_conns", 25)
	v.SetDefault("storage.max_idle_conns", 5)
	v.SetDefault("firewall.limiter", "window")
	v.SetDefault("firewall.rate_limit_window", "60s")
	v.SetDefault("firewall.rate_limit_max", 100)
	v.SetDefault("firewall.failed_attempt_threshold", 5)
	v.SetDefault("firewall.failed_attempt_ttl", "1h")
	v.SetDefault("firewall.cleanup_interval", "5m")
	v.SetDefault("intrusion.rapid_activity_threshold", 20)
	v.SetDefault("intrusion.window", "60s")
	v.SetDefault("integrity.interval", "1h")
	v.SetDefault("integrity.lockdown_on_tamper", false)
	v.SetDefault("monitor.addr", ":9464")

	// The deployment contract names these variables without a prefix.
	_ = v.BindEnv("crypto.encryption_key", "ENCRYPTION_KEY")
	_ = v.BindEnv("crypto.master_encryption_key", "MASTER_ENCRYPTION_KEY")
	_ = v.BindEnv("storage.dsn", "SNAPGUARD_STORAGE_DSN")
}

// Load unmarshals a viper instance into a Config.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.validateLimits(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validateLimits() error {
	switch c.Firewall.Limiter {
	case "window", "token_bucket":
	default:
		return apperr.Configuration("firewall.limiter must be window or token_bucket, got %q", c.Firewall.Limiter)
	}
	if c.Firewall.RateLimitMax <= 0 || c.Firewall.RateLimitWindow <= 0 {
		return apperr.Configuration("firewall rate limit must be positive")
	}
	if c.Firewall.FailedAttemptThreshold <= 0 {
		return apperr.Configuration("firewall.failed_attempt_threshold must be positive")
	}
	if c.Intrusion.RapidActivityThreshold <= 0 {
		return apperr.Configuration("intrusion.rapid_activity_threshold must be positive")
	}
	return nil
}

// RequireKeys fails with ErrConfiguration when key material is absent.
// Commands that encrypt or register users call it before building services.
func (c *Config) RequireKeys() error {
	if c.Crypto.EncryptionKey == "" {
		return apperr.Configuration("ENCRYPTION_KEY is not set")
	}
	if c.Crypto.MasterEncryptionKey == "" {
		return apperr.Configuration("MASTER_ENCRYPTION_KEY is not set")
	}
	return nil
}
