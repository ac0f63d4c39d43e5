/*
config.go - Process configuration

PURPOSE:
  Loads server, database, sync, redis, auth and logging settings.
  Precedence: environment > config file > defaults.

ENVIRONMENT:
  Every key can be overridden with TIMESHEET_<SECTION>_<KEY>, for example
  TIMESHEET_SYNC_TIMEZONE=America/Chicago or TIMESHEET_DB_PATH=/data/ts.db.

SEE ALSO:
  - cmd/server/main.go: --config flag
  - generic/period.go: PayPeriodConfig built from sync.anchor_date
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/warp/timesheet-engine/generic"
)

// Config is the full process configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	DB     DBConfig     `mapstructure:"db"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

// SyncConfig controls the pay-period calendar and where batches come from.
type SyncConfig struct {
	Timezone      string        `mapstructure:"timezone"`
	AnchorDate    string        `mapstructure:"anchor_date"`
	PeriodDays    int           `mapstructure:"period_days"`
	Interval      time.Duration `mapstructure:"interval"`
	WindowPeriods int           `mapstructure:"window_periods"`
	Source        string        `mapstructure:"source"` // file | http
	File          string        `mapstructure:"file"`
	API           APIConfig     `mapstructure:"api"`
	Lock          string        `mapstructure:"lock"` // local | redis
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

// Load reads configuration from path (optional), the environment and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("timesheet")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TIMESHEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173", "http://localhost:8080"})

	v.SetDefault("db.path", "timesheets.db")

	v.SetDefault("sync.timezone", "America/New_York")
	v.SetDefault("sync.anchor_date", generic.DefaultAnchor.String())
	v.SetDefault("sync.period_days", generic.DefaultPeriodLength)
	v.SetDefault("sync.interval", "15m")
	v.SetDefault("sync.window_periods", 2)
	v.SetDefault("sync.source", "file")
	v.SetDefault("sync.file", "")
	v.SetDefault("sync.api.base_url", "")
	v.SetDefault("sync.api.token", "")
	v.SetDefault("sync.api.timeout", "30s")
	v.SetDefault("sync.lock", "local")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "10m")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate rejects settings the process cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range 1-65535", c.Server.Port)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.PayPeriods(); err != nil {
		return err
	}
	if c.Sync.WindowPeriods < 1 {
		return fmt.Errorf("config: sync.window_periods must be at least 1")
	}
	switch c.Sync.Source {
	case "file":
	case "http":
		if c.Sync.API.BaseURL == "" {
			return fmt.Errorf("config: sync.api.base_url is required for the http source")
		}
	default:
		return fmt.Errorf("config: unknown sync.source %q", c.Sync.Source)
	}
	switch c.Sync.Lock {
	case "local", "redis":
	default:
		return fmt.Errorf("config: unknown sync.lock %q", c.Sync.Lock)
	}
	if c.Auth.Enabled && len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("config: auth.jwt_secret must be at least 16 characters when auth is enabled")
	}
	return nil
}

// Location resolves sync.timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Sync.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: sync.timezone %q: %w", c.Sync.Timezone, err)
	}
	return loc, nil
}

// PayPeriods builds the pay-period calendar from sync.anchor_date.
func (c *Config) PayPeriods() (generic.PayPeriodConfig, error) {
	anchor, err := generic.ParseDate(c.Sync.AnchorDate)
	if err != nil {
		return generic.PayPeriodConfig{}, fmt.Errorf("config: sync.anchor_date: %w", err)
	}
	periods, err := generic.NewPayPeriodConfig(anchor, c.Sync.PeriodDays)
	if err != nil {
		return generic.PayPeriodConfig{}, fmt.Errorf("config: %w", err)
	}
	return periods, nil
}
