package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sstent/garmindash/internal/errors"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "GARMINDASH"

// ConfigFileName is looked up in the working directory when no path is given.
const ConfigFileName = "garmindash.yaml"

// Config is the runtime configuration of the dashboard.
type Config struct {
	DataDir            string        `mapstructure:"data_dir"`
	DBPath             string        `mapstructure:"db_path"`
	ListenAddr         string        `mapstructure:"listen_addr"`
	GarminAPIURL       string        `mapstructure:"garmin_api_url"`
	HTTPTimeout        time.Duration `mapstructure:"http_timeout"`
	LogLevel           string        `mapstructure:"log_level"`
	LogPretty          bool          `mapstructure:"log_pretty"`
	DefaultRangeDays   int           `mapstructure:"default_range_days"`
	RefreshRecentDays  int           `mapstructure:"refresh_recent_days"`
	RecentMaxAge       time.Duration `mapstructure:"recent_max_age"`
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout"`
	SweepSchedule      string        `mapstructure:"sweep_schedule"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("db_path", "")
	v.SetDefault("listen_addr", ":8888")
	v.SetDefault("garmin_api_url", "http://garmin-api:8081")
	v.SetDefault("http_timeout", "30s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", true)
	v.SetDefault("default_range_days", 30)
	v.SetDefault("refresh_recent_days", 2)
	v.SetDefault("recent_max_age", "2h")
	v.SetDefault("session_idle_timeout", "12h")
	v.SetDefault("sweep_schedule", "")
}

// Load reads .env, the optional config file and GARMINDASH_* environment
// variables, in increasing order of precedence. An empty path means
// garmindash.yaml in the working directory, if present.
func Load(path string) (*Config, error) {
	// Load environment variables from .env file
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names kept from the sync daemon deployment.
	_ = v.BindEnv("data_dir", EnvPrefix+"_DATA_DIR", "DATA_DIR")
	_ = v.BindEnv("db_path", EnvPrefix+"_DB_PATH", "DB_PATH")
	_ = v.BindEnv("garmin_api_url", EnvPrefix+"_GARMIN_API_URL", "GARMIN_API_URL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file "+path,
				"Check the file exists and is valid YAML")
		}
	} else if _, err := os.Stat(ConfigFileName); err == nil {
		v.SetConfigFile(ConfigFileName)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read "+ConfigFileName,
				"Check the YAML syntax")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid configuration",
			"Check durations use Go syntax such as 30s or 2h")
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "catalog.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the dashboard cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return errors.New(errors.ErrConfig, "data_dir must not be empty", "Set GARMINDASH_DATA_DIR")
	case c.GarminAPIURL == "":
		return errors.New(errors.ErrConfig, "garmin_api_url must not be empty", "Set GARMINDASH_GARMIN_API_URL")
	case c.HTTPTimeout <= 0:
		return errors.New(errors.ErrConfig, "http_timeout must be positive", "Use a value such as 30s")
	case c.DefaultRangeDays < 1:
		return errors.New(errors.ErrConfig, "default_range_days must be at least 1", "")
	case c.RefreshRecentDays < 0:
		return errors.New(errors.ErrConfig, "refresh_recent_days must not be negative", "Use 0 to never refresh cached ranges")
	case c.RecentMaxAge < 0:
		return errors.New(errors.ErrConfig, "recent_max_age must not be negative", "")
	}
	return nil
}

// CacheDir is where per-user Parquet files live.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// EnsureDirs creates the data and cache directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.CacheDir(), filepath.Dir(c.DBPath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to create directory "+dir,
				"Check permissions on the data directory")
		}
	}
	return nil
}
