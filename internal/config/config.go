package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all harness configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Client   ClientConfig   `mapstructure:"client"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Suite    SuiteConfig    `mapstructure:"suite"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds configuration for the managed inference server process
type ServerConfig struct {
	BinPath        string        `mapstructure:"bin_path"`
	WorkDir        string        `mapstructure:"work_dir"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ExtraArgs      []string      `mapstructure:"extra_args"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout"`
}

// BaseURL returns the server's base URL
func (s ServerConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", s.Host, s.Port)
}

// ClientConfig holds generation request configuration
type ClientConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Temperature    float64       `mapstructure:"temperature"`
}

// MonitorConfig holds resource monitoring configuration
type MonitorConfig struct {
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout"`
}

// SuiteConfig holds suite-level configuration
type SuiteConfig struct {
	Scenarios       []string      `mapstructure:"scenarios"`
	ResultsDir      string        `mapstructure:"results_dir"`
	ModelSettleTime time.Duration `mapstructure:"model_settle_time"`
}

// DatabaseConfig holds run-history database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Config file is optional
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bin_path", "shimmy")
	v.SetDefault("server.work_dir", "")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 11435)
	v.SetDefault("server.startup_timeout", 2*time.Minute)
	v.SetDefault("server.health_interval", 2*time.Second)
	v.SetDefault("server.stop_timeout", 10*time.Second)

	// Client defaults
	v.SetDefault("client.request_timeout", 5*time.Minute)
	v.SetDefault("client.temperature", 0.7)

	// Monitor defaults
	v.SetDefault("monitor.sample_interval", time.Second)
	v.SetDefault("monitor.stop_timeout", 5*time.Second)

	// Suite defaults
	v.SetDefault("suite.scenarios", []string{"basic", "longform", "concurrent"})
	v.SetDefault("suite.results_dir", "./results")
	v.SetDefault("suite.model_settle_time", 5*time.Second)

	// Database defaults
	v.SetDefault("database.path", "./data/moe-bench.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func bindEnvVars(v *viper.Viper) {
	// Helper to bind and log errors (BindEnv errors are non-fatal but should be logged)
	bindEnv := func(key string, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			slog.Warn("failed to bind environment variable",
				slog.String("key", key),
				slog.String("env_var", envVar),
				slog.String("error", err.Error()))
		}
	}

	bindEnv("server.bin_path", "MOEBENCH_SERVER_BIN")
	bindEnv("server.work_dir", "MOEBENCH_SERVER_DIR")
	bindEnv("server.port", "MOEBENCH_SERVER_PORT")

	bindEnv("suite.results_dir", "MOEBENCH_RESULTS_DIR")
	bindEnv("database.path", "DATABASE_PATH")

	bindEnv("logging.level", "LOG_LEVEL")
	bindEnv("logging.format", "LOG_FORMAT")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.BinPath == "" {
		return fmt.Errorf("server.bin_path must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.StartupTimeout <= 0 {
		return fmt.Errorf("server.startup_timeout must be positive")
	}
	if c.Monitor.SampleInterval <= 0 {
		return fmt.Errorf("monitor.sample_interval must be positive")
	}
	for _, s := range c.Suite.Scenarios {
		switch s {
		case "basic", "longform", "concurrent":
		default:
			return fmt.Errorf("unknown scenario %q (valid: basic, longform, concurrent)", s)
		}
	}
	return nil
}
