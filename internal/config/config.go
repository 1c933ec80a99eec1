// Package config loads daemon configuration via viper and owns the persisted
// lights store.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

func getConfigBaseDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "huebridged")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "huebridged")
}

func getConfigPath(filename string) string {
	return filepath.Join(getConfigBaseDir(), filename)
}

// Config represents the daemon configuration
type Config struct {
	HomeAssistant HomeAssistantConfig
	API           APIConfig
	Lights        LightsConfig
	Logging       LoggingConfig
	Store         StoreConfig

	// Internal viper instance
	v *viper.Viper
}

// HomeAssistantConfig locates and authenticates the backend.
type HomeAssistantConfig struct {
	URL   string
	Token string
}

// APIConfig configures the admin/debug HTTP surface.
type APIConfig struct {
	ListenAddress      string `mapstructure:"listen_address"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`
}

// LightsConfig holds light-model tunables.
type LightsConfig struct {
	RefreshIntervalMS int `mapstructure:"refresh_interval_ms"`
	DefaultThrottleMS int `mapstructure:"default_throttle_ms"`
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// StoreConfig locates the persisted lights store.
type StoreConfig struct {
	Path string
}

// Load loads configuration from a file and environment variables
func Load(configName, configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")

	// Set default values
	v.SetDefault("homeassistant.url", "ws://homeassistant.local:8123/api/websocket")
	v.SetDefault("homeassistant.token", "")
	v.SetDefault("api.listen_address", "127.0.0.1:8686")
	v.SetDefault("api.rate_limit_per_minute", DefaultRateLimitPerMinute)
	v.SetDefault("lights.refresh_interval_ms", DefaultRefreshIntervalMS)
	v.SetDefault("lights.default_throttle_ms", 0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("store.path", getConfigPath("lights.yaml"))

	// Add config paths
	if configFile != "" {
		v.SetConfigFile(configFile)
		slog.Info("Using config file from command line", "path", configFile)
	} else {
		configPath := getConfigPath(configName)
		v.SetConfigFile(configPath)

		// Create config directory if it doesn't exist
		configDir := getConfigBaseDir()
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, fmt.Errorf("error creating config directory: %w", err)
		}

		// Only log if config file exists
		if _, err := os.Stat(configPath); err == nil {
			slog.Info("Using default config file", "path", configPath)
		}
	}

	// Read config file - Viper will use defaults if file not found
	v.ReadInConfig()

	// Bind environment variables
	v.SetEnvPrefix("HUEBRIDGED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		HomeAssistant: HomeAssistantConfig{
			URL:   v.GetString("homeassistant.url"),
			Token: v.GetString("homeassistant.token"),
		},
		API: APIConfig{
			ListenAddress:      v.GetString("api.listen_address"),
			RateLimitPerMinute: v.GetInt("api.rate_limit_per_minute"),
		},
		Lights: LightsConfig{
			RefreshIntervalMS: v.GetInt("lights.refresh_interval_ms"),
			DefaultThrottleMS: v.GetInt("lights.default_throttle_ms"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Store: StoreConfig{
			Path: v.GetString("store.path"),
		},
		v: v,
	}

	if !IsValidLevel(cfg.Logging.Level) {
		return nil, fmt.Errorf("invalid logging.level %q", cfg.Logging.Level)
	}
	if !IsValidFormat(cfg.Logging.Format) {
		return nil, fmt.Errorf("invalid logging.format %q", cfg.Logging.Format)
	}

	return cfg, nil
}

// validLevels is the set of accepted log level strings.
var validLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// IsValidLevel reports whether level is a recognized log level string.
func IsValidLevel(level string) bool {
	return validLevels[strings.ToLower(level)]
}

// IsValidFormat reports whether format names a supported log output format.
func IsValidFormat(format string) bool {
	f := strings.ToLower(format)
	return f == "text" || f == "json"
}

// Get retrieves a value from the configuration
func (c *Config) Get(key string) interface{} {
	if c.v == nil {
		return nil
	}
	return c.v.Get(key)
}

// Set sets a value in the configuration
func (c *Config) Set(key string, value interface{}) {
	if c.v == nil {
		return
	}
	c.v.Set(key, value)
}
