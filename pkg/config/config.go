// Package config loads Burrow's runtime configuration from environment
// variables and an optional YAML config file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/cuemby/burrow/pkg/apperrors"
)

// Config holds the runtime configuration for the server and migration tooling.
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`

	// DefaultTenant is used when no tenant header is present.
	DefaultTenant string `mapstructure:"default_tenant"`

	MigrationsDir string `mapstructure:"migrations_dir"`
	SchemaFile    string `mapstructure:"schema_file"`
	EventsFile    string `mapstructure:"events_file"`
	I18nDir       string `mapstructure:"i18n_dir"`

	DefaultLanguage string `mapstructure:"default_language"`
	LogLevel        string `mapstructure:"log_level"`

	// RateLimit is requests per window; RateWindowSeconds the window size.
	RateLimit         int `mapstructure:"rate_limit"`
	RateWindowSeconds int `mapstructure:"rate_window_seconds"`

	// TokenSecret signs and verifies locally issued bearer tokens.
	TokenSecret string `mapstructure:"token_secret"`

	// CORS. Responses carry access-control headers only for allowed origins;
	// an empty origin list disables CORS entirely.
	CORSAllowedOrigins   []string `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   string   `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   string   `mapstructure:"cors_allowed_headers"`
	CORSAllowCredentials bool     `mapstructure:"cors_allow_credentials"`
}

// Addr returns the host:port pair the server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration with viper. Precedence: environment variables
// (bare names like DATABASE_URL, then BURROW_ prefixed) over the config file
// over defaults. A missing config file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 5000)
	v.SetDefault("default_tenant", "public")
	v.SetDefault("migrations_dir", "migrations")
	v.SetDefault("schema_file", "template_schema.sql")
	v.SetDefault("events_file", "scheduled_events.json")
	v.SetDefault("i18n_dir", "i18n")
	v.SetDefault("default_language", "en")
	v.SetDefault("log_level", "info")
	v.SetDefault("rate_limit", 100)
	v.SetDefault("rate_window_seconds", 60)
	v.SetDefault("cors_allowed_methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	v.SetDefault("cors_allowed_headers", "Content-Type, Authorization")
	v.SetDefault("cors_allow_credentials", true)

	v.SetEnvPrefix("BURROW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Deployment environments commonly set these without the prefix.
	_ = v.BindEnv("database_url", "BURROW_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("host", "BURROW_HOST", "HOST")
	_ = v.BindEnv("port", "BURROW_PORT", "PORT")
	_ = v.BindEnv("token_secret", "BURROW_TOKEN_SECRET", "TOKEN_SECRET")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
			}
		}
	} else {
		v.SetConfigName("burrow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		// Best effort; running purely from the environment is supported.
		_ = v.ReadInConfig()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return apperrors.ConfigurationError(fmt.Sprintf("invalid port: %d", c.Port))
	}
	if c.DefaultTenant != normalizeTenant(c.DefaultTenant) {
		return apperrors.ConfigurationError(
			fmt.Sprintf("default tenant must be lowercase underscore-only: %q", c.DefaultTenant))
	}
	return nil
}

func normalizeTenant(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "-", "_")
}
