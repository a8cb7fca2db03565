package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "NOTEBOOK"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "notebook.db"
	defaultLogLevel        = "info"
	defaultCookieName      = "notebook_session"
	defaultTokenTTLMinutes = 60
	defaultDevUsername     = "dev_user"
	minSigningSecretLength = 16
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	AllowedOrigins    []string
	DatabasePath      string
	LogLevel          string
	LogFile           string
	AuthSigningSecret string
	AuthTokenTTL      time.Duration
	AuthCookieName    string
	DevEnabled        bool
	DevUsername       string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.file", "")
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("dev.enabled", false)
	configViper.SetDefault("dev.username", defaultDevUsername)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       strings.TrimSpace(configViper.GetString("http.address")),
		AllowedOrigins:    splitOrigins(configViper.GetStringSlice("http.allowed_origins")),
		DatabasePath:      strings.TrimSpace(configViper.GetString("database.path")),
		LogLevel:          configViper.GetString("log.level"),
		LogFile:           strings.TrimSpace(configViper.GetString("log.file")),
		AuthSigningSecret: configViper.GetString("auth.signing_secret"),
		AuthTokenTTL:      time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		AuthCookieName:    strings.TrimSpace(configViper.GetString("auth.cookie_name")),
		DevEnabled:        configViper.GetBool("dev.enabled"),
		DevUsername:       strings.TrimSpace(configViper.GetString("dev.username")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.HTTPAddress == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database.path is required")
	}
	for _, origin := range c.AllowedOrigins {
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("http.allowed_origins entry %q must start with http:// or https://", origin)
		}
	}
	if c.DevEnabled {
		if c.DevUsername == "" {
			return fmt.Errorf("dev.username is required when dev.enabled is set")
		}
		return nil
	}
	if len(strings.TrimSpace(c.AuthSigningSecret)) < minSigningSecretLength {
		return fmt.Errorf("auth.signing_secret must be at least %d characters", minSigningSecretLength)
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.AuthCookieName == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	return nil
}

// splitOrigins accepts both list values and comma separated env strings.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			origin = strings.TrimRight(strings.TrimSpace(origin), "/")
			if origin != "" {
				origins = append(origins, origin)
			}
		}
	}
	return origins
}
