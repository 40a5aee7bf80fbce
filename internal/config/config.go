package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "CHUNKFEED"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "chunkfeed.db"
	defaultLogLevel      = "info"
	defaultTokenTTLDays  = 30
	maxTokenTTLDays      = 60
	defaultStoreTimeoutS = 5
	defaultFanoutBuffer  = 64
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress         string
	SigningSecret       string
	TokenTTLDays        int
	DatabasePath        string
	LogLevel            string
	StoreTimeoutSeconds int
	FanoutBuffer        int
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
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.ttl_days", defaultTokenTTLDays)
	configViper.SetDefault("store.timeout_seconds", defaultStoreTimeoutS)
	configViper.SetDefault("fanout.buffer", defaultFanoutBuffer)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		SigningSecret:       configViper.GetString("token.signing_secret"),
		TokenTTLDays:        configViper.GetInt("token.ttl_days"),
		DatabasePath:        configViper.GetString("database.path"),
		LogLevel:            configViper.GetString("log.level"),
		StoreTimeoutSeconds: configViper.GetInt("store.timeout_seconds"),
		FanoutBuffer:        configViper.GetInt("fanout.buffer"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("token.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTLDays < defaultTokenTTLDays || c.TokenTTLDays > maxTokenTTLDays {
		return fmt.Errorf("token.ttl_days must be between %d and %d", defaultTokenTTLDays, maxTokenTTLDays)
	}
	if c.StoreTimeoutSeconds <= 0 {
		return fmt.Errorf("store.timeout_seconds must be positive")
	}
	if c.FanoutBuffer <= 0 {
		return fmt.Errorf("fanout.buffer must be positive")
	}
	return nil
}
