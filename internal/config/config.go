package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "EMBER"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "ember.db"
	defaultLogLevel      = "info"
	defaultSessionIssuer = "ember-auth"
	defaultPushQueue     = "ember.push"
	defaultMaxBodyLength = 2000
)

// AppConfig captures runtime configuration for the realtime API server.
type AppConfig struct {
	HTTPAddress    string
	SessionSecret  string
	SessionIssuer  string
	DatabasePath   string
	LogLevel       string
	AMQPURL        string
	PushQueue      string
	MaxBodyLength  int
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
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("push.queue", defaultPushQueue)
	configViper.SetDefault("chat.max_body_length", defaultMaxBodyLength)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		SessionSecret: configViper.GetString("session.signing_secret"),
		SessionIssuer: configViper.GetString("session.issuer"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		AMQPURL:       configViper.GetString("push.amqp_url"),
		PushQueue:     configViper.GetString("push.queue"),
		MaxBodyLength: configViper.GetInt("chat.max_body_length"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionIssuer) == "" {
		return fmt.Errorf("session.issuer is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.MaxBodyLength <= 0 {
		return fmt.Errorf("chat.max_body_length must be positive")
	}
	if strings.TrimSpace(c.AMQPURL) != "" && strings.TrimSpace(c.PushQueue) == "" {
		return fmt.Errorf("push.queue is required when push.amqp_url is set")
	}
	return nil
}
