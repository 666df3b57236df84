package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Account holds the connection identity for one mailbox. The address doubles
// as the account id everywhere in the pipeline.
type Account struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	TLS      bool   `mapstructure:"tls"`
}

// IndexConfig configures the bundled SQLite-backed mail index.
type IndexConfig struct {
	Path string `mapstructure:"path"`
}

// SlackConfig configures the Slack incoming-webhook notifier. An empty URL
// disables it.
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// WebhookConfig configures the generic JSON webhook notifier. An empty URL
// disables it.
type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

// ReplyConfig carries the product context used for reply suggestions.
type ReplyConfig struct {
	ProductInfo string `mapstructure:"product_info"`
	MeetingLink string `mapstructure:"meeting_link"`
}

// Config is the full process configuration.
type Config struct {
	LogLevel string        `mapstructure:"log_level"`
	Accounts []Account     `mapstructure:"accounts"`
	SyncDays int           `mapstructure:"sync_days"`
	Index    IndexConfig   `mapstructure:"index"`
	Slack    SlackConfig   `mapstructure:"slack"`
	Webhook  WebhookConfig `mapstructure:"webhook"`
	Reply    ReplyConfig   `mapstructure:"reply"`
}

// Load reads configuration from the given YAML file, with ONEBOX_-prefixed
// environment variables taking precedence over file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("ONEBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("sync_days", 30)
	v.SetDefault("index.path", "onebox.db")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("no accounts configured")
	}
	for i, a := range c.Accounts {
		if a.Address == "" {
			return fmt.Errorf("account %d: address is required", i)
		}
		if a.Host == "" {
			return fmt.Errorf("account %s: host is required", a.Address)
		}
		if a.Port == 0 {
			return fmt.Errorf("account %s: port is required", a.Address)
		}
	}
	if c.SyncDays <= 0 {
		return fmt.Errorf("sync_days must be positive, got %d", c.SyncDays)
	}
	return nil
}
