package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ModeWebhook = "webhook"
	ModePolling = "polling"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	AppHost   string          `mapstructure:"host"`
	AdminID   int64           `mapstructure:"admin_id"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	DB        DBConfig        `mapstructure:"db"`
	Nexus     NexusConfig     `mapstructure:"nexus"`
	Paste     PasteConfig     `mapstructure:"paste"`
	Search    SearchConfig    `mapstructure:"search"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Expiry    ExpiryConfig    `mapstructure:"expiry"`
	Flood     FloodConfig     `mapstructure:"flood"`
	Log       LogConfig       `mapstructure:"log"`
}

type TelegramConfig struct {
	Token         string        `mapstructure:"token"`
	APIURL        string        `mapstructure:"api_url"`
	Mode          string        `mapstructure:"mode"`
	WebhookURL    string        `mapstructure:"webhook_url"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	Source string `mapstructure:"source"`
	Name   string `mapstructure:"name"`
}

type NexusConfig struct {
	URLs          []string      `mapstructure:"urls"`
	APIKey        string        `mapstructure:"api_key"`
	SearchTimeout time.Duration `mapstructure:"search_timeout"`
	StatusTimeout time.Duration `mapstructure:"status_timeout"`
}

type PasteConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SearchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type BroadcastConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	PauseEvery int           `mapstructure:"pause_every"`
	Pause      time.Duration `mapstructure:"pause"`
}

type ExpiryConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Window   time.Duration `mapstructure:"window"`
	Pace     time.Duration `mapstructure:"pace"`
}

type FloodConfig struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", ":8080")
	v.SetDefault("admin_id", 0)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.api_url", "https://api.telegram.org")
	v.SetDefault("telegram.mode", ModePolling)
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.poll_timeout", 30*time.Second)

	v.SetDefault("db.driver", DriverPostgres)
	v.SetDefault("db.source", "")
	v.SetDefault("db.name", "")

	v.SetDefault("nexus.urls", []string{})
	v.SetDefault("nexus.api_key", "")
	v.SetDefault("nexus.search_timeout", 30*time.Second)
	v.SetDefault("nexus.status_timeout", 5*time.Second)

	v.SetDefault("paste.url", "https://paste.example.com")
	v.SetDefault("paste.timeout", 15*time.Second)

	v.SetDefault("search.concurrency", 10)

	v.SetDefault("broadcast.interval", 1500*time.Millisecond)
	v.SetDefault("broadcast.pause_every", 50)
	v.SetDefault("broadcast.pause", 10*time.Second)

	v.SetDefault("expiry.interval", time.Hour)
	v.SetDefault("expiry.window", 24*time.Hour)
	v.SetDefault("expiry.pace", time.Second)

	v.SetDefault("flood.rate", 1.0)
	v.SetDefault("flood.burst", 3)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads settings.yml from ./configs or /configs, or the file at path
// when it is non-empty. Environment variables override file values, with
// dots in keys replaced by underscores (NEXUS_URLS, TELEGRAM_TOKEN).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./configs")
		v.AddConfigPath("/configs")
		v.SetConfigName("settings")
		v.SetConfigType("yml")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Nexus.URLs = splitURLs(cfg.Nexus.URLs)

	return &cfg, nil
}

// splitURLs flattens comma-joined entries and drops blanks.
func splitURLs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, entry := range in {
		for _, u := range strings.Split(entry, ",") {
			if u = strings.TrimSpace(u); u != "" {
				out = append(out, u)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if c.AdminID == 0 {
		errs = append(errs, errors.New("admin_id is required"))
	}
	if len(c.Nexus.URLs) == 0 {
		errs = append(errs, errors.New("nexus.urls must list at least one node"))
	}
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.Source == "" {
			errs = append(errs, errors.New("db.source is required for the postgres driver"))
		}
	case DriverSQLite, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown db.driver %q", c.DB.Driver))
	}
	if c.Search.Concurrency <= 0 {
		errs = append(errs, errors.New("search.concurrency must be positive"))
	}
	switch c.Telegram.Mode {
	case ModeWebhook:
		if c.Telegram.WebhookURL == "" {
			errs = append(errs, errors.New("telegram.webhook_url is required in webhook mode"))
		}
	case ModePolling:
	default:
		errs = append(errs, fmt.Errorf("unknown telegram.mode %q", c.Telegram.Mode))
	}
	return errors.Join(errs...)
}
