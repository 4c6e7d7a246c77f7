// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage providers accepted by storage.provider.
const (
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageS3     = "s3"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Forwarder ForwarderConfig `mapstructure:"forwarder"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ScraperConfig describes the rate page and how records are labeled.
type ScraperConfig struct {
	URL           string `mapstructure:"url"`
	Source        string `mapstructure:"source"`
	UserAgent     string `mapstructure:"user_agent"`
	RespectRobots bool   `mapstructure:"respect_robots"`
	Timezone      string `mapstructure:"timezone"`
}

// HTTPConfig configures the outbound page fetch.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HeadlessConfig toggles rendering the rate page in headless Chrome.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	PromoteOnly     bool `mapstructure:"promote_only"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
}

// StorageConfig selects the object store and key prefixes.
type StorageConfig struct {
	Provider       string `mapstructure:"provider"`
	Bucket         string `mapstructure:"bucket"`
	BaseDir        string `mapstructure:"base_dir"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	UploadPrefix   string `mapstructure:"upload_prefix"`
	SnapshotPrefix string `mapstructure:"snapshot_prefix"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	Table       string `mapstructure:"table"`
	MaxConns    int32  `mapstructure:"max_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	TopicName    string `mapstructure:"topic_name"`
	Subscription string `mapstructure:"subscription"`
}

// ForwarderConfig points storage-event notifications at a workflow webhook.
type ForwarderConfig struct {
	WebhookURL     string `mapstructure:"webhook_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// UploadConfig limits what the upload form accepts.
type UploadConfig struct {
	FieldName         string   `mapstructure:"field_name"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
	MaxBytes          int64    `mapstructure:"max_bytes"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LOANSCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("forwarder.webhook_url", "LOANSCRAPER_FORWARDER_WEBHOOK_URL", "N8N_WEBHOOK_URL"); err != nil {
		return Config{}, fmt.Errorf("bind webhook env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("scraper.url", "https://www.bankbazaar.com/personal-loan-interest-rate.html")
	v.SetDefault("scraper.source", "BankBazaar")
	v.SetDefault("scraper.user_agent", "Mozilla/5.0")
	v.SetDefault("scraper.respect_robots", false)
	v.SetDefault("scraper.timezone", "UTC")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.promote_only", false)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("storage.provider", StorageMemory)
	v.SetDefault("storage.upload_prefix", "uploads")
	v.SetDefault("storage.snapshot_prefix", "snapshots")
	v.SetDefault("db.table", "loan_records")
	v.SetDefault("db.auto_migrate", false)
	v.SetDefault("forwarder.timeout_seconds", 15)
	v.SetDefault("upload.field_name", "csv_file")
	v.SetDefault("upload.allowed_extensions", []string{".csv"})
	v.SetDefault("upload.max_bytes", 32<<20)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if strings.TrimSpace(c.Scraper.URL) == "" {
		return fmt.Errorf("scraper.url is required")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if _, err := time.LoadLocation(c.Scraper.Timezone); err != nil {
		return fmt.Errorf("scraper.timezone is invalid: %w", err)
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Storage.Provider {
	case StorageMemory:
	case StorageLocal:
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir is required for the local provider")
		}
	case StorageGCS, StorageS3:
		if strings.TrimSpace(c.Storage.Bucket) == "" {
			return fmt.Errorf("storage.bucket is required for the %s provider", c.Storage.Provider)
		}
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	if c.Forwarder.WebhookURL != "" {
		u, err := url.Parse(c.Forwarder.WebhookURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("forwarder.webhook_url must be an absolute URL")
		}
	}
	if c.Forwarder.TimeoutSeconds <= 0 {
		return fmt.Errorf("forwarder.timeout_seconds must be > 0")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be > 0")
	}
	if strings.TrimSpace(c.Upload.FieldName) == "" {
		return fmt.Errorf("upload.field_name is required")
	}
	if c.PubSub.Subscription != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.subscription is configured")
	}
	return nil
}

// FetchTimeout is the ceiling applied to the rate page fetch.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ForwardTimeout is the ceiling applied to the webhook POST.
func (c Config) ForwardTimeout() time.Duration {
	return time.Duration(c.Forwarder.TimeoutSeconds) * time.Second
}

// Location resolves scraper.timezone; Validate guarantees it parses.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scraper.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RedactDSN hides the password of a URL-style DSN so it can be logged.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "[redacted]"
	}
	return u.Redacted()
}
