// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Output backends.
const (
	OutputPostgres = "postgres"
	OutputArchive  = "archive"
)

// Browser clients.
const (
	BrowserChromedp = "chromedp"
	BrowserColly    = "colly"
)

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Browser BrowserConfig `mapstructure:"browser"`
	Captcha CaptchaConfig `mapstructure:"captcha"`
	DB      DBConfig      `mapstructure:"db"`
	Output  OutputConfig  `mapstructure:"output"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Ops     OpsConfig     `mapstructure:"ops"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SiteConfig selects which site strategy to run.
type SiteConfig struct {
	Name string `mapstructure:"name"`
}

// CrawlerConfig governs the fetch gateway and pipeline.
type CrawlerConfig struct {
	Workers           int     `mapstructure:"workers"`
	MaxPermits        int     `mapstructure:"max_permits"`
	MaxRetries        int     `mapstructure:"max_retries"`
	RetryDelaySeconds int     `mapstructure:"retry_delay_seconds"`
	MaxRetryDelaySec  int     `mapstructure:"max_retry_delay_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	ResultBuffer      int     `mapstructure:"result_buffer"`
	SitemapFetches    int     `mapstructure:"sitemap_fetches"`
}

// BrowserConfig configures the page client.
type BrowserConfig struct {
	Client            string `mapstructure:"client"`
	Headless          bool   `mapstructure:"headless"`
	UserAgent         string `mapstructure:"user_agent"`
	RequestTimeoutSec int    `mapstructure:"request_timeout_seconds"`
}

// CaptchaConfig tunes the challenge coordinator.
type CaptchaConfig struct {
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
	SolveTimeoutSeconds int    `mapstructure:"solve_timeout_seconds"`
	TitleMarker         string `mapstructure:"title_marker"`
}

// DBConfig controls the Postgres pool.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// OutputConfig picks the persistence backend.
type OutputConfig struct {
	Mode string `mapstructure:"mode"`
	// Dir and Object locate the archive snapshot when mode is archive.
	Dir    string `mapstructure:"dir"`
	Object string `mapstructure:"object"`
	// GCSBucket, when set, additionally uploads flushed snapshots there.
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds the run-completion event destination.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// OpsConfig controls the operational HTTP endpoint.
type OpsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
	v.SetDefault("site.name", "ssense")
	v.SetDefault("crawler.workers", 8)
	v.SetDefault("crawler.max_permits", 200)
	v.SetDefault("crawler.max_retries", 5)
	v.SetDefault("crawler.retry_delay_seconds", 5)
	v.SetDefault("crawler.max_retry_delay_seconds", 60)
	v.SetDefault("crawler.requests_per_second", 0)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("crawler.result_buffer", 64)
	v.SetDefault("crawler.sitemap_fetches", 4)
	v.SetDefault("browser.client", BrowserChromedp)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.request_timeout_seconds", 45)
	v.SetDefault("captcha.poll_interval_seconds", 1)
	v.SetDefault("captcha.solve_timeout_seconds", 0)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("output.mode", OutputArchive)
	v.SetDefault("output.dir", "./data")
	v.SetDefault("output.object", "catalog.json.br")
	v.SetDefault("ops.enabled", true)
	v.SetDefault("ops.port", 9090)
	v.SetDefault("logging.development", false)
}

// Validate rejects configurations the crawler cannot run with.
func (c Config) Validate() error {
	if c.Site.Name == "" {
		return fmt.Errorf("site.name is required")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be positive")
	}
	if c.Crawler.MaxPermits <= 0 {
		return fmt.Errorf("crawler.max_permits must be positive")
	}
	if c.Crawler.MaxRetries <= 0 {
		return fmt.Errorf("crawler.max_retries must be positive")
	}
	switch c.Browser.Client {
	case BrowserChromedp, BrowserColly:
	default:
		return fmt.Errorf("browser.client must be %q or %q", BrowserChromedp, BrowserColly)
	}
	switch c.Output.Mode {
	case OutputPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required when output.mode is %q", OutputPostgres)
		}
	case OutputArchive:
		if c.Output.Dir == "" {
			return fmt.Errorf("output.dir is required when output.mode is %q", OutputArchive)
		}
	default:
		return fmt.Errorf("output.mode must be %q or %q", OutputPostgres, OutputArchive)
	}
	if c.PubSub.Enabled {
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required when pubsub.enabled")
		}
	}
	if c.Ops.Enabled && (c.Ops.Port <= 0 || c.Ops.Port > 65535) {
		return fmt.Errorf("ops.port must be a valid port")
	}
	return nil
}
