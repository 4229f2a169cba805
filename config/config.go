// backend/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RateLimitConfig holds the per-domain pacing policy. Delays are duration
// strings in the YAML ("2s", "1500ms") and parsed on load.
type RateLimitConfig struct {
	DefaultDelayStr string            `yaml:"default_delay"`
	PenaltyDelayStr string            `yaml:"penalty_delay"`
	DomainDelayStrs map[string]string `yaml:"domain_delays"`

	DefaultDelay time.Duration            `yaml:"-"`
	PenaltyDelay time.Duration            `yaml:"-"`
	DomainDelays map[string]time.Duration `yaml:"-"`
}

type PipelineConfig struct {
	MaxRetries         int     `yaml:"max_retries"`
	WriteTimeoutStr    string  `yaml:"write_timeout"`
	ErrorPenalty       float64 `yaml:"error_penalty"`
	CompletenessWeight float64 `yaml:"completeness_weight"`
	StopAfterFailures  int     `yaml:"stop_after_failures"`

	WriteTimeout time.Duration `yaml:"-"`
}

type CrawlerConfig struct {
	Workers          int     `yaml:"workers"`
	GlobalRatePerSec float64 `yaml:"global_rate_per_sec"`
	GlobalBurst      int     `yaml:"global_burst"`
	FetchTimeoutStr  string  `yaml:"fetch_timeout"`

	FetchTimeout time.Duration `yaml:"-"`
}

// SelectorSet is the CSS selector profile for one site. Replaces per-site
// spider subclasses with data-described extraction rules.
type SelectorSet struct {
	Title        string `yaml:"title"`
	Price        string `yaml:"price"`
	Brand        string `yaml:"brand"`
	Description  string `yaml:"description"`
	Availability string `yaml:"availability"`
	Rating       string `yaml:"rating"`
	Image        string `yaml:"image"`
	SpecRows     string `yaml:"spec_rows"`
}

type SiteConfig struct {
	Name      string      `yaml:"name"`
	Domain    string      `yaml:"domain"`
	ItemURLs  []string    `yaml:"item_urls"`
	Selectors SelectorSet `yaml:"selectors"`
}

type ExportConfig struct {
	Dir     string   `yaml:"dir"`
	Formats []string `yaml:"formats"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Sites     []SiteConfig    `yaml:"sites"`
	Export    ExportConfig    `yaml:"export"`
}

// Load reads and parses the YAML config file, applying defaults for anything
// left unset. The returned Config is handed to each component by the caller;
// nothing here is kept as package state.
func Load(configPath string) (*Config, error) {
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	// Environment overrides for deployment without editing the file.
	if p := os.Getenv("HWTRACKER_DB_PATH"); p != "" {
		cfg.Database.Path = p
	}
	if p := os.Getenv("HWTRACKER_PORT"); p != "" {
		cfg.Server.Port = p
	}

	return &cfg, nil
}

func (c *Config) parseDurations() error {
	var err error

	if c.RateLimit.DefaultDelayStr != "" {
		c.RateLimit.DefaultDelay, err = time.ParseDuration(c.RateLimit.DefaultDelayStr)
		if err != nil {
			return fmt.Errorf("failed to parse ratelimit.default_delay: %w", err)
		}
	}
	if c.RateLimit.PenaltyDelayStr != "" {
		c.RateLimit.PenaltyDelay, err = time.ParseDuration(c.RateLimit.PenaltyDelayStr)
		if err != nil {
			return fmt.Errorf("failed to parse ratelimit.penalty_delay: %w", err)
		}
	}
	c.RateLimit.DomainDelays = make(map[string]time.Duration, len(c.RateLimit.DomainDelayStrs))
	for domain, s := range c.RateLimit.DomainDelayStrs {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("failed to parse ratelimit.domain_delays[%s]: %w", domain, err)
		}
		c.RateLimit.DomainDelays[domain] = d
	}

	if c.Pipeline.WriteTimeoutStr != "" {
		c.Pipeline.WriteTimeout, err = time.ParseDuration(c.Pipeline.WriteTimeoutStr)
		if err != nil {
			return fmt.Errorf("failed to parse pipeline.write_timeout: %w", err)
		}
	}
	if c.Crawler.FetchTimeoutStr != "" {
		c.Crawler.FetchTimeout, err = time.ParseDuration(c.Crawler.FetchTimeoutStr)
		if err != nil {
			return fmt.Errorf("failed to parse crawler.fetch_timeout: %w", err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "hardware_data.db"
	}
	// Unconfigured domains must still get a safe non-zero delay.
	if c.RateLimit.DefaultDelay <= 0 {
		c.RateLimit.DefaultDelay = 2 * time.Second
	}
	if c.RateLimit.PenaltyDelay <= 0 {
		c.RateLimit.PenaltyDelay = 10 * time.Second
	}
	if c.Pipeline.MaxRetries <= 0 {
		c.Pipeline.MaxRetries = 3
	}
	if c.Pipeline.WriteTimeout <= 0 {
		c.Pipeline.WriteTimeout = 30 * time.Second
	}
	if c.Pipeline.ErrorPenalty <= 0 {
		c.Pipeline.ErrorPenalty = 0.1
	}
	if c.Pipeline.CompletenessWeight <= 0 {
		c.Pipeline.CompletenessWeight = 0.2
	}
	if c.Pipeline.StopAfterFailures <= 0 {
		c.Pipeline.StopAfterFailures = 5
	}
	if c.Crawler.Workers <= 0 {
		c.Crawler.Workers = 8
	}
	if c.Crawler.GlobalRatePerSec <= 0 {
		c.Crawler.GlobalRatePerSec = 4
	}
	if c.Crawler.GlobalBurst <= 0 {
		c.Crawler.GlobalBurst = 8
	}
	if c.Crawler.FetchTimeout <= 0 {
		c.Crawler.FetchTimeout = 30 * time.Second
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "exports"
	}
	if len(c.Export.Formats) == 0 {
		c.Export.Formats = []string{"json", "csv"}
	}
}
