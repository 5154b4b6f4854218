// Package config loads the indicator engine configuration: a YAML pipeline
// definition, an optional .env file and environment overrides, in that order.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mihakralj/QuanTAlib-sub003/internal/indicator"
)

// Config holds all configuration for the engine binaries.
type Config struct {
	// Symbols restricts processing to these symbols; empty accepts all.
	Symbols []string `yaml:"symbols"`
	// TF is the bar timeframe in seconds.
	TF       int                         `yaml:"tf"`
	MaxDepth int                         `yaml:"max_depth"`
	Pipeline []indicator.IndicatorConfig `yaml:"indicators"`

	Feed struct {
		URL          string        `yaml:"url"`
		MaxReconnect time.Duration `yaml:"max_reconnect"`
	} `yaml:"feed"`
	Redis struct {
		Addr         string `yaml:"addr"`
		Password     string `yaml:"password"`
		StreamMaxLen int64  `yaml:"stream_max_len"`
	} `yaml:"redis"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Alerts struct {
		Webhook string   `yaml:"webhook"` // empty = log only
		Series  []string `yaml:"series"`
	} `yaml:"alerts"`
	Backfill struct {
		Bars int `yaml:"bars"` // 0 = pipeline lookback
	} `yaml:"backfill"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads the YAML file at path (a missing file is not an error), loads
// envFiles (".env" when none are given) without overriding variables that
// are already set, then applies environment overrides and defaults.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load(envFiles...)

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := getEnv("SYMBOLS", ""); v != "" {
		c.Symbols = parseList(v)
	}
	if v := getEnv("TF", ""); v != "" {
		tf, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TF: %v", err)
		}
		c.TF = tf
	}
	if v := getEnv("INDICATOR_CONFIGS", ""); v != "" {
		c.Pipeline = ParseIndicatorSpecs(v)
	}
	c.Feed.URL = getEnv("FEED_URL", c.Feed.URL)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.SQLite.Path = getEnv("SQLITE_PATH", c.SQLite.Path)
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Alerts.Webhook = getEnv("ALERT_WEBHOOK", c.Alerts.Webhook)
	if v := getEnv("ALERT_SERIES", ""); v != "" {
		c.Alerts.Series = parseList(v)
	}
	if v := getEnv("BACKFILL_BARS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BACKFILL_BARS: %v", err)
		}
		c.Backfill.Bars = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.TF == 0 {
		c.TF = 60
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = indicator.DefaultMaxDepth
	}
	if len(c.Pipeline) == 0 {
		c.Pipeline = ParseIndicatorSpecs("")
	}
	if c.Feed.MaxReconnect == 0 {
		c.Feed.MaxReconnect = 30 * time.Second
	}
	if c.Redis.StreamMaxLen == 0 {
		c.Redis.StreamMaxLen = 10000
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":9095"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the configuration, including the pipeline graph.
func (c *Config) Validate() error {
	if c.TF <= 0 {
		return fmt.Errorf("invalid tf=%d: must be positive", c.TF)
	}
	if c.Backfill.Bars < 0 {
		return fmt.Errorf("invalid backfill bars=%d", c.Backfill.Bars)
	}
	if err := indicator.ValidateConfigs(c.Pipeline, c.MaxDepth); err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	return nil
}

// AcceptsSymbol reports whether sym passes the Symbols filter.
func (c *Config) AcceptsSymbol(sym string) bool {
	if len(c.Symbols) == 0 {
		return true
	}
	for _, s := range c.Symbols {
		if s == sym {
			return true
		}
	}
	return false
}

// ParseIndicatorSpecs parses the compact "TYPE:PERIOD,..." form used by the
// INDICATOR_CONFIGS env var, e.g. "SMA:20,EMA:9,RSI:14". Returns defaults if
// input is empty or nothing valid was parsed.
func ParseIndicatorSpecs(s string) []indicator.IndicatorConfig {
	if s == "" {
		return []indicator.IndicatorConfig{
			{Type: "SMA", Period: 9},
			{Type: "SMA", Period: 20},
			{Type: "EMA", Period: 9},
			{Type: "EMA", Period: 21},
			{Type: "RSI", Period: 14},
			{Type: "MACD"},
		}
	}

	var configs []indicator.IndicatorConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		tokens := strings.SplitN(part, ":", 2)
		typ := strings.ToUpper(strings.TrimSpace(tokens[0]))
		if typ == "MACD" && len(tokens) == 1 {
			configs = append(configs, indicator.IndicatorConfig{Type: typ})
			continue
		}
		if len(tokens) != 2 {
			log.Printf("[config] skipping invalid indicator spec: %q", part)
			continue
		}
		period, err := strconv.Atoi(strings.TrimSpace(tokens[1]))
		if err != nil || period <= 0 {
			log.Printf("[config] skipping invalid indicator spec: %q", part)
			continue
		}
		configs = append(configs, indicator.IndicatorConfig{Type: typ, Period: period})
	}
	if len(configs) == 0 {
		log.Println("[config] WARNING: no valid indicators parsed, using defaults")
		return ParseIndicatorSpecs("")
	}
	log.Printf("[config] loaded %d indicator specs from INDICATOR_CONFIGS", len(configs))
	return configs
}

func parseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
