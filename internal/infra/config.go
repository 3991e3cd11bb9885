package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"pricestream/internal/codec"
	"pricestream/internal/domain"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is sent on the WebSocket handshake
	DefaultUserAgent = "pricestream/1.0"
)

// Config holds every application setting. Secrets can be overridden from the
// environment after the file is loaded.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Feed struct {
		Provider  string   `yaml:"provider"` // finnhub, coinbase, echo
		URL       string   `yaml:"url"`      // Empty means the provider default
		Token     string   `yaml:"token"`
		Symbols   []string `yaml:"symbols"`
		Greeting  string   `yaml:"greeting"`
		UserAgent string   `yaml:"user_agent"`
	} `yaml:"feed"`

	Connection struct {
		ReadyDelayMS       int `yaml:"ready_delay_ms"`
		ReconnectDelayMS   int `yaml:"reconnect_delay_ms"`
		PingIntervalMS     int `yaml:"ping_interval_ms"`
		MaxBackoffMS       int `yaml:"max_backoff_ms"`
		WriteTimeoutMS     int `yaml:"write_timeout_ms"`
		HandshakeTimeoutMS int `yaml:"handshake_timeout_ms"`
	} `yaml:"connection"`

	Storage struct {
		Path string `yaml:"path"` // Empty means the user config dir
	} `yaml:"storage"`

	Redis struct {
		Enabled    bool   `yaml:"enabled"`
		Addr       string `yaml:"addr"`
		Password   string `yaml:"password"`
		DB         int    `yaml:"db"`
		KeyPrefix  string `yaml:"key_prefix"`
		Channel    string `yaml:"channel"`
		TTLSeconds int    `yaml:"ttl_seconds"`
	} `yaml:"redis"`

	Server struct {
		Addr string `yaml:"addr"` // Metrics and status endpoint, empty disables
	} `yaml:"server"`

	MarketHours struct {
		Holidays []string `yaml:"holidays"`
	} `yaml:"market_hours"`

	Display struct {
		HighlightMS int `yaml:"highlight_ms"`
	} `yaml:"display"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig reads, overrides and validates the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &domain.ConfigError{Field: "yaml", Err: err}
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "pricestream"
	}
	if c.Feed.Provider == "" {
		c.Feed.Provider = "finnhub"
	}
	if c.Feed.UserAgent == "" {
		c.Feed.UserAgent = DefaultUserAgent
	}
	if c.Connection.ReadyDelayMS == 0 {
		c.Connection.ReadyDelayMS = 1000
	}
	if c.Connection.ReconnectDelayMS == 0 {
		c.Connection.ReconnectDelayMS = 5000
	}
	if c.Connection.PingIntervalMS == 0 {
		c.Connection.PingIntervalMS = 20000
	}
	if c.Connection.MaxBackoffMS == 0 {
		c.Connection.MaxBackoffMS = 60000
	}
	if c.Connection.WriteTimeoutMS == 0 {
		c.Connection.WriteTimeoutMS = 5000
	}
	if c.Connection.HandshakeTimeoutMS == 0 {
		c.Connection.HandshakeTimeoutMS = 10000
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "price"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "prices"
	}
	if c.Redis.TTLSeconds == 0 {
		c.Redis.TTLSeconds = 60
	}
	if c.Display.HighlightMS == 0 {
		c.Display.HighlightMS = 500
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	dialect, err := codec.Lookup(c.Feed.Provider)
	if err != nil {
		return &domain.ConfigError{Field: "feed.provider", Err: err}
	}

	if c.Feed.URL != "" && !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
		return &domain.ConfigError{Field: "feed.url", Err: fmt.Errorf("invalid WebSocket URL: %s", c.Feed.URL)}
	}
	if dialect.Name() == "finnhub" && c.Feed.Token == "" {
		return &domain.ConfigError{Field: "feed.token", Err: errors.New("token is required for finnhub")}
	}

	conn := c.Connection
	for field, v := range map[string]int{
		"connection.ready_delay_ms":       conn.ReadyDelayMS,
		"connection.reconnect_delay_ms":   conn.ReconnectDelayMS,
		"connection.ping_interval_ms":     conn.PingIntervalMS,
		"connection.max_backoff_ms":       conn.MaxBackoffMS,
		"connection.write_timeout_ms":     conn.WriteTimeoutMS,
		"connection.handshake_timeout_ms": conn.HandshakeTimeoutMS,
	} {
		if v < 0 {
			return &domain.ConfigError{Field: field, Err: errors.New("must not be negative")}
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return &domain.ConfigError{Field: "redis.addr", Err: errors.New("address is required when redis is enabled")}
	}

	return nil
}

// Timings returns the connection knobs as durations.
func (c *Config) Timings() (ready, reconnect, ping, maxBackoff, writeTimeout, handshake time.Duration) {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	conn := c.Connection
	return ms(conn.ReadyDelayMS), ms(conn.ReconnectDelayMS), ms(conn.PingIntervalMS),
		ms(conn.MaxBackoffMS), ms(conn.WriteTimeoutMS), ms(conn.HandshakeTimeoutMS)
}

// overrideWithEnv replaces settings with environment variables when set.
func overrideWithEnv(cfg *Config) {
	if token := os.Getenv("PRICESTREAM_FEED_TOKEN"); token != "" {
		cfg.Feed.Token = token
	}
	if url := os.Getenv("PRICESTREAM_FEED_URL"); url != "" {
		cfg.Feed.URL = url
	}
	if addr := os.Getenv("PRICESTREAM_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if pass := os.Getenv("PRICESTREAM_REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}
	if level := os.Getenv("PRICESTREAM_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
