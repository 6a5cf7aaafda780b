// Package config provides configuration management for the outreach engine.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults. Pacing values mirror the limits the remote platform tolerates.
const (
	DefaultListenAddr        = "127.0.0.1:37997"
	DefaultPlatformBaseURL   = "https://alpha.date/api"
	DefaultRetryCooldown     = 50 * time.Second
	DefaultIdleCooldown      = 50 * time.Second
	DefaultMessageDelay      = 7 * time.Second
	DefaultHeartbeatInterval = 110 * time.Second
	DefaultSessionTTL        = 9 * time.Hour
	DefaultSweepInterval     = 5 * time.Minute
	DefaultHTTPTimeout       = 30 * time.Second
	DefaultMinMailLength     = 150
)

// Config holds all engine tunables. Durations are expressed in seconds in
// the settings file and env.
type Config struct {
	ListenAddr      string `yaml:"listen_addr"`
	PlatformBaseURL string `yaml:"platform_base_url"`

	RetryCooldownSec     int `yaml:"retry_cooldown_sec"`
	IdleCooldownSec      int `yaml:"idle_cooldown_sec"`
	MessageDelaySec      int `yaml:"message_delay_sec"`
	HeartbeatIntervalSec int `yaml:"heartbeat_interval_sec"`
	SessionTTLHours      int `yaml:"session_ttl_hours"`
	HTTPTimeoutSec       int `yaml:"http_timeout_sec"`
	MinMailLength        int `yaml:"min_mail_length"`

	Debug bool `yaml:"debug"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:           DefaultListenAddr,
		PlatformBaseURL:      DefaultPlatformBaseURL,
		RetryCooldownSec:     int(DefaultRetryCooldown / time.Second),
		IdleCooldownSec:      int(DefaultIdleCooldown / time.Second),
		MessageDelaySec:      int(DefaultMessageDelay / time.Second),
		HeartbeatIntervalSec: int(DefaultHeartbeatInterval / time.Second),
		SessionTTLHours:      int(DefaultSessionTTL / time.Hour),
		HTTPTimeoutSec:       int(DefaultHTTPTimeout / time.Second),
		MinMailLength:        DefaultMinMailLength,
	}
}

// Load reads the settings file at path (if it exists), then applies
// ENGINE_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse settings: %w", err)
			}
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ENGINE_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("ENGINE_PLATFORM_BASE_URL"); v != "" {
		c.PlatformBaseURL = v
	}
	envInt("ENGINE_RETRY_COOLDOWN_SEC", &c.RetryCooldownSec)
	envInt("ENGINE_IDLE_COOLDOWN_SEC", &c.IdleCooldownSec)
	envInt("ENGINE_MESSAGE_DELAY_SEC", &c.MessageDelaySec)
	envInt("ENGINE_HEARTBEAT_INTERVAL_SEC", &c.HeartbeatIntervalSec)
	envInt("ENGINE_SESSION_TTL_HOURS", &c.SessionTTLHours)
	envInt("ENGINE_HTTP_TIMEOUT_SEC", &c.HTTPTimeoutSec)
	envInt("ENGINE_MIN_MAIL_LENGTH", &c.MinMailLength)
	if v := os.Getenv("ENGINE_DEBUG"); v != "" {
		c.Debug = v == "1" || v == "true"
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

// normalize clamps nonsensical values back to defaults.
func (c *Config) normalize() {
	d := Default()
	if c.RetryCooldownSec <= 0 {
		c.RetryCooldownSec = d.RetryCooldownSec
	}
	if c.IdleCooldownSec <= 0 {
		c.IdleCooldownSec = d.IdleCooldownSec
	}
	if c.MessageDelaySec < 0 {
		c.MessageDelaySec = d.MessageDelaySec
	}
	if c.HeartbeatIntervalSec <= 0 {
		c.HeartbeatIntervalSec = d.HeartbeatIntervalSec
	}
	if c.SessionTTLHours <= 0 {
		c.SessionTTLHours = d.SessionTTLHours
	}
	if c.HTTPTimeoutSec <= 0 {
		c.HTTPTimeoutSec = d.HTTPTimeoutSec
	}
	if c.MinMailLength <= 0 {
		c.MinMailLength = d.MinMailLength
	}
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.PlatformBaseURL == "" {
		c.PlatformBaseURL = d.PlatformBaseURL
	}
}

// Duration accessors.

func (c *Config) RetryCooldown() time.Duration {
	return time.Duration(c.RetryCooldownSec) * time.Second
}

func (c *Config) IdleCooldown() time.Duration {
	return time.Duration(c.IdleCooldownSec) * time.Second
}

func (c *Config) MessageDelay() time.Duration {
	return time.Duration(c.MessageDelaySec) * time.Second
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSec) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

// Store holds the live configuration and supports atomic replacement when
// the settings file is reloaded. Readers call Current on every use so
// tunable changes apply without restarting workers.
type Store struct {
	cur atomic.Pointer[Config]
}

// NewStore creates a Store seeded with cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.cur.Store(cfg)
	return s
}

// Current returns the live configuration. The returned value must be
// treated as read-only.
func (s *Store) Current() *Config {
	return s.cur.Load()
}

// Replace swaps in a new configuration.
func (s *Store) Replace(cfg *Config) {
	s.cur.Store(cfg)
}
