package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr              string          `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration   `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string          `mapstructure:"log_level" yaml:"log_level"`
	MaxMessageBytes   int64           `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendBuffer        int             `mapstructure:"send_buffer" yaml:"send_buffer"`
	PingInterval      time.Duration   `mapstructure:"ping_interval" yaml:"ping_interval"`
	RateLimit         int             `mapstructure:"rate_limit" yaml:"rate_limit"` // control messages per minute, 0 disables
	DatabasePath      string          `mapstructure:"database_path" yaml:"database_path"`
	SessionRetention  time.Duration   `mapstructure:"session_retention" yaml:"session_retention"`
	Channels          []ChannelConfig `mapstructure:"channels" yaml:"channels"`
	Discovery         DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
}

// ChannelConfig describes one talk channel.
type ChannelConfig struct {
	ID          string `mapstructure:"id" yaml:"id"`
	Name        string `mapstructure:"name" yaml:"name"`
	Description string `mapstructure:"description" yaml:"description,omitempty"`
}

// DiscoveryConfig controls the mDNS advertisement of the relay.
type DiscoveryConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Instance string `mapstructure:"instance" yaml:"instance"`
	Service  string `mapstructure:"service" yaml:"service"`
	Domain   string `mapstructure:"domain" yaml:"domain"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		MaxMessageBytes:   64 << 10,
		SendBuffer:        64,
		PingInterval:      30 * time.Second,
		RateLimit:         600,
		DatabasePath:      "portofoon.db",
		SessionRetention:  30 * 24 * time.Hour,
		Channels: []ChannelConfig{
			{ID: "general", Name: "General", Description: "Everyone on site"},
			{ID: "security", Name: "Security", Description: "Security staff"},
			{ID: "technical", Name: "Technical", Description: "Technical crew"},
		},
		Discovery: DiscoveryConfig{
			Enabled:  false,
			Instance: "Aquadroom portofoon",
			Service:  "_portofoon._tcp",
			Domain:   "local.",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.SendBuffer != 0 {
		c.SendBuffer = other.SendBuffer
	}
	if other.PingInterval != 0 {
		c.PingInterval = other.PingInterval
	}
	if other.RateLimit != 0 {
		c.RateLimit = other.RateLimit
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.SessionRetention != 0 {
		c.SessionRetention = other.SessionRetention
	}
	if len(other.Channels) > 0 {
		c.Channels = other.Channels
	}
}

var (
	// ErrNoChannels is returned when the channel list is empty.
	ErrNoChannels = errors.New("at least one channel is required")
	// ErrInvalidChannel is returned for an empty or duplicate channel id.
	ErrInvalidChannel = errors.New("invalid channel")
)

// Validate checks the values the server cannot start without.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if len(c.Channels) == 0 {
		return ErrNoChannels
	}
	seen := make(map[string]struct{}, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.ID == "" {
			return fmt.Errorf("channel #%d: %w: empty id", i, ErrInvalidChannel)
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("channel %q: %w: duplicate id", ch.ID, ErrInvalidChannel)
		}
		seen[ch.ID] = struct{}{}
	}
	if c.SendBuffer < 0 {
		return errors.New("send_buffer must not be negative")
	}
	if c.Discovery.Enabled && c.Discovery.Service == "" {
		return errors.New("discovery.service is required when discovery is enabled")
	}
	return nil
}
