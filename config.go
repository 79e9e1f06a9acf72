package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"liveboard/internal/bridge"
	"liveboard/internal/session"
)

// Config represents the server configuration
type Config struct {
	Addr       string        `yaml:"addr"`
	StaticDir  string        `yaml:"static_dir"`
	LogLevel   string        `yaml:"log_level"`   // debug, info, warn, error
	SendBuffer int           `yaml:"send_buffer"` // queued frames per client before dropping
	Session    SessionConfig `yaml:"session"`
	MQTT       bridge.Config `yaml:"mqtt"` // optional, empty broker disables the bridge
}

// SessionConfig holds cursor and reaction timing
type SessionConfig struct {
	EmitInterval  time.Duration `yaml:"emit_interval"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	ReactionTTL   time.Duration `yaml:"reaction_ttl"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() Config {
	s := session.DefaultConfig()
	return Config{
		Addr:       ":8080",
		StaticDir:  "./static",
		LogLevel:   "info",
		SendBuffer: 256,
		Session: SessionConfig{
			EmitInterval:  s.EmitInterval,
			SweepInterval: s.SweepInterval,
			ReactionTTL:   s.ReactionTTL,
		},
		MQTT: bridge.Config{TopicPrefix: "liveboard"},
	}
}

// LoadConfig reads a YAML file over the defaults. An empty path returns
// the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be > 0, got %d", c.SendBuffer)
	}
	if c.Session.EmitInterval <= 0 {
		return errors.New("session.emit_interval must be > 0")
	}
	if c.Session.SweepInterval <= 0 {
		return errors.New("session.sweep_interval must be > 0")
	}
	if c.Session.ReactionTTL <= 0 {
		return errors.New("session.reaction_ttl must be > 0")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return nil
}

// Level parses LogLevel
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// SessionConfig converts the timing section for the session package
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		EmitInterval:  c.Session.EmitInterval,
		SweepInterval: c.Session.SweepInterval,
		ReactionTTL:   c.Session.ReactionTTL,
	}
}
