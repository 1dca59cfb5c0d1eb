// Package config provides YAML-based configuration loading for Gantry.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Gantry configuration, loaded from gantry.yaml.
type Config struct {
	Database DatabaseConfig    `yaml:"database"`
	Listen   ListenConfig      `yaml:"listen"`
	Hosts    []HostConfig      `yaml:"hosts"`
	Agents   map[string]string `yaml:"agents"` // host name -> execution agent base URL
	Storage  StorageConfig     `yaml:"storage"`
	Notify   NotifyConfig      `yaml:"notify"`
	Digest   DigestConfig      `yaml:"digest"`
}

// DatabaseConfig selects and configures the record store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "mysql"
	Path   string `yaml:"path"`   // sqlite file path
	Host   string `yaml:"host"`   // mysql
	Port   int    `yaml:"port"`   // mysql
	Name   string `yaml:"name"`   // mysql database name
}

// ListenConfig holds the API server settings.
type ListenConfig struct {
	Port int `yaml:"port"`
}

// HostConfig seeds one compute host into the inventory.
type HostConfig struct {
	Name     string `yaml:"name"`
	Node     string `yaml:"node"`
	VCPUs    int    `yaml:"vcpus"`
	MemoryMB int64  `yaml:"memory_mb"`
	DiskGB   int64  `yaml:"disk_gb"`
}

// StorageConfig points at the external volume service.
type StorageConfig struct {
	URL string `yaml:"url"`
}

// NotifyConfig configures outbound event sinks. Empty sections are disabled.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack sink credentials.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig holds Discord sink credentials.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DigestConfig schedules the periodic migration activity digest.
// Schedule is a standard 5-field cron expression; empty disables the digest.
type DigestConfig struct {
	Schedule string `yaml:"schedule"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "gantry.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "gantry"
		}
	}
	if c.Listen.Port == 0 {
		c.Listen.Port = 8700
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, mysql)", c.Database.Driver))
	}
	for i, h := range c.Hosts {
		if h.Name == "" {
			errs = append(errs, fmt.Sprintf("hosts[%d].name is required", i))
		}
		if h.Node == "" {
			errs = append(errs, fmt.Sprintf("hosts[%d].node is required", i))
		}
		if h.VCPUs <= 0 || h.MemoryMB <= 0 || h.DiskGB <= 0 {
			errs = append(errs, fmt.Sprintf("hosts[%d] capacity must be positive", i))
		}
	}
	if c.Notify.Slack.BotToken != "" && c.Notify.Slack.Channel == "" {
		errs = append(errs, "notify.slack.channel is required when a bot token is set")
	}
	if c.Notify.Discord.BotToken != "" && c.Notify.Discord.ChannelID == "" {
		errs = append(errs, "notify.discord.channel_id is required when a bot token is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
