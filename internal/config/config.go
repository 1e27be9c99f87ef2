// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Device  DeviceConfig  `mapstructure:"device"`
	Flash   FlashConfig   `mapstructure:"flash"`
	Command CommandConfig `mapstructure:"command"`
	Log     LogConfig     `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// DeviceConfig selects the card to talk to
type DeviceConfig struct {
	Type  string      `mapstructure:"type"`  // "blockdev", "local"
	Path  string      `mapstructure:"path"`  // e.g. "/dev/sdb"
	Force bool        `mapstructure:"force"` // Skip identity and mode checks
	Local LocalConfig `mapstructure:"local"` // Used if Type is "local"
}

// LocalConfig defines settings for the emulated card
type LocalConfig struct {
	Mode        string            `mapstructure:"mode"`    // "bootloader", "soc"
	Latency     int               `mapstructure:"latency"` // Polls spent Calculating per command
	Version     string            `mapstructure:"version"` // "major.minor" reported in the status block
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig defines image storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // File path for "file/mmap" type
}

// FlashConfig defines flash/verify behaviour
type FlashConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

// CommandConfig defines SoC command polling
type CommandConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"` // 0 waits forever
	IdleCommand  uint32        `mapstructure:"idle_command"`
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"target":    "device.path",
	"force":     "device.force",
	"log-level": "log.level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.type", "blockdev")
	v.SetDefault("device.local.mode", "bootloader")
	v.SetDefault("device.local.latency", 2)
	v.SetDefault("device.local.version", "1.0")
	v.SetDefault("device.local.persistence.type", "memory")
	v.SetDefault("flash.max_attempts", 5)
	v.SetDefault("command.poll_interval", 500*time.Millisecond)
	v.SetDefault("command.timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
}

// LoadConfig loads configuration from file, then applies flags.
//
// Without an explicit configFile the usual locations are searched, and a
// missing file is not an error. flags may be nil.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/c0microsd/")
		v.AddConfigPath("$HOME/.c0microsd")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	c.Device.Type = strings.ToLower(c.Device.Type)
	c.Device.Local.Mode = strings.ToLower(c.Device.Local.Mode)
	c.Device.Local.Persistence.Type = strings.ToLower(c.Device.Local.Persistence.Type)

	switch c.Device.Type {
	case "blockdev", "local":
	default:
		return fmt.Errorf("invalid device.type %q: want blockdev or local", c.Device.Type)
	}
	switch c.Device.Local.Mode {
	case "bootloader", "soc":
	default:
		return fmt.Errorf("invalid device.local.mode %q: want bootloader or soc", c.Device.Local.Mode)
	}
	switch c.Device.Local.Persistence.Type {
	case "memory":
	case "file", "mmap":
		if c.Device.Local.Persistence.Path == "" {
			return fmt.Errorf("device.local.persistence.path is required for %s persistence", c.Device.Local.Persistence.Type)
		}
	default:
		return fmt.Errorf("invalid device.local.persistence.type %q", c.Device.Local.Persistence.Type)
	}
	if c.Flash.MaxAttempts < 1 {
		return fmt.Errorf("flash.max_attempts must be at least 1, got %d", c.Flash.MaxAttempts)
	}
	if c.Command.PollInterval <= 0 {
		c.Command.PollInterval = 500 * time.Millisecond
	}
	if c.Command.Timeout < 0 {
		return fmt.Errorf("command.timeout must not be negative")
	}
	return nil
}
