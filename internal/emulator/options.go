// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package emulator

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ffutop/c0microsd-toolkit/device"
	"github.com/ffutop/c0microsd-toolkit/internal/emulator/persistence"
)

// Option configures a Card.
type Option func(*Card)

// WithStorage sets where the flash image lives. Defaults to memory.
func WithStorage(s persistence.Storage) Option {
	return func(c *Card) {
		c.storage = s
	}
}

// WithIdentity sets the configuration the card boots into.
func WithIdentity(id device.Identity) Option {
	return func(c *Card) {
		c.identity = id
	}
}

// WithVersion sets the version reported in the status block.
func WithVersion(v device.Version) Option {
	return func(c *Card) {
		c.version = v
	}
}

// WithLatency sets how many status polls a command spends Calculating.
func WithLatency(polls int) Option {
	return func(c *Card) {
		c.latency = polls
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Card) {
		c.logger = logger
	}
}

// ParseIdentity converts a configured mode name into an identity.
func ParseIdentity(mode string) (device.Identity, error) {
	switch strings.ToLower(mode) {
	case "bootloader", "":
		return device.Bootloader, nil
	case "soc":
		return device.SoC, nil
	default:
		return device.Unknown, fmt.Errorf("unknown card mode %q", mode)
	}
}

// ParseVersion converts a "major.minor" string into a version. An empty
// string is version 1.0.
func ParseVersion(s string) (device.Version, error) {
	if s == "" {
		return device.Version{Major: 1}, nil
	}
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return device.Version{}, fmt.Errorf("invalid card version %q: want major.minor", s)
	}
	ma, err := strconv.ParseUint(major, 10, 16)
	if err != nil {
		return device.Version{}, fmt.Errorf("invalid card version %q: %w", s, err)
	}
	mi, err := strconv.ParseUint(minor, 10, 16)
	if err != nil {
		return device.Version{}, fmt.Errorf("invalid card version %q: %w", s, err)
	}
	return device.Version{Major: uint16(ma), Minor: uint16(mi)}, nil
}
