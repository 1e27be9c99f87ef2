// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package local

import (
	"fmt"
	"log/slog"

	"github.com/ffutop/c0microsd-toolkit/internal/config"
	"github.com/ffutop/c0microsd-toolkit/internal/emulator"
	"github.com/ffutop/c0microsd-toolkit/internal/emulator/persistence"
)

// Client implements transport.Transport for an in-process emulated card.
type Client struct {
	card *emulator.Card
}

// NewClient creates a new Local Client.
func NewClient(cfg config.LocalConfig) (*Client, error) {
	var storage persistence.Storage
	switch cfg.Persistence.Type {
	case "file":
		slog.Info("Initializing emulated card with file persistence", "path", cfg.Persistence.Path)
		storage = persistence.NewFileStorage(cfg.Persistence.Path)
	case "mmap":
		slog.Info("Initializing emulated card with MMAP persistence", "path", cfg.Persistence.Path)
		storage = persistence.NewMmapStorage(cfg.Persistence.Path)
	default:
		slog.Info("Initializing emulated card with memory storage (non-persistent)")
		storage = persistence.NewMemoryStorage()
	}

	identity, err := emulator.ParseIdentity(cfg.Mode)
	if err != nil {
		return nil, err
	}
	version, err := emulator.ParseVersion(cfg.Version)
	if err != nil {
		return nil, err
	}

	card, err := emulator.New(
		emulator.WithStorage(storage),
		emulator.WithIdentity(identity),
		emulator.WithVersion(version),
		emulator.WithLatency(cfg.Latency),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start emulated card: %w", err)
	}

	return &Client{card: card}, nil
}

// Read reads from the emulated card.
func (c *Client) Read(offset int64, length int) ([]byte, error) {
	return c.card.Read(offset, length)
}

// Write writes to the emulated card.
func (c *Client) Write(offset int64, data []byte) (int, error) {
	return c.card.Write(offset, data)
}

// Close saves the image and closes the storage.
func (c *Client) Close() error {
	return c.card.Close()
}
