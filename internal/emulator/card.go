// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package emulator implements an in-process C0-microSD.
//
// The card exposes the same offset map as the hardware. In Bootloader mode
// it is a flash image whose bootloader and SoC bitstream regions are write
// protected until unlocked. In SoC mode the command, status, MOSI and MISO
// registers are live and commands are executed by a Firmware.
// The configuration status block is synthesized on every read.
package emulator

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ffutop/c0microsd-toolkit/device"
	"github.com/ffutop/c0microsd-toolkit/internal/emulator/persistence"
	"github.com/ffutop/c0microsd-toolkit/soc"
)

// Card is an emulated C0-microSD. It implements transport.Transport.
type Card struct {
	mu sync.Mutex

	image   []byte
	storage persistence.Storage
	logger  *slog.Logger

	identity  device.Identity
	version   device.Version
	switching bool
	unlocked  bool

	// SoC state
	firmware  Firmware
	latency   int
	status    soc.Status
	remaining int
	outcome   soc.Status
	mosi      []byte
	miso      []byte
	executed  uint32

	faults int
}

// New creates a card and loads its flash image. A blank image is seeded
// with factory content.
func New(opts ...Option) (*Card, error) {
	c := &Card{
		identity: device.Bootloader,
		version:  device.Version{Major: 1, Minor: 0},
		latency:  2,
		firmware: ArithmeticFirmware,
		logger:   slog.Default(),
		mosi:     make([]byte, device.MOSIBufferSize),
		miso:     make([]byte, device.MISOBufferSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.storage == nil {
		c.storage = persistence.NewMemoryStorage()
	}

	image, err := c.storage.Load()
	if err != nil {
		return nil, fmt.Errorf("load card image: %w", err)
	}
	if len(image) != persistence.ImageSize {
		c.storage.Close()
		return nil, fmt.Errorf("card image is %d bytes, want %d", len(image), persistence.ImageSize)
	}
	c.image = image

	if !seeded(image) {
		c.logger.Info("Seeding blank card image")
		if err := seed(image); err != nil {
			c.storage.Close()
			return nil, err
		}
		if err := c.storage.Save(image); err != nil {
			c.storage.Close()
			return nil, fmt.Errorf("save card image: %w", err)
		}
	}
	return c, nil
}

// Status returns the current configuration status.
func (c *Card) Status() device.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configurationStatus()
}

func (c *Card) configurationStatus() device.Status {
	var state uint32
	if c.switching {
		state = 1
	}
	return device.Status{Identity: c.identity, Version: c.version, State: state, Switching: c.switching}
}

// InjectFaults makes the next n flash writes land corrupted.
func (c *Card) InjectFaults(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = n
}

// PowerCycle reboots the card, applying a pending configuration switch.
func (c *Card) PowerCycle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.switching {
		switch c.identity {
		case device.Bootloader:
			c.identity = device.SoC
		case device.SoC:
			c.identity = device.Bootloader
		}
		c.switching = false
	}
	c.unlocked = false
	c.status = soc.WaitingForCommand
	c.remaining = 0
	c.executed = 0
	clear(c.mosi)
	clear(c.miso)
	c.logger.Info("Card power cycled", "configuration", c.identity)
}

// Image returns a copy of the raw flash image.
func (c *Card) Image() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.image)
}

// Close saves the image and releases the storage.
func (c *Card) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.image == nil {
		return nil
	}
	err := c.storage.Save(c.image)
	if cerr := c.storage.Close(); err == nil {
		err = cerr
	}
	c.image = nil
	return err
}

func (c *Card) Read(offset int64, length int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkRange(offset, length, io.ErrUnexpectedEOF); err != nil {
		return nil, fmt.Errorf("read %d bytes at 0x%X: %w", length, offset, err)
	}

	buf := make([]byte, length)
	copy(buf, c.image[offset:])
	overlay(buf, offset, device.ConfigurationStatusOffset, device.EncodeStatus(c.configurationStatus()))

	if c.identity == device.SoC {
		var word [device.RegisterSize]byte
		if overlaps(offset, length, device.SoCControlRegisterOffset, device.RegisterSize) {
			binary.LittleEndian.PutUint32(word[:], c.executed)
			overlay(buf, offset, device.SoCControlRegisterOffset, word[:])
		}
		if overlaps(offset, length, device.StatusRegisterOffset, device.RegisterSize) {
			binary.LittleEndian.PutUint32(word[:], uint32(c.status))
			overlay(buf, offset, device.StatusRegisterOffset, word[:])
			c.tick()
		}
		overlay(buf, offset, device.MISOBufferOffset, c.miso)
	}
	return buf, nil
}

func (c *Card) Write(offset int64, data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkRange(offset, len(data), io.ErrShortWrite); err != nil {
		return 0, fmt.Errorf("write %d bytes at 0x%X: %w", len(data), offset, err)
	}

	// The switch trigger is honoured in every configuration.
	if offset == device.BootloaderSwitchConfigOffset {
		c.switching = true
		c.logger.Info("Configuration switch requested", "from", c.identity)
		return len(data), nil
	}

	switch c.identity {
	case device.SoC:
		c.writeSoC(offset, data)
	case device.Bootloader:
		c.writeBootloader(offset, data)
	}
	return len(data), nil
}

func (c *Card) writeSoC(offset int64, data []byte) {
	if offset == device.CommandRegisterOffset && len(data) >= device.RegisterSize {
		c.command(binary.LittleEndian.Uint32(data))
		return
	}
	if overlaps(offset, len(data), device.MOSIBufferOffset, device.MOSIBufferSize) {
		start := max(offset, device.MOSIBufferOffset)
		end := min(offset+int64(len(data)), device.MOSIBufferOffset+device.MOSIBufferSize)
		copy(c.mosi[start-device.MOSIBufferOffset:end-device.MOSIBufferOffset], data[start-offset:end-offset])
		return
	}
	c.logger.Debug("Ignoring write outside SoC registers", "offset", fmt.Sprintf("0x%X", offset), "length", len(data))
}

func (c *Card) command(cmd uint32) {
	if cmd == soc.IdleCommand {
		if c.status == soc.Done || c.status == soc.InvalidCommand {
			c.status = soc.WaitingForCommand
		}
		return
	}
	if c.status != soc.WaitingForCommand {
		c.logger.Debug("SoC busy, command ignored", "command", cmd, "status", c.status)
		return
	}

	c.executed++
	miso, ok := c.firmware(cmd, bytes.Clone(c.mosi))
	if !ok {
		c.outcome = soc.InvalidCommand
	} else {
		c.outcome = soc.Done
		clear(c.miso)
		copy(c.miso, miso)
	}
	c.remaining = c.latency
	c.status = soc.Calculating
	if c.remaining <= 0 {
		c.status = c.outcome
	}
	c.logger.Debug("SoC command accepted", "command", cmd, "outcome", c.outcome)
}

// tick advances a running command by one status poll.
func (c *Card) tick() {
	if c.status != soc.Calculating {
		return
	}
	c.remaining--
	if c.remaining <= 0 {
		c.status = c.outcome
	}
}

func (c *Card) writeBootloader(offset int64, data []byte) {
	if offset == device.BootloaderUnlockOffset {
		switch {
		case bytes.HasPrefix(data, device.UnlockWord[:]):
			c.unlocked = true
			c.logger.Info("Bootloader unlocked")
			return
		case bytes.Equal(data, make([]byte, len(data))):
			c.unlocked = false
			c.logger.Info("Bootloader locked")
			return
		}
	}
	if overlaps(offset, len(data), device.ConfigurationStatusOffset, device.ConfigurationStatusSize) {
		c.logger.Debug("Ignoring write to configuration status block")
		return
	}
	if !c.unlocked && overlaps(offset, len(data), device.BootloaderBitstreamOffset, int(device.UserBitstreamOffset-device.BootloaderBitstreamOffset)) {
		c.logger.Warn("Write to protected region discarded", "offset", fmt.Sprintf("0x%X", offset), "length", len(data))
		return
	}

	copy(c.image[offset:], data)
	if c.faults > 0 && len(data) > 0 {
		c.faults--
		c.image[offset+int64(len(data)/2)] ^= 0xFF
		c.logger.Debug("Injected flash fault", "offset", fmt.Sprintf("0x%X", offset))
	}
	c.storage.OnWrite(offset, len(data))
}

// ErrClosed is returned for accesses after Close.
var ErrClosed = errors.New("emulator: card closed")

func (c *Card) checkRange(offset int64, length int, outOfRange error) error {
	if c.image == nil {
		return ErrClosed
	}
	if offset < 0 || length < 0 || offset+int64(length) > int64(len(c.image)) {
		return outOfRange
	}
	return nil
}

func overlaps(offset int64, length int, regOffset int64, regSize int) bool {
	return offset < regOffset+int64(regSize) && regOffset < offset+int64(length)
}

// overlay copies the part of reg (located at regOffset) that falls inside
// buf (located at offset).
func overlay(buf []byte, offset int64, regOffset int64, reg []byte) {
	if !overlaps(offset, len(buf), regOffset, len(reg)) {
		return
	}
	start := max(offset, regOffset)
	end := min(offset+int64(len(buf)), regOffset+int64(len(reg)))
	copy(buf[start-offset:end-offset], reg[start-regOffset:end-regOffset])
}
