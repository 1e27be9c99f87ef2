// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package soc talks to the application running on a C0-microSD that has the
// Signaloid SoC configuration loaded.
//
// The host exchanges data with the SoC through two 4 KiB buffers, MOSI
// (host to SoC) and MISO (SoC to host), and drives it through a command
// register and a status register.
package soc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/c0microsd-toolkit/device"
	"github.com/ffutop/c0microsd-toolkit/transport"
)

// DefaultPollInterval is the delay between two status polls.
const DefaultPollInterval = 500 * time.Millisecond

// Channel runs the command/status handshake of the SoC.
type Channel struct {
	t transport.Transport

	pollInterval time.Duration
	timeout      time.Duration
	drainTimeout time.Duration
	idle         uint32
	logger       *slog.Logger
	progress     func(cmd uint32, st Status)
}

// Option configures a Channel.
type Option func(*Channel)

// WithPollInterval sets the delay between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Channel) {
		c.pollInterval = d
	}
}

// WithTimeout bounds a whole command wait. Zero waits forever.
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) {
		c.timeout = d
	}
}

// WithDrainTimeout bounds the acknowledge handshake that follows every
// command. It defaults to the command timeout.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Channel) {
		c.drainTimeout = d
	}
}

// WithIdleCommand overrides the command written to acknowledge a result.
func WithIdleCommand(cmd uint32) Option {
	return func(c *Channel) {
		c.idle = cmd
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// WithProgress registers a callback invoked on every poll that finds the SoC
// still busy.
func WithProgress(fn func(cmd uint32, st Status)) Option {
	return func(c *Channel) {
		c.progress = fn
	}
}

// NewChannel returns a Channel over t.
func NewChannel(t transport.Transport, opts ...Option) *Channel {
	c := &Channel{
		t:            t,
		pollInterval: DefaultPollInterval,
		idle:         IdleCommand,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WriteMOSI writes payload to the MOSI buffer, zero-padded to its full size.
func (c *Channel) WriteMOSI(payload []byte) error {
	buf, err := device.PadBuffer("MOSI", payload, device.MOSIBufferSize)
	if err != nil {
		return err
	}
	if _, err := c.t.Write(device.MOSIBufferOffset, buf); err != nil {
		return fmt.Errorf("write MOSI buffer: %w", err)
	}
	return nil
}

// ReadMISO reads the whole MISO buffer.
func (c *Channel) ReadMISO() ([]byte, error) {
	buf, err := c.t.Read(device.MISOBufferOffset, device.MISOBufferSize)
	if err != nil {
		return nil, fmt.Errorf("read MISO buffer: %w", err)
	}
	return buf, nil
}

// SendCommand writes cmd to the command register.
func (c *Channel) SendCommand(cmd uint32) error {
	var word [device.RegisterSize]byte
	binary.LittleEndian.PutUint32(word[:], cmd)
	if _, err := c.t.Write(device.CommandRegisterOffset, word[:]); err != nil {
		return fmt.Errorf("write command %d: %w", cmd, err)
	}
	return nil
}

// ReadStatus reads the SoC status register.
func (c *Channel) ReadStatus() (Status, error) {
	v, err := c.readRegister(device.StatusRegisterOffset)
	if err != nil {
		return 0, fmt.Errorf("read SoC status: %w", err)
	}
	return Status(v), nil
}

// ReadControl reads the SoC control register.
func (c *Channel) ReadControl() (uint32, error) {
	v, err := c.readRegister(device.SoCControlRegisterOffset)
	if err != nil {
		return 0, fmt.Errorf("read SoC control: %w", err)
	}
	return v, nil
}

func (c *Channel) readRegister(offset int64) (uint32, error) {
	raw, err := c.t.Read(offset, device.RegisterSize)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw), nil
}

// Execute writes payload to MOSI and runs cmd.
func (c *Channel) Execute(ctx context.Context, cmd uint32, payload []byte) ([]byte, error) {
	if err := c.WriteMOSI(payload); err != nil {
		return nil, err
	}
	return c.Calculate(ctx, cmd)
}

// Calculate issues cmd, waits for the SoC to finish and returns the MISO
// buffer.
//
// Whatever the outcome, the SoC is then acknowledged with the idle command
// until it reports WaitingForCommand again. The acknowledgement is not
// cancelled by ctx; it has its own deadline.
func (c *Channel) Calculate(ctx context.Context, cmd uint32) ([]byte, error) {
	waitCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.logger.Debug("Sending SoC command", "command", cmd)
	result, err := c.await(waitCtx, cmd)

	if drainErr := c.drain(ctx, cmd); drainErr != nil {
		if err != nil {
			return nil, errors.Join(err, drainErr)
		}
		return nil, drainErr
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Channel) await(ctx context.Context, cmd uint32) ([]byte, error) {
	if err := c.SendCommand(cmd); err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, &device.ProtocolError{Kind: device.Timeout, Offset: device.StatusRegisterOffset, Command: cmd, Err: err}
		}

		st, err := c.ReadStatus()
		if err != nil {
			return nil, err
		}
		if !st.Known() {
			return nil, &device.ProtocolError{Kind: device.UnexpectedStatus, Offset: device.StatusRegisterOffset, Command: cmd, Status: uint32(st)}
		}

		switch st {
		case Calculating, WaitingForCommand:
			if st == Calculating && c.progress != nil {
				c.progress(cmd, st)
			}
			if err := sleep(ctx, c.pollInterval); err != nil {
				return nil, &device.ProtocolError{Kind: device.Timeout, Offset: device.StatusRegisterOffset, Command: cmd, Err: err}
			}
		case Done:
			c.logger.Debug("SoC command done", "command", cmd)
			return c.ReadMISO()
		case InvalidCommand:
			return nil, &device.ProtocolError{Kind: device.InvalidCommand, Offset: device.StatusRegisterOffset, Command: cmd, Status: uint32(st)}
		}
	}
}

// drain acknowledges the last command until the SoC is idle again.
func (c *Channel) drain(parent context.Context, cmd uint32) error {
	ctx := context.WithoutCancel(parent)
	timeout := c.drainTimeout
	if timeout == 0 {
		timeout = c.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		st, err := c.ReadStatus()
		if err != nil {
			return fmt.Errorf("acknowledge command %d: %w", cmd, err)
		}
		if st == WaitingForCommand {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return &device.ProtocolError{Kind: device.Timeout, Offset: device.CommandRegisterOffset, Command: c.idle, Err: err}
		}
		c.logger.Debug("Acknowledging SoC", "command", cmd, "status", st)
		if err := c.SendCommand(c.idle); err != nil {
			return fmt.Errorf("acknowledge command %d: %w", cmd, err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
