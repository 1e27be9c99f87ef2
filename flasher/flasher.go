// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package flasher writes and verifies images in the non-volatile memory of a
// C0-microSD running its bootloader.
package flasher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/ffutop/c0microsd-toolkit/device"
	"github.com/ffutop/c0microsd-toolkit/transport"
)

// DefaultMaxAttempts is the number of write/verify cycles tried before a
// flash is reported as failed.
const DefaultMaxAttempts = 5

// Flasher drives flash operations over a transport.
type Flasher struct {
	t         transport.Transport
	force     bool
	logger    *slog.Logger
	onAttempt AttemptCallback
}

// New returns a Flasher over t.
func New(t transport.Transport, opts ...Option) *Flasher {
	f := &Flasher{
		t:      t,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Unlock enables writes to the bootloader and SoC bitstream regions.
func (f *Flasher) Unlock() error {
	f.logger.Info("Unlocking bootloader")
	if _, err := f.t.Write(device.BootloaderUnlockOffset, device.UnlockWord[:]); err != nil {
		return fmt.Errorf("unlock bootloader: %w", err)
	}
	return nil
}

// Lock protects the bootloader and SoC bitstream regions again.
func (f *Flasher) Lock() error {
	f.logger.Info("Locking bootloader")
	if _, err := f.t.Write(device.BootloaderUnlockOffset, make([]byte, device.LockPatternSize)); err != nil {
		return fmt.Errorf("lock bootloader: %w", err)
	}
	return nil
}

// SwitchBootConfig asks the card to boot the other configuration on its
// next power cycle. The result is not verified.
func (f *Flasher) SwitchBootConfig() error {
	if _, err := f.t.Write(device.BootloaderSwitchConfigOffset, make([]byte, device.SwitchConfigSize)); err != nil {
		return fmt.Errorf("switch boot configuration: %w", err)
	}
	return nil
}

// FlashAndVerify writes image at offset and reads it back, up to maxAttempts
// times, until the read-back matches.
//
// st must come from a status read made just before the call; the card has to
// be in Bootloader mode unless the Flasher was built WithForce. Running out
// of attempts is not an error: the result is false with a nil error.
func (f *Flasher) FlashAndVerify(ctx context.Context, st device.Status, image []byte, offset int64, maxAttempts int) (bool, error) {
	if st.Identity != device.Bootloader && !f.force {
		return false, &device.ModeError{Operation: "flash", Want: device.Bootloader, Got: st.Identity}
	}

	for i := 1; i <= maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		f.logger.Info("Flashing", "attempt", i, "max", maxAttempts, "offset", fmt.Sprintf("0x%X", offset), "size", len(image))
		if _, err := f.t.Write(offset, image); err != nil {
			return false, fmt.Errorf("flash attempt %d: %w", i, err)
		}

		readBack, err := f.t.Read(offset, len(image))
		if err != nil {
			return false, fmt.Errorf("verify attempt %d: %w", i, err)
		}

		match := bytes.Equal(readBack, image)
		if f.onAttempt != nil {
			f.onAttempt(Attempt{Number: i, Max: maxAttempts, Match: match})
		}
		if match {
			f.logger.Info("Flash verified", "attempt", i)
			return true, nil
		}
		f.logger.Warn("Flash verification mismatch", "attempt", i, "max", maxAttempts)
	}
	return false, nil
}
