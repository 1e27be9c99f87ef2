// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package flasher

import "log/slog"

// Attempt describes the outcome of one write/read-back cycle.
type Attempt struct {
	Number int  // 1-based
	Max    int
	Match  bool // read-back equals the written image
}

// AttemptCallback is called after every flash attempt.
type AttemptCallback func(Attempt)

// Option configures a Flasher.
type Option func(*Flasher)

// WithForce skips the Bootloader mode check before flashing.
func WithForce(force bool) Option {
	return func(f *Flasher) {
		f.force = force
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flasher) {
		f.logger = logger
	}
}

// WithAttemptCallback registers a callback for flash attempts.
func WithAttemptCallback(fn AttemptCallback) Option {
	return func(f *Flasher) {
		f.onAttempt = fn
	}
}
