// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package toolkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	mount "k8s.io/mount-utils"

	"github.com/ffutop/c0microsd-toolkit/device"
	"github.com/ffutop/c0microsd-toolkit/flasher"
	"github.com/ffutop/c0microsd-toolkit/transport"
)

// Region is a flash destination the toolkit can write.
type Region struct {
	Name      string
	Offset    int64
	Protected bool // requires unlocking the bootloader
}

var (
	BootloaderRegion = Region{Name: "Bootloader bitstream", Offset: device.BootloaderBitstreamOffset, Protected: true}
	SoCRegion        = Region{Name: "Signaloid SoC bitstream", Offset: device.SoCBitstreamOffset, Protected: true}
	UserBitstream    = Region{Name: "custom user bitstream", Offset: device.UserBitstreamOffset}
	UserData         = Region{Name: "user data", Offset: device.UserDataOffset}
)

// MountLister lists mounted filesystems. mount.Interface satisfies it.
type MountLister interface {
	List() ([]mount.MountPoint, error)
}

// Toolkit runs the host-side maintenance sequences against one card.
//
// Every sequence holds the toolkit lock and starts with a fresh status
// read, so concurrent callers in the same process never interleave
// unlock/flash/lock steps.
type Toolkit struct {
	mu sync.Mutex

	t           transport.Transport
	path        string
	force       bool
	maxAttempts int
	out         io.Writer
	logger      *slog.Logger
	mounts      MountLister
	flasher     *flasher.Flasher
}

// Option configures a Toolkit.
type Option func(*Toolkit)

// WithMaxAttempts sets how many write/verify cycles a flash may take.
func WithMaxAttempts(n int) Option {
	return func(tk *Toolkit) {
		tk.maxAttempts = n
	}
}

// WithOutput sets where user-facing progress messages go. Defaults to
// io.Discard.
func WithOutput(w io.Writer) Option {
	return func(tk *Toolkit) {
		tk.out = w
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(tk *Toolkit) {
		tk.logger = logger
	}
}

// WithMountLister enables the mounted-device warning before destructive
// writes.
func WithMountLister(m MountLister) Option {
	return func(tk *Toolkit) {
		tk.mounts = m
	}
}

// New creates a Toolkit for the card h reached through t. h.Path is only
// used for messages and the mount check.
func New(t transport.Transport, h device.Handle, opts ...Option) *Toolkit {
	tk := &Toolkit{
		t:           t,
		path:        h.Path,
		force:       h.Force,
		maxAttempts: flasher.DefaultMaxAttempts,
		out:         io.Discard,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(tk)
	}
	tk.flasher = flasher.New(t,
		flasher.WithForce(tk.force),
		flasher.WithLogger(tk.logger),
		flasher.WithAttemptCallback(tk.reportAttempt),
	)
	return tk
}

func (tk *Toolkit) printf(format string, args ...any) {
	fmt.Fprintf(tk.out, format, args...)
}

func (tk *Toolkit) reportAttempt(a flasher.Attempt) {
	if a.Match {
		tk.printf("Attempt %d of %d: Flashing... Verifying... Success: The data matches.\n", a.Number, a.Max)
	} else {
		tk.printf("Attempt %d of %d: Flashing... Verifying... Error: The data do not match.\n", a.Number, a.Max)
	}
}

// Status reads the configuration status block.
func (tk *Toolkit) Status() (device.Status, error) {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	return device.ReadStatus(tk.t, tk.force)
}

// SwitchBootMode makes the card boot the other configuration after its
// next power cycle. It returns the configuration that was loaded.
func (tk *Toolkit) SwitchBootMode() (device.Identity, error) {
	tk.mu.Lock()
	defer tk.mu.Unlock()

	st, err := device.ReadStatus(tk.t, tk.force)
	if err != nil {
		return st.Identity, err
	}

	switch st.Identity {
	case device.Bootloader:
		tk.printf("Switching device boot mode from Bootloader to Signaloid SoC...\n")
	case device.SoC:
		tk.printf("Switching device boot mode from Signaloid SoC to Bootloader...\n")
	default:
		tk.printf("Switching device boot mode...\n")
	}

	if err := tk.flasher.SwitchBootConfig(); err != nil {
		return st.Identity, err
	}

	tk.printf("Device configured successfully. Power cycle the device to boot in new mode.\n")
	if st.Identity == device.Bootloader {
		tk.printf("To use the Signaloid C0-microSD in Custom User Bitstream mode, power it on without an SD-protocol host present.\n")
	}
	tk.logger.Info("Boot configuration switched", "device", tk.path, "from", st.Identity)
	return st.Identity, nil
}

// Flash writes image to region and verifies it. Protected regions are
// unlocked first and locked again afterwards, even when flashing fails.
// The result is false when every attempt read back different data.
func (tk *Toolkit) Flash(ctx context.Context, region Region, image []byte) (ok bool, err error) {
	tk.mu.Lock()
	defer tk.mu.Unlock()

	st, err := device.ReadStatus(tk.t, tk.force)
	if err != nil {
		return false, err
	}
	tk.warnIfMounted()

	if region.Protected {
		if st.Identity != device.Bootloader && !tk.force {
			return false, &device.ModeError{Operation: "flash " + region.Name, Want: device.Bootloader, Got: st.Identity}
		}
		tk.printf("Unlocking bootloader...\n")
		if err := tk.flasher.Unlock(); err != nil {
			return false, err
		}
		defer func() {
			tk.printf("Locking bootloader...\n")
			if lockErr := tk.flasher.Lock(); lockErr != nil {
				err = errors.Join(err, lockErr)
			}
		}()
	}

	tk.printf("Flashing %s...\n", region.Name)
	ok, err = tk.flasher.FlashAndVerify(ctx, st, image, region.Offset, tk.maxAttempts)
	if err != nil {
		return false, err
	}
	if !ok {
		tk.logger.Error("Flash verification failed", "region", region.Name, "attempts", tk.maxAttempts)
	}
	return ok, nil
}

// warnIfMounted logs a warning when a filesystem on the card is mounted.
// The write goes ahead regardless.
func (tk *Toolkit) warnIfMounted() {
	if tk.mounts == nil || tk.path == "" {
		return
	}
	mps, err := tk.mounts.List()
	if err != nil {
		tk.logger.Debug("Unable to list mounts", "err", err)
		return
	}
	for _, mp := range mps {
		if onDevice(mp.Device, tk.path) {
			tk.logger.Warn("Device has a mounted filesystem, writes may be cached or corrupted",
				"device", tk.path, "mount", mp.Path, "source", mp.Device)
		}
	}
}

// onDevice reports whether source is disk itself or one of its partitions.
// Disks whose name ends in a digit number partitions as p1, p2 (mmcblk0p1),
// the others append the number directly (sdb1).
func onDevice(source, disk string) bool {
	if source == disk {
		return true
	}
	rest, ok := strings.CutPrefix(source, disk)
	if !ok || disk == "" {
		return false
	}
	if last := disk[len(disk)-1]; last >= '0' && last <= '9' {
		rest, ok = strings.CutPrefix(rest, "p")
		if !ok {
			return false
		}
	}
	return isDigits(rest)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// InfoReport is the result of Info.
type InfoReport struct {
	Status device.Status
	// Available is false when the card is not in Bootloader mode and the
	// remaining fields are unset.
	Available    bool
	SerialNumber string
	UUID         string
	UUIDValid    bool
	Bootloader   flasher.BitstreamReport
	SoC          flasher.BitstreamReport
	WarmbootOK   bool
}

// Info reads the factory fields and verifies the stored bitstreams and the
// warmboot section. All of it requires Bootloader mode.
func (tk *Toolkit) Info() (*InfoReport, error) {
	tk.mu.Lock()
	defer tk.mu.Unlock()

	st, err := device.ReadStatus(tk.t, tk.force)
	if err != nil {
		return nil, err
	}
	report := &InfoReport{Status: st}
	if st.Identity != device.Bootloader {
		return report, nil
	}
	report.Available = true

	if report.SerialNumber, err = device.ReadSerialNumber(tk.t); err != nil {
		return nil, err
	}
	if report.UUID, err = device.ReadUUID(tk.t); err != nil {
		return nil, err
	}
	_, parseErr := uuid.Parse(report.UUID)
	report.UUIDValid = parseErr == nil

	if report.Bootloader, err = tk.flasher.BitstreamInfo(device.BootloaderBitstreamOffset); err != nil {
		return nil, err
	}
	if report.SoC, err = tk.flasher.BitstreamInfo(device.SoCBitstreamOffset); err != nil {
		return nil, err
	}
	if report.WarmbootOK, err = tk.flasher.VerifyWarmbootSection(); err != nil {
		return nil, err
	}
	return report, nil
}

// Print writes the report in the layout of the host utilities.
func (r *InfoReport) Print(w io.Writer) {
	if !r.Available {
		fmt.Fprintln(w, "Device is not in Bootloader mode.")
		fmt.Fprintln(w, "To display device Serial Number, device UUID, and verify the bitstream and warmboot sections")
		fmt.Fprintln(w, "of the non-volatile memory, switch to Bootloader mode and try again.")
		return
	}

	fmt.Fprintf(w, "Device Serial Number: %s\n", r.SerialNumber)
	if r.UUIDValid {
		fmt.Fprintf(w, "Device UUID: %s\n", r.UUID)
	} else {
		fmt.Fprintf(w, "Device UUID: %s (not a valid UUID)\n", r.UUID)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Reading Bootloader bitstream:")
	printBitstream(w, r.Bootloader)
	fmt.Fprintln(w, "Reading Signaloid SoC bitstream:")
	printBitstream(w, r.SoC)
	fmt.Fprintf(w, "Warmboot section verification: %s\n", passFail(r.WarmbootOK))
}

func printBitstream(w io.Writer, b flasher.BitstreamReport) {
	fmt.Fprintf(w, "    Bitstream prefix section: %s\n", b.Prefix)
	if !b.Checked {
		fmt.Fprintln(w, "    Unable to parse prefix for CRC verification")
		return
	}
	fmt.Fprintf(w, "    Bitstream CRC verification: %s\n", passFail(b.Pass))
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}
