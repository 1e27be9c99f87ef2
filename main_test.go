// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ffutop/c0microsd-toolkit/device"
)

func localConfig(t *testing.T, mode string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
device:
  type: local
  local:
    mode: %s
    latency: 1
log:
  level: error
`, mode)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Info(t *testing.T) {
	code, out, errOut := runCLI(t, "", "-c", localConfig(t, "bootloader"), "-i")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr: %s", code, errOut)
	}
	for _, want := range []string{
		"Loaded configuration: Bootloader",
		"Device Serial Number: C0-EMU-",
		"Bitstream CRC verification: PASS",
		"Warmboot section verification: PASS",
		"Done.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_InfoInSoCMode(t *testing.T) {
	code, out, _ := runCLI(t, "", "-c", localConfig(t, "soc"), "-i")
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out, "Device is not in Bootloader mode.") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestRun_Switch(t *testing.T) {
	code, out, _ := runCLI(t, "", "-c", localConfig(t, "soc"), "-s")
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out, "Switching device boot mode from Signaloid SoC to Bootloader...") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestRun_Flash(t *testing.T) {
	input := filepath.Join(t.TempDir(), "bitstream.bin")
	if err := os.WriteFile(input, bytes.Repeat([]byte{0xAB}, 2048), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := localConfig(t, "bootloader")

	tests := []struct {
		name     string
		stdin    string
		args     []string
		wantCode int
		wantOut  string
	}{
		{"UserBitstream", "", []string{"-b", input}, exitOK, "Flashing custom user bitstream..."},
		{"UserData", "", []string{"-u", "-b", input}, exitOK, "Success: The data matches."},
		{"SoCConfirmed", "maybe\ny\n", []string{"-w", "-b", input}, exitOK, "Locking bootloader..."},
		{"BootloaderAssumeYes", "", []string{"-q", "-y", "-b", input}, exitOK, "Flashing Bootloader bitstream..."},
		{"BootloaderDeclined", "n\n", []string{"-q", "-b", input}, exitUsage, "Aborting."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, errOut := runCLI(t, tt.stdin, append([]string{"-c", cfg}, tt.args...)...)
			if code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d\nstdout: %s\nstderr: %s", code, tt.wantCode, out, errOut)
			}
			if !strings.Contains(out, tt.wantOut) {
				t.Errorf("output missing %q:\n%s", tt.wantOut, out)
			}
		})
	}
}

func TestRun_Usage(t *testing.T) {
	cfg := localConfig(t, "bootloader")

	tests := []struct {
		name     string
		args     []string
		wantCode int
	}{
		{"MutuallyExclusive", []string{"-c", cfg, "-i", "-s"}, exitUsage},
		{"MissingInput", []string{"-c", cfg, "-u"}, exitUsage},
		{"UnknownFlag", []string{"-c", cfg, "--bogus"}, exitUsage},
		{"InputNotFound", []string{"-c", cfg, "-b", filepath.Join(t.TempDir(), "missing.bin")}, exitNoInput},
		{"Help", []string{"-h"}, exitOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, _ := runCLI(t, "", tt.args...); code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
		})
	}
}

func TestRun_FlashInSoCMode(t *testing.T) {
	input := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(input, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	code, _, errOut := runCLI(t, "", "-c", localConfig(t, "soc"), "-u", "-b", input)
	if code != exitSoftware {
		t.Fatalf("exit code = %d, want %d", code, exitSoftware)
	}
	if !strings.Contains(errOut, "not in Bootloader mode") {
		t.Errorf("unexpected stderr: %s", errOut)
	}
}

func TestRun_StatusPrintedOnRefusal(t *testing.T) {
	tests := []struct {
		name      string
		status    device.Status
		wantLine  bool
		wantError string
	}{
		{"Switching", device.Status{Identity: device.Bootloader, Version: device.Version{Major: 1, Minor: 2}, Switching: true}, true, "configuration switching mode"},
		{"Unrecognized", device.Status{}, false, "not a C0-microSD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "card.img")
			image := make([]byte, device.ConfigurationStatusOffset+device.ConfigurationStatusSize)
			copy(image[device.ConfigurationStatusOffset:], device.EncodeStatus(tt.status))
			if err := os.WriteFile(path, image, 0644); err != nil {
				t.Fatal(err)
			}

			code, out, errOut := runCLI(t, "", "-t", path, "-i")
			if code != exitSoftware {
				t.Fatalf("exit code = %d, stderr: %s", code, errOut)
			}
			if got := strings.Contains(out, "Loaded configuration: Bootloader | Version: 1.2 | State SWITCHING"); got != tt.wantLine {
				t.Errorf("status line printed = %v, want %v:\n%s", got, tt.wantLine, out)
			}
			if !strings.Contains(errOut, tt.wantError) {
				t.Errorf("unexpected stderr: %s", errOut)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&device.AccessError{Kind: device.NotFound}, exitNoInput},
		{&device.AccessError{Kind: device.PermissionDenied}, exitNoPerm},
		{fmt.Errorf("wrap: %w", &device.SizeError{}), exitDataErr},
		{&device.ProtocolError{Kind: device.MissingPrefixMarkers}, exitDataErr},
		{&device.ProtocolError{Kind: device.Timeout}, exitSoftware},
		{&device.ModeError{}, exitSoftware},
		{fmt.Errorf("open: %w", os.ErrNotExist), exitNoInput},
		{errors.New("boom"), exitSoftware},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
