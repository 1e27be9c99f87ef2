package test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ffutop/c0microsd-toolkit/bitstream"
	"github.com/ffutop/c0microsd-toolkit/device"
)

func TestInfo(t *testing.T) {
	cfg := writeLocalConfig(t, "bootloader", "memory", "")

	res := runToolkit(t, "", "-c", cfg, "-i")
	require.Equal(t, 0, res.code, res.stderr)
	require.Contains(t, res.stdout, "Loaded configuration: Bootloader | Version: 1.0 | State IDLE")
	require.Contains(t, res.stdout, "Bitstream CRC verification: PASS")
	require.Contains(t, res.stdout, "Warmboot section verification: PASS")
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "card.img")
	input := filepath.Join(dir, "userdata.bin")
	payload := bytes.Repeat([]byte("C0"), 4096)
	require.NoError(t, os.WriteFile(input, payload, 0644))

	// Run 1: flash user data into an mmap backed card.
	res := runToolkit(t, "", "-c", writeLocalConfig(t, "bootloader", "mmap", image), "-u", "-b", input)
	require.Equal(t, 0, res.code, res.stderr)
	require.Contains(t, res.stdout, "Success: The data matches.")

	raw, err := os.ReadFile(image)
	require.NoError(t, err)
	require.Equal(t, payload, raw[device.UserDataOffset:device.UserDataOffset+int64(len(payload))])

	// Run 2: the same image through file persistence keeps its factory data.
	res = runToolkit(t, "", "-c", writeLocalConfig(t, "bootloader", "file", image), "-i")
	require.Equal(t, 0, res.code, res.stderr)
	require.Contains(t, res.stdout, "Warmboot section verification: PASS")
}

func TestFlashSoCBitstream(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "card.img")
	cfg := writeLocalConfig(t, "bootloader", "mmap", image)

	payload := bytes.Repeat([]byte{0x7E, 0xAA, 0x99, 0x7E}, 8192)
	bs, err := bitstream.Build(payload, map[string]any{"name": "e2e-soc"})
	require.NoError(t, err)
	input := filepath.Join(dir, "soc.bin")
	require.NoError(t, os.WriteFile(input, bs, 0644))

	res := runToolkit(t, "n\n", "-c", cfg, "-w", "-b", input)
	require.Equal(t, 64, res.code)
	require.Contains(t, res.stdout, "Aborting.")

	res = runToolkit(t, "y\n", "-c", cfg, "-w", "-b", input)
	require.Equal(t, 0, res.code, res.stderr)
	require.Contains(t, res.stdout, "Unlocking bootloader...")
	require.Contains(t, res.stdout, "Locking bootloader...")

	res = runToolkit(t, "", "-c", cfg, "-i")
	require.Equal(t, 0, res.code, res.stderr)
	require.Contains(t, res.stdout, `"name":"e2e-soc"`)
	require.NotContains(t, res.stdout, "FAIL")
}

func TestSwitchInSoCMode(t *testing.T) {
	cfg := writeLocalConfig(t, "soc", "memory", "")

	res := runToolkit(t, "", "-c", cfg, "-s")
	require.Equal(t, 0, res.code, res.stderr)
	require.Contains(t, res.stdout, "Loaded configuration: Signaloid SoC")
	require.Contains(t, res.stdout, "Power cycle the device to boot in new mode.")
}

func TestExitCodes(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "sdz")

	res := runToolkit(t, "", "-t", missing, "-i")
	require.Equal(t, 66, res.code)
	require.Contains(t, res.stderr, "device not found")

	res = runToolkit(t, "", "-i", "-s", "-t", missing)
	require.Equal(t, 64, res.code)

	// A plain file behaves like an unformatted block device.
	blank := filepath.Join(t.TempDir(), "blank.img")
	require.NoError(t, os.WriteFile(blank, make([]byte, 0x30000), 0644))
	res = runToolkit(t, "", "-t", blank, "-i")
	require.Equal(t, 70, res.code)
	require.Contains(t, res.stderr, "not a C0-microSD")
}
