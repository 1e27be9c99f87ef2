// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

// Register and region offsets in the flash address space. Their meaning
// depends on the loaded configuration, and some of them overlap on purpose:
// MISOBufferOffset and BootloaderUnlockOffset are the same bytes.
const (
	// SoC mode
	StatusRegisterOffset     int64 = 0x00000
	SoCControlRegisterOffset int64 = 0x00004
	CommandRegisterOffset    int64 = 0x10000
	MOSIBufferOffset         int64 = 0x50000
	MISOBufferOffset         int64 = 0x60000

	// Any mode
	ConfigurationStatusOffset int64 = 0x20000
	SerialNumberOffset        int64 = 0x22040
	UUIDOffset                int64 = 0x22080

	// Bootloader mode
	WarmbootOffset               int64 = 0x00000
	BootloaderSwitchConfigOffset int64 = 0x40000
	BootloaderUnlockOffset       int64 = 0x60000
	BootloaderBitstreamOffset    int64 = 0x80000
	SoCBitstreamOffset           int64 = 0x100000
	UserBitstreamOffset          int64 = 0x180000
	UserDataOffset               int64 = 0x200000
)

// Region sizes in bytes.
const (
	RegisterSize            = 4
	ConfigurationStatusSize = 12
	SerialNumberSize        = 0x40
	UUIDSize                = 0x40
	SwitchConfigSize        = 512
	LockPatternSize         = 32
	WarmbootSize            = 5 * 32

	// Space between two consecutive bitstream offsets.
	BitstreamRegionSize = 0x80000

	MOSIBufferSize = 4096
	MISOBufferSize = 4096
)

// Check words stored in the configuration status block and the unlock word.
var (
	BootloaderCheckWord = [4]byte{'S', 'B', 'L', 'D'}
	SoCCheckWord        = [4]byte{'S', 'S', 'O', 'C'}
	UnlockWord          = [4]byte{'U', 'B', 'L', 'D'}
)
