// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package emulator

import (
	"github.com/ffutop/c0microsd-toolkit/device"
	"github.com/ffutop/c0microsd-toolkit/soc"
)

// Firmware is the application loaded on the emulated SoC. It receives the
// command and the MOSI buffer and returns the MISO buffer. ok=false makes the
// SoC report InvalidCommand.
type Firmware func(cmd uint32, mosi []byte) (miso []byte, ok bool)

// Commands understood by ArithmeticFirmware.
const (
	CommandAdd uint32 = iota + 1
	CommandSubtract
	CommandMultiply
	CommandDivide
)

// ArithmeticFirmware reads two float32 operands from MOSI and writes the
// result of the requested operation as the first float32 of MISO.
func ArithmeticFirmware(cmd uint32, mosi []byte) ([]byte, bool) {
	in, err := soc.UnpackFloats(mosi, 2)
	if err != nil {
		return nil, false
	}
	a, b := in[0], in[1]

	var r float32
	switch cmd {
	case CommandAdd:
		r = a + b
	case CommandSubtract:
		r = a - b
	case CommandMultiply:
		r = a * b
	case CommandDivide:
		r = a / b
	default:
		return nil, false
	}

	out, err := soc.PackFloats([]float32{r}, device.MISOBufferSize)
	if err != nil {
		return nil, false
	}
	return out, true
}
