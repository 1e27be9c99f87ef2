// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package emulator

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"

	"github.com/ffutop/c0microsd-toolkit/bitstream"
	"github.com/ffutop/c0microsd-toolkit/device"
	"github.com/ffutop/c0microsd-toolkit/flasher"
)

// factoryBitstreamSize is the payload size of the seeded bitstreams.
const factoryBitstreamSize = 32 << 10

// seeded reports whether the factory fields have been programmed.
func seeded(image []byte) bool {
	sn := image[device.SerialNumberOffset : device.SerialNumberOffset+device.SerialNumberSize]
	return !bytes.Equal(sn, make([]byte, device.SerialNumberSize))
}

// seed programs a blank image the way a card leaves the factory: erased
// flash, warmboot vectors, serial number, UUID and valid bootloader and SoC
// bitstreams.
func seed(image []byte) error {
	for i := range image {
		image[i] = 0xFF
	}
	copy(image[device.WarmbootOffset:], flasher.WarmbootTemplate)

	id := uuid.New()
	serial := fmt.Sprintf("C0-EMU-%08X", id.ID())
	copy(image[device.SerialNumberOffset:device.SerialNumberOffset+device.SerialNumberSize], serial)
	copy(image[device.UUIDOffset:device.UUIDOffset+device.UUIDSize], id.String())

	for _, bs := range []struct {
		name   string
		offset int64
	}{
		{"bootloader", device.BootloaderBitstreamOffset},
		{"soc", device.SoCBitstreamOffset},
	} {
		payload := make([]byte, factoryBitstreamSize)
		for i := range payload {
			payload[i] = byte(i*7) ^ byte(bs.offset>>16)
		}
		img, err := bitstream.Build(payload, map[string]any{"name": bs.name})
		if err != nil {
			return err
		}
		copy(image[bs.offset:], img)
	}
	return nil
}
