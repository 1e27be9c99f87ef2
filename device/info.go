// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import (
	"fmt"
	"strings"

	"github.com/ffutop/c0microsd-toolkit/transport"
)

// ReadSerialNumber reads the factory serial number.
func ReadSerialNumber(t transport.Transport) (string, error) {
	raw, err := t.Read(SerialNumberOffset, SerialNumberSize)
	if err != nil {
		return "", fmt.Errorf("read serial number: %w", err)
	}
	return Printable(raw), nil
}

// ReadUUID reads the factory UUID string.
func ReadUUID(t transport.Transport) (string, error) {
	raw, err := t.Read(UUIDOffset, UUIDSize)
	if err != nil {
		return "", fmt.Errorf("read uuid: %w", err)
	}
	return Printable(raw), nil
}

// Printable strips the trailing 0xFF padding of an erased flash field and
// maps every remaining byte to its printable ASCII character, or '.'.
func Printable(raw []byte) string {
	end := len(raw)
	for end > 0 && raw[end-1] == 0xFF {
		end--
	}

	var b strings.Builder
	b.Grow(end)
	for _, c := range raw[:end] {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}
