// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package soc

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ffutop/c0microsd-toolkit/device"
)

const floatSize = 4

// PackFloats encodes values as little-endian float32 words, zero-padded to
// size bytes.
func PackFloats(values []float32, size int) ([]byte, error) {
	raw := make([]byte, len(values)*floatSize)
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[i*floatSize:], math.Float32bits(v))
	}
	return device.PadBuffer("float buffer", raw, size)
}

// UnpackFloats decodes the first n little-endian float32 words of buf.
func UnpackFloats(buf []byte, n int) ([]float32, error) {
	if need := n * floatSize; len(buf) < need {
		return nil, fmt.Errorf("buffer too small: expected at least %d bytes, got %d", need, len(buf))
	}
	values := make([]float32, n)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*floatSize:]))
	}
	return values, nil
}
