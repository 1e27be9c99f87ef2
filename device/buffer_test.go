// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import (
	"bytes"
	"errors"
	"testing"
)

func TestPadBuffer(t *testing.T) {
	for _, n := range []int{0, 1, 8, MOSIBufferSize - 1, MOSIBufferSize} {
		payload := bytes.Repeat([]byte{0xA5}, n)
		buf, err := PadBuffer("MOSI", payload, MOSIBufferSize)
		if err != nil {
			t.Fatalf("len %d: %v", n, err)
		}
		if len(buf) != MOSIBufferSize {
			t.Fatalf("len %d: padded length = %d", n, len(buf))
		}
		if !bytes.Equal(buf[:n], payload) {
			t.Errorf("len %d: payload not preserved", n)
		}
		if !bytes.Equal(buf[n:], make([]byte, MOSIBufferSize-n)) {
			t.Errorf("len %d: padding is not zero", n)
		}
	}
}

func TestPadBuffer_Overflow(t *testing.T) {
	_, err := PadBuffer("MOSI", make([]byte, MOSIBufferSize+1), MOSIBufferSize)

	var sizeErr *SizeError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("Expected SizeError, got %v", err)
	}
	if sizeErr.Size != MOSIBufferSize+1 || sizeErr.Capacity != MOSIBufferSize {
		t.Errorf("SizeError = %+v", sizeErr)
	}
}
