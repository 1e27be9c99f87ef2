// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

// Transport gives byte-offset access to the flash address space of a card.
//
// The card exposes its registers and buffers as plain offsets in that space,
// so every protocol operation reduces to a Read or a Write. Implementations
// must not hold a handle between calls: each call is a complete
// open-seek-operate-close cycle, which is what forces the card's controller
// to observe the access.
//
// Retry policy belongs to callers. A Transport never retries.
type Transport interface {
	// Read returns exactly length bytes starting at offset.
	Read(offset int64, length int) ([]byte, error)

	// Write writes data at offset and returns the number of bytes written.
	Write(offset int64, data []byte) (int, error)
}
