// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

// ImageSize is the size of an emulated card's flash image (4 MiB). It covers
// every region from the warmboot section up to the start of user data plus
// 2 MiB of user space.
const ImageSize = 4 << 20

// Storage defines the interface for persisting an emulated flash image.
type Storage interface {
	// Load returns the flash image, exactly ImageSize bytes long.
	// A storage without previous data returns a zeroed image.
	// The returned slice may be backed by the storage itself.
	Load() ([]byte, error)

	// Save saves the whole image to storage.
	Save(image []byte) error

	// OnWrite is a hook called whenever a range of the image is modified.
	// It allows the storage to perform real-time persistence.
	OnWrite(offset int64, length int)

	// Close releases the underlying resources.
	Close() error
}
