// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"
)

// MmapStorage implements persistence using a memory-mapped image file.
// The image returned by Load is the mapping itself, so the emulated card
// writes straight into the page cache.
type MmapStorage struct {
	path string
	file *os.File
	data mmap.MMap
}

// NewMmapStorage creates a new MmapStorage.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{
		path: path,
	}
}

// Load maps the image file, creating it if necessary.
func (ms *MmapStorage) Load() ([]byte, error) {
	f, err := openImage(ms.path)
	if err != nil {
		return nil, err
	}
	ms.file = f

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		ms.file = nil
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	ms.data = data
	return data, nil
}

// Save flushes the mapping to disk. image is expected to be the mapping.
func (ms *MmapStorage) Save(image []byte) error {
	if ms.data == nil {
		return fmt.Errorf("mmap data is nil")
	}
	if len(image) > 0 && &image[0] != &ms.data[0] {
		copy(ms.data, image)
	}
	return ms.data.Flush()
}

// OnWrite triggers a flush for persistence.
func (ms *MmapStorage) OnWrite(offset int64, length int) {
	if ms.data == nil {
		return
	}
	if err := ms.data.Flush(); err != nil {
		slog.Error("Failed to flush mmap", "err", err)
	}
}

// Close unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	var err error
	if ms.data != nil {
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}
