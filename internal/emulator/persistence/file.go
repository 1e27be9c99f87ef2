// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// FileStorage implements persistence using file operations.
// The whole image is held in memory and modified ranges are written back
// and synced on every write.
type FileStorage struct {
	path string
	file *os.File
	data []byte
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Load reads the image from the file, creating it if necessary.
func (fs *FileStorage) Load() ([]byte, error) {
	f, err := openImage(fs.path)
	if err != nil {
		return nil, err
	}
	fs.file = f

	data := make([]byte, ImageSize)
	if _, err := io.ReadFull(f, data); err != nil {
		f.Close()
		fs.file = nil
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	fs.data = data
	return data, nil
}

// Save writes the whole image to disk.
func (fs *FileStorage) Save(image []byte) error {
	if fs.file == nil {
		return nil
	}
	if _, err := fs.file.WriteAt(image, 0); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return fs.file.Sync()
}

// OnWrite writes back the modified range and syncs it.
func (fs *FileStorage) OnWrite(offset int64, length int) {
	if fs.file == nil || fs.data == nil {
		return
	}
	end := offset + int64(length)
	if offset < 0 || end > int64(len(fs.data)) {
		return
	}
	if _, err := fs.file.WriteAt(fs.data[offset:end], offset); err != nil {
		slog.Error("Failed to write image file", "path", fs.path, "err", err)
		return
	}
	if err := fs.file.Sync(); err != nil {
		slog.Error("Failed to sync image file", "path", fs.path, "err", err)
	}
}

// Close the file.
func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}

// openImage opens path read-write and makes sure it is ImageSize bytes long.
func openImage(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if fi.Size() != ImageSize {
		if err := f.Truncate(ImageSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize image file: %w", err)
		}
	}
	return f, nil
}
