// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

// MemoryStorage is a no-op storage (non-persistent).
type MemoryStorage struct{}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (ms *MemoryStorage) Load() ([]byte, error) {
	return make([]byte, ImageSize), nil
}

func (ms *MemoryStorage) Save(image []byte) error {
	return nil
}

func (ms *MemoryStorage) OnWrite(offset int64, length int) {
	// No-op
}

func (ms *MemoryStorage) Close() error {
	return nil
}
