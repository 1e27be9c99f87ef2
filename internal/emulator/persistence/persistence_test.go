// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryStorage(t *testing.T) {
	ms := NewMemoryStorage()
	image, err := ms.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(image) != ImageSize {
		t.Fatalf("image size = %d, want %d", len(image), ImageSize)
	}
	ms.OnWrite(0, 1)
	if err := ms.Save(image); err != nil {
		t.Fatal(err)
	}
	if err := ms.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestPersistentStorages(t *testing.T) {
	backends := map[string]func(path string) Storage{
		"file": func(path string) Storage { return NewFileStorage(path) },
		"mmap": func(path string) Storage { return NewMmapStorage(path) },
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name+".img")

			s := open(path)
			image, err := s.Load()
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if len(image) != ImageSize {
				t.Fatalf("image size = %d, want %d", len(image), ImageSize)
			}
			if !bytes.Equal(image[:16], make([]byte, 16)) {
				t.Fatal("fresh image is not zeroed")
			}

			// Real-time persistence
			copy(image[0x180000:], "bitstream")
			s.OnWrite(0x180000, len("bitstream"))
			if err := s.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			raw, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if len(raw) != ImageSize {
				t.Fatalf("file size = %d, want %d", len(raw), ImageSize)
			}
			if !bytes.Equal(raw[0x180000:0x180000+9], []byte("bitstream")) {
				t.Error("write was not persisted by OnWrite")
			}

			// Reload and Save
			s = open(path)
			image, err = s.Load()
			if err != nil {
				t.Fatalf("reload failed: %v", err)
			}
			if !bytes.Equal(image[0x180000:0x180000+9], []byte("bitstream")) {
				t.Error("reloaded image lost data")
			}
			copy(image[0x200000:], "userdata")
			if err := s.Save(image); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			s.Close()

			raw, _ = os.ReadFile(path)
			if !bytes.Equal(raw[0x200000:0x200000+8], []byte("userdata")) {
				t.Error("Save did not persist image")
			}
		})
	}
}
