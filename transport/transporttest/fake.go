// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package transporttest provides an in-memory Transport for tests.
package transporttest

import (
	"fmt"
	"io"
	"sync"
)

// Op records one access made through a Fake.
type Op struct {
	Write  bool
	Offset int64
	Data   []byte // bytes written, or bytes returned by a read
}

// Fake is a flat byte image with optional hooks. A hook that returns
// handled=false falls through to the image.
type Fake struct {
	mu    sync.Mutex
	Image []byte
	Ops   []Op

	OnRead  func(offset int64, length int) (data []byte, handled bool, err error)
	OnWrite func(offset int64, data []byte) (handled bool, err error)
}

// NewFake returns a Fake backed by size zero bytes.
func NewFake(size int) *Fake {
	return &Fake{Image: make([]byte, size)}
}

func (f *Fake) Read(offset int64, length int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.OnRead != nil {
		data, handled, err := f.OnRead(offset, length)
		if err != nil {
			return nil, err
		}
		if handled {
			f.Ops = append(f.Ops, Op{Offset: offset, Data: clone(data)})
			return data, nil
		}
	}

	end := offset + int64(length)
	if offset < 0 || end > int64(len(f.Image)) {
		return nil, fmt.Errorf("fake: read %d bytes at 0x%X: %w", length, offset, io.ErrUnexpectedEOF)
	}
	data := clone(f.Image[offset:end])
	f.Ops = append(f.Ops, Op{Offset: offset, Data: clone(data)})
	return data, nil
}

func (f *Fake) Write(offset int64, data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Ops = append(f.Ops, Op{Write: true, Offset: offset, Data: clone(data)})
	if f.OnWrite != nil {
		handled, err := f.OnWrite(offset, data)
		if err != nil {
			return 0, err
		}
		if handled {
			return len(data), nil
		}
	}

	end := offset + int64(len(data))
	if offset < 0 || end > int64(len(f.Image)) {
		return 0, fmt.Errorf("fake: write %d bytes at 0x%X: %w", len(data), offset, io.ErrShortWrite)
	}
	copy(f.Image[offset:end], data)
	return len(data), nil
}

// Writes returns the recorded writes at offset.
func (f *Fake) Writes(offset int64) []Op {
	return f.filter(true, offset)
}

// Reads returns the recorded reads at offset.
func (f *Fake) Reads(offset int64) []Op {
	return f.filter(false, offset)
}

func (f *Fake) filter(write bool, offset int64) []Op {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ops []Op
	for _, op := range f.Ops {
		if op.Write == write && op.Offset == offset {
			ops = append(ops, op)
		}
	}
	return ops
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
