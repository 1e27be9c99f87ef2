// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package blockdev

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/ffutop/c0microsd-toolkit/device"
)

// Client implements transport.Transport against a block device path, such
// as /dev/sdb or /dev/mmcblk0.
//
// Each call opens the path with O_SYNC, seeks, performs one read or write and
// closes it again. Reopening per transaction is what forces the host to
// flush every access through to the card, so no handle is ever cached.
type Client struct {
	Path string
}

// NewClient allocates a Client for path.
func NewClient(path string) *Client {
	return &Client{Path: path}
}

// Read reads length bytes at offset.
func (c *Client) Read(offset int64, length int) ([]byte, error) {
	f, err := os.OpenFile(c.Path, os.O_RDONLY|os.O_SYNC, 0)
	if err != nil {
		return nil, c.accessError("read", offset, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s to 0x%X: %w", c.Path, offset, err)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(f, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read %d bytes at 0x%X from %s: %w", length, offset, c.Path, err)
	}
	slog.Debug("blockdev read", "device", c.Path, "offset", fmt.Sprintf("0x%X", offset), "length", length)
	return buf, nil
}

// Write writes data at offset.
func (c *Client) Write(offset int64, data []byte) (int, error) {
	f, err := os.OpenFile(c.Path, os.O_WRONLY|os.O_SYNC, 0)
	if err != nil {
		return 0, c.accessError("write", offset, err)
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return 0, fmt.Errorf("seek %s to 0x%X: %w", c.Path, offset, err)
	}

	n, err := f.Write(data)
	if err != nil {
		f.Close()
		return n, fmt.Errorf("write %d bytes at 0x%X to %s: %w", len(data), offset, c.Path, err)
	}
	// Close reports deferred write-back errors on some devices.
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("close %s after write: %w", c.Path, err)
	}
	slog.Debug("blockdev write", "device", c.Path, "offset", fmt.Sprintf("0x%X", offset), "length", n)
	return n, nil
}

func (c *Client) accessError(op string, offset int64, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &device.AccessError{Kind: device.NotFound, Path: c.Path, Op: op, Offset: offset, Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &device.AccessError{Kind: device.PermissionDenied, Path: c.Path, Op: op, Offset: offset, Err: err}
	default:
		return fmt.Errorf("open %s for %s: %w", c.Path, op, err)
	}
}
