// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package flasher

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ffutop/c0microsd-toolkit/bitstream"
	"github.com/ffutop/c0microsd-toolkit/device"
)

// WarmbootTemplate is the expected content of the warmboot section: five
// 32-byte boot vectors.
var WarmbootTemplate = mustDecodeHex(strings.Join([]string{
	"7eaa997e92000044030800008200000108000000000000000000000000000000",
	"7eaa997e92000044030800008200000108000000000000000000000000000000",
	"7eaa997e92000044031000008200000108000000000000000000000000000000",
	"7eaa997e92000044031800008200000108000000000000000000000000000000",
	"7eaa997e92000044030800008200000108000000000000000000000000000000",
}, ""))

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// BitstreamReport is what BitstreamInfo learned about one stored bitstream.
type BitstreamReport struct {
	Offset   int64
	Prefix   string
	Metadata bitstream.Metadata
	// Checked is false when the prefix could not be parsed for a CRC check.
	Checked bool
	Pass    bool
}

// BitstreamPrefix reads the prefix section of the bitstream stored at offset.
func (f *Flasher) BitstreamPrefix(offset int64) ([]byte, error) {
	chunk, err := f.readPrefixWindow(offset)
	if err != nil {
		return nil, err
	}
	prefix, err := bitstream.ExtractPrefix(chunk)
	if err != nil {
		return nil, prefixError(offset, err)
	}
	return prefix, nil
}

// readPrefix also returns where the payload starts, relative to offset.
func (f *Flasher) readPrefix(offset int64) ([]byte, int, error) {
	chunk, err := f.readPrefixWindow(offset)
	if err != nil {
		return nil, 0, err
	}
	start, end, err := bitstream.Locate(chunk)
	if err != nil {
		return nil, 0, prefixError(offset, err)
	}
	return bytes.Clone(chunk[start:end]), end + len(bitstream.EndMarker), nil
}

func (f *Flasher) readPrefixWindow(offset int64) ([]byte, error) {
	chunk, err := f.t.Read(offset, bitstream.PrefixWindow)
	if err != nil {
		return nil, fmt.Errorf("read bitstream prefix: %w", err)
	}
	return chunk, nil
}

func prefixError(offset int64, err error) error {
	if errors.Is(err, bitstream.ErrNoPrefix) {
		return &device.ProtocolError{Kind: device.MissingPrefixMarkers, Offset: offset, Err: err}
	}
	return err
}

// VerifyBitstreamCRC reads prefixLen+payloadSize bytes at offset and compares
// the CRC-32 of the bytes after prefixLen with expectedCRC.
//
// A length that does not fit in one bitstream region, or that runs past the
// end of the device, fails the check without an error.
func (f *Flasher) VerifyBitstreamCRC(offset int64, expectedCRC uint32, prefixLen, payloadSize int) (bool, error) {
	if prefixLen < 0 || payloadSize < 0 || payloadSize > device.BitstreamRegionSize-prefixLen {
		f.logger.Debug("Bitstream size out of range", "offset", fmt.Sprintf("0x%X", offset), "prefix", prefixLen, "size", payloadSize)
		return false, nil
	}
	data, err := f.t.Read(offset, prefixLen+payloadSize)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		f.logger.Debug("Bitstream runs past the end of the device", "offset", fmt.Sprintf("0x%X", offset), "err", err)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read bitstream: %w", err)
	}
	actual := bitstream.Checksum(data[prefixLen:])
	f.logger.Debug("Bitstream CRC", "offset", fmt.Sprintf("0x%X", offset), "expected", expectedCRC, "actual", actual)
	return actual == expectedCRC, nil
}

// BitstreamInfo reads the prefix of the bitstream at offset and, when it is
// JSON carrying bitstream_crc and bitstream_size, verifies the payload CRC.
// A prefix that cannot be parsed yields a report with Checked unset.
func (f *Flasher) BitstreamInfo(offset int64) (BitstreamReport, error) {
	report := BitstreamReport{Offset: offset}

	prefix, payloadStart, err := f.readPrefix(offset)
	if err != nil {
		return report, err
	}
	report.Prefix = string(prefix)

	md, err := bitstream.ParseMetadata(prefix)
	if err != nil {
		f.logger.Debug("Unable to parse bitstream prefix", "offset", fmt.Sprintf("0x%X", offset), "err", err)
		return report, nil
	}
	report.Metadata = md

	// Compared in uint64 so a corrupted size cannot wrap int on 32-bit hosts.
	size := -1
	if uint64(md.Size) <= device.BitstreamRegionSize {
		size = int(md.Size)
	}
	pass, err := f.VerifyBitstreamCRC(offset, md.CRC, payloadStart, size)
	if err != nil {
		return report, err
	}
	report.Checked = true
	report.Pass = pass
	return report, nil
}

// VerifyWarmbootSection compares the warmboot section with WarmbootTemplate.
func (f *Flasher) VerifyWarmbootSection() (bool, error) {
	data, err := f.t.Read(device.WarmbootOffset, device.WarmbootSize)
	if err != nil {
		return false, fmt.Errorf("read warmboot section: %w", err)
	}
	return bytes.Equal(data, WarmbootTemplate), nil
}
