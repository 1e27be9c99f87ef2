// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package bitstream encodes and decodes the metadata prefix that precedes
// firmware images in flash.
//
// A prefixed image looks like:
//
//	FF 00 {"bitstream_crc": 1234, "bitstream_size": 5678} 00 FF <payload>
//
// The prefix is UTF-8 JSON and is expected to fit in the first
// PrefixWindow bytes of the image.
package bitstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
)

// PrefixWindow is how much of an image is searched for the prefix.
const PrefixWindow = 4096

var (
	StartMarker = []byte{0xFF, 0x00}
	EndMarker   = []byte{0x00, 0xFF}
)

// ErrNoPrefix is returned when either marker is missing.
var ErrNoPrefix = errors.New("bitstream: prefix markers not found")

// Metadata is the part of the prefix used for verification.
type Metadata struct {
	CRC  uint32 `json:"bitstream_crc"`
	Size uint32 `json:"bitstream_size"`
}

// Locate finds the prefix in chunk. start is the index of the first prefix
// byte and end the index of the end marker, so the prefix is chunk[start:end]
// and the payload begins at end+len(EndMarker).
func Locate(chunk []byte) (start, end int, err error) {
	i := bytes.Index(chunk, StartMarker)
	if i < 0 {
		return 0, 0, ErrNoPrefix
	}
	start = i + len(StartMarker)

	j := bytes.Index(chunk[start:], EndMarker)
	if j < 0 {
		return 0, 0, ErrNoPrefix
	}
	return start, start + j, nil
}

// ExtractPrefix returns the bytes strictly between the markers.
func ExtractPrefix(chunk []byte) ([]byte, error) {
	start, end, err := Locate(chunk)
	if err != nil {
		return nil, err
	}
	prefix := make([]byte, end-start)
	copy(prefix, chunk[start:end])
	return prefix, nil
}

// ParseMetadata decodes the JSON prefix. Both bitstream_crc and
// bitstream_size must be present.
func ParseMetadata(prefix []byte) (Metadata, error) {
	var aux struct {
		CRC  *uint32 `json:"bitstream_crc"`
		Size *uint32 `json:"bitstream_size"`
	}
	if err := json.Unmarshal(prefix, &aux); err != nil {
		return Metadata{}, fmt.Errorf("bitstream: parse prefix: %w", err)
	}
	if aux.CRC == nil {
		return Metadata{}, fmt.Errorf("bitstream: prefix has no bitstream_crc")
	}
	if aux.Size == nil {
		return Metadata{}, fmt.Errorf("bitstream: prefix has no bitstream_size")
	}
	return Metadata{CRC: *aux.CRC, Size: *aux.Size}, nil
}

// Checksum is the CRC-32 (IEEE) used in bitstream_crc.
func Checksum(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// Build returns payload preceded by a metadata prefix describing it.
// Extra fields are merged into the JSON object.
func Build(payload []byte, extra map[string]any) ([]byte, error) {
	fields := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		fields[k] = v
	}
	fields["bitstream_crc"] = Checksum(payload)
	fields["bitstream_size"] = len(payload)

	prefix, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("bitstream: encode prefix: %w", err)
	}
	if len(prefix)+len(StartMarker)+len(EndMarker) > PrefixWindow {
		return nil, fmt.Errorf("bitstream: prefix of %d bytes does not fit in %d bytes", len(prefix), PrefixWindow)
	}

	image := make([]byte, 0, len(StartMarker)+len(prefix)+len(EndMarker)+len(payload))
	image = append(image, StartMarker...)
	image = append(image, prefix...)
	image = append(image, EndMarker...)
	image = append(image, payload...)
	return image, nil
}
