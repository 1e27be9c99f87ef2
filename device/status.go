// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ffutop/c0microsd-toolkit/transport"
)

// Identity is the configuration currently loaded on the card.
type Identity int

const (
	Unknown Identity = iota
	Bootloader
	SoC
)

func (id Identity) String() string {
	switch id {
	case Bootloader:
		return "Bootloader"
	case SoC:
		return "Signaloid SoC"
	default:
		return "UNKNOWN"
	}
}

// Version is the (major, minor) version of the loaded configuration.
type Version struct {
	Major uint16
	Minor uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Status is a snapshot of the configuration status block. Every read
// produces a new value; nothing caches it.
type Status struct {
	Identity  Identity
	Version   Version
	State     uint32
	Switching bool
}

// String renders the status the way the host utilities print it.
func (s Status) String() string {
	var b strings.Builder
	b.WriteString("Signaloid C0-microSD")
	b.WriteString(" | Loaded configuration: ")
	b.WriteString(s.Identity.String())
	if s.Identity != Unknown {
		b.WriteString(" | Version: ")
		b.WriteString(s.Version.String())
	} else {
		b.WriteString(" | Version: N/A")
	}
	if s.Switching {
		b.WriteString(" | State SWITCHING")
	} else {
		b.WriteString(" | State IDLE")
	}
	return b.String()
}

// Handle names a card and how strictly to treat it. Force suppresses
// identity and mode validation.
type Handle struct {
	Path  string
	Force bool
}

// DecodeStatus decodes a raw configuration status block.
//
// Layout:
//   - bytes 0-3:  identity word, "SBLD" or "SSOC"
//   - bytes 4-7:  version, big-endian major then minor
//   - bytes 8-11: state word, big-endian, bit 0 is the switching flag
func DecodeStatus(raw []byte) (Status, error) {
	if len(raw) < ConfigurationStatusSize {
		return Status{}, fmt.Errorf("configuration status block too short: got %d bytes, want %d", len(raw), ConfigurationStatusSize)
	}

	var st Status
	var id [4]byte
	copy(id[:], raw[0:4])
	switch id {
	case BootloaderCheckWord:
		st.Identity = Bootloader
	case SoCCheckWord:
		st.Identity = SoC
	default:
		st.Identity = Unknown
	}

	st.Version = Version{
		Major: binary.BigEndian.Uint16(raw[4:6]),
		Minor: binary.BigEndian.Uint16(raw[6:8]),
	}
	st.State = binary.BigEndian.Uint32(raw[8:12])
	st.Switching = st.State&1 != 0
	return st, nil
}

// EncodeStatus is the inverse of DecodeStatus. Unknown identities encode as
// four zero bytes.
func EncodeStatus(st Status) []byte {
	raw := make([]byte, ConfigurationStatusSize)
	switch st.Identity {
	case Bootloader:
		copy(raw[0:4], BootloaderCheckWord[:])
	case SoC:
		copy(raw[0:4], SoCCheckWord[:])
	}
	binary.BigEndian.PutUint16(raw[4:6], st.Version.Major)
	binary.BigEndian.PutUint16(raw[6:8], st.Version.Minor)
	state := st.State
	if st.Switching {
		state |= 1
	}
	binary.BigEndian.PutUint32(raw[8:12], state)
	return raw
}

// ReadStatus reads and validates the configuration status block.
//
// Unless force is set, an unknown identity fails with ErrUnrecognizedIdentity
// and a card in the middle of a configuration switch fails with
// ErrDeviceSwitching. The decoded status is returned alongside the error so
// callers can still report it.
func ReadStatus(t transport.Transport, force bool) (Status, error) {
	raw, err := t.Read(ConfigurationStatusOffset, ConfigurationStatusSize)
	if err != nil {
		return Status{}, fmt.Errorf("read configuration status: %w", err)
	}

	st, err := DecodeStatus(raw)
	if err != nil {
		return Status{}, err
	}

	if force {
		return st, nil
	}
	if st.Identity == Unknown {
		return st, &ProtocolError{Kind: UnrecognizedIdentity, Offset: ConfigurationStatusOffset}
	}
	if st.Switching {
		return st, &ProtocolError{Kind: DeviceSwitching, Offset: ConfigurationStatusOffset}
	}
	return st, nil
}
