// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import (
	"fmt"
)

// AccessErrorKind classifies failures at the block-device boundary.
type AccessErrorKind int

const (
	NotFound AccessErrorKind = iota + 1
	PermissionDenied
)

func (k AccessErrorKind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case PermissionDenied:
		return "permission denied"
	default:
		return fmt.Sprintf("access error %d", int(k))
	}
}

// AccessError reports that the device path could not be opened.
type AccessError struct {
	Kind   AccessErrorKind
	Path   string
	Op     string // "read" or "write"
	Offset int64
	Err    error
}

func (e *AccessError) Error() string {
	switch e.Kind {
	case NotFound:
		return fmt.Sprintf("device not found: %s does not exist", e.Path)
	case PermissionDenied:
		return fmt.Sprintf("permission denied: cannot %s %s, try running with root privileges", e.Op, e.Path)
	default:
		return fmt.Sprintf("%s %s at 0x%X: %v", e.Op, e.Path, e.Offset, e.Err)
	}
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// ProtocolErrorKind classifies violations of the expected device behaviour.
type ProtocolErrorKind int

const (
	UnrecognizedIdentity ProtocolErrorKind = iota + 1
	DeviceSwitching
	InvalidCommand
	UnexpectedStatus
	MissingPrefixMarkers
	Timeout
)

func (k ProtocolErrorKind) String() string {
	switch k {
	case UnrecognizedIdentity:
		return "unrecognized identity"
	case DeviceSwitching:
		return "device switching"
	case InvalidCommand:
		return "invalid command"
	case UnexpectedStatus:
		return "unexpected status"
	case MissingPrefixMarkers:
		return "missing prefix markers"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("protocol error %d", int(k))
	}
}

// ProtocolError reports a device response that breaks the protocol.
// Only the fields relevant to Kind are set.
type ProtocolError struct {
	Kind    ProtocolErrorKind
	Offset  int64
	Command uint32
	Status  uint32
	Err     error
}

// Sentinels for errors.Is. A ProtocolError matches a sentinel of the same kind.
var (
	ErrUnrecognizedIdentity = &ProtocolError{Kind: UnrecognizedIdentity}
	ErrDeviceSwitching      = &ProtocolError{Kind: DeviceSwitching}
	ErrInvalidCommand       = &ProtocolError{Kind: InvalidCommand}
	ErrUnexpectedStatus     = &ProtocolError{Kind: UnexpectedStatus}
	ErrMissingPrefixMarkers = &ProtocolError{Kind: MissingPrefixMarkers}
	ErrTimeout              = &ProtocolError{Kind: Timeout}
)

func (e *ProtocolError) Error() string {
	switch e.Kind {
	case UnrecognizedIdentity:
		return "device is not a C0-microSD"
	case DeviceSwitching:
		return "device is in configuration switching mode, power-cycle the device and try again"
	case InvalidCommand:
		return fmt.Sprintf("device returned 'Unknown CMD' for command %d", e.Command)
	case UnexpectedStatus:
		return fmt.Sprintf("device returned unexpected status %d for command %d", e.Status, e.Command)
	case MissingPrefixMarkers:
		return fmt.Sprintf("could not find bitstream prefix section at 0x%X", e.Offset)
	case Timeout:
		if e.Err != nil {
			return fmt.Sprintf("timed out waiting for command %d: %v", e.Command, e.Err)
		}
		return fmt.Sprintf("timed out waiting for command %d", e.Command)
	default:
		return e.Kind.String()
	}
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a ProtocolError of the same kind.
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	return ok && t.Kind == e.Kind
}

// ModeError reports an operation attempted in the wrong configuration.
type ModeError struct {
	Operation string
	Want      Identity
	Got       Identity
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("%s: device is not in %s mode (loaded: %s), switch to %s mode and try again",
		e.Operation, e.Want, e.Got, e.Want)
}

// SizeError reports a payload that does not fit a fixed-size region.
type SizeError struct {
	Region   string
	Capacity int
	Size     int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s: buffer size %d exceeds maximum allowed size of %d bytes",
		e.Region, e.Size, e.Capacity)
}
