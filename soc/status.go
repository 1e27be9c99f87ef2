// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package soc

import "fmt"

// Status is the value of the SoC status register.
type Status uint32

const (
	WaitingForCommand Status = 0
	Calculating       Status = 1
	Done              Status = 2
	InvalidCommand    Status = 3
)

// IdleCommand tells the SoC that the host has consumed the last result.
const IdleCommand uint32 = 0

func (s Status) String() string {
	switch s {
	case WaitingForCommand:
		return "WaitingForCommand"
	case Calculating:
		return "Calculating"
	case Done:
		return "Done"
	case InvalidCommand:
		return "InvalidCommand"
	default:
		return fmt.Sprintf("Status(%d)", uint32(s))
	}
}

// Known reports whether s is one of the defined status codes.
func (s Status) Known() bool {
	return s <= InvalidCommand
}
