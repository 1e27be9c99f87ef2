// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

// PadBuffer returns payload zero-padded to exactly capacity bytes.
// A payload larger than capacity is never truncated.
func PadBuffer(region string, payload []byte, capacity int) ([]byte, error) {
	if len(payload) > capacity {
		return nil, &SizeError{Region: region, Capacity: capacity, Size: len(payload)}
	}
	buf := make([]byte, capacity)
	copy(buf, payload)
	return buf, nil
}
