// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.

package bus

import (
	"fmt"

	"github.com/rvcore/rvemu/internal/xlen"
)

// RAM is a flat byte-addressed memory backing DRAM or a mask ROM. A ROM
// instance simply has all writes rejected by the caller wiring readOnly.
type RAM struct {
	data     []byte
	readOnly bool
}

// NewRAM allocates size bytes, zeroed.
func NewRAM(size int) *RAM { return &RAM{data: make([]byte, size)} }

// NewROM allocates size bytes initialized from image (truncated or
// zero-padded to size) and rejects writes.
func NewROM(size int, image []byte) *RAM {
	r := &RAM{data: make([]byte, size), readOnly: true}
	copy(r.data, image)
	return r
}

// Load copies src into the RAM starting at byte offset off, for firmware
// and DTB loading. It returns an error if src would run past the end.
func (r *RAM) Load(off int, src []byte) error {
	if off < 0 || off+len(src) > len(r.data) {
		return fmt.Errorf("bus: load of %d bytes at offset 0x%x exceeds %d-byte region", len(src), off, len(r.data))
	}
	copy(r.data[off:], src)
	return nil
}

// Len returns the region's size in bytes.
func (r *RAM) Len() int { return len(r.data) }

func (r *RAM) Read(offset xlen.Word, size int) (xlen.Word, error) {
	off := int(offset)
	if off < 0 || off+size > len(r.data) {
		return 0, fmt.Errorf("%w: offset 0x%x/%d", ErrUnmapped, offset, size)
	}
	var v xlen.Word
	for i := 0; i < size; i++ {
		v |= xlen.Word(r.data[off+i]) << (8 * i)
	}
	return v, nil
}

func (r *RAM) Write(offset xlen.Word, value xlen.Word, size int) error {
	if r.readOnly {
		return nil // writes to mask ROM are silently discarded, matching real hardware
	}
	off := int(offset)
	if off < 0 || off+size > len(r.data) {
		return fmt.Errorf("%w: offset 0x%x/%d", ErrUnmapped, offset, size)
	}
	for i := 0; i < size; i++ {
		r.data[off+i] = byte(value >> (8 * i))
	}
	return nil
}
