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

// Package clint implements the core-local interruptor: msip, mtimecmp,
// and a free-running mtime, all 64-bit, mapped as a bus.Device.
package clint

import (
	"fmt"

	"github.com/rvcore/rvemu/internal/xlen"
)

const (
	offMsip     = 0x0000
	offMtimecmp = 0x4000
	offMtime    = 0xBFF8
)

// CLINT is one hart's core-local interruptor.
type CLINT struct {
	msip     uint64
	mtimecmp uint64
	mtime    uint64
}

// New returns a CLINT with all registers zeroed.
func New() *CLINT { return &CLINT{} }

// Tick advances mtime by one, called once per step loop iteration.
func (c *CLINT) Tick() { c.mtime++ }

// MTI reports the timer-interrupt wire: mtime >= mtimecmp.
func (c *CLINT) MTI() bool { return c.mtime >= c.mtimecmp }

// MSI reports the software-interrupt wire: the low bit of msip.
func (c *CLINT) MSI() bool { return c.msip&1 != 0 }

func (c *CLINT) reg(off xlen.Word) (*uint64, error) {
	switch off {
	case offMsip:
		return &c.msip, nil
	case offMtimecmp:
		return &c.mtimecmp, nil
	case offMtime:
		return &c.mtime, nil
	default:
		return nil, fmt.Errorf("clint: no register at offset 0x%x", off)
	}
}

// Read implements bus.Device. All three registers are 64-bit
// little-endian regardless of XLEN; narrower accesses read the
// corresponding low/high half.
func (c *CLINT) Read(offset xlen.Word, size int) (xlen.Word, error) {
	base := offset &^ 0x7
	r, err := c.reg(base)
	if err != nil {
		return 0, err
	}
	shift := (offset - base) * 8
	mask := uint64(1)<<(uint(size)*8) - 1
	if size == 8 {
		mask = ^uint64(0)
	}
	return xlen.Word((*r >> shift) & mask), nil
}

// Write implements bus.Device.
func (c *CLINT) Write(offset xlen.Word, value xlen.Word, size int) error {
	base := offset &^ 0x7
	r, err := c.reg(base)
	if err != nil {
		return err
	}
	shift := (offset - base) * 8
	mask := uint64(1)<<(uint(size)*8) - 1
	if size == 8 {
		mask = ^uint64(0)
	}
	*r = (*r &^ (mask << shift)) | ((uint64(value) & mask) << shift)
	return nil
}
