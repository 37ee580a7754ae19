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

// Package pmp implements the physical-memory-protection checker: 16
// entries, each with a lock bit, an address-matching mode, and RWX
// permission bits, consulted on every physical memory access.
package pmp

import (
	"errors"

	"github.com/rvcore/rvemu/internal/csr"
	"github.com/rvcore/rvemu/internal/xlen"
)

// Kind is the access type a check is performed for.
type Kind uint8

const (
	Read Kind = 1 << iota
	Write
	Fetch
)

const numEntries = 16

// mode is the address-matching mode encoded in cfg bits [4:3].
type mode uint8

const (
	modeOff mode = iota
	modeTOR
	modeNA4
	modeNAPOT
)

const (
	cfgLockBit  = 0x80
	cfgModeOffs = 3
	cfgRWXMask  = 0x7
)

// ErrDenied is returned for any access the PMP rules reject.
var ErrDenied = errors.New("pmp: access denied")

// Unit is one hart's PMP checker.
type Unit struct {
	cfg  [numEntries]uint8
	addr [numEntries]xlen.Word
}

// New returns a PMP unit with all entries disabled (mode Off), matching
// the post-reset state.
func New() *Unit { return &Unit{} }

// Reset clears every entry, including locked ones, as only a hardware
// reset is permitted to do.
func (u *Unit) Reset() { *u = Unit{} }

func locked(cfg uint8) bool { return cfg&cfgLockBit != 0 }
func modeOf(cfg uint8) mode { return mode((cfg >> cfgModeOffs) & 0x3) }

// Check reports whether priv may perform an access of kind k, length
// length bytes starting at physical address addr. Entries are scanned in
// order; the first entry whose window overlaps the access wins.
func (u *Unit) Check(priv csr.Level, addr xlen.Word, length int, k Kind) error {
	atLeastOneActive := false

	for i := 0; i < numEntries; i++ {
		cfg := u.cfg[i]

		if priv == csr.LevelMachine && !locked(cfg) {
			continue
		}

		m := modeOf(cfg)
		if m == modeOff {
			continue
		}
		atLeastOneActive = true

		allowed := cfg & cfgRWXMask

		var start, size xlen.Word
		switch m {
		case modeTOR:
			if i == 0 {
				start = 0
			} else {
				start = u.addr[i-1] << 2
			}
			size = (u.addr[i] << 2) - start
		case modeNA4:
			start = u.addr[i] << 2
			size = 4
		case modeNAPOT:
			if u.addr[i] == ^xlen.Word(0) {
				start, size = 0, ^xlen.Word(0)
			} else {
				size = napotSize(u.addr[i])
				start = napotBase(u.addr[i], size)
			}
		}

		end := addr + xlen.Word(length-1)
		lowerMatch := within(addr, start, size)
		upperMatch := within(end, start, size)

		switch {
		case lowerMatch && !upperMatch, upperMatch && !lowerMatch:
			// Straddles the window: only machine mode, and only if this
			// entry's RWX bits happen to permit the access, passes.
			if priv == csr.LevelMachine && uint8(k)&allowed != 0 {
				return nil
			}
			return ErrDenied
		case lowerMatch && upperMatch:
			if uint8(k)&allowed != 0 {
				return nil
			}
			return ErrDenied
		}
	}

	if priv == csr.LevelMachine {
		return nil
	}
	if atLeastOneActive {
		return ErrDenied
	}
	return nil
}

func within(addr, start, size xlen.Word) bool {
	return addr >= start && addr < start+size
}

// napotSize decodes the NAPOT range size from the address field: the
// range covers 2^(n+3) bytes where n is the count of consecutive set
// bits starting at bit 0 (the position of the first zero bit marks the
// encoded granularity).
func napotSize(addr xlen.Word) xlen.Word {
	n := trailingOnes(addr)
	return xlen.Word(1) << (n + 3)
}

func napotBase(addr, size xlen.Word) xlen.Word {
	mask := (size/2 - 1) >> 2
	return (addr - mask) << 2
}

func trailingOnes(v xlen.Word) uint {
	var n uint
	for v&1 == 1 {
		n++
		v >>= 1
	}
	return n
}

// wordBytes gives the CSR packing geometry: pmpcfg
// registers hold xlen.Bits/8 config bytes each, so RV32 exposes
// pmpcfg0..pmpcfg3 (4 bytes apiece) while RV64 exposes only the
// even-numbered pmpcfg0/pmpcfg2 (8 bytes apiece); the odd ones are left
// unregistered, matching real RV64 harts.
const wordBytes = xlen.Bits / 8

func (u *Unit) readCfgWord(reg int) xlen.Word {
	var v xlen.Word
	for i := 0; i < wordBytes; i++ {
		v |= xlen.Word(u.cfg[reg*wordBytes+i]) << (8 * i)
	}
	return v
}

func (u *Unit) writeCfgWord(reg int, v xlen.Word) {
	for i := 0; i < wordBytes; i++ {
		idx := reg*wordBytes + i
		if locked(u.cfg[idx]) {
			continue
		}
		u.cfg[idx] = uint8(v >> (8 * i))
	}
}

func (u *Unit) writeAddr(i int, v xlen.Word) {
	if i < numEntries-1 {
		next := u.cfg[i+1]
		if modeOf(next) == modeTOR && locked(next) {
			return
		}
	}
	if locked(u.cfg[i]) {
		return
	}
	u.addr[i] = v
}

// RegisterCSRs defines pmpcfg0..pmpcfg3 (RV32) or pmpcfg0/pmpcfg2 (RV64)
// and pmpaddr0..pmpaddr15 on f.
func (u *Unit) RegisterCSRs(f *csr.File) {
	numCfgRegs := numEntries / wordBytes
	for reg := 0; reg < numCfgRegs; reg++ {
		reg := reg
		// pmpcfgN is always at 0x3A0+N; on RV64 each register packs 8
		// entries so only the even N (0, 2) are populated.
		addrOffset := uint16(reg * (wordBytes / 4))
		e := f.Define(csr.Pmpcfg0+addrOffset, 0, ^xlen.Word(0))
		e.Read = func() xlen.Word { return u.readCfgWord(reg) }
		e.Write = func(v xlen.Word) { u.writeCfgWord(reg, v) }
	}

	for i := 0; i < numEntries; i++ {
		i := i
		e := f.Define(csr.Pmpaddr0+uint16(i), 0, ^xlen.Word(0))
		e.Read = func() xlen.Word { return u.addr[i] }
		e.Write = func(v xlen.Word) { u.writeAddr(i, v) }
	}
}
