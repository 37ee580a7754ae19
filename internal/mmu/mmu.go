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

// Package mmu implements the Sv32 page-table walker: two levels, 4 KiB
// pages, 4-byte PTEs, permission checks gated by SUM and MXR.
package mmu

import (
	"errors"

	"github.com/rvcore/rvemu/internal/csr"
	"github.com/rvcore/rvemu/internal/xlen"
)

// Kind is the access the translation is being performed for.
type Kind uint8

const (
	Read Kind = iota
	Write
	Fetch
)

// ErrPageFault and ErrAccessFault distinguish the two failure causes the
// walker can raise: a page-table-level permission/validity problem
// versus a failure to even read the PTE off the bus.
var (
	ErrPageFault   = errors.New("mmu: page fault")
	ErrAccessFault = errors.New("mmu: access fault")
)

const (
	modeBare = 0
	modeSv32 = 1

	pteV = 1 << 0
	pteR = 1 << 1
	pteW = 1 << 2
	pteX = 1 << 3
	pteU = 1 << 4
	pteA = 1 << 6
	pteD = 1 << 7
)

// PTEReader reads a 32-bit page-table entry at a physical address. The
// caller (the hart's memory pipeline) is responsible for routing this
// through PMP before the bus, exactly like any other physical read; the
// MMU only needs to distinguish "the read failed" from "the PTE said
// no".
type PTEReader func(paddr xlen.Word) (uint32, error)

// Unit holds satp. Reset installs bare mode (translation disabled).
type Unit struct {
	mode xlen.Word
	ppn  xlen.Word
}

// New returns an MMU with translation disabled (satp.mode = bare).
func New() *Unit { return &Unit{} }

// Reset disables translation, as a hardware reset does.
func (u *Unit) Reset() { u.mode, u.ppn = 0, 0 }

// Enabled reports whether Sv32 translation is active for the given
// effective privilege: machine mode always bypasses translation.
func (u *Unit) Enabled(priv csr.Level) bool {
	return priv != csr.LevelMachine && u.mode == modeSv32
}

// RegisterCSRs defines satp on f. The mode field is WARL: only bare (0)
// and Sv32 (1) are accepted, any other written value is ignored.
func (u *Unit) RegisterCSRs(f *csr.File) {
	e := f.Define(csr.Satp, 0, ^xlen.Word(0))
	e.Read = func() xlen.Word { return (u.mode << 31) | u.ppn }
	e.Write = func(v xlen.Word) {
		m := v >> 31
		if m != modeBare && m != modeSv32 {
			return
		}
		u.mode = m
		u.ppn = v & 0x3FFFFF
	}
}

// Translate walks the Sv32 page table for virtual address va accessed as
// kind by a hart at effective privilege priv, with the mstatus SUM/MXR
// bits as given. readPTE performs the physical reads of the page-table
// entries themselves (already routed through PMP and the bus).
func (u *Unit) Translate(va xlen.Word, priv csr.Level, kind Kind, sum, mxr bool, readPTE PTEReader) (xlen.Word, error) {
	if priv == csr.LevelMachine || u.mode == modeBare {
		return va, nil
	}

	vpn := [2]xlen.Word{(va >> 12) & 0x3FF, (va >> 22) & 0x3FF}
	a := u.ppn * 4096
	level := 1

	var pte uint32
	for {
		paddr := a + vpn[level]*4
		v, err := readPTE(paddr)
		if err != nil {
			return 0, ErrAccessFault
		}
		pte = v

		if pte&pteV == 0 || (pte&pteR == 0 && pte&pteW != 0) {
			return 0, ErrPageFault
		}

		if pte&(pteR|pteX) != 0 {
			break // leaf
		}

		level--
		if level < 0 {
			return 0, ErrPageFault
		}
		a = xlen.Word(pte>>10) * 4096
	}

	if priv == csr.LevelUser && pte&pteU == 0 {
		return 0, ErrPageFault
	}
	if priv == csr.LevelSupervisor && pte&pteU != 0 {
		if kind == Fetch || !sum {
			return 0, ErrPageFault
		}
	}

	readable := pte&pteR != 0 || (mxr && pte&pteX != 0)
	switch kind {
	case Read:
		if !readable {
			return 0, ErrPageFault
		}
	case Write:
		if pte&pteW == 0 {
			return 0, ErrPageFault
		}
	case Fetch:
		if pte&pteX == 0 {
			return 0, ErrPageFault
		}
	}

	ppn1 := xlen.Word(pte>>20) & 0xFFF
	ppn0 := xlen.Word(pte>>10) & 0x3FF

	if level > 0 && ppn0 != 0 {
		return 0, ErrPageFault // misaligned superpage
	}

	var pa xlen.Word
	if level == 0 {
		pa = (ppn1 << 22) | (ppn0 << 12) | (va & 0xFFF)
	} else {
		pa = (ppn1 << 22) | (vpn[0] << 12) | (va & 0xFFF)
	}
	return pa, nil
}
