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

// Package trap implements the privileged trap engine: the CSR-backed
// status/ie/ip/edeleg/ideleg/tvec/counteren/scratch/epc/cause/tval
// register bank for machine, supervisor, and (nominal) user levels,
// interrupt steering with three-level delegation, and trap entry/return.
package trap

import (
	"github.com/rvcore/rvemu/internal/csr"
	"github.com/rvcore/rvemu/internal/xlen"
)

// Level is the concrete privilege-level type (User=0, Supervisor=1,
// Machine=3), matching the RISC-V CSR address encoding directly.
type Level uint8

const (
	LevelUser       Level = 0
	LevelSupervisor Level = 1
	LevelMachine    Level = 3
)

// levelRegs holds the per-level registers that are NOT shared words:
// edeleg, tvec, counteren, scratch, epc, cause, tval.
type levelRegs struct {
	edeleg    xlen.Word
	tvec      xlen.Word
	counteren xlen.Word
	scratch   xlen.Word
	epc       xlen.Word
	cause     xlen.Word
	tval      xlen.Word
}

// Engine is the trap engine for one hart. status, ideleg, ie, and ip are
// single underlying words viewed through per-level WARL masks; everything
// else is distinct per level, indexed by idx(level).
type Engine struct {
	status xlen.Word
	ideleg xlen.Word
	ie     xlen.Word
	ip     xlen.Word
	misa   xlen.Word

	regs [3]levelRegs // index via idx()
}

// idx maps a Level to a dense array index (U=0, S=1, M=2).
func idx(l Level) int {
	switch l {
	case LevelUser:
		return 0
	case LevelSupervisor:
		return 1
	default:
		return 2
	}
}

// New creates a trap engine. misa reports the implemented extensions
// (RV32I/RV64I + M + A + the user/supervisor present bits); it is
// read-only and fixed at construction.
func New(misa xlen.Word) *Engine {
	return &Engine{misa: misa}
}

// Reset clears all trap state, as a hardware reset does.
func (e *Engine) Reset() {
	e.status, e.ideleg, e.ie, e.ip = 0, 0, 0, 0
	e.regs = [3]levelRegs{}
}

// statusMaskFor returns the WARL mask for the status word as seen at level.
func statusMaskFor(l Level) xlen.Word {
	switch l {
	case LevelUser:
		return ustatusMask
	case LevelSupervisor:
		return sstatusMask
	default:
		return mstatusMask
	}
}

func ieMaskFor(l Level) xlen.Word {
	switch l {
	case LevelUser:
		return uieMask
	case LevelSupervisor:
		return sieMask
	default:
		return mieMask
	}
}

func delegMaskFor(l Level) xlen.Word {
	switch l {
	case LevelSupervisor:
		return sidelegMask
	default:
		return midelegMask
	}
}

func edelegMaskFor(l Level) xlen.Word {
	if l == LevelSupervisor {
		return sedelegMask
	}
	return medelegMask
}

// StatusView returns the status word as visible at level l.
func (e *Engine) StatusView(l Level) xlen.Word { return e.status & statusMaskFor(l) }

// SetStatusView writes v through the level-l mask, leaving bits outside
// that mask untouched.
func (e *Engine) SetStatusView(l Level, v xlen.Word) {
	m := statusMaskFor(l)
	e.status = (e.status &^ m) | (v & m)
}

// MPP / SPP / MPRV / SUM / MXR accessors used by the memory pipeline and
// by MRET/SRET.
func (e *Engine) MPP() Level { return Level((e.status >> statusMPPlo) & 0x3) }
func (e *Engine) SetMPP(l Level) {
	e.status = (e.status &^ (0x3 << statusMPPlo)) | (xlen.Word(l&0x3) << statusMPPlo)
}
func (e *Engine) SPP() Level {
	if e.status&bit(statusSPP) != 0 {
		return LevelSupervisor
	}
	return LevelUser
}
func (e *Engine) SetSPP(l Level) {
	if l == LevelSupervisor {
		e.status |= bit(statusSPP)
	} else {
		e.status &^= bit(statusSPP)
	}
}
func (e *Engine) MPRV() bool { return e.status&bit(statusMPRV) != 0 }
func (e *Engine) SUM() bool  { return e.status&bit(statusSUM) != 0 }
func (e *Engine) MXR() bool  { return e.status&bit(statusMXR) != 0 }

func (e *Engine) xie(l Level) bool {
	switch l {
	case LevelUser:
		return e.status&bit(statusUIE) != 0
	case LevelSupervisor:
		return e.status&bit(statusSIE) != 0
	default:
		return e.status&bit(statusMIE) != 0
	}
}

func (e *Engine) setXIE(l Level, v bool) {
	b := uint(statusMIE)
	switch l {
	case LevelUser:
		b = statusUIE
	case LevelSupervisor:
		b = statusSIE
	}
	if v {
		e.status |= bit(b)
	} else {
		e.status &^= bit(b)
	}
}

func (e *Engine) xpie(l Level) bool {
	switch l {
	case LevelUser:
		return e.status&bit(statusUPIE) != 0
	case LevelSupervisor:
		return e.status&bit(statusSPIE) != 0
	default:
		return e.status&bit(statusMPIE) != 0
	}
}

func (e *Engine) setXPIE(l Level, v bool) {
	b := uint(statusMPIE)
	switch l {
	case LevelUser:
		b = statusUPIE
	case LevelSupervisor:
		b = statusSPIE
	}
	if v {
		e.status |= bit(b)
	} else {
		e.status &^= bit(b)
	}
}

// reg returns the per-level non-shared registers for direct CSR wiring.
func (e *Engine) reg(l Level) *levelRegs { return &e.regs[idx(l)] }

// DelegateException walks downward from machine level per spec.md §4.8:
// an exception is delegated to the next lower level iff the current
// privilege is lower than that level and the corresponding bit of that
// level's edeleg is set.
func (e *Engine) DelegateException(current Level, cause uint) Level {
	target := LevelMachine
	for _, lvl := range []Level{LevelMachine, LevelSupervisor} {
		if target != lvl {
			break
		}
		if current < lvl && e.reg(lvl).edeleg&bit(cause) != 0 {
			target = nextLower(lvl)
		} else {
			break
		}
	}
	return target
}

func nextLower(l Level) Level {
	if l == LevelMachine {
		return LevelSupervisor
	}
	return LevelUser
}

// delegateInterrupt walks the same way using ideleg instead of edeleg,
// to find which level actually owns a given pending interrupt bit.
func (e *Engine) delegateInterrupt(bitPos uint) Level {
	target := LevelMachine
	for _, lvl := range []Level{LevelMachine, LevelSupervisor} {
		if target != lvl {
			break
		}
		if e.ideleg&delegMaskFor(lvl)&bit(bitPos) != 0 {
			target = nextLower(lvl)
		} else {
			break
		}
	}
	return target
}

// interruptPriority lists the standard RISC-V interrupt bit positions in
// priority order: MEI > MSI > MTI > SEI > SSI > STI > UEI > USI > UTI.
var interruptPriority = []uint{bitMEI, bitMSI, bitMTI, bitSEI, bitSSI, bitSTI, bitUEI, bitUSI, bitUTI}

// ProcessInterrupts merges the peripheral-driven wires into ip, only for
// bits enabled in ie (spec.md §4.1), then reports whether a trap should
// be taken from currentPriv and, if so, its cause and target level.
func (e *Engine) ProcessInterrupts(currentPriv Level, mei, mti, msi bool) (take bool, cause uint, target Level) {
	setWire := func(b uint, val bool) {
		m := bit(b)
		if e.ie&m == 0 {
			return
		}
		if val {
			e.ip |= m
		} else {
			e.ip &^= m
		}
	}
	setWire(bitMEI, mei)
	setWire(bitMTI, mti)
	setWire(bitMSI, msi)

	return e.CheckInterrupt(currentPriv)
}

// CheckInterrupt evaluates interrupt priority without touching the wire
// bits, used right after ProcessInterrupts latches them and by tests
// that drive ip/ie directly through CSR writes.
func (e *Engine) CheckInterrupt(currentPriv Level) (take bool, cause uint, target Level) {
	pending := e.ip & e.ie
	for _, b := range interruptPriority {
		if pending&bit(b) == 0 {
			continue
		}
		t := e.delegateInterrupt(b)
		if t < currentPriv {
			continue // delegated below current privilege: masked
		}
		if t > currentPriv || e.xie(t) {
			return true, b, t
		}
	}
	return false, 0, 0
}

// Enter performs trap entry to target level x from the hart's current
// level y, per spec.md §4.8. epc is the PC to save (already adjusted by
// the caller for exceptions vs. interrupts). It returns the new PC.
func (e *Engine) Enter(y, x Level, cause uint, isInterrupt bool, epc, tval xlen.Word) xlen.Word {
	r := e.reg(x)
	r.epc = epc
	r.tval = tval

	causeBit := xlen.Word(0)
	if isInterrupt {
		causeBit = xlen.Word(1) << (xlen.Bits - 1)
	}
	r.cause = causeBit | xlen.Word(cause)

	e.setXPIE(x, e.xie(x))
	e.setXIE(x, false)
	switch x {
	case LevelMachine:
		e.SetMPP(y)
	case LevelSupervisor:
		e.SetSPP(y)
	}

	return r.tvec &^ 0x3 // direct mode only: low bits are the vectored-mode selector, ignored
}

// Return performs MRET/SRET from level from, per spec.md §4.8. It
// returns the restored PC and the privilege level to switch to.
func (e *Engine) Return(from Level) (pc xlen.Word, newPriv Level) {
	r := e.reg(from)
	pc = r.epc

	e.setXIE(from, e.xpie(from))
	e.setXPIE(from, true)

	switch from {
	case LevelMachine:
		newPriv = e.MPP()
		e.SetMPP(LevelUser)
	case LevelSupervisor:
		newPriv = e.SPP()
		e.SetSPP(LevelUser)
	default:
		newPriv = LevelUser
	}
	return pc, newPriv
}

// levelAddrs bundles the fixed CSR addresses for one privilege level's
// trap registers (status/ie/tvec/... follow a uniform 0x0/0x4/0x5/...
// offset pattern from the level's 0x000/0x100/0x300 base, per the RISC-V
// CSR address map).
type levelAddrs struct {
	status, ie, tvec, counteren, scratch, epc, cause, tval, ip uint16
	edeleg, ideleg                                             uint16
}

func addrsFor(lvl Level) levelAddrs {
	switch lvl {
	case LevelUser:
		return levelAddrs{csr.Ustatus, csr.Uie, csr.Utvec, 0, csr.Uscratch, csr.Uepc, csr.Ucause, csr.Utval, csr.Uip, 0, 0}
	case LevelSupervisor:
		return levelAddrs{csr.Sstatus, csr.Sie, csr.Stvec, csr.Scounteren, csr.Sscratch, csr.Sepc, csr.Scause, csr.Stval, csr.Sip, csr.Sedeleg, csr.Sideleg}
	default:
		return levelAddrs{csr.Mstatus, csr.Mie, csr.Mtvec, csr.Mcounteren, csr.Mscratch, csr.Mepc, csr.Mcause, csr.Mtval, csr.Mip, csr.Medeleg, csr.Mideleg}
	}
}

// RegisterCSRs defines every CSR this engine owns on f, wiring each
// through Read/Write callbacks so the CSR file's generic access checks
// (privilege level, read-only bits) apply uniformly, while storage stays
// here in the shared status/ie/ip/ideleg words and per-level levelRegs.
func (e *Engine) RegisterCSRs(f *csr.File) {
	for _, lvl := range []Level{LevelUser, LevelSupervisor, LevelMachine} {
		lvl, a, r := lvl, addrsFor(lvl), e.reg(lvl)

		f.Define(a.status, 0, statusMaskFor(lvl)).Read = func() xlen.Word { return e.StatusView(lvl) }
		f.Lookup(a.status).Write = func(v xlen.Word) { e.SetStatusView(lvl, v) }

		ieMask := ieMaskFor(lvl)
		f.Define(a.ie, 0, ieMask).Read = func() xlen.Word { return e.ie & ieMask }
		f.Lookup(a.ie).Write = func(v xlen.Word) { e.ie = (e.ie &^ ieMask) | (v & ieMask) }

		ipMask := ieMask & ipWritableMask
		f.Define(a.ip, 0, ipMask).Read = func() xlen.Word { return e.ip & ieMask }
		f.Lookup(a.ip).Write = func(v xlen.Word) { e.ip = (e.ip &^ ipMask) | (v & ipMask) }

		f.Define(a.tvec, 0, ^xlen.Word(0)).Read = func() xlen.Word { return r.tvec }
		f.Lookup(a.tvec).Write = func(v xlen.Word) { r.tvec = v }

		f.Define(a.scratch, 0, ^xlen.Word(0)).Read = func() xlen.Word { return r.scratch }
		f.Lookup(a.scratch).Write = func(v xlen.Word) { r.scratch = v }

		f.Define(a.epc, 0, ^xlen.Word(0)&^3).Read = func() xlen.Word { return r.epc }
		f.Lookup(a.epc).Write = func(v xlen.Word) { r.epc = v &^ 3 }

		f.Define(a.cause, 0, ^xlen.Word(0)).Read = func() xlen.Word { return r.cause }
		f.Lookup(a.cause).Write = func(v xlen.Word) { r.cause = v }

		f.Define(a.tval, 0, ^xlen.Word(0)).Read = func() xlen.Word { return r.tval }
		f.Lookup(a.tval).Write = func(v xlen.Word) { r.tval = v }

		if lvl != LevelUser {
			f.Define(a.counteren, 0, 0x7).Read = func() xlen.Word { return r.counteren }
			f.Lookup(a.counteren).Write = func(v xlen.Word) { r.counteren = v & 0x7 }

			edelegMask := edelegMaskFor(lvl)
			f.Define(a.edeleg, 0, edelegMask).Read = func() xlen.Word { return r.edeleg }
			f.Lookup(a.edeleg).Write = func(v xlen.Word) { r.edeleg = v & edelegMask }

			idelegMask := delegMaskFor(lvl)
			f.Define(a.ideleg, 0, idelegMask).Read = func() xlen.Word { return e.ideleg & idelegMask }
			f.Lookup(a.ideleg).Write = func(v xlen.Word) { e.ideleg = (e.ideleg &^ idelegMask) | (v & idelegMask) }
		}
	}

	f.Define(csr.Misa, e.misa, 0).Read = func() xlen.Word { return e.misa }
	for _, addr := range []uint16{csr.Mvendorid, csr.Marchid, csr.Mimpid, csr.Mhartid} {
		f.Define(addr, 0, 0)
	}
}
