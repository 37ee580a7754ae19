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

package hart

import (
	"errors"

	"github.com/rvcore/rvemu/internal/bus"
	"github.com/rvcore/rvemu/internal/csr"
	"github.com/rvcore/rvemu/internal/mmu"
	"github.com/rvcore/rvemu/internal/pmp"
	"github.com/rvcore/rvemu/internal/trap"
	"github.com/rvcore/rvemu/internal/xlen"
)

type accessKind int

const (
	accessFetch accessKind = iota
	accessLoad
	accessStore
)

// reservation is the LR/SC state: a single hart-local, unsynchronized
// reservation (spec.md §5 — no multi-hart memory model is modeled).
type reservation struct {
	addr  xlen.Word
	valid bool
}

// Hart is one RISC-V hart: its register file, program counter, privilege
// level, and the units (trap engine, CSR file, PMP, MMU, bus) it steps
// against.
type Hart struct {
	X  [32]xlen.Word
	PC xlen.Word

	Priv trap.Level

	nextPC    xlen.Word
	pcChanged bool

	cycle uint64

	resv reservation

	Trap *trap.Engine
	CSRs *csr.File
	PMP  *pmp.Unit
	MMU  *mmu.Unit
	Bus  *bus.Bus

	// Tracer, if set, is notified before and after every Step call. It is
	// nil in normal operation; the CLI wires one in under -trace.
	Tracer StepTracer
}

// StepTracer is the hook a debug tracer implements to observe every
// instruction the hart retires, grounded on the teacher's own
// pre/post-instruction tracing split (emul/trace.go's
// TracePreInstruction/TracePostInstruction).
type StepTracer interface {
	PreStep(h *Hart)
	PostStep(h *Hart)
}

// New returns a hart wired to the given units, reset to machine mode at
// PC 0.
func New(b *bus.Bus, te *trap.Engine, cf *csr.File, pu *pmp.Unit, mu *mmu.Unit) *Hart {
	h := &Hart{Bus: b, Trap: te, CSRs: cf, PMP: pu, MMU: mu}
	h.Reset()
	return h
}

// Reset clears registers and cycle count and parks the hart in machine
// mode at PC 0; the caller is responsible for then setting PC to the
// boot vector.
func (h *Hart) Reset() {
	h.X = [32]xlen.Word{}
	h.PC = 0
	h.Priv = trap.LevelMachine
	h.resv = reservation{}
	h.cycle = 0
	h.Trap.Reset()
	h.PMP.Reset()
	h.MMU.Reset()
}

// Cycle returns the number of steps executed so far.
func (h *Hart) Cycle() uint64 { return h.cycle }

func (h *Hart) reg(i int) xlen.Word {
	if i == 0 {
		return 0
	}
	return h.X[i]
}

func (h *Hart) setReg(i int, v xlen.Word) {
	if i == 0 {
		return
	}
	h.X[i] = v
}

func (h *Hart) setNextPC(pc xlen.Word) {
	h.nextPC = pc
	h.pcChanged = true
}

// Step runs the fetch/decode/execute/interrupt-check algorithm for one
// instruction (spec.md §4.1). mei/mti/msi are the current level of the
// three wire-driven machine interrupt lines (external, timer, software);
// the caller (the SoC) samples these from the PLIC/CLINT every step.
func (h *Hart) Step(mei, mti, msi bool) {
	if h.Tracer != nil {
		h.Tracer.PreStep(h)
	}

	h.nextPC = 0
	h.pcChanged = false

	faultPC := h.PC
	inst, ferr := h.fetchInst(h.PC)
	if ferr != nil {
		h.enterException(causeForFetch(ferr), faultPC, faultPC)
	} else {
		d := Decode(inst)
		if exc, ok := h.execute(d); ok {
			h.enterException(exc.cause, faultPC, exc.tval)
		}
	}

	h.X[0] = 0
	if h.pcChanged {
		h.PC = h.nextPC
	} else {
		h.PC += 4
	}
	h.cycle++

	take, cause, target := h.Trap.ProcessInterrupts(h.Priv, mei, mti, msi)
	if take {
		h.enterInterrupt(target, cause)
	}

	if h.Tracer != nil {
		h.Tracer.PostStep(h)
	}
}

// trapSignal is how an executor reports a synchronous exception back to
// Step without panicking: architectural conditions (illegal instruction,
// misaligned access, page fault, ...) are ordinary control flow here.
type trapSignal struct {
	cause uint
	tval  xlen.Word
}

// enterException delegates a synchronous trap from the hart's current
// privilege (spec.md §4.8) and performs trap entry.
func (h *Hart) enterException(cause uint, epc, tval xlen.Word) {
	target := h.Trap.DelegateException(h.Priv, cause)
	h.enter(target, cause, false, epc, tval)
}

// enterInterrupt performs trap entry to the already-delegated target
// level target produced by ProcessInterrupts.
func (h *Hart) enterInterrupt(target trap.Level, cause uint) {
	h.enter(target, cause, true, h.PC, 0)
}

func (h *Hart) enter(target trap.Level, cause uint, isInterrupt bool, epc, tval xlen.Word) {
	newPC := h.Trap.Enter(h.Priv, target, cause, isInterrupt, epc, tval)
	h.Priv = target
	h.PC = newPC
	h.pcChanged = true
	h.nextPC = newPC
	// A trap breaks any outstanding LR/SC reservation, matching the
	// architectural guarantee (not only a successful SC clears it).
	h.resv.valid = false
}

func causeForFetch(err error) uint {
	switch {
	case errors.Is(err, mmu.ErrPageFault):
		return trap.CauseInstPageFault
	default:
		return trap.CauseInstAccessFault
	}
}

func causeForLoad(err error) uint {
	switch {
	case errors.Is(err, mmu.ErrPageFault):
		return trap.CauseLoadPageFault
	default:
		return trap.CauseLoadAccessFault
	}
}

func causeForStore(err error) uint {
	switch {
	case errors.Is(err, mmu.ErrPageFault):
		return trap.CauseStorePageFault
	default:
		return trap.CauseStoreAccessFault
	}
}

// effectivePriv returns the privilege level the memory pipeline should
// check against: MPRV substitutes MPP for loads/stores (never fetches).
func (h *Hart) effectivePriv(kind accessKind) trap.Level {
	if kind != accessFetch && h.Trap.MPRV() {
		return h.Trap.MPP()
	}
	return h.Priv
}

// translate runs the MMU walk (spec.md §4.6) if translation is enabled
// for the effective privilege. Each page-table-entry fetch is itself a
// physical read and so is PMP-checked before reaching the bus, same as
// any other physical access.
func (h *Hart) translate(va xlen.Word, priv trap.Level, kind mmu.Kind) (xlen.Word, error) {
	return h.MMU.Translate(va, csr.Level(priv), kind, h.Trap.SUM(), h.Trap.MXR(), func(paddr xlen.Word) (uint32, error) {
		if err := h.PMP.Check(csr.Level(priv), paddr, 4, pmp.Read); err != nil {
			return 0, err
		}
		v, err := h.Bus.Read(paddr, 4)
		if err != nil {
			return 0, err
		}
		return uint32(v), nil
	})
}

func pmpKindFor(kind accessKind) pmp.Kind {
	switch kind {
	case accessFetch:
		return pmp.Fetch
	case accessStore:
		return pmp.Write
	default:
		return pmp.Read
	}
}

// access runs the full memory pipeline (spec.md §4.4) for one read:
// effective privilege -> MMU walk -> PMP check -> bus route.
func (h *Hart) access(va xlen.Word, size int, kind accessKind) (xlen.Word, error) {
	priv := h.effectivePriv(kind)

	var mmuKind mmu.Kind
	switch kind {
	case accessFetch:
		mmuKind = mmu.Fetch
	case accessStore:
		mmuKind = mmu.Write
	default:
		mmuKind = mmu.Read
	}

	pa, err := h.translate(va, priv, mmuKind)
	if err != nil {
		return 0, err
	}
	if err := h.PMP.Check(csr.Level(priv), pa, size, pmpKindFor(kind)); err != nil {
		return 0, err
	}
	return h.Bus.Read(pa, size)
}

func (h *Hart) accessWrite(va xlen.Word, value xlen.Word, size int) error {
	priv := h.effectivePriv(accessStore)

	pa, err := h.translate(va, priv, mmu.Write)
	if err != nil {
		return err
	}
	if err := h.PMP.Check(csr.Level(priv), pa, size, pmp.Write); err != nil {
		return err
	}
	return h.Bus.Write(pa, value, size)
}

func (h *Hart) fetchInst(pc xlen.Word) (uint32, error) {
	v, err := h.access(pc, 4, accessFetch)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
