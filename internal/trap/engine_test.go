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

package trap

import (
	"testing"

	"github.com/rvcore/rvemu/internal/csr"
	"github.com/rvcore/rvemu/internal/xlen"
)

func TestDelegateExceptionDefaultsToMachine(t *testing.T) {
	e := New(0)
	if got := e.DelegateException(LevelUser, CauseEcallU); got != LevelMachine {
		t.Errorf("target = %v, want machine (no medeleg bit set)", got)
	}
}

func TestDelegateExceptionToSupervisor(t *testing.T) {
	e := New(0)
	f := csr.NewFile()
	e.RegisterCSRs(f)

	if err := f.Write(csr.Medeleg, csr.LevelMachine, 1<<CauseEcallU); err != nil {
		t.Fatalf("writing medeleg: %v", err)
	}

	if got := e.DelegateException(LevelUser, CauseEcallU); got != LevelSupervisor {
		t.Errorf("target = %v, want supervisor", got)
	}
	// A trap from supervisor is delegated to supervisor as well: the
	// current privilege is still below machine and the medeleg bit is set.
	if got := e.DelegateException(LevelSupervisor, CauseEcallU); got != LevelSupervisor {
		t.Errorf("target = %v, want supervisor (current < machine, medeleg bit set)", got)
	}
}

func TestProcessInterruptsPriorityOrder(t *testing.T) {
	e := New(0)
	f := csr.NewFile()
	e.RegisterCSRs(f)

	// Enable MEI, MSI, MTI at machine level; all three wires asserted.
	if err := f.Write(csr.Mie, csr.LevelMachine, bit(bitMEI)|bit(bitMSI)|bit(bitMTI)); err != nil {
		t.Fatalf("writing mie: %v", err)
	}

	take, cause, target := e.ProcessInterrupts(LevelUser, true, true, true)
	if !take {
		t.Fatal("expected an interrupt to be taken")
	}
	if cause != bitMEI {
		t.Errorf("cause = %d, want bitMEI (%d)", cause, bitMEI)
	}
	if target != LevelMachine {
		t.Errorf("target = %v, want machine", target)
	}
}

func TestProcessInterruptsMaskedWhenDisabled(t *testing.T) {
	e := New(0)
	f := csr.NewFile()
	e.RegisterCSRs(f)

	// mti wire asserted but MTI not enabled in mie: must not fire.
	take, _, _ := e.ProcessInterrupts(LevelUser, false, true, false)
	if take {
		t.Error("expected no interrupt: MTIE is clear")
	}
}

func TestEnterAndReturnRoundTrip(t *testing.T) {
	e := New(0)
	f := csr.NewFile()
	e.RegisterCSRs(f)

	// Simulate a trap taken from user mode with MIE set, landing at
	// machine level on an ECALL exception.
	e.SetStatusView(LevelMachine, bit(statusMIE))

	const epc = xlen.Word(0x8000_0100)
	const tval = xlen.Word(0)
	pc := e.Enter(LevelUser, LevelMachine, CauseEcallU, false, epc, tval)

	if pc != 0 {
		t.Errorf("trap PC = 0x%x, want mtvec's reset value 0", pc)
	}
	if e.MPP() != LevelUser {
		t.Errorf("MPP = %v, want user (pre-trap privilege)", e.MPP())
	}
	if e.xie(LevelMachine) {
		t.Error("MIE should be cleared on trap entry")
	}
	if !e.xpie(LevelMachine) {
		t.Error("MPIE should carry the pre-trap MIE value (1)")
	}

	gotEPC, err := f.Read(csr.Mepc, csr.LevelMachine)
	if err != nil {
		t.Fatalf("reading mepc: %v", err)
	}
	if gotEPC != epc {
		t.Errorf("mepc = 0x%x, want 0x%x", gotEPC, epc)
	}

	gotCause, err := f.Read(csr.Mcause, csr.LevelMachine)
	if err != nil {
		t.Fatalf("reading mcause: %v", err)
	}
	if gotCause != CauseEcallU {
		t.Errorf("mcause = %d, want %d (interrupt bit clear)", gotCause, CauseEcallU)
	}

	retPC, newPriv := e.Return(LevelMachine)
	if retPC != epc {
		t.Errorf("mret PC = 0x%x, want 0x%x", retPC, epc)
	}
	if newPriv != LevelUser {
		t.Errorf("post-mret privilege = %v, want user", newPriv)
	}
	if !e.xie(LevelMachine) {
		t.Error("MIE should be restored from MPIE (1) after mret")
	}
	if e.MPP() != LevelUser {
		t.Errorf("MPP after mret = %v, want reset to user", e.MPP())
	}
}

func TestInterruptCauseHasTopBitSet(t *testing.T) {
	e := New(0)
	f := csr.NewFile()
	e.RegisterCSRs(f)

	e.Enter(LevelMachine, LevelMachine, bitMTI, true, 0x1000, 0)

	got, err := f.Read(csr.Mcause, csr.LevelMachine)
	if err != nil {
		t.Fatalf("reading mcause: %v", err)
	}
	want := (xlen.Word(1) << (xlen.Bits - 1)) | bitMTI
	if got != want {
		t.Errorf("mcause = 0x%x, want 0x%x (interrupt bit set)", got, want)
	}
}
