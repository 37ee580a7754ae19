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

package csr

import (
	"errors"
	"testing"

	"github.com/rvcore/rvemu/internal/xlen"
)

func TestWriteReadRoundTripRespectsMask(t *testing.T) {
	f := NewFile()
	f.Define(Mscratch, 0, 0x0000FFFF)

	const v = xlen.Word(0xDEADBEEF)
	if err := f.Write(Mscratch, LevelMachine, v); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := f.Read(Mscratch, LevelMachine)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if want := v & 0x0000FFFF; got != want {
		t.Errorf("mscratch = 0x%x, want 0x%x", got, want)
	}
}

func TestReadUnimplementedCSRIsIllegal(t *testing.T) {
	f := NewFile()
	if _, err := f.Read(Mscratch, LevelMachine); !errors.Is(err, ErrIllegal) {
		t.Errorf("reading an undefined CSR = %v, want ErrIllegal", err)
	}
}

func TestInsufficientPrivilegeIsIllegal(t *testing.T) {
	f := NewFile()
	f.Define(Mscratch, 0, ^xlen.Word(0))

	if _, err := f.Read(Mscratch, LevelUser); !errors.Is(err, ErrIllegal) {
		t.Errorf("user-mode read of an M-only CSR = %v, want ErrIllegal", err)
	}
	if err := f.Write(Mscratch, LevelSupervisor, 1); !errors.Is(err, ErrIllegal) {
		t.Errorf("supervisor-mode write of an M-only CSR = %v, want ErrIllegal", err)
	}
}

func TestReadOnlyCSRRejectsWrites(t *testing.T) {
	f := NewFile()
	f.Define(Mhartid, 0, 0) // address bits [11:10] = 0b11 mark the whole 0xC00-0xFFF range read-only

	if err := f.Write(Mhartid, LevelMachine, 0xFFFFFFFF); !errors.Is(err, ErrIllegal) {
		t.Errorf("write to a read-only CSR = %v, want ErrIllegal", err)
	}
}

func TestCallbackOwnedCSRDelegatesStorage(t *testing.T) {
	f := NewFile()
	var backing xlen.Word
	e := f.Define(Mie, 0, ^xlen.Word(0))
	e.Read = func() xlen.Word { return backing }
	e.Write = func(v xlen.Word) { backing = v }

	if err := f.Write(Mie, LevelMachine, 0x888); err != nil {
		t.Fatalf("write: %v", err)
	}
	if backing != 0x888 {
		t.Errorf("backing store = 0x%x, want 0x888 (write callback not invoked)", backing)
	}
	got, _ := f.Read(Mie, LevelMachine)
	if got != 0x888 {
		t.Errorf("read = 0x%x, want 0x888 (read callback not invoked)", got)
	}
}
