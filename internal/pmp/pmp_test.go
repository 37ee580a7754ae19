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

package pmp

import (
	"errors"
	"testing"

	"github.com/rvcore/rvemu/internal/csr"
	"github.com/rvcore/rvemu/internal/xlen"
)

func TestNAPOTMatchAndDeny(t *testing.T) {
	u := New()
	// 4 KiB window at 0x8000_0000, read+write only.
	u.cfg[0] = uint8(modeNAPOT)<<cfgModeOffs | uint8(Read|Write)
	u.addr[0] = 0x200001FF

	if err := u.Check(csr.LevelUser, 0x8000_0000, 4, Read); err != nil {
		t.Errorf("read at window start: %v", err)
	}
	if err := u.Check(csr.LevelUser, 0x8000_0FFF, 1, Write); err != nil {
		t.Errorf("write at window's last byte: %v", err)
	}
	if err := u.Check(csr.LevelUser, 0x8000_1000, 4, Read); !errors.Is(err, ErrDenied) {
		t.Errorf("read just past the window = %v, want ErrDenied", err)
	}
	if err := u.Check(csr.LevelUser, 0x8000_0000, 4, Fetch); !errors.Is(err, ErrDenied) {
		t.Errorf("fetch from a read/write-only window = %v, want ErrDenied", err)
	}
}

func TestTORMatch(t *testing.T) {
	u := New()
	u.addr[0] = 0x8000_2000 >> 2
	u.addr[1] = 0x8000_3000 >> 2
	u.cfg[1] = uint8(modeTOR)<<cfgModeOffs | uint8(Read)

	if err := u.Check(csr.LevelUser, 0x8000_2000, 4, Read); err != nil {
		t.Errorf("read at TOR range start: %v", err)
	}
	if err := u.Check(csr.LevelUser, 0x8000_2FFF, 1, Read); err != nil {
		t.Errorf("read at TOR range's last byte: %v", err)
	}
	if err := u.Check(csr.LevelUser, 0x8000_3000, 4, Read); !errors.Is(err, ErrDenied) {
		t.Errorf("read at the TOR range's exclusive upper bound = %v, want ErrDenied", err)
	}
}

func TestMachineModeBypassesUnlockedEntries(t *testing.T) {
	u := New()
	u.cfg[0] = uint8(modeNAPOT)<<cfgModeOffs | uint8(Read)
	u.addr[0] = 0x200001FF

	// Machine mode ignores any entry that isn't locked.
	if err := u.Check(csr.LevelMachine, 0x9000_0000, 4, Write); err != nil {
		t.Errorf("unlocked-entry machine access = %v, want nil", err)
	}
}

func TestLockedEntryAppliesToMachineMode(t *testing.T) {
	u := New()
	u.cfg[0] = cfgLockBit | uint8(modeNAPOT)<<cfgModeOffs | uint8(Read)
	u.addr[0] = 0x200001FF

	if err := u.Check(csr.LevelMachine, 0x8000_0000, 4, Write); !errors.Is(err, ErrDenied) {
		t.Errorf("locked read-only entry vs machine write = %v, want ErrDenied", err)
	}
}

func TestStraddleDeniedOutsideMachineMode(t *testing.T) {
	u := New()
	u.cfg[0] = uint8(modeNAPOT)<<cfgModeOffs | uint8(Read | Write)
	u.addr[0] = 0x200001FF // [0x8000_0000, 0x8000_1000)

	// An access whose last byte falls outside the window straddles it.
	if err := u.Check(csr.LevelUser, 0x8000_0FFE, 4, Read); !errors.Is(err, ErrDenied) {
		t.Errorf("straddling user-mode access = %v, want ErrDenied", err)
	}
	if err := u.Check(csr.LevelMachine, 0x8000_0FFE, 4, Read); err != nil {
		t.Errorf("straddling machine-mode access with matching RWX = %v, want nil", err)
	}
}

func TestLockedEntryRejectsReconfiguration(t *testing.T) {
	u := New()
	f := csr.NewFile()
	u.RegisterCSRs(f)

	original := xlen.Word(0x8000_4000 >> 2)
	if err := f.Write(csr.Pmpaddr0, csr.LevelMachine, original); err != nil {
		t.Fatalf("writing pmpaddr0: %v", err)
	}

	lockCfg := xlen.Word(cfgLockBit) | xlen.Word(modeNA4)<<cfgModeOffs | xlen.Word(Read)
	if err := f.Write(csr.Pmpcfg0, csr.LevelMachine, lockCfg); err != nil {
		t.Fatalf("writing pmpcfg0: %v", err)
	}

	// Once locked, neither the address nor the config may change...
	if err := f.Write(csr.Pmpaddr0, csr.LevelMachine, original+1); err != nil {
		t.Fatalf("writing pmpaddr0 after lock: %v", err)
	}
	if got, _ := f.Read(csr.Pmpaddr0, csr.LevelMachine); got != original {
		t.Errorf("pmpaddr0 = 0x%x after locked rewrite attempt, want unchanged 0x%x", got, original)
	}

	// ...but rewriting the exact same config value is a no-op either way.
	if err := f.Write(csr.Pmpcfg0, csr.LevelMachine, lockCfg); err != nil {
		t.Fatalf("rewriting pmpcfg0 with the same value: %v", err)
	}
	if got, _ := f.Read(csr.Pmpcfg0, csr.LevelMachine); got != lockCfg {
		t.Errorf("pmpcfg0 = 0x%x after idempotent rewrite, want 0x%x", got, lockCfg)
	}
}
