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

package clint

import "testing"

func TestTickAdvancesMtime(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		c.Tick()
	}
	v, err := c.Read(offMtime, 4)
	if err != nil {
		t.Fatalf("read mtime: %v", err)
	}
	if v != 5 {
		t.Errorf("mtime = %d, want 5", v)
	}
}

func TestMTIFiresWhenMtimeReachesCompare(t *testing.T) {
	c := New()
	if err := c.Write(offMtimecmp, 3, 4); err != nil {
		t.Fatalf("write mtimecmp: %v", err)
	}
	for i := 0; i < 2; i++ {
		c.Tick()
	}
	if c.MTI() {
		t.Error("MTI fired early: mtime=2, mtimecmp=3")
	}
	c.Tick()
	if !c.MTI() {
		t.Error("MTI did not fire: mtime=3, mtimecmp=3")
	}
}

func TestMSIFollowsMsipLowBit(t *testing.T) {
	c := New()
	if c.MSI() {
		t.Error("MSI set before any write")
	}
	if err := c.Write(offMsip, 1, 4); err != nil {
		t.Fatalf("write msip: %v", err)
	}
	if !c.MSI() {
		t.Error("MSI not set after writing msip=1")
	}
}

func TestMtimeIs64BitAcrossHalfWordAccesses(t *testing.T) {
	c := New()
	c.mtime = 0x1_0000_0001 // exercises the high half on a 32-bit access

	lo, err := c.Read(offMtime, 4)
	if err != nil {
		t.Fatalf("read low: %v", err)
	}
	hi, err := c.Read(offMtime+4, 4)
	if err != nil {
		t.Fatalf("read high: %v", err)
	}
	if lo != 1 {
		t.Errorf("mtime low word = 0x%x, want 1", lo)
	}
	if hi != 1 {
		t.Errorf("mtime high word = 0x%x, want 1", hi)
	}
}

func TestUnmappedOffsetFails(t *testing.T) {
	c := New()
	if _, err := c.Read(0x8000, 4); err == nil {
		t.Error("expected an error reading an unmapped CLINT offset")
	}
}
