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

package trace

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/rvcore/rvemu/internal/bus"
	"github.com/rvcore/rvemu/internal/csr"
	"github.com/rvcore/rvemu/internal/hart"
	"github.com/rvcore/rvemu/internal/mmu"
	"github.com/rvcore/rvemu/internal/pmp"
	"github.com/rvcore/rvemu/internal/trap"
)

const base = 0x8000_0000

func TestTracerReportsRegisterChange(t *testing.T) {
	b := bus.New()
	ram := bus.NewRAM(4096)
	b.Map("ram", base, 4096, ram)

	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, 0x02A00513) // addi x10, x0, 42
	if err := ram.Load(0, buf); err != nil {
		t.Fatalf("load: %v", err)
	}

	te := trap.New(0)
	cf := csr.NewFile()
	te.RegisterCSRs(cf)
	pu := pmp.New()
	pu.RegisterCSRs(cf)
	mu := mmu.New()
	mu.RegisterCSRs(cf)

	h := hart.New(b, te, cf, pu, mu)
	h.PC = base

	var out bytes.Buffer
	h.Tracer = New(&out)
	h.Step(false, false, false)

	s := out.String()
	if !strings.Contains(s, "x10=0x2a") {
		t.Errorf("trace output = %q, want it to report x10's new value", s)
	}
	if !strings.Contains(s, "priv=M") {
		t.Errorf("trace output = %q, want the pre-step privilege header", s)
	}
}
