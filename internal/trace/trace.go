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

// Package trace implements a per-instruction execution tracer, the
// debug-build counterpart to the interpreter's normal silent run mode.
package trace

import (
	"fmt"
	"io"

	"github.com/rvcore/rvemu/internal/hart"
	"github.com/rvcore/rvemu/internal/trap"
)

// Tracer prints one block per retired instruction: the cycle count and
// PC before execution, then which registers and the privilege level
// changed. It implements hart.StepTracer.
type Tracer struct {
	out io.Writer

	prevRegs [32]uint64
	prevPriv trap.Level
}

// New returns a Tracer writing to out.
func New(out io.Writer) *Tracer { return &Tracer{out: out} }

func privName(l trap.Level) string {
	switch l {
	case trap.LevelUser:
		return "U"
	case trap.LevelSupervisor:
		return "S"
	default:
		return "M"
	}
}

// PreStep records register state and prints the cycle/PC header before
// the instruction executes.
func (t *Tracer) PreStep(h *hart.Hart) {
	for i := range h.X {
		t.prevRegs[i] = uint64(h.X[i])
	}
	t.prevPriv = h.Priv

	fmt.Fprintf(t.out, "----------------------------------------\n")
	fmt.Fprintf(t.out, "cycle=%d pc=0x%x priv=%s\n", h.Cycle(), h.PC, privName(h.Priv))
}

// PostStep prints every register and privilege change the instruction
// caused.
func (t *Tracer) PostStep(h *hart.Hart) {
	changed := false
	for i := range h.X {
		if uint64(h.X[i]) != t.prevRegs[i] {
			if !changed {
				fmt.Fprintf(t.out, "  regs:")
				changed = true
			}
			fmt.Fprintf(t.out, " x%d=0x%x", i, h.X[i])
		}
	}
	if changed {
		fmt.Fprintf(t.out, "\n")
	}

	if h.Priv != t.prevPriv {
		fmt.Fprintf(t.out, "  priv: %s -> %s\n", privName(t.prevPriv), privName(h.Priv))
	}
	fmt.Fprintf(t.out, "  next pc=0x%x\n", h.PC)
}
