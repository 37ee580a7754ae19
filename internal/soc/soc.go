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

// Package soc wires one hart to its memory map: mask ROM holding the
// reset vector, DRAM, the CLINT, the PLIC, and a console UART. It loads
// firmware and a device tree blob into DRAM and runs the per-step loop
// that samples the interrupt wires from the PLIC and CLINT between
// instructions.
package soc

import (
	"fmt"
	"io"
	"os"

	"github.com/rvcore/rvemu/internal/bus"
	"github.com/rvcore/rvemu/internal/clint"
	"github.com/rvcore/rvemu/internal/csr"
	"github.com/rvcore/rvemu/internal/hart"
	"github.com/rvcore/rvemu/internal/mmu"
	"github.com/rvcore/rvemu/internal/plic"
	"github.com/rvcore/rvemu/internal/pmp"
	"github.com/rvcore/rvemu/internal/trap"
	"github.com/rvcore/rvemu/internal/uart"
	"github.com/rvcore/rvemu/internal/xlen"
)

// Memory map addresses and sizes.
const (
	mromBase = 0x0000_1000
	mromSize = 0xF000

	clintBase = 0x0200_0000
	clintSize = 0x10000

	simpleUARTBase = 0x0300_0000
	simpleUARTSize = 2

	plicBase = 0x0C00_0000
	plicSize = 0x3FF_F004

	uart8250Base = 0x1000_0000
	uart8250Size = 12

	dramBase = 0x8000_0000
	dramSize = 128 * 1024 * 1024

	dtbAlign = 2 * 1024 * 1024

	// uartIRQSource is the PLIC source id wired to the console UART,
	// matching the fixed source assignment of the platform this SoC's
	// memory map is modeled on.
	uartIRQSource = 10
)

// updater is implemented by UART variants that need polling once per
// step to flush transmitted bytes and recompute their interrupt
// condition (the 16550; the simple UART drives its interrupt hook
// directly from Write/PushInput instead).
type updater interface {
	Update()
}

// console is the subset of the two UART variants the SoC needs beyond
// bus.Device.
type console interface {
	bus.Device
	SetInterruptHook(func(level bool))
	PushInput(b byte)
}

// SoC is one hart plus its memory map.
type SoC struct {
	Hart *hart.Hart

	bus   *bus.Bus
	dram  *bus.RAM
	mrom  *bus.RAM
	clint *clint.CLINT
	plic  *plic.PLIC
	uart  console

	fdtAddr xlen.Word
}

// New builds a SoC with an empty reset vector and all devices mapped.
// useUart8250 selects the 16550-compatible console instead of the
// 2-register simple UART; consoleOut receives bytes the guest transmits.
func New(useUart8250 bool, consoleOut io.Writer) *SoC {
	b := bus.New()

	te := trap.New(buildMisa())
	cf := csr.NewFile()
	te.RegisterCSRs(cf)

	pu := pmp.New()
	pu.RegisterCSRs(cf)

	mu := mmu.New()
	mu.RegisterCSRs(cf)

	s := &SoC{
		bus:   b,
		dram:  bus.NewRAM(dramSize),
		mrom:  bus.NewROM(mromSize, nil),
		clint: clint.New(),
		plic:  plic.New(),
	}

	if useUart8250 {
		s.uart = uart.NewUart8250(consoleOut)
	} else {
		s.uart = uart.NewSimple(consoleOut)
	}
	s.uart.SetInterruptHook(func(level bool) { s.plic.SetPending(uartIRQSource, level) })

	b.Map("dram", dramBase, dramSize, s.dram)
	b.Map("clint", clintBase, clintSize, s.clint)
	b.Map("plic", plicBase, plicSize, s.plic)
	if useUart8250 {
		b.Map("uart8250", uart8250Base, uart8250Size, s.uart)
	} else {
		b.Map("uart-simple", simpleUARTBase, simpleUARTSize, s.uart)
	}
	b.Map("mrom", mromBase, mromSize, s.mrom)

	s.Hart = hart.New(b, te, cf, pu, mu)
	return s
}

// buildMisa sets the MXL field for the build's XLEN plus the I, M, A,
// S, and U extension bits.
func buildMisa() xlen.Word {
	const (
		extA = 1 << 0
		extI = 1 << 8
		extM = 1 << 12
		extS = 1 << 18
		extU = 1 << 20
	)
	misa := xlen.Word(extA | extI | extM | extS | extU)
	if xlen.Bits == 64 {
		misa |= xlen.Word(2) << (xlen.Bits - 2)
	} else {
		misa |= xlen.Word(1) << (xlen.Bits - 2)
	}
	return misa
}

// PushInput delivers one received console byte, called by the input
// goroutine the front end runs.
func (s *SoC) PushInput(b byte) { s.uart.PushInput(b) }

// LoadFirmware reads path and loads it as a flat binary at the base of
// DRAM.
func (s *SoC) LoadFirmware(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("soc: reading firmware: %w", err)
	}
	if err := s.dram.Load(0, data); err != nil {
		return fmt.Errorf("soc: loading firmware: %w", err)
	}
	return nil
}

// LoadDTB reads path and loads it near the top of DRAM, aligned down to
// a 2 MiB boundary so firmware can find it by a coarse address match.
func (s *SoC) LoadDTB(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("soc: reading device tree: %w", err)
	}
	offset := alignDown(dramSize-len(data), dtbAlign)
	if err := s.dram.Load(offset, data); err != nil {
		return fmt.Errorf("soc: loading device tree: %w", err)
	}
	s.fdtAddr = dramBase + xlen.Word(offset)
	return nil
}

func alignDown(v, align int) int {
	return v &^ (align - 1)
}

// Boot installs the reset vector ROM and parks the hart at its base,
// pointing a0/a1 at the hart id and device tree the way the vector
// itself arranges via mhartid and the loaded fdt address word.
func (s *SoC) Boot() {
	image := resetVector(dramBase, s.fdtAddr)
	*s.mrom = *bus.NewROM(mromSize, image)
	s.Hart.Reset()
	s.Hart.PC = mromBase
}

// Run executes the step loop until the PC reaches successPC or, if
// maxCycles is nonzero, the cycle count reaches it. Each iteration
// updates the UART and ticks the CLINT, then samples the interrupt wires
// and passes them to Step, which runs the instruction and then the
// interrupt check with those sampled values. A write the guest makes to
// the UART, PLIC or CLINT during an instruction is therefore seen by the
// interrupt check of the following iteration, not of the same one.
func (s *SoC) Run(successPC xlen.Word, maxCycles uint64) {
	for {
		if u, ok := s.uart.(updater); ok {
			u.Update()
		}
		s.clint.Tick()

		s.Hart.Step(s.mei(), s.clint.MTI(), s.clint.MSI())

		if s.Hart.PC == successPC {
			return
		}
		if maxCycles != 0 && s.Hart.Cycle() >= maxCycles {
			return
		}
	}
}

func (s *SoC) mei() bool { return s.plic.Pending() }
