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

package soc

import (
	"encoding/binary"

	"github.com/rvcore/rvemu/internal/xlen"
)

// Register numbers used by the reset vector.
const (
	regT0 = 5
	regA0 = 10
	regA1 = 11
	regA2 = 12
)

const csrMhartid = 0xF14

func encodeU(opcode, rd uint32, imm20 uint32) uint32 {
	return imm20<<12 | rd<<7 | opcode
}

func encodeI(opcode, rd, funct3, rs1 uint32, imm12 uint32) uint32 {
	return imm12<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

// resetVector builds the ten-word mask ROM image every hart starts
// executing from: it reads its hart id into a0, loads the fixed-up
// start and device-tree addresses from the two word pairs following
// the code, and jumps to the firmware entry point with a0/a1 already
// set the way a riscv firmware expects (mhartid, fdt pointer).
//
// Word widths throughout are fixed regardless of build XLEN: the load
// instructions are ld on an RV64 build, lw on RV32, selected by
// xlen.Bits, but the two trailing address fields are always stored as
// a pair of 32-bit words so the ROM layout does not depend on the
// build tag.
func resetVector(startAddr, fdtAddr xlen.Word) []byte {
	loadFunct3 := uint32(0x2) // lw
	if xlen.Bits == 64 {
		loadFunct3 = 0x3 // ld
	}

	words := [10]uint32{
		encodeU(0x17, regT0, 0),                           // auipc t0, 0
		encodeI(0x13, regA2, 0x0, regT0, 0x028),           // addi  a2, t0, 40
		encodeI(0x73, regA0, 0x2, 0, csrMhartid),          // csrrs a0, mhartid, x0
		encodeI(0x03, regA1, loadFunct3, regT0, 32),       // l{w,d} a1, 32(t0)  -- fdt addr
		encodeI(0x03, regT0, loadFunct3, regT0, 24),       // l{w,d} t0, 24(t0)  -- start addr
		encodeI(0x67, 0, 0x0, regT0, 0),                   // jr t0
		uint32(startAddr),                                 // start_addr lo
		uint32(uint64(startAddr) >> 32),                   // start_addr hi
		uint32(fdtAddr),                                   // fdt_addr lo
		uint32(uint64(fdtAddr) >> 32),                      // fdt_addr hi
	}

	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}
