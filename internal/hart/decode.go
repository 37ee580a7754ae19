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

// Package hart implements the decode/dispatch pipeline and the
// per-instruction executors for RV32I/RV64I + M + A + Zicsr + the
// privileged system instructions, plus the per-step run algorithm.
//
// The decoder produces a single sum-typed Inst value (an Op tag plus its
// operand fields) rather than threading a network of table-linked
// function pointers: the table walk in the original machine is an
// implementation detail of how the opcode space is carved up, not part
// of the architecture, so a decode-then-switch-on-variant pipeline is
// the more direct rendering in Go.
package hart

import "github.com/rvcore/rvemu/internal/xlen"

// Op identifies a decoded instruction's operation.
type Op int

const (
	OpIllegal Op = iota

	OpLUI
	OpAUIPC
	OpJAL
	OpJALR

	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU

	OpLB
	OpLH
	OpLW
	OpLBU
	OpLHU
	OpLWU // RV64
	OpLD  // RV64

	OpSB
	OpSH
	OpSW
	OpSD // RV64

	OpADDI
	OpSLTI
	OpSLTIU
	OpXORI
	OpORI
	OpANDI
	OpSLLI
	OpSRLI
	OpSRAI

	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND

	OpADDIW // RV64
	OpSLLIW // RV64
	OpSRLIW // RV64
	OpSRAIW // RV64
	OpADDW  // RV64
	OpSUBW  // RV64
	OpSLLW  // RV64
	OpSRLW  // RV64
	OpSRAW  // RV64

	OpFENCE
	OpFENCEI

	OpMUL
	OpMULH
	OpMULHSU
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU

	OpMULW  // RV64
	OpDIVW  // RV64
	OpDIVUW // RV64
	OpREMW  // RV64
	OpREMUW // RV64

	OpLRW
	OpSCW
	OpAMOSWAPW
	OpAMOADDW
	OpAMOXORW
	OpAMOANDW
	OpAMOORW
	OpAMOMINW
	OpAMOMAXW
	OpAMOMINUW
	OpAMOMAXUW

	OpLRD // RV64
	OpSCD // RV64
	OpAMOSWAPD
	OpAMOADDD
	OpAMOXORD
	OpAMOANDD
	OpAMOORD
	OpAMOMIND
	OpAMOMAXD
	OpAMOMINUD
	OpAMOMAXUD

	OpCSRRW
	OpCSRRS
	OpCSRRC
	OpCSRRWI
	OpCSRRSI
	OpCSRRCI

	OpECALL
	OpEBREAK
	OpMRET
	OpSRET
	OpWFI
)

// Inst is the decoded form of one instruction word.
type Inst struct {
	Op       Op
	Rd       int
	Rs1      int
	Rs2      int
	Imm      xlen.Word // already sign-extended where the encoding calls for it
	Shamt    uint
	CSR      uint16
	Aq, Rl   bool
}

// Decode recognizes the 32-bit instruction word inst and returns its
// sum-typed form. An unrecognized opcode/sub-opcode, or an RV64-only
// instruction decoded in an RV32 build, decodes as OpIllegal.
func Decode(inst uint32) Inst {
	opcode := inst & 0x7F
	rd := int((inst >> 7) & 0x1F)
	rs1 := int((inst >> 15) & 0x1F)
	rs2 := int((inst >> 20) & 0x1F)
	funct3 := (inst >> 12) & 0x7
	funct7 := (inst >> 25) & 0x7F

	iImm := xlen.SignExtend(xlen.Word(inst>>20), 11)
	sImm := xlen.SignExtend(xlen.Word(((inst>>25)<<5)|((inst>>7)&0x1F)), 11)
	bImm := xlen.SignExtend(xlen.Word(
		(((inst>>31)&1)<<12)|(((inst>>7)&1)<<11)|(((inst>>25)&0x3F)<<5)|(((inst>>8)&0xF)<<1),
	), 12)
	uImm := xlen.Word(inst & 0xFFFFF000)
	jImm := xlen.SignExtend(xlen.Word(
		(((inst>>31)&1)<<20)|(((inst>>12)&0xFF)<<12)|(((inst>>20)&1)<<11)|(((inst>>21)&0x3FF)<<1),
	), 20)

	switch opcode {
	case 0x37:
		return Inst{Op: OpLUI, Rd: rd, Imm: uImm}
	case 0x17:
		return Inst{Op: OpAUIPC, Rd: rd, Imm: uImm}
	case 0x6F:
		return Inst{Op: OpJAL, Rd: rd, Imm: jImm}
	case 0x67:
		if funct3 != 0 {
			return Inst{Op: OpIllegal}
		}
		return Inst{Op: OpJALR, Rd: rd, Rs1: rs1, Imm: iImm}
	case 0x63:
		op, ok := branchOp(funct3)
		if !ok {
			return Inst{Op: OpIllegal}
		}
		return Inst{Op: op, Rs1: rs1, Rs2: rs2, Imm: bImm}
	case 0x03:
		op, ok := loadOp(funct3)
		if !ok {
			return Inst{Op: OpIllegal}
		}
		return Inst{Op: op, Rd: rd, Rs1: rs1, Imm: iImm}
	case 0x23:
		op, ok := storeOp(funct3)
		if !ok {
			return Inst{Op: OpIllegal}
		}
		return Inst{Op: op, Rs1: rs1, Rs2: rs2, Imm: sImm}
	case 0x13:
		return decodeOpImm(rd, rs1, funct3, funct7, iImm, inst)
	case 0x1B:
		return decodeOpImm32(rd, rs1, funct3, funct7, iImm, inst)
	case 0x33:
		return decodeOp(rd, rs1, rs2, funct3, funct7)
	case 0x3B:
		return decodeOp32(rd, rs1, rs2, funct3, funct7)
	case 0x0F:
		if funct3 == 0 {
			return Inst{Op: OpFENCE}
		}
		if funct3 == 1 {
			return Inst{Op: OpFENCEI}
		}
		return Inst{Op: OpIllegal}
	case 0x2F:
		return decodeAMO(rd, rs1, rs2, funct3, inst)
	case 0x73:
		return decodeSystem(rd, rs1, funct3, inst)
	default:
		return Inst{Op: OpIllegal}
	}
}

func branchOp(funct3 uint32) (Op, bool) {
	switch funct3 {
	case 0x0:
		return OpBEQ, true
	case 0x1:
		return OpBNE, true
	case 0x4:
		return OpBLT, true
	case 0x5:
		return OpBGE, true
	case 0x6:
		return OpBLTU, true
	case 0x7:
		return OpBGEU, true
	default:
		return OpIllegal, false
	}
}

func loadOp(funct3 uint32) (Op, bool) {
	switch funct3 {
	case 0x0:
		return OpLB, true
	case 0x1:
		return OpLH, true
	case 0x2:
		return OpLW, true
	case 0x3:
		if xlen.Bits != 64 {
			return OpIllegal, false
		}
		return OpLD, true
	case 0x4:
		return OpLBU, true
	case 0x5:
		return OpLHU, true
	case 0x6:
		if xlen.Bits != 64 {
			return OpIllegal, false
		}
		return OpLWU, true
	default:
		return OpIllegal, false
	}
}

func storeOp(funct3 uint32) (Op, bool) {
	switch funct3 {
	case 0x0:
		return OpSB, true
	case 0x1:
		return OpSH, true
	case 0x2:
		return OpSW, true
	case 0x3:
		if xlen.Bits != 64 {
			return OpIllegal, false
		}
		return OpSD, true
	default:
		return OpIllegal, false
	}
}

func decodeOpImm(rd, rs1 int, funct3, funct7 uint32, iImm xlen.Word, inst uint32) Inst {
	switch funct3 {
	case 0x0:
		return Inst{Op: OpADDI, Rd: rd, Rs1: rs1, Imm: iImm}
	case 0x2:
		return Inst{Op: OpSLTI, Rd: rd, Rs1: rs1, Imm: iImm}
	case 0x3:
		return Inst{Op: OpSLTIU, Rd: rd, Rs1: rs1, Imm: iImm}
	case 0x4:
		return Inst{Op: OpXORI, Rd: rd, Rs1: rs1, Imm: iImm}
	case 0x6:
		return Inst{Op: OpORI, Rd: rd, Rs1: rs1, Imm: iImm}
	case 0x7:
		return Inst{Op: OpANDI, Rd: rd, Rs1: rs1, Imm: iImm}
	case 0x1:
		shamt := uint((inst >> 20) & uint32(xlen.ShiftMask))
		return Inst{Op: OpSLLI, Rd: rd, Rs1: rs1, Shamt: shamt}
	case 0x5:
		shamt := uint((inst >> 20) & uint32(xlen.ShiftMask))
		// Bit 30 distinguishes SRAI from SRLI on both RV32 (bit 5 of the
		// 7-bit funct7) and RV64 (bit 4 of the 6-bit funct6 once bit 25
		// joins the shamt field).
		if funct7&0x20 != 0 {
			return Inst{Op: OpSRAI, Rd: rd, Rs1: rs1, Shamt: shamt}
		}
		return Inst{Op: OpSRLI, Rd: rd, Rs1: rs1, Shamt: shamt}
	default:
		return Inst{Op: OpIllegal}
	}
}

func decodeOpImm32(rd, rs1 int, funct3, funct7 uint32, iImm xlen.Word, inst uint32) Inst {
	if xlen.Bits != 64 {
		return Inst{Op: OpIllegal}
	}
	switch funct3 {
	case 0x0:
		return Inst{Op: OpADDIW, Rd: rd, Rs1: rs1, Imm: iImm}
	case 0x1:
		shamt := uint((inst >> 20) & 0x1F)
		return Inst{Op: OpSLLIW, Rd: rd, Rs1: rs1, Shamt: shamt}
	case 0x5:
		shamt := uint((inst >> 20) & 0x1F)
		if funct7&0x20 != 0 {
			return Inst{Op: OpSRAIW, Rd: rd, Rs1: rs1, Shamt: shamt}
		}
		return Inst{Op: OpSRLIW, Rd: rd, Rs1: rs1, Shamt: shamt}
	default:
		return Inst{Op: OpIllegal}
	}
}

func decodeOp(rd, rs1, rs2 int, funct3, funct7 uint32) Inst {
	base := Inst{Rd: rd, Rs1: rs1, Rs2: rs2}
	if funct7 == 0x01 {
		switch funct3 {
		case 0x0:
			base.Op = OpMUL
		case 0x1:
			base.Op = OpMULH
		case 0x2:
			base.Op = OpMULHSU
		case 0x3:
			base.Op = OpMULHU
		case 0x4:
			base.Op = OpDIV
		case 0x5:
			base.Op = OpDIVU
		case 0x6:
			base.Op = OpREM
		case 0x7:
			base.Op = OpREMU
		default:
			base.Op = OpIllegal
		}
		return base
	}

	switch funct3 {
	case 0x0:
		if funct7 == 0x20 {
			base.Op = OpSUB
		} else if funct7 == 0x00 {
			base.Op = OpADD
		} else {
			base.Op = OpIllegal
		}
	case 0x1:
		base.Op = OpSLL
	case 0x2:
		base.Op = OpSLT
	case 0x3:
		base.Op = OpSLTU
	case 0x4:
		base.Op = OpXOR
	case 0x5:
		if funct7 == 0x20 {
			base.Op = OpSRA
		} else {
			base.Op = OpSRL
		}
	case 0x6:
		base.Op = OpOR
	case 0x7:
		base.Op = OpAND
	default:
		base.Op = OpIllegal
	}
	return base
}

func decodeOp32(rd, rs1, rs2 int, funct3, funct7 uint32) Inst {
	if xlen.Bits != 64 {
		return Inst{Op: OpIllegal}
	}
	base := Inst{Rd: rd, Rs1: rs1, Rs2: rs2}
	if funct7 == 0x01 {
		switch funct3 {
		case 0x0:
			base.Op = OpMULW
		case 0x4:
			base.Op = OpDIVW
		case 0x5:
			base.Op = OpDIVUW
		case 0x6:
			base.Op = OpREMW
		case 0x7:
			base.Op = OpREMUW
		default:
			base.Op = OpIllegal
		}
		return base
	}
	switch funct3 {
	case 0x0:
		if funct7 == 0x20 {
			base.Op = OpSUBW
		} else {
			base.Op = OpADDW
		}
	case 0x1:
		base.Op = OpSLLW
	case 0x5:
		if funct7 == 0x20 {
			base.Op = OpSRAW
		} else {
			base.Op = OpSRLW
		}
	default:
		base.Op = OpIllegal
	}
	return base
}

func decodeAMO(rd, rs1, rs2 int, funct3 uint32, inst uint32) Inst {
	funct5 := (inst >> 27) & 0x1F
	aq := (inst>>26)&1 != 0
	rl := (inst>>25)&1 != 0
	base := Inst{Rd: rd, Rs1: rs1, Rs2: rs2, Aq: aq, Rl: rl}

	is64 := funct3 == 0x3
	if is64 && xlen.Bits != 64 {
		base.Op = OpIllegal
		return base
	}
	if funct3 != 0x2 && funct3 != 0x3 {
		base.Op = OpIllegal
		return base
	}

	table32 := map[uint32]Op{
		0x00: OpAMOADDW, 0x01: OpAMOSWAPW, 0x02: OpLRW, 0x03: OpSCW,
		0x04: OpAMOXORW, 0x08: OpAMOORW, 0x0C: OpAMOANDW,
		0x10: OpAMOMINW, 0x14: OpAMOMAXW, 0x18: OpAMOMINUW, 0x1C: OpAMOMAXUW,
	}
	table64 := map[uint32]Op{
		0x00: OpAMOADDD, 0x01: OpAMOSWAPD, 0x02: OpLRD, 0x03: OpSCD,
		0x04: OpAMOXORD, 0x08: OpAMOORD, 0x0C: OpAMOANDD,
		0x10: OpAMOMIND, 0x14: OpAMOMAXD, 0x18: OpAMOMINUD, 0x1C: OpAMOMAXUD,
	}

	var tbl map[uint32]Op
	if is64 {
		tbl = table64
	} else {
		tbl = table32
	}
	op, ok := tbl[funct5]
	if !ok {
		base.Op = OpIllegal
		return base
	}
	base.Op = op
	return base
}

func decodeSystem(rd, rs1 int, funct3 uint32, inst uint32) Inst {
	if funct3 == 0 {
		switch inst >> 20 {
		case 0x0:
			return Inst{Op: OpECALL}
		case 0x1:
			return Inst{Op: OpEBREAK}
		case 0x102:
			return Inst{Op: OpSRET}
		case 0x302:
			return Inst{Op: OpMRET}
		case 0x105:
			return Inst{Op: OpWFI}
		default:
			return Inst{Op: OpIllegal}
		}
	}

	csr := uint16((inst >> 20) & 0xFFF)
	switch funct3 {
	case 0x1:
		return Inst{Op: OpCSRRW, Rd: rd, Rs1: rs1, CSR: csr}
	case 0x2:
		return Inst{Op: OpCSRRS, Rd: rd, Rs1: rs1, CSR: csr}
	case 0x3:
		return Inst{Op: OpCSRRC, Rd: rd, Rs1: rs1, CSR: csr}
	case 0x5:
		return Inst{Op: OpCSRRWI, Rd: rd, Imm: xlen.Word(rs1), CSR: csr}
	case 0x6:
		return Inst{Op: OpCSRRSI, Rd: rd, Imm: xlen.Word(rs1), CSR: csr}
	case 0x7:
		return Inst{Op: OpCSRRCI, Rd: rd, Imm: xlen.Word(rs1), CSR: csr}
	default:
		return Inst{Op: OpIllegal}
	}
}
