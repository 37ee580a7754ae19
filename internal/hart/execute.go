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
	"github.com/rvcore/rvemu/internal/csr"
	"github.com/rvcore/rvemu/internal/trap"
	"github.com/rvcore/rvemu/internal/xlen"
)

// execute carries out the decoded instruction d, advancing registers and
// PC (via setNextPC for anything that isn't PC+4) directly. If the
// instruction raises a synchronous exception, it returns the trapSignal
// and ok=true; the caller (Step) then performs trap entry.
func (h *Hart) execute(d Inst) (trapSignal, bool) {
	// Every instruction other than LR.* clears the LR/SC reservation
	// (data model invariant, spec.md §3); SC.* additionally reads the
	// pre-clear value to decide success, which this defer does not
	// interfere with since it runs after the switch body below.
	if d.Op != OpLRW && d.Op != OpLRD {
		defer func() { h.resv.valid = false }()
	}

	switch d.Op {
	case OpIllegal:
		return trapSignal{cause: trap.CauseIllegalInst}, true

	case OpLUI:
		h.setReg(d.Rd, d.Imm)
	case OpAUIPC:
		h.setReg(d.Rd, h.PC+d.Imm)

	case OpJAL:
		h.setReg(d.Rd, h.PC+4)
		h.setNextPC(h.PC + d.Imm)
	case OpJALR:
		target := (h.reg(d.Rs1) + d.Imm) &^ 1
		h.setReg(d.Rd, h.PC+4)
		h.setNextPC(target)

	case OpBEQ:
		if h.reg(d.Rs1) == h.reg(d.Rs2) {
			h.setNextPC(h.PC + d.Imm)
		}
	case OpBNE:
		if h.reg(d.Rs1) != h.reg(d.Rs2) {
			h.setNextPC(h.PC + d.Imm)
		}
	case OpBLT:
		if signed(h.reg(d.Rs1)) < signed(h.reg(d.Rs2)) {
			h.setNextPC(h.PC + d.Imm)
		}
	case OpBGE:
		if signed(h.reg(d.Rs1)) >= signed(h.reg(d.Rs2)) {
			h.setNextPC(h.PC + d.Imm)
		}
	case OpBLTU:
		if h.reg(d.Rs1) < h.reg(d.Rs2) {
			h.setNextPC(h.PC + d.Imm)
		}
	case OpBGEU:
		if h.reg(d.Rs1) >= h.reg(d.Rs2) {
			h.setNextPC(h.PC + d.Imm)
		}

	case OpLB, OpLH, OpLW, OpLBU, OpLHU, OpLWU, OpLD:
		return h.execLoad(d)
	case OpSB, OpSH, OpSW, OpSD:
		return h.execStore(d)

	case OpADDI:
		h.setReg(d.Rd, h.reg(d.Rs1)+d.Imm)
	case OpSLTI:
		h.setReg(d.Rd, boolWord(signed(h.reg(d.Rs1)) < signed(d.Imm)))
	case OpSLTIU:
		h.setReg(d.Rd, boolWord(h.reg(d.Rs1) < d.Imm))
	case OpXORI:
		h.setReg(d.Rd, h.reg(d.Rs1)^d.Imm)
	case OpORI:
		h.setReg(d.Rd, h.reg(d.Rs1)|d.Imm)
	case OpANDI:
		h.setReg(d.Rd, h.reg(d.Rs1)&d.Imm)
	case OpSLLI:
		h.setReg(d.Rd, h.reg(d.Rs1)<<d.Shamt)
	case OpSRLI:
		h.setReg(d.Rd, h.reg(d.Rs1)>>d.Shamt)
	case OpSRAI:
		h.setReg(d.Rd, xlen.Word(signed(h.reg(d.Rs1))>>d.Shamt))

	case OpADD:
		h.setReg(d.Rd, h.reg(d.Rs1)+h.reg(d.Rs2))
	case OpSUB:
		h.setReg(d.Rd, h.reg(d.Rs1)-h.reg(d.Rs2))
	case OpSLL:
		h.setReg(d.Rd, h.reg(d.Rs1)<<(h.reg(d.Rs2)&xlen.ShiftMask))
	case OpSLT:
		h.setReg(d.Rd, boolWord(signed(h.reg(d.Rs1)) < signed(h.reg(d.Rs2))))
	case OpSLTU:
		h.setReg(d.Rd, boolWord(h.reg(d.Rs1) < h.reg(d.Rs2)))
	case OpXOR:
		h.setReg(d.Rd, h.reg(d.Rs1)^h.reg(d.Rs2))
	case OpSRL:
		h.setReg(d.Rd, h.reg(d.Rs1)>>(h.reg(d.Rs2)&xlen.ShiftMask))
	case OpSRA:
		h.setReg(d.Rd, xlen.Word(signed(h.reg(d.Rs1))>>(h.reg(d.Rs2)&xlen.ShiftMask)))
	case OpOR:
		h.setReg(d.Rd, h.reg(d.Rs1)|h.reg(d.Rs2))
	case OpAND:
		h.setReg(d.Rd, h.reg(d.Rs1)&h.reg(d.Rs2))

	case OpADDIW:
		h.setReg(d.Rd, signExtend32(int32(h.reg(d.Rs1))+int32(d.Imm)))
	case OpSLLIW:
		h.setReg(d.Rd, signExtend32(int32(h.reg(d.Rs1))<<d.Shamt))
	case OpSRLIW:
		h.setReg(d.Rd, signExtend32(int32(uint32(h.reg(d.Rs1))>>d.Shamt)))
	case OpSRAIW:
		h.setReg(d.Rd, signExtend32(int32(h.reg(d.Rs1))>>d.Shamt))
	case OpADDW:
		h.setReg(d.Rd, signExtend32(int32(h.reg(d.Rs1))+int32(h.reg(d.Rs2))))
	case OpSUBW:
		h.setReg(d.Rd, signExtend32(int32(h.reg(d.Rs1))-int32(h.reg(d.Rs2))))
	case OpSLLW:
		h.setReg(d.Rd, signExtend32(int32(uint32(h.reg(d.Rs1))<<(uint32(h.reg(d.Rs2))&0x1F))))
	case OpSRLW:
		h.setReg(d.Rd, signExtend32(int32(uint32(h.reg(d.Rs1))>>(uint32(h.reg(d.Rs2))&0x1F))))
	case OpSRAW:
		h.setReg(d.Rd, signExtend32(int32(h.reg(d.Rs1))>>(uint32(h.reg(d.Rs2))&0x1F)))

	case OpFENCE, OpFENCEI:
		// single hart, in-order: no-op.

	case OpMUL:
		h.setReg(d.Rd, h.reg(d.Rs1)*h.reg(d.Rs2))
	case OpMULH:
		h.setReg(d.Rd, mulh(signed(h.reg(d.Rs1)), signed(h.reg(d.Rs2))))
	case OpMULHSU:
		h.setReg(d.Rd, mulhsu(signed(h.reg(d.Rs1)), h.reg(d.Rs2)))
	case OpMULHU:
		h.setReg(d.Rd, mulhu(h.reg(d.Rs1), h.reg(d.Rs2)))
	case OpDIV:
		h.setReg(d.Rd, divSigned(signed(h.reg(d.Rs1)), signed(h.reg(d.Rs2))))
	case OpDIVU:
		h.setReg(d.Rd, divUnsigned(h.reg(d.Rs1), h.reg(d.Rs2)))
	case OpREM:
		h.setReg(d.Rd, remSigned(signed(h.reg(d.Rs1)), signed(h.reg(d.Rs2))))
	case OpREMU:
		h.setReg(d.Rd, remUnsigned(h.reg(d.Rs1), h.reg(d.Rs2)))

	case OpMULW:
		h.setReg(d.Rd, signExtend32(int32(h.reg(d.Rs1))*int32(h.reg(d.Rs2))))
	case OpDIVW:
		h.setReg(d.Rd, signExtend32(divSigned32(int32(h.reg(d.Rs1)), int32(h.reg(d.Rs2)))))
	case OpDIVUW:
		h.setReg(d.Rd, signExtend32(int32(divUnsigned32(uint32(h.reg(d.Rs1)), uint32(h.reg(d.Rs2))))))
	case OpREMW:
		h.setReg(d.Rd, signExtend32(remSigned32(int32(h.reg(d.Rs1)), int32(h.reg(d.Rs2)))))
	case OpREMUW:
		h.setReg(d.Rd, signExtend32(int32(remUnsigned32(uint32(h.reg(d.Rs1)), uint32(h.reg(d.Rs2))))))

	case OpLRW, OpLRD, OpSCW, OpSCD,
		OpAMOSWAPW, OpAMOADDW, OpAMOXORW, OpAMOANDW, OpAMOORW, OpAMOMINW, OpAMOMAXW, OpAMOMINUW, OpAMOMAXUW,
		OpAMOSWAPD, OpAMOADDD, OpAMOXORD, OpAMOANDD, OpAMOORD, OpAMOMIND, OpAMOMAXD, OpAMOMINUD, OpAMOMAXUD:
		return h.execAMO(d)

	case OpCSRRW, OpCSRRS, OpCSRRC, OpCSRRWI, OpCSRRSI, OpCSRRCI:
		return h.execCSR(d)

	case OpECALL:
		return trapSignal{cause: trap.CauseEcallU + uint(h.Priv)}, true
	case OpEBREAK:
		// a no-op in this implementation rather than a breakpoint trap.
	case OpMRET:
		if h.Priv != trap.LevelMachine {
			return trapSignal{cause: trap.CauseIllegalInst}, true
		}
		pc, newPriv := h.Trap.Return(trap.LevelMachine)
		h.Priv = newPriv
		h.setNextPC(pc)
	case OpSRET:
		if h.Priv != trap.LevelSupervisor && h.Priv != trap.LevelMachine {
			return trapSignal{cause: trap.CauseIllegalInst}, true
		}
		pc, newPriv := h.Trap.Return(trap.LevelSupervisor)
		h.Priv = newPriv
		h.setNextPC(pc)
	case OpWFI:
		// modeled as a no-op: the step loop always has something to do.

	default:
		return trapSignal{cause: trap.CauseIllegalInst}, true
	}
	return trapSignal{}, false
}

func signed(v xlen.Word) xlen.SWord { return xlen.SWord(v) }

func boolWord(b bool) xlen.Word {
	if b {
		return 1
	}
	return 0
}

func signExtend32(v int32) xlen.Word { return xlen.Word(xlen.SWord(int64(v))) }

func (h *Hart) execLoad(d Inst) (trapSignal, bool) {
	va := h.reg(d.Rs1) + d.Imm
	var size int
	switch d.Op {
	case OpLB, OpLBU:
		size = 1
	case OpLH, OpLHU:
		size = 2
	case OpLW, OpLWU:
		size = 4
	case OpLD:
		size = 8
	}
	v, err := h.access(va, size, accessLoad)
	if err != nil {
		return trapSignal{cause: causeForLoad(err), tval: va}, true
	}
	switch d.Op {
	case OpLB:
		h.setReg(d.Rd, xlen.Word(xlen.SWord(int8(v))))
	case OpLH:
		h.setReg(d.Rd, xlen.Word(xlen.SWord(int16(v))))
	case OpLW:
		h.setReg(d.Rd, xlen.Word(xlen.SWord(int32(v))))
	case OpLBU:
		h.setReg(d.Rd, xlen.Word(uint8(v)))
	case OpLHU:
		h.setReg(d.Rd, xlen.Word(uint16(v)))
	case OpLWU:
		h.setReg(d.Rd, xlen.Word(uint32(v)))
	case OpLD:
		h.setReg(d.Rd, v)
	}
	return trapSignal{}, false
}

func (h *Hart) execStore(d Inst) (trapSignal, bool) {
	va := h.reg(d.Rs1) + d.Imm
	var size int
	switch d.Op {
	case OpSB:
		size = 1
	case OpSH:
		size = 2
	case OpSW:
		size = 4
	case OpSD:
		size = 8
	}
	if err := h.accessWrite(va, h.reg(d.Rs2), size); err != nil {
		return trapSignal{cause: causeForStore(err), tval: va}, true
	}
	return trapSignal{}, false
}

func (h *Hart) execAMO(d Inst) (trapSignal, bool) {
	size := 4
	if d.Op >= OpLRD {
		size = 8
	}
	addr := h.reg(d.Rs1)

	switch d.Op {
	case OpLRW, OpLRD:
		v, err := h.access(addr, size, accessLoad)
		if err != nil {
			return trapSignal{cause: causeForLoad(err), tval: addr}, true
		}
		h.resv = reservation{addr: addr, valid: true}
		h.setReg(d.Rd, signExtendLoad(v, size))
		return trapSignal{}, false

	case OpSCW, OpSCD:
		if h.resv.valid && h.resv.addr == addr {
			if err := h.accessWrite(addr, h.reg(d.Rs2), size); err != nil {
				h.resv.valid = false
				return trapSignal{cause: causeForStore(err), tval: addr}, true
			}
			h.resv.valid = false
			h.setReg(d.Rd, 0)
		} else {
			h.resv.valid = false
			h.setReg(d.Rd, 1)
		}
		return trapSignal{}, false
	}

	old, err := h.access(addr, size, accessLoad)
	if err != nil {
		return trapSignal{cause: causeForLoad(err), tval: addr}, true
	}
	oldExt := signExtendLoad(old, size)
	rhs := h.reg(d.Rs2)

	var result xlen.Word
	switch d.Op {
	case OpAMOSWAPW, OpAMOSWAPD:
		result = rhs
	case OpAMOADDW, OpAMOADDD:
		result = oldExt + rhs
	case OpAMOXORW, OpAMOXORD:
		result = oldExt ^ rhs
	case OpAMOANDW, OpAMOANDD:
		result = oldExt & rhs
	case OpAMOORW, OpAMOORD:
		result = oldExt | rhs
	case OpAMOMINW, OpAMOMIND:
		if signed(oldExt) < signed(rhs) {
			result = oldExt
		} else {
			result = rhs
		}
	case OpAMOMAXW, OpAMOMAXD:
		if signed(oldExt) > signed(rhs) {
			result = oldExt
		} else {
			result = rhs
		}
	case OpAMOMINUW, OpAMOMINUD:
		if oldExt < rhs {
			result = oldExt
		} else {
			result = rhs
		}
	case OpAMOMAXUW, OpAMOMAXUD:
		if oldExt > rhs {
			result = oldExt
		} else {
			result = rhs
		}
	}

	if err := h.accessWrite(addr, result, size); err != nil {
		return trapSignal{cause: causeForStore(err), tval: addr}, true
	}
	h.setReg(d.Rd, oldExt)
	return trapSignal{}, false
}

func signExtendLoad(v xlen.Word, size int) xlen.Word {
	if size == 4 {
		return xlen.Word(xlen.SWord(int32(uint32(v))))
	}
	return v
}

func (h *Hart) execCSR(d Inst) (trapSignal, bool) {
	var rs1Val xlen.Word
	readOnly := false
	switch d.Op {
	case OpCSRRWI, OpCSRRSI, OpCSRRCI:
		rs1Val = d.Imm
		readOnly = d.Imm == 0 && d.Op != OpCSRRWI
	default:
		rs1Val = h.reg(d.Rs1)
		readOnly = d.Rs1 == 0 && d.Op != OpCSRRW
	}

	priv := csr.Level(h.Priv)

	var old xlen.Word
	var err error
	if d.Op == OpCSRRW || d.Op == OpCSRRWI {
		if d.Rd != 0 {
			old, err = h.CSRs.Read(d.CSR, priv)
			if err != nil {
				return trapSignal{cause: trap.CauseIllegalInst}, true
			}
		}
	} else {
		old, err = h.CSRs.Read(d.CSR, priv)
		if err != nil {
			return trapSignal{cause: trap.CauseIllegalInst}, true
		}
	}

	if readOnly {
		h.setReg(d.Rd, old)
		return trapSignal{}, false
	}

	var next xlen.Word
	switch d.Op {
	case OpCSRRW, OpCSRRWI:
		next = rs1Val
	case OpCSRRS, OpCSRRSI:
		next = old | rs1Val
	case OpCSRRC, OpCSRRCI:
		next = old &^ rs1Val
	}

	if err := h.CSRs.Write(d.CSR, priv, next); err != nil {
		return trapSignal{cause: trap.CauseIllegalInst}, true
	}
	h.setReg(d.Rd, old)
	return trapSignal{}, false
}
