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

import "github.com/rvcore/rvemu/internal/xlen"

// Synchronous exception causes (Table in the RISC-V privileged spec).
const (
	CauseInstAddrMisaligned = 0
	CauseInstAccessFault    = 1
	CauseIllegalInst        = 2
	CauseBreakpoint         = 3
	CauseLoadAddrMisaligned = 4
	CauseLoadAccessFault    = 5
	CauseStoreAddrMisaligned = 6
	CauseStoreAccessFault   = 7
	CauseEcallU             = 8
	CauseEcallS             = 9
	CauseEcallM             = 11
	CauseInstPageFault      = 12
	CauseLoadPageFault      = 13
	CauseStorePageFault     = 15
)

// Interrupt cause bit positions, shared across mip/mie/mideleg (and
// their S/U masked views): this is the same underlying word for every
// level, differing only by which bits each level's mask exposes.
const (
	bitUSI = 0
	bitSSI = 1
	bitMSI = 3
	bitUTI = 4
	bitSTI = 5
	bitMTI = 7
	bitUEI = 8
	bitSEI = 9
	bitMEI = 11
)

// mstatus bit positions (the subset this interpreter implements).
const (
	statusUIE  = 0
	statusSIE  = 1
	statusMIE  = 3
	statusUPIE = 4
	statusSPIE = 5
	statusMPIE = 7
	statusSPP  = 8
	statusMPPlo = 11 // MPP is 2 bits: [12:11]
	statusSUM  = 18
	statusMXR  = 19
	statusMPRV = 17
)

func bit(n uint) xlen.Word { return xlen.Word(1) << n }

// ipIeMask is the set of interrupt bits this interpreter models: the
// three standard wire-driven M interrupts plus their S/U delegated
// views. (H-mode bits are absent; no hypervisor extension.)
const ipIeMask = xlen.Word((1 << bitUSI) | (1 << bitSSI) | (1 << bitMSI) |
	(1 << bitUTI) | (1 << bitSTI) | (1 << bitMTI) |
	(1 << bitUEI) | (1 << bitSEI) | (1 << bitMEI))

// Software/hardware-writable subset of ip: SSIP, STIP, USIP, UTIP are
// writable by a CSR write (used by software interrupt injection and by
// delegation tests); MEIP/MSIP/MTIP/SEIP/UEIP are wire-driven only and
// a CSR write to those bits is ignored by masking them out of mip's
// write mask.
const ipWritableMask = xlen.Word((1 << bitUSI) | (1 << bitSSI) | (1 << bitUTI) | (1 << bitSTI))

const mstatusMask = xlen.Word((1 << statusUIE) | (1 << statusSIE) | (1 << statusMIE) |
	(1 << statusUPIE) | (1 << statusSPIE) | (1 << statusMPIE) |
	(1 << statusSPP) | (0x3 << statusMPPlo) |
	(1 << statusSUM) | (1 << statusMXR) | (1 << statusMPRV))

const sstatusMask = xlen.Word((1 << statusUIE) | (1 << statusSIE) |
	(1 << statusUPIE) | (1 << statusSPIE) |
	(1 << statusSPP) | (1 << statusSUM) | (1 << statusMXR))

const ustatusMask = xlen.Word((1 << statusUIE) | (1 << statusUPIE))

// mie/mip masks per level mirror mstatus's IE/IP delegation shape.
const mieMask = ipIeMask
const sieMask = xlen.Word((1 << bitUSI) | (1 << bitSSI) | (1 << bitUTI) | (1 << bitSTI) | (1 << bitUEI) | (1 << bitSEI))
const uieMask = xlen.Word((1 << bitUSI) | (1 << bitUTI) | (1 << bitUEI))

const medelegMask = xlen.Word(0xFFFF) // bits 0-15 correspond to the causes this core raises
const sedelegMask = xlen.Word(0xFFFF)

const midelegMask = sieMask // M can only delegate interrupts that exist at S/U
const sidelegMask = uieMask // S can only further delegate U-owned interrupt bits
