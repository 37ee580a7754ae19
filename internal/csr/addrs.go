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

// Standard RISC-V CSR addresses used by the trap engine, MMU, and PMP
// unit. Only the subset this interpreter implements is listed.
const (
	// User trap (nominal; Zicsr always carries the addresses even when
	// no N-extension interrupt logic reaches them).
	Ustatus = 0x000
	Uie     = 0x004
	Utvec   = 0x005
	Uscratch = 0x040
	Uepc    = 0x041
	Ucause  = 0x042
	Utval   = 0x043
	Uip     = 0x044

	// Supervisor trap.
	Sstatus    = 0x100
	Sedeleg    = 0x102
	Sideleg    = 0x103
	Sie        = 0x104
	Stvec      = 0x105
	Scounteren = 0x106
	Sscratch   = 0x140
	Sepc       = 0x141
	Scause     = 0x142
	Stval      = 0x143
	Sip        = 0x144
	Satp       = 0x180

	// Machine trap.
	Mstatus    = 0x300
	Misa       = 0x301
	Medeleg    = 0x302
	Mideleg    = 0x303
	Mie        = 0x304
	Mtvec      = 0x305
	Mcounteren = 0x306
	Mscratch   = 0x340
	Mepc       = 0x341
	Mcause     = 0x342
	Mtval      = 0x343
	Mip        = 0x344

	// PMP.
	Pmpcfg0  = 0x3A0
	Pmpcfg1  = 0x3A1
	Pmpcfg2  = 0x3A2
	Pmpcfg3  = 0x3A3
	Pmpaddr0 = 0x3B0 // Pmpaddr0..Pmpaddr15 are Pmpaddr0+i.

	// Machine information (read-only, all hardwired to zero here).
	Mvendorid = 0xF11
	Marchid   = 0xF12
	Mimpid    = 0xF13
	Mhartid   = 0xF14
)
