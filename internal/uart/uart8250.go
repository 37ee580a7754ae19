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

package uart

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rvcore/rvemu/internal/xlen"
)

const (
	reg8250RxTxDll = 0
	reg8250IerDlm  = 1
	reg8250Iir     = 2 // read
	reg8250Fcr     = 2 // write
	reg8250Lcr     = 3
	reg8250Mcr     = 4
	reg8250Lsr     = 5
	reg8250Msr     = 6
	reg8250Scratch = 7
)

const (
	ierRxAvail  = 1 << 0
	ierTxEmpty  = 1 << 1
	ierRLSR     = 1 << 2
	ierMSR      = 1 << 3
	lcrDLABBit  = 1 << 7
	fcrDMA      = 1 << 3
	fcrClearRX  = 1 << 1
	fcrClearTX  = 1 << 2
	fcrEnable   = 1 << 0
	noIRQ       = 1
	iirRxLine   = 0xC
	iirRxAvail  = 0x4
	iirTxEmpty  = 0x2
)

// ErrDMAUnsupported is returned when the guest enables DMA mode via FCR;
// the FCR write is refused. On the bus the error reaches the hart as a
// failed store (a store access fault); it does not stop the emulator.
var ErrDMAUnsupported = errors.New("uart8250: DMA mode not supported")

// Uart8250 is the classical 16550-compatible UART.
type Uart8250 struct {
	mu sync.Mutex

	rx, tx *fifo

	dlab        bool
	ier         uint8
	lcr         uint8
	mcr         uint8
	scratch     uint8
	fifoEnabled bool
	rxIRQLevel  uint32

	lsrChanged      bool
	iirID           uint8
	txStopTrigger   bool

	out         io.Writer
	onInterrupt func(level bool)
}

// NewUart8250 returns a 16550 UART writing transmitted bytes to out.
func NewUart8250(out io.Writer) *Uart8250 {
	return &Uart8250{
		rx:         newFifo(16),
		tx:         newFifo(16),
		rxIRQLevel: 1,
		iirID:      noIRQ,
		out:        out,
	}
}

// SetInterruptHook installs the callback invoked when Update finds a new
// interrupt condition.
func (u *Uart8250) SetInterruptHook(f func(level bool)) { u.onInterrupt = f }

// PushInput is called by the background input goroutine (spec.md §5).
func (u *Uart8250) PushInput(b byte) {
	u.mu.Lock()
	u.rx.put(b)
	u.lsrChanged = true
	u.mu.Unlock()
}

// Update is called once per step by the SoC: it writes every byte
// waiting in the TX fifo to out and recomputes the pending interrupt
// identity, mirroring the original's polled uart_update. Output is not
// held back until a newline or a full fifo; each call drains the fifo.
func (u *Uart8250) Update() {
	u.mu.Lock()
	defer u.mu.Unlock()

	for !u.tx.isEmpty() {
		b, _ := u.tx.get()
		u.out.Write([]byte{b})
	}

	trigger := false
	switch {
	case (u.ier&(ierRLSR|ierRxAvail) != 0) && u.lsrChanged:
		trigger = true
		u.iirID = iirRxLine
	case u.ier&ierRxAvail != 0 && u.rx.len() >= u.rxIRQLevel:
		trigger = true
		u.iirID = iirRxAvail
	case u.ier&ierTxEmpty != 0 && u.tx.isEmpty() && !u.txStopTrigger:
		trigger = true
		u.iirID = iirTxEmpty
	}

	if trigger && u.onInterrupt != nil {
		u.onInterrupt(true)
	}
}

// Read implements bus.Device.
func (u *Uart8250) Read(offset xlen.Word, size int) (xlen.Word, error) {
	if size != 1 {
		return 0, fmt.Errorf("uart8250: only byte accesses are supported")
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	switch offset {
	case reg8250RxTxDll:
		if u.dlab {
			return 0, nil
		}
		v, _ := u.rx.get()
		return xlen.Word(v), nil
	case reg8250IerDlm:
		if u.dlab {
			return 0, nil
		}
		return xlen.Word(u.ier), nil
	case reg8250Iir:
		v := u.iirID
		if v == iirTxEmpty {
			u.iirID = noIRQ
			u.txStopTrigger = true
		}
		return xlen.Word(v), nil
	case reg8250Lcr:
		return xlen.Word(u.lcr), nil
	case reg8250Mcr:
		return 0x8, nil
	case reg8250Lsr:
		dataAvail := boolBit(!u.rx.isEmpty(), 0)
		thrEmpty := boolBit(u.tx.isEmpty(), 5)
		thrIdle := boolBit(u.tx.isEmpty(), 6)
		u.lsrChanged = false
		return xlen.Word(dataAvail | thrEmpty | thrIdle), nil
	case reg8250Msr:
		return 0xb0, nil
	case reg8250Scratch:
		return xlen.Word(u.scratch), nil
	default:
		return 0, fmt.Errorf("uart8250: no register at offset 0x%x", offset)
	}
}

// Write implements bus.Device.
func (u *Uart8250) Write(offset xlen.Word, value xlen.Word, size int) error {
	if size != 1 {
		return fmt.Errorf("uart8250: only byte accesses are supported")
	}
	v := uint8(value)

	u.mu.Lock()
	defer u.mu.Unlock()

	switch offset {
	case reg8250RxTxDll:
		if u.dlab {
			return nil
		}
		u.tx.put(v)
		if !u.fifoEnabled || v == '\n' {
			u.txStopTrigger = false
		}
	case reg8250IerDlm:
		if u.dlab {
			return nil
		}
		u.ier = v & 0x3F
	case reg8250Fcr:
		if v&fcrDMA != 0 {
			return ErrDMAUnsupported
		}
		if v&fcrClearRX != 0 {
			u.rx.reset()
		}
		if v&fcrClearTX != 0 {
			u.tx.reset()
		}
		u.fifoEnabled = v&fcrEnable != 0
		u.rxIRQLevel = rxTriggerLevel((v >> 6) & 0x3)
	case reg8250Lcr:
		u.lcr = v
		u.dlab = v&lcrDLABBit != 0
	case reg8250Mcr:
		u.mcr = v
	case reg8250Scratch:
		u.scratch = v
	default:
		return fmt.Errorf("uart8250: no register at offset 0x%x", offset)
	}
	return nil
}

func boolBit(b bool, pos uint) uint8 {
	if b {
		return 1 << pos
	}
	return 0
}

func rxTriggerLevel(bits uint8) uint32 {
	switch bits {
	case 3:
		return 14
	case 2:
		return 8
	case 1:
		return 4
	default:
		return 1
	}
}
