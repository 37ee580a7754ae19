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

// Package uart implements the two console UART variants the SoC exposes:
// a 2-byte "simple" status-register UART, and a classical 16550. Both
// share the same ring-buffer FIFO and the same mutex discipline: the
// step loop and a background input goroutine both touch the RX FIFO, so
// every access to shared state is taken under one mutex.
package uart

import (
	"fmt"
	"io"
	"sync"

	"github.com/rvcore/rvemu/internal/xlen"
)

const (
	simpleRXEmpty = 1 << 0
	simpleRXIen   = 1 << 1
	simpleTXEmpty = 1 << 2
	simpleTXIen   = 1 << 3
)

// Simple is the 2-register UART: offset 0 is the RX/TX FIFO byte,
// offset 1 is the status register.
type Simple struct {
	mu     sync.Mutex
	rx     *fifo
	status uint8
	out    io.Writer

	// onInterrupt, if set, is called with the new level of the UART's
	// external interrupt line whenever it changes. The SoC wires this to
	// the PLIC's pending bit for this UART's source.
	onInterrupt func(level bool)
}

// NewSimple returns a Simple UART writing transmitted bytes to out.
func NewSimple(out io.Writer) *Simple {
	return &Simple{rx: newFifo(16), status: simpleRXEmpty | simpleTXEmpty, out: out}
}

// SetInterruptHook installs the callback invoked when the UART's
// interrupt condition changes.
func (u *Simple) SetInterruptHook(f func(level bool)) { u.onInterrupt = f }

// PushInput is called by the background input goroutine (spec.md §5):
// it takes the UART mutex, appends the byte to the RX FIFO, and raises
// the RX interrupt if enabled and the FIFO is now full.
func (u *Simple) PushInput(b byte) {
	u.mu.Lock()
	full := !u.rx.put(b)
	u.status &^= simpleRXEmpty
	rxFull := u.rx.isFull()
	rxien := u.status&simpleRXIen != 0
	u.mu.Unlock()

	if full {
		return // RX FIFO was already full; byte dropped
	}
	if rxien && rxFull {
		u.fireInterrupt(true)
	}
}

func (u *Simple) fireInterrupt(level bool) {
	if u.onInterrupt != nil {
		u.onInterrupt(level)
	}
}

// Read implements bus.Device.
func (u *Simple) Read(offset xlen.Word, size int) (xlen.Word, error) {
	if size != 1 {
		return 0, fmt.Errorf("uart: simple UART only supports byte accesses")
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	switch offset {
	case 0:
		v, ok := u.rx.get()
		if u.rx.isEmpty() {
			u.status |= simpleRXEmpty
		}
		if !ok {
			return 0, nil
		}
		return xlen.Word(v), nil
	case 1:
		return xlen.Word(u.status), nil
	default:
		return 0, fmt.Errorf("uart: no register at offset 0x%x", offset)
	}
}

// Write implements bus.Device.
func (u *Simple) Write(offset xlen.Word, value xlen.Word, size int) error {
	if size != 1 {
		return fmt.Errorf("uart: simple UART only supports byte accesses")
	}

	switch offset {
	case 0:
		u.mu.Lock()
		b := byte(value)
		u.out.Write([]byte{b})
		txien := u.status&simpleTXIen != 0
		u.mu.Unlock()
		if txien {
			u.fireInterrupt(true)
		}
		return nil
	case 1:
		u.mu.Lock()
		// RXEMPTY/TXEMPTY bits are status, not settable by software;
		// only the enable bits are writable.
		u.status = (u.status &^ (simpleRXIen | simpleTXIen)) | (byte(value) & (simpleRXIen | simpleTXIen))
		u.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("uart: no register at offset 0x%x", offset)
	}
}
