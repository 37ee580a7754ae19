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
	"bytes"
	"errors"
	"testing"
)

func TestUart8250TXFlushesOnUpdate(t *testing.T) {
	var out bytes.Buffer
	u := NewUart8250(&out)

	if err := u.Write(reg8250RxTxDll, 'h', 1); err != nil {
		t.Fatalf("write tx: %v", err)
	}
	if err := u.Write(reg8250RxTxDll, 'i', 1); err != nil {
		t.Fatalf("write tx: %v", err)
	}
	u.Update()

	if out.String() != "hi" {
		t.Errorf("console output = %q, want %q", out.String(), "hi")
	}
}

func TestUart8250DMAModeIsFatal(t *testing.T) {
	u := NewUart8250(&bytes.Buffer{})
	if err := u.Write(reg8250Fcr, fcrDMA, 1); !errors.Is(err, ErrDMAUnsupported) {
		t.Errorf("err = %v, want ErrDMAUnsupported", err)
	}
}

func TestUart8250LSRReflectsFIFOState(t *testing.T) {
	u := NewUart8250(&bytes.Buffer{})

	lsr, _ := u.Read(reg8250Lsr, 1)
	if lsr&0x1 != 0 {
		t.Error("data-ready bit should be clear with an empty RX FIFO")
	}
	if lsr&(1<<5) == 0 || lsr&(1<<6) == 0 {
		t.Error("THR-empty and TX-idle bits should be set with an empty TX FIFO")
	}

	u.PushInput('z')
	lsr, _ = u.Read(reg8250Lsr, 1)
	if lsr&0x1 == 0 {
		t.Error("data-ready bit should be set once a byte is pending")
	}
}

func TestUart8250RxAvailInterrupt(t *testing.T) {
	u := NewUart8250(&bytes.Buffer{})
	var fired bool
	u.SetInterruptHook(func(level bool) { fired = fired || level })

	if err := u.Write(reg8250IerDlm, ierRxAvail, 1); err != nil {
		t.Fatalf("enable RX interrupt: %v", err)
	}
	u.PushInput('q')
	u.Update()

	if !fired {
		t.Error("expected the interrupt hook to fire once the RX threshold was reached")
	}
	id, err := u.Read(reg8250Iir, 1)
	if err != nil {
		t.Fatalf("read iir: %v", err)
	}
	if id != iirRxLine && id != iirRxAvail {
		t.Errorf("iir = 0x%x, want an RX-related identity", id)
	}
}

func TestUart8250LCRDlabGatesRxTxAndIER(t *testing.T) {
	u := NewUart8250(&bytes.Buffer{})
	if err := u.Write(reg8250Lcr, lcrDLABBit, 1); err != nil {
		t.Fatalf("write lcr: %v", err)
	}
	if err := u.Write(reg8250IerDlm, 0xFF, 1); err != nil {
		t.Fatalf("write dlm: %v", err)
	}
	if u.ier != 0 {
		t.Error("writing the divisor-latch register must not touch ier while DLAB is set")
	}
}

func TestUart8250ScratchRegisterRoundTrips(t *testing.T) {
	u := NewUart8250(&bytes.Buffer{})
	if err := u.Write(reg8250Scratch, 0x5A, 1); err != nil {
		t.Fatalf("write scratch: %v", err)
	}
	v, err := u.Read(reg8250Scratch, 1)
	if err != nil {
		t.Fatalf("read scratch: %v", err)
	}
	if v != 0x5A {
		t.Errorf("scratch = 0x%x, want 0x5A", v)
	}
}
