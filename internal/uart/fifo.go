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

// fifo is a power-of-two-sized byte ring buffer, shared by the simple
// and 16550 UART variants for both their RX and TX paths.
type fifo struct {
	data []byte
	mask uint32
	in   uint32
	out  uint32
}

// newFifo returns an empty fifo of the given capacity, which must be a
// power of two.
func newFifo(capacity uint32) *fifo {
	return &fifo{data: make([]byte, capacity), mask: capacity - 1}
}

func (f *fifo) len() uint32   { return f.in - f.out }
func (f *fifo) isEmpty() bool { return f.in == f.out }
func (f *fifo) isFull() bool  { return f.len() > f.mask }
func (f *fifo) reset()        { f.in, f.out = 0, 0 }

// put appends val, returning false if the fifo was already full.
func (f *fifo) put(val byte) bool {
	if f.isFull() {
		return false
	}
	f.data[f.in&f.mask] = val
	f.in++
	return true
}

// get removes and returns the oldest byte, returning false if empty.
func (f *fifo) get() (byte, bool) {
	if f.isEmpty() {
		return 0, false
	}
	v := f.data[f.out&f.mask]
	f.out++
	return v, true
}
