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

// Package bus implements the physical address-decode fabric: an ordered
// table of windows, each routed to a device's Read/Write handlers with
// addresses already translated to be relative to the window's start.
package bus

import (
	"errors"
	"fmt"

	"github.com/rvcore/rvemu/internal/xlen"
)

// ErrUnmapped is returned when no window contains the requested address.
var ErrUnmapped = errors.New("bus: unmapped address")

// ErrSpansWindow is returned when a multi-byte access would cross a
// window boundary.
var ErrSpansWindow = errors.New("bus: access spans window boundary")

// Device is anything that can be mapped onto the bus. Addresses passed to
// Read/Write are relative to the device's window start.
type Device interface {
	Read(offset xlen.Word, size int) (xlen.Word, error)
	Write(offset xlen.Word, value xlen.Word, size int) error
}

type window struct {
	start, size xlen.Word
	dev         Device
	name        string
}

// Bus is the physical address space of one SoC.
type Bus struct {
	windows []window
}

// New returns an empty bus.
func New() *Bus { return &Bus{} }

// Map installs dev at [start, start+size). Later calls to Map do not
// remove earlier mappings; the first window whose range contains an
// address wins, so map more specific windows first if they overlap.
func (b *Bus) Map(name string, start, size xlen.Word, dev Device) {
	b.windows = append(b.windows, window{start: start, size: size, dev: dev, name: name})
}

func (b *Bus) find(addr xlen.Word) *window {
	for i := range b.windows {
		w := &b.windows[i]
		if addr >= w.start && addr < w.start+w.size {
			return w
		}
	}
	return nil
}

// Read performs a size-byte read at the physical address addr.
func (b *Bus) Read(addr xlen.Word, size int) (xlen.Word, error) {
	w := b.find(addr)
	if w == nil {
		return 0, fmt.Errorf("%w: 0x%x", ErrUnmapped, addr)
	}
	if addr+xlen.Word(size) > w.start+w.size {
		return 0, fmt.Errorf("%w: 0x%x/%d in %q", ErrSpansWindow, addr, size, w.name)
	}
	return w.dev.Read(addr-w.start, size)
}

// Write performs a size-byte write of value at the physical address addr.
func (b *Bus) Write(addr xlen.Word, value xlen.Word, size int) error {
	w := b.find(addr)
	if w == nil {
		return fmt.Errorf("%w: 0x%x", ErrUnmapped, addr)
	}
	if addr+xlen.Word(size) > w.start+w.size {
		return fmt.Errorf("%w: 0x%x/%d in %q", ErrSpansWindow, addr, size, w.name)
	}
	return w.dev.Write(addr-w.start, value, size)
}
