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

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/rvcore/rvemu/internal/soc"
	"github.com/rvcore/rvemu/internal/trace"
	"github.com/rvcore/rvemu/internal/xlen"
)

var (
	firmwarePath = flag.String("f", "", "Firmware binary loaded at the DRAM base (required)")
	dtbPath      = flag.String("d", "", "Device tree blob loaded near the top of DRAM")
	successPC    = flag.String("s", "", "Hex PC that terminates the run when reached")
	maxCycles    = flag.Uint64("n", 0, "Stop after N cycles (0 = unlimited)")
	use8250      = flag.Bool("uart8250", false, "Use the 16550-compatible UART instead of the simple one")
	traceExec    = flag.Bool("trace", false, "Print a per-instruction execution trace to stderr")
)

var savedTermState *term.State

func setupTerminal() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	state, err := term.GetState(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to get terminal state: %v", err)
	}
	savedTermState = state

	if _, err := term.MakeRaw(int(os.Stdin.Fd())); err != nil {
		return fmt.Errorf("failed to set raw mode: %v", err)
	}
	return nil
}

func restoreTerminal() {
	if savedTermState != nil && term.IsTerminal(int(os.Stdin.Fd())) {
		term.Restore(int(os.Stdin.Fd()), savedTermState)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -f <firmware-path> [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "RISC-V interpreter: runs a flat firmware binary against an emulated SoC.\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nConsole I/O is connected to stdin/stdout; stdin is put in raw mode when it is a terminal.\n")
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *firmwarePath == "" {
		usage()
		os.Exit(1)
	}

	var success xlen.Word
	if *successPC != "" {
		v, err := parseHex(*successPC)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing -s: %v\n", err)
			os.Exit(1)
		}
		success = v
	}

	s := soc.New(*use8250, os.Stdout)

	if err := s.LoadFirmware(*firmwarePath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *dtbPath != "" {
		if err := s.LoadDTB(*dtbPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	s.Boot()

	if *traceExec {
		s.Hart.Tracer = trace.New(os.Stderr)
	}

	if err := setupTerminal(); err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up terminal: %v\n", err)
		os.Exit(1)
	}
	defer restoreTerminal()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		restoreTerminal()
		os.Exit(130)
	}()

	go feedConsoleInput(s)

	startTime := time.Now()
	s.Run(success, *maxCycles)
	elapsed := time.Since(startTime)

	restoreTerminal()

	cycles := s.Hart.Cycle()
	fmt.Fprintf(os.Stderr, "\n========================================\n")
	fmt.Fprintf(os.Stderr, "Execution completed\n")
	fmt.Fprintf(os.Stderr, "Cycles: %d\n", cycles)
	fmt.Fprintf(os.Stderr, "Time: %v\n", elapsed.Round(time.Millisecond))
	if elapsed.Seconds() > 0 {
		mhz := (float64(cycles) / 1_000_000.0) / elapsed.Seconds()
		fmt.Fprintf(os.Stderr, "Speed: %.3f MHz\n", mhz)
	}
}

// feedConsoleInput is the background goroutine that carries stdin bytes
// to the console UART's RX FIFO; it is the only writer of received
// characters, and the UART's own mutex serializes it against the step
// loop reading the FIFO from the guest side.
func feedConsoleInput(s *soc.SoC) {
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return
		}
		if n > 0 {
			s.PushInput(buf[0])
		}
	}
}

func parseHex(s string) (xlen.Word, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "0x%x", &v)
	if err != nil {
		_, err = fmt.Sscanf(s, "%x", &v)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid hex value %q", s)
	}
	return xlen.Word(v), nil
}
