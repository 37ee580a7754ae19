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
	"math"
	"math/big"

	"github.com/rvcore/rvemu/internal/xlen"
)

// The M extension's div/rem instructions never trap; division by zero
// and signed overflow (MIN_INT / -1) both produce the architectural
// sentinel results defined by the RISC-V spec rather than a fault.

func divSigned(a, b xlen.SWord) xlen.Word {
	if b == 0 {
		return ^xlen.Word(0)
	}
	minWord := xlen.Word(1) << (xlen.Bits - 1)
	minSigned := xlen.SWord(minWord)
	if a == minSigned && b == -1 {
		return minWord
	}
	return xlen.Word(a / b)
}

func remSigned(a, b xlen.SWord) xlen.Word {
	if b == 0 {
		return xlen.Word(a)
	}
	minWord := xlen.Word(1) << (xlen.Bits - 1)
	minSigned := xlen.SWord(minWord)
	if a == minSigned && b == -1 {
		return 0
	}
	return xlen.Word(a % b)
}

func divUnsigned(a, b xlen.Word) xlen.Word {
	if b == 0 {
		return ^xlen.Word(0)
	}
	return a / b
}

func remUnsigned(a, b xlen.Word) xlen.Word {
	if b == 0 {
		return a
	}
	return a % b
}

func divSigned32(a, b int32) int32 {
	if b == 0 {
		return -1
	}
	if a == math.MinInt32 && b == -1 {
		return math.MinInt32
	}
	return a / b
}

func remSigned32(a, b int32) int32 {
	if b == 0 {
		return a
	}
	if a == math.MinInt32 && b == -1 {
		return 0
	}
	return a % b
}

func divUnsigned32(a, b uint32) uint32 {
	if b == 0 {
		return ^uint32(0)
	}
	return a / b
}

func remUnsigned32(a, b uint32) uint32 {
	if b == 0 {
		return a
	}
	return a % b
}

// widthMask is the (2^Bits - 1) mask used to fold a big.Int product's
// high half back into a single Word.
func widthMask() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(xlen.Bits)), big.NewInt(1))
}

func mulh(a, b xlen.SWord) xlen.Word {
	product := new(big.Int).Mul(big.NewInt(int64(a)), big.NewInt(int64(b)))
	hi := new(big.Int).Rsh(product, uint(xlen.Bits))
	hi.And(hi, widthMask())
	return xlen.Word(hi.Uint64())
}

func mulhu(a, b xlen.Word) xlen.Word {
	product := new(big.Int).Mul(new(big.Int).SetUint64(uint64(a)), new(big.Int).SetUint64(uint64(b)))
	hi := new(big.Int).Rsh(product, uint(xlen.Bits))
	return xlen.Word(hi.Uint64())
}

func mulhsu(a xlen.SWord, b xlen.Word) xlen.Word {
	product := new(big.Int).Mul(big.NewInt(int64(a)), new(big.Int).SetUint64(uint64(b)))
	hi := new(big.Int).Rsh(product, uint(xlen.Bits))
	hi.And(hi, widthMask())
	return xlen.Word(hi.Uint64())
}
