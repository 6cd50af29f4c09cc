// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package clvm

import (
	"errors"
	"fmt"
)

var (
	// ErrNegativeInt is returned when decoding an atom whose sign bit is
	// set into an unsigned amount.
	ErrNegativeInt = errors.New("negative clvm integer")

	// ErrIntOverflow is returned when a decoded integer does not fit in a
	// uint64.
	ErrIntOverflow = errors.New("clvm integer overflows uint64")
)

// IntToBytes encodes v as a minimal-length two's-complement big-endian atom,
// the encoding CLVM uses for integers. Zero encodes as the empty atom, and a
// leading zero byte is kept when the top bit would otherwise flip the sign.
func IntToBytes(v uint64) []byte {
	if v == 0 {
		return []byte{}
	}

	buf := make([]byte, 9)
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte(v)
		v >>= 8
	}
	if buf[i]&0x80 != 0 {
		i--
		buf[i] = 0x00
	}
	return buf[i:]
}

// IntAtom returns an atom holding the CLVM integer encoding of v.
func IntAtom(v uint64) *Value {
	return &Value{atom: IntToBytes(v)}
}

// IntFromBytes decodes a minimal two's-complement big-endian atom into a
// uint64, rejecting negative values and overflow.
func IntFromBytes(b []byte) (uint64, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if b[0]&0x80 != 0 {
		return 0, ErrNegativeInt
	}

	// Skip a single sign byte; any longer run of leading zeros is not
	// minimal but still decodes unambiguously.
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	if len(b)-i > 8 {
		return 0, fmt.Errorf("%w: %d significant bytes",
			ErrIntOverflow, len(b)-i)
	}

	var v uint64
	for ; i < len(b); i++ {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}
