// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package clvm implements the small subset of the CLVM value model the wallet
// needs: building atoms and pairs, the canonical serialization format, tree
// hashing, and the curried tree hash used to derive puzzle hashes. It does not
// evaluate programs.
package clvm

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when a serialized value ends before the
	// structure it announces is complete.
	ErrTruncated = errors.New("serialized clvm value is truncated")

	// ErrTrailingBytes is returned when a serialized value is followed by
	// extra bytes.
	ErrTrailingBytes = errors.New("trailing bytes after clvm value")

	// ErrAtomTooLarge is returned when an atom exceeds the maximum size
	// this package is willing to handle.
	ErrAtomTooLarge = errors.New("clvm atom too large")
)

// maxAtomSize bounds atom sizes on the parse path. Wallet values (hashes,
// public keys, amounts, serialized programs) are all far below this.
const maxAtomSize = 1 << 20

const (
	// consPrefix introduces a serialized pair.
	consPrefix = 0xff

	// nilAtom is the serialization of the empty atom.
	nilAtom = 0x80
)

// hash prefixes for tree hashing, per the chialisp sha256tree convention.
const (
	atomHashPrefix = 0x01
	pairHashPrefix = 0x02
)

// Value is an immutable CLVM value: either an atom (a byte string) or a pair
// of two values. The zero value is not valid; use Atom, Nil or Pair.
type Value struct {
	atom  []byte
	first *Value
	rest  *Value
}

// Atom returns an atom value holding a copy of b.
func Atom(b []byte) *Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &Value{atom: cp}
}

// Nil returns the empty atom, which also terminates proper lists.
func Nil() *Value {
	return &Value{atom: []byte{}}
}

// Pair returns the pair (first . rest).
func Pair(first, rest *Value) *Value {
	return &Value{first: first, rest: rest}
}

// List returns a proper list of the given items, terminated by nil.
func List(items ...*Value) *Value {
	v := Nil()
	for i := len(items) - 1; i >= 0; i-- {
		v = Pair(items[i], v)
	}
	return v
}

// IsAtom reports whether v is an atom.
func (v *Value) IsAtom() bool {
	return v.first == nil
}

// Bytes returns the atom contents. It must only be called on atoms.
func (v *Value) Bytes() []byte {
	return v.atom
}

// First returns the first element of a pair, or nil for atoms.
func (v *Value) First() *Value {
	return v.first
}

// Rest returns the rest element of a pair, or nil for atoms.
func (v *Value) Rest() *Value {
	return v.rest
}

// ListItems flattens a proper list into its items. It returns an error when v
// is not nil-terminated.
func (v *Value) ListItems() ([]*Value, error) {
	var items []*Value
	for !v.IsAtom() {
		items = append(items, v.first)
		v = v.rest
	}
	if len(v.atom) != 0 {
		return nil, fmt.Errorf("improper list terminator "+
			"(%d byte atom)", len(v.atom))
	}
	return items, nil
}

// Serialize returns the canonical CLVM serialization of v.
func (v *Value) Serialize() []byte {
	return v.appendTo(nil)
}

// appendTo appends the serialization of v to buf.
func (v *Value) appendTo(buf []byte) []byte {
	if !v.IsAtom() {
		buf = append(buf, consPrefix)
		buf = v.first.appendTo(buf)
		return v.rest.appendTo(buf)
	}

	a := v.atom
	switch n := uint64(len(a)); {
	case n == 0:
		return append(buf, nilAtom)

	case n == 1 && a[0] < 0x80:
		return append(buf, a[0])

	case n <= 0x3f:
		buf = append(buf, byte(0x80|n))

	case n <= 0x1fff:
		buf = append(buf, byte(0xc0|n>>8), byte(n))

	case n <= 0xfffff:
		buf = append(buf, byte(0xe0|n>>16), byte(n>>8), byte(n))

	case n <= 0x7ffffff:
		buf = append(buf,
			byte(0xf0|n>>24), byte(n>>16), byte(n>>8), byte(n))

	default:
		buf = append(buf, byte(0xf8|n>>32),
			byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}

	return append(buf, a...)
}

// TreeHash returns the sha256 tree hash of v: atoms hash as
// sha256(0x01 || atom) and pairs as sha256(0x02 || hash(first) || hash(rest)).
func (v *Value) TreeHash() [32]byte {
	if v.IsAtom() {
		return hashAtom(v.atom)
	}

	l := v.first.TreeHash()
	r := v.rest.TreeHash()
	return hashPair(l, r)
}

func hashAtom(b []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte{atomHashPrefix})
	h.Write(b)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func hashPair(l, r [32]byte) [32]byte {
	h := sha256.New()
	h.Write([]byte{pairHashPrefix})
	h.Write(l[:])
	h.Write(r[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Parse decodes a canonically serialized CLVM value, requiring that the input
// contains exactly one value with no trailing bytes.
func Parse(b []byte) (*Value, error) {
	v, rest, err := parseValue(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingBytes,
			len(rest))
	}
	return v, nil
}

// parseValue decodes one value from b and returns the remaining bytes.
func parseValue(b []byte) (*Value, []byte, error) {
	if len(b) == 0 {
		return nil, nil, ErrTruncated
	}

	prefix := b[0]
	b = b[1:]

	if prefix == consPrefix {
		first, b, err := parseValue(b)
		if err != nil {
			return nil, nil, err
		}
		rest, b, err := parseValue(b)
		if err != nil {
			return nil, nil, err
		}
		return Pair(first, rest), b, nil
	}

	// Single-byte atom with the high bit clear.
	if prefix < 0x80 {
		return Atom([]byte{prefix}), b, nil
	}

	// Decode the atom size from the prefix byte and any size bytes that
	// follow it.
	var sizeBytes int
	var size uint64
	switch {
	case prefix&0xc0 == 0x80:
		size = uint64(prefix & 0x3f)

	case prefix&0xe0 == 0xc0:
		sizeBytes, size = 1, uint64(prefix&0x1f)

	case prefix&0xf0 == 0xe0:
		sizeBytes, size = 2, uint64(prefix&0x0f)

	case prefix&0xf8 == 0xf0:
		sizeBytes, size = 3, uint64(prefix&0x07)

	case prefix&0xfc == 0xf8:
		sizeBytes, size = 4, uint64(prefix&0x03)

	default:
		return nil, nil, fmt.Errorf("invalid atom prefix 0x%02x",
			prefix)
	}

	if len(b) < sizeBytes {
		return nil, nil, ErrTruncated
	}
	for i := 0; i < sizeBytes; i++ {
		size = size<<8 | uint64(b[i])
	}
	b = b[sizeBytes:]

	if size > maxAtomSize {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrAtomTooLarge,
			size)
	}
	if uint64(len(b)) < size {
		return nil, nil, ErrTruncated
	}

	return Atom(b[:size]), b[size:], nil
}
