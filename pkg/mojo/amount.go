// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mojo provides the amount type used throughout the wallet. A mojo is
// the smallest indivisible unit of XCH; one XCH is one trillion mojos.
package mojo

import (
	"errors"
	"fmt"
	"strings"
)

// MojosPerXCH is the number of mojos in one XCH.
const MojosPerXCH = 1_000_000_000_000

// xchDecimals is the number of decimal places in an XCH-denominated string.
const xchDecimals = 12

var (
	// ErrAmountOverflow is returned when a sum of amounts exceeds the
	// representable range.
	ErrAmountOverflow = errors.New("mojo amount overflow")
)

// Amount is a quantity of mojos. Amounts are never negative; debits and
// credits are expressed structurally rather than by sign.
type Amount uint64

// String renders the amount as an XCH-denominated decimal string, trimming
// trailing zeros from the fractional part.
func (a Amount) String() string {
	whole := uint64(a) / MojosPerXCH
	frac := uint64(a) % MojosPerXCH

	if frac == 0 {
		return fmt.Sprintf("%d XCH", whole)
	}

	fracStr := strings.TrimRight(
		fmt.Sprintf("%0*d", xchDecimals, frac), "0",
	)
	return fmt.Sprintf("%d.%s XCH", whole, fracStr)
}

// Mojos returns the raw mojo count.
func (a Amount) Mojos() uint64 {
	return uint64(a)
}

// Sum adds the given amounts, failing on overflow. Coin amounts come from
// untrusted node snapshots, so saturating or wrapping silently is not an
// option.
func Sum(amounts ...Amount) (Amount, error) {
	var total Amount
	for _, a := range amounts {
		next := total + a
		if next < total {
			return 0, ErrAmountOverflow
		}
		total = next
	}
	return total, nil
}
