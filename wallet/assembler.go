// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"errors"
	"fmt"

	"github.com/chia-network/go-chia-libs/pkg/types"

	"github.com/Kiwihealthcare-Network/kiwiwallet/coinstore"
	"github.com/Kiwihealthcare-Network/kiwiwallet/pkg/mojo"
)

var (
	// ErrEmptyBundle is returned when assembly is attempted with no coin
	// spends.
	ErrEmptyBundle = errors.New("spend bundle has no coin spends")

	// ErrDuplicateCoin is returned when the same coin appears in more
	// than one coin spend of a bundle.
	ErrDuplicateCoin = errors.New("duplicate coin in spend bundle")

	// ErrUnbalancedBundle is returned when a bundle's inputs do not equal
	// its declared outputs plus fee. An unbalanced bundle would burn or
	// mint value and must never leave the wallet.
	ErrUnbalancedBundle = errors.New("spend bundle does not balance")
)

// Assemble combines signed coin spends and their aggregated signature into a
// final spend bundle, enforcing the value-conservation invariant before the
// bundle can leave the wallet: the sum of input amounts must equal the sum
// of CREATE_COIN outputs plus the reserved fee.
func Assemble(spends []types.CoinSpend,
	aggSig types.G2Element) (types.SpendBundle, error) {

	if len(spends) == 0 {
		return types.SpendBundle{}, ErrEmptyBundle
	}

	seen := make(map[types.Bytes32]struct{}, len(spends))
	var inputs, outputs, fee mojo.Amount

	for _, sp := range spends {
		coinID := coinstore.CoinID(sp.Coin)
		if _, dup := seen[coinID]; dup {
			return types.SpendBundle{}, fmt.Errorf("%w: %x",
				ErrDuplicateCoin, coinID[:8])
		}
		seen[coinID] = struct{}{}

		var err error
		inputs, err = mojo.Sum(inputs, mojo.Amount(sp.Coin.Amount))
		if err != nil {
			return types.SpendBundle{}, err
		}

		conds, err := ParseSolution(sp.Solution)
		if err != nil {
			return types.SpendBundle{}, fmt.Errorf("coin %x: %w",
				coinID[:8], err)
		}

		for _, c := range conds {
			switch c := c.(type) {
			case CreateCoin:
				outputs, err = mojo.Sum(outputs, c.Amount)
			case ReserveFee:
				fee, err = mojo.Sum(fee, c.Amount)
			}
			if err != nil {
				return types.SpendBundle{}, err
			}
		}
	}

	spent, err := mojo.Sum(outputs, fee)
	if err != nil {
		return types.SpendBundle{}, err
	}
	if inputs != spent {
		log.Criticalf("Refusing unbalanced bundle: inputs %v, "+
			"outputs %v, fee %v", inputs, outputs, fee)
		return types.SpendBundle{}, fmt.Errorf("%w: inputs %v, "+
			"outputs %v, fee %v", ErrUnbalancedBundle, inputs,
			outputs, fee)
	}

	return types.SpendBundle{
		CoinSpends:          spends,
		AggregatedSignature: aggSig,
	}, nil
}
