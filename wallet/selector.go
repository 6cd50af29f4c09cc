// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/chia-network/go-chia-libs/pkg/types"

	"github.com/Kiwihealthcare-Network/kiwiwallet/coinstore"
	"github.com/Kiwihealthcare-Network/kiwiwallet/pkg/mojo"
)

// ErrInsufficientFunds is returned when the eligible coin set cannot cover
// the requested amount plus fee.
var ErrInsufficientFunds = errors.New("insufficient confirmed funds")

// candidate pairs a coin with its precomputed ID so sorting and exact-match
// scans don't rehash.
type candidate struct {
	coin types.Coin
	id   types.Bytes32
}

// Select picks the coins to fund a spend of target plus fee. The algorithm is
// deterministic: given the same eligible set it always returns the same coins
// in the same order.
//
// An exact single-coin match is preferred because it produces no change and
// therefore no extra coin on chain. Failing that, coins are taken largest
// first until the total is covered, which keeps the input count low. Ties on
// amount break by coin ID, ascending.
func Select(eligible []coinstore.CoinRecord, target,
	fee mojo.Amount) ([]types.Coin, error) {

	total, err := mojo.Sum(target, fee)
	if err != nil {
		return nil, err
	}

	cands := make([]candidate, 0, len(eligible))
	for _, rec := range eligible {
		cands = append(cands, candidate{
			coin: rec.Coin,
			id:   coinstore.CoinID(rec.Coin),
		})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].coin.Amount != cands[j].coin.Amount {
			return cands[i].coin.Amount > cands[j].coin.Amount
		}
		return bytes.Compare(cands[i].id[:], cands[j].id[:]) < 0
	})

	// A coin whose amount equals the total exactly needs no change output.
	// The sort above means the first hit is also the canonical one.
	for _, c := range cands {
		if mojo.Amount(c.coin.Amount) == total {
			log.Debugf("Selected exact-match coin %x for %v",
				c.id[:8], total)
			return []types.Coin{c.coin}, nil
		}
	}

	var (
		selected []types.Coin
		have     mojo.Amount
	)
	for _, c := range cands {
		selected = append(selected, c.coin)

		have, err = mojo.Sum(have, mojo.Amount(c.coin.Amount))
		if err != nil {
			return nil, err
		}
		if have >= total {
			log.Debugf("Selected %d coins totalling %v for %v",
				len(selected), have, total)
			return selected, nil
		}
	}

	return nil, fmt.Errorf("%w: have %v, need %v", ErrInsufficientFunds,
		have, total)
}
