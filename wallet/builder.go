// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/chia-network/go-chia-libs/pkg/types"

	"github.com/Kiwihealthcare-Network/kiwiwallet/coinstore"
	"github.com/Kiwihealthcare-Network/kiwiwallet/keychain"
	"github.com/Kiwihealthcare-Network/kiwiwallet/pkg/mojo"
)

var (
	// ErrEmptySelection is returned when a build is attempted with no
	// input coins.
	ErrEmptySelection = errors.New("no coins selected")

	// ErrSelectionShort is returned when the selected coins do not cover
	// the amount plus fee. Selection guarantees coverage, so hitting this
	// means the caller bypassed Select.
	ErrSelectionShort = errors.New("selected coins do not cover spend")

	// ErrChangeTooSmall is returned under DustReject when the change
	// output would fall below the configured dust threshold.
	ErrChangeTooSmall = errors.New("change below dust threshold")

	// ErrUnknownOwner is returned when a coin's puzzle hash maps to no
	// derived key. The coin store should only ever hold coins for derived
	// puzzle hashes, so this indicates a tracking bug upstream.
	ErrUnknownOwner = errors.New("no key pair for puzzle hash")
)

// DustPolicy decides what to do with a change output that falls below the
// dust threshold.
type DustPolicy uint8

const (
	// DustReject fails the build with ErrChangeTooSmall.
	DustReject DustPolicy = iota

	// DustFoldIntoFee drops the change output and lets its value widen
	// the fee instead of creating an uneconomical coin.
	DustFoldIntoFee
)

// String returns the policy name for logging and config round trips.
func (p DustPolicy) String() string {
	switch p {
	case DustReject:
		return "reject"
	case DustFoldIntoFee:
		return "fold"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// KeySource resolves a puzzle hash to the key pair that controls it. It is
// implemented by keychain.KeyRing.
type KeySource interface {
	LookupPuzzleHash(ph types.Bytes32) (keychain.KeyPair, bool)
}

// A compile-time assertion to ensure that KeyRing satisfies the KeySource
// interface.
var _ KeySource = (*keychain.KeyRing)(nil)

// SpendBuilder turns a coin selection into unsigned coin spends. One coin,
// the primary, carries the payment conditions; every other coin contributes
// only its value and an identity assertion. Each spend carries an AGG_SIG_ME
// over the tree hash of its other conditions, so the signature commits to
// exactly the effects the solution declares.
type SpendBuilder struct {
	keys          KeySource
	dustThreshold mojo.Amount
	dustPolicy    DustPolicy
}

// NewSpendBuilder creates a builder resolving keys from the given source.
func NewSpendBuilder(keys KeySource, dustThreshold mojo.Amount,
	policy DustPolicy) *SpendBuilder {

	return &SpendBuilder{
		keys:          keys,
		dustThreshold: dustThreshold,
		dustPolicy:    policy,
	}
}

// Build assembles unsigned coin spends paying amount to the recipient puzzle
// hash, with any excess beyond the fee returned to the change puzzle hash.
// The returned spends are complete except for the aggregated signature.
func (b *SpendBuilder) Build(selected []types.Coin, recipient types.Bytes32,
	amount, fee mojo.Amount,
	change types.Bytes32) ([]types.CoinSpend, error) {

	if len(selected) == 0 {
		return nil, ErrEmptySelection
	}

	amounts := make([]mojo.Amount, len(selected))
	for i, c := range selected {
		amounts[i] = mojo.Amount(c.Amount)
	}
	inputTotal, err := mojo.Sum(amounts...)
	if err != nil {
		return nil, err
	}

	spendTotal, err := mojo.Sum(amount, fee)
	if err != nil {
		return nil, err
	}
	if inputTotal < spendTotal {
		return nil, fmt.Errorf("%w: inputs %v, spend %v",
			ErrSelectionShort, inputTotal, spendTotal)
	}

	changeAmount := inputTotal - spendTotal
	if changeAmount > 0 && changeAmount < b.dustThreshold {
		switch b.dustPolicy {
		case DustFoldIntoFee:
			log.Infof("Folding dust change %v into fee",
				changeAmount)
			fee += changeAmount
			changeAmount = 0

		default:
			return nil, fmt.Errorf("%w: %v < %v",
				ErrChangeTooSmall, changeAmount,
				b.dustThreshold)
		}
	}

	primary := primaryIndex(selected)

	spends := make([]types.CoinSpend, 0, len(selected))
	for i, coin := range selected {
		var conds []Condition
		if i == primary {
			conds = append(conds, CreateCoin{
				PuzzleHash: recipient,
				Amount:     amount,
			})
			if changeAmount > 0 {
				conds = append(conds, CreateCoin{
					PuzzleHash: change,
					Amount:     changeAmount,
				})
			}
			if fee > 0 {
				conds = append(conds, ReserveFee{Amount: fee})
			}
		} else {
			conds = append(conds, AssertMyCoinID{
				CoinID: coinstore.CoinID(coin),
			})
		}

		spend, err := b.buildSpend(coin, conds)
		if err != nil {
			return nil, err
		}
		spends = append(spends, spend)
	}

	log.Debugf("Built %d coin spends: pay %v, change %v, fee %v",
		len(spends), amount, changeAmount, fee)
	return spends, nil
}

// buildSpend finishes one coin's spend: it resolves the owning key, appends
// the AGG_SIG_ME binding over the payment conditions and attaches the puzzle
// reveal.
func (b *SpendBuilder) buildSpend(coin types.Coin,
	conds []Condition) (types.CoinSpend, error) {

	kp, ok := b.keys.LookupPuzzleHash(coin.PuzzleHash)
	if !ok {
		return types.CoinSpend{}, fmt.Errorf("%w: %x", ErrUnknownOwner,
			coin.PuzzleHash[:8])
	}

	// The signed message is the tree hash of the conditions so far. The
	// AGG_SIG_ME entry itself cannot be part of its own message.
	msg := conditionsTreeHash(conds)
	conds = append(conds, AggSigMe{
		PublicKey: kp.PublicKey.Bytes(),
		Message:   msg[:],
	})

	return types.CoinSpend{
		Coin: coin,
		PuzzleReveal: types.SerializedProgram(
			keychain.PuzzleReveal(kp.PublicKey.Bytes()),
		),
		Solution: types.SerializedProgram(MarshalSolution(conds)),
	}, nil
}

// primaryIndex picks the coin that carries the payment conditions: the
// largest amount, ties broken by smaller coin ID. This mirrors the selection
// order so the choice is deterministic.
func primaryIndex(coins []types.Coin) int {
	best := 0
	bestID := coinstore.CoinID(coins[0])
	for i := 1; i < len(coins); i++ {
		id := coinstore.CoinID(coins[i])
		switch {
		case coins[i].Amount > coins[best].Amount:
			best, bestID = i, id
		case coins[i].Amount == coins[best].Amount &&
			bytes.Compare(id[:], bestID[:]) < 0:

			best, bestID = i, id
		}
	}
	return best
}
