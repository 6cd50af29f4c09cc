// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"testing"

	"github.com/chia-network/go-chia-libs/pkg/types"
	"github.com/stretchr/testify/require"
)

// TestAssembleBalancedBundle verifies that a builder-produced spend set
// passes the conservation check and assembles cleanly.
func TestAssembleBalancedBundle(t *testing.T) {
	t.Parallel()

	spends, signer := buildTestSpends(t)
	aggSig, err := signer.Sign(spends)
	require.NoError(t, err)

	bundle, err := Assemble(spends, aggSig)
	require.NoError(t, err)
	require.Len(t, bundle.CoinSpends, 2)
	require.Equal(t, aggSig, bundle.AggregatedSignature)
}

// TestAssembleRejectsEmpty verifies an empty spend set is refused.
func TestAssembleRejectsEmpty(t *testing.T) {
	t.Parallel()

	_, err := Assemble(nil, types.G2Element{})
	require.ErrorIs(t, err, ErrEmptyBundle)
}

// TestAssembleRejectsDuplicateCoin verifies the same coin cannot be spent
// twice within one bundle.
func TestAssembleRejectsDuplicateCoin(t *testing.T) {
	t.Parallel()

	spends, signer := buildTestSpends(t)
	aggSig, err := signer.Sign(spends)
	require.NoError(t, err)

	doubled := append(spends, spends[0])
	_, err = Assemble(doubled, aggSig)
	require.ErrorIs(t, err, ErrDuplicateCoin)
}

// TestAssembleRejectsUnbalanced verifies a bundle claiming more outputs
// than its inputs is refused.
func TestAssembleRejectsUnbalanced(t *testing.T) {
	t.Parallel()

	ring := newTestRing(t)
	coin := ringCoin(ring, 1, 1, 100)

	// The solution declares an output larger than the coin's value.
	conds := []Condition{CreateCoin{
		PuzzleHash: testRecipient(),
		Amount:     150,
	}}

	_, err := Assemble([]types.CoinSpend{{
		Coin:     coin,
		Solution: types.SerializedProgram(MarshalSolution(conds)),
	}}, types.G2Element{})
	require.ErrorIs(t, err, ErrUnbalancedBundle)
}
