// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"testing"

	"github.com/chia-network/go-chia-libs/pkg/types"
	"github.com/stretchr/testify/require"

	"github.com/Kiwihealthcare-Network/kiwiwallet/clvm"
	"github.com/Kiwihealthcare-Network/kiwiwallet/coinstore"
	"github.com/Kiwihealthcare-Network/kiwiwallet/keychain"
	"github.com/Kiwihealthcare-Network/kiwiwallet/pkg/mojo"
)

// newTestRing derives a key ring from a fixed seed with the first few
// indexes registered.
func newTestRing(t *testing.T) *keychain.KeyRing {
	t.Helper()

	ring, err := keychain.NewKeyRing(bytes.Repeat([]byte{0x5a}, 32))
	require.NoError(t, err)
	ring.EnsureIndexes(4)
	return ring
}

// ringCoin builds a coin owned by the ring's given derivation index.
func ringCoin(ring *keychain.KeyRing, index uint32, tag byte,
	amount uint64) types.Coin {

	var c types.Coin
	c.ParentCoinInfo[0] = tag
	c.PuzzleHash = ring.Derive(index).PuzzleHash
	c.Amount = amount
	return c
}

// testRecipient is an external puzzle hash payments go to in tests.
func testRecipient() types.Bytes32 {
	var ph types.Bytes32
	ph[0] = 0x77
	return ph
}

// parseSpend decodes a spend's solution, failing the test on error.
func parseSpend(t *testing.T, sp types.CoinSpend) []Condition {
	t.Helper()

	conds, err := ParseSolution(sp.Solution)
	require.NoError(t, err)
	return conds
}

// TestBuildSingleCoinWithChange verifies the primary spend carries the
// payment, change and fee conditions plus a correctly bound AGG_SIG_ME.
func TestBuildSingleCoinWithChange(t *testing.T) {
	t.Parallel()

	ring := newTestRing(t)
	builder := NewSpendBuilder(ring, 10, DustReject)

	coin := ringCoin(ring, 1, 1, 100)
	change := ring.Derive(0).PuzzleHash

	spends, err := builder.Build(
		[]types.Coin{coin}, testRecipient(), 80, 5, change,
	)
	require.NoError(t, err)
	require.Len(t, spends, 1)

	conds := parseSpend(t, spends[0])
	require.Len(t, conds, 4)
	require.Equal(t, CreateCoin{
		PuzzleHash: testRecipient(),
		Amount:     80,
	}, conds[0])
	require.Equal(t, CreateCoin{
		PuzzleHash: change,
		Amount:     15,
	}, conds[1])
	require.Equal(t, ReserveFee{Amount: 5}, conds[2])

	// The AGG_SIG_ME message must be the tree hash of the preceding
	// conditions, signed by the coin owner's key.
	aggSig, ok := conds[3].(AggSigMe)
	require.True(t, ok)

	wantMsg := conditionsTreeHash(conds[:3])
	require.Equal(t, wantMsg[:], aggSig.Message)
	require.Equal(t,
		ring.Derive(1).PublicKey.Bytes(), aggSig.PublicKey,
	)

	// The puzzle reveal must hash back to the coin's puzzle hash.
	reveal, err := clvm.Parse(spends[0].PuzzleReveal)
	require.NoError(t, err)
	require.Equal(t, [32]byte(coin.PuzzleHash), reveal.TreeHash())
}

// TestBuildMultiCoin verifies that only the primary coin carries payment
// conditions while secondaries assert their identity.
func TestBuildMultiCoin(t *testing.T) {
	t.Parallel()

	ring := newTestRing(t)
	builder := NewSpendBuilder(ring, 10, DustReject)

	big := ringCoin(ring, 1, 1, 100)
	small := ringCoin(ring, 2, 2, 50)

	spends, err := builder.Build(
		[]types.Coin{small, big}, testRecipient(), 120, 5,
		ring.Derive(0).PuzzleHash,
	)
	require.NoError(t, err)
	require.Len(t, spends, 2)

	for _, sp := range spends {
		conds := parseSpend(t, sp)

		if sp.Coin == big {
			// Primary: pay 120, change 25, fee 5, signature.
			require.Len(t, conds, 4)
			require.Equal(t, CreateCoin{
				PuzzleHash: testRecipient(),
				Amount:     120,
			}, conds[0])
			require.Equal(t,
				mojo.Amount(25), conds[1].(CreateCoin).Amount,
			)
			require.Equal(t, ReserveFee{Amount: 5}, conds[2])
			continue
		}

		// Secondary: identity assertion plus signature only.
		require.Len(t, conds, 2)
		require.Equal(t, AssertMyCoinID{
			CoinID: coinstore.CoinID(sp.Coin),
		}, conds[0])
		require.IsType(t, AggSigMe{}, conds[1])
	}
}

// TestBuildExactSpendOmitsChange verifies no change condition is emitted
// when inputs exactly cover amount plus fee.
func TestBuildExactSpendOmitsChange(t *testing.T) {
	t.Parallel()

	ring := newTestRing(t)
	builder := NewSpendBuilder(ring, 10, DustReject)

	coin := ringCoin(ring, 1, 1, 100)
	spends, err := builder.Build(
		[]types.Coin{coin}, testRecipient(), 95, 5,
		ring.Derive(0).PuzzleHash,
	)
	require.NoError(t, err)

	conds := parseSpend(t, spends[0])
	require.Len(t, conds, 3)
	require.IsType(t, CreateCoin{}, conds[0])
	require.IsType(t, ReserveFee{}, conds[1])
	require.IsType(t, AggSigMe{}, conds[2])
}

// TestBuildDustPolicies verifies both dust dispositions for sub-threshold
// change.
func TestBuildDustPolicies(t *testing.T) {
	t.Parallel()

	ring := newTestRing(t)
	coin := ringCoin(ring, 1, 1, 100)

	// 100 - 90 - 3 leaves change of 7, below the threshold of 10.
	reject := NewSpendBuilder(ring, 10, DustReject)
	_, err := reject.Build(
		[]types.Coin{coin}, testRecipient(), 90, 3,
		ring.Derive(0).PuzzleHash,
	)
	require.ErrorIs(t, err, ErrChangeTooSmall)

	fold := NewSpendBuilder(ring, 10, DustFoldIntoFee)
	spends, err := fold.Build(
		[]types.Coin{coin}, testRecipient(), 90, 3,
		ring.Derive(0).PuzzleHash,
	)
	require.NoError(t, err)

	// The change folded into the fee: 90 payment + 10 fee = 100.
	conds := parseSpend(t, spends[0])
	require.Len(t, conds, 3)
	require.Equal(t, ReserveFee{Amount: 10}, conds[1])
}

// TestBuildErrors covers the builder's guard rails.
func TestBuildErrors(t *testing.T) {
	t.Parallel()

	ring := newTestRing(t)
	builder := NewSpendBuilder(ring, 10, DustReject)
	change := ring.Derive(0).PuzzleHash

	_, err := builder.Build(nil, testRecipient(), 10, 0, change)
	require.ErrorIs(t, err, ErrEmptySelection)

	short := ringCoin(ring, 1, 1, 50)
	_, err = builder.Build(
		[]types.Coin{short}, testRecipient(), 100, 0, change,
	)
	require.ErrorIs(t, err, ErrSelectionShort)

	// A coin whose puzzle hash resolves to no derived key cannot be
	// spent.
	var foreign types.Coin
	foreign.PuzzleHash[0] = 0xee
	foreign.Amount = 200
	_, err = builder.Build(
		[]types.Coin{foreign}, testRecipient(), 100, 0, change,
	)
	require.ErrorIs(t, err, ErrUnknownOwner)
}
