// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chia-network/go-chia-libs/pkg/types"
	"github.com/stretchr/testify/require"

	"github.com/Kiwihealthcare-Network/kiwiwallet/coinstore"
	"github.com/Kiwihealthcare-Network/kiwiwallet/keychain"
	"github.com/Kiwihealthcare-Network/kiwiwallet/pkg/mojo"
)

// testHarness wires an engine over an in-memory coin store.
type testHarness struct {
	ring   *keychain.KeyRing
	store  *coinstore.MemStore
	engine *Engine
}

// newTestHarness builds the harness with the given dust policy and funds it
// with the provided coins.
func newTestHarness(t *testing.T, threshold mojo.Amount, policy DustPolicy,
	coins ...types.Coin) *testHarness {

	t.Helper()

	ring := newTestRing(t)
	store := coinstore.NewMemStore(5 * time.Minute)

	records := make([]coinstore.CoinRecord, len(coins))
	for i, c := range coins {
		records[i] = coinstore.CoinRecord{
			Coin:            c,
			ConfirmedHeight: 100,
		}
	}
	require.NoError(t, store.Sync(context.Background(), records))

	engine := NewEngine(store, ring, Config{
		DustThreshold:    threshold,
		DustPolicy:       policy,
		GenesisChallenge: testGenesis(),
	})

	return &testHarness{ring: ring, store: store, engine: engine}
}

// TestEngineCreateSpendBundle runs the whole pipeline end to end and
// re-evaluates the resulting bundle's declared effects.
func TestEngineCreateSpendBundle(t *testing.T) {
	t.Parallel()

	ring := newTestRing(t)
	h := newTestHarness(t, 10, DustReject,
		ringCoin(ring, 1, 1, 100),
		ringCoin(ring, 2, 2, 50),
		ringCoin(ring, 3, 3, 30),
	)
	ctx := context.Background()

	pending, err := h.engine.CreateSpendBundle(ctx, SendIntent{
		Recipient: testRecipient(),
		Amount:    120,
		Fee:       5,
	})
	require.NoError(t, err)
	require.Len(t, pending.Bundle.CoinSpends, 2)

	// The aggregated signature must verify against the bundle itself.
	signer := NewSignatureAggregator(h.ring, testGenesis())
	ok, err := signer.Verify(pending.Bundle)
	require.NoError(t, err)
	require.True(t, ok)

	// Re-evaluate the declared effects: 120 to the recipient, 25 change
	// back to the wallet's change address, 5 reserved as fee.
	var (
		toRecipient, toChange, fee mojo.Amount
	)
	changePH := h.ring.Derive(0).PuzzleHash
	for _, sp := range pending.Bundle.CoinSpends {
		for _, c := range parseSpend(t, sp) {
			switch c := c.(type) {
			case CreateCoin:
				switch c.PuzzleHash {
				case testRecipient():
					toRecipient += c.Amount
				case changePH:
					toChange += c.Amount
				default:
					t.Fatalf("unexpected output to %x",
						c.PuzzleHash[:8])
				}
			case ReserveFee:
				fee += c.Amount
			}
		}
	}
	require.Equal(t, mojo.Amount(120), toRecipient)
	require.Equal(t, mojo.Amount(25), toChange)
	require.Equal(t, mojo.Amount(5), fee)

	// The selected coins are reserved: only the untouched 30-mojo coin
	// remains eligible.
	eligible, err := h.store.UnspentUnlocked(ctx)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	require.Equal(t, uint64(30), eligible[0].Coin.Amount)
}

// TestEngineReleasesOnBuildFailure verifies that a failure after the
// reservation (here a dust rejection) releases the coins again.
func TestEngineReleasesOnBuildFailure(t *testing.T) {
	t.Parallel()

	ring := newTestRing(t)
	h := newTestHarness(t, 30, DustReject,
		ringCoin(ring, 1, 1, 100),
		ringCoin(ring, 2, 2, 50),
	)
	ctx := context.Background()

	// 100 + 50 - 120 - 5 leaves change of 25, below the threshold.
	_, err := h.engine.CreateSpendBundle(ctx, SendIntent{
		Recipient: testRecipient(),
		Amount:    120,
		Fee:       5,
	})
	require.ErrorIs(t, err, ErrChangeTooSmall)

	// Nothing may remain reserved.
	eligible, err := h.store.UnspentUnlocked(ctx)
	require.NoError(t, err)
	require.Len(t, eligible, 2)

	reserved, err := h.store.ListReserved(ctx)
	require.NoError(t, err)
	require.Empty(t, reserved)
}

// TestEngineAbandon verifies that abandoning a pending spend frees its
// inputs for reselection.
func TestEngineAbandon(t *testing.T) {
	t.Parallel()

	ring := newTestRing(t)
	h := newTestHarness(t, 10, DustReject, ringCoin(ring, 1, 1, 100))
	ctx := context.Background()

	pending, err := h.engine.CreateSpendBundle(ctx, SendIntent{
		Recipient: testRecipient(),
		Amount:    60,
		Fee:       2,
	})
	require.NoError(t, err)

	eligible, err := h.store.UnspentUnlocked(ctx)
	require.NoError(t, err)
	require.Empty(t, eligible)

	require.NoError(t, h.engine.Abandon(ctx, pending))

	eligible, err = h.store.UnspentUnlocked(ctx)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
}

// TestEngineIntentValidation covers the intent guard rails.
func TestEngineIntentValidation(t *testing.T) {
	t.Parallel()

	ring := newTestRing(t)
	h := newTestHarness(t, 10, DustReject, ringCoin(ring, 1, 1, 100))
	ctx := context.Background()

	_, err := h.engine.CreateSpendBundle(ctx, SendIntent{
		Recipient: testRecipient(),
	})
	require.ErrorIs(t, err, ErrZeroAmount)

	_, err = h.engine.CreateSpendBundle(ctx, SendIntent{Amount: 10})
	require.ErrorIs(t, err, ErrZeroRecipient)

	_, err = h.engine.CreateSpendBundle(ctx, SendIntent{
		Recipient: testRecipient(),
		Amount:    10,
		Fee:       DefaultMaxFee + 1,
	})
	require.ErrorIs(t, err, ErrFeeExceedsMax)
}

// TestEngineCreateSweepBundle verifies a sweep spends every eligible coin
// and pays the whole balance minus fee with no change output.
func TestEngineCreateSweepBundle(t *testing.T) {
	t.Parallel()

	ring := newTestRing(t)
	h := newTestHarness(t, 10, DustReject,
		ringCoin(ring, 1, 1, 100),
		ringCoin(ring, 2, 2, 50),
		ringCoin(ring, 3, 3, 30),
	)
	ctx := context.Background()

	pending, err := h.engine.CreateSweepBundle(ctx, testRecipient(), 5)
	require.NoError(t, err)
	require.Len(t, pending.Bundle.CoinSpends, 3)

	var toRecipient, fee mojo.Amount
	for _, sp := range pending.Bundle.CoinSpends {
		for _, c := range parseSpend(t, sp) {
			switch c := c.(type) {
			case CreateCoin:
				require.Equal(t, testRecipient(), c.PuzzleHash)
				toRecipient += c.Amount
			case ReserveFee:
				fee += c.Amount
			}
		}
	}
	require.Equal(t, mojo.Amount(175), toRecipient)
	require.Equal(t, mojo.Amount(5), fee)

	// Everything is reserved now, so a second sweep finds no funds.
	_, err = h.engine.CreateSweepBundle(ctx, testRecipient(), 5)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

// TestEngineConcurrentSpendsNeverShareCoins verifies that two racing spends
// over the same single coin resolve to exactly one winner.
func TestEngineConcurrentSpendsNeverShareCoins(t *testing.T) {
	t.Parallel()

	ring := newTestRing(t)
	h := newTestHarness(t, 0, DustReject, ringCoin(ring, 1, 1, 100))
	ctx := context.Background()

	intent := SendIntent{
		Recipient: testRecipient(),
		Amount:    40,
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		bundle int
		lost   int
	)
	spend := func() {
		defer wg.Done()

		_, err := h.engine.CreateSpendBundle(ctx, intent)

		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			bundle++
		} else {
			// The loser fails either at reservation or, if the
			// winner got there first, at selection.
			lost++
		}
	}

	wg.Add(2)
	go spend()
	go spend()
	wg.Wait()

	require.Equal(t, 1, bundle)
	require.Equal(t, 1, lost)
}
