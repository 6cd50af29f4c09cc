// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet implements the spend pipeline: deterministic coin
// selection, spend construction, BLS signature aggregation and final bundle
// assembly, coordinated against the coin store's reservation locks so that
// concurrent spends never double-commit a coin.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/chia-network/go-chia-libs/pkg/types"

	"github.com/Kiwihealthcare-Network/kiwiwallet/coinstore"
	"github.com/Kiwihealthcare-Network/kiwiwallet/keychain"
	"github.com/Kiwihealthcare-Network/kiwiwallet/pkg/mojo"
)

var (
	// ErrZeroAmount is returned for an intent that pays nothing.
	ErrZeroAmount = errors.New("spend amount must be positive")

	// ErrZeroRecipient is returned for an intent with an unset recipient
	// puzzle hash.
	ErrZeroRecipient = errors.New("recipient puzzle hash not set")

	// ErrFeeExceedsMax is returned when an intent's fee is above the
	// engine's configured ceiling. This is a fat-finger guard, not a
	// policy statement about relay fees.
	ErrFeeExceedsMax = errors.New("fee exceeds configured maximum")
)

// DefaultMaxFee is the fee ceiling applied when the config leaves MaxFee
// unset. One XCH as a fee is virtually always a mistake.
const DefaultMaxFee = mojo.Amount(mojo.MojosPerXCH)

// changeIndex is the derivation index change outputs pay to.
const changeIndex = 0

// Config bundles the engine's spend-construction parameters.
type Config struct {
	// DustThreshold is the smallest change output the engine will
	// create. What happens below it is decided by DustPolicy.
	DustThreshold mojo.Amount

	// DustPolicy decides whether sub-threshold change fails the spend or
	// folds into the fee.
	DustPolicy DustPolicy

	// GenesisChallenge identifies the network signatures are valid on.
	GenesisChallenge types.Bytes32

	// MaxFee caps the fee an intent may carry. Zero selects
	// DefaultMaxFee.
	MaxFee mojo.Amount
}

// SendIntent describes one requested payment.
type SendIntent struct {
	// Recipient is the puzzle hash being paid.
	Recipient types.Bytes32

	// Amount is the payment value in mojos.
	Amount mojo.Amount

	// Fee is the transaction fee in mojos. May be zero.
	Fee mojo.Amount

	// Change optionally overrides the change puzzle hash. When unset,
	// change pays back to the wallet's first derivation index.
	Change types.Bytes32
}

// PendingSpend is a fully signed bundle whose input coins are still held
// under the engine's reservation. The reservation clears when the node
// reports the coins spent, when the TTL lapses, or when the caller abandons
// the spend after a rejected submission.
type PendingSpend struct {
	// Bundle is the signed spend bundle ready for submission.
	Bundle types.SpendBundle

	// LockID identifies the reservation holding the bundle's inputs.
	LockID coinstore.LockID

	coinIDs []types.Bytes32
}

// Engine orchestrates the spend pipeline. It is safe for concurrent use;
// the coin store's reservation lock arbitrates between racing spends.
type Engine struct {
	store   coinstore.Store
	keys    *keychain.KeyRing
	builder *SpendBuilder
	signer  *SignatureAggregator
	maxFee  mojo.Amount
}

// NewEngine creates a spend engine over the given store and key ring.
func NewEngine(store coinstore.Store, keys *keychain.KeyRing,
	cfg Config) *Engine {

	maxFee := cfg.MaxFee
	if maxFee == 0 {
		maxFee = DefaultMaxFee
	}

	return &Engine{
		store: store,
		keys:  keys,
		builder: NewSpendBuilder(
			keys, cfg.DustThreshold, cfg.DustPolicy,
		),
		signer: NewSignatureAggregator(keys, cfg.GenesisChallenge),
		maxFee: maxFee,
	}
}

// validate rejects intents the engine refuses to build.
func (e *Engine) validate(intent SendIntent) error {
	if intent.Amount == 0 {
		return ErrZeroAmount
	}
	if intent.Recipient == (types.Bytes32{}) {
		return ErrZeroRecipient
	}
	if intent.Fee > e.maxFee {
		return fmt.Errorf("%w: %v > %v", ErrFeeExceedsMax, intent.Fee,
			e.maxFee)
	}
	return nil
}

// CreateSpendBundle runs the full pipeline for one intent: select coins,
// reserve them, build and sign the spends, and assemble the final bundle.
// Any failure after the reservation releases it before returning, so a
// failed attempt never strands coins until the TTL.
func (e *Engine) CreateSpendBundle(ctx context.Context,
	intent SendIntent) (*PendingSpend, error) {

	if err := e.validate(intent); err != nil {
		return nil, err
	}

	eligible, err := e.store.UnspentUnlocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("load eligible coins: %w", err)
	}

	selected, err := Select(eligible, intent.Amount, intent.Fee)
	if err != nil {
		return nil, err
	}

	lockID, err := coinstore.NewLockID()
	if err != nil {
		return nil, err
	}
	coinIDs := make([]types.Bytes32, len(selected))
	for i, c := range selected {
		coinIDs[i] = coinstore.CoinID(c)
	}

	// Another spend may have raced us between the eligibility read and
	// here; Reserve is the arbiter and the loser simply fails.
	expiry, err := e.store.Reserve(ctx, lockID, coinIDs)
	if err != nil {
		return nil, err
	}

	bundle, err := e.buildReserved(intent, selected)
	if err != nil {
		if relErr := e.store.Release(ctx, lockID, coinIDs); relErr != nil {
			log.Errorf("Unable to release reservation %x after "+
				"failed build: %v", lockID[:8], relErr)
		}
		return nil, err
	}

	log.Infof("Created spend bundle paying %v (fee %v) from %d coins, "+
		"reservation %x expires %v", intent.Amount, intent.Fee,
		len(selected), lockID[:8], expiry)

	return &PendingSpend{
		Bundle:  bundle,
		LockID:  lockID,
		coinIDs: coinIDs,
	}, nil
}

// buildReserved builds, signs and assembles the bundle for coins already
// held under a reservation.
func (e *Engine) buildReserved(intent SendIntent,
	selected []types.Coin) (types.SpendBundle, error) {

	change := intent.Change
	if change == (types.Bytes32{}) {
		change = e.keys.Derive(changeIndex).PuzzleHash
	}

	spends, err := e.builder.Build(
		selected, intent.Recipient, intent.Amount, intent.Fee, change,
	)
	if err != nil {
		return types.SpendBundle{}, err
	}

	aggSig, err := e.signer.Sign(spends)
	if err != nil {
		return types.SpendBundle{}, err
	}

	return Assemble(spends, aggSig)
}

// CreateSweepBundle builds a bundle spending every eligible coin, paying
// the whole balance minus the fee to the recipient. Sweeps never produce
// change, so the dust policy does not apply.
func (e *Engine) CreateSweepBundle(ctx context.Context,
	recipient types.Bytes32, fee mojo.Amount) (*PendingSpend, error) {

	if recipient == (types.Bytes32{}) {
		return nil, ErrZeroRecipient
	}
	if fee > e.maxFee {
		return nil, fmt.Errorf("%w: %v > %v", ErrFeeExceedsMax, fee,
			e.maxFee)
	}

	eligible, err := e.store.UnspentUnlocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("load eligible coins: %w", err)
	}

	amounts := make([]mojo.Amount, len(eligible))
	selected := make([]types.Coin, len(eligible))
	coinIDs := make([]types.Bytes32, len(eligible))
	for i, rec := range eligible {
		amounts[i] = mojo.Amount(rec.Coin.Amount)
		selected[i] = rec.Coin
		coinIDs[i] = coinstore.CoinID(rec.Coin)
	}

	total, err := mojo.Sum(amounts...)
	if err != nil {
		return nil, err
	}
	if total <= fee {
		return nil, fmt.Errorf("%w: balance %v, fee %v",
			ErrInsufficientFunds, total, fee)
	}

	lockID, err := coinstore.NewLockID()
	if err != nil {
		return nil, err
	}
	expiry, err := e.store.Reserve(ctx, lockID, coinIDs)
	if err != nil {
		return nil, err
	}

	bundle, err := e.buildReserved(SendIntent{
		Recipient: recipient,
		Amount:    total - fee,
		Fee:       fee,
	}, selected)
	if err != nil {
		if relErr := e.store.Release(ctx, lockID, coinIDs); relErr != nil {
			log.Errorf("Unable to release reservation %x after "+
				"failed sweep build: %v", lockID[:8], relErr)
		}
		return nil, err
	}

	log.Infof("Created sweep bundle paying %v (fee %v) from %d coins, "+
		"reservation %x expires %v", total-fee, fee, len(selected),
		lockID[:8], expiry)

	return &PendingSpend{
		Bundle:  bundle,
		LockID:  lockID,
		coinIDs: coinIDs,
	}, nil
}

// Abandon releases the reservation behind a pending spend. Call it when the
// node rejected the bundle or the submission was given up on; a confirmed
// bundle needs no release because sync marks its coins spent.
func (e *Engine) Abandon(ctx context.Context, pending *PendingSpend) error {
	return e.store.Release(ctx, pending.LockID, pending.coinIDs)
}
