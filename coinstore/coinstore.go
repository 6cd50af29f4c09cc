// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package coinstore tracks the locally known unspent coin set and its
// reservation state. The store is synchronized from authoritative full-node
// snapshots and mediates all access through the Sync, Reserve, Release and
// UnspentUnlocked contracts, so that concurrent spend attempts can never race
// over the same coin.
package coinstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/chia-network/go-chia-libs/pkg/types"

	"github.com/Kiwihealthcare-Network/kiwiwallet/clvm"
)

var (
	// ErrAlreadyReserved is returned when a reservation includes a coin
	// that is currently locked by another in-flight spend attempt.
	ErrAlreadyReserved = errors.New("coin already reserved")

	// ErrUnknownCoin is returned when a reservation names a coin the
	// store has never observed.
	ErrUnknownCoin = errors.New("unknown coin")

	// ErrCoinNotSpendable is returned when a reservation names a coin
	// that is unconfirmed or already spent.
	ErrCoinNotSpendable = errors.New("coin not spendable")

	// ErrReleaseNotAllowed is returned when a release names a coin locked
	// under a different lock ID.
	ErrReleaseNotAllowed = errors.New("coin locked under different id")
)

// LockID identifies one reservation context. Every spend attempt reserves
// its selected coins under a fresh lock ID and must release them with the
// same ID on failure.
type LockID [32]byte

// NewLockID returns a cryptographically random lock ID.
func NewLockID() (LockID, error) {
	var id LockID
	if _, err := rand.Read(id[:]); err != nil {
		return LockID{}, err
	}
	return id, nil
}

// CoinID returns the deterministic identity of a coin: the sha256 hash of
// its parent coin ID, puzzle hash and the canonical integer encoding of its
// amount.
func CoinID(c types.Coin) types.Bytes32 {
	h := sha256.New()
	h.Write(c.ParentCoinInfo[:])
	h.Write(c.PuzzleHash[:])
	h.Write(clvm.IntToBytes(c.Amount))

	var id types.Bytes32
	copy(id[:], h.Sum(nil))
	return id
}

// CoinRecord is a coin together with its confirmation state as observed from
// node snapshots. Zero heights mean "not yet".
type CoinRecord struct {
	// Coin is the immutable coin value.
	Coin types.Coin

	// ConfirmedHeight is the block height the coin was created at, or
	// zero while unconfirmed.
	ConfirmedHeight uint32

	// SpentHeight is the block height the coin was spent at, or zero
	// while unspent.
	SpentHeight uint32
}

// Confirmed reports whether the coin has been confirmed on chain.
func (r CoinRecord) Confirmed() bool {
	return r.ConfirmedHeight != 0
}

// Spent reports whether the coin has been spent on chain.
func (r CoinRecord) Spent() bool {
	return r.SpentHeight != 0
}

// ReservedCoin describes one active reservation.
type ReservedCoin struct {
	CoinID     types.Bytes32
	LockID     LockID
	Expiration time.Time
}

// Store is the coin-set state shared by all spend pipelines. Implementations
// must make Reserve and Release atomic with respect to concurrent callers;
// the reservation lock is the only correctness-critical lock in the engine.
type Store interface {
	// Sync merges an authoritative node snapshot into the local records.
	// Applying the same snapshot twice is a no-op.
	Sync(ctx context.Context, records []CoinRecord) error

	// Reserve atomically locks the given coins under id, returning the
	// reservation expiration. It is all-or-nothing: if any coin is
	// unknown, unspendable or already locked, no coin is locked and the
	// corresponding error is returned.
	Reserve(ctx context.Context, id LockID,
		coinIDs []types.Bytes32) (time.Time, error)

	// Release clears locks held under id. Releasing a coin that is not
	// locked is a no-op, so failure paths may release unconditionally;
	// releasing a coin locked under a different ID fails with
	// ErrReleaseNotAllowed.
	Release(ctx context.Context, id LockID,
		coinIDs []types.Bytes32) error

	// UnspentUnlocked returns the coins eligible for selection: confirmed,
	// unspent and not under an unexpired reservation.
	UnspentUnlocked(ctx context.Context) ([]CoinRecord, error)

	// ListReserved returns all unexpired reservations.
	ListReserved(ctx context.Context) ([]ReservedCoin, error)

	// ExpireReservations clears reservations whose TTL has elapsed and
	// returns how many coins were reclaimed.
	ExpireReservations(ctx context.Context) (int, error)
}
