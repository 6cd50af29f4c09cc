// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chia-network/go-chia-libs/pkg/types"
	"github.com/lightningnetwork/lnd/clock"
)

// memRecord is the in-memory representation of a tracked coin.
type memRecord struct {
	CoinRecord

	// locked is true while a reservation holds this coin.
	locked bool

	// lockID identifies the holding reservation when locked.
	lockID LockID

	// lockExpiry is when the reservation lapses. Expired locks are
	// treated as free on every read path.
	lockExpiry time.Time
}

// MemStore is the in-memory Store implementation. It is the default backend:
// the coin set is always reconstructible from node sync, so persistence is
// an optimization, not a requirement.
type MemStore struct {
	mu      sync.Mutex
	coins   map[types.Bytes32]*memRecord
	clock   clock.Clock
	lockTTL time.Duration
}

// A compile-time assertion to ensure that MemStore implements the Store
// interface.
var _ Store = (*MemStore)(nil)

// MemStoreOption configures a MemStore.
type MemStoreOption func(*MemStore)

// WithClock overrides the store's clock, used by tests to control
// reservation expiry.
func WithClock(c clock.Clock) MemStoreOption {
	return func(s *MemStore) {
		s.clock = c
	}
}

// NewMemStore creates an empty in-memory coin store whose reservations
// expire after lockTTL.
func NewMemStore(lockTTL time.Duration, opts ...MemStoreOption) *MemStore {
	s := &MemStore{
		coins:   make(map[types.Bytes32]*memRecord),
		clock:   clock.NewDefaultClock(),
		lockTTL: lockTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockActive reports whether rec carries an unexpired lock at now.
func (r *memRecord) lockActive(now time.Time) bool {
	return r.locked && r.lockExpiry.After(now)
}

// Sync merges an authoritative node snapshot into the local records. Records
// are upserted by coin ID, so reapplying a snapshot is a no-op. A coin that
// becomes spent sheds any reservation it carried.
func (s *MemStore) Sync(ctx context.Context, records []CoinRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var added, updated int
	for _, rec := range records {
		id := CoinID(rec.Coin)

		existing, ok := s.coins[id]
		if !ok {
			s.coins[id] = &memRecord{CoinRecord: rec}
			added++
			continue
		}

		if existing.CoinRecord != rec {
			updated++
		}
		existing.CoinRecord = rec

		// A spent coin can never be selected again; drop its lock so
		// ListReserved reflects reality.
		if rec.Spent() {
			existing.locked = false
		}
	}

	log.Debugf("Synced %d coin records: %d new, %d updated",
		len(records), added, updated)

	return nil
}

// Reserve atomically locks the given coins under id. The check and the lock
// happen under one critical section, so overlapping concurrent reservations
// resolve to exactly one winner.
func (s *MemStore) Reserve(ctx context.Context, id LockID,
	coinIDs []types.Bytes32) (time.Time, error) {

	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	// Validate every coin before mutating anything so that a failed
	// reservation leaves no partial locks behind.
	for _, coinID := range coinIDs {
		rec, ok := s.coins[coinID]
		if !ok {
			return time.Time{}, fmt.Errorf("%w: %x",
				ErrUnknownCoin, coinID)
		}
		if !rec.Confirmed() || rec.Spent() {
			return time.Time{}, fmt.Errorf("%w: %x",
				ErrCoinNotSpendable, coinID)
		}
		if rec.lockActive(now) && rec.lockID != id {
			return time.Time{}, fmt.Errorf("%w: %x",
				ErrAlreadyReserved, coinID)
		}
	}

	expiry := now.Add(s.lockTTL)
	for _, coinID := range coinIDs {
		rec := s.coins[coinID]
		rec.locked = true
		rec.lockID = id
		rec.lockExpiry = expiry
	}

	log.Debugf("Reserved %d coins under lock %x until %v",
		len(coinIDs), id[:4], expiry)

	return expiry, nil
}

// Release clears locks held under id. Unlocked or unknown coins are skipped
// so that failure paths can release unconditionally.
func (s *MemStore) Release(ctx context.Context, id LockID,
	coinIDs []types.Bytes32) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	// Validate the whole slice before unlocking anything so a foreign
	// lock partway through leaves the earlier coins still reserved.
	for _, coinID := range coinIDs {
		rec, ok := s.coins[coinID]
		if !ok || !rec.lockActive(now) {
			continue
		}
		if rec.lockID != id {
			return fmt.Errorf("%w: %x", ErrReleaseNotAllowed,
				coinID)
		}
	}

	for _, coinID := range coinIDs {
		rec, ok := s.coins[coinID]
		if !ok || !rec.lockActive(now) {
			continue
		}
		rec.locked = false
	}

	return nil
}

// UnspentUnlocked returns all coins eligible for selection.
func (s *MemStore) UnspentUnlocked(
	ctx context.Context) ([]CoinRecord, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var eligible []CoinRecord
	for _, rec := range s.coins {
		if !rec.Confirmed() || rec.Spent() || rec.lockActive(now) {
			continue
		}
		eligible = append(eligible, rec.CoinRecord)
	}

	return eligible, nil
}

// ListReserved returns all unexpired reservations.
func (s *MemStore) ListReserved(
	ctx context.Context) ([]ReservedCoin, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var reserved []ReservedCoin
	for id, rec := range s.coins {
		if !rec.lockActive(now) {
			continue
		}
		reserved = append(reserved, ReservedCoin{
			CoinID:     id,
			LockID:     rec.lockID,
			Expiration: rec.lockExpiry,
		})
	}

	return reserved, nil
}

// ExpireReservations drops locks whose TTL has elapsed. The read paths
// already treat expired locks as free; this reclaims the bookkeeping and
// reports leaked reservations.
func (s *MemStore) ExpireReservations(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var expired int
	for id, rec := range s.coins {
		if rec.locked && !rec.lockExpiry.After(now) {
			rec.locked = false
			expired++

			log.Warnf("Reclaimed leaked reservation on coin %x "+
				"(lock %x expired %v)", id[:4],
				rec.lockID[:4], rec.lockExpiry)
		}
	}

	return expired, nil
}
