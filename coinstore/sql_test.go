// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chia-network/go-chia-libs/pkg/types"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

// newTestSQLStore opens a sqlite-backed store in a temp directory with a mock
// clock pinned at t0. Migrations run as part of opening.
func newTestSQLStore(t *testing.T) (*SQLStore, *clock.TestClock) {
	t.Helper()

	mockClock := clock.NewTestClock(
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	)

	dsn := filepath.Join(t.TempDir(), "coins.db")
	s, err := NewSQLiteStore(dsn, testTTL, WithSQLClock(mockClock))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return s, mockClock
}

// TestSQLSyncIdempotent verifies that reapplying the same snapshot is a
// no-op for the sql store.
func TestSQLSyncIdempotent(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLStore(t)
	ctx := context.Background()

	snapshot := []CoinRecord{
		confirmedRecord(1, 100),
		confirmedRecord(2, 50),
	}

	require.NoError(t, s.Sync(ctx, snapshot))
	first, err := s.UnspentUnlocked(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)

	require.NoError(t, s.Sync(ctx, snapshot))
	second, err := s.UnspentUnlocked(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, first, second)
}

// TestSQLSyncSpentCoinDropsLock verifies that a coin reported spent by the
// node sheds its reservation in the sql store.
func TestSQLSyncSpentCoinDropsLock(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLStore(t)
	ctx := context.Background()

	rec := confirmedRecord(1, 100)
	require.NoError(t, s.Sync(ctx, []CoinRecord{rec}))

	id, err := NewLockID()
	require.NoError(t, err)
	_, err = s.Reserve(ctx, id, []types.Bytes32{CoinID(rec.Coin)})
	require.NoError(t, err)

	rec.SpentHeight = 150
	require.NoError(t, s.Sync(ctx, []CoinRecord{rec}))

	eligible, err := s.UnspentUnlocked(ctx)
	require.NoError(t, err)
	require.Empty(t, eligible)

	reserved, err := s.ListReserved(ctx)
	require.NoError(t, err)
	require.Empty(t, reserved)
}

// TestSQLReserveLifecycle verifies the reserve/conflict/release cycle against
// the sql store, including foreign-lock release rejection.
func TestSQLReserveLifecycle(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLStore(t)
	ctx := context.Background()

	rec := confirmedRecord(1, 100)
	require.NoError(t, s.Sync(ctx, []CoinRecord{rec}))
	coinIDs := []types.Bytes32{CoinID(rec.Coin)}

	owner, err := NewLockID()
	require.NoError(t, err)
	stranger, err := NewLockID()
	require.NoError(t, err)

	expiry, err := s.Reserve(ctx, owner, coinIDs)
	require.NoError(t, err)
	require.True(t, expiry.After(s.clock.Now()))

	// The reserved coin is invisible to selection and taken for others.
	eligible, err := s.UnspentUnlocked(ctx)
	require.NoError(t, err)
	require.Empty(t, eligible)

	_, err = s.Reserve(ctx, stranger, coinIDs)
	require.ErrorIs(t, err, ErrAlreadyReserved)

	// A foreign lock ID may not release it, and the lock survives the
	// attempt.
	err = s.Release(ctx, stranger, coinIDs)
	require.ErrorIs(t, err, ErrReleaseNotAllowed)

	reserved, err := s.ListReserved(ctx)
	require.NoError(t, err)
	require.Len(t, reserved, 1)
	require.Equal(t, owner, reserved[0].LockID)

	// The owner can, and doing it twice is harmless.
	require.NoError(t, s.Release(ctx, owner, coinIDs))
	require.NoError(t, s.Release(ctx, owner, coinIDs))

	eligible, err = s.UnspentUnlocked(ctx)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
}

// TestSQLReserveGuards verifies the typed failure modes and that a failed
// reservation locks nothing at all.
func TestSQLReserveGuards(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLStore(t)
	ctx := context.Background()

	good := confirmedRecord(1, 100)
	spent := CoinRecord{
		Coin:            testCoin(2, 20),
		ConfirmedHeight: 90,
		SpentHeight:     95,
	}
	require.NoError(t, s.Sync(ctx, []CoinRecord{good, spent}))

	id, err := NewLockID()
	require.NoError(t, err)

	var unknown types.Bytes32
	unknown[0] = 0xff

	_, err = s.Reserve(ctx, id, []types.Bytes32{
		CoinID(good.Coin), unknown,
	})
	require.ErrorIs(t, err, ErrUnknownCoin)

	_, err = s.Reserve(ctx, id, []types.Bytes32{
		CoinID(good.Coin), CoinID(spent.Coin),
	})
	require.ErrorIs(t, err, ErrCoinNotSpendable)

	// Both failures must leave the good coin free.
	reserved, err := s.ListReserved(ctx)
	require.NoError(t, err)
	require.Empty(t, reserved)

	eligible, err := s.UnspentUnlocked(ctx)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
}

// TestSQLReserveMutualExclusion verifies that two racing reservations over
// overlapping coin sets resolve to exactly one winner in the sql store.
func TestSQLReserveMutualExclusion(t *testing.T) {
	t.Parallel()

	s, _ := newTestSQLStore(t)
	ctx := context.Background()

	shared := confirmedRecord(1, 100)
	require.NoError(t, s.Sync(ctx, []CoinRecord{
		shared,
		confirmedRecord(2, 50),
		confirmedRecord(3, 30),
	}))

	setA := []types.Bytes32{
		CoinID(shared.Coin),
		CoinID(testCoin(2, 50)),
	}
	setB := []types.Bytes32{
		CoinID(testCoin(3, 30)),
		CoinID(shared.Coin),
	}

	idA, err := NewLockID()
	require.NoError(t, err)
	idB, err := NewLockID()
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		succ   int
		denied int
	)
	reserve := func(id LockID, set []types.Bytes32) {
		defer wg.Done()

		_, err := s.Reserve(ctx, id, set)

		mu.Lock()
		defer mu.Unlock()
		// The loser observes either the winner's lock or its write
		// transaction; both deny the reservation.
		if err == nil {
			succ++
		} else {
			denied++
		}
	}

	wg.Add(2)
	go reserve(idA, setA)
	go reserve(idB, setB)
	wg.Wait()

	require.Equal(t, 1, succ)
	require.Equal(t, 1, denied)

	reserved, err := s.ListReserved(ctx)
	require.NoError(t, err)
	require.Len(t, reserved, 2)
	require.Equal(t, reserved[0].LockID, reserved[1].LockID)
}

// TestSQLReservationExpiry verifies TTL lapse and reclamation in the sql
// store.
func TestSQLReservationExpiry(t *testing.T) {
	t.Parallel()

	s, mockClock := newTestSQLStore(t)
	ctx := context.Background()

	rec := confirmedRecord(1, 100)
	require.NoError(t, s.Sync(ctx, []CoinRecord{rec}))
	coinIDs := []types.Bytes32{CoinID(rec.Coin)}

	id, err := NewLockID()
	require.NoError(t, err)
	expiry, err := s.Reserve(ctx, id, coinIDs)
	require.NoError(t, err)

	eligible, err := s.UnspentUnlocked(ctx)
	require.NoError(t, err)
	require.Empty(t, eligible)

	// Advance past the expiry: the coin is free and the stale lock is
	// reclaimable.
	mockClock.SetTime(expiry.Add(time.Second))

	eligible, err = s.UnspentUnlocked(ctx)
	require.NoError(t, err)
	require.Len(t, eligible, 1)

	expired, err := s.ExpireReservations(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	other, err := NewLockID()
	require.NoError(t, err)
	_, err = s.Reserve(ctx, other, coinIDs)
	require.NoError(t, err)
}
