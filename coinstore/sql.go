// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinstore

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chia-network/go-chia-libs/pkg/types"
	"github.com/lightningnetwork/lnd/clock"

	// Register the database/sql drivers for both supported backends.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// SQLStore is a Store backed by SQLite or PostgreSQL. It exists for wallets
// that want reservation state to survive restarts; the coin set itself is
// still rebuilt from node sync. All queries use $N placeholders, which both
// backends accept.
type SQLStore struct {
	db      *sql.DB
	clock   clock.Clock
	lockTTL time.Duration
}

// A compile-time assertion to ensure that SQLStore implements the Store
// interface.
var _ Store = (*SQLStore)(nil)

// SQLStoreOption configures a SQLStore.
type SQLStoreOption func(*SQLStore)

// WithSQLClock overrides the store's clock.
func WithSQLClock(c clock.Clock) SQLStoreOption {
	return func(s *SQLStore) {
		s.clock = c
	}
}

// NewSQLiteStore opens (creating if necessary) a SQLite-backed coin store at
// the given DSN and applies any pending migrations.
func NewSQLiteStore(dsn string, lockTTL time.Duration,
	opts ...SQLStoreOption) (*SQLStore, error) {

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	if err := applySQLiteMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return newSQLStore(db, lockTTL, opts...), nil
}

// NewPostgresStore connects to a PostgreSQL-backed coin store and applies
// any pending migrations.
func NewPostgresStore(dsn string, lockTTL time.Duration,
	opts ...SQLStoreOption) (*SQLStore, error) {

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}

	if err := applyPostgresMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return newSQLStore(db, lockTTL, opts...), nil
}

func newSQLStore(db *sql.DB, lockTTL time.Duration,
	opts ...SQLStoreOption) *SQLStore {

	s := &SQLStore{
		db:      db,
		clock:   clock.NewDefaultClock(),
		lockTTL: lockTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Sync upserts the snapshot records by coin ID. Spent coins shed any lock
// they carried.
func (s *SQLStore) Sync(ctx context.Context, records []CoinRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const upsert = `
		INSERT INTO coins (
			coin_id, parent_coin_id, puzzle_hash, amount,
			confirmed_height, spent_height
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (coin_id) DO UPDATE SET
			confirmed_height = excluded.confirmed_height,
			spent_height = excluded.spent_height`

	const dropSpentLock = `
		UPDATE coins SET lock_id = NULL, lock_expiry_ns = NULL
		WHERE coin_id = $1 AND spent_height != 0`

	for _, rec := range records {
		id := CoinID(rec.Coin)

		_, err := tx.ExecContext(ctx, upsert,
			id[:], rec.Coin.ParentCoinInfo[:],
			rec.Coin.PuzzleHash[:], int64(rec.Coin.Amount),
			int64(rec.ConfirmedHeight), int64(rec.SpentHeight),
		)
		if err != nil {
			return fmt.Errorf("upsert coin %x: %w", id[:4], err)
		}

		if rec.Spent() {
			_, err := tx.ExecContext(ctx, dropSpentLock, id[:])
			if err != nil {
				return fmt.Errorf("drop lock on spent coin "+
					"%x: %w", id[:4], err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync tx: %w", err)
	}

	log.Debugf("Synced %d coin records to sql store", len(records))
	return nil
}

// Reserve atomically locks the given coins under id. The initial SELECT loop
// only classifies failures into typed errors; mutual exclusion comes from the
// guarded UPDATE below it. Under read-committed isolation two transactions
// can both pass validation, so the UPDATE re-checks the lock columns and a
// reservation that no longer matches affects zero rows and rolls back.
func (s *SQLStore) Reserve(ctx context.Context, id LockID,
	coinIDs []types.Bytes32) (time.Time, error) {

	now := s.clock.Now()
	expiry := now.Add(s.lockTTL)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const fetch = `
		SELECT confirmed_height, spent_height, lock_id, lock_expiry_ns
		FROM coins WHERE coin_id = $1`

	for _, coinID := range coinIDs {
		var (
			confirmed, spent int64
			lockID           []byte
			lockExpiryNS     sql.NullInt64
		)
		err := tx.QueryRowContext(ctx, fetch, coinID[:]).Scan(
			&confirmed, &spent, &lockID, &lockExpiryNS,
		)
		switch {
		case err == sql.ErrNoRows:
			return time.Time{}, fmt.Errorf("%w: %x",
				ErrUnknownCoin, coinID)

		case err != nil:
			return time.Time{}, fmt.Errorf("fetch coin %x: %w",
				coinID[:4], err)
		}

		if confirmed == 0 || spent != 0 {
			return time.Time{}, fmt.Errorf("%w: %x",
				ErrCoinNotSpendable, coinID)
		}

		lockActive := lockID != nil && lockExpiryNS.Valid &&
			lockExpiryNS.Int64 > now.UnixNano()
		if lockActive && !bytes.Equal(lockID, id[:]) {
			return time.Time{}, fmt.Errorf("%w: %x",
				ErrAlreadyReserved, coinID)
		}
	}

	const lock = `
		UPDATE coins SET lock_id = $1, lock_expiry_ns = $2
		WHERE coin_id = $3
		  AND confirmed_height != 0
		  AND spent_height = 0
		  AND (lock_id IS NULL OR lock_id = $1
		       OR lock_expiry_ns <= $4)`

	for _, coinID := range coinIDs {
		res, err := tx.ExecContext(ctx, lock,
			id[:], expiry.UnixNano(), coinID[:], now.UnixNano(),
		)
		if err != nil {
			return time.Time{}, fmt.Errorf("lock coin %x: %w",
				coinID[:4], err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return time.Time{}, fmt.Errorf("lock coin %x: %w",
				coinID[:4], err)
		}

		// Zero rows means a concurrent transaction took the coin
		// between validation and here. The deferred rollback discards
		// any locks this transaction already wrote.
		if n != 1 {
			return time.Time{}, fmt.Errorf("%w: %x",
				ErrAlreadyReserved, coinID)
		}
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("commit reserve tx: %w", err)
	}

	return expiry, nil
}

// Release clears locks held under id, failing when a coin is locked under a
// different ID.
func (s *SQLStore) Release(ctx context.Context, id LockID,
	coinIDs []types.Bytes32) error {

	now := s.clock.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin release tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const fetch = `
		SELECT lock_id, lock_expiry_ns FROM coins WHERE coin_id = $1`

	const unlock = `
		UPDATE coins SET lock_id = NULL, lock_expiry_ns = NULL
		WHERE coin_id = $1`

	for _, coinID := range coinIDs {
		var (
			lockID       []byte
			lockExpiryNS sql.NullInt64
		)
		err := tx.QueryRowContext(ctx, fetch, coinID[:]).Scan(
			&lockID, &lockExpiryNS,
		)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return fmt.Errorf("fetch coin %x: %w", coinID[:4],
				err)
		}

		lockActive := lockID != nil && lockExpiryNS.Valid &&
			lockExpiryNS.Int64 > now.UnixNano()
		if !lockActive {
			continue
		}

		if !bytes.Equal(lockID, id[:]) {
			return fmt.Errorf("%w: %x", ErrReleaseNotAllowed,
				coinID)
		}

		if _, err := tx.ExecContext(ctx, unlock, coinID[:]); err != nil {
			return fmt.Errorf("unlock coin %x: %w", coinID[:4],
				err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit release tx: %w", err)
	}
	return nil
}

// UnspentUnlocked returns all coins eligible for selection, largest first
// with coin ID as the tie breaker so results are deterministic.
func (s *SQLStore) UnspentUnlocked(
	ctx context.Context) ([]CoinRecord, error) {

	const query = `
		SELECT parent_coin_id, puzzle_hash, amount,
		       confirmed_height, spent_height
		FROM coins
		WHERE confirmed_height != 0
		  AND spent_height = 0
		  AND (lock_id IS NULL OR lock_expiry_ns <= $1)
		ORDER BY amount DESC, coin_id ASC`

	rows, err := s.db.QueryContext(ctx, query, s.clock.Now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query unspent coins: %w", err)
	}
	defer rows.Close()

	var records []CoinRecord
	for rows.Next() {
		var (
			parent, puzzle   []byte
			amount           int64
			confirmed, spent int64
		)
		err := rows.Scan(
			&parent, &puzzle, &amount, &confirmed, &spent,
		)
		if err != nil {
			return nil, fmt.Errorf("scan coin row: %w", err)
		}

		var rec CoinRecord
		copy(rec.Coin.ParentCoinInfo[:], parent)
		copy(rec.Coin.PuzzleHash[:], puzzle)
		rec.Coin.Amount = uint64(amount)
		rec.ConfirmedHeight = uint32(confirmed)
		rec.SpentHeight = uint32(spent)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// ListReserved returns all unexpired reservations.
func (s *SQLStore) ListReserved(
	ctx context.Context) ([]ReservedCoin, error) {

	const query = `
		SELECT coin_id, lock_id, lock_expiry_ns
		FROM coins
		WHERE lock_id IS NOT NULL AND lock_expiry_ns > $1`

	rows, err := s.db.QueryContext(ctx, query, s.clock.Now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var reserved []ReservedCoin
	for rows.Next() {
		var (
			coinID, lockID []byte
			expiryNS       int64
		)
		if err := rows.Scan(&coinID, &lockID, &expiryNS); err != nil {
			return nil, fmt.Errorf("scan reservation row: %w",
				err)
		}

		var rc ReservedCoin
		copy(rc.CoinID[:], coinID)
		copy(rc.LockID[:], lockID)
		rc.Expiration = time.Unix(0, expiryNS)
		reserved = append(reserved, rc)
	}

	return reserved, rows.Err()
}

// ExpireReservations clears reservations whose TTL has elapsed.
func (s *SQLStore) ExpireReservations(ctx context.Context) (int, error) {
	const query = `
		UPDATE coins SET lock_id = NULL, lock_expiry_ns = NULL
		WHERE lock_id IS NOT NULL AND lock_expiry_ns <= $1`

	res, err := s.db.ExecContext(ctx, query, s.clock.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("expire reservations: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("Reclaimed %d expired reservations", n)
	}
	return int(n), nil
}
