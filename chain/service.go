// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/chia-network/go-chia-libs/pkg/types"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Kiwihealthcare-Network/kiwiwallet/coinstore"
	"github.com/Kiwihealthcare-Network/kiwiwallet/pkg/mojo"
)

// ErrBundleRejected is returned when the node refuses a submitted spend
// bundle. The node's status string is included in the wrapped error.
var ErrBundleRejected = errors.New("spend bundle rejected by node")

// Push statuses the node reports for an accepted bundle. PENDING means the
// mempool holds the bundle but the current peak has not included it yet.
const (
	statusSuccess = "SUCCESS"
	statusPending = "PENDING"
)

// recordCacheSize bounds the number of puzzle hashes whose coin records are
// cached between queries.
const recordCacheSize = 512

// WatchSet enumerates the puzzle hashes the wallet controls. It is
// implemented by keychain.KeyRing.
type WatchSet interface {
	PuzzleHashes() []types.Bytes32
}

// Direction tells whether a transaction moved value into or out of the
// wallet.
type Direction uint8

const (
	// DirectionIn marks value received by a watched puzzle hash.
	DirectionIn Direction = iota

	// DirectionOut marks a watched coin being spent.
	DirectionOut
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(d))
	}
}

// Transaction is one entry of the wallet's value history, derived from the
// on-chain life of a single coin.
type Transaction struct {
	// CoinID identifies the coin the entry derives from.
	CoinID types.Bytes32

	// Direction is in for the coin's creation, out for its spend.
	Direction Direction

	// Amount is the coin's value in mojos.
	Amount mojo.Amount

	// Height is the block height of the event.
	Height uint32

	// Timestamp is the node-reported time of the coin's confirmation.
	Timestamp time.Time
}

// Service answers the wallet's read-side chain queries and submits spend
// bundles. Coin record lookups are cached per puzzle hash with a short TTL
// so bursts of balance and history queries do not hammer the node.
type Service struct {
	node  NodeClient
	watch WatchSet
	cache *expirable.LRU[types.Bytes32, []types.CoinRecord]
}

// NewService creates a chain service over the given node, watching the
// puzzle hashes of watch. Cached records go stale after cacheTTL.
func NewService(node NodeClient, watch WatchSet,
	cacheTTL time.Duration) *Service {

	return &Service{
		node:  node,
		watch: watch,
		cache: expirable.NewLRU[types.Bytes32, []types.CoinRecord](
			recordCacheSize, nil, cacheTTL,
		),
	}
}

// records returns the coin records (spent included) for every watched
// puzzle hash, consulting the cache first.
func (s *Service) records(ctx context.Context) ([]types.CoinRecord, error) {
	var all []types.CoinRecord
	for _, ph := range s.watch.PuzzleHashes() {
		if cached, ok := s.cache.Get(ph); ok {
			all = append(all, cached...)
			continue
		}

		recs, err := s.node.CoinRecordsByPuzzleHash(ctx, ph, true)
		if err != nil {
			return nil, err
		}
		s.cache.Add(ph, recs)
		all = append(all, recs...)
	}
	return all, nil
}

// Balance returns the wallet's confirmed unspent balance in mojos.
func (s *Service) Balance(ctx context.Context) (mojo.Amount, error) {
	recs, err := s.records(ctx)
	if err != nil {
		return 0, err
	}

	var total mojo.Amount
	for _, rec := range recs {
		if rec.Spent() {
			continue
		}
		total, err = mojo.Sum(total, mojo.Amount(rec.Coin.Amount))
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// ListUnspent returns the wallet's confirmed unspent coins as store records.
func (s *Service) ListUnspent(
	ctx context.Context) ([]coinstore.CoinRecord, error) {

	recs, err := s.records(ctx)
	if err != nil {
		return nil, err
	}

	var out []coinstore.CoinRecord
	for _, rec := range recs {
		if rec.Spent() {
			continue
		}
		out = append(out, convertRecord(rec))
	}
	return out, nil
}

// Transactions returns the wallet's value history, most recent first. Each
// watched coin contributes an incoming entry at its confirmation and, once
// spent, an outgoing entry at its spend height.
func (s *Service) Transactions(ctx context.Context) ([]Transaction, error) {
	recs, err := s.records(ctx)
	if err != nil {
		return nil, err
	}

	var txs []Transaction
	for _, rec := range recs {
		if rec.ConfirmedBlockIndex == 0 {
			continue
		}

		id := coinstore.CoinID(rec.Coin)
		ts := rec.Timestamp.Time

		txs = append(txs, Transaction{
			CoinID:    id,
			Direction: DirectionIn,
			Amount:    mojo.Amount(rec.Coin.Amount),
			Height:    rec.ConfirmedBlockIndex,
			Timestamp: ts,
		})

		if rec.SpentBlockIndex != 0 {
			txs = append(txs, Transaction{
				CoinID:    id,
				Direction: DirectionOut,
				Amount:    mojo.Amount(rec.Coin.Amount),
				Height:    rec.SpentBlockIndex,
				Timestamp: ts,
			})
		}
	}

	sort.Slice(txs, func(i, j int) bool {
		if txs[i].Height != txs[j].Height {
			return txs[i].Height > txs[j].Height
		}
		return txs[i].Direction > txs[j].Direction
	})
	return txs, nil
}

// Submit pushes a signed spend bundle to the node's mempool. Both SUCCESS
// and PENDING count as acceptance; anything else fails with
// ErrBundleRejected.
func (s *Service) Submit(ctx context.Context,
	bundle types.SpendBundle) error {

	status, err := s.node.PushSpendBundle(ctx, bundle)
	if err != nil {
		return err
	}

	switch status {
	case statusSuccess, statusPending:
		log.Infof("Spend bundle with %d coin spends accepted: %s",
			len(bundle.CoinSpends), status)
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrBundleRejected, status)
	}
}

// SubmitResult is the outcome of one bundle within a batch submission.
type SubmitResult struct {
	// Index is the bundle's position in the submitted batch.
	Index int

	// Err is nil when the node accepted the bundle.
	Err error
}

// SubmitAll pushes every bundle in the batch, collecting per-bundle outcomes
// instead of stopping at the first rejection. Bundles are independent spends,
// so one rejection says nothing about the rest.
func (s *Service) SubmitAll(ctx context.Context,
	bundles []types.SpendBundle) []SubmitResult {

	results := make([]SubmitResult, len(bundles))
	for i, bundle := range bundles {
		results[i] = SubmitResult{
			Index: i,
			Err:   s.Submit(ctx, bundle),
		}
	}
	return results
}

// convertRecord maps a node coin record onto the store's representation.
func convertRecord(rec types.CoinRecord) coinstore.CoinRecord {
	return coinstore.CoinRecord{
		Coin:            rec.Coin,
		ConfirmedHeight: rec.ConfirmedBlockIndex,
		SpentHeight:     rec.SpentBlockIndex,
	}
}
