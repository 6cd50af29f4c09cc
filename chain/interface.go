// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain connects the wallet to a full node: it wraps the node RPC
// surface behind a narrow interface, keeps the coin store synchronized with
// the chain and offers the read-side wallet queries (balance, unspent coins,
// transaction history) plus bundle submission.
package chain

import (
	"context"

	"github.com/chia-network/go-chia-libs/pkg/types"
)

// NodeClient is the full-node RPC surface the wallet depends on. It is
// deliberately narrow so tests can substitute a mock and so swapping the RPC
// transport touches exactly one file.
type NodeClient interface {
	// CoinRecordsByPuzzleHash returns the node's coin records for one
	// puzzle hash, optionally including already spent coins.
	CoinRecordsByPuzzleHash(ctx context.Context, ph types.Bytes32,
		includeSpent bool) ([]types.CoinRecord, error)

	// PushSpendBundle submits a signed spend bundle to the mempool and
	// returns the node's inclusion status string.
	PushSpendBundle(ctx context.Context,
		bundle types.SpendBundle) (string, error)

	// PeakHeight returns the node's current peak block height.
	PeakHeight(ctx context.Context) (uint32, error)
}
