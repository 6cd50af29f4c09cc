// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"time"

	"github.com/chia-network/go-chia-libs/pkg/types"
	"github.com/stretchr/testify/mock"
)

// mockNode is a testify mock of the NodeClient interface.
type mockNode struct {
	mock.Mock
}

// A compile-time assertion to ensure that mockNode implements the NodeClient
// interface.
var _ NodeClient = (*mockNode)(nil)

func (m *mockNode) CoinRecordsByPuzzleHash(ctx context.Context,
	ph types.Bytes32, includeSpent bool) ([]types.CoinRecord, error) {

	args := m.Called(ctx, ph, includeSpent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.CoinRecord), args.Error(1)
}

func (m *mockNode) PushSpendBundle(ctx context.Context,
	bundle types.SpendBundle) (string, error) {

	args := m.Called(ctx, bundle)
	return args.String(0), args.Error(1)
}

func (m *mockNode) PeakHeight(ctx context.Context) (uint32, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint32), args.Error(1)
}

// staticWatch is a fixed watch set for tests.
type staticWatch []types.Bytes32

func (w staticWatch) PuzzleHashes() []types.Bytes32 {
	return w
}

// watchedHash builds a distinct puzzle hash.
func watchedHash(tag byte) types.Bytes32 {
	var ph types.Bytes32
	ph[0] = tag
	return ph
}

// nodeRecord builds a coin record as the node would report it.
func nodeRecord(ph types.Bytes32, tag byte, amount uint64, confirmed,
	spent uint32) types.CoinRecord {

	var c types.Coin
	c.ParentCoinInfo[0] = tag
	c.PuzzleHash = ph
	c.Amount = amount

	return types.CoinRecord{
		Coin:                c,
		ConfirmedBlockIndex: confirmed,
		SpentBlockIndex:     spent,
		Timestamp: types.Timestamp{
			Time: time.Unix(1700000000+int64(confirmed), 0),
		},
	}
}
