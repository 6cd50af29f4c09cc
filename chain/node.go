// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/chia-network/go-chia-libs/pkg/rpc"
	"github.com/chia-network/go-chia-libs/pkg/types"
)

var (
	// ErrNoPeak is returned when the node reports no blockchain peak,
	// which happens while it is still syncing from scratch.
	ErrNoPeak = errors.New("node has no blockchain peak")

	// ErrEmptyResponse is returned when an RPC succeeds at the transport
	// level but carries no payload.
	ErrEmptyResponse = errors.New("empty node response")
)

// RPCNode is the NodeClient implementation backed by the official full-node
// HTTP RPC. The underlying client does not thread contexts through its
// calls, so cancellation is checked at the call boundary; an in-flight HTTP
// round trip still runs to completion.
type RPCNode struct {
	client *rpc.Client
}

// A compile-time assertion to ensure that RPCNode implements the NodeClient
// interface.
var _ NodeClient = (*RPCNode)(nil)

// NewRPCNode connects to the full node described by the local chia
// configuration (certificates and ports are discovered automatically).
func NewRPCNode() (*RPCNode, error) {
	client, err := rpc.NewClient(
		rpc.ConnectionModeHTTP, rpc.WithAutoConfig(),
	)
	if err != nil {
		return nil, fmt.Errorf("connect full node rpc: %w", err)
	}
	return &RPCNode{client: client}, nil
}

// NewRPCNodeWithClient wraps an already configured RPC client.
func NewRPCNodeWithClient(client *rpc.Client) *RPCNode {
	return &RPCNode{client: client}
}

// CoinRecordsByPuzzleHash returns the node's coin records for one puzzle
// hash.
func (n *RPCNode) CoinRecordsByPuzzleHash(ctx context.Context,
	ph types.Bytes32, includeSpent bool) ([]types.CoinRecord, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, _, err := n.client.FullNodeService.GetCoinRecordsByPuzzleHash(
		&rpc.GetCoinRecordsByPuzzleHashOptions{
			PuzzleHash:        ph,
			IncludeSpentCoins: includeSpent,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("get coin records for %x: %w",
			ph[:8], err)
	}

	// An empty slice is a valid answer: the puzzle hash simply has no
	// coins yet.
	return resp.CoinRecords, nil
}

// PushSpendBundle submits a signed spend bundle to the node's mempool.
func (n *RPCNode) PushSpendBundle(ctx context.Context,
	bundle types.SpendBundle) (string, error) {

	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp, _, err := n.client.FullNodeService.PushTX(
		&rpc.FullNodePushTXOptions{SpendBundle: bundle},
	)
	if err != nil {
		return "", fmt.Errorf("push spend bundle: %w", err)
	}

	status, ok := resp.Status.Get()
	if !ok {
		return "", fmt.Errorf("%w: push status", ErrEmptyResponse)
	}
	return status, nil
}

// PeakHeight returns the node's current peak block height.
func (n *RPCNode) PeakHeight(ctx context.Context) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	resp, _, err := n.client.FullNodeService.GetBlockchainState()
	if err != nil {
		return 0, fmt.Errorf("get blockchain state: %w", err)
	}

	state, ok := resp.BlockchainState.Get()
	if !ok {
		return 0, fmt.Errorf("%w: blockchain state", ErrEmptyResponse)
	}
	peak, ok := state.Peak.Get()
	if !ok {
		return 0, ErrNoPeak
	}
	return peak.Height, nil
}
