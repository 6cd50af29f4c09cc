// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keychain

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/chia-network/go-chia-libs/pkg/types"
)

var (
	// ErrInvalidAddress is returned when an address fails bech32m
	// decoding or decodes to something other than a 32-byte puzzle hash.
	ErrInvalidAddress = errors.New("invalid address")
)

// EncodeAddress renders a puzzle hash as a bech32m address under the given
// human-readable prefix (xch for mainnet, txch for testnets).
func EncodeAddress(ph types.Bytes32, prefix string) (string, error) {
	converted, err := bech32.ConvertBits(ph[:], 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert puzzle hash: %w", err)
	}

	addr, err := bech32.EncodeM(prefix, converted)
	if err != nil {
		return "", fmt.Errorf("encode address: %w", err)
	}
	return addr, nil
}

// DecodeAddress decodes a bech32m address into its prefix and puzzle hash.
// Classic bech32 encodings are rejected; the chain has only ever used
// bech32m addresses.
func DecodeAddress(addr string) (string, types.Bytes32, error) {
	prefix, data, version, err := bech32.DecodeGeneric(addr)
	if err != nil {
		return "", types.Bytes32{}, fmt.Errorf("%w: %v",
			ErrInvalidAddress, err)
	}
	if version != bech32.VersionM {
		return "", types.Bytes32{}, fmt.Errorf("%w: not bech32m",
			ErrInvalidAddress)
	}

	decoded, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", types.Bytes32{}, fmt.Errorf("%w: %v",
			ErrInvalidAddress, err)
	}
	if len(decoded) != 32 {
		return "", types.Bytes32{}, fmt.Errorf("%w: payload is %d "+
			"bytes, want 32", ErrInvalidAddress, len(decoded))
	}

	var ph types.Bytes32
	copy(ph[:], decoded)
	return prefix, ph, nil
}
