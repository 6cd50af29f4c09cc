// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keychain

import (
	"crypto/sha512"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// MinSeedSize is the smallest seed the key generator accepts. Shorter
	// seeds do not carry enough entropy for a BLS master key.
	MinSeedSize = 32

	// mnemonicSeedSize is the size of a seed stretched from a mnemonic.
	mnemonicSeedSize = 64

	// mnemonicIterations is the PBKDF2 iteration count used when
	// stretching a mnemonic, matching the reference wallet.
	mnemonicIterations = 2048

	// mnemonicSalt is the fixed PBKDF2 salt prefix for mnemonics.
	mnemonicSalt = "mnemonic"
)

var (
	// ErrInvalidSeed is returned when a seed fails length or format
	// validation.
	ErrInvalidSeed = errors.New("invalid wallet seed")
)

// ValidateSeed checks that seed is usable for master key generation.
func ValidateSeed(seed []byte) error {
	if len(seed) < MinSeedSize {
		return fmt.Errorf("%w: %d bytes, need at least %d",
			ErrInvalidSeed, len(seed), MinSeedSize)
	}
	return nil
}

// SeedFromMnemonic stretches a mnemonic sentence and optional passphrase into
// a 64-byte seed via PBKDF2-HMAC-SHA512, the derivation the reference wallet
// uses. Whitespace in the mnemonic is normalized before stretching so that
// formatting differences do not change the derived keys.
func SeedFromMnemonic(mnemonic, passphrase string) []byte {
	normalized := strings.Join(strings.Fields(mnemonic), " ")
	return pbkdf2.Key(
		[]byte(normalized),
		[]byte(mnemonicSalt+passphrase),
		mnemonicIterations, mnemonicSeedSize, sha512.New,
	)
}
