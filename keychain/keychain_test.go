// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keychain

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// testSeed returns a deterministic 64-byte seed for tests.
func testSeed(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, 64)
}

// TestNewKeyRingInvalidSeed verifies seed validation.
func TestNewKeyRingInvalidSeed(t *testing.T) {
	t.Parallel()

	_, err := NewKeyRing([]byte("too short"))
	require.ErrorIs(t, err, ErrInvalidSeed)

	_, err = NewKeyRing(nil)
	require.ErrorIs(t, err, ErrInvalidSeed)
}

// TestDeriveDeterministic verifies that derivation is pure: two rings built
// from the same seed produce byte-identical keys, and repeated calls on one
// ring are idempotent.
func TestDeriveDeterministic(t *testing.T) {
	t.Parallel()

	r1, err := NewKeyRing(testSeed(0x5a))
	require.NoError(t, err)
	r2, err := NewKeyRing(testSeed(0x5a))
	require.NoError(t, err)

	for index := uint32(0); index < 5; index++ {
		a := r1.Derive(index)
		b := r2.Derive(index)

		require.Equal(t, a.PrivateKey.Bytes(), b.PrivateKey.Bytes())
		require.Equal(t, a.PublicKey.Bytes(), b.PublicKey.Bytes())
		require.Equal(t, a.PuzzleHash, b.PuzzleHash)

		// Repeated derivation on the same ring is idempotent.
		again := r1.Derive(index)
		require.Equal(t, a.PrivateKey.Bytes(),
			again.PrivateKey.Bytes())
	}
}

// TestDeriveDistinctIndexes verifies that different indexes yield different
// keys and puzzle hashes.
func TestDeriveDistinctIndexes(t *testing.T) {
	t.Parallel()

	r, err := NewKeyRing(testSeed(0x01))
	require.NoError(t, err)

	a := r.Derive(0)
	b := r.Derive(1)

	require.NotEqual(t, a.PublicKey.Bytes(), b.PublicKey.Bytes())
	require.NotEqual(t, a.PuzzleHash, b.PuzzleHash)
}

// TestLookupPuzzleHash verifies the reverse index maintained by derivation.
func TestLookupPuzzleHash(t *testing.T) {
	t.Parallel()

	r, err := NewKeyRing(testSeed(0x02))
	require.NoError(t, err)
	r.EnsureIndexes(3)

	want := r.Derive(2)
	got, ok := r.LookupPuzzleHash(want.PuzzleHash)
	require.True(t, ok)
	require.Equal(t, uint32(2), got.Index)
	require.Equal(t, want.PublicKey.Bytes(), got.PublicKey.Bytes())

	// A foreign puzzle hash resolves to nothing.
	var foreign [32]byte
	foreign[0] = 0xff
	_, ok = r.LookupPuzzleHash(foreign)
	require.False(t, ok)
}

// TestPuzzleHashes verifies the watch set covers all ensured indexes in
// order.
func TestPuzzleHashes(t *testing.T) {
	t.Parallel()

	r, err := NewKeyRing(testSeed(0x03))
	require.NoError(t, err)
	r.EnsureIndexes(4)

	hashes := r.PuzzleHashes()
	require.Len(t, hashes, 4)
	for i, ph := range hashes {
		require.Equal(t, r.Derive(uint32(i)).PuzzleHash, ph)
	}
}

// TestSeedFromMnemonic verifies whitespace normalization and passphrase
// separation.
func TestSeedFromMnemonic(t *testing.T) {
	t.Parallel()

	base := SeedFromMnemonic("abandon ability able", "")
	require.Len(t, base, mnemonicSeedSize)

	// Whitespace differences normalize away.
	spaced := SeedFromMnemonic("  abandon   ability\table ", "")
	require.Equal(t, base, spaced)

	// A passphrase changes the seed.
	other := SeedFromMnemonic("abandon ability able", "hunter2")
	require.NotEqual(t, base, other)
}
