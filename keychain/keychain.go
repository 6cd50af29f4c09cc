// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keychain derives the wallet's BLS key pairs and puzzle hashes.
// Derivation is deterministic: the seed and a derivation index are the sole
// inputs, so the same wallet can always be recovered from its seed alone.
package keychain

import (
	"sync"

	"github.com/chia-network/go-chia-libs/pkg/types"
	bls "github.com/chuwt/chia-bls-go"
	lru "github.com/hashicorp/golang-lru/v2"
)

// The wallet key derivation path m/12381/8444/2/index, per EIP-2333 with the
// blockchain and purpose numbers the reference wallet uses.
const (
	pathBLSSpec    = 12381
	pathBlockchain = 8444
	pathWallet     = 2
)

// keyPairCacheSize bounds the number of memoized key pairs. Derivation is
// pure, so eviction only costs a re-derivation.
const keyPairCacheSize = 2048

// KeyPair is a derived signing key together with its derivation index and the
// puzzle hash it controls.
type KeyPair struct {
	// Index is the derivation index under the wallet path.
	Index uint32

	// PrivateKey is the derived BLS secret key. It must never be logged
	// or persisted outside the signing session.
	PrivateKey bls.PrivateKey

	// PublicKey is the corresponding G1 public key.
	PublicKey bls.PublicKey

	// PuzzleHash commits to the payment puzzle owned by PublicKey and
	// serves as the spendable address.
	PuzzleHash types.Bytes32
}

// KeyRing derives and memoizes key pairs from a single master key. All
// methods are safe for concurrent use; derivation itself is pure, so racing
// callers at worst duplicate work.
type KeyRing struct {
	master bls.PrivateKey

	// pairs memoizes Derive results by index.
	pairs *lru.Cache[uint32, KeyPair]

	// mu guards the reverse index below.
	mu sync.RWMutex

	// byPuzzleHash maps a puzzle hash back to the derivation index that
	// produced it, for owner lookups during signing.
	byPuzzleHash map[types.Bytes32]uint32

	// nextIndex is one past the highest index registered via
	// EnsureIndexes.
	nextIndex uint32
}

// NewKeyRing creates a key ring from a wallet seed. It fails with
// ErrInvalidSeed when the seed does not validate.
func NewKeyRing(seed []byte) (*KeyRing, error) {
	if err := ValidateSeed(seed); err != nil {
		return nil, err
	}

	cache, err := lru.New[uint32, KeyPair](keyPairCacheSize)
	if err != nil {
		return nil, err
	}

	return &KeyRing{
		master:       bls.KeyGen(seed),
		pairs:        cache,
		byPuzzleHash: make(map[types.Bytes32]uint32),
	}, nil
}

// Derive returns the key pair at the given wallet derivation index. The
// result is deterministic and memoized; repeated calls with the same index
// yield byte-identical keys.
func (r *KeyRing) Derive(index uint32) KeyPair {
	if kp, ok := r.pairs.Get(index); ok {
		return kp
	}

	sk := r.master
	for _, step := range []uint32{
		pathBLSSpec, pathBlockchain, pathWallet, index,
	} {
		sk = bls.DeriveChildSk(sk, int(step))
	}

	pk := sk.GetPublicKey()
	kp := KeyPair{
		Index:      index,
		PrivateKey: sk,
		PublicKey:  pk,
		PuzzleHash: PuzzleHashForPK(pk.Bytes()),
	}

	r.pairs.Add(index, kp)

	r.mu.Lock()
	r.byPuzzleHash[kp.PuzzleHash] = index
	if index >= r.nextIndex {
		r.nextIndex = index + 1
	}
	r.mu.Unlock()

	return kp
}

// EnsureIndexes derives indexes [0, n) so that their puzzle hashes are
// resolvable via LookupPuzzleHash and included in PuzzleHashes.
func (r *KeyRing) EnsureIndexes(n uint32) {
	for i := uint32(0); i < n; i++ {
		r.Derive(i)
	}
	log.Debugf("Key ring tracking %d derivation indexes", n)
}

// LookupPuzzleHash maps a puzzle hash back to its key pair. The boolean is
// false when the puzzle hash belongs to no derived index, which indicates
// broken derivation-index tracking upstream.
func (r *KeyRing) LookupPuzzleHash(ph types.Bytes32) (KeyPair, bool) {
	r.mu.RLock()
	index, ok := r.byPuzzleHash[ph]
	r.mu.RUnlock()

	if !ok {
		return KeyPair{}, false
	}
	return r.Derive(index), true
}

// PuzzleHashes returns the puzzle hashes of every registered index, in index
// order. This is the watch set handed to the chain syncer.
func (r *KeyRing) PuzzleHashes() []types.Bytes32 {
	r.mu.RLock()
	n := r.nextIndex
	r.mu.RUnlock()

	hashes := make([]types.Bytes32, 0, n)
	for i := uint32(0); i < n; i++ {
		hashes = append(hashes, r.Derive(i).PuzzleHash)
	}
	return hashes
}
