// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/chia-network/go-chia-libs/pkg/types"
	bls "github.com/chuwt/chia-bls-go"

	"github.com/Kiwihealthcare-Network/kiwiwallet/coinstore"
)

var (
	// ErrMissingAggSig is returned when a coin spend's solution carries no
	// AGG_SIG_ME condition, leaving nothing to sign.
	ErrMissingAggSig = errors.New("solution has no AGG_SIG_ME condition")

	// ErrKeyMismatch is returned when the public key announced in a
	// spend's AGG_SIG_ME condition is not the key that controls the
	// coin's puzzle hash.
	ErrKeyMismatch = errors.New("AGG_SIG_ME key does not own the coin")

	// ErrSignatureLength is returned when the BLS backend produces an
	// aggregate of unexpected size.
	ErrSignatureLength = errors.New("unexpected aggregate signature length")
)

// SignatureAggregator produces the single aggregated BLS signature covering
// every coin spend in a bundle. Signing uses the augmented scheme; each
// spend's message is its declared condition hash, domain-separated by coin ID
// and the network's genesis challenge so a signature can never be replayed on
// another coin or another network.
type SignatureAggregator struct {
	keys             KeySource
	genesisChallenge types.Bytes32
}

// NewSignatureAggregator creates an aggregator signing for the network
// identified by the given genesis challenge.
func NewSignatureAggregator(keys KeySource,
	genesisChallenge types.Bytes32) *SignatureAggregator {

	return &SignatureAggregator{
		keys:             keys,
		genesisChallenge: genesisChallenge,
	}
}

// Sign signs every coin spend and aggregates the signatures into one G2
// element. Each spend is signed by the key controlling its puzzle hash; the
// message is taken from the spend's own AGG_SIG_ME condition, so what is
// signed is exactly what the solution declares.
func (a *SignatureAggregator) Sign(
	spends []types.CoinSpend) (types.G2Element, error) {

	scheme := bls.AugSchemeMPL{}
	sigs := make([][]byte, 0, len(spends))

	for _, sp := range spends {
		aggSig, err := aggSigCondition(sp)
		if err != nil {
			return types.G2Element{}, err
		}

		kp, ok := a.keys.LookupPuzzleHash(sp.Coin.PuzzleHash)
		if !ok {
			return types.G2Element{}, fmt.Errorf("%w: %x",
				ErrUnknownOwner, sp.Coin.PuzzleHash[:8])
		}
		coinID := coinstore.CoinID(sp.Coin)
		if !bytes.Equal(aggSig.PublicKey, kp.PublicKey.Bytes()) {
			return types.G2Element{}, fmt.Errorf("%w: coin %x",
				ErrKeyMismatch, coinID[:8])
		}

		msg := a.SigningMessage(aggSig.Message, coinID)
		sigs = append(sigs, scheme.Sign(kp.PrivateKey, msg))
	}

	agg, err := scheme.Aggregate(sigs...)
	if err != nil {
		return types.G2Element{}, fmt.Errorf("aggregate %d "+
			"signatures: %w", len(sigs), err)
	}

	var out types.G2Element
	if len(agg) != len(out) {
		return types.G2Element{}, fmt.Errorf("%w: %d bytes",
			ErrSignatureLength, len(agg))
	}
	copy(out[:], agg)

	log.Debugf("Aggregated %d spend signatures", len(sigs))
	return out, nil
}

// SigningMessage builds the exact byte string a spend's signature covers:
// the condition-list hash, the coin ID and the genesis challenge.
func (a *SignatureAggregator) SigningMessage(condMsg []byte,
	coinID types.Bytes32) []byte {

	msg := make([]byte, 0, len(condMsg)+64)
	msg = append(msg, condMsg...)
	msg = append(msg, coinID[:]...)
	msg = append(msg, a.genesisChallenge[:]...)
	return msg
}

// Verify checks the aggregated signature of a bundle against the messages
// and keys its coin spends declare. It mirrors the node-side check and is
// primarily a self-check before submission.
func (a *SignatureAggregator) Verify(bundle types.SpendBundle) (bool, error) {
	var (
		scheme bls.AugSchemeMPL
		pks    [][]byte
		msgs   [][]byte
	)

	for _, sp := range bundle.CoinSpends {
		aggSig, err := aggSigCondition(sp)
		if err != nil {
			return false, err
		}

		// AggregateVerify consumes serialized keys; decode first so a
		// malformed condition key surfaces as an error rather than a
		// silent verification failure.
		if _, err := bls.NewPublicKey(aggSig.PublicKey); err != nil {
			return false, fmt.Errorf("decode condition key: %w",
				err)
		}

		pks = append(pks, aggSig.PublicKey)
		msgs = append(msgs, a.SigningMessage(
			aggSig.Message, coinstore.CoinID(sp.Coin),
		))
	}

	sig := bundle.AggregatedSignature
	return scheme.AggregateVerify(pks, msgs, sig[:]), nil
}

// aggSigCondition extracts the single AGG_SIG_ME condition from a spend's
// solution.
func aggSigCondition(sp types.CoinSpend) (AggSigMe, error) {
	coinID := coinstore.CoinID(sp.Coin)

	conds, err := ParseSolution(sp.Solution)
	if err != nil {
		return AggSigMe{}, fmt.Errorf("coin %x: %w", coinID[:8], err)
	}

	for _, c := range conds {
		if aggSig, ok := c.(AggSigMe); ok {
			return aggSig, nil
		}
	}
	return AggSigMe{}, fmt.Errorf("%w: coin %x", ErrMissingAggSig,
		coinID[:8])
}
