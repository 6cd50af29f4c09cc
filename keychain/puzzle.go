// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keychain

import (
	"github.com/chia-network/go-chia-libs/pkg/types"

	"github.com/Kiwihealthcare-Network/kiwiwallet/clvm"
)

// paymentTemplate is the fixed ownership template every wallet key is curried
// into. The template is the pass-through program `1`: the solution it is run
// with is the condition list itself. Ownership is committed by currying the
// public key into the template, so each key yields a distinct puzzle hash,
// and the AGG_SIG_ME condition in every solution binds execution back to that
// key.
var paymentTemplate = clvm.Atom([]byte{0x01})

// paymentTemplateHash is the tree hash of paymentTemplate.
var paymentTemplateHash = paymentTemplate.TreeHash()

// PuzzleHashForPK returns the puzzle hash controlled by the given serialized
// G1 public key. The function is pure: it is the curried tree hash of the
// payment template with the public key as the sole curried argument.
func PuzzleHashForPK(pub []byte) types.Bytes32 {
	h := clvm.CurriedTreeHash(
		paymentTemplateHash, clvm.Atom(pub).TreeHash(),
	)
	return types.Bytes32(h)
}

// PuzzleReveal returns the serialized curried puzzle program for the given
// public key. Its tree hash always equals PuzzleHashForPK for the same key,
// which nodes verify before executing a spend.
func PuzzleReveal(pub []byte) []byte {
	return clvm.Curry(paymentTemplate, clvm.Atom(pub)).Serialize()
}
