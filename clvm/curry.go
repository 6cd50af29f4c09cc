// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package clvm

// Operator atoms used by the curry form. The apply, quote and cons operators
// serialize as the single-byte atoms 2, 1 and 4.
var (
	opApply = []byte{0x02}
	opQuote = []byte{0x01}
	opCons  = []byte{0x04}
)

// Curry binds args into mod, producing the standard curried form
//
//	(a (q . mod) (c (q . arg1) (c (q . arg2) ... 1)))
//
// so that running the result applies mod with the bound arguments prepended
// to the solution environment.
func Curry(mod *Value, args ...*Value) *Value {
	env := Atom(opQuote) // the trailing `1`, passing the solution through
	for i := len(args) - 1; i >= 0; i-- {
		quoted := Pair(Atom(opQuote), args[i])
		env = List(Atom(opCons), quoted, env)
	}
	return List(Atom(opApply), Pair(Atom(opQuote), mod), env)
}

// CurriedTreeHash computes the tree hash of Curry(mod, args...) from the tree
// hashes alone, without materializing the curried program. This mirrors the
// chialisp curry_and_treehash construction and is what makes puzzle-hash
// derivation cheap for every key index.
func CurriedTreeHash(modHash [32]byte, argHashes ...[32]byte) [32]byte {
	var (
		apply = hashAtom(opApply)
		quote = hashAtom(opQuote)
		cons  = hashAtom(opCons)
		nilh  = hashAtom(nil)
	)

	env := quote
	for i := len(argHashes) - 1; i >= 0; i-- {
		quotedArg := hashPair(quote, argHashes[i])
		env = hashPair(cons,
			hashPair(quotedArg, hashPair(env, nilh)))
	}

	quotedMod := hashPair(quote, modHash)
	return hashPair(apply,
		hashPair(quotedMod, hashPair(env, nilh)))
}
