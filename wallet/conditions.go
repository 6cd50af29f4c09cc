// Copyright (c) 2025 The kiwiwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"errors"
	"fmt"

	"github.com/chia-network/go-chia-libs/pkg/types"

	"github.com/Kiwihealthcare-Network/kiwiwallet/clvm"
	"github.com/Kiwihealthcare-Network/kiwiwallet/pkg/mojo"
)

// Condition opcodes used by the engine's solutions.
const (
	opcodeAggSigMe       uint64 = 50
	opcodeCreateCoin     uint64 = 51
	opcodeReserveFee     uint64 = 52
	opcodeAssertMyCoinID uint64 = 70
)

var (
	// ErrMalformedSolution is returned when a solution does not decode to
	// a well-formed condition list.
	ErrMalformedSolution = errors.New("malformed solution")

	// ErrUnknownCondition is returned when a solution carries a condition
	// opcode the engine does not produce.
	ErrUnknownCondition = errors.New("unknown condition opcode")
)

// Condition is one entry of a spend solution's condition list. It is a
// sealed interface: the engine only ever emits the four condition types
// below, and decoding rejects everything else.
type Condition interface {
	// isCondition is the sealed-interface marker.
	isCondition()

	// clvmValue encodes the condition as a CLVM list.
	clvmValue() *clvm.Value
}

// CreateCoin instructs the node to create a new coin with the given puzzle
// hash and amount.
type CreateCoin struct {
	PuzzleHash types.Bytes32
	Amount     mojo.Amount
}

// ReserveFee declares the portion of the spent value left unclaimed as the
// transaction fee.
type ReserveFee struct {
	Amount mojo.Amount
}

// AssertMyCoinID pins a solution to one specific coin, so it cannot be
// replayed against another coin under the same puzzle.
type AssertMyCoinID struct {
	CoinID types.Bytes32
}

// AggSigMe binds the spend's validity to a signature by PublicKey over
// Message, scoped to the coin and network by the signing-message
// construction.
type AggSigMe struct {
	PublicKey []byte
	Message   []byte
}

func (CreateCoin) isCondition()     {}
func (ReserveFee) isCondition()     {}
func (AssertMyCoinID) isCondition() {}
func (AggSigMe) isCondition()       {}

func (c CreateCoin) clvmValue() *clvm.Value {
	return clvm.List(
		clvm.IntAtom(opcodeCreateCoin),
		clvm.Atom(c.PuzzleHash[:]),
		clvm.IntAtom(uint64(c.Amount)),
	)
}

func (c ReserveFee) clvmValue() *clvm.Value {
	return clvm.List(
		clvm.IntAtom(opcodeReserveFee),
		clvm.IntAtom(uint64(c.Amount)),
	)
}

func (c AssertMyCoinID) clvmValue() *clvm.Value {
	return clvm.List(
		clvm.IntAtom(opcodeAssertMyCoinID),
		clvm.Atom(c.CoinID[:]),
	)
}

func (c AggSigMe) clvmValue() *clvm.Value {
	return clvm.List(
		clvm.IntAtom(opcodeAggSigMe),
		clvm.Atom(c.PublicKey),
		clvm.Atom(c.Message),
	)
}

// A compile-time assertion to ensure that all condition types implement the
// Condition interface.
var (
	_ Condition = CreateCoin{}
	_ Condition = ReserveFee{}
	_ Condition = AssertMyCoinID{}
	_ Condition = AggSigMe{}
)

// conditionsValue encodes a condition list as a CLVM proper list.
func conditionsValue(conds []Condition) *clvm.Value {
	items := make([]*clvm.Value, len(conds))
	for i, c := range conds {
		items[i] = c.clvmValue()
	}
	return clvm.List(items...)
}

// conditionsTreeHash is the tree hash of the encoded condition list. It is
// the message component of the AGG_SIG_ME binding.
func conditionsTreeHash(conds []Condition) [32]byte {
	return conditionsValue(conds).TreeHash()
}

// MarshalSolution serializes a condition list into a spend solution.
func MarshalSolution(conds []Condition) []byte {
	return conditionsValue(conds).Serialize()
}

// ParseSolution decodes a spend solution back into its condition list. It is
// the inverse of MarshalSolution and is what bundle validation and tests use
// to re-evaluate a spend's effects.
func ParseSolution(solution []byte) ([]Condition, error) {
	v, err := clvm.Parse(solution)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSolution, err)
	}

	items, err := v.ListItems()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSolution, err)
	}

	conds := make([]Condition, 0, len(items))
	for i, item := range items {
		cond, err := parseCondition(item)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

// parseCondition decodes a single condition list entry.
func parseCondition(v *clvm.Value) (Condition, error) {
	fields, err := v.ListItems()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSolution, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty condition",
			ErrMalformedSolution)
	}
	for _, f := range fields {
		if !f.IsAtom() {
			return nil, fmt.Errorf("%w: non-atom field",
				ErrMalformedSolution)
		}
	}

	opcode, err := clvm.IntFromBytes(fields[0].Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSolution, err)
	}

	switch opcode {
	case opcodeCreateCoin:
		if len(fields) != 3 {
			return nil, malformedArity("CREATE_COIN", fields)
		}
		ph, err := atomBytes32(fields[1])
		if err != nil {
			return nil, err
		}
		amount, err := clvm.IntFromBytes(fields[2].Bytes())
		if err != nil {
			return nil, fmt.Errorf("%w: %v",
				ErrMalformedSolution, err)
		}
		return CreateCoin{
			PuzzleHash: ph,
			Amount:     mojo.Amount(amount),
		}, nil

	case opcodeReserveFee:
		if len(fields) != 2 {
			return nil, malformedArity("RESERVE_FEE", fields)
		}
		amount, err := clvm.IntFromBytes(fields[1].Bytes())
		if err != nil {
			return nil, fmt.Errorf("%w: %v",
				ErrMalformedSolution, err)
		}
		return ReserveFee{Amount: mojo.Amount(amount)}, nil

	case opcodeAssertMyCoinID:
		if len(fields) != 2 {
			return nil, malformedArity("ASSERT_MY_COIN_ID",
				fields)
		}
		id, err := atomBytes32(fields[1])
		if err != nil {
			return nil, err
		}
		return AssertMyCoinID{CoinID: id}, nil

	case opcodeAggSigMe:
		if len(fields) != 3 {
			return nil, malformedArity("AGG_SIG_ME", fields)
		}
		return AggSigMe{
			PublicKey: fields[1].Bytes(),
			Message:   fields[2].Bytes(),
		}, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCondition, opcode)
	}
}

func malformedArity(name string, fields []*clvm.Value) error {
	return fmt.Errorf("%w: %s with %d fields", ErrMalformedSolution,
		name, len(fields))
}

func atomBytes32(v *clvm.Value) (types.Bytes32, error) {
	b := v.Bytes()
	if len(b) != 32 {
		return types.Bytes32{}, fmt.Errorf("%w: hash field is %d "+
			"bytes, want 32", ErrMalformedSolution, len(b))
	}
	var out types.Bytes32
	copy(out[:], b)
	return out, nil
}
