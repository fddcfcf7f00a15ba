package merkle

import (
	"github.com/quietridge/merklesentry/internal/apperr"
	"github.com/quietridge/merklesentry/internal/hashutil"
)

// Position names the side a proof step's sibling hash sits on, relative to
// the running hash during verification.
type Position string

const (
	PositionLeft  Position = "left"
	PositionRight Position = "right"
)

// Step is one hop of an inclusion proof.
type Step struct {
	SiblingHash hashutil.Hash `json:"siblingHash"`
	Position    Position      `json:"position"`
}

// Proof is the ordered sequence of Steps from a leaf to the root.
type Proof []Step

// Prove builds an inclusion proof for target (hashed the same way the tree's
// leaves were, per mode). It returns apperr KindNotFound if target isn't
// among the tree's leaves.
func (t *Tree) Prove(target string, mode Mode) (Proof, error) {
	targetHash, err := leafHash(target, mode)
	if err != nil {
		return nil, err
	}

	leaves := t.Leaves()
	idx := -1
	for i, nodeIdx := range leaves {
		if t.arena[nodeIdx].Hash == targetHash {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, apperr.New(apperr.KindNotFound, "merkle.Prove", nil)
	}

	var proof Proof
	current := idx
	for level := 0; level < len(t.Levels)-1; level++ {
		nodes := t.Levels[level]
		isRight := current%2 == 1
		siblingIdx := current + 1
		if isRight {
			siblingIdx = current - 1
		}

		var step Step
		if siblingIdx >= 0 && siblingIdx < len(nodes) {
			step = Step{SiblingHash: t.arena[nodes[siblingIdx]].Hash, Position: sidePosition(isRight)}
		} else {
			// Odd tail: the sibling is the duplicated last node itself.
			step = Step{SiblingHash: t.arena[nodes[current]].Hash, Position: sidePosition(isRight)}
		}
		proof = append(proof, step)
		current /= 2
	}
	return proof, nil
}

func sidePosition(isRight bool) Position {
	if isRight {
		return PositionLeft
	}
	return PositionRight
}

// Verify recomputes the root hash for target by walking proof and reports
// whether it equals expectedRoot. It is a pure function over hex strings and
// never touches storage.
func Verify(target string, proof Proof, expectedRoot hashutil.Hash, mode Mode) (bool, error) {
	h, err := leafHash(target, mode)
	if err != nil {
		return false, err
	}
	for _, step := range proof {
		if step.Position == PositionLeft {
			h = hashutil.HashConcat(step.SiblingHash, h)
		} else {
			h = hashutil.HashConcat(h, step.SiblingHash)
		}
	}
	return h == expectedRoot, nil
}
