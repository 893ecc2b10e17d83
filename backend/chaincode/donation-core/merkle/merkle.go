// Package merkle builds binary hash trees over verification-outcome leaves
// and derives inclusion proofs against their roots.
//
// Odd levels use a carry-up rule: an unpaired last node moves to the next
// level unchanged, it is neither duplicated nor hashed with itself. Roots are
// only comparable between implementations that share this rule.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
)

// HashSize is the digest size of tree nodes in bytes.
const HashSize = sha256.Size

var (
	ErrNoLeaves  = errors.New("merkle: no leaves")
	ErrLeafIndex = errors.New("merkle: leaf index out of range")
	ErrLeafSize  = errors.New("merkle: leaf is not a digest")
)

// ProofNode is one sibling step of an inclusion proof. Left reports whether
// the sibling sits left of the running hash; concatenation order matters.
type ProofNode struct {
	Hash []byte `json:"hash"`
	Left bool   `json:"left"`
}

func combine(left, right []byte) []byte {
	h := sha256.New()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

func nextLevel(level [][]byte) [][]byte {
	next := make([][]byte, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		if i+1 == len(level) {
			// Unpaired last node carries up unchanged
			next = append(next, level[i])
			break
		}
		next = append(next, combine(level[i], level[i+1]))
	}
	return next
}

func checkLeaves(leaves [][]byte) error {
	if len(leaves) == 0 {
		return ErrNoLeaves
	}
	for _, leaf := range leaves {
		if len(leaf) != HashSize {
			return ErrLeafSize
		}
	}
	return nil
}

// Root computes the Merkle root of the given leaf digests. A single leaf is
// its own root.
func Root(leaves [][]byte) ([]byte, error) {
	if err := checkLeaves(leaves); err != nil {
		return nil, err
	}
	level := leaves
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0], nil
}

// BuildProof derives the sibling path for leaves[index]. Levels where the
// node was carried up contribute no proof node.
func BuildProof(leaves [][]byte, index int) ([]ProofNode, error) {
	if err := checkLeaves(leaves); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(leaves) {
		return nil, ErrLeafIndex
	}

	proof := []ProofNode{}
	level := leaves
	idx := index
	for len(level) > 1 {
		sibling := idx ^ 1
		if sibling < len(level) {
			proof = append(proof, ProofNode{
				Hash: level[sibling],
				Left: sibling < idx,
			})
		}
		level = nextLevel(level)
		idx /= 2
	}
	return proof, nil
}

// VerifyProof folds the sibling path over the leaf and compares to root.
func VerifyProof(leaf []byte, proof []ProofNode, root []byte) bool {
	current := leaf
	for _, node := range proof {
		if node.Left {
			current = combine(node.Hash, current)
		} else {
			current = combine(current, node.Hash)
		}
	}
	return bytes.Equal(current, root)
}
