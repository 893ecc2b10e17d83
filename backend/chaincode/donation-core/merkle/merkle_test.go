package merkle

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLeaves(n int) [][]byte {
	leaves := make([][]byte, n)
	for i := range leaves {
		sum := sha256.Sum256([]byte{byte(i)})
		leaves[i] = sum[:]
	}
	return leaves
}

func pair(left, right []byte) []byte {
	h := sha256.New()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

func TestRootEmpty(t *testing.T) {
	_, err := Root(nil)
	assert.ErrorIs(t, err, ErrNoLeaves)
}

func TestRootRejectsNonDigestLeaf(t *testing.T) {
	_, err := Root([][]byte{[]byte("short")})
	assert.ErrorIs(t, err, ErrLeafSize)
}

func TestRootSingleLeaf(t *testing.T) {
	leaves := testLeaves(1)
	root, err := Root(leaves)
	require.NoError(t, err)
	assert.Equal(t, leaves[0], root)
}

func TestRootTwoLeaves(t *testing.T) {
	leaves := testLeaves(2)
	root, err := Root(leaves)
	require.NoError(t, err)
	assert.Equal(t, pair(leaves[0], leaves[1]), root)
}

func TestRootThreeLeavesCarriesLast(t *testing.T) {
	leaves := testLeaves(3)
	root, err := Root(leaves)
	require.NoError(t, err)

	// Level 1: [H(l0||l1), l2]   (l2 carried, not duplicated)
	// Root:    H(H(l0||l1) || l2)
	expected := pair(pair(leaves[0], leaves[1]), leaves[2])
	assert.Equal(t, expected, root)
}

func TestRootFiveLeavesCarriesThroughLevels(t *testing.T) {
	leaves := testLeaves(5)
	root, err := Root(leaves)
	require.NoError(t, err)

	// Level 1: [H(l0||l1), H(l2||l3), l4]
	// Level 2: [H(H(l0||l1)||H(l2||l3)), l4]
	// Root:    H(level2[0] || l4)
	n01 := pair(leaves[0], leaves[1])
	n23 := pair(leaves[2], leaves[3])
	expected := pair(pair(n01, n23), leaves[4])
	assert.Equal(t, expected, root)
}

func TestProofRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 16, 31} {
		leaves := testLeaves(n)
		root, err := Root(leaves)
		require.NoError(t, err)

		for i := range leaves {
			proof, err := BuildProof(leaves, i)
			require.NoError(t, err, "n=%d i=%d", n, i)
			assert.True(t, VerifyProof(leaves[i], proof, root), "n=%d i=%d", n, i)
		}
	}
}

func TestProofSingleLeafIsEmpty(t *testing.T) {
	leaves := testLeaves(1)
	proof, err := BuildProof(leaves, 0)
	require.NoError(t, err)
	assert.Empty(t, proof)
}

func TestProofCarriedLeafSkipsLevel(t *testing.T) {
	leaves := testLeaves(5)
	proof, err := BuildProof(leaves, 4)
	require.NoError(t, err)
	// l4 is carried through two levels and paired only at the top
	require.Len(t, proof, 1)
	assert.True(t, proof[0].Left)
}

func TestProofWrongLeafFails(t *testing.T) {
	leaves := testLeaves(4)
	root, err := Root(leaves)
	require.NoError(t, err)

	proof, err := BuildProof(leaves, 1)
	require.NoError(t, err)
	assert.False(t, VerifyProof(leaves[2], proof, root))
}

func TestProofIndexOutOfRange(t *testing.T) {
	leaves := testLeaves(3)
	_, err := BuildProof(leaves, 3)
	assert.ErrorIs(t, err, ErrLeafIndex)
	_, err = BuildProof(leaves, -1)
	assert.ErrorIs(t, err, ErrLeafIndex)
}

func TestProofOrderSensitivity(t *testing.T) {
	leaves := testLeaves(2)
	root, err := Root(leaves)
	require.NoError(t, err)

	proof, err := BuildProof(leaves, 0)
	require.NoError(t, err)
	require.Len(t, proof, 1)
	assert.False(t, proof[0].Left)

	// Flipping the side must change the computed root
	flipped := []ProofNode{{Hash: proof[0].Hash, Left: true}}
	assert.False(t, VerifyProof(leaves[0], flipped, root))
}
