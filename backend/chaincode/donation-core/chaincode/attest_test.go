package chaincode

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchVerifyLazyVerification(t *testing.T) {
	contract := &SmartContract{}
	ctx, stub := newVerifierContext(t, contract)
	seedDonation(t, contract, ctx, "D1", 2)
	seedDonation(t, contract, ctx, "D2", 1)

	// D1 verified ahead of time, D2 never
	_, err := contract.VerifyChain(ctx, "D1")
	require.NoError(t, err)

	root, err := contract.BatchVerify(ctx, []string{"D1", "D2"})
	require.NoError(t, err)
	require.NotEmpty(t, root)

	// D2 was verified lazily
	result, err := contract.GetVerificationResult(ctx, "D2")
	require.NoError(t, err)
	assert.True(t, result.IsValid)

	attestation, err := contract.GetBatchAttestation(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"D1", "D2"}, attestation.DonationIDs)
	assert.True(t, attestation.AllValid)
	assert.NotEmpty(t, attestation.RequestedBy)

	roots, err := contract.ListBatchRoots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{root}, roots)

	var event BatchVerifiedEvent
	require.NoError(t, json.Unmarshal(stub.events[EventBatchVerified], &event))
	assert.Equal(t, root, event.Root)
}

func TestBatchVerifyValidation(t *testing.T) {
	contract := &SmartContract{}
	ctx, _ := newVerifierContext(t, contract)

	_, err := contract.BatchVerify(ctx, []string{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = contract.BatchVerify(ctx, []string{"missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	seedDonation(t, contract, ctx, "D1", 1)
	asRole(ctx, RoleRecorder)
	_, err = contract.BatchVerify(ctx, []string{"D1"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestBatchVerifyAggregateValidity(t *testing.T) {
	contract := &SmartContract{}
	ctx, stub := newVerifierContext(t, contract)
	seedDonation(t, contract, ctx, "D1", 2)
	seedDonation(t, contract, ctx, "D2", 3)

	corruptLog(t, stub, "D2", func(log *TransactionLog) {
		log.Entries[1].ActorID = "impostor"
	})

	root, err := contract.BatchVerify(ctx, []string{"D1", "D2"})
	require.NoError(t, err)

	attestation, err := contract.GetBatchAttestation(ctx, root)
	require.NoError(t, err)
	assert.False(t, attestation.AllValid)
}

func TestBatchVerifyIdempotentRoot(t *testing.T) {
	contract := &SmartContract{}
	ctx, _ := newVerifierContext(t, contract)
	seedDonation(t, contract, ctx, "D1", 2)

	first, err := contract.BatchVerify(ctx, []string{"D1"})
	require.NoError(t, err)
	second, err := contract.BatchVerify(ctx, []string{"D1"})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	roots, err := contract.ListBatchRoots(ctx)
	require.NoError(t, err)
	assert.Len(t, roots, 1)
}

func TestSingleLeafRootIsLeaf(t *testing.T) {
	contract := &SmartContract{}
	ctx, _ := newVerifierContext(t, contract)
	seedDonation(t, contract, ctx, "D1", 1)

	root, err := contract.BatchVerify(ctx, []string{"D1"})
	require.NoError(t, err)

	result, err := contract.GetVerificationResult(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(leafHash(result)), root)
}

func TestOddBatchCarriesLastLeaf(t *testing.T) {
	contract := &SmartContract{}
	ctx, _ := newVerifierContext(t, contract)
	ids := []string{"D1", "D2", "D3"}
	for _, id := range ids {
		seedDonation(t, contract, ctx, id, 1)
	}

	root, err := contract.BatchVerify(ctx, ids)
	require.NoError(t, err)

	// Reference computation of the carry-up rule over three leaves:
	// root = H(H(l0||l1) || l2)
	leaves := make([][]byte, 0, 3)
	for _, id := range ids {
		result, err := contract.GetVerificationResult(ctx, id)
		require.NoError(t, err)
		leaves = append(leaves, leafHash(result))
	}
	left := sha256.Sum256(append(append([]byte{}, leaves[0]...), leaves[1]...))
	expected := sha256.Sum256(append(append([]byte{}, left[:]...), leaves[2]...))
	assert.Equal(t, hex.EncodeToString(expected[:]), root)
}

func TestInclusionProofRoundTrip(t *testing.T) {
	contract := &SmartContract{}
	ctx, _ := newVerifierContext(t, contract)
	ids := []string{"D1", "D2", "D3", "D4", "D5"}
	for _, id := range ids {
		seedDonation(t, contract, ctx, id, 2)
	}

	root, err := contract.BatchVerify(ctx, ids)
	require.NoError(t, err)

	for _, id := range ids {
		proof, err := contract.GetInclusionProof(ctx, root, id)
		require.NoError(t, err, "proof for %s", id)

		ok, err := contract.VerifyInclusion(ctx, id, root, proof)
		require.NoError(t, err)
		assert.True(t, ok, "inclusion of %s", id)
	}

	// A proof for one donation must not validate another
	proof, err := contract.GetInclusionProof(ctx, root, "D1")
	require.NoError(t, err)
	ok, err := contract.VerifyInclusion(ctx, "D2", root, proof)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInclusionProofInvalidatedByReverification(t *testing.T) {
	contract := &SmartContract{}
	ctx, _ := newVerifierContext(t, contract)
	seedDonation(t, contract, ctx, "D1", 1)
	seedDonation(t, contract, ctx, "D2", 1)

	root, err := contract.BatchVerify(ctx, []string{"D1", "D2"})
	require.NoError(t, err)
	proof, err := contract.GetInclusionProof(ctx, root, "D1")
	require.NoError(t, err)

	// Growing and re-verifying D1 changes its leaf digest
	asRole(ctx, RoleRecorder)
	require.NoError(t, contract.UpdateDonationStatus(ctx, "D1", StatusVerified, "verifier-1", "verifier", ""))
	asRole(ctx, RoleVerifier)
	_, err = contract.VerifyChain(ctx, "D1")
	require.NoError(t, err)

	ok, err := contract.VerifyInclusion(ctx, "D1", root, proof)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyInclusionErrors(t *testing.T) {
	contract := &SmartContract{}
	ctx, _ := newVerifierContext(t, contract)
	seedDonation(t, contract, ctx, "D1", 1)

	_, err := contract.VerifyInclusion(ctx, "D1", "deadbeef", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	root, err := contract.BatchVerify(ctx, []string{"D1"})
	require.NoError(t, err)

	_, err = contract.VerifyInclusion(ctx, "never-verified", root, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = contract.VerifyInclusion(ctx, "D1", root, []ProofEntry{{Hash: "zz", Left: false}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = contract.GetInclusionProof(ctx, root, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
