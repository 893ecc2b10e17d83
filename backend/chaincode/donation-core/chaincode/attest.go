package chaincode

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/devprosvn/Ytili/backend/chaincode/donation-core/merkle"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// ProofEntry is the wire form of one merkle.ProofNode, hashes hex-encoded.
type ProofEntry struct {
	Hash string `json:"hash"`
	Left bool   `json:"left"`
}

// BatchVerify builds a Merkle tree over the verification outcomes of the
// given donations and stores the root as a batch attestation. Donations
// without a cached result are verified on the spot.
func (s *SmartContract) BatchVerify(ctx contractapi.TransactionContextInterface, donationIDs []string) (string, error) {
	if err := requireRole(ctx, RoleVerifier); err != nil {
		return "", err
	}
	if len(donationIDs) == 0 {
		return "", fmt.Errorf("%w: donation id list must not be empty", ErrInvalidArgument)
	}

	stub := ctx.GetStub()
	leaves := make([][]byte, 0, len(donationIDs))
	allValid := true
	for _, id := range donationIDs {
		result, err := getVerificationResult(stub, id)
		if errors.Is(err, ErrNotFound) {
			result, err = s.VerifyChain(ctx, id)
		}
		if err != nil {
			return "", err
		}
		if !result.IsValid {
			allValid = false
		}
		leaves = append(leaves, leafHash(result))
	}

	root, err := merkle.Root(leaves)
	if err != nil {
		return "", err
	}
	rootHex := hex.EncodeToString(root)

	// An identical batch reproduces an existing root; attestations are
	// immutable, so return it without rewriting.
	existing, err := stub.GetState(batchKey(rootHex))
	if err != nil {
		return "", fmt.Errorf("failed to read attestation: %v", err)
	}
	if existing != nil {
		return rootHex, nil
	}

	now, err := txTime(stub)
	if err != nil {
		return "", err
	}
	requestedBy, err := ctx.GetClientIdentity().GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get client identity: %v", err)
	}

	attestation := BatchAttestation{
		Root:        rootHex,
		DonationIDs: donationIDs,
		CreatedAt:   now,
		RequestedBy: requestedBy,
		AllValid:    allValid,
	}
	if err := putJSON(stub, batchKey(rootHex), &attestation); err != nil {
		return "", err
	}

	var roots rootList
	if err := getJSON(stub, rootListKey, &roots); err != nil {
		return "", err
	}
	roots.Roots = append(roots.Roots, rootHex)
	if err := putJSON(stub, rootListKey, &roots); err != nil {
		return "", err
	}

	if err := emitEvent(stub, EventBatchVerified, BatchVerifiedEvent{
		Root:        rootHex,
		DonationIDs: donationIDs,
		AllValid:    allValid,
		RequestedBy: requestedBy,
		Timestamp:   now,
	}); err != nil {
		return "", err
	}

	return rootHex, nil
}

// VerifyInclusion checks that a donation's current cached verification
// outcome is a leaf of the attestation identified by root. A proof derived
// before the donation was re-verified no longer validates, because the leaf
// digest it commits to has changed.
func (s *SmartContract) VerifyInclusion(ctx contractapi.TransactionContextInterface,
	donationID, root string, proof []ProofEntry) (bool, error) {

	stub := ctx.GetStub()
	if _, err := getAttestation(stub, root); err != nil {
		return false, err
	}
	result, err := getVerificationResult(stub, donationID)
	if err != nil {
		return false, err
	}

	rootBytes, err := hex.DecodeString(root)
	if err != nil {
		return false, fmt.Errorf("%w: root is not hex", ErrInvalidArgument)
	}
	nodes, err := decodeProof(proof)
	if err != nil {
		return false, err
	}

	return merkle.VerifyProof(leafHash(result), nodes, rootBytes), nil
}

// GetInclusionProof derives the sibling path of a donation inside an
// attestation from the batch's current leaf set.
func (s *SmartContract) GetInclusionProof(ctx contractapi.TransactionContextInterface,
	root, donationID string) ([]ProofEntry, error) {

	stub := ctx.GetStub()
	attestation, err := getAttestation(stub, root)
	if err != nil {
		return nil, err
	}

	index := -1
	leaves := make([][]byte, 0, len(attestation.DonationIDs))
	for i, id := range attestation.DonationIDs {
		result, err := getVerificationResult(stub, id)
		if err != nil {
			return nil, err
		}
		if id == donationID {
			index = i
		}
		leaves = append(leaves, leafHash(result))
	}
	if index < 0 {
		return nil, fmt.Errorf("%w: donation %s is not part of batch %s", ErrNotFound, donationID, root)
	}

	nodes, err := merkle.BuildProof(leaves, index)
	if err != nil {
		return nil, err
	}
	return encodeProof(nodes), nil
}

// GetBatchAttestation returns the attestation stored under the given root.
func (s *SmartContract) GetBatchAttestation(ctx contractapi.TransactionContextInterface, root string) (*BatchAttestation, error) {
	return getAttestation(ctx.GetStub(), root)
}

// ListBatchRoots enumerates every attestation root ever produced.
func (s *SmartContract) ListBatchRoots(ctx contractapi.TransactionContextInterface) ([]string, error) {
	var roots rootList
	if err := getJSON(ctx.GetStub(), rootListKey, &roots); err != nil {
		return nil, err
	}
	if roots.Roots == nil {
		roots.Roots = []string{}
	}
	return roots.Roots, nil
}

func getAttestation(stub shim.ChaincodeStubInterface, root string) (*BatchAttestation, error) {
	var attestation BatchAttestation
	if err := getJSON(stub, batchKey(root), &attestation); err != nil {
		return nil, err
	}
	if attestation.Root == "" {
		return nil, fmt.Errorf("%w: batch attestation %s", ErrNotFound, root)
	}
	return &attestation, nil
}

func decodeProof(proof []ProofEntry) ([]merkle.ProofNode, error) {
	nodes := make([]merkle.ProofNode, 0, len(proof))
	for _, entry := range proof {
		hash, err := hex.DecodeString(entry.Hash)
		if err != nil || len(hash) != merkle.HashSize {
			return nil, fmt.Errorf("%w: malformed proof entry", ErrInvalidArgument)
		}
		nodes = append(nodes, merkle.ProofNode{Hash: hash, Left: entry.Left})
	}
	return nodes, nil
}

func encodeProof(nodes []merkle.ProofNode) []ProofEntry {
	proof := make([]ProofEntry, 0, len(nodes))
	for _, node := range nodes {
		proof = append(proof, ProofEntry{Hash: hex.EncodeToString(node.Hash), Left: node.Left})
	}
	return proof
}
