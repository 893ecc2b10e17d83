package chaincode

import (
	"fmt"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// Score ingredients. A chain earns points for existing, for verifying clean,
// for volume and for recency; breakage costs points but never drops the
// score below zero.
const (
	scoreHasTransactions = 20
	scoreValidChain      = 30

	scoreVolumeHigh = 25 // >= 5 transactions
	scoreVolumeMid  = 15 // >= 3
	scoreVolumeLow  = 10 // >= 1

	scoreRecentDay  = 15 // verified within 24h
	scoreRecentWeek = 10 // verified within 7 days

	penaltyBrokenLinks   = 20
	penaltyInvalidHashes = 15

	scoreMax = 100

	daySeconds  = 24 * 60 * 60
	weekSeconds = 7 * daySeconds
)

// VerifyChain replays a donation's transaction log, caches the structured
// result and recomputes the transparency score.
func (s *SmartContract) VerifyChain(ctx contractapi.TransactionContextInterface, id string) (*VerificationResult, error) {
	if err := requireRole(ctx, RoleVerifier); err != nil {
		return nil, err
	}

	stub := ctx.GetStub()
	if _, err := getDonation(stub, id); err != nil {
		return nil, err
	}
	log, err := getLog(stub, id)
	if err != nil {
		return nil, err
	}

	now, err := txTime(stub)
	if err != nil {
		return nil, err
	}

	result := VerificationResult{
		DonationID:        id,
		TotalTransactions: len(log.Entries),
		Issues:            []string{},
		VerifiedAt:        now,
	}

	// Entry 0 has no predecessor and is trusted as the chain root.
	for i := 1; i < len(log.Entries); i++ {
		entry := log.Entries[i]
		if entry.PrevHash != log.Entries[i-1].TxHash {
			result.BrokenLinks++
			result.Issues = append(result.Issues, fmt.Sprintf("Broken link at transaction %d", i))
		}
		expected := chainHash(entry.DonationID, entry.Type, entry.ActorID, entry.Timestamp, entry.PrevHash)
		if entry.TxHash != expected {
			result.InvalidHashes++
			result.Issues = append(result.Issues, fmt.Sprintf("Invalid hash at transaction %d", i))
		}
	}
	result.IsValid = result.BrokenLinks == 0 && result.InvalidHashes == 0

	if err := putJSON(stub, resultKey(id), &result); err != nil {
		return nil, err
	}
	if err := incrementCounter(stub, verificationCountKey); err != nil {
		return nil, err
	}

	oldScore := 0
	var cached TransparencyScore
	if err := getJSON(stub, scoreKey(id), &cached); err != nil {
		return nil, err
	}
	if cached.DonationID != "" {
		oldScore = cached.Score
	}

	newScore := calculateTransparencyScore(&result, now)
	if err := putJSON(stub, scoreKey(id), &TransparencyScore{
		DonationID: id,
		Score:      newScore,
		UpdatedAt:  now,
	}); err != nil {
		return nil, err
	}

	if err := emitEvent(stub, EventChainVerified, ChainVerifiedEvent{
		DonationID:        id,
		IsValid:           result.IsValid,
		TotalTransactions: result.TotalTransactions,
		BrokenLinks:       result.BrokenLinks,
		InvalidHashes:     result.InvalidHashes,
		OldScore:          oldScore,
		NewScore:          newScore,
		Timestamp:         now,
	}); err != nil {
		return nil, err
	}

	return &result, nil
}

// GetVerificationResult returns the cached result of the last VerifyChain.
func (s *SmartContract) GetVerificationResult(ctx contractapi.TransactionContextInterface, id string) (*VerificationResult, error) {
	return getVerificationResult(ctx.GetStub(), id)
}

// GetTransparencyScore returns the cached transparency score.
func (s *SmartContract) GetTransparencyScore(ctx contractapi.TransactionContextInterface, id string) (*TransparencyScore, error) {
	var score TransparencyScore
	if err := getJSON(ctx.GetStub(), scoreKey(id), &score); err != nil {
		return nil, err
	}
	if score.DonationID == "" {
		return nil, fmt.Errorf("%w: no transparency score for donation %s", ErrNotFound, id)
	}
	return &score, nil
}

func getVerificationResult(stub shim.ChaincodeStubInterface, id string) (*VerificationResult, error) {
	var result VerificationResult
	if err := getJSON(stub, resultKey(id), &result); err != nil {
		return nil, err
	}
	if result.DonationID == "" {
		return nil, fmt.Errorf("%w: no verification result for donation %s", ErrNotFound, id)
	}
	return &result, nil
}

func calculateTransparencyScore(result *VerificationResult, now int64) int {
	score := 0

	if result.TotalTransactions > 0 {
		score += scoreHasTransactions
	}
	if result.IsValid {
		score += scoreValidChain
	}

	switch {
	case result.TotalTransactions >= 5:
		score += scoreVolumeHigh
	case result.TotalTransactions >= 3:
		score += scoreVolumeMid
	case result.TotalTransactions >= 1:
		score += scoreVolumeLow
	}

	age := now - result.VerifiedAt
	switch {
	case age < daySeconds:
		score += scoreRecentDay
	case age < weekSeconds:
		score += scoreRecentWeek
	}

	if result.BrokenLinks > 0 {
		score -= penaltyBrokenLinks
		if score < 0 {
			score = 0
		}
	}
	if result.InvalidHashes > 0 {
		score -= penaltyInvalidHashes
		if score < 0 {
			score = 0
		}
	}
	if score > scoreMax {
		score = scoreMax
	}
	return score
}
