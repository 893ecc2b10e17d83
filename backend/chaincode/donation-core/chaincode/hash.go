package chaincode

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// chainHash is the digest stored in Transaction.TxHash. The field order and
// separator are fixed: changing either breaks every previously recorded chain.
func chainHash(donationID, txType, actorID string, timestamp int64, prevHash string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%s",
		donationID, txType, actorID, timestamp, prevHash)))
	return hex.EncodeToString(sum[:])
}

// leafHash is the Merkle leaf digest of one donation's verification outcome.
func leafHash(r *VerificationResult) []byte {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%t|%d|%d",
		r.DonationID, r.IsValid, r.TotalTransactions, r.VerifiedAt)))
	return sum[:]
}
