package chaincode

import (
	"encoding/json"

	"github.com/hyperledger/fabric-chaincode-go/shim"
)

// Chaincode event names. Fabric delivers the last SetEvent of a transaction,
// so each operation emits exactly one composite event.
const (
	EventDonationRecorded = "DonationRecorded"
	EventStatusUpdated    = "StatusUpdated"
	EventDonationMatched  = "DonationMatched"
	EventChainVerified    = "ChainVerified"
	EventBatchVerified    = "BatchVerified"
)

// DonationRecordedEvent is emitted by RecordDonation
type DonationRecordedEvent struct {
	DonationID string `json:"donation_id"`
	DonorID    string `json:"donor_id"`
	Kind       string `json:"kind"`
	TxHash     string `json:"tx_hash"` // Hash of log entry 0
	Timestamp  int64  `json:"timestamp"`
}

// StatusUpdatedEvent is emitted by UpdateDonationStatus
type StatusUpdatedEvent struct {
	DonationID string `json:"donation_id"`
	OldStatus  string `json:"old_status"`
	NewStatus  string `json:"new_status"`
	ActorID    string `json:"actor_id"`
	TxHash     string `json:"tx_hash"`
	Timestamp  int64  `json:"timestamp"`
}

// DonationMatchedEvent is emitted by MatchDonation
type DonationMatchedEvent struct {
	DonationID  string `json:"donation_id"`
	RecipientID string `json:"recipient_id"`
	ActorID     string `json:"actor_id"`
	TxHash      string `json:"tx_hash"`
	Timestamp   int64  `json:"timestamp"`
}

// ChainVerifiedEvent is emitted by VerifyChain and carries the score change
type ChainVerifiedEvent struct {
	DonationID        string `json:"donation_id"`
	IsValid           bool   `json:"is_valid"`
	TotalTransactions int    `json:"total_transactions"`
	BrokenLinks       int    `json:"broken_links"`
	InvalidHashes     int    `json:"invalid_hashes"`
	OldScore          int    `json:"old_score"`
	NewScore          int    `json:"new_score"`
	Timestamp         int64  `json:"timestamp"`
}

// BatchVerifiedEvent is emitted by BatchVerify
type BatchVerifiedEvent struct {
	Root        string   `json:"root"`
	DonationIDs []string `json:"donation_ids"`
	AllValid    bool     `json:"all_valid"`
	RequestedBy string   `json:"requested_by"`
	Timestamp   int64    `json:"timestamp"`
}

func emitEvent(stub shim.ChaincodeStubInterface, name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return stub.SetEvent(name, data)
}
