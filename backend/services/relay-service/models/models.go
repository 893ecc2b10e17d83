package models

import "time"

// Donation is the off-chain mirror of the on-chain record
type Donation struct {
	ID          string    `json:"id"`
	DonorID     string    `json:"donor_id"`
	RecipientID string    `json:"recipient_id,omitempty"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount,omitempty"`
	ItemName    string    `json:"item_name,omitempty"`
	Quantity    int64     `json:"quantity,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	Status      string    `json:"status"`
	MetadataRef string    `json:"metadata_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChainEvent is one ingested chaincode notification
type ChainEvent struct {
	ID          int64     `json:"id"`
	EventName   string    `json:"event_name"`
	DonationID  string    `json:"donation_id,omitempty"`
	TxID        string    `json:"tx_id"`
	BlockNumber uint64    `json:"block_number"`
	Payload     string    `json:"payload"`
	ReceivedAt  time.Time `json:"received_at"`
}

type CreateDonationRequest struct {
	ID          string `json:"id,omitempty"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Amount      int64  `json:"amount,omitempty"`
	ItemName    string `json:"item_name,omitempty"`
	Quantity    int64  `json:"quantity,omitempty"`
	Unit        string `json:"unit,omitempty"`
	MetadataRef string `json:"metadata_ref,omitempty"`
}

type UpdateStatusRequest struct {
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
}

type MatchRequest struct {
	RecipientID string `json:"recipient_id"`
}

type BatchAttestRequest struct {
	DonationIDs []string `json:"donation_ids"`
}

type InclusionRequest struct {
	DonationID string       `json:"donation_id"`
	Proof      []ProofEntry `json:"proof"`
}

// ProofEntry mirrors the chaincode proof wire format
type ProofEntry struct {
	Hash string `json:"hash"`
	Left bool   `json:"left"`
}
