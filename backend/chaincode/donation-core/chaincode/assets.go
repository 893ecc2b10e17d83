package chaincode

// Donation is the on-chain record of a single donation
type Donation struct {
	ID          string `json:"id"`
	DonorID     string `json:"donor_id"`
	RecipientID string `json:"recipient_id"` // Empty until matched
	Kind        string `json:"kind"`         // medication, medical_supply, food, cash
	Title       string `json:"title"`
	Description string `json:"description"`
	Amount      int64  `json:"amount,omitempty"` // Monetary donations only
	ItemName    string `json:"item_name,omitempty"`
	Quantity    int64  `json:"quantity,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
	MetadataRef string `json:"metadata_ref,omitempty"` // Off-chain content hash
}

// Transaction is one entry in a donation's hash-chained audit log
type Transaction struct {
	DonationID  string `json:"donation_id"`
	Type        string `json:"type"` // donation_created, status_changed_to_*, donation_matched
	Description string `json:"description"`
	ActorID     string `json:"actor_id"`
	ActorRole   string `json:"actor_role"`
	Timestamp   int64  `json:"timestamp"`
	MetadataRef string `json:"metadata_ref,omitempty"`
	PrevHash    string `json:"prev_hash"` // Empty for entry 0
	TxHash      string `json:"tx_hash"`
}

// TransactionLog holds a donation's full append-only log as one state document
type TransactionLog struct {
	DonationID string        `json:"donation_id"`
	Entries    []Transaction `json:"entries"`
}

// VerificationResult is the cached outcome of replaying one donation's chain
type VerificationResult struct {
	DonationID        string   `json:"donation_id"`
	IsValid           bool     `json:"is_valid"`
	TotalTransactions int      `json:"total_transactions"`
	BrokenLinks       int      `json:"broken_links"`
	InvalidHashes     int      `json:"invalid_hashes"`
	Issues            []string `json:"issues"`
	VerifiedAt        int64    `json:"verified_at"`
}

// TransparencyScore is the derived 0-100 trust score for a donation
type TransparencyScore struct {
	DonationID string `json:"donation_id"`
	Score      int    `json:"score"`
	UpdatedAt  int64  `json:"updated_at"`
}

// BatchAttestation summarizes one Merkle batch over verification outcomes
type BatchAttestation struct {
	Root        string   `json:"root"` // Hex Merkle root, also the state key suffix
	DonationIDs []string `json:"donation_ids"`
	CreatedAt   int64    `json:"created_at"`
	RequestedBy string   `json:"requested_by"`
	AllValid    bool     `json:"all_valid"`
}

// donationIndex keeps ids in creation order for paginated listing
type donationIndex struct {
	IDs []string `json:"ids"`
}

// rootList enumerates every attestation root ever produced
type rootList struct {
	Roots []string `json:"roots"`
}

// Donation statuses. The documented lifecycle is
// pending -> verified -> matched -> shipped -> delivered -> completed,
// with cancelled reachable from any non-terminal state. The ledger does not
// enforce the ordering; the verifier and score assume it.
const (
	StatusPending   = "pending"
	StatusVerified  = "verified"
	StatusMatched   = "matched"
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Donation kinds
const (
	KindMedication    = "medication"
	KindMedicalSupply = "medical_supply"
	KindFood          = "food"
	KindCash          = "cash"
)

// Client identity roles (x509 attribute "role")
const (
	RoleRecorder = "recorder"
	RoleVerifier = "verifier"
	RoleAdmin    = "admin"
)

// State key prefixes
const (
	donationKeyPrefix = "DONATION_"
	logKeyPrefix      = "LOG_"
	resultKeyPrefix   = "VERIFICATION_"
	scoreKeyPrefix    = "SCORE_"
	batchKeyPrefix    = "BATCH_"

	donationIndexKey     = "DONATION_INDEX"
	rootListKey          = "BATCH_ROOTS"
	donationCountKey     = "DONATION_COUNT"
	verificationCountKey = "VERIFICATION_COUNT"
)

func donationKey(id string) string { return donationKeyPrefix + id }
func logKey(id string) string      { return logKeyPrefix + id }
func resultKey(id string) string   { return resultKeyPrefix + id }
func scoreKey(id string) string    { return scoreKeyPrefix + id }
func batchKey(root string) string  { return batchKeyPrefix + root }

func validKind(kind string) bool {
	switch kind {
	case KindMedication, KindMedicalSupply, KindFood, KindCash:
		return true
	}
	return false
}

func validStatus(status string) bool {
	switch status {
	case StatusPending, StatusVerified, StatusMatched, StatusShipped,
		StatusDelivered, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}
