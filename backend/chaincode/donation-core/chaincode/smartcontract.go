package chaincode

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// SmartContract tracks donations through their lifecycle and keeps a
// tamper-evident hash-chained audit log per donation.
type SmartContract struct {
	contractapi.Contract
}

// InitLedger seeds the counters, donation index and root list.
func (s *SmartContract) InitLedger(ctx contractapi.TransactionContextInterface) error {
	stub := ctx.GetStub()
	if err := putJSON(stub, donationIndexKey, &donationIndex{IDs: []string{}}); err != nil {
		return err
	}
	if err := putJSON(stub, rootListKey, &rootList{Roots: []string{}}); err != nil {
		return err
	}
	if err := stub.PutState(donationCountKey, []byte("0")); err != nil {
		return err
	}
	return stub.PutState(verificationCountKey, []byte("0"))
}

// RecordDonation creates a donation in status pending and writes log entry 0.
func (s *SmartContract) RecordDonation(ctx contractapi.TransactionContextInterface,
	id, donorID, kind, title, description string, amount int64,
	itemName string, quantity int64, unit, metadataRef string) error {

	if err := requireRole(ctx, RoleRecorder); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: donation id must not be empty", ErrInvalidArgument)
	}
	if donorID == "" {
		return fmt.Errorf("%w: donor id must not be empty", ErrInvalidArgument)
	}
	if !validKind(kind) {
		return fmt.Errorf("%w: unknown donation kind %q", ErrInvalidArgument, kind)
	}

	stub := ctx.GetStub()
	existing, err := stub.GetState(donationKey(id))
	if err != nil {
		return fmt.Errorf("failed to read donation: %v", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: donation %s", ErrAlreadyExists, id)
	}

	now, err := txTime(stub)
	if err != nil {
		return err
	}

	donation := Donation{
		ID:          id,
		DonorID:     donorID,
		Kind:        kind,
		Title:       title,
		Description: description,
		Amount:      amount,
		ItemName:    itemName,
		Quantity:    quantity,
		Unit:        unit,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		MetadataRef: metadataRef,
	}
	if err := putJSON(stub, donationKey(id), &donation); err != nil {
		return err
	}

	entry, err := appendTransaction(stub, id, "donation_created", description, donorID, "donor", now, metadataRef)
	if err != nil {
		return err
	}

	var index donationIndex
	if err := getJSON(stub, donationIndexKey, &index); err != nil {
		return err
	}
	index.IDs = append(index.IDs, id)
	if err := putJSON(stub, donationIndexKey, &index); err != nil {
		return err
	}

	if err := incrementCounter(stub, donationCountKey); err != nil {
		return err
	}

	return emitEvent(stub, EventDonationRecorded, DonationRecordedEvent{
		DonationID: id,
		DonorID:    donorID,
		Kind:       kind,
		TxHash:     entry.TxHash,
		Timestamp:  now,
	})
}

// UpdateDonationStatus overwrites the status field and appends a log entry.
// Any known status may follow any other; the ledger records the transition,
// the verifier judges it.
func (s *SmartContract) UpdateDonationStatus(ctx contractapi.TransactionContextInterface,
	id, newStatus, actorID, actorRole, description string) error {

	if err := requireRole(ctx, RoleRecorder); err != nil {
		return err
	}
	if !validStatus(newStatus) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, newStatus)
	}

	stub := ctx.GetStub()
	donation, err := getDonation(stub, id)
	if err != nil {
		return err
	}

	now, err := txTime(stub)
	if err != nil {
		return err
	}

	oldStatus := donation.Status
	donation.Status = newStatus
	donation.UpdatedAt = now
	if err := putJSON(stub, donationKey(id), donation); err != nil {
		return err
	}

	entry, err := appendTransaction(stub, id, "status_changed_to_"+newStatus, description, actorID, actorRole, now, "")
	if err != nil {
		return err
	}

	return emitEvent(stub, EventStatusUpdated, StatusUpdatedEvent{
		DonationID: id,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		ActorID:    actorID,
		TxHash:     entry.TxHash,
		Timestamp:  now,
	})
}

// MatchDonation assigns a recipient to a verified donation.
func (s *SmartContract) MatchDonation(ctx contractapi.TransactionContextInterface,
	id, recipientID, actorID string) error {

	if err := requireRole(ctx, RoleRecorder); err != nil {
		return err
	}
	if recipientID == "" {
		return fmt.Errorf("%w: recipient id must not be empty", ErrInvalidArgument)
	}

	stub := ctx.GetStub()
	donation, err := getDonation(stub, id)
	if err != nil {
		return err
	}
	if donation.Status != StatusVerified {
		return fmt.Errorf("%w: donation %s is %s, must be %s to match",
			ErrInvalidState, id, donation.Status, StatusVerified)
	}

	now, err := txTime(stub)
	if err != nil {
		return err
	}

	donation.RecipientID = recipientID
	donation.Status = StatusMatched
	donation.UpdatedAt = now
	if err := putJSON(stub, donationKey(id), donation); err != nil {
		return err
	}

	entry, err := appendTransaction(stub, id, "donation_matched",
		"matched to recipient "+recipientID, actorID, "hospital", now, "")
	if err != nil {
		return err
	}

	return emitEvent(stub, EventDonationMatched, DonationMatchedEvent{
		DonationID:  id,
		RecipientID: recipientID,
		ActorID:     actorID,
		TxHash:      entry.TxHash,
		Timestamp:   now,
	})
}

// GetDonation returns the donation record.
func (s *SmartContract) GetDonation(ctx contractapi.TransactionContextInterface, id string) (*Donation, error) {
	return getDonation(ctx.GetStub(), id)
}

// GetHistory returns a donation's full transaction log in append order.
func (s *SmartContract) GetHistory(ctx contractapi.TransactionContextInterface, id string) ([]Transaction, error) {
	stub := ctx.GetStub()
	if _, err := getDonation(stub, id); err != nil {
		return nil, err
	}
	log, err := getLog(stub, id)
	if err != nil {
		return nil, err
	}
	return log.Entries, nil
}

// ListDonations returns up to limit donation ids in creation order.
func (s *SmartContract) ListDonations(ctx contractapi.TransactionContextInterface, offset, limit int) ([]string, error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: offset and limit must not be negative", ErrInvalidArgument)
	}

	var index donationIndex
	if err := getJSON(ctx.GetStub(), donationIndexKey, &index); err != nil {
		return nil, err
	}
	total := len(index.IDs)
	if offset >= total {
		return nil, fmt.Errorf("%w: offset %d, total donations %d", ErrOutOfRange, offset, total)
	}

	end := offset + limit
	if end > total {
		end = total
	}
	return index.IDs[offset:end], nil
}

// GetDonationCount returns the total number of donations ever recorded.
func (s *SmartContract) GetDonationCount(ctx contractapi.TransactionContextInterface) (int64, error) {
	return getCounter(ctx.GetStub(), donationCountKey)
}

// GetVerificationCount returns the total number of chain verifications run.
func (s *SmartContract) GetVerificationCount(ctx contractapi.TransactionContextInterface) (int64, error) {
	return getCounter(ctx.GetStub(), verificationCountKey)
}

// appendTransaction writes the next entry of a donation's hash chain. The
// previous-hash link and the entry's own digest are the tamper evidence; the
// log document is only ever extended, never rewritten.
func appendTransaction(stub shim.ChaincodeStubInterface, donationID, txType, description,
	actorID, actorRole string, timestamp int64, metadataRef string) (*Transaction, error) {

	log, err := getLog(stub, donationID)
	if err != nil {
		return nil, err
	}

	prevHash := ""
	if n := len(log.Entries); n > 0 {
		prevHash = log.Entries[n-1].TxHash
	}

	entry := Transaction{
		DonationID:  donationID,
		Type:        txType,
		Description: description,
		ActorID:     actorID,
		ActorRole:   actorRole,
		Timestamp:   timestamp,
		MetadataRef: metadataRef,
		PrevHash:    prevHash,
		TxHash:      chainHash(donationID, txType, actorID, timestamp, prevHash),
	}
	log.Entries = append(log.Entries, entry)

	if err := putJSON(stub, logKey(donationID), log); err != nil {
		return nil, err
	}
	return &entry, nil
}

func getDonation(stub shim.ChaincodeStubInterface, id string) (*Donation, error) {
	data, err := stub.GetState(donationKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read donation: %v", err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: donation %s", ErrNotFound, id)
	}
	var donation Donation
	if err := json.Unmarshal(data, &donation); err != nil {
		return nil, err
	}
	return &donation, nil
}

func getLog(stub shim.ChaincodeStubInterface, donationID string) (*TransactionLog, error) {
	data, err := stub.GetState(logKey(donationID))
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction log: %v", err)
	}
	log := TransactionLog{DonationID: donationID}
	if data == nil {
		return &log, nil
	}
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

func getJSON(stub shim.ChaincodeStubInterface, key string, out interface{}) error {
	data, err := stub.GetState(key)
	if err != nil {
		return fmt.Errorf("failed to read %s: %v", key, err)
	}
	if data == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func putJSON(stub shim.ChaincodeStubInterface, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return stub.PutState(key, data)
}

func getCounter(stub shim.ChaincodeStubInterface, key string) (int64, error) {
	data, err := stub.GetState(key)
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %v", key, err)
	}
	if data == nil {
		return 0, nil
	}
	return strconv.ParseInt(string(data), 10, 64)
}

func incrementCounter(stub shim.ChaincodeStubInterface, key string) error {
	count, err := getCounter(stub, key)
	if err != nil {
		return err
	}
	return stub.PutState(key, []byte(strconv.FormatInt(count+1, 10)))
}

// txTime returns the transaction timestamp in unix seconds. Using the tx
// timestamp instead of time.Now keeps endorsement deterministic.
func txTime(stub shim.ChaincodeStubInterface) (int64, error) {
	ts, err := stub.GetTxTimestamp()
	if err != nil {
		return 0, fmt.Errorf("failed to get tx timestamp: %v", err)
	}
	return ts.AsTime().Unix(), nil
}

// requireRole checks the caller's x509 "role" attribute. Admin passes every
// check. The MSP layer remains the real gatekeeper; this is the contract's
// own recorder/verifier split.
func requireRole(ctx contractapi.TransactionContextInterface, role string) error {
	val, found, err := ctx.GetClientIdentity().GetAttributeValue("role")
	if err != nil {
		return fmt.Errorf("failed to read role attribute: %v", err)
	}
	if !found || (val != role && val != RoleAdmin) {
		return fmt.Errorf("%w: %s role required", ErrUnauthorized, role)
	}
	return nil
}
