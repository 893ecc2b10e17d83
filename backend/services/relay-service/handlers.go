package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/devprosvn/Ytili/backend/pkg/common"
	"github.com/devprosvn/Ytili/backend/pkg/common/api"
	"github.com/devprosvn/Ytili/backend/services/relay-service/models"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// ChainClient is the slice of the Fabric gateway the handlers need.
// fabricclient.Client satisfies it.
type ChainClient interface {
	SubmitTransaction(name string, args ...string) ([]byte, error)
	EvaluateTransaction(name string, args ...string) ([]byte, error)
}

type Service struct {
	chain ChainClient
	db    *sql.DB
	log   zerolog.Logger
}

// chainReady rejects the request with 503 when the gateway connection is
// down. Handlers that only read the mirror DB skip this check.
func (s *Service) chainReady(w http.ResponseWriter) bool {
	if s.chain == nil {
		api.WriteError(w, http.StatusServiceUnavailable, "fabric_unavailable", "Fabric not connected")
		return false
	}
	return true
}

// writeChainError maps chaincode error kinds to HTTP statuses. Errors cross
// the gateway flattened to strings, so the match anchors on the wrapped
// sentinel text including its trailing colon rather than the bare phrase.
func (s *Service) writeChainError(w http.ResponseWriter, err error) {
	msg := err.Error()
	switch {
	case hasErrKind(msg, "not found"):
		api.WriteError(w, http.StatusNotFound, "not_found", msg)
	case hasErrKind(msg, "already exists"):
		api.WriteError(w, http.StatusConflict, "already_exists", msg)
	case hasErrKind(msg, "invalid state"):
		api.WriteError(w, http.StatusConflict, "invalid_state", msg)
	case hasErrKind(msg, "out of range"):
		api.WriteError(w, http.StatusBadRequest, "out_of_range", msg)
	case hasErrKind(msg, "invalid argument"):
		api.WriteError(w, http.StatusBadRequest, "invalid_argument", msg)
	case hasErrKind(msg, "unauthorized"):
		api.WriteError(w, http.StatusForbidden, "unauthorized", msg)
	default:
		s.log.Error().Err(err).Msg("chaincode call failed")
		api.WriteError(w, http.StatusBadGateway, "chain_error", "chaincode call failed")
	}
}

func hasErrKind(msg, kind string) bool {
	return strings.Contains(msg, kind+":")
}

func writeRaw(w http.ResponseWriter, statusCode int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(payload)
}

func (s *Service) CreateDonationHandler(w http.ResponseWriter, r *http.Request) {
	if !s.chainReady(w) {
		return
	}

	var req models.CreateDonationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	claims, ok := common.ClaimsFromContext(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, "unauthorized", "Missing claims")
		return
	}

	id := req.ID
	if id == "" {
		id = "don-" + uuid.NewString()
	}

	_, err := s.chain.SubmitTransaction("RecordDonation",
		id, claims.UserID, req.Kind, req.Title, req.Description,
		strconv.FormatInt(req.Amount, 10), req.ItemName,
		strconv.FormatInt(req.Quantity, 10), req.Unit, req.MetadataRef)
	if err != nil {
		s.writeChainError(w, err)
		return
	}

	// Mirror to the local DB; the chain stays the source of truth
	if s.db != nil {
		_, err = s.db.Exec(`
			INSERT INTO donation_db.donations (
				id, donor_id, kind, title, description, amount, item_name, quantity, unit, status, metadata_ref
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			id, claims.UserID, req.Kind, req.Title, req.Description, req.Amount,
			req.ItemName, req.Quantity, req.Unit, "pending", req.MetadataRef)
		if err != nil {
			s.log.Error().Err(err).Str("donation_id", id).Msg("failed to mirror donation")
		}
	}

	api.WriteSuccess(w, http.StatusCreated, map[string]string{"donation_id": id, "status": "pending"})
}

func (s *Service) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !s.chainReady(w) {
		return
	}
	id := mux.Vars(r)["id"]

	var req models.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	claims, _ := common.ClaimsFromContext(r.Context())
	_, err := s.chain.SubmitTransaction("UpdateDonationStatus",
		id, req.Status, claims.UserID, claims.Role, req.Description)
	if err != nil {
		s.writeChainError(w, err)
		return
	}

	if s.db != nil {
		s.db.Exec("UPDATE donation_db.donations SET status = $1, updated_at = NOW() WHERE id = $2", req.Status, id)
	}

	api.WriteSuccess(w, http.StatusOK, map[string]string{"donation_id": id, "status": req.Status})
}

func (s *Service) MatchDonationHandler(w http.ResponseWriter, r *http.Request) {
	if !s.chainReady(w) {
		return
	}
	id := mux.Vars(r)["id"]

	var req models.MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	claims, _ := common.ClaimsFromContext(r.Context())
	_, err := s.chain.SubmitTransaction("MatchDonation", id, req.RecipientID, claims.UserID)
	if err != nil {
		s.writeChainError(w, err)
		return
	}

	if s.db != nil {
		s.db.Exec("UPDATE donation_db.donations SET status = 'matched', recipient_id = $1, updated_at = NOW() WHERE id = $2",
			req.RecipientID, id)
	}

	api.WriteSuccess(w, http.StatusOK, map[string]string{"donation_id": id, "recipient_id": req.RecipientID, "status": "matched"})
}

func (s *Service) GetDonationHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// DB first, chain as fallback
	if s.db != nil {
		var d models.Donation
		var recipient, itemName, unit, metadataRef sql.NullString
		err := s.db.QueryRow(`
			SELECT id, donor_id, recipient_id, kind, title, description, amount, item_name, quantity, unit, status, metadata_ref, created_at, updated_at
			FROM donation_db.donations WHERE id = $1`, id).
			Scan(&d.ID, &d.DonorID, &recipient, &d.Kind, &d.Title, &d.Description, &d.Amount,
				&itemName, &d.Quantity, &unit, &d.Status, &metadataRef, &d.CreatedAt, &d.UpdatedAt)
		if err == nil {
			d.RecipientID = recipient.String
			d.ItemName = itemName.String
			d.Unit = unit.String
			d.MetadataRef = metadataRef.String
			api.WriteSuccess(w, http.StatusOK, d)
			return
		}
		if err != sql.ErrNoRows {
			s.log.Error().Err(err).Msg("donation mirror query failed")
		}
	}

	if !s.chainReady(w) {
		return
	}
	result, err := s.chain.EvaluateTransaction("GetDonation", id)
	if err != nil {
		s.writeChainError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, result)
}

func (s *Service) ListDonationsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.chainReady(w) {
		return
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	result, err := s.chain.EvaluateTransaction("ListDonations",
		strconv.Itoa(offset), strconv.Itoa(limit))
	if err != nil {
		s.writeChainError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, result)
}

func (s *Service) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !s.chainReady(w) {
		return
	}
	result, err := s.chain.EvaluateTransaction("GetHistory", mux.Vars(r)["id"])
	if err != nil {
		s.writeChainError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, result)
}

func (s *Service) VerifyChainHandler(w http.ResponseWriter, r *http.Request) {
	if !s.chainReady(w) {
		return
	}
	result, err := s.chain.SubmitTransaction("VerifyChain", mux.Vars(r)["id"])
	if err != nil {
		s.writeChainError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, result)
}

func (s *Service) GetVerificationHandler(w http.ResponseWriter, r *http.Request) {
	if !s.chainReady(w) {
		return
	}
	result, err := s.chain.EvaluateTransaction("GetVerificationResult", mux.Vars(r)["id"])
	if err != nil {
		s.writeChainError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, result)
}

func (s *Service) GetScoreHandler(w http.ResponseWriter, r *http.Request) {
	if !s.chainReady(w) {
		return
	}
	result, err := s.chain.EvaluateTransaction("GetTransparencyScore", mux.Vars(r)["id"])
	if err != nil {
		s.writeChainError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, result)
}

func (s *Service) BatchAttestHandler(w http.ResponseWriter, r *http.Request) {
	if !s.chainReady(w) {
		return
	}

	var req models.BatchAttestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if len(req.DonationIDs) == 0 {
		api.WriteError(w, http.StatusBadRequest, "invalid_argument", "donation_ids must not be empty")
		return
	}

	idsJSON, _ := json.Marshal(req.DonationIDs)
	result, err := s.chain.SubmitTransaction("BatchVerify", string(idsJSON))
	if err != nil {
		s.writeChainError(w, err)
		return
	}

	root := strings.Trim(string(result), "\"")
	if s.db != nil {
		s.db.Exec(`INSERT INTO donation_db.attestations (root, donation_count) VALUES ($1, $2)
			ON CONFLICT (root) DO NOTHING`, root, len(req.DonationIDs))
	}

	api.WriteSuccess(w, http.StatusCreated, map[string]string{"root": root})
}

func (s *Service) GetAttestationHandler(w http.ResponseWriter, r *http.Request) {
	if !s.chainReady(w) {
		return
	}
	result, err := s.chain.EvaluateTransaction("GetBatchAttestation", mux.Vars(r)["root"])
	if err != nil {
		s.writeChainError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, result)
}

func (s *Service) ListAttestationRootsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.chainReady(w) {
		return
	}
	result, err := s.chain.EvaluateTransaction("ListBatchRoots")
	if err != nil {
		s.writeChainError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, result)
}

func (s *Service) GetInclusionProofHandler(w http.ResponseWriter, r *http.Request) {
	if !s.chainReady(w) {
		return
	}
	vars := mux.Vars(r)
	result, err := s.chain.EvaluateTransaction("GetInclusionProof", vars["root"], vars["id"])
	if err != nil {
		s.writeChainError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, result)
}

func (s *Service) VerifyInclusionHandler(w http.ResponseWriter, r *http.Request) {
	if !s.chainReady(w) {
		return
	}
	root := mux.Vars(r)["root"]

	var req models.InclusionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	proofJSON, _ := json.Marshal(req.Proof)
	result, err := s.chain.EvaluateTransaction("VerifyInclusion", req.DonationID, root, string(proofJSON))
	if err != nil {
		s.writeChainError(w, err)
		return
	}

	included := string(result) == "true"
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"donation_id": req.DonationID,
		"root":        root,
		"included":    included,
	})
}

func (s *Service) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	donationID := r.URL.Query().Get("donation_id")

	rows, err := s.db.Query(`
		SELECT id, event_name, donation_id, tx_id, block_number, payload, received_at
		FROM donation_db.chain_events
		WHERE ($1 = '' OR donation_id = $1)
		ORDER BY received_at DESC LIMIT 100`, donationID)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "db_error", "Failed to fetch events")
		return
	}
	defer rows.Close()

	events := []models.ChainEvent{}
	for rows.Next() {
		var ev models.ChainEvent
		var donation sql.NullString
		if err := rows.Scan(&ev.ID, &ev.EventName, &donation, &ev.TxID, &ev.BlockNumber, &ev.Payload, &ev.ReceivedAt); err == nil {
			ev.DonationID = donation.String
			events = append(events, ev)
		}
	}
	api.WriteSuccess(w, http.StatusOK, events)
}
