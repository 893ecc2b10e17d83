package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/devprosvn/Ytili/backend/pkg/common"
	"github.com/devprosvn/Ytili/backend/pkg/common/api"
	"github.com/devprosvn/Ytili/backend/pkg/common/db"
	"github.com/devprosvn/Ytili/backend/pkg/fabricclient"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Service backs the operations console: aggregate stats, scheduled
// batch attestation, and audit views over the mirror DB.
type Service struct {
	db     *sql.DB
	fabric *fabricclient.Client
	log    zerolog.Logger
}

type DashboardStats struct {
	TotalDonations     int64         `json:"total_donations"`
	TotalVerifications int64         `json:"total_verifications"`
	AttestationBatches int           `json:"attestation_batches"`
	DonationsByStatus  []StatusCount `json:"donations_by_status"`
	Events24h          int           `json:"events_24h"`
	LastUpdated        time.Time     `json:"last_updated"`
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type AttestRecentRequest struct {
	Since string `json:"since,omitempty"` // RFC3339; defaults to 24h ago
	Limit int    `json:"limit,omitempty"`
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "ops").Logger()
	cfg := common.LoadConfig()

	database, err := db.Connect(cfg.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	fabric, err := fabricclient.NewClient(
		cfg.FabricConfig,
		cfg.Channel,
		cfg.Chaincode,
		cfg.MSP,
		cfg.CertPath,
		cfg.KeyPath,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("fabric connection failed, chain endpoints disabled")
	} else {
		defer fabric.Close()
	}

	svc := &Service{db: database, fabric: fabric, log: logger}

	r := mux.NewRouter()

	r.HandleFunc("/ops/dashboard", svc.DashboardHandler).Methods("GET")
	r.HandleFunc("/ops/counters", svc.CountersHandler).Methods("GET")

	// Scheduled attestation over recently touched donations
	r.HandleFunc("/ops/attest-recent", svc.AttestRecentHandler).Methods("POST")

	// Audit views over the mirror DB
	r.HandleFunc("/ops/audit/donations", svc.AuditDonationsHandler).Methods("GET")
	r.HandleFunc("/ops/audit/events", svc.AuditEventsHandler).Methods("GET")

	r.HandleFunc("/health", svc.HealthHandler).Methods("GET")

	logger.Info().Str("port", cfg.Port).Msg("ops service listening")
	logger.Fatal().Err(http.ListenAndServe(":"+cfg.Port, r)).Msg("server stopped")
}

func (s *Service) HealthHandler(w http.ResponseWriter, r *http.Request) {
	api.WriteSuccess(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "ops-service",
	})
}

func (s *Service) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	stats := DashboardStats{LastUpdated: time.Now()}

	if s.fabric != nil {
		if result, err := s.fabric.EvaluateTransaction("GetDonationCount"); err == nil {
			json.Unmarshal(result, &stats.TotalDonations)
		}
		if result, err := s.fabric.EvaluateTransaction("GetVerificationCount"); err == nil {
			json.Unmarshal(result, &stats.TotalVerifications)
		}
		if result, err := s.fabric.EvaluateTransaction("ListBatchRoots"); err == nil {
			var roots []string
			if json.Unmarshal(result, &roots) == nil {
				stats.AttestationBatches = len(roots)
			}
		}
	}

	rows, err := s.db.Query(`
		SELECT status, COUNT(*)
		FROM donation_db.donations
		GROUP BY status`)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var sc StatusCount
			if rows.Scan(&sc.Status, &sc.Count) == nil {
				stats.DonationsByStatus = append(stats.DonationsByStatus, sc)
			}
		}
	}

	s.db.QueryRow(`
		SELECT COUNT(*) FROM donation_db.chain_events
		WHERE received_at > NOW() - INTERVAL '24 hours'
	`).Scan(&stats.Events24h)

	api.WriteSuccess(w, http.StatusOK, stats)
}

func (s *Service) CountersHandler(w http.ResponseWriter, r *http.Request) {
	if s.fabric == nil {
		api.WriteError(w, http.StatusServiceUnavailable, "fabric_unavailable", "Fabric not connected")
		return
	}

	var donations, verifications int64
	result, err := s.fabric.EvaluateTransaction("GetDonationCount")
	if err != nil {
		api.WriteError(w, http.StatusBadGateway, "chain_error", err.Error())
		return
	}
	json.Unmarshal(result, &donations)

	if result, err = s.fabric.EvaluateTransaction("GetVerificationCount"); err == nil {
		json.Unmarshal(result, &verifications)
	}

	api.WriteSuccess(w, http.StatusOK, map[string]int64{
		"donation_count":     donations,
		"verification_count": verifications,
	})
}

// AttestRecentHandler runs a Merkle batch over donations updated since
// the given time. Meant to be hit by a cron job, not end users.
func (s *Service) AttestRecentHandler(w http.ResponseWriter, r *http.Request) {
	var req AttestRecentRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	since := time.Now().Add(-24 * time.Hour)
	if req.Since != "" {
		parsed, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, "invalid_request", "since must be RFC3339")
			return
		}
		since = parsed
	}
	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	if s.fabric == nil {
		api.WriteError(w, http.StatusServiceUnavailable, "fabric_unavailable", "Fabric not connected")
		return
	}

	rows, err := s.db.Query(`
		SELECT id FROM donation_db.donations
		WHERE updated_at >= $1
		ORDER BY updated_at DESC
		LIMIT $2`, since, limit)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "db_error", "Failed to query donations")
		return
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if rows.Scan(&id) == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"attested": 0})
		return
	}

	idsJSON, _ := json.Marshal(ids)
	result, err := s.fabric.SubmitTransaction("BatchVerify", string(idsJSON))
	if err != nil {
		s.log.Error().Err(err).Int("count", len(ids)).Msg("batch attestation failed")
		api.WriteError(w, http.StatusBadGateway, "chain_error", err.Error())
		return
	}

	var root string
	json.Unmarshal(result, &root)
	s.log.Info().Str("root", root).Int("count", len(ids)).Msg("batch attested")

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"attested": len(ids),
		"root":     root,
	})
}

func (s *Service) AuditDonationsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 100
	}
	status := r.URL.Query().Get("status")

	rows, err := s.db.Query(`
		SELECT id, donor_id, kind, status, created_at, updated_at
		FROM donation_db.donations
		WHERE ($1 = '' OR status = $1)
		ORDER BY updated_at DESC
		LIMIT $2`, status, limit)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "db_error", "Failed to query donations")
		return
	}
	defer rows.Close()

	donations := []map[string]interface{}{}
	for rows.Next() {
		var id, donorID, kind, st string
		var createdAt, updatedAt time.Time
		if rows.Scan(&id, &donorID, &kind, &st, &createdAt, &updatedAt) == nil {
			donations = append(donations, map[string]interface{}{
				"id":         id,
				"donor_id":   donorID,
				"kind":       kind,
				"status":     st,
				"created_at": createdAt,
				"updated_at": updatedAt,
			})
		}
	}

	api.WriteSuccess(w, http.StatusOK, donations)
}

func (s *Service) AuditEventsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT event_name, donation_id, tx_id, block_number, received_at
		FROM donation_db.chain_events
		ORDER BY received_at DESC
		LIMIT $1`, limit)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "db_error", "Failed to query events")
		return
	}
	defer rows.Close()

	events := []map[string]interface{}{}
	for rows.Next() {
		var name, txID string
		var donationID sql.NullString
		var blockNumber uint64
		var receivedAt time.Time
		if rows.Scan(&name, &donationID, &txID, &blockNumber, &receivedAt) == nil {
			events = append(events, map[string]interface{}{
				"event_name":   name,
				"donation_id":  donationID.String,
				"tx_id":        txID,
				"block_number": blockNumber,
				"received_at":  receivedAt,
			})
		}
	}

	api.WriteSuccess(w, http.StatusOK, events)
}
