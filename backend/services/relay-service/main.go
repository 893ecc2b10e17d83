package main

import (
	"log"
	"net/http"
	"os"

	"github.com/devprosvn/Ytili/backend/pkg/common"
	"github.com/devprosvn/Ytili/backend/pkg/common/db"
	"github.com/devprosvn/Ytili/backend/pkg/common/migrations"
	"github.com/devprosvn/Ytili/backend/pkg/fabricclient"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

func main() {
	cfg := common.LoadConfig()
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "relay").Logger()

	database, err := db.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer database.Close()

	if err := migrations.RunMigrations(database, "backend/migrations/relay"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	fabric, err := fabricclient.NewClient(
		cfg.FabricConfig,
		cfg.Channel,
		cfg.Chaincode,
		cfg.MSP,
		cfg.CertPath,
		cfg.KeyPath,
	)
	if err != nil {
		log.Printf("Warning: Fabric connection failed: %v", err)
	} else {
		defer fabric.Close()
	}

	svc := &Service{db: database, log: logger}
	if fabric != nil {
		svc.chain = fabric
		svc.startEventIngestion(fabric)
	}

	secret := []byte(cfg.JWTSecret)
	protected := func(h http.HandlerFunc, roles ...string) http.Handler {
		return common.AuthMiddleware(secret, common.RequireRole(h, roles...))
	}

	r := mux.NewRouter()

	// Lifecycle mutations, recorder-side roles
	r.Handle("/donations", protected(svc.CreateDonationHandler, common.RoleDonor, common.RoleHospital)).Methods("POST")
	r.Handle("/donations/{id}/status", protected(svc.UpdateStatusHandler, common.RoleHospital, common.RoleVerifier)).Methods("POST")
	r.Handle("/donations/{id}/match", protected(svc.MatchDonationHandler, common.RoleHospital)).Methods("POST")

	// Verification, verifier-side
	r.Handle("/donations/{id}/verify", protected(svc.VerifyChainHandler, common.RoleVerifier)).Methods("POST")
	r.Handle("/attestations", protected(svc.BatchAttestHandler, common.RoleVerifier)).Methods("POST")

	// Unrestricted reads
	r.HandleFunc("/donations", svc.ListDonationsHandler).Methods("GET")
	r.HandleFunc("/donations/{id}", svc.GetDonationHandler).Methods("GET")
	r.HandleFunc("/donations/{id}/history", svc.GetHistoryHandler).Methods("GET")
	r.HandleFunc("/donations/{id}/verification", svc.GetVerificationHandler).Methods("GET")
	r.HandleFunc("/donations/{id}/score", svc.GetScoreHandler).Methods("GET")
	r.HandleFunc("/attestations", svc.ListAttestationRootsHandler).Methods("GET")
	r.HandleFunc("/attestations/{root}", svc.GetAttestationHandler).Methods("GET")
	r.HandleFunc("/attestations/{root}/proof/{id}", svc.GetInclusionProofHandler).Methods("GET")
	r.HandleFunc("/attestations/{root}/inclusion", svc.VerifyInclusionHandler).Methods("POST")
	r.HandleFunc("/events", svc.ListEventsHandler).Methods("GET")

	logger.Info().Str("port", cfg.Port).Msg("Relay Service running")
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}
