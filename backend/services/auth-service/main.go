package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/devprosvn/Ytili/backend/pkg/common"
	"github.com/devprosvn/Ytili/backend/pkg/common/api"
	"github.com/devprosvn/Ytili/backend/pkg/common/db"
	"github.com/devprosvn/Ytili/backend/pkg/common/migrations"
	"github.com/devprosvn/Ytili/backend/services/auth-service/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

type Service struct {
	db     *sql.DB
	secret []byte
	log    zerolog.Logger
}

func validRole(role string) bool {
	switch role {
	case common.RoleDonor, common.RoleHospital, common.RoleVerifier:
		return true
	}
	// Admins are provisioned out of band, never via self-registration
	return false
}

func (s *Service) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if req.Username == "" || len(req.Password) < 8 {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Username required and password must be at least 8 characters")
		return
	}
	if !validRole(req.Role) {
		api.WriteError(w, http.StatusBadRequest, "invalid_role", "Role must be donor, hospital, or verifier")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to hash password")
		return
	}

	userID := "user-" + uuid.NewString()

	_, err = s.db.Exec(`
		INSERT INTO donation_db.users (
			id, username, password_hash, full_name, email, organization, role, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		userID, req.Username, string(hashedPassword), req.FullName, req.Email, req.Organization, req.Role, "active")
	if err != nil {
		s.log.Error().Err(err).Str("username", req.Username).Msg("user registration failed")
		api.WriteError(w, http.StatusConflict, "user_exists", "Username or email already exists")
		return
	}

	api.WriteSuccess(w, http.StatusCreated, map[string]string{"user_id": userID, "status": "created"})
}

func (s *Service) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	var user models.User
	err := s.db.QueryRow(`
		SELECT id, password_hash, role, status
		FROM donation_db.users WHERE username = $1`, req.Username).
		Scan(&user.ID, &user.PasswordHash, &user.Role, &user.Status)
	if err == sql.ErrNoRows {
		api.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password")
		return
	} else if err != nil {
		s.log.Error().Err(err).Msg("login query failed")
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Database error")
		return
	}

	if user.Status != "active" {
		api.WriteError(w, http.StatusForbidden, "account_inactive", "Account is not active")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		api.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password")
		return
	}

	go func() {
		s.db.Exec("UPDATE donation_db.users SET last_login_at = $1 WHERE id = $2", time.Now(), user.ID)
	}()

	expirationTime := time.Now().Add(tokenTTL)
	claims := &common.Claims{
		UserID:   user.ID,
		Username: req.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			Issuer:    "ytili-auth-service",
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to generate token")
		return
	}

	api.WriteSuccess(w, http.StatusOK, models.TokenResponse{Token: tokenString, ExpiresAt: expirationTime.Unix()})
}

func (s *Service) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	claims, err := s.parseToken(r)
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
		return
	}

	expirationTime := time.Now().Add(tokenTTL)
	claims.ExpiresAt = jwt.NewNumericDate(expirationTime)

	newTokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to refresh token")
		return
	}

	api.WriteSuccess(w, http.StatusOK, models.TokenResponse{Token: newTokenString, ExpiresAt: expirationTime.Unix()})
}

func (s *Service) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	claims, err := s.parseToken(r)
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"valid":    true,
		"user_id":  claims.UserID,
		"username": claims.Username,
		"role":     claims.Role,
	})
}

func (s *Service) parseToken(r *http.Request) (*common.Claims, error) {
	tokenString := r.Header.Get("Authorization")
	if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
		tokenString = tokenString[7:]
	}

	claims := &common.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "auth").Logger()
	cfg := common.LoadConfig()

	database, err := db.Connect(cfg.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := migrations.RunMigrations(database, "backend/migrations/auth"); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	svc := &Service{db: database, secret: []byte(cfg.JWTSecret), log: logger}

	r := mux.NewRouter()
	r.HandleFunc("/auth/register", svc.RegisterHandler).Methods("POST")
	r.HandleFunc("/auth/login", svc.LoginHandler).Methods("POST")
	r.HandleFunc("/auth/refresh", svc.RefreshHandler).Methods("POST")
	r.HandleFunc("/auth/verify", svc.VerifyHandler).Methods("GET")

	logger.Info().Str("port", cfg.Port).Msg("auth service listening")
	logger.Fatal().Err(http.ListenAndServe(":"+cfg.Port, r)).Msg("server stopped")
}
