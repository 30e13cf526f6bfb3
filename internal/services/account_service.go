package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/coralwest/backend/internal/models"
)

type AccountService struct {
	db *sql.DB
}

func NewAccountService(db *sql.DB) *AccountService {
	return &AccountService{db: db}
}

// ListAccounts retrieves the authenticated user's accounts
// @Summary List accounts
// @Description Get all accounts owned by the authenticated user
// @Tags accounts
// @Produce json
// @Success 200 {array} models.Account
// @Failure 401 {string} string "Unauthorized"
// @Failure 500 {string} string "Internal server error"
// @Router /accounts [get]
func (s *AccountService) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT id, user_id, account_number, account_type, balance, bitcoin_balance, currency, is_primary, status, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY is_primary DESC, created_at ASC`, userID)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to list accounts for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch accounts", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.AccountNumber, &a.AccountType, &a.Balance,
			&a.BitcoinBalance, &a.Currency, &a.IsPrimary, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch accounts", http.StatusInternalServerError, nil)
			return
		}
		accounts = append(accounts, a)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accounts)
}

// GetAccount retrieves one of the user's accounts by id
// @Summary Get account
// @Description Get a single account owned by the authenticated user
// @Tags accounts
// @Produce json
// @Param id path int true "Account ID"
// @Success 200 {object} models.Account
// @Failure 404 {string} string "Account not found"
// @Router /accounts/{id} [get]
func (s *AccountService) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	accountID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	var a models.Account
	err = s.db.QueryRow(`
		SELECT id, user_id, account_number, account_type, balance, bitcoin_balance, currency, is_primary, status, created_at, updated_at
		FROM accounts
		WHERE id = $1 AND user_id = $2`, accountID, userID).Scan(
		&a.ID, &a.UserID, &a.AccountNumber, &a.AccountType, &a.Balance,
		&a.BitcoinBalance, &a.Currency, &a.IsPrimary, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[ACCOUNT] Failed to fetch account %d: %v", accountID, err)
			SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a)
}

// userIDFromContext reads the authenticated user id set by the auth
// middleware. The middleware stores it as a string claim value.
func userIDFromContext(r *http.Request) (int, bool) {
	raw, ok := r.Context().Value("userID").(string)
	if !ok || raw == "" {
		return 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}
