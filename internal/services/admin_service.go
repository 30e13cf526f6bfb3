package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coralwest/backend/internal/models"
)

// AdminService exposes the back-office endpoints. Admin postings are
// authoritative and go through the ledger engine's adjustment paths.
type AdminService struct {
	db        *sql.DB
	ledger    *LedgerService
	validator *ValidationHelper
}

func NewAdminService(db *sql.DB, ledger *LedgerService) *AdminService {
	return &AdminService{
		db:        db,
		ledger:    ledger,
		validator: NewValidationHelper(),
	}
}

// AdminDepositRequest credits an account on behalf of an external depositor.
type AdminDepositRequest struct {
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	Description   string  `json:"description" validate:"max=200"`
	DepositorName string  `json:"depositorName" validate:"max=100"`
	DepositType   string  `json:"depositType" validate:"max=40"`
	Date          string  `json:"date" validate:"omitempty"`
}

// AdminDebitRequest debits an account.
type AdminDebitRequest struct {
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Description string  `json:"description" validate:"max=200"`
	Date        string  `json:"date" validate:"omitempty"`
}

// AdminReceiveRequest records an incoming external transfer.
type AdminReceiveRequest struct {
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	SenderName    string  `json:"senderName" validate:"required,max=100"`
	SenderAccount string  `json:"senderAccount" validate:"required,max=40"`
	Description   string  `json:"description" validate:"max=200"`
	Date          string  `json:"date" validate:"omitempty"`
}

// AdminTransferRequest sends funds from an account on the holder's behalf.
type AdminTransferRequest struct {
	ToAccount     string  `json:"toAccount" validate:"required,min=4,max=40"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	RecipientName string  `json:"recipientName" validate:"max=100"`
	Description   string  `json:"description" validate:"max=200"`
	Method        string  `json:"method" validate:"omitempty,max=40"`
	Date          string  `json:"date" validate:"omitempty"`
}

// UpdateUserRequest patches a user's status or role.
type UpdateUserRequest struct {
	Status *string `json:"status" validate:"omitempty,oneof=active inactive suspended"`
	Role   *string `json:"role" validate:"omitempty,oneof=user admin"`
}

// CreateAccountRequest opens an additional account for a user.
type CreateAccountRequest struct {
	UserID      int    `json:"userId" validate:"required,gt=0"`
	AccountType string `json:"accountType" validate:"required,oneof=checking savings high-yield"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
}

// UpdateAccountRequest patches an account's status.
type UpdateAccountRequest struct {
	Status *string `json:"status" validate:"omitempty,oneof=active inactive suspended"`
}

// UpdateTransactionStatusRequest settles or fails a pending transaction.
type UpdateTransactionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=completed failed"`
}

// Overview returns aggregate platform counts
// @Summary Admin overview
// @Description Aggregate counts of users, accounts and transactions
// @Tags admin
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /admin/overview [get]
func (as *AdminService) Overview(w http.ResponseWriter, r *http.Request) {
	var userCount, accountCount, txCount, pendingCount int
	var totalBalance float64

	row := as.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM accounts),
			(SELECT COALESCE(SUM(balance), 0) FROM accounts),
			(SELECT COUNT(*) FROM transactions),
			(SELECT COUNT(*) FROM transactions WHERE status = 'pending')`)
	if err := row.Scan(&userCount, &accountCount, &totalBalance, &txCount, &pendingCount); err != nil {
		log.Printf("[ADMIN] Failed to build overview: %v", err)
		SendErrorResponse(w, "Failed to fetch overview", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"totalUsers":          userCount,
		"totalAccounts":       accountCount,
		"totalBalance":        totalBalance,
		"totalTransactions":   txCount,
		"pendingTransactions": pendingCount,
	})
}

// ListUsers returns all registered users
// @Summary List users
// @Tags admin
// @Produce json
// @Success 200 {array} models.User
// @Router /admin/users [get]
func (as *AdminService) ListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := as.db.Query(`
		SELECT id, email, first_name, last_name, phone_number, role, status, last_login, created_at
		FROM users ORDER BY created_at DESC`)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch users", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PhoneNumber,
			&u.Role, &u.Status, &u.LastLogin, &u.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch users", http.StatusInternalServerError, nil)
			return
		}
		users = append(users, u)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}

// UpdateUser patches a user's status or role
// @Summary Update user
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body UpdateUserRequest true "Fields to update"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /admin/users/{id} [patch]
func (as *AdminService) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid user ID", http.StatusBadRequest, nil)
		return
	}

	var req UpdateUserRequest
	if !as.decodeBody(w, r, &req) {
		return
	}
	if req.Status == nil && req.Role == nil {
		SendErrorResponse(w, "No fields to update", http.StatusBadRequest, nil)
		return
	}

	sets := []string{"updated_at = NOW()"}
	args := []any{}
	argIndex := 1
	if req.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *req.Status)
		argIndex++
	}
	if req.Role != nil {
		sets = append(sets, fmt.Sprintf("role = $%d", argIndex))
		args = append(args, *req.Role)
		argIndex++
	}
	args = append(args, userID)

	result, err := as.db.Exec(
		fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(sets, ", "), argIndex), args...)
	if err != nil {
		SendErrorResponse(w, "Failed to update user", http.StatusInternalServerError, nil)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[ADMIN] Updated user %d", userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"message": "User updated"})
}

// ListAccounts returns all accounts, optionally filtered by user
// @Summary List accounts
// @Tags admin
// @Produce json
// @Param userId query int false "Filter by user"
// @Success 200 {array} models.Account
// @Router /admin/accounts [get]
func (as *AdminService) ListAccounts(w http.ResponseWriter, r *http.Request) {
	query := `
		SELECT id, user_id, account_number, account_type, balance, bitcoin_balance,
		       currency, is_primary, status, created_at, updated_at
		FROM accounts`
	args := []any{}
	if raw := r.URL.Query().Get("userId"); raw != "" {
		userID, err := strconv.Atoi(raw)
		if err != nil {
			SendErrorResponse(w, "Invalid user ID", http.StatusBadRequest, nil)
			return
		}
		query += " WHERE user_id = $1"
		args = append(args, userID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := as.db.Query(query, args...)
	if err != nil {
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

// CreateAccount opens an additional account for a user
// @Summary Create account
// @Tags admin
// @Accept json
// @Produce json
// @Param request body CreateAccountRequest true "Account details"
// @Success 201 {object} models.Account
// @Failure 404 {object} ErrorResponse
// @Router /admin/accounts [post]
func (as *AdminService) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !as.decodeBody(w, r, &req) {
		return
	}
	if req.Currency == "" {
		req.Currency = CurrencyUSD
	}

	var exists bool
	if err := as.db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", req.UserID).Scan(&exists); err != nil || !exists {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}

	number := fmt.Sprintf("%012d", rand.Int63n(1_000_000_000_000))
	var account models.Account
	err := as.db.QueryRow(`
		INSERT INTO accounts (user_id, account_number, account_type, balance, bitcoin_balance, currency, is_primary, status)
		VALUES ($1, $2, $3, 0, 0, $4, FALSE, 'active')
		RETURNING id, user_id, account_number, account_type, balance, bitcoin_balance, currency, is_primary, status, created_at, updated_at`,
		req.UserID, number, req.AccountType, strings.ToUpper(req.Currency)).
		Scan(&account.ID, &account.UserID, &account.AccountNumber, &account.AccountType,
			&account.Balance, &account.BitcoinBalance, &account.Currency, &account.IsPrimary,
			&account.Status, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		log.Printf("[ADMIN] Failed to create account for user %d: %v", req.UserID, err)
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[ADMIN] Created %s account %s for user %d", req.AccountType, number, req.UserID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(account)
}

// UpdateAccount patches an account's status
// @Summary Update account
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Account ID"
// @Param request body UpdateAccountRequest true "Fields to update"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /admin/accounts/{id} [patch]
func (as *AdminService) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid account ID", http.StatusBadRequest, nil)
		return
	}

	var req UpdateAccountRequest
	if !as.decodeBody(w, r, &req) {
		return
	}
	if req.Status == nil {
		SendErrorResponse(w, "No fields to update", http.StatusBadRequest, nil)
		return
	}

	result, err := as.db.Exec(
		"UPDATE accounts SET status = $1, updated_at = NOW() WHERE id = $2", *req.Status, accountID)
	if err != nil {
		SendErrorResponse(w, "Failed to update account", http.StatusInternalServerError, nil)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[ADMIN] Set account %d status to %s", accountID, *req.Status)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"message": "Account updated"})
}

// Deposit credits an account immediately
// @Summary Admin deposit
// @Description Credit an account, optionally backdated
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Account ID"
// @Param request body AdminDepositRequest true "Deposit details"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /admin/accounts/{id}/deposit [post]
func (as *AdminService) Deposit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := as.accountIDParam(w, r)
	if !ok {
		return
	}

	var req AdminDepositRequest
	if !as.decodeBody(w, r, &req) {
		return
	}
	occurredAt, ok := as.parseDate(w, req.Date)
	if !ok {
		return
	}

	metadata := models.Metadata{}
	if req.DepositorName != "" {
		metadata["depositorName"] = req.DepositorName
	}
	if req.DepositType != "" {
		metadata["depositType"] = req.DepositType
	}

	entry, err := as.ledger.PostAdminAdjustment(accountID, AdjustCredit, req.Amount, CurrencyUSD,
		orDefault(req.Description, "Deposit"), occurredAt, metadata)
	if err != nil {
		as.sendLedgerError(w, err)
		return
	}

	log.Printf("[ADMIN] Deposit %s of %.2f to account %d", entry.Reference, req.Amount, accountID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":     "Deposit successful",
		"transaction": entry,
		"newBalance":  entry.BalanceAfter,
	})
}

// Debit debits an account immediately
// @Summary Admin debit
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Account ID"
// @Param request body AdminDebitRequest true "Debit details"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /admin/accounts/{id}/debit [post]
func (as *AdminService) Debit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := as.accountIDParam(w, r)
	if !ok {
		return
	}

	var req AdminDebitRequest
	if !as.decodeBody(w, r, &req) {
		return
	}
	occurredAt, ok := as.parseDate(w, req.Date)
	if !ok {
		return
	}

	entry, err := as.ledger.PostAdminAdjustment(accountID, AdjustDebit, req.Amount, CurrencyUSD,
		orDefault(req.Description, "Debit"), occurredAt, models.Metadata{})
	if err != nil {
		as.sendLedgerError(w, err)
		return
	}

	log.Printf("[ADMIN] Debit %s of %.2f from account %d", entry.Reference, req.Amount, accountID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":     "Debit successful",
		"transaction": entry,
		"newBalance":  entry.BalanceAfter,
	})
}

// Receive records an incoming external transfer
// @Summary Admin receive
// @Description Credit an account with a transfer received from an external sender
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Account ID"
// @Param request body AdminReceiveRequest true "Received transfer details"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /admin/accounts/{id}/receive [post]
func (as *AdminService) Receive(w http.ResponseWriter, r *http.Request) {
	accountID, ok := as.accountIDParam(w, r)
	if !ok {
		return
	}

	var req AdminReceiveRequest
	if !as.decodeBody(w, r, &req) {
		return
	}
	occurredAt, ok := as.parseDate(w, req.Date)
	if !ok {
		return
	}

	metadata := models.Metadata{
		"senderName":    req.SenderName,
		"senderAccount": req.SenderAccount,
	}
	entry, err := as.ledger.PostAdminAdjustment(accountID, AdjustReceive, req.Amount, CurrencyUSD,
		orDefault(req.Description, fmt.Sprintf("Transfer from %s", req.SenderName)), occurredAt, metadata)
	if err != nil {
		as.sendLedgerError(w, err)
		return
	}

	log.Printf("[ADMIN] Received %s of %.2f into account %d", entry.Reference, req.Amount, accountID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":     "Transfer received",
		"transaction": entry,
		"newBalance":  entry.BalanceAfter,
	})
}

// Transfer sends funds from an account on the holder's behalf
// @Summary Admin transfer
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Account ID"
// @Param request body AdminTransferRequest true "Transfer details"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /admin/accounts/{id}/transfer [post]
func (as *AdminService) Transfer(w http.ResponseWriter, r *http.Request) {
	accountID, ok := as.accountIDParam(w, r)
	if !ok {
		return
	}

	var req AdminTransferRequest
	if !as.decodeBody(w, r, &req) {
		return
	}
	occurredAt, ok := as.parseDate(w, req.Date)
	if !ok {
		return
	}

	metadata := models.Metadata{}
	if req.RecipientName != "" {
		metadata["recipientName"] = req.RecipientName
	}

	entry, err := as.ledger.PostAdminTransfer(accountID, req.ToAccount, req.Amount,
		req.Description, req.Method, occurredAt, metadata)
	if err != nil {
		as.sendLedgerError(w, err)
		return
	}

	log.Printf("[ADMIN] Transfer %s of %.2f from account %d to %s", entry.Reference, req.Amount, accountID, req.ToAccount)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":     "Transfer successful",
		"transaction": entry,
	})
}

// ListTransactions returns transactions across all users
// @Summary List all transactions
// @Tags admin
// @Produce json
// @Param userId query int false "Filter by user"
// @Param status query string false "Filter by status"
// @Param type query string false "Filter by type"
// @Param page query int false "Page (default 1)"
// @Param limit query int false "Page size (default 50, max 200)"
// @Success 200 {object} map[string]interface{}
// @Router /admin/transactions [get]
func (as *AdminService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)
	if limit > 200 {
		limit = 200
	}

	conditions := []string{}
	args := []any{}
	argIndex := 1
	if raw := r.URL.Query().Get("userId"); raw != "" {
		userID, err := strconv.Atoi(raw)
		if err != nil {
			SendErrorResponse(w, "Invalid user ID", http.StatusBadRequest, nil)
			return
		}
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIndex))
		args = append(args, userID)
		argIndex++
	}
	if status := r.URL.Query().Get("status"); status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, status)
		argIndex++
	}
	if txType := r.URL.Query().Get("type"); txType != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIndex))
		args = append(args, txType)
		argIndex++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := as.db.QueryRow("SELECT COUNT(*) FROM transactions"+where, args...).Scan(&total); err != nil {
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	query := selectTransactionColumns + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, (page-1)*limit)

	rows, err := as.db.Query(query, args...)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.ID, &tx.Reference, &tx.UserID, &tx.AccountID, &tx.Type,
			&tx.Amount, &tx.Currency, &tx.Description, &tx.Status, &tx.FromAccount,
			&tx.ToAccount, &tx.BalanceAfter, &tx.Metadata, &tx.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
			return
		}
		transactions = append(transactions, tx)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
		"total":        total,
		"currentPage":  page,
		"totalPages":   (total + limit - 1) / limit,
	})
}

// UpdateTransactionStatus settles or fails a pending transaction
// @Summary Update transaction status
// @Description Move a pending transaction to completed or failed
// @Tags admin
// @Accept json
// @Produce json
// @Param reference path string true "Transaction reference"
// @Param request body UpdateTransactionStatusRequest true "New status"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/transactions/{reference} [patch]
func (as *AdminService) UpdateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	var req UpdateTransactionStatusRequest
	if !as.decodeBody(w, r, &req) {
		return
	}

	entry, err := as.ledger.TransitionStatus(reference, req.Status)
	if err != nil {
		as.sendLedgerError(w, err)
		return
	}

	log.Printf("[ADMIN] Transaction %s marked %s", reference, req.Status)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":     "Transaction updated",
		"transaction": entry,
	})
}

// ListReconciliations returns transfers flagged for manual follow-up
// @Summary List reconciliations
// @Tags admin
// @Produce json
// @Success 200 {array} models.Reconciliation
// @Router /admin/reconciliations [get]
func (as *AdminService) ListReconciliations(w http.ResponseWriter, r *http.Request) {
	rows, err := as.db.Query(`
		SELECT id, reference, from_account, to_account, amount, reason, resolved, created_at
		FROM reconciliations ORDER BY created_at DESC`)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch reconciliations", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	items := []models.Reconciliation{}
	for rows.Next() {
		var rec models.Reconciliation
		if err := rows.Scan(&rec.ID, &rec.Reference, &rec.FromAccount, &rec.ToAccount,
			&rec.Amount, &rec.Reason, &rec.Resolved, &rec.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch reconciliations", http.StatusInternalServerError, nil)
			return
		}
		items = append(items, rec)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

func (as *AdminService) accountIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	accountID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid account ID", http.StatusBadRequest, nil)
		return 0, false
	}
	return accountID, true
}

// parseDate accepts an optional backdate in YYYY-MM-DD or RFC 3339 form.
func (as *AdminService) parseDate(w http.ResponseWriter, raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, true
		}
	}
	SendErrorResponse(w, "Invalid date format", http.StatusBadRequest, nil)
	return nil, false
}

func (as *AdminService) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := as.validator.ValidateStruct(dst); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func (as *AdminService) sendLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidDestination),
		errors.Is(err, ErrUnsupportedPair),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidTransition):
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrDestinationNotFound),
		errors.Is(err, ErrTransactionNotFound):
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, ErrReconciliation):
		log.Printf("[ADMIN] Posting flagged for reconciliation: %v", err)
		SendErrorResponse(w, "Transfer partially applied, flagged for reconciliation", http.StatusInternalServerError, nil)
	default:
		log.Printf("[ADMIN] Posting failed: %v", err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
	}
}
