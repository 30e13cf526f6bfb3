package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/coralwest/backend/internal/models"
)

// TransactionService exposes the user-facing posting and history endpoints.
// All balance mutation goes through the ledger engine; this layer only
// decodes, validates and maps errors onto HTTP responses.
type TransactionService struct {
	db        *sql.DB
	ledger    *LedgerService
	rates     RateProvider
	validator *ValidationHelper
}

func NewTransactionService(db *sql.DB, ledger *LedgerService, rates RateProvider) *TransactionService {
	return &TransactionService{
		db:        db,
		ledger:    ledger,
		rates:     rates,
		validator: NewValidationHelper(),
	}
}

// DepositRequest initiates a user deposit.
type DepositRequest struct {
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Currency string  `json:"currency" validate:"omitempty,len=3"`
	Method   string  `json:"method" validate:"required,min=2,max=40"`
}

// TransferRequest moves funds to another account by account number.
type TransferRequest struct {
	ToAccount   string  `json:"toAccount" validate:"required,account_number"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Description string  `json:"description" validate:"max=200"`
	Method      string  `json:"method" validate:"omitempty,max=40"`
}

// SwapRequest converts between the USD and BTC balances.
type SwapRequest struct {
	FromCurrency string  `json:"fromCurrency" validate:"required,oneof=USD BTC"`
	ToCurrency   string  `json:"toCurrency" validate:"required,oneof=USD BTC"`
	Amount       float64 `json:"amount" validate:"required,gt=0"`
}

// InvestmentDepositRequest moves funds from the primary account into the
// investment wallet.
type InvestmentDepositRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

// CreateDeposit initiates a pending deposit
// @Summary Initiate a deposit
// @Description Record a pending deposit awaiting external settlement
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body DepositRequest true "Deposit details"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /deposits [post]
func (ts *TransactionService) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req DepositRequest
	if !ts.decodeBody(w, r, &req) {
		return
	}
	if req.Currency == "" {
		req.Currency = CurrencyUSD
	}

	entry, err := ts.ledger.PostUserDeposit(userID, req.Amount, strings.ToUpper(req.Currency), req.Method)
	if err != nil {
		ts.sendLedgerError(w, err)
		return
	}

	log.Printf("[DEPOSIT] Pending deposit %s of %.2f %s for user %d", entry.Reference, req.Amount, req.Currency, userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":      "Deposit initiated",
		"transaction":  entry,
		"balanceAfter": entry.BalanceAfter,
	})
}

// CreateTransfer posts a peer-to-peer transfer
// @Summary Create a transfer
// @Description Transfer funds to another account
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body TransferRequest true "Transfer details"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /transfers [post]
func (ts *TransactionService) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req TransferRequest
	if !ts.decodeBody(w, r, &req) {
		return
	}

	entry, err := ts.ledger.PostTransfer(userID, req.ToAccount, req.Amount, req.Description, req.Method)
	if err != nil {
		ts.sendLedgerError(w, err)
		return
	}

	log.Printf("[TRANSFER] %s: %.2f from user %d to %s", entry.Reference, req.Amount, userID, req.ToAccount)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":     "Transfer successful",
		"transaction": entry,
	})
}

// CreateSwap converts between USD and BTC balances
// @Summary Swap currency
// @Description Convert between the USD balance and the bitcoin balance
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body SwapRequest true "Swap details"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /currency-swap [post]
func (ts *TransactionService) CreateSwap(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req SwapRequest
	if !ts.decodeBody(w, r, &req) {
		return
	}

	entry, account, err := ts.ledger.PostSwap(userID, req.FromCurrency, req.ToCurrency, req.Amount)
	if err != nil {
		ts.sendLedgerError(w, err)
		return
	}

	log.Printf("[SWAP] %s: %g %s to %s for user %d", entry.Reference, req.Amount, req.FromCurrency, req.ToCurrency, userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":           "Currency swap successful",
		"transaction":       entry,
		"newBalance":        account.Balance,
		"newBitcoinBalance": account.BitcoinBalance,
	})
}

// GetRate returns the current swap rate
// @Summary Get exchange rate
// @Description Get the BTC/USD rate used by the swap operation
// @Tags transactions
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /currency-swap/rate [get]
func (ts *TransactionService) GetRate(w http.ResponseWriter, r *http.Request) {
	rate, err := ts.rates.Rate(CurrencyBTC, CurrencyUSD)
	if err != nil {
		SendErrorResponse(w, "Rate unavailable", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"rate":         rate,
		"fromCurrency": CurrencyBTC,
		"toCurrency":   CurrencyUSD,
	})
}

// InvestmentDeposit debits the primary account toward the investment wallet
// @Summary Deposit to investment wallet
// @Description Move funds from the primary account into the investment wallet
// @Tags investments
// @Accept json
// @Produce json
// @Param request body InvestmentDepositRequest true "Deposit details"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /investments/deposit [post]
func (ts *TransactionService) InvestmentDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req InvestmentDepositRequest
	if !ts.decodeBody(w, r, &req) {
		return
	}

	entry, err := ts.ledger.PostDebit(userID, req.Amount, CurrencyUSD,
		"Deposit to investment wallet", models.Metadata{"type": "investment_deposit"})
	if err != nil {
		ts.sendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":     "Deposit successful",
		"transaction": entry,
		"newBalance":  entry.BalanceAfter,
	})
}

// ListTransactions retrieves the user's transactions with optional filters
// @Summary List transactions
// @Description Get a paginated list of the user's transactions
// @Tags transactions
// @Produce json
// @Param type query string false "Filter by type"
// @Param status query string false "Filter by status"
// @Param page query int false "Page (default 1)"
// @Param limit query int false "Page size (default 20, max 100)"
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} ErrorResponse
// @Router /transactions [get]
func (ts *TransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)
	if limit > 100 {
		limit = 100
	}

	conditions := []string{"user_id = $1"}
	args := []any{userID}
	argIndex := 2

	if txType := r.URL.Query().Get("type"); txType != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIndex))
		args = append(args, txType)
		argIndex++
	}
	if status := r.URL.Query().Get("status"); status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, status)
		argIndex++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM transactions WHERE " + strings.Join(conditions, " AND ")
	if err := ts.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		log.Printf("[TRANSACTION] Failed to count transactions for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	query := selectTransactionColumns + " WHERE " + strings.Join(conditions, " AND ") +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, (page-1)*limit)

	transactions, err := ts.scanTransactions(query, args...)
	if err != nil {
		log.Printf("[TRANSACTION] Failed to fetch transactions for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
		"total":        total,
		"currentPage":  page,
		"totalPages":   (total + limit - 1) / limit,
	})
}

// GetRecentTransactions retrieves recent transactions
// @Summary Get recent transactions
// @Description Get the user's most recent transactions
// @Tags transactions
// @Produce json
// @Param limit query int false "Number of transactions (default: 10, max: 100)"
// @Success 200 {array} models.Transaction
// @Failure 500 {object} ErrorResponse
// @Router /transactions/recent [get]
func (ts *TransactionService) GetRecentTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Limit int `validate:"omitempty,min=1,max=100"`
	}
	req.Limit = queryInt(r, "limit", 10)

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	transactions, err := ts.scanTransactions(
		selectTransactionColumns+" WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2",
		userID, req.Limit)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch recent transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

// GetTransaction retrieves a single transaction by reference
// @Summary Get transaction
// @Description Retrieve one of the user's transactions by its reference
// @Tags transactions
// @Produce json
// @Param reference path string true "Transaction reference"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} ErrorResponse
// @Router /transactions/{reference} [get]
func (ts *TransactionService) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	reference := chi.URLParam(r, "reference")
	transactions, err := ts.scanTransactions(
		selectTransactionColumns+" WHERE reference = $1 AND user_id = $2", reference, userID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		return
	}
	if len(transactions) == 0 {
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions[0])
}

const selectTransactionColumns = `
	SELECT id, reference, user_id, account_id, type, amount, currency, description,
	       status, COALESCE(from_account, ''), COALESCE(to_account, ''), balance_after, metadata, created_at
	FROM transactions`

func (ts *TransactionService) scanTransactions(query string, args ...any) ([]models.Transaction, error) {
	rows, err := ts.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.ID, &tx.Reference, &tx.UserID, &tx.AccountID, &tx.Type,
			&tx.Amount, &tx.Currency, &tx.Description, &tx.Status, &tx.FromAccount,
			&tx.ToAccount, &tx.BalanceAfter, &tx.Metadata, &tx.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// decodeBody applies the shared body limits and validation before a posting.
func (ts *TransactionService) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
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
	if err := ts.validator.ValidateStruct(dst); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// sendLedgerError maps posting error kinds onto HTTP status codes.
func (ts *TransactionService) sendLedgerError(w http.ResponseWriter, err error) {
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
	case errors.Is(err, ErrAccountInactive):
		SendErrorResponse(w, err.Error(), http.StatusForbidden, nil)
	case errors.Is(err, ErrReconciliation):
		log.Printf("[TRANSACTION] Posting flagged for reconciliation: %v", err)
		SendErrorResponse(w, "Transfer partially applied, flagged for reconciliation", http.StatusInternalServerError, nil)
	default:
		log.Printf("[TRANSACTION] Posting failed: %v", err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}
