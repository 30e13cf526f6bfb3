package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func newTestTransactionService(t *testing.T) (*TransactionService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	viper.Set("rates.btc_usd", 92600.0)
	rates := NewFixedRateProvider()
	ledger := NewLedgerService(db, nil, rates)
	service := NewTransactionService(db, ledger, rates)
	return service, mock, func() { db.Close() }
}

func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), "userID", userID))
}

var transactionCols = []string{"id", "reference", "user_id", "account_id", "type", "amount",
	"currency", "description", "status", "from_account", "to_account", "balance_after", "metadata", "created_at"}

func TestTransactionService_CreateDeposit(t *testing.T) {
	service, mock, closeDB := newTestTransactionService(t)
	defer closeDB()

	t.Run("deposit is recorded as pending", func(t *testing.T) {
		expectPrimaryAccount(mock, 1, 10, "111122223333", 250, 0)
		expectInsertEntry(mock, 1)

		body, _ := json.Marshal(DepositRequest{Amount: 100, Method: "bank_transfer"})
		r := asUser(httptest.NewRequest("POST", "/deposits", bytes.NewBuffer(body)), "1")
		w := httptest.NewRecorder()

		service.CreateDeposit(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, "Deposit initiated", response["message"])
		tx := response["transaction"].(map[string]any)
		assert.Equal(t, "pending", tx["status"])
		assert.Equal(t, 250.0, response["balanceAfter"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing auth context", func(t *testing.T) {
		body, _ := json.Marshal(DepositRequest{Amount: 100, Method: "bank_transfer"})
		r := httptest.NewRequest("POST", "/deposits", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.CreateDeposit(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := asUser(httptest.NewRequest("POST", "/deposits", bytes.NewBuffer([]byte("invalid"))), "1")
		w := httptest.NewRecorder()

		service.CreateDeposit(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("zero amount fails validation", func(t *testing.T) {
		body, _ := json.Marshal(DepositRequest{Amount: 0, Method: "bank_transfer"})
		r := asUser(httptest.NewRequest("POST", "/deposits", bytes.NewBuffer(body)), "1")
		w := httptest.NewRecorder()

		service.CreateDeposit(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTransactionService_CreateTransfer(t *testing.T) {
	service, mock, closeDB := newTestTransactionService(t)
	defer closeDB()

	t.Run("unknown destination maps to 404", func(t *testing.T) {
		expectPrimaryAccount(mock, 1, 10, "111122223333", 50, 0)
		mock.ExpectQuery(`(?s)SELECT id, user_id, account_number.*FROM accounts.*WHERE account_number = \$1`).
			WithArgs("000000000000").
			WillReturnError(sql.ErrNoRows)

		body, _ := json.Marshal(TransferRequest{ToAccount: "000000000000", Amount: 20})
		r := asUser(httptest.NewRequest("POST", "/transfers", bytes.NewBuffer(body)), "1")
		w := httptest.NewRecorder()

		service.CreateTransfer(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds maps to 400", func(t *testing.T) {
		expectPrimaryAccount(mock, 1, 10, "111122223333", 5, 0)
		expectAccountByNumber(mock, "444455556666", 20, 2, 10)

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts SET balance = balance - \\$1").
			WithArgs(20.0, 10).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))
		expectAccountByID(mock, 10, 1, "111122223333", 5)
		mock.ExpectRollback()

		body, _ := json.Marshal(TransferRequest{ToAccount: "444455556666", Amount: 20})
		r := asUser(httptest.NewRequest("POST", "/transfers", bytes.NewBuffer(body)), "1")
		w := httptest.NewRecorder()

		service.CreateTransfer(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("malformed destination number fails validation", func(t *testing.T) {
		body, _ := json.Marshal(TransferRequest{ToAccount: "12ab", Amount: 20})
		r := asUser(httptest.NewRequest("POST", "/transfers", bytes.NewBuffer(body)), "1")
		w := httptest.NewRecorder()

		service.CreateTransfer(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTransactionService_CreateSwap(t *testing.T) {
	service, mock, closeDB := newTestTransactionService(t)
	defer closeDB()

	t.Run("swap returns both updated balances", func(t *testing.T) {
		expectPrimaryAccount(mock, 1, 10, "111122223333", 92600, 0)

		mock.ExpectBegin()
		mock.ExpectQuery(`(?s)UPDATE accounts.*SET balance = balance - \$1, bitcoin_balance = bitcoin_balance \+ \$2`).
			WithArgs(92600.0, 1.0, 10).
			WillReturnRows(sqlmock.NewRows([]string{"balance", "bitcoin_balance"}).AddRow(0.0, 1.0))
		expectInsertEntry(mock, 1)
		mock.ExpectCommit()

		body, _ := json.Marshal(SwapRequest{FromCurrency: "USD", ToCurrency: "BTC", Amount: 92600})
		r := asUser(httptest.NewRequest("POST", "/currency-swap", bytes.NewBuffer(body)), "1")
		w := httptest.NewRecorder()

		service.CreateSwap(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, 0.0, response["newBalance"])
		assert.Equal(t, 1.0, response["newBitcoinBalance"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unsupported currency fails validation", func(t *testing.T) {
		body, _ := json.Marshal(SwapRequest{FromCurrency: "EUR", ToCurrency: "BTC", Amount: 100})
		r := asUser(httptest.NewRequest("POST", "/currency-swap", bytes.NewBuffer(body)), "1")
		w := httptest.NewRecorder()

		service.CreateSwap(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("same currency on both sides maps to 400", func(t *testing.T) {
		body, _ := json.Marshal(SwapRequest{FromCurrency: "USD", ToCurrency: "USD", Amount: 100})
		r := asUser(httptest.NewRequest("POST", "/currency-swap", bytes.NewBuffer(body)), "1")
		w := httptest.NewRecorder()

		service.CreateSwap(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTransactionService_GetRate(t *testing.T) {
	service, _, closeDB := newTestTransactionService(t)
	defer closeDB()

	r := httptest.NewRequest("GET", "/currency-swap/rate", nil)
	w := httptest.NewRecorder()

	service.GetRate(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]any
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, 92600.0, response["rate"])
	assert.Equal(t, "BTC", response["fromCurrency"])
}

func TestTransactionService_InvestmentDeposit(t *testing.T) {
	service, mock, closeDB := newTestTransactionService(t)
	defer closeDB()

	t.Run("moves funds out of the primary account", func(t *testing.T) {
		expectPrimaryAccount(mock, 1, 10, "111122223333", 100, 0)

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts SET balance = balance - \\$1").
			WithArgs(60.0, 10).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(40.0))
		expectInsertEntry(mock, 1)
		mock.ExpectCommit()

		body, _ := json.Marshal(InvestmentDepositRequest{Amount: 60})
		r := asUser(httptest.NewRequest("POST", "/investments/deposit", bytes.NewBuffer(body)), "1")
		w := httptest.NewRecorder()

		service.InvestmentDeposit(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, 40.0, response["newBalance"])
		tx := response["transaction"].(map[string]any)
		assert.Equal(t, -60.0, tx["amount"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionService_ListTransactions(t *testing.T) {
	service, mock, closeDB := newTestTransactionService(t)
	defer closeDB()

	t.Run("filters by type and pages the result", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM transactions WHERE user_id = \$1 AND type = \$2`).
			WithArgs(1, "transfer").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery(`(?s)SELECT id, reference, user_id.*FROM transactions WHERE user_id = \$1 AND type = \$2 ORDER BY created_at DESC`).
			WithArgs(1, "transfer", 20, 0).
			WillReturnRows(sqlmock.NewRows(transactionCols).
				AddRow(1, "TXN-abc", 1, 10, "transfer", -20.0, "USD", "Rent", "completed",
					"111122223333", "444455556666", 30.0, []byte(`{"method":"wire"}`), time.Now()))

		r := asUser(httptest.NewRequest("GET", "/transactions?type=transfer", nil), "1")
		w := httptest.NewRecorder()

		service.ListTransactions(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, 1.0, response["total"])
		transactions := response["transactions"].([]any)
		assert.Len(t, transactions, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionService_GetRecentTransactions(t *testing.T) {
	service, mock, closeDB := newTestTransactionService(t)
	defer closeDB()

	t.Run("limit above 100 fails validation", func(t *testing.T) {
		r := asUser(httptest.NewRequest("GET", "/transactions/recent?limit=500", nil), "1")
		w := httptest.NewRecorder()

		service.GetRecentTransactions(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("defaults to ten entries", func(t *testing.T) {
		mock.ExpectQuery(`(?s)SELECT id, reference, user_id.*FROM transactions WHERE user_id = \$1 ORDER BY created_at DESC LIMIT \$2`).
			WithArgs(1, 10).
			WillReturnRows(sqlmock.NewRows(transactionCols))

		r := asUser(httptest.NewRequest("GET", "/transactions/recent", nil), "1")
		w := httptest.NewRecorder()

		service.GetRecentTransactions(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionService_GetTransaction(t *testing.T) {
	service, mock, closeDB := newTestTransactionService(t)
	defer closeDB()

	router := chi.NewRouter()
	router.Get("/transactions/{reference}", func(w http.ResponseWriter, r *http.Request) {
		service.GetTransaction(w, asUser(r, "1"))
	})

	t.Run("returns the entry when owned by the caller", func(t *testing.T) {
		mock.ExpectQuery(`(?s)SELECT id, reference, user_id.*FROM transactions WHERE reference = \$1 AND user_id = \$2`).
			WithArgs("TXN-abc", 1).
			WillReturnRows(sqlmock.NewRows(transactionCols).
				AddRow(1, "TXN-abc", 1, 10, "deposit", 100.0, "USD", "Deposit via wire", "pending",
					"", "", 250.0, []byte(`{"method":"wire"}`), time.Now()))

		r := httptest.NewRequest("GET", "/transactions/TXN-abc", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing reference maps to 404", func(t *testing.T) {
		mock.ExpectQuery(`(?s)SELECT id, reference, user_id.*FROM transactions WHERE reference = \$1 AND user_id = \$2`).
			WithArgs("TXN-missing", 1).
			WillReturnRows(sqlmock.NewRows(transactionCols))

		r := httptest.NewRequest("GET", "/transactions/TXN-missing", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
