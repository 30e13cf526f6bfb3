package services

import (
	"bytes"
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

func newTestAdminService(t *testing.T) (*AdminService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	viper.Set("rates.btc_usd", 92600.0)
	ledger := NewLedgerService(db, nil, NewFixedRateProvider())
	service := NewAdminService(db, ledger)
	return service, mock, func() { db.Close() }
}

func adminRouter(service *AdminService) chi.Router {
	r := chi.NewRouter()
	r.Get("/admin/overview", service.Overview)
	r.Patch("/admin/users/{id}", service.UpdateUser)
	r.Post("/admin/accounts", service.CreateAccount)
	r.Patch("/admin/accounts/{id}", service.UpdateAccount)
	r.Post("/admin/accounts/{id}/deposit", service.Deposit)
	r.Post("/admin/accounts/{id}/debit", service.Debit)
	r.Post("/admin/accounts/{id}/receive", service.Receive)
	r.Post("/admin/accounts/{id}/transfer", service.Transfer)
	r.Patch("/admin/transactions/{reference}", service.UpdateTransactionStatus)
	r.Get("/admin/reconciliations", service.ListReconciliations)
	return r
}

func TestAdminService_Overview(t *testing.T) {
	service, mock, closeDB := newTestAdminService(t)
	defer closeDB()

	mock.ExpectQuery(`(?s)SELECT.*FROM users.*FROM accounts.*FROM transactions`).
		WillReturnRows(sqlmock.NewRows([]string{"users", "accounts", "balance", "transactions", "pending"}).
			AddRow(3, 4, 1250.0, 17, 2))

	r := httptest.NewRequest("GET", "/admin/overview", nil)
	w := httptest.NewRecorder()
	adminRouter(service).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]any
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, 3.0, response["totalUsers"])
	assert.Equal(t, 1250.0, response["totalBalance"])
	assert.Equal(t, 2.0, response["pendingTransactions"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminService_UpdateUser(t *testing.T) {
	service, mock, closeDB := newTestAdminService(t)
	defer closeDB()

	t.Run("suspends a user", func(t *testing.T) {
		mock.ExpectExec(`UPDATE users SET`).
			WithArgs("suspended", 5).
			WillReturnResult(sqlmock.NewResult(0, 1))

		body, _ := json.Marshal(map[string]string{"status": "suspended"})
		r := httptest.NewRequest("PATCH", "/admin/users/5", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		adminRouter(service).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty patch is rejected", func(t *testing.T) {
		body, _ := json.Marshal(map[string]string{})
		r := httptest.NewRequest("PATCH", "/admin/users/5", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		adminRouter(service).ServeHTTP(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown user maps to 404", func(t *testing.T) {
		mock.ExpectExec(`UPDATE users SET`).
			WithArgs("inactive", 99).
			WillReturnResult(sqlmock.NewResult(0, 0))

		body, _ := json.Marshal(map[string]string{"status": "inactive"})
		r := httptest.NewRequest("PATCH", "/admin/users/99", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		adminRouter(service).ServeHTTP(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAdminService_CreateAccount(t *testing.T) {
	service, mock, closeDB := newTestAdminService(t)
	defer closeDB()

	t.Run("opens a secondary account", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(`INSERT INTO accounts`).
			WithArgs(2, sqlmock.AnyArg(), "savings", "USD").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "account_number", "account_type", "balance",
				"bitcoin_balance", "currency", "is_primary", "status", "created_at", "updated_at"}).
				AddRow(7, 2, "987654321098", "savings", 0.0, 0.0, "USD", false, "active", time.Now(), time.Now()))

		body, _ := json.Marshal(CreateAccountRequest{UserID: 2, AccountType: "savings"})
		r := httptest.NewRequest("POST", "/admin/accounts", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		adminRouter(service).ServeHTTP(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user maps to 404", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(99).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		body, _ := json.Marshal(CreateAccountRequest{UserID: 99, AccountType: "checking"})
		r := httptest.NewRequest("POST", "/admin/accounts", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		adminRouter(service).ServeHTTP(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAdminService_Deposit(t *testing.T) {
	service, mock, closeDB := newTestAdminService(t)
	defer closeDB()

	t.Run("credits immediately and settles", func(t *testing.T) {
		expectAccountByID(mock, 10, 1, "111122223333", 100)

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts SET balance = balance \\+ \\$1").
			WithArgs(500.0, 10).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(600.0))
		expectInsertEntry(mock, 1)
		mock.ExpectCommit()

		body, _ := json.Marshal(AdminDepositRequest{Amount: 500, DepositorName: "ACME Payroll", DepositType: "salary"})
		r := httptest.NewRequest("POST", "/admin/accounts/10/deposit", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		adminRouter(service).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, 600.0, response["newBalance"])
		tx := response["transaction"].(map[string]any)
		assert.Equal(t, "completed", tx["status"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("backdated deposit accepts a date", func(t *testing.T) {
		expectAccountByID(mock, 10, 1, "111122223333", 100)

		occurredAt := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts SET balance = balance \\+ \\$1").
			WithArgs(500.0, 10).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(600.0))
		mock.ExpectQuery("INSERT INTO transactions").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, occurredAt))
		mock.ExpectCommit()

		body, _ := json.Marshal(AdminDepositRequest{Amount: 500, Date: "2026-01-15"})
		r := httptest.NewRequest("POST", "/admin/accounts/10/deposit", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		adminRouter(service).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unparseable date is rejected", func(t *testing.T) {
		body, _ := json.Marshal(AdminDepositRequest{Amount: 500, Date: "15/01/2026"})
		r := httptest.NewRequest("POST", "/admin/accounts/10/deposit", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		adminRouter(service).ServeHTTP(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminService_Receive(t *testing.T) {
	service, mock, closeDB := newTestAdminService(t)
	defer closeDB()

	t.Run("sender details are required", func(t *testing.T) {
		body, _ := json.Marshal(AdminReceiveRequest{Amount: 100})
		r := httptest.NewRequest("POST", "/admin/accounts/10/receive", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		adminRouter(service).ServeHTTP(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("records the received transfer", func(t *testing.T) {
		expectAccountByID(mock, 10, 1, "111122223333", 100)

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts SET balance = balance \\+ \\$1").
			WithArgs(100.0, 10).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(200.0))
		expectInsertEntry(mock, 1)
		mock.ExpectCommit()

		body, _ := json.Marshal(AdminReceiveRequest{Amount: 100, SenderName: "Jane Roe", SenderAccount: "EXT-555"})
		r := httptest.NewRequest("POST", "/admin/accounts/10/receive", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		adminRouter(service).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		tx := response["transaction"].(map[string]any)
		assert.Equal(t, "received", tx["type"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAdminService_Transfer(t *testing.T) {
	service, mock, closeDB := newTestAdminService(t)
	defer closeDB()

	t.Run("external destination records only the debit side", func(t *testing.T) {
		expectAccountByID(mock, 10, 1, "111122223333", 500)

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE accounts SET balance = balance - \\$1").
			WithArgs(200.0, 10).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(300.0))
		expectInsertEntry(mock, 1)
		mock.ExpectCommit()

		// Destination is not held internally, so no credit leg follows.
		mock.ExpectQuery(`(?s)SELECT id, user_id, account_number.*FROM accounts.*WHERE account_number = \$1`).
			WithArgs("EXT-99999999").
			WillReturnError(sql.ErrNoRows)

		body, _ := json.Marshal(AdminTransferRequest{ToAccount: "EXT-99999999", Amount: 200, RecipientName: "John Roe"})
		r := httptest.NewRequest("POST", "/admin/accounts/10/transfer", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		adminRouter(service).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		tx := response["transaction"].(map[string]any)
		assert.Equal(t, -200.0, tx["amount"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAdminService_UpdateTransactionStatus(t *testing.T) {
	service, mock, closeDB := newTestAdminService(t)
	defer closeDB()

	transitionCols := []string{"id", "reference", "user_id", "account_id", "type", "amount",
		"currency", "description", "status", "from_account", "to_account", "balance_after", "created_at"}

	t.Run("completes a pending deposit", func(t *testing.T) {
		mock.ExpectQuery(`(?s)UPDATE transactions SET status = \$1.*WHERE reference = \$2 AND status = 'pending'`).
			WithArgs("completed", "TXN-abc").
			WillReturnRows(sqlmock.NewRows(transitionCols).
				AddRow(1, "TXN-abc", 1, 10, "deposit", 100.0, "USD", "Deposit via wire", "completed", "", "", 250.0, time.Now()))

		body, _ := json.Marshal(UpdateTransactionStatusRequest{Status: "completed"})
		r := httptest.NewRequest("PATCH", "/admin/transactions/TXN-abc", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		adminRouter(service).ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("settled transaction maps to 400", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE transactions SET status = \$1`).
			WithArgs("failed", "TXN-abc").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`SELECT status FROM transactions WHERE reference = \$1`).
			WithArgs("TXN-abc").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))

		body, _ := json.Marshal(UpdateTransactionStatusRequest{Status: "failed"})
		r := httptest.NewRequest("PATCH", "/admin/transactions/TXN-abc", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		adminRouter(service).ServeHTTP(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("only terminal statuses are accepted", func(t *testing.T) {
		body, _ := json.Marshal(UpdateTransactionStatusRequest{Status: "pending"})
		r := httptest.NewRequest("PATCH", "/admin/transactions/TXN-abc", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		adminRouter(service).ServeHTTP(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminService_ListReconciliations(t *testing.T) {
	service, mock, closeDB := newTestAdminService(t)
	defer closeDB()

	mock.ExpectQuery(`(?s)SELECT id, reference, from_account.*FROM reconciliations`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "reference", "from_account", "to_account", "amount", "reason", "resolved", "created_at"}).
			AddRow(1, "TXN-abc", "111122223333", "444455556666", 20.0, "credit failed", false, time.Now()))

	r := httptest.NewRequest("GET", "/admin/reconciliations", nil)
	w := httptest.NewRecorder()
	adminRouter(service).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	var items []map[string]any
	json.Unmarshal(w.Body.Bytes(), &items)
	assert.Len(t, items, 1)
	assert.Equal(t, false, items[0]["resolved"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
