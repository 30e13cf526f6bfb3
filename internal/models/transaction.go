package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Transaction types. Sign convention: debits, outgoing transfers and
// investment-wallet moves carry negative amounts; deposits, incoming
// transfers and received credits carry positive amounts.
const (
	TxTypeDeposit  = "deposit"
	TxTypeDebit    = "debit"
	TxTypeTransfer = "transfer"
	TxTypeSwap     = "currency_swap"
	TxTypeReceived = "received"
)

// Transaction statuses. pending may transition to completed or failed;
// completed and failed are terminal.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

// Transaction is one ledger entry: an immutable record of a single
// balance-affecting event. BalanceAfter is the account balance immediately
// after the entry was applied and is never recomputed, even if the status
// changes later.
type Transaction struct {
	ID           int       `json:"id" db:"id"`
	Reference    string    `json:"reference" db:"reference"`
	UserID       int       `json:"user_id" db:"user_id"`
	AccountID    int       `json:"account_id" db:"account_id"`
	Type         string    `json:"type" db:"type"`
	Amount       float64   `json:"amount" db:"amount"`
	Currency     string    `json:"currency" db:"currency"`
	Description  string    `json:"description" db:"description"`
	Status       string    `json:"status" db:"status"`
	FromAccount  string    `json:"from_account,omitempty" db:"from_account"`
	ToAccount    string    `json:"to_account,omitempty" db:"to_account"`
	BalanceAfter float64   `json:"balance_after" db:"balance_after"`
	Metadata     Metadata  `json:"metadata" db:"metadata"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Reconciliation flags a partial transfer application: the source account was
// debited but the destination credit never landed. Rows here require manual
// repair by an administrator.
type Reconciliation struct {
	ID          int       `json:"id" db:"id"`
	Reference   string    `json:"reference" db:"reference"`
	FromAccount string    `json:"from_account" db:"from_account"`
	ToAccount   string    `json:"to_account" db:"to_account"`
	Amount      float64   `json:"amount" db:"amount"`
	Reason      string    `json:"reason" db:"reason"`
	Resolved    bool      `json:"resolved" db:"resolved"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Metadata type for JSONB fields
type Metadata map[string]any

// Value implements driver.Valuer for Metadata
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for Metadata
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, m)
}
