package models

import (
	"time"
)

// Account status values. Anything other than active blocks user-initiated
// balance mutations; administrative postings are exempt.
const (
	AccountStatusActive    = "active"
	AccountStatusInactive  = "inactive"
	AccountStatusSuspended = "suspended"
)

// Account represents a customer account holding a USD balance and a
// bitcoin balance convertible through the swap rate.
type Account struct {
	ID             int       `json:"id" db:"id"`
	UserID         int       `json:"user_id" db:"user_id"`
	AccountNumber  string    `json:"account_number" db:"account_number"`
	AccountType    string    `json:"account_type" db:"account_type"`
	Balance        float64   `json:"balance" db:"balance"`
	BitcoinBalance float64   `json:"bitcoin_balance" db:"bitcoin_balance"`
	Currency       string    `json:"currency" db:"currency"`
	IsPrimary      bool      `json:"is_primary" db:"is_primary"`
	Status         string    `json:"status" db:"status"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// AccountTypes accepted at registration and admin account creation.
const (
	AccountTypeChecking  = "checking"
	AccountTypeSavings   = "savings"
	AccountTypeHighYield = "high-yield"
)
