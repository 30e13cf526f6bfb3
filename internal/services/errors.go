package services

import "errors"

// Posting error kinds. Every ledger operation reports its failure as one of
// these, wrapped with context; handlers map them onto HTTP status codes.
var (
	// ErrInvalidAmount rejects amounts that are zero, negative or malformed.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds rejects debits exceeding the available balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountNotFound means the acting account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDestinationNotFound means the transfer destination does not resolve.
	ErrDestinationNotFound = errors.New("destination account not found")

	// ErrInvalidDestination rejects transfers where source and destination
	// are the same account.
	ErrInvalidDestination = errors.New("invalid destination account")

	// ErrUnsupportedPair rejects swap pairs other than USD/BTC in either
	// direction.
	ErrUnsupportedPair = errors.New("unsupported currency pair")

	// ErrAccountInactive blocks user-initiated postings on non-active accounts.
	ErrAccountInactive = errors.New("account not active")

	// ErrTransactionNotFound means no ledger entry has the given reference.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInvalidTransition rejects a status change on a non-pending entry.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrReconciliation marks a partially applied transfer: the source was
	// debited but the destination credit failed. The gap is durably recorded
	// for manual repair, never silently rolled back.
	ErrReconciliation = errors.New("transfer requires reconciliation")
)
