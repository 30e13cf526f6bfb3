package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/coralwest/backend/internal/models"
)

// LedgerService is the posting engine: it validates balance-affecting
// operations, applies them to the accounts table and appends the matching
// ledger entries. Every balance mutation is a single conditional UPDATE
// against the stored value (balance = balance - $n WHERE balance >= $n),
// never a read-modify-write of a previously fetched balance, since a stale
// read under concurrent requests would permit overdraft.
type LedgerService struct {
	db    *sql.DB
	redis *redis.Client
	rates RateProvider
}

func NewLedgerService(db *sql.DB, redisClient *redis.Client, rates RateProvider) *LedgerService {
	return &LedgerService{
		db:    db,
		redis: redisClient,
		rates: rates,
	}
}

// runner is satisfied by both *sql.DB and *sql.Tx.
type runner interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// PostUserDeposit records a user-initiated deposit as pending. The balance is
// not credited here: it stays untouched until an external settlement step
// completes the entry, so BalanceAfter snapshots the current balance.
func (s *LedgerService) PostUserDeposit(userID int, amount float64, currency, method string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %.2f", ErrInvalidAmount, amount)
	}

	account, err := s.primaryAccount(userID)
	if err != nil {
		return nil, err
	}
	if account.Status != models.AccountStatusActive {
		return nil, fmt.Errorf("%w: %s", ErrAccountInactive, account.AccountNumber)
	}

	entry := &models.Transaction{
		UserID:       userID,
		AccountID:    account.ID,
		Type:         models.TxTypeDeposit,
		Amount:       amount,
		Currency:     currency,
		Description:  fmt.Sprintf("Deposit via %s", method),
		Status:       models.TxStatusPending,
		BalanceAfter: account.Balance,
		Metadata:     models.Metadata{"method": method},
	}

	if err := s.insertEntry(s.db, entry, nil); err != nil {
		return nil, err
	}
	return entry, nil
}

// PostDebit decrements the account balance and appends a completed debit
// entry carrying the negative amount. Used for user-initiated debits such as
// investment-wallet deposits.
func (s *LedgerService) PostDebit(userID int, amount float64, currency, description string, metadata models.Metadata) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %.2f", ErrInvalidAmount, amount)
	}

	account, err := s.primaryAccount(userID)
	if err != nil {
		return nil, err
	}
	if account.Status != models.AccountStatusActive {
		return nil, fmt.Errorf("%w: %s", ErrAccountInactive, account.AccountNumber)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	newBalance, err := s.debitBalance(tx, account.ID, amount)
	if err != nil {
		return nil, err
	}

	entry := &models.Transaction{
		UserID:       userID,
		AccountID:    account.ID,
		Type:         models.TxTypeDebit,
		Amount:       -amount,
		Currency:     currency,
		Description:  description,
		Status:       models.TxStatusCompleted,
		BalanceAfter: newBalance,
		Metadata:     metadata,
	}
	if err := s.insertEntry(tx, entry, nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// PostTransfer moves amount from the user's primary account to the account
// addressed by destination number. It produces exactly two entries, a debit
// on the source and a credit on the destination, with the same absolute
// amount, opposite signs, and each referencing the other side's account
// number. The source side commits first; if the destination side then fails,
// the gap is recorded as a reconciliation failure and surfaced to the caller
// rather than rolled back, since a compensating credit would race with other
// writers.
func (s *LedgerService) PostTransfer(userID int, destinationNumber string, amount float64, description, method string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %.2f", ErrInvalidAmount, amount)
	}

	source, err := s.primaryAccount(userID)
	if err != nil {
		return nil, err
	}
	if source.Status != models.AccountStatusActive {
		return nil, fmt.Errorf("%w: %s", ErrAccountInactive, source.AccountNumber)
	}
	if source.AccountNumber == destinationNumber {
		return nil, fmt.Errorf("%w: cannot transfer to own account %s", ErrInvalidDestination, destinationNumber)
	}

	destination, err := s.accountByNumber(destinationNumber)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDestinationNotFound, destinationNumber)
		}
		return nil, err
	}

	if description == "" {
		description = fmt.Sprintf("Transfer to %s", destinationNumber)
	}
	if method == "" {
		method = "wire"
	}

	// Source side: conditional decrement plus debit entry, one transaction.
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sourceBalance, err := s.debitBalance(tx, source.ID, amount)
	if err != nil {
		return nil, err
	}

	debitEntry := &models.Transaction{
		UserID:       userID,
		AccountID:    source.ID,
		Type:         models.TxTypeTransfer,
		Amount:       -amount,
		Currency:     CurrencyUSD,
		Description:  description,
		Status:       models.TxStatusCompleted,
		FromAccount:  source.AccountNumber,
		ToAccount:    destinationNumber,
		BalanceAfter: sourceBalance,
		Metadata:     models.Metadata{"method": method},
	}
	if err := s.insertEntry(tx, debitEntry, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	// Destination side. From here on the source debit is durable; any failure
	// is a consistency gap, not a user error.
	if err := s.creditTransferLeg(destination, source.AccountNumber, amount, description, method); err != nil {
		s.recordReconciliation(debitEntry.Reference, source.AccountNumber, destinationNumber, amount, err)
		return debitEntry, fmt.Errorf("%w: %s", ErrReconciliation, debitEntry.Reference)
	}

	return debitEntry, nil
}

func (s *LedgerService) creditTransferLeg(destination *models.Account, fromNumber string, amount float64, description, method string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	destBalance, err := s.creditBalance(tx, destination.ID, amount)
	if err != nil {
		return err
	}

	creditEntry := &models.Transaction{
		UserID:       destination.UserID,
		AccountID:    destination.ID,
		Type:         models.TxTypeTransfer,
		Amount:       amount,
		Currency:     CurrencyUSD,
		Description:  fmt.Sprintf("Transfer from %s", fromNumber),
		Status:       models.TxStatusCompleted,
		FromAccount:  fromNumber,
		ToAccount:    destination.AccountNumber,
		BalanceAfter: destBalance,
		Metadata:     models.Metadata{"method": method},
	}
	if err := s.insertEntry(tx, creditEntry, nil); err != nil {
		return err
	}

	return tx.Commit()
}

// PostSwap converts between the USD balance and the bitcoin balance at the
// provider rate. Forward (USD to BTC) divides by the rate, backward
// multiplies, so an immediate round trip returns the original amount. The
// entry amount is signed by the effect on the USD balance.
func (s *LedgerService) PostSwap(userID int, fromCurrency, toCurrency string, amount float64) (*models.Transaction, *models.Account, error) {
	if amount <= 0 {
		return nil, nil, fmt.Errorf("%w: %.2f", ErrInvalidAmount, amount)
	}

	forward := fromCurrency == CurrencyUSD && toCurrency == CurrencyBTC
	backward := fromCurrency == CurrencyBTC && toCurrency == CurrencyUSD
	if !forward && !backward {
		return nil, nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedPair, fromCurrency, toCurrency)
	}

	account, err := s.primaryAccount(userID)
	if err != nil {
		return nil, nil, err
	}
	if account.Status != models.AccountStatusActive {
		return nil, nil, fmt.Errorf("%w: %s", ErrAccountInactive, account.AccountNumber)
	}

	rate, err := s.rates.Rate(CurrencyBTC, CurrencyUSD)
	if err != nil {
		return nil, nil, err
	}

	var (
		converted   float64
		entryAmount float64
		query       string
	)
	if forward {
		converted = amount / rate
		entryAmount = -amount
		query = `
			UPDATE accounts
			SET balance = balance - $1, bitcoin_balance = bitcoin_balance + $2, updated_at = NOW()
			WHERE id = $3 AND balance >= $1
			RETURNING balance, bitcoin_balance`
	} else {
		converted = amount * rate
		entryAmount = converted
		query = `
			UPDATE accounts
			SET bitcoin_balance = bitcoin_balance - $1, balance = balance + $2, updated_at = NOW()
			WHERE id = $3 AND bitcoin_balance >= $1
			RETURNING balance, bitcoin_balance`
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var newBalance, newBTC float64
	err = tx.QueryRow(query, amount, converted, account.ID).Scan(&newBalance, &newBTC)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("%w: %s balance below %.8f", ErrInsufficientFunds, fromCurrency, amount)
	}
	if err != nil {
		return nil, nil, err
	}

	entry := &models.Transaction{
		UserID:       userID,
		AccountID:    account.ID,
		Type:         models.TxTypeSwap,
		Amount:       entryAmount,
		Currency:     CurrencyUSD,
		Description:  fmt.Sprintf("Swapped %g %s to %g %s", amount, fromCurrency, converted, toCurrency),
		Status:       models.TxStatusCompleted,
		BalanceAfter: newBalance,
		Metadata: models.Metadata{
			"fromCurrency":    fromCurrency,
			"toCurrency":      toCurrency,
			"amount":          amount,
			"convertedAmount": converted,
			"exchangeRate":    rate,
		},
	}
	if err := s.insertEntry(tx, entry, nil); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	account.Balance = newBalance
	account.BitcoinBalance = newBTC
	return entry, account, nil
}

// Admin adjustment directions.
const (
	AdjustDebit   = "debit"
	AdjustCredit  = "credit"
	AdjustReceive = "receive"
)

// PostAdminAdjustment applies an administrative debit, credit or received
// transfer to an account. Administrative postings are authoritative: they
// settle immediately, bypass the account-status gate, and may be backdated
// via occurredAt for events that predate system entry. The receive direction
// credits the balance with sender metadata and performs no balance check.
func (s *LedgerService) PostAdminAdjustment(accountID int, direction string, amount float64, currency, description string, occurredAt *time.Time, metadata models.Metadata) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %.2f", ErrInvalidAmount, amount)
	}

	account, err := s.accountByID(accountID)
	if err != nil {
		return nil, err
	}
	if currency == "" {
		currency = account.Currency
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	entry := &models.Transaction{
		UserID:    account.UserID,
		AccountID: account.ID,
		Currency:  currency,
		Status:    models.TxStatusCompleted,
		Metadata:  metadata,
	}

	switch direction {
	case AdjustDebit:
		newBalance, err := s.debitBalance(tx, account.ID, amount)
		if err != nil {
			return nil, err
		}
		entry.Type = models.TxTypeDebit
		entry.Amount = -amount
		entry.BalanceAfter = newBalance
		entry.Description = orDefault(description, "Admin debit")
	case AdjustCredit:
		newBalance, err := s.creditBalance(tx, account.ID, amount)
		if err != nil {
			return nil, err
		}
		entry.Type = models.TxTypeDeposit
		entry.Amount = amount
		entry.BalanceAfter = newBalance
		entry.Description = orDefault(description, "Admin deposit")
	case AdjustReceive:
		newBalance, err := s.creditBalance(tx, account.ID, amount)
		if err != nil {
			return nil, err
		}
		entry.Type = models.TxTypeReceived
		entry.Amount = amount
		entry.BalanceAfter = newBalance
		entry.Description = orDefault(description, "Received transfer")
	default:
		return nil, fmt.Errorf("unknown adjustment direction %q", direction)
	}

	if err := s.insertEntry(tx, entry, occurredAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// PostAdminTransfer debits an account toward a destination account number.
// If the destination is held internally it is credited with the paired
// entry; otherwise only the debit side is recorded, the counterpart being a
// real-world account outside the system.
func (s *LedgerService) PostAdminTransfer(accountID int, destinationNumber string, amount float64, description, method string, occurredAt *time.Time, metadata models.Metadata) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %.2f", ErrInvalidAmount, amount)
	}

	source, err := s.accountByID(accountID)
	if err != nil {
		return nil, err
	}
	if source.AccountNumber == destinationNumber {
		return nil, fmt.Errorf("%w: cannot transfer to own account %s", ErrInvalidDestination, destinationNumber)
	}

	if description == "" {
		description = fmt.Sprintf("Transfer to %s", destinationNumber)
	}
	if metadata == nil {
		metadata = models.Metadata{}
	}
	metadata["method"] = method

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sourceBalance, err := s.debitBalance(tx, source.ID, amount)
	if err != nil {
		return nil, err
	}

	debitEntry := &models.Transaction{
		UserID:       source.UserID,
		AccountID:    source.ID,
		Type:         models.TxTypeTransfer,
		Amount:       -amount,
		Currency:     source.Currency,
		Description:  description,
		Status:       models.TxStatusCompleted,
		FromAccount:  source.AccountNumber,
		ToAccount:    destinationNumber,
		BalanceAfter: sourceBalance,
		Metadata:     metadata,
	}
	if err := s.insertEntry(tx, debitEntry, occurredAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	// The debit is durable from here. Only a confirmed not-found means the
	// destination is external; a failed lookup could hide an internal account
	// owed the credit leg, so it is flagged for reconciliation like a failed
	// credit.
	destination, err := s.accountByNumber(destinationNumber)
	switch {
	case err == nil:
		if err := s.creditTransferLeg(destination, source.AccountNumber, amount, description, method); err != nil {
			s.recordReconciliation(debitEntry.Reference, source.AccountNumber, destinationNumber, amount, err)
			return debitEntry, fmt.Errorf("%w: %s", ErrReconciliation, debitEntry.Reference)
		}
	case errors.Is(err, ErrAccountNotFound):
		// External destination, debit side only.
	default:
		s.recordReconciliation(debitEntry.Reference, source.AccountNumber, destinationNumber, amount, err)
		return debitEntry, fmt.Errorf("%w: %s", ErrReconciliation, debitEntry.Reference)
	}

	return debitEntry, nil
}

// TransitionStatus moves a pending entry to completed or failed. Completed
// and failed are terminal. Only the status column changes: the BalanceAfter
// snapshot taken at posting time is never revised.
func (s *LedgerService) TransitionStatus(reference, status string) (*models.Transaction, error) {
	if status != models.TxStatusCompleted && status != models.TxStatusFailed {
		return nil, fmt.Errorf("%w: to %q", ErrInvalidTransition, status)
	}

	entry := &models.Transaction{}
	err := s.db.QueryRow(`
		UPDATE transactions SET status = $1
		WHERE reference = $2 AND status = 'pending'
		RETURNING id, reference, user_id, account_id, type, amount, currency,
		          description, status, COALESCE(from_account, ''), COALESCE(to_account, ''),
		          balance_after, created_at`,
		status, reference).Scan(
		&entry.ID, &entry.Reference, &entry.UserID, &entry.AccountID, &entry.Type,
		&entry.Amount, &entry.Currency, &entry.Description, &entry.Status,
		&entry.FromAccount, &entry.ToAccount, &entry.BalanceAfter, &entry.CreatedAt,
	)
	if err == sql.ErrNoRows {
		var current string
		if err := s.db.QueryRow(`SELECT status FROM transactions WHERE reference = $1`, reference).Scan(&current); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, reference)
		}
		return nil, fmt.Errorf("%w: %s is already %s", ErrInvalidTransition, reference, current)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// debitBalance atomically decrements an account balance, conditioned on
// sufficient funds. On failure it distinguishes a missing account from an
// insufficient balance.
func (s *LedgerService) debitBalance(run runner, accountID int, amount float64) (float64, error) {
	var newBalance float64
	err := run.QueryRow(`
		UPDATE accounts SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance >= $1
		RETURNING balance`,
		amount, accountID).Scan(&newBalance)
	if err == sql.ErrNoRows {
		if _, lookupErr := s.accountByID(accountID); lookupErr != nil {
			return 0, lookupErr
		}
		return 0, fmt.Errorf("%w: balance below %.2f", ErrInsufficientFunds, amount)
	}
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

func (s *LedgerService) creditBalance(run runner, accountID int, amount float64) (float64, error) {
	var newBalance float64
	err := run.QueryRow(`
		UPDATE accounts SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance`,
		amount, accountID).Scan(&newBalance)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: id %d", ErrAccountNotFound, accountID)
	}
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

func (s *LedgerService) insertEntry(run runner, entry *models.Transaction, occurredAt *time.Time) error {
	if entry.Reference == "" {
		entry.Reference = newReference()
	}
	return run.QueryRow(`
		INSERT INTO transactions
		(reference, user_id, account_id, type, amount, currency, description, status,
		 from_account, to_account, balance_after, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12, COALESCE($13, NOW()))
		RETURNING id, created_at`,
		entry.Reference, entry.UserID, entry.AccountID, entry.Type, entry.Amount,
		entry.Currency, entry.Description, entry.Status, entry.FromAccount,
		entry.ToAccount, entry.BalanceAfter, entry.Metadata, occurredAt,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (s *LedgerService) primaryAccount(userID int) (*models.Account, error) {
	account := &models.Account{}
	err := s.db.QueryRow(`
		SELECT id, user_id, account_number, account_type, balance, bitcoin_balance, currency, is_primary, status
		FROM accounts
		WHERE user_id = $1 AND is_primary = TRUE
		LIMIT 1`, userID).Scan(
		&account.ID, &account.UserID, &account.AccountNumber, &account.AccountType,
		&account.Balance, &account.BitcoinBalance, &account.Currency, &account.IsPrimary, &account.Status,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no primary account for user %d", ErrAccountNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *LedgerService) accountByID(id int) (*models.Account, error) {
	account := &models.Account{}
	err := s.db.QueryRow(`
		SELECT id, user_id, account_number, account_type, balance, bitcoin_balance, currency, is_primary, status
		FROM accounts
		WHERE id = $1`, id).Scan(
		&account.ID, &account.UserID, &account.AccountNumber, &account.AccountType,
		&account.Balance, &account.BitcoinBalance, &account.Currency, &account.IsPrimary, &account.Status,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *LedgerService) accountByNumber(number string) (*models.Account, error) {
	account := &models.Account{}
	err := s.db.QueryRow(`
		SELECT id, user_id, account_number, account_type, balance, bitcoin_balance, currency, is_primary, status
		FROM accounts
		WHERE account_number = $1`, number).Scan(
		&account.ID, &account.UserID, &account.AccountNumber, &account.AccountType,
		&account.Balance, &account.BitcoinBalance, &account.Currency, &account.IsPrimary, &account.Status,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, number)
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

// recordReconciliation durably flags a partial transfer so an administrator
// can repair it, and pushes an alert onto the Redis queue when available.
func (s *LedgerService) recordReconciliation(reference, fromAccount, toAccount string, amount float64, cause error) {
	log.Printf("[LEDGER] Reconciliation failure for %s: debited %s, credit to %s failed: %v",
		reference, fromAccount, toAccount, cause)

	_, err := s.db.Exec(`
		INSERT INTO reconciliations (reference, from_account, to_account, amount, reason, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, NOW())`,
		reference, fromAccount, toAccount, amount, cause.Error())
	if err != nil {
		log.Printf("[LEDGER] Failed to record reconciliation for %s: %v", reference, err)
	}

	if s.redis != nil {
		payload, _ := json.Marshal(map[string]any{
			"reference":   reference,
			"fromAccount": fromAccount,
			"toAccount":   toAccount,
			"amount":      amount,
			"reason":      cause.Error(),
		})
		if err := s.redis.RPush(context.Background(), "reconciliation_queue", payload).Err(); err != nil {
			log.Printf("[LEDGER] Failed to queue reconciliation alert for %s: %v", reference, err)
		}
	}
}

func newReference() string {
	return fmt.Sprintf("TXN-%s", uuid.New().String())
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
