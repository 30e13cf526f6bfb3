package database

import "database/sql"

// Schema is applied on startup. Statements are idempotent so repeated
// startups against the same database are safe.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		password TEXT NOT NULL,
		first_name VARCHAR(100) NOT NULL,
		last_name VARCHAR(100) NOT NULL,
		phone_number VARCHAR(30),
		role VARCHAR(10) NOT NULL DEFAULT 'user',
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		last_login TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		account_number VARCHAR(20) UNIQUE NOT NULL,
		account_type VARCHAR(20) NOT NULL DEFAULT 'checking',
		balance NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		bitcoin_balance NUMERIC(18,8) NOT NULL DEFAULT 0 CHECK (bitcoin_balance >= 0),
		currency VARCHAR(3) NOT NULL DEFAULT 'USD',
		is_primary BOOLEAN NOT NULL DEFAULT FALSE,
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id SERIAL PRIMARY KEY,
		reference VARCHAR(60) UNIQUE NOT NULL,
		user_id INTEGER NOT NULL REFERENCES users(id),
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		type VARCHAR(20) NOT NULL,
		amount NUMERIC(18,8) NOT NULL,
		currency VARCHAR(3) NOT NULL DEFAULT 'USD',
		description TEXT NOT NULL DEFAULT '',
		status VARCHAR(10) NOT NULL DEFAULT 'pending',
		from_account VARCHAR(40),
		to_account VARCHAR(40),
		balance_after NUMERIC(18,8) NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS reconciliations (
		id SERIAL PRIMARY KEY,
		reference VARCHAR(60) NOT NULL,
		from_account VARCHAR(40) NOT NULL,
		to_account VARCHAR(40) NOT NULL,
		amount NUMERIC(18,2) NOT NULL,
		reason TEXT NOT NULL,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions (status)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts (user_id)`,
}

func migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
