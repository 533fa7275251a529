package account

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PostgresStore persists accounts in PostgreSQL. The pending transfer is a
// JSONB column on the account row so it is read and cleared with the balance.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed account store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the accounts and account_transactions tables if needed.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id               VARCHAR(64) PRIMARY KEY,
			name             TEXT NOT NULL DEFAULT '',
			phone            TEXT NOT NULL DEFAULT '',
			location         TEXT NOT NULL DEFAULT '',
			balance          NUMERIC(20,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			inflow           NUMERIC(20,2) NOT NULL DEFAULT 0,
			outflow          NUMERIC(20,2) NOT NULL DEFAULT 0,
			card_age_months  INTEGER NOT NULL DEFAULT 0,
			secret_key_hash  TEXT NOT NULL DEFAULT '',
			pending          JSONB,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS account_transactions (
			seq          BIGSERIAL PRIMARY KEY,
			account_id   VARCHAR(64) NOT NULL REFERENCES accounts(id),
			id           VARCHAR(128) NOT NULL,
			amount       NUMERIC(20,2) NOT NULL,
			time_label   TEXT NOT NULL DEFAULT '',
			location     TEXT NOT NULL DEFAULT '',
			category     TEXT NOT NULL DEFAULT '',
			remark       TEXT NOT NULL DEFAULT '',
			beneficiary  TEXT NOT NULL DEFAULT '',
			device       TEXT NOT NULL DEFAULT '',
			ip_address   TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_account_transactions_account
			ON account_transactions (account_id, seq DESC);
	`)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, a *Account) error {
	if a.Balance.IsNegative() {
		return ErrNegativeBalance
	}
	pending, err := marshalPending(a.Pending)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (id, name, phone, location, balance, inflow, outflow,
		                      card_age_months, secret_key_hash, pending, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::NUMERIC(20,2), $6::NUMERIC(20,2), $7::NUMERIC(20,2),
		        $8, $9, $10::JSONB, NOW(), NOW())
	`,
		a.ID, a.Name, a.Phone, a.Location,
		a.Balance.String(), a.Spend.Inflow.String(), a.Spend.Outflow.String(),
		a.CardAgeMonths, a.SecretKeyHash, jsonArg(pending),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	// a.Recent is most-recent-first; insert oldest first so seq order matches.
	for i := len(a.Recent) - 1; i >= 0; i-- {
		if err := insertRecord(ctx, tx, a.ID, a.Recent[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Account, error) {
	var a Account
	var pending []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, phone, location, balance, inflow, outflow, card_age_months,
		       secret_key_hash, pending, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &a.Phone, &a.Location, &a.Balance, &a.Spend.Inflow, &a.Spend.Outflow,
		&a.CardAgeMonths, &a.SecretKeyHash, &pending, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if a.Pending, err = unmarshalPending(pending); err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, amount, time_label, location, category, remark, beneficiary,
		       device, ip_address, created_at
		FROM account_transactions
		WHERE account_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`, id, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	a.Recent = []TransactionRecord{}
	for rows.Next() {
		var r TransactionRecord
		if err := rows.Scan(&r.ID, &r.Amount, &r.Time, &r.Location, &r.Category, &r.Remark,
			&r.Beneficiary, &r.Device, &r.IPAddress, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		a.Recent = append(a.Recent, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *PostgresStore) SavePending(ctx context.Context, id string, pt *PendingTransfer) error {
	pending, err := marshalPending(pt)
	if err != nil {
		return err
	}
	return p.setPending(ctx, id, pending)
}

func (p *PostgresStore) ClearPending(ctx context.Context, id string) error {
	return p.setPending(ctx, id, nil)
}

func (p *PostgresStore) setPending(ctx context.Context, id string, pending []byte) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE accounts SET pending = $2::JSONB, updated_at = NOW() WHERE id = $1
	`, id, jsonArg(pending))
	if err != nil {
		return fmt.Errorf("failed to update pending transfer: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (p *PostgresStore) Commit(ctx context.Context, id string, newBalance decimal.Decimal, rec TransactionRecord) error {
	if newBalance.IsNegative() {
		return ErrNegativeBalance
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts SET balance = $2::NUMERIC(20,2), pending = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, newBalance.String()); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	if err := insertRecord(ctx, tx, id, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRecord(ctx context.Context, tx *sql.Tx, accountID string, r TransactionRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO account_transactions (account_id, id, amount, time_label, location, category,
		                                  remark, beneficiary, device, ip_address, created_at)
		VALUES ($1, $2, $3::NUMERIC(20,2), $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		accountID, r.ID, r.Amount.String(), r.Time, r.Location, r.Category,
		r.Remark, r.Beneficiary, r.Device, r.IPAddress, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

func marshalPending(p *PendingTransfer) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pending transfer: %w", err)
	}
	return b, nil
}

// jsonArg passes nil as SQL NULL and anything else as JSON text.
func jsonArg(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func unmarshalPending(b []byte) (*PendingTransfer, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var p PendingTransfer
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("failed to decode pending transfer: %w", err)
	}
	return &p, nil
}
