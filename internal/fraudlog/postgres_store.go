package fraudlog

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists fraud log entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed fraud log.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the fraud_logs table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS fraud_logs (
			id              VARCHAR(64) PRIMARY KEY,
			account_id      VARCHAR(64) NOT NULL,
			transaction_id  VARCHAR(128) NOT NULL DEFAULT '',
			amount          NUMERIC(20,2) NOT NULL,
			blended_score   NUMERIC(5,4) NOT NULL CHECK (blended_score >= 0 AND blended_score <= 1),
			rule_score      NUMERIC(5,4) NOT NULL CHECK (rule_score >= 0 AND rule_score <= 1),
			model_score     DOUBLE PRECISION,
			reason          TEXT NOT NULL DEFAULT '',
			location        TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_fraud_logs_account
			ON fraud_logs (account_id, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, e *Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	var model sql.NullFloat64
	if e.ModelScore != nil {
		model = sql.NullFloat64{Float64: *e.ModelScore, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fraud_logs (id, account_id, transaction_id, amount, blended_score,
		                        rule_score, model_score, reason, location, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC(20,2), $5, $6, $7, $8, $9, $10)
	`,
		e.ID,
		e.AccountID,
		e.TransactionID,
		e.Amount.String(),
		e.BlendedScore,
		e.RuleScore,
		model,
		e.Reason,
		e.Location,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record fraud log entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, transaction_id, amount, blended_score, rule_score,
		       model_score, reason, location, created_at
		FROM fraud_logs
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list fraud log entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := []*Entry{}
	for rows.Next() {
		var e Entry
		var model sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.AccountID, &e.TransactionID, &e.Amount, &e.BlendedScore,
			&e.RuleScore, &model, &e.Reason, &e.Location, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fraud log entry: %w", err)
		}
		if model.Valid {
			v := model.Float64
			e.ModelScore = &v
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}
