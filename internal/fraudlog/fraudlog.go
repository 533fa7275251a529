// Package fraudlog records transfers blocked by the risk check.
// Entries are append-only; nothing updates or deletes them.
package fraudlog

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultListLimit and MaxListLimit bound ListByAccount.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ErrInvalidEntry is returned when an entry lacks an ID or account.
var ErrInvalidEntry = errors.New("fraudlog: entry requires id and account")

// Entry is one blocked transfer attempt.
type Entry struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"accountId"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	BlendedScore  float64         `json:"blendedScore"`
	RuleScore     float64         `json:"ruleScore"`
	ModelScore    *float64        `json:"modelScore,omitempty"`
	Reason        string          `json:"reason"`
	Location      string          `json:"location"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Sink persists fraud log entries.
type Sink interface {
	Record(ctx context.Context, e *Entry) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*Entry, error)
}

// ClampLimit applies the default and maximum list sizes.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

func validate(e *Entry) error {
	if e == nil || e.ID == "" || e.AccountID == "" {
		return ErrInvalidEntry
	}
	return nil
}

func copyEntry(e *Entry) *Entry {
	c := *e
	if e.ModelScore != nil {
		v := *e.ModelScore
		c.ModelScore = &v
	}
	return &c
}
