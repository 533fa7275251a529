// Package account stores account balances, transaction history and the single
// pending transfer each account may hold.
package account

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound = errors.New("account: not found")
	ErrAccountExists   = errors.New("account: already exists")
	ErrNegativeBalance = errors.New("account: balance would go negative")
)

// HistoryLimit bounds the transactions returned with an account.
const HistoryLimit = 50

// Defaults used when an account has no transaction history.
const (
	DefaultDevice    = "Mobile"
	DefaultIPAddress = "127.0.0.1"
)

// CategoryTransfer is the category of records written by a completed transfer.
const CategoryTransfer = "Transfer"

// AllowedLocations are the locations offered as transfer overrides.
var AllowedLocations = []string{
	"Pimpri-Chinchwad", "Hyderabad", "Ahmedabad", "Bengaluru", "Bhopal",
	"Chennai", "Delhi", "Indore", "Kanpur", "Kolkata",
	"Lucknow", "Mumbai", "Nagpur", "Surat", "Vadodara",
	"Visakhapatnam", "Patna", "Jaipur", "Thane", "Pune",
}

// Spend is the rolling inflow/outflow summary used as the spending baseline.
type Spend struct {
	Inflow  decimal.Decimal `json:"inflow"`
	Outflow decimal.Decimal `json:"outflow"`
}

// TransactionRecord is an immutable history entry. Debits are negative.
type TransactionRecord struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Time        string          `json:"time"`
	Location    string          `json:"location"`
	Category    string          `json:"category"`
	Remark      string          `json:"remark"`
	Beneficiary string          `json:"beneficiary,omitempty"`
	Device      string          `json:"device,omitempty"`
	IPAddress   string          `json:"ipAddress,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// PendingTransfer is an initiated transfer awaiting its one-time code.
type PendingTransfer struct {
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Beneficiary   string          `json:"beneficiary"`
	Remark        string          `json:"remark"`
	Code          string          `json:"code"`
	ExpiresAt     time.Time       `json:"expiresAt"`
	RequireSecret bool            `json:"requireSecret"`

	RuleScore    float64  `json:"ruleScore"`
	RuleReason   string   `json:"ruleReason"`
	ModelScore   *float64 `json:"modelScore,omitempty"`
	BlendedScore float64  `json:"blendedScore"`

	// Location is already resolved; device and IP keep the caller's raw
	// choice so confirm can re-derive their signals.
	Location     string `json:"location"`
	DeviceChoice string `json:"deviceChoice"`
	IPChoice     string `json:"ipChoice"`
	TimeLabel    string `json:"timeLabel"`

	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the code window has closed at now.
func (p *PendingTransfer) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Account is a customer account.
type Account struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Phone         string              `json:"phone"`
	Location      string              `json:"location"`
	Balance       decimal.Decimal     `json:"balance"`
	Spend         Spend               `json:"spend"`
	CardAgeMonths int                 `json:"cardAgeMonths"`
	Recent        []TransactionRecord `json:"recentTransactions"`
	SecretKeyHash string              `json:"-"`
	Pending       *PendingTransfer    `json:"-"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// CurrentDevice is the device of the most recent transaction.
func (a *Account) CurrentDevice() string {
	if len(a.Recent) > 0 && a.Recent[0].Device != "" {
		return a.Recent[0].Device
	}
	return DefaultDevice
}

// CurrentIP is the IP address of the most recent transaction.
func (a *Account) CurrentIP() string {
	if len(a.Recent) > 0 && a.Recent[0].IPAddress != "" {
		return a.Recent[0].IPAddress
	}
	return DefaultIPAddress
}

// Store persists accounts. Every method is atomic for a single account.
type Store interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	// SavePending replaces any existing pending transfer.
	SavePending(ctx context.Context, id string, p *PendingTransfer) error
	ClearPending(ctx context.Context, id string) error
	// Commit sets the balance, prepends rec to history and clears the
	// pending transfer in one step.
	Commit(ctx context.Context, id string, newBalance decimal.Decimal, rec TransactionRecord) error
}

func copyPending(p *PendingTransfer) *PendingTransfer {
	if p == nil {
		return nil
	}
	c := *p
	if p.ModelScore != nil {
		v := *p.ModelScore
		c.ModelScore = &v
	}
	return &c
}

func copyAccount(a *Account, historyLimit int) *Account {
	c := *a
	n := len(a.Recent)
	if historyLimit > 0 && n > historyLimit {
		n = historyLimit
	}
	c.Recent = make([]TransactionRecord, n)
	copy(c.Recent, a.Recent[:n])
	c.Pending = copyPending(a.Pending)
	return &c
}
