package server

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/transferguard/internal/account"
	"github.com/mbd888/transferguard/internal/security"
)

// Demo account created in development when running on in-memory storage.
const (
	DemoAccountID = "U100001"
	DemoSecretKey = "demo-secret"
)

func demoAccount(now time.Time) (*account.Account, error) {
	hash, err := security.HashSecret(DemoSecretKey)
	if err != nil {
		return nil, err
	}
	day := func(n int) string {
		return now.AddDate(0, 0, -n).UTC().Format("02-01-2006 15:04")
	}
	return &account.Account{
		ID:            DemoAccountID,
		Name:          "Demo User",
		Phone:         "+91-9000000001",
		Location:      "Pune",
		Balance:       decimal.NewFromInt(25000),
		Spend:         account.Spend{Inflow: decimal.NewFromInt(12000), Outflow: decimal.NewFromInt(3500)},
		CardAgeMonths: 14,
		SecretKeyHash: hash,
		Recent: []account.TransactionRecord{
			{ID: "TXN-1003", Amount: decimal.NewFromInt(-1200), Time: day(1), Location: "Pune", Category: "Groceries", Device: "Mobile", IPAddress: "49.36.12.8"},
			{ID: "TXN-1002", Amount: decimal.NewFromInt(12000), Time: day(4), Location: "Pune", Category: "Salary", Device: "Mobile", IPAddress: "49.36.12.8"},
			{ID: "TXN-1001", Amount: decimal.NewFromInt(-2300), Time: day(9), Location: "Pune", Category: "Utilities", Device: "Laptop", IPAddress: "49.36.12.8"},
		},
	}, nil
}

// seedDemoAccount creates the demo account and logs a session token for it.
func (s *Server) seedDemoAccount(ctx context.Context) error {
	a, err := demoAccount(time.Now())
	if err != nil {
		return err
	}
	if err := s.accounts.Create(ctx, a); err != nil && !errors.Is(err, account.ErrAccountExists) {
		return err
	}
	token, err := s.authMgr.Issue(DemoAccountID)
	if err != nil {
		return err
	}
	s.logger.Info("demo account ready",
		"account_id", DemoAccountID,
		"token", token,
		"token_ttl", s.cfg.SessionTTL.String(),
	)
	return nil
}
