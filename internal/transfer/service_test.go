package transfer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/transferguard/internal/account"
	"github.com/mbd888/transferguard/internal/fraudlog"
	"github.com/mbd888/transferguard/internal/risk"
	"github.com/mbd888/transferguard/internal/security"
)

const (
	testAccountID = "acc_demo"
	testSecret    = "s3cret-key"
	testCode      = "123456"
)

var testStart = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC) // a Wednesday

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type stubModel struct {
	score func(rec risk.FeatureRecord) (float64, error)
}

func (m *stubModel) Name() string { return "stub" }

func (m *stubModel) ScoreProbability(_ context.Context, rec risk.FeatureRecord) (float64, error) {
	return m.score(rec)
}

type fixture struct {
	svc      *Service
	accounts *account.MemoryStore
	fraud    *fraudlog.MemoryStore
	clock    *fakeClock
}

func demoAccount() *account.Account {
	return &account.Account{
		ID:       testAccountID,
		Name:     "Asha Rao",
		Location: "Pune",
		Balance:  decimal.NewFromInt(10000),
		Spend: account.Spend{
			Inflow:  decimal.NewFromInt(2000),
			Outflow: decimal.NewFromInt(500),
		},
		CardAgeMonths: 18,
		SecretKeyHash: security.LegacyHash(testSecret),
		Recent: []account.TransactionRecord{
			{ID: "T1", Amount: decimal.NewFromInt(-20), Location: "Pune", Device: "Mobile", IPAddress: "10.0.0.1"},
		},
	}
}

func newFixture(t *testing.T, model risk.Model) *fixture {
	t.Helper()
	f := &fixture{
		accounts: account.NewMemoryStore(),
		fraud:    fraudlog.NewMemoryStore(),
		clock:    &fakeClock{t: testStart},
	}
	require.NoError(t, f.accounts.Create(context.Background(), demoAccount()))
	f.svc = NewService(f.accounts, f.fraud, risk.NewAssessor(model, time.Second), DefaultConfig()).
		WithClock(f.clock.now).
		WithCodeGenerator(func(int) string { return testCode })
	return f
}

func (f *fixture) account(t *testing.T) *account.Account {
	t.Helper()
	a, err := f.accounts.Get(context.Background(), testAccountID)
	require.NoError(t, err)
	return a
}

func counterValue(t *testing.T, outcome Outcome) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, outcomesTotal.WithLabelValues(string(outcome)).Write(m))
	return m.GetCounter().GetValue()
}

func TestInitiate_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  InitiateRequest
		want error
	}{
		{"zero amount", InitiateRequest{Amount: decimal.Zero, Beneficiary: "ACC-1"}, ErrInvalidAmount},
		{"negative amount", InitiateRequest{Amount: decimal.NewFromInt(-5), Beneficiary: "ACC-1"}, ErrInvalidAmount},
		{"sub-cent amount", InitiateRequest{Amount: decimal.RequireFromString("1.005"), Beneficiary: "ACC-1"}, ErrInvalidAmount},
		{"blank beneficiary", InitiateRequest{Amount: decimal.NewFromInt(10), Beneficiary: "   "}, ErrMissingBeneficiary},
		{"amount too large", InitiateRequest{Amount: decimal.RequireFromString("1000000000000000000"), Beneficiary: "ACC-1"}, ErrInvalidAmount},
		{"txn id too long", InitiateRequest{Amount: decimal.NewFromInt(10), Beneficiary: "ACC-1", TxnID: strings.Repeat("T", 129)}, ErrInvalidTxnID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Initiate(ctx, testAccountID, tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, OutcomeInvalidRequest, OutcomeOf(err))
		})
	}
	assert.Nil(t, f.account(t).Pending, "validation failures store nothing")
}

func TestInitiate_TxnIDAtColumnLimit(t *testing.T) {
	f := newFixture(t, nil)
	id := strings.Repeat("T", 128)

	res, err := f.svc.Initiate(context.Background(), testAccountID, InitiateRequest{
		Amount:      decimal.NewFromInt(10),
		Beneficiary: "ACC-1",
		TxnID:       id,
	})
	require.NoError(t, err)
	assert.Equal(t, id, res.TransactionID)
	require.NotNil(t, f.account(t).Pending)
	assert.Equal(t, id, f.account(t).Pending.TransactionID)
}

func TestInitiate_UnknownAccount(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Initiate(context.Background(), "ghost", InitiateRequest{Amount: decimal.NewFromInt(1), Beneficiary: "ACC-1"})
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Equal(t, OutcomeNotFound, OutcomeOf(err))
}

func TestInitiate_StoresPending(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.Initiate(context.Background(), testAccountID, InitiateRequest{
		Amount:       decimal.NewFromInt(400),
		Beneficiary:  " ACC-42 ",
		Remark:       "rent",
		DeviceChoice: risk.KeepCurrent,
		IPChoice:     risk.KeepCurrent,
	})
	require.NoError(t, err)

	assert.Equal(t, testCode, res.Code)
	assert.Equal(t, DefaultOTPTTL, res.TTL)
	assert.Equal(t, testStart.Add(DefaultOTPTTL), res.ExpiresAt)
	assert.False(t, res.RequireSecret, "400 does not exceed the 500 outflow baseline")
	assert.Equal(t, 0.0, res.Assessment.Blended)
	assert.Equal(t, risk.ReasonNormal, res.Assessment.RuleReason)
	assert.Regexp(t, `^TEMP_[0-9A-F]{6}$`, res.TransactionID)

	p := f.account(t).Pending
	require.NotNil(t, p)
	assert.Equal(t, "ACC-42", p.Beneficiary)
	assert.Equal(t, "Pune", p.Location)
	assert.Equal(t, "14-10-2026 09:30", p.TimeLabel)
	assert.Equal(t, risk.KeepCurrent, p.DeviceChoice)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(400)))
}

func TestInitiate_RequireSecret(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Initiate(ctx, testAccountID, InitiateRequest{Amount: decimal.NewFromInt(500), Beneficiary: "ACC-1"})
	require.NoError(t, err)
	assert.False(t, res.RequireSecret, "equal to outflow")

	res, err = f.svc.Initiate(ctx, testAccountID, InitiateRequest{Amount: decimal.RequireFromString("500.01"), Beneficiary: "ACC-1"})
	require.NoError(t, err)
	assert.True(t, res.RequireSecret)
}

func TestInitiate_CallerOverrides(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.Initiate(context.Background(), testAccountID, InitiateRequest{
		Amount:           decimal.NewFromInt(100),
		Beneficiary:      "ACC-1",
		TxnID:            "TXN-9",
		LocationOverride: "Mumbai",
		TimeOverride:     "17-10-2026 22:15",
	})
	require.NoError(t, err)
	assert.Equal(t, "TXN-9", res.TransactionID)
	assert.Equal(t, 0.90, res.Assessment.RuleScore)
	assert.Equal(t, "Location changed + IP kept + Device kept", res.Assessment.RuleReason)

	p := f.account(t).Pending
	assert.Equal(t, "Mumbai", p.Location)
	assert.Equal(t, "17-10-2026 22:15", p.TimeLabel)
}

func TestConfirm_Completed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	before := counterValue(t, OutcomeCompleted)

	_, err := f.svc.Initiate(ctx, testAccountID, InitiateRequest{
		Amount:      decimal.NewFromInt(400),
		Beneficiary: "ACC-42",
		Remark:      "rent",
	})
	require.NoError(t, err)

	res, err := f.svc.Confirm(ctx, testAccountID, ConfirmRequest{Code: testCode})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.True(t, res.Balance.Equal(decimal.NewFromInt(9600)))

	a := f.account(t)
	assert.True(t, a.Balance.Equal(decimal.NewFromInt(9600)), "balance drops by exactly the amount")
	assert.Nil(t, a.Pending)
	require.Len(t, a.Recent, 2)
	rec := a.Recent[0]
	assert.True(t, rec.Amount.Equal(decimal.NewFromInt(-400)))
	assert.Equal(t, account.CategoryTransfer, rec.Category)
	assert.Equal(t, "rent", rec.Remark)
	assert.Equal(t, "Pune", rec.Location)
	assert.Equal(t, "Mobile", rec.Device)
	assert.Equal(t, "10.0.0.1", rec.IPAddress)
	assert.Equal(t, res.Record, rec)
	assert.Equal(t, 0, f.fraud.Count(testAccountID))
	assert.Equal(t, before+1, counterValue(t, OutcomeCompleted))
}

// Balance 10000, outflow 500, amount 600 from an unknown device and IP at the
// home location.
func TestConfirm_UnknownDeviceAndIPIsBlocked(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	blockedBefore := counterValue(t, OutcomeBlocked)

	res, err := f.svc.Initiate(ctx, testAccountID, InitiateRequest{
		Amount:           decimal.NewFromInt(600),
		Beneficiary:      "ACC-42",
		LocationOverride: "Pune",
		DeviceChoice:     "Unknown",
		IPChoice:         "Unknown",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.85, res.Assessment.RuleScore)
	assert.Equal(t, "Location kept + Unknown Device + Unknown IP", res.Assessment.RuleReason)
	assert.True(t, res.RequireSecret)

	_, err = f.svc.Confirm(ctx, testAccountID, ConfirmRequest{Code: testCode})
	assert.ErrorIs(t, err, ErrSecretRequired)
	require.NotNil(t, f.account(t).Pending, "missing secret keeps the pending transfer")

	_, err = f.svc.Confirm(ctx, testAccountID, ConfirmRequest{Code: testCode, Secret: testSecret})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRiskBlocked)
	assert.Equal(t, OutcomeBlocked, OutcomeOf(err))

	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, 0.85, blocked.Score)
	assert.Equal(t, 85, blocked.Percent)
	assert.Equal(t, "Pune", blocked.Location)
	assert.Equal(t, 0.85, blocked.InitiateScore)
	assert.Contains(t, blocked.Message, "RISK SCORE: 85%")
	assert.Contains(t, blocked.Message, "at location Pune")

	a := f.account(t)
	assert.True(t, a.Balance.Equal(decimal.NewFromInt(10000)), "block never moves funds")
	assert.Nil(t, a.Pending)
	assert.Len(t, a.Recent, 1)

	entries, err := f.fraud.ListByAccount(ctx, testAccountID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, 0.85, entries[0].BlendedScore)
	assert.Equal(t, 0.85, entries[0].RuleScore)
	assert.Equal(t, "Pune", entries[0].Location)
	assert.Equal(t, testStart, entries[0].CreatedAt)
	assert.Equal(t, blockedBefore+1, counterValue(t, OutcomeBlocked))
}

func TestConfirm_InvalidCodeIsRetryable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, testAccountID, InitiateRequest{Amount: decimal.NewFromInt(100), Beneficiary: "ACC-1"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.svc.Confirm(ctx, testAccountID, ConfirmRequest{Code: "000000"})
		assert.ErrorIs(t, err, ErrInvalidCode)
	}
	require.NotNil(t, f.account(t).Pending)

	_, err = f.svc.Confirm(ctx, testAccountID, ConfirmRequest{Code: testCode})
	assert.NoError(t, err)
}

func TestConfirm_Expired(t *testing.T) {
	for _, code := range []string{testCode, "999999"} {
		t.Run(code, func(t *testing.T) {
			f := newFixture(t, nil)
			ctx := context.Background()

			_, err := f.svc.Initiate(ctx, testAccountID, InitiateRequest{Amount: decimal.NewFromInt(100), Beneficiary: "ACC-1"})
			require.NoError(t, err)
			f.clock.advance(DefaultOTPTTL)

			_, err = f.svc.Confirm(ctx, testAccountID, ConfirmRequest{Code: code})
			assert.ErrorIs(t, err, ErrCodeExpired)
			assert.Equal(t, OutcomeExpired, OutcomeOf(err))
			assert.Nil(t, f.account(t).Pending)
			assert.True(t, f.account(t).Balance.Equal(decimal.NewFromInt(10000)))
		})
	}
}

func TestConfirm_ValidJustBeforeExpiry(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, testAccountID, InitiateRequest{Amount: decimal.NewFromInt(100), Beneficiary: "ACC-1"})
	require.NoError(t, err)
	f.clock.advance(DefaultOTPTTL - time.Millisecond)

	_, err = f.svc.Confirm(ctx, testAccountID, ConfirmRequest{Code: testCode})
	assert.NoError(t, err)
}

func TestConfirm_SecretRejected(t *testing.T) {
	called := false
	model := &stubModel{score: func(risk.FeatureRecord) (float64, error) {
		called = true
		return 0.1, nil
	}}
	f := newFixture(t, model)
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, testAccountID, InitiateRequest{Amount: decimal.NewFromInt(600), Beneficiary: "ACC-1"})
	require.NoError(t, err)
	called = false

	_, err = f.svc.Confirm(ctx, testAccountID, ConfirmRequest{Code: testCode, Secret: "wrong"})
	assert.ErrorIs(t, err, ErrSecretRejected)
	assert.Equal(t, OutcomeSecretRejected, OutcomeOf(err))
	assert.False(t, called, "rejected secret stops before risk evaluation")

	a := f.account(t)
	assert.Nil(t, a.Pending)
	assert.True(t, a.Balance.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, 0, f.fraud.Count(testAccountID))

	_, err = f.svc.Confirm(ctx, testAccountID, ConfirmRequest{Code: testCode, Secret: testSecret})
	assert.ErrorIs(t, err, ErrNoPendingTransfer, "no retry after rejection")
}

func TestConfirm_SecretAccepted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, testAccountID, InitiateRequest{Amount: decimal.NewFromInt(600), Beneficiary: "ACC-1"})
	require.NoError(t, err)

	res, err := f.svc.Confirm(ctx, testAccountID, ConfirmRequest{Code: testCode, Secret: "  " + testSecret + " "})
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(decimal.NewFromInt(9400)))
}

func TestConfirm_NoPendingTransfer(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Confirm(context.Background(), testAccountID, ConfirmRequest{Code: testCode})
	assert.ErrorIs(t, err, ErrNoPendingTransfer)
	assert.Equal(t, OutcomeNotFound, OutcomeOf(err))
}

func TestConfirm_MissingCode(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Confirm(context.Background(), testAccountID, ConfirmRequest{Code: "  "})
	assert.ErrorIs(t, err, ErrMissingCode)
	assert.Equal(t, OutcomeInvalidRequest, OutcomeOf(err))
}

func TestConfirm_InsufficientFunds(t *testing.T) {
	f := &fixture{accounts: account.NewMemoryStore(), fraud: fraudlog.NewMemoryStore(), clock: &fakeClock{t: testStart}}
	a := demoAccount()
	a.Balance = decimal.NewFromInt(300)
	require.NoError(t, f.accounts.Create(context.Background(), a))
	f.svc = NewService(f.accounts, f.fraud, nil, DefaultConfig()).
		WithClock(f.clock.now).
		WithCodeGenerator(func(int) string { return testCode })
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, testAccountID, InitiateRequest{Amount: decimal.NewFromInt(400), Beneficiary: "ACC-1"})
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, testAccountID, ConfirmRequest{Code: testCode})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, OutcomeInsufficientFunds, OutcomeOf(err))
	assert.Nil(t, f.account(t).Pending)
	assert.True(t, f.account(t).Balance.Equal(decimal.NewFromInt(300)))
}

func TestInitiate_ReplacesPending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	codes := []string{"111111", "222222"}
	var n int32
	f.svc.WithCodeGenerator(func(int) string { return codes[atomic.AddInt32(&n, 1)-1] })

	_, err := f.svc.Initiate(ctx, testAccountID, InitiateRequest{Amount: decimal.NewFromInt(100), Beneficiary: "ACC-1"})
	require.NoError(t, err)
	_, err = f.svc.Initiate(ctx, testAccountID, InitiateRequest{Amount: decimal.NewFromInt(200), Beneficiary: "ACC-2"})
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, testAccountID, ConfirmRequest{Code: "111111"})
	assert.ErrorIs(t, err, ErrInvalidCode, "first code no longer valid")

	res, err := f.svc.Confirm(ctx, testAccountID, ConfirmRequest{Code: "222222"})
	require.NoError(t, err)
	assert.True(t, res.Record.Amount.Equal(decimal.NewFromInt(-200)))
	assert.Equal(t, "ACC-2", res.Record.Beneficiary)
}

func TestConfirm_ModelAvailabilityChangesScore(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	model := &stubModel{score: func(risk.FeatureRecord) (float64, error) {
		if fail.Load() {
			return 0, risk.ErrModelUnavailable
		}
		return 0.92, nil
	}}
	f := newFixture(t, model)
	ctx := context.Background()

	res, err := f.svc.Initiate(ctx, testAccountID, InitiateRequest{Amount: decimal.NewFromInt(100), Beneficiary: "ACC-1"})
	require.NoError(t, err)
	assert.Nil(t, res.Assessment.ModelScore)
	assert.NotEmpty(t, res.Assessment.ModelError)
	assert.Equal(t, 0.0, res.Assessment.Blended)

	fail.Store(false)
	_, err = f.svc.Confirm(ctx, testAccountID, ConfirmRequest{Code: testCode})

	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, 0.92, blocked.Score)
	assert.Equal(t, 0.0, blocked.RuleScore)
	assert.Equal(t, 0.0, blocked.InitiateScore, "initiate score stays visible")
	require.NotNil(t, blocked.ModelScore)
	assert.Equal(t, 92, blocked.Percent)

	entries, _ := f.fraud.ListByAccount(ctx, testAccountID, 1)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].ModelScore)
	assert.Equal(t, 0.92, *entries[0].ModelScore)
}

func TestConfirm_ModelFailureFallsBackToRules(t *testing.T) {
	model := &stubModel{score: func(risk.FeatureRecord) (float64, error) {
		return 0, &risk.EncodingError{Column: risk.ColLocation, Reason: "unseen value"}
	}}
	f := newFixture(t, model)
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, testAccountID, InitiateRequest{Amount: decimal.NewFromInt(100), Beneficiary: "ACC-1"})
	require.NoError(t, err)

	res, err := f.svc.Confirm(ctx, testAccountID, ConfirmRequest{Code: testCode})
	require.NoError(t, err)
	assert.Nil(t, res.ConfirmAssessment.ModelScore)
	assert.Equal(t, 0.0, res.ConfirmAssessment.Blended)
}

func TestConfirm_ModelSeesTransferFeatures(t *testing.T) {
	var got risk.FeatureRecord
	model := &stubModel{score: func(rec risk.FeatureRecord) (float64, error) {
		got = rec
		return 0.2, nil
	}}
	f := newFixture(t, model)
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, testAccountID, InitiateRequest{
		Amount:           decimal.NewFromInt(250),
		Beneficiary:      "ACC-1",
		TxnID:            "TXN-1",
		LocationOverride: "Delhi",
		TimeOverride:     "18-10-2026 11:00",
		IPChoice:         "unknown",
	})
	require.NoError(t, err)

	res, err := f.svc.Confirm(ctx, testAccountID, ConfirmRequest{Code: testCode})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.ConfirmAssessment.RuleScore, "changed location with unknown IP is outside the rule table")
	require.NotNil(t, res.ConfirmAssessment.ModelScore)
	assert.Equal(t, 0.2, res.ConfirmAssessment.Blended)

	assert.Equal(t, "TXN-1", got.TransactionID)
	assert.Equal(t, testAccountID, got.AccountID)
	assert.Equal(t, 250.0, got.Amount)
	assert.Equal(t, 10000.0, got.Balance)
	assert.Equal(t, "Mobile", got.DeviceType)
	assert.Equal(t, "Delhi", got.Location)
	assert.Equal(t, "unknown", got.IPAddress)
	assert.True(t, got.IPFlagged)
	assert.Equal(t, risk.DistanceChangedKM, got.DistanceKM)
	assert.Equal(t, 500.0, got.PreviousAmount)
	assert.Equal(t, 2000.0, got.AvgAmountPerDay)
	assert.Equal(t, 500.0, got.AvgAmount7Day)
	assert.Equal(t, 18, got.CardAgeMonths)
	assert.Equal(t, risk.AuthMethodOTP, got.AuthMethod)
	assert.True(t, got.IsWeekend, "18 Oct 2026 is a Sunday")
}

func TestConfirm_ConcurrentSpendsOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, testAccountID, InitiateRequest{Amount: decimal.NewFromInt(100), Beneficiary: "ACC-1"})
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	var completed, missing int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Confirm(ctx, testAccountID, ConfirmRequest{Code: testCode})
			switch {
			case err == nil:
				atomic.AddInt32(&completed, 1)
			case errors.Is(err, ErrNoPendingTransfer):
				atomic.AddInt32(&missing, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), completed)
	assert.Equal(t, int32(workers-1), missing)
	a := f.account(t)
	assert.True(t, a.Balance.Equal(decimal.NewFromInt(9900)))
	assert.Len(t, a.Recent, 2)
}

// slowStore blocks Get until released.
type slowStore struct {
	*account.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *slowStore) Get(ctx context.Context, id string) (*account.Account, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.MemoryStore.Get(ctx, id)
}

func TestService_LockTimeout(t *testing.T) {
	mem := account.NewMemoryStore()
	require.NoError(t, mem.Create(context.Background(), demoAccount()))
	store := &slowStore{MemoryStore: mem, entered: make(chan struct{}, 1), release: make(chan struct{})}

	cfg := DefaultConfig()
	cfg.LockTimeout = 50 * time.Millisecond
	cfg.StoreTimeout = 5 * time.Second
	svc := NewService(store, fraudlog.NewMemoryStore(), nil, cfg)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Confirm(context.Background(), testAccountID, ConfirmRequest{Code: testCode})
		done <- err
	}()
	<-store.entered

	_, err := svc.Initiate(context.Background(), testAccountID, InitiateRequest{Amount: decimal.NewFromInt(1), Beneficiary: "ACC-1"})
	assert.ErrorIs(t, err, ErrAccountBusy)
	assert.Equal(t, OutcomeUnavailable, OutcomeOf(err))

	close(store.release)
	assert.ErrorIs(t, <-done, ErrNoPendingTransfer)
}

func TestService_StoreTimeout(t *testing.T) {
	mem := account.NewMemoryStore()
	require.NoError(t, mem.Create(context.Background(), demoAccount()))
	store := &slowStore{MemoryStore: mem, entered: make(chan struct{}, 1), release: make(chan struct{})}

	cfg := DefaultConfig()
	cfg.StoreTimeout = 20 * time.Millisecond
	svc := NewService(store, nil, nil, cfg)

	_, err := svc.Confirm(context.Background(), testAccountID, ConfirmRequest{Code: testCode})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, OutcomeUnavailable, OutcomeOf(err))
}

func TestNewService_ConfigDefaults(t *testing.T) {
	svc := NewService(account.NewMemoryStore(), nil, nil, Config{})
	assert.Equal(t, DefaultConfig(), svc.Config())

	svc = NewService(account.NewMemoryStore(), nil, nil, Config{BlockThreshold: 0.5, OTPTTL: time.Minute})
	assert.Equal(t, 0.5, svc.Config().BlockThreshold)
	assert.Equal(t, time.Minute, svc.Config().OTPTTL)
	assert.Equal(t, DefaultOTPLength, svc.Config().OTPLength)
}

func TestService_DefaultCodeGenerator(t *testing.T) {
	accounts := account.NewMemoryStore()
	require.NoError(t, accounts.Create(context.Background(), demoAccount()))
	cfg := DefaultConfig()
	cfg.OTPLength = 8
	svc := NewService(accounts, nil, nil, cfg)

	res, err := svc.Initiate(context.Background(), testAccountID, InitiateRequest{Amount: decimal.NewFromInt(1), Beneficiary: "ACC-1"})
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9]{8}$`, res.Code)
}
