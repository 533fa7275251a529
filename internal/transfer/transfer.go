// Package transfer runs the OTP-gated transfer workflow.
//
// Flow:
//  1. Initiate scores the transfer and stores it as the account's single
//     pending transfer together with a short-lived one-time code.
//  2. Confirm checks the code, then the secondary secret when the amount
//     exceeds the account's outflow baseline.
//  3. Confirm scores the transfer again. At or above the block threshold the
//     attempt is written to the fraud log and rejected before funds move.
//  4. Otherwise the balance is debited and the history gains one record.
//
// Every terminal outcome clears the pending transfer. A wrong code or a
// missing secret leaves it in place until it expires.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/transferguard/internal/account"
	"github.com/mbd888/transferguard/internal/risk"
)

// Error classes. Every sentinel below matches exactly one of them.
var (
	ErrValidation = errors.New("transfer: invalid request")
	ErrNotFound   = errors.New("transfer: not found")
)

var (
	ErrInvalidAmount      = fmt.Errorf("%w: amount must be positive, within limits, with at most two decimal places", ErrValidation)
	ErrMissingBeneficiary = fmt.Errorf("%w: beneficiary is required", ErrValidation)
	ErrInvalidTxnID       = fmt.Errorf("%w: transaction id too long", ErrValidation)
	ErrMissingCode        = fmt.Errorf("%w: one-time code is required", ErrValidation)

	ErrNoPendingTransfer = fmt.Errorf("%w: no pending transfer", ErrNotFound)
	ErrAccountNotFound   = fmt.Errorf("%w: account", ErrNotFound)

	ErrCodeExpired       = errors.New("transfer: one-time code expired")
	ErrInvalidCode       = errors.New("transfer: invalid one-time code")
	ErrSecretRequired    = errors.New("transfer: secret key required for this transfer")
	ErrSecretRejected    = errors.New("transfer: secret key rejected")
	ErrInsufficientFunds = errors.New("transfer: insufficient funds")
	ErrRiskBlocked       = errors.New("transfer: blocked by risk check")
	ErrAccountBusy       = errors.New("transfer: account busy")
)

// Outcome is the caller-visible result code of an operation.
type Outcome string

const (
	OutcomeCompleted         Outcome = "completed"
	OutcomeInvalidRequest    Outcome = "validation_error"
	OutcomeNotFound          Outcome = "not_found"
	OutcomeExpired           Outcome = "expired"
	OutcomeInvalidCode       Outcome = "invalid_code"
	OutcomeSecretRequired    Outcome = "secret_required"
	OutcomeSecretRejected    Outcome = "secret_rejected"
	OutcomeBlocked           Outcome = "blocked"
	OutcomeInsufficientFunds Outcome = "insufficient_funds"
	OutcomeUnavailable       Outcome = "unavailable"
	OutcomeInternal          Outcome = "internal_error"
)

// OutcomeOf maps an error returned by Service to its outcome. A nil error is
// OutcomeCompleted.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, ErrValidation):
		return OutcomeInvalidRequest
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrCodeExpired):
		return OutcomeExpired
	case errors.Is(err, ErrInvalidCode):
		return OutcomeInvalidCode
	case errors.Is(err, ErrSecretRequired):
		return OutcomeSecretRequired
	case errors.Is(err, ErrSecretRejected):
		return OutcomeSecretRejected
	case errors.Is(err, ErrRiskBlocked):
		return OutcomeBlocked
	case errors.Is(err, ErrInsufficientFunds):
		return OutcomeInsufficientFunds
	case errors.Is(err, ErrAccountBusy), errors.Is(err, context.DeadlineExceeded):
		return OutcomeUnavailable
	default:
		return OutcomeInternal
	}
}

// BlockedError is returned by Confirm when the risk check rejects a transfer.
// It matches ErrRiskBlocked.
type BlockedError struct {
	Score         float64  `json:"riskScore"`
	Percent       int      `json:"riskPercent"`
	Reason        string   `json:"reason"`
	Location      string   `json:"location"`
	RuleScore     float64  `json:"ruleScore"`
	ModelScore    *float64 `json:"modelScore,omitempty"`
	InitiateScore float64  `json:"initiateScore"`
	Message       string   `json:"message"`
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("transfer: blocked by risk check (score %.2f, %s)", e.Score, e.Reason)
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrRiskBlocked
}

// newBlockedError builds the rejection shown to the account holder.
func newBlockedError(a risk.Assessment, initiateScore float64, location string) *BlockedError {
	pct := int(math.Round(a.Blended * 100))
	return &BlockedError{
		Score:         a.Blended,
		Percent:       pct,
		Reason:        a.RuleReason,
		Location:      location,
		RuleScore:     a.RuleScore,
		ModelScore:    a.ModelScore,
		InitiateScore: initiateScore,
		Message: fmt.Sprintf(
			"AI flagged this transaction as suspicious (RISK SCORE: %d%%). %s at location %s. Transaction not possible.",
			pct, a.RuleReason, location),
	}
}

// Config holds the workflow's fixed parameters.
type Config struct {
	BlockThreshold float64
	OTPTTL         time.Duration
	OTPLength      int
	StoreTimeout   time.Duration
	LockTimeout    time.Duration
}

// Defaults
const (
	DefaultOTPTTL       = 20 * time.Second
	DefaultOTPLength    = 6
	DefaultStoreTimeout = 3 * time.Second
	DefaultLockTimeout  = 2 * time.Second
)

// DefaultConfig returns the standard workflow parameters.
func DefaultConfig() Config {
	return Config{
		BlockThreshold: risk.DefaultBlockThreshold,
		OTPTTL:         DefaultOTPTTL,
		OTPLength:      DefaultOTPLength,
		StoreTimeout:   DefaultStoreTimeout,
		LockTimeout:    DefaultLockTimeout,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BlockThreshold <= 0 || c.BlockThreshold > 1 {
		c.BlockThreshold = d.BlockThreshold
	}
	if c.OTPTTL <= 0 {
		c.OTPTTL = d.OTPTTL
	}
	if c.OTPLength <= 0 {
		c.OTPLength = d.OTPLength
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = d.LockTimeout
	}
	return c
}

// InitiateRequest contains the parameters for starting a transfer. Override
// fields left blank or set to risk.KeepCurrent use the account's current value.
type InitiateRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	Beneficiary      string          `json:"beneficiary"`
	TxnID            string          `json:"txnId"`
	Remark           string          `json:"remarks"`
	LocationOverride string          `json:"overrideLocation"`
	TimeOverride     string          `json:"overrideTime"`
	DeviceChoice     string          `json:"deviceChoice"`
	IPChoice         string          `json:"ipChoice"`
}

// ConfirmRequest carries the caller's one-time code and optional secret.
type ConfirmRequest struct {
	Code   string `json:"otp"`
	Secret string `json:"secretKey"`
}

// InitiateResult is returned once a pending transfer is stored.
type InitiateResult struct {
	TransactionID string          `json:"transactionId"`
	Code          string          `json:"otp"`
	TTL           time.Duration   `json:"-"`
	ExpiresAt     time.Time       `json:"expiresAt"`
	RequireSecret bool            `json:"requireSecret"`
	Assessment    risk.Assessment `json:"assessment"`
}

// ConfirmResult is returned for a completed transfer. Both assessments are
// kept because a model that loads or fails between the two calls can make
// them differ.
type ConfirmResult struct {
	Outcome            Outcome                   `json:"outcome"`
	Balance            decimal.Decimal           `json:"balance"`
	Record             account.TransactionRecord `json:"record"`
	InitiateAssessment risk.Assessment           `json:"initiateAssessment"`
	ConfirmAssessment  risk.Assessment           `json:"confirmAssessment"`
}

// initiateAssessment recovers the assessment stored with a pending transfer.
func initiateAssessment(p *account.PendingTransfer) risk.Assessment {
	return risk.Assessment{
		RuleScore:  p.RuleScore,
		RuleReason: p.RuleReason,
		ModelScore: p.ModelScore,
		Blended:    p.BlendedScore,
	}
}
