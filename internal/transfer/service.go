package transfer

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mbd888/transferguard/internal/account"
	"github.com/mbd888/transferguard/internal/fraudlog"
	"github.com/mbd888/transferguard/internal/idgen"
	"github.com/mbd888/transferguard/internal/logging"
	"github.com/mbd888/transferguard/internal/risk"
	"github.com/mbd888/transferguard/internal/security"
	"github.com/mbd888/transferguard/internal/syncutil"
	"github.com/mbd888/transferguard/internal/traces"
	"github.com/mbd888/transferguard/internal/validation"
)

// Service implements the transfer workflow.
type Service struct {
	accounts account.Store
	fraud    fraudlog.Sink
	assessor *risk.Assessor
	cfg      Config

	// Per-account locks serialize initiate and confirm so two confirms
	// cannot both spend the same pending transfer.
	locks *syncutil.ContextShardedMutex

	now     func() time.Time
	newCode func(n int) string
	logger  *slog.Logger
}

// NewService creates a transfer service. A nil assessor scores with the rule
// table only.
func NewService(accounts account.Store, fraud fraudlog.Sink, assessor *risk.Assessor, cfg Config) *Service {
	if assessor == nil {
		assessor = risk.NewAssessor(nil, 0)
	}
	return &Service{
		accounts: accounts,
		fraud:    fraud,
		assessor: assessor,
		cfg:      cfg.withDefaults(),
		locks:    syncutil.NewContextShardedMutex(0),
		now:      time.Now,
		newCode:  idgen.Digits,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithCodeGenerator replaces the one-time code generator. gen receives the
// configured code length.
func (s *Service) WithCodeGenerator(gen func(n int) string) *Service {
	s.newCode = gen
	return s
}

// WithLogger sets the logger used for workflow events.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// Config returns the effective workflow parameters.
func (s *Service) Config() Config {
	return s.cfg
}

// Initiate stores a new pending transfer for accountID, replacing any
// existing one, and returns its one-time code.
func (s *Service) Initiate(ctx context.Context, accountID string, req InitiateRequest) (_ *InitiateResult, err error) {
	ctx = s.scope(ctx, accountID)
	ctx, span := traces.StartSpan(ctx, "transfer.initiate",
		traces.AccountID(accountID),
		traces.Amount(req.Amount.String()),
	)
	defer func() {
		traces.RecordError(span, err)
		span.End()
	}()

	beneficiary := validation.SanitizeString(req.Beneficiary, validation.MaxStringLength)
	if validation.PositiveAmount("amount", req.Amount)() != nil {
		return nil, ErrInvalidAmount
	}
	if beneficiary == "" {
		return nil, ErrMissingBeneficiary
	}
	txnID := strings.TrimSpace(req.TxnID)
	if len(txnID) > validation.MaxIDLength {
		return nil, ErrInvalidTxnID
	}

	unlock, err := s.lock(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	acct, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if txnID == "" {
		txnID = idgen.TransactionID()
	}
	timeLabel := strings.TrimSpace(req.TimeOverride)
	if risk.IsKeep(timeLabel) {
		timeLabel = now.Format(TimeLabelLayout)
	}

	in := transferInputs{
		TransactionID: txnID,
		Amount:        req.Amount,
		TimeLabel:     timeLabel,
		Location:      risk.Resolve(req.LocationOverride, acct.Location),
		DeviceChoice:  req.DeviceChoice,
		IPChoice:      req.IPChoice,
	}
	assessment := s.assessor.Assess(ctx, in.signals(acct), in.features(acct))
	requireSecret := req.Amount.GreaterThan(acct.Spend.Outflow)

	pending := &account.PendingTransfer{
		TransactionID: txnID,
		Amount:        req.Amount,
		Beneficiary:   beneficiary,
		Remark:        validation.SanitizeString(req.Remark, validation.MaxStringLength),
		Code:          s.newCode(s.cfg.OTPLength),
		ExpiresAt:     now.Add(s.cfg.OTPTTL),
		RequireSecret: requireSecret,
		RuleScore:     assessment.RuleScore,
		RuleReason:    assessment.RuleReason,
		ModelScore:    assessment.ModelScore,
		BlendedScore:  assessment.Blended,
		Location:      in.Location,
		DeviceChoice:  in.DeviceChoice,
		IPChoice:      in.IPChoice,
		TimeLabel:     in.TimeLabel,
		CreatedAt:     now,
	}

	log := logging.L(ctx)
	if acct.Pending != nil {
		log.Info("replacing pending transfer", "previous_transaction_id", acct.Pending.TransactionID)
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.accounts.SavePending(sctx, accountID, pending); err != nil {
		log.Error("save pending transfer failed", "transaction_id", txnID, "error", err)
		return nil, fmt.Errorf("transfer: save pending: %w", err)
	}

	initiatedTotal.Inc()
	span.SetAttributes(traces.TransactionID(txnID), traces.RiskScore(assessment.Blended))
	log.Info("transfer initiated",
		"transaction_id", txnID,
		"amount", req.Amount.String(),
		"require_secret", requireSecret,
		"rule_score", assessment.RuleScore,
		"rule_reason", assessment.RuleReason,
		"blended_score", assessment.Blended,
	)

	return &InitiateResult{
		TransactionID: txnID,
		Code:          pending.Code,
		TTL:           s.cfg.OTPTTL,
		ExpiresAt:     pending.ExpiresAt,
		RequireSecret: requireSecret,
		Assessment:    assessment,
	}, nil
}

// Confirm completes accountID's pending transfer. Checks run in a fixed
// order: presence, expiry, code, secret, risk, funds.
func (s *Service) Confirm(ctx context.Context, accountID string, req ConfirmRequest) (_ *ConfirmResult, err error) {
	ctx = s.scope(ctx, accountID)
	ctx, span := traces.StartSpan(ctx, "transfer.confirm", traces.AccountID(accountID))
	defer func() {
		outcome := OutcomeOf(err)
		outcomesTotal.WithLabelValues(string(outcome)).Inc()
		span.SetAttributes(traces.Outcome(string(outcome)))
		traces.RecordError(span, err)
		span.End()
	}()

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, ErrMissingCode
	}

	unlock, err := s.lock(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	acct, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	p := acct.Pending
	if p == nil {
		return nil, ErrNoPendingTransfer
	}
	span.SetAttributes(traces.TransactionID(p.TransactionID), traces.Amount(p.Amount.String()))
	log := logging.L(ctx).With("transaction_id", p.TransactionID)

	now := s.now()
	if p.Expired(now) {
		s.clearPending(ctx, accountID)
		return nil, ErrCodeExpired
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(p.Code)) != 1 {
		log.Info("invalid one-time code")
		return nil, ErrInvalidCode
	}

	if p.RequireSecret {
		secret := strings.TrimSpace(req.Secret)
		if secret == "" {
			return nil, ErrSecretRequired
		}
		if !security.VerifySecret(acct.SecretKeyHash, secret) {
			s.clearPending(ctx, accountID)
			log.Warn("secret key rejected, pending transfer cleared")
			return nil, ErrSecretRejected
		}
	}

	in := pendingInputs(p)
	assessment := s.assessor.Assess(ctx, in.signals(acct), in.features(acct))
	span.SetAttributes(traces.RiskScore(assessment.Blended))

	if assessment.Blended >= s.cfg.BlockThreshold {
		location := p.Location
		if location == "" {
			location = acct.Location
		}
		blocked := newBlockedError(assessment, p.BlendedScore, location)
		s.recordFraud(ctx, acct, p, assessment, location)
		s.clearPending(ctx, accountID)
		log.Warn("transfer blocked by risk check",
			"amount", p.Amount.String(),
			"blended_score", assessment.Blended,
			"rule_score", assessment.RuleScore,
			"initiate_score", p.BlendedScore,
			"reason", assessment.RuleReason,
		)
		return nil, blocked
	}

	if p.Amount.GreaterThan(acct.Balance) {
		s.clearPending(ctx, accountID)
		return nil, ErrInsufficientFunds
	}

	newBalance := acct.Balance.Sub(p.Amount)
	rec := account.TransactionRecord{
		ID:          p.TransactionID,
		Amount:      p.Amount.Neg(),
		Time:        p.TimeLabel,
		Location:    in.Location,
		Category:    account.CategoryTransfer,
		Remark:      p.Remark,
		Beneficiary: p.Beneficiary,
		Device:      risk.Resolve(p.DeviceChoice, acct.CurrentDevice()),
		IPAddress:   risk.Resolve(p.IPChoice, acct.CurrentIP()),
		CreatedAt:   now.UTC(),
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.accounts.Commit(sctx, accountID, newBalance, rec); err != nil {
		if errors.Is(err, account.ErrNegativeBalance) {
			s.clearPending(ctx, accountID)
			return nil, ErrInsufficientFunds
		}
		log.Error("commit transfer failed", "error", err)
		return nil, fmt.Errorf("transfer: commit: %w", err)
	}

	log.Info("transfer completed",
		"amount", p.Amount.String(),
		"balance", newBalance.String(),
		"blended_score", assessment.Blended,
	)

	return &ConfirmResult{
		Outcome:            OutcomeCompleted,
		Balance:            newBalance,
		Record:             rec,
		InitiateAssessment: initiateAssessment(p),
		ConfirmAssessment:  assessment,
	}, nil
}

// scope tags ctx with the account and, when set, the service logger.
func (s *Service) scope(ctx context.Context, accountID string) context.Context {
	if s.logger != nil {
		ctx = logging.WithLogger(ctx, s.logger)
	}
	return logging.WithAccount(ctx, accountID)
}

// lock waits at most LockTimeout for the account's lock.
func (s *Service) lock(ctx context.Context, accountID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	defer cancel()

	unlock, err := s.locks.LockContext(lockCtx, accountID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: waited %s for account lock", ErrAccountBusy, s.cfg.LockTimeout)
	}
	return unlock, nil
}

func (s *Service) loadAccount(ctx context.Context, accountID string) (*account.Account, error) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	acct, err := s.accounts.Get(sctx, accountID)
	if errors.Is(err, account.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w %s", ErrAccountNotFound, accountID)
	}
	if err != nil {
		logging.L(ctx).Error("load account failed", "error", err)
		return nil, fmt.Errorf("transfer: load account: %w", err)
	}
	return acct, nil
}

// clearPending drops the pending transfer. A failure is logged and not
// returned: the outcome has already been decided.
func (s *Service) clearPending(ctx context.Context, accountID string) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.accounts.ClearPending(sctx, accountID); err != nil {
		logging.L(ctx).Error("clear pending transfer failed", "error", err)
	}
}

// recordFraud appends the blocked attempt to the fraud log. A write failure
// is logged; the transfer stays blocked.
func (s *Service) recordFraud(ctx context.Context, acct *account.Account, p *account.PendingTransfer, a risk.Assessment, location string) {
	if s.fraud == nil {
		return
	}
	entry := &fraudlog.Entry{
		ID:            idgen.WithPrefix("flog_"),
		AccountID:     acct.ID,
		TransactionID: p.TransactionID,
		Amount:        p.Amount,
		BlendedScore:  a.Blended,
		RuleScore:     a.RuleScore,
		ModelScore:    a.ModelScore,
		Reason:        a.RuleReason,
		Location:      location,
		CreatedAt:     s.now().UTC(),
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.fraud.Record(sctx, entry); err != nil {
		logging.L(ctx).Error("fraud log write failed", "entry_id", entry.ID, "error", err)
	}
}
