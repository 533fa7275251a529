package transfer

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/transferguard/internal/auth"
	"github.com/mbd888/transferguard/internal/validation"
)

// Handler provides HTTP endpoints for the transfer workflow.
type Handler struct {
	service *Service
}

// NewHandler creates a new transfer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up auth-required transfer routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/transfers/initiate", h.Initiate)
	r.POST("/transfers/confirm", h.Confirm)
}

// initiateResponse is the body returned by a successful initiate.
type initiateResponse struct {
	TransactionID string    `json:"transactionId"`
	Code          string    `json:"otp"`
	TTLSeconds    int       `json:"ttlSeconds"`
	ExpiresAt     time.Time `json:"expiresAt"`
	RequireSecret bool      `json:"requireSecret"`
	RiskScore     float64   `json:"riskScore"`
	RuleScore     float64   `json:"ruleScore"`
	RiskReason    string    `json:"riskReason"`
	ModelScore    *float64  `json:"modelScore,omitempty"`
}

// Initiate handles POST /v1/transfers/initiate
func (h *Handler) Initiate(c *gin.Context) {
	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.PositiveAmount("amount", req.Amount),
		validation.Required("beneficiary", req.Beneficiary),
		validation.MaxLength("beneficiary", req.Beneficiary, validation.MaxStringLength),
		validation.MaxLength("txnId", strings.TrimSpace(req.TxnID), validation.MaxIDLength),
		validation.MaxLength("remarks", req.Remark, validation.MaxStringLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(OutcomeInvalidRequest),
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	res, err := h.service.Initiate(c.Request.Context(), auth.AccountID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transfer": initiateResponse{
		TransactionID: res.TransactionID,
		Code:          res.Code,
		TTLSeconds:    int(res.TTL / time.Second),
		ExpiresAt:     res.ExpiresAt,
		RequireSecret: res.RequireSecret,
		RiskScore:     res.Assessment.Blended,
		RuleScore:     res.Assessment.RuleScore,
		RiskReason:    res.Assessment.RuleReason,
		ModelScore:    res.Assessment.ModelScore,
	}})
}

// Confirm handles POST /v1/transfers/confirm
func (h *Handler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	res, err := h.service.Confirm(c.Request.Context(), auth.AccountID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// statusFor maps an outcome to its HTTP status.
func statusFor(o Outcome) int {
	switch o {
	case OutcomeCompleted:
		return http.StatusOK
	case OutcomeInvalidRequest, OutcomeSecretRequired:
		return http.StatusBadRequest
	case OutcomeNotFound:
		return http.StatusNotFound
	case OutcomeExpired:
		return http.StatusGone
	case OutcomeInvalidCode:
		return http.StatusUnauthorized
	case OutcomeSecretRejected, OutcomeBlocked:
		return http.StatusForbidden
	case OutcomeInsufficientFunds:
		return http.StatusPaymentRequired
	case OutcomeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var outcomeMessages = map[Outcome]string{
	OutcomeNotFound:          "No pending transfer",
	OutcomeExpired:           "Transfer OTP expired",
	OutcomeInvalidCode:       "Invalid transfer OTP",
	OutcomeSecretRequired:    "Secret key required for this transfer",
	OutcomeSecretRejected:    "Secret key invalid: transaction blocked (suspicious)",
	OutcomeInsufficientFunds: "Insufficient funds",
	OutcomeUnavailable:       "Service temporarily unavailable, try again",
	OutcomeInternal:          "Transfer failed",
}

func writeError(c *gin.Context, err error) {
	outcome := OutcomeOf(err)
	status := statusFor(outcome)

	var blocked *BlockedError
	if errors.As(err, &blocked) {
		c.JSON(status, gin.H{
			"error":      string(outcome),
			"message":    blocked.Message,
			"fraudAlert": blocked,
		})
		return
	}

	msg := outcomeMessages[outcome]
	switch {
	case outcome == OutcomeInvalidRequest:
		msg = err.Error()
	case outcome == OutcomeNotFound && errors.Is(err, ErrAccountNotFound):
		msg = "Account not found"
	}
	c.JSON(status, gin.H{
		"error":   string(outcome),
		"message": msg,
	})
}
