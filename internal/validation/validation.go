// Package validation provides request validation helpers for the transfer API.
package validation

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MaxRequestSize is the maximum request body size (64KB).
const MaxRequestSize = 64 << 10

// MaxStringLength is the maximum length for free-text fields such as remarks.
const MaxStringLength = 500

// MaxAmountPlaces is the number of fractional digits a currency amount may carry.
const MaxAmountPlaces = 2

// MaxIDLength is the longest caller-supplied identifier the stores accept.
const MaxIDLength = 128

// MaxAmount is the largest amount a NUMERIC(20,2) column holds.
var MaxAmount = decimal.RequireFromString("999999999999999999.99")

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// SanitizeString trims whitespace, strips null bytes and limits length.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// ValidationError represents a validation error on a single field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects their errors.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks that a field is non-blank.
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// MaxLength checks that a field does not exceed max bytes.
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// PositiveAmount checks that d is greater than zero, no larger than MaxAmount,
// with at most MaxAmountPlaces fractional digits.
func PositiveAmount(field string, d decimal.Decimal) func() *ValidationError {
	return func() *ValidationError {
		if !d.IsPositive() {
			return &ValidationError{Field: field, Message: "amount must be greater than zero"}
		}
		if !d.Equal(d.Truncate(MaxAmountPlaces)) {
			return &ValidationError{Field: field, Message: "amount has too many decimal places"}
		}
		if d.GreaterThan(MaxAmount) {
			return &ValidationError{Field: field, Message: "amount exceeds maximum"}
		}
		return nil
	}
}
