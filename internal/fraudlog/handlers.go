package fraudlog

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/transferguard/internal/auth"
	"github.com/mbd888/transferguard/internal/logging"
)

// Handler serves the authenticated account's fraud log.
type Handler struct {
	sink Sink
}

// NewHandler creates a fraud log handler.
func NewHandler(sink Sink) *Handler {
	return &Handler{sink: sink}
}

// RegisterProtectedRoutes sets up auth-required routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/fraud-logs", h.List)
}

// List handles GET /v1/fraud-logs?limit=
func (h *Handler) List(c *gin.Context) {
	accountID := auth.AccountID(c)

	limit := DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	entries, err := h.sink.ListByAccount(c.Request.Context(), accountID, limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("list fraud logs failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list fraud logs",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}
