package account

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mbd888/transferguard/internal/auth"
	"github.com/mbd888/transferguard/internal/logging"
)

// Handler serves the authenticated account's dashboard.
type Handler struct {
	store Store
}

// NewHandler creates an account handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterProtectedRoutes sets up auth-required routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/account", h.GetDashboard)
}

// Dashboard is the account view returned to the owner. It never carries the
// secret hash or the pending code.
type Dashboard struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Phone              string              `json:"phone"`
	Location           string              `json:"location"`
	Balance            decimal.Decimal     `json:"balance"`
	Spend              Spend               `json:"spend"`
	CardAgeMonths      int                 `json:"cardAgeMonths"`
	RecentTransactions []TransactionRecord `json:"recentTransactions"`
	AllowedLocations   []string            `json:"allowedLocations"`
	CurrentDevice      string              `json:"currentDevice"`
	CurrentIP          string              `json:"currentIp"`
	HasPendingTransfer bool                `json:"hasPendingTransfer"`
}

// NewDashboard builds the owner's view of a.
func NewDashboard(a *Account) Dashboard {
	recent := a.Recent
	if recent == nil {
		recent = []TransactionRecord{}
	}
	return Dashboard{
		ID:                 a.ID,
		Name:               a.Name,
		Phone:              a.Phone,
		Location:           a.Location,
		Balance:            a.Balance,
		Spend:              a.Spend,
		CardAgeMonths:      a.CardAgeMonths,
		RecentTransactions: recent,
		AllowedLocations:   AllowedLocations,
		CurrentDevice:      a.CurrentDevice(),
		CurrentIP:          a.CurrentIP(),
		HasPendingTransfer: a.Pending != nil,
	}
}

// GetDashboard handles GET /v1/account
func (h *Handler) GetDashboard(c *gin.Context) {
	a, err := h.store.Get(c.Request.Context(), auth.AccountID(c))
	if errors.Is(err, ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Account not found",
		})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("load account failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load account",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": NewDashboard(a)})
}
