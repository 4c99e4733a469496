package wallet

import (
	"context"
	"net/http"
	"strconv"

	"cashstore/internal/api"
	"cashstore/internal/auth"
	"cashstore/internal/ledger"

	"github.com/gin-gonic/gin"
)

// Historian is the slice of the ledger store used for transaction listings.
type Historian interface {
	HistoryOf(ctx context.Context, userID int, f ledger.Filter) ([]ledger.Entry, error)
}

type Handler struct {
	svc     Service
	history Historian
}

func NewHandler(svc Service, history Historian) *Handler {
	return &Handler{svc: svc, history: history}
}

type BalanceResponse struct {
	Available int64            `json:"available"`
	Total     int64            `json:"total"`
	Pending   int64            `json:"pending"`
	Cashback  int64            `json:"cashback"`
	Buckets   map[string]int64 `json:"buckets"`
	Stats     BalanceStats     `json:"stats"`
}

type BalanceStats struct {
	TotalEarned int64 `json:"total_earned"`
	TotalSpent  int64 `json:"total_spent"`
}

// @Summary      Wallet balance
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} wallet.BalanceResponse
// @Failure      401 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /wallet/balance [get]
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	w, err := h.svc.Read(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load wallet"})
		return
	}

	c.JSON(http.StatusOK, BalanceResponse{
		Available: w.Available,
		Total:     w.Total,
		Pending:   w.Pending,
		Cashback:  w.Cashback,
		Buckets:   w.Buckets(),
		Stats: BalanceStats{
			TotalEarned: w.TotalEarned,
			TotalSpent:  w.TotalSpent,
		},
	})
}

// @Summary      Coin movement history
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Param        limit  query int false "Page size"
// @Param        offset query int false "Page offset"
// @Success      200 {array} ledger.Entry
// @Failure      401 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /wallet/transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 {
		limit = 50
	}

	entries, err := h.history.HistoryOf(c.Request.Context(), userID, ledger.Filter{Limit: limit, Offset: offset})
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, entries)
}

// @Summary      Reconcile one wallet against the ledger
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        userID path int true "User ID"
// @Success      200 {object} wallet.ReconcileResult
// @Failure      400 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /admin/wallets/{userID}/reconcile [post]
func (h *Handler) ReconcileUser(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("userID"))
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid user id"})
		return
	}

	result, err := h.svc.Reconcile(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "reconciliation failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}
