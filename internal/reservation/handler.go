package reservation

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"cashstore/internal/api"
	"cashstore/internal/auth"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	holder Holder
	ttl    time.Duration
}

func NewHandler(holder Holder, ttl time.Duration) *Handler {
	return &Handler{holder: holder, ttl: ttl}
}

type ReserveRequest struct {
	Amount  int64  `json:"amount" binding:"required,gt=0"`
	Purpose string `json:"purpose" binding:"required"`
}

// @Summary      Hold coins for a pending redemption
// @Tags         wallet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body reservation.ReserveRequest true "Hold"
// @Success      201 {object} reservation.Reservation
// @Failure      400 {object} api.ValidationResponse
// @Failure      401 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /wallet/reserve [post]
func (h *Handler) Reserve(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondBindingError(c, err)
		return
	}

	res, err := h.holder.Reserve(c.Request.Context(), userID, req.Amount, req.Purpose, h.ttl)
	if err != nil {
		if errors.Is(err, ErrInsufficientAvailable) {
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "insufficient available coins"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to reserve coins"})
		return
	}

	c.JSON(http.StatusCreated, res)
}

// @Summary      Settle a held reservation as spent
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Param        reservationID path int true "Reservation ID"
// @Success      200 {object} api.MessageResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /reservations/{reservationID}/capture [post]
func (h *Handler) Capture(c *gin.Context) {
	h.settle(c, h.holder.Capture, "reservation captured")
}

// @Summary      Release a held reservation
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Param        reservationID path int true "Reservation ID"
// @Success      200 {object} api.MessageResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /reservations/{reservationID}/release [post]
func (h *Handler) Release(c *gin.Context) {
	h.settle(c, h.holder.Release, "reservation released")
}

func (h *Handler) settle(c *gin.Context, op func(ctx context.Context, id int64) error, message string) {
	id, err := strconv.ParseInt(c.Param("reservationID"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid reservation id"})
		return
	}

	if err := op(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "reservation not found"})
		case errors.Is(err, ErrNotHeld):
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "reservation is not held"})
		default:
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to settle reservation"})
		}
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: message})
}
