package gamification

import (
	"errors"
	"net/http"
	"strconv"

	"cashstore/internal/api"
	"cashstore/internal/auth"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type TriggerRequest struct {
	EventType string                 `json:"event_type" binding:"required"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// @Summary      Report a domain event
// @Description  Fire-and-forget entry point called after a domain action completes.
// @Tags         gamification
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body gamification.TriggerRequest true "Event"
// @Success      202 {object} api.MessageResponse
// @Failure      400 {object} api.ValidationResponse
// @Failure      401 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /events/trigger [post]
func (h *Handler) TriggerEvent(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondBindingError(c, err)
		return
	}

	err := h.svc.TriggerEvent(c.Request.Context(), userID, EventType(req.EventType), req.Metadata)
	if err != nil {
		if errors.Is(err, ErrUnknownEventType) {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "unknown event type"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "event processing failed"})
		return
	}

	c.JSON(http.StatusAccepted, api.MessageResponse{Message: "event accepted"})
}

// @Summary      Achievement progress
// @Tags         gamification
// @Security     BearerAuth
// @Produce      json
// @Success      200 {array} gamification.UserProgress
// @Failure      401 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /achievements [get]
func (h *Handler) ListAchievements(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	rows, err := h.svc.ListProgress(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load achievements"})
		return
	}

	c.JSON(http.StatusOK, rows)
}

// @Summary      Claim an unlocked reward
// @Tags         gamification
// @Security     BearerAuth
// @Produce      json
// @Param        code path string true "Definition code"
// @Success      200 {object} gamification.Progress
// @Failure      401 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /achievements/{code}/claim [post]
func (h *Handler) Claim(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return
	}

	p, err := h.svc.Claim(c.Request.Context(), userID, c.Param("code"))
	if err != nil {
		switch {
		case errors.Is(err, ErrDefinitionNotFound):
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "achievement not found"})
		case errors.Is(err, ErrAlreadyClaimed):
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "reward already claimed"})
		case errors.Is(err, ErrNotUnlocked):
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "achievement is not unlocked"})
		default:
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "claim failed"})
		}
		return
	}

	c.JSON(http.StatusOK, p)
}

// @Summary      Recalculate a user's progress from raw activity
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        userID path int true "User ID"
// @Success      200 {object} api.MessageResponse
// @Failure      400 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /admin/users/{userID}/recalculate [post]
func (h *Handler) Recalculate(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("userID"))
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid user id"})
		return
	}

	if err := h.svc.Recalculate(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "recalculation failed"})
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "progress recalculated"})
}
