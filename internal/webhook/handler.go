package webhook

import (
	"errors"
	"net/http"

	"cashstore/internal/api"

	"github.com/gin-gonic/gin"
)

const SignatureHeader = "X-Webhook-Signature"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// @Summary      Payment gateway webhook intake
// @Description  Deduplicated by event id; replayed deliveries are accepted with reason "duplicate" and no side effects.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        X-Webhook-Signature header string false "HMAC-SHA256 of the raw body"
// @Success      200 {object} api.WebhookResponse
// @Failure      400 {object} api.ErrorResponse
// @Failure      401 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /webhooks/payment [post]
func (h *Handler) HandlePayment(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "unreadable body"})
		return
	}

	result, err := h.svc.Handle(
		c.Request.Context(),
		body,
		c.GetHeader(SignatureHeader),
		c.ClientIP(),
		c.Request.UserAgent(),
	)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSignature):
			c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid signature"})
		case errors.Is(err, ErrMalformedPayload):
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "malformed payload"})
		default:
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "webhook processing failed"})
		}
		return
	}

	c.JSON(http.StatusOK, api.WebhookResponse{Accepted: result.Accepted, Reason: result.Reason})
}
