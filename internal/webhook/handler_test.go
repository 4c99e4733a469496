package webhook

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func setupWebhookRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(svc)
	r.POST("/webhooks/payment", h.HandlePayment)
	return r
}

func TestHandlePayment_DuplicateReturns200(t *testing.T) {
	guard := new(MockGuard)
	appender := new(MockAppender)
	svc := NewService(guard, appender, "")

	guard.On("Record", mock.Anything, mock.Anything).Return(nil, true, nil)

	r := setupWebhookRouter(svc)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewBufferString(capturedPayload))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"accepted":true`)
	assert.Contains(t, w.Body.String(), `"reason":"duplicate"`)
}

func TestHandlePayment_BadSignatureReturns401(t *testing.T) {
	guard := new(MockGuard)
	appender := new(MockAppender)
	svc := NewService(guard, appender, "topsecret")

	r := setupWebhookRouter(svc)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewBufferString(capturedPayload))
	req.Header.Set(SignatureHeader, "bogus")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandlePayment_MalformedReturns400(t *testing.T) {
	guard := new(MockGuard)
	appender := new(MockAppender)
	svc := NewService(guard, appender, "")

	r := setupWebhookRouter(svc)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewBufferString(`{"event":"payment.captured"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
