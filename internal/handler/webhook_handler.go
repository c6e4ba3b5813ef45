package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefront-hq/service-billing/internal/adapter"
	"github.com/storefront-hq/service-billing/internal/application"
)

// maxWebhookBodyBytes bounds webhook payloads; Stripe events are small.
const maxWebhookBodyBytes = 65536

// signatureHeader is the header carrying the provider's payload signature.
const signatureHeader = "Stripe-Signature"

// WebhookHandler receives provider webhooks, verifies them, and hands the
// decoded events to the reconciler. Failure details are logged, never echoed:
// the provider only needs to know whether to retry.
type WebhookHandler struct {
	gateway    adapter.PaymentGateway
	reconciler *application.WebhookReconciler
	logger     *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(gateway adapter.PaymentGateway, reconciler *application.WebhookReconciler, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{gateway: gateway, reconciler: reconciler, logger: logger}
}

// RegisterRoutes registers the webhook route. It sits outside the
// authenticated API surface; the signature is the authentication.
func (h *WebhookHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/webhooks/payment", h.HandleWebhook)
}

// HandleWebhook handles POST /webhooks/payment.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Warn("failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	event, err := h.gateway.VerifyAndDecodeEvent(payload, c.GetHeader(signatureHeader))
	if err != nil {
		h.logger.Warn("webhook rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhook verification failed"})
		return
	}

	if err := h.reconciler.Execute(c.Request.Context(), event); err != nil {
		h.logger.Error("webhook reconciliation failed",
			zap.String("type", event.EventType()),
			zap.Error(err),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": "event processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
