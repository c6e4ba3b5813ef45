package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/storefront-hq/service-billing/internal/application"
	"github.com/storefront-hq/service-billing/pkg/response"
)

// CreateCheckoutRequest is the body for starting a checkout flow.
type CreateCheckoutRequest struct {
	StoreID    uuid.UUID `json:"store_id" binding:"required"`
	PriceID    string    `json:"price_id" binding:"required"`
	SuccessURL string    `json:"success_url"`
	CancelURL  string    `json:"cancel_url"`
}

// SubscriptionHandler handles HTTP requests for subscription operations.
type SubscriptionHandler struct {
	service           *application.SubscriptionService
	defaultSuccessURL string
	defaultCancelURL  string
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(service *application.SubscriptionService, defaultSuccessURL, defaultCancelURL string) *SubscriptionHandler {
	return &SubscriptionHandler{
		service:           service,
		defaultSuccessURL: defaultSuccessURL,
		defaultCancelURL:  defaultCancelURL,
	}
}

// RegisterRoutes registers all subscription routes.
func (h *SubscriptionHandler) RegisterRoutes(r *gin.RouterGroup) {
	subs := r.Group("/subscriptions")
	{
		subs.POST("/checkout", h.CreateCheckoutSession)
		subs.POST("/:id/cancel", h.CancelSubscription)
		subs.GET("/store/:storeId", h.FindByStore)
	}
}

// CreateCheckoutSession handles POST /api/v1/subscriptions/checkout.
func (h *SubscriptionHandler) CreateCheckoutSession(c *gin.Context) {
	var req CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = h.defaultSuccessURL
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = h.defaultCancelURL
	}

	url, err := h.service.CreateCheckoutSession(c.Request.Context(), req.StoreID, req.PriceID, successURL, cancelURL)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"checkout_url": url})
}

// CancelSubscription handles POST /api/v1/subscriptions/:id/cancel.
// The "immediately" query flag selects between cancelling now and letting
// the subscription run out at the end of the paid period.
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid subscription ID")
		return
	}

	immediate := c.Query("immediately") == "true"

	dto, err := h.service.CancelSubscription(c.Request.Context(), id, immediate)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// FindByStore handles GET /api/v1/subscriptions/store/:storeId.
// Returns data null when the store has no subscription.
func (h *SubscriptionHandler) FindByStore(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("storeId"))
	if err != nil {
		response.BadRequest(c, "invalid store ID")
		return
	}

	dto, err := h.service.FindByStore(c.Request.Context(), storeID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}
