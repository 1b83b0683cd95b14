package handlers

import (
	"errors"
	"log"
	"net/http"

	"palettestudio/services"

	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	subs    *services.SubscriptionService
	billing services.BillingClient
}

func NewSubscriptionHandler(subs *services.SubscriptionService, billing services.BillingClient) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs, billing: billing}
}

// Get returns the caller's plan, status, and period end. Users without a
// subscription row are reported as the implicit FREE/ACTIVE tier.
func (h *SubscriptionHandler) Get(c *gin.Context) {
	userID := c.GetString("userID")

	ent, err := h.subs.GetEntitlement(c.Request.Context(), userID)
	if err != nil {
		log.Printf("subscription fetch failed for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscription"})
		return
	}
	c.JSON(http.StatusOK, ent)
}

func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	userID := c.GetString("userID")

	err := h.subs.Cancel(c.Request.Context(), userID)
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
	case errors.Is(err, services.ErrAlreadyCanceled):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Subscription already canceled"})
	case err != nil:
		log.Printf("subscription cancel failed for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel subscription"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

type checkoutInput struct {
	PriceID string `json:"priceId" binding:"required"`
}

// CreateCheckout provisions the Stripe customer on first use and returns
// the hosted checkout URL. The webhook finishes the state change later.
func (h *SubscriptionHandler) CreateCheckout(c *gin.Context) {
	userID := c.GetString("userID")
	email := c.GetString("userEmail")

	var input checkoutInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Price ID is required"})
		return
	}

	customerID, err := h.subs.EnsureCustomer(c.Request.Context(), userID, email)
	if err != nil {
		log.Printf("customer provisioning failed for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prepare billing"})
		return
	}

	url, err := h.billing.CreateCheckoutSession(c.Request.Context(), customerID, input.PriceID, userID)
	if err != nil {
		log.Printf("checkout session failed for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}
